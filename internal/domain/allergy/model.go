package allergy

import (
	"fmt"
	"time"
)

type AllergenType int

const (
	AllergenMedication AllergenType = iota
	AllergenFood
	AllergenEnvironmental
	AllergenOther
)

var allergenTypeNames = [...]string{"medication", "food", "environmental", "other"}

func (t AllergenType) String() string {
	if t < 0 || int(t) >= len(allergenTypeNames) {
		return fmt.Sprintf("AllergenType(%d)", int(t))
	}
	return allergenTypeNames[t]
}

func (t AllergenType) MarshalText() ([]byte, error) {
	if t < 0 || int(t) >= len(allergenTypeNames) {
		return nil, ErrInvalidAllergenType
	}
	return []byte(t.String()), nil
}

func (t *AllergenType) UnmarshalText(b []byte) error {
	v, ok := ParseAllergenType(string(b))
	if !ok {
		return ErrInvalidAllergenType
	}
	*t = v
	return nil
}

// Severity is ordered: Mild < Moderate < Severe < LifeThreatening.
type Severity int

const (
	SeverityMild Severity = iota
	SeverityModerate
	SeveritySevere
	SeverityLifeThreatening
)

var severityNames = [...]string{"mild", "moderate", "severe", "life_threatening"}

func (s Severity) String() string {
	if s < 0 || int(s) >= len(severityNames) {
		return fmt.Sprintf("Severity(%d)", int(s))
	}
	return severityNames[s]
}

func (s Severity) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(severityNames) {
		return nil, ErrInvalidSeverity
	}
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	v, ok := ParseSeverity(string(b))
	if !ok {
		return ErrInvalidSeverity
	}
	*s = v
	return nil
}

type Status int

const (
	StatusActive Status = iota
	StatusSuspected
	StatusResolved
)

var statusNames = [...]string{"active", "suspected", "resolved"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

func (s Status) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(statusNames) {
		return nil, fmt.Errorf("invalid status %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	for i, name := range statusNames {
		if name == string(b) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("invalid status %q", string(b))
}

// StatusPolicy decides the status a new record starts in.
type StatusPolicy int

const (
	// ActiveOnRecord starts every record Active; verification is tracked
	// separately in Verified.
	ActiveOnRecord StatusPolicy = iota
	// SuspectedUnlessVerified starts unverified records as Suspected.
	SuspectedUnlessVerified
)

func (p StatusPolicy) initial(verified bool) Status {
	if p == SuspectedUnlessVerified && !verified {
		return StatusSuspected
	}
	return StatusActive
}

type AllergyRecord struct {
	ID               uint64       `json:"id"`
	PatientID        string       `json:"patient_id"`
	ProviderID       string       `json:"provider_id"`
	Allergen         string       `json:"allergen"`
	AllergenType     AllergenType `json:"allergen_type"`
	ReactionTypes    []string     `json:"reaction_types"`
	Severity         Severity     `json:"severity"`
	OnsetDate        *time.Time   `json:"onset_date,omitempty"`
	Verified         bool         `json:"verified"`
	Status           Status       `json:"status"`
	RecordedDate     time.Time    `json:"recorded_date"`
	LastUpdated      time.Time    `json:"last_updated"`
	ResolutionDate   *time.Time   `json:"resolution_date,omitempty"`
	ResolutionReason *string      `json:"resolution_reason,omitempty"`
}

// NewAllergy is the input to RecordAllergy. AllergenType and Severity are
// raw tokens decoded with ParseAllergenType and ParseSeverity.
type NewAllergy struct {
	PatientID     string
	ProviderID    string
	Allergen      string
	AllergenType  string
	ReactionTypes []string
	Severity      string
	OnsetDate     *time.Time
	Verified      bool
}

type SeverityUpdate struct {
	AllergyID   uint64    `json:"allergy_id"`
	ProviderID  string    `json:"provider_id"`
	OldSeverity Severity  `json:"old_severity"`
	NewSeverity Severity  `json:"new_severity"`
	Reason      string    `json:"reason"`
	Timestamp   time.Time `json:"timestamp"`
}

type InteractionWarning struct {
	AllergyID     uint64   `json:"allergy_id"`
	Allergen      string   `json:"allergen"`
	Severity      Severity `json:"severity"`
	ReactionTypes []string `json:"reaction_types"`
}
