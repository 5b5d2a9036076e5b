package allergy

import "errors"

var (
	ErrAllergyNotFound     = errors.New("allergy not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidSeverity     = errors.New("invalid severity")
	ErrInvalidAllergenType = errors.New("invalid allergen type")
	ErrAlreadyResolved     = errors.New("allergy already resolved")
	// ErrPatientNotFound is reserved for a patient registry lookup; no
	// operation returns it yet.
	ErrPatientNotFound  = errors.New("patient not found")
	ErrDuplicateAllergy = errors.New("active allergy already recorded for this allergen")
	ErrInvalidAllergen  = errors.New("allergen is required")
	ErrAllergenTooLong  = errors.New("allergen exceeds 100 bytes")
	ErrReactionTooLong  = errors.New("reaction exceeds 200 bytes")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrReasonTooLong    = errors.New("reason exceeds 500 bytes")
)

// Length limits count bytes of the caller's text.
const (
	maxAllergenLen = 100
	maxReactionLen = 200
	maxReasonLen   = 500
)
