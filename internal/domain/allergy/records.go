package allergy

import (
	"context"
	"fmt"
	"time"

	"github.com/ehr/allergy/internal/platform/clock"
	"github.com/ehr/allergy/internal/platform/kv"
)

// RecordStore owns allergy records and the per-patient index. Writes go
// through the unit of work carried in ctx when there is one.
type RecordStore struct {
	store  kv.Store
	seq    Sequence
	clock  clock.Clock
	policy StatusPolicy
}

func NewRecordStore(store kv.Store, seq Sequence, clk clock.Clock, policy StatusPolicy) *RecordStore {
	return &RecordStore{store: store, seq: seq, clock: clk, policy: policy}
}

// Create validates in and stores a new record, returning it with its id.
// Nothing is written unless every check passes.
func (r *RecordStore) Create(ctx context.Context, in NewAllergy) (*AllergyRecord, error) {
	now := r.clock.Now()
	if err := validateName(in.Allergen); err != nil {
		return nil, err
	}
	canonical := normalizeName(in.Allergen)
	reactions := make([]string, 0, len(in.ReactionTypes))
	for _, rt := range in.ReactionTypes {
		if len(rt) > maxReactionLen {
			return nil, ErrReactionTooLong
		}
		reactions = append(reactions, rt)
	}
	var onset *time.Time
	if in.OnsetDate != nil {
		if in.OnsetDate.IsZero() || in.OnsetDate.After(now) {
			return nil, fmt.Errorf("%w: onset date must be set and not in the future", ErrInvalidTimestamp)
		}
		t := in.OnsetDate.UTC()
		onset = &t
	}
	typ, ok := ParseAllergenType(in.AllergenType)
	if !ok {
		return nil, ErrInvalidAllergenType
	}
	sev, ok := ParseSeverity(in.Severity)
	if !ok {
		return nil, ErrInvalidSeverity
	}

	rw := kv.Conn(ctx, r.store)
	ids, err := r.patientIDs(ctx, rw, in.PatientID)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		existing, err := r.get(ctx, rw, id)
		if err != nil {
			return nil, err
		}
		if normalizeName(existing.Allergen) == canonical && existing.Status != StatusResolved {
			return nil, ErrDuplicateAllergy
		}
	}

	id, err := r.seq.Next(ctx)
	if err != nil {
		return nil, err
	}
	rec := &AllergyRecord{
		ID:            id,
		PatientID:     in.PatientID,
		ProviderID:    in.ProviderID,
		Allergen:      in.Allergen,
		AllergenType:  typ,
		ReactionTypes: reactions,
		Severity:      sev,
		OnsetDate:     onset,
		Verified:      in.Verified,
		Status:        r.policy.initial(in.Verified),
		RecordedDate:  now,
		LastUpdated:   now,
	}
	if err := save(ctx, rw, recordKey(id), rec); err != nil {
		return nil, err
	}
	if err := save(ctx, rw, patientKey(in.PatientID), append(ids, id)); err != nil {
		return nil, err
	}
	return rec, nil
}

// Get returns the record with id or ErrAllergyNotFound.
func (r *RecordStore) Get(ctx context.Context, id uint64) (*AllergyRecord, error) {
	return r.get(ctx, kv.Conn(ctx, r.store), id)
}

// UpdateSeverity sets a new severity on an unresolved record and returns
// the ledger entry describing the change. The caller appends it.
func (r *RecordStore) UpdateSeverity(ctx context.Context, id uint64, provider, token, reason string) (SeverityUpdate, error) {
	rw := kv.Conn(ctx, r.store)
	rec, err := r.get(ctx, rw, id)
	if err != nil {
		return SeverityUpdate{}, err
	}
	if rec.Status == StatusResolved {
		return SeverityUpdate{}, ErrAlreadyResolved
	}
	sev, ok := ParseSeverity(token)
	if !ok {
		return SeverityUpdate{}, ErrInvalidSeverity
	}
	if len(reason) > maxReasonLen {
		return SeverityUpdate{}, ErrReasonTooLong
	}

	now := r.clock.Now()
	upd := SeverityUpdate{
		AllergyID:   id,
		ProviderID:  provider,
		OldSeverity: rec.Severity,
		NewSeverity: sev,
		Reason:      reason,
		Timestamp:   now,
	}
	rec.Severity = sev
	rec.LastUpdated = now
	if err := save(ctx, rw, recordKey(id), rec); err != nil {
		return SeverityUpdate{}, err
	}
	return upd, nil
}

// Resolve moves a record to the terminal Resolved status.
func (r *RecordStore) Resolve(ctx context.Context, id uint64, resolvedAt time.Time, reason string) (*AllergyRecord, error) {
	rw := kv.Conn(ctx, r.store)
	rec, err := r.get(ctx, rw, id)
	if err != nil {
		return nil, err
	}
	if rec.Status == StatusResolved {
		return nil, ErrAlreadyResolved
	}
	if len(reason) > maxReasonLen {
		return nil, ErrReasonTooLong
	}
	now := r.clock.Now()
	if resolvedAt.IsZero() || resolvedAt.After(now) {
		return nil, fmt.Errorf("%w: resolution date must be set and not in the future", ErrInvalidTimestamp)
	}

	date := resolvedAt.UTC()
	rec.Status = StatusResolved
	rec.ResolutionDate = &date
	rec.ResolutionReason = &reason
	rec.LastUpdated = now
	if err := save(ctx, rw, recordKey(id), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Active returns the patient's Active records in ascending id order.
// Suspected and Resolved records are left out.
func (r *RecordStore) Active(ctx context.Context, patient string) ([]*AllergyRecord, error) {
	all, err := r.ListByPatient(ctx, patient)
	if err != nil {
		return nil, err
	}
	active := make([]*AllergyRecord, 0, len(all))
	for _, rec := range all {
		if rec.Status == StatusActive {
			active = append(active, rec)
		}
	}
	return active, nil
}

// ListByPatient returns every record ever stored for the patient, resolved
// ones included, in ascending id order.
func (r *RecordStore) ListByPatient(ctx context.Context, patient string) ([]*AllergyRecord, error) {
	rw := kv.Conn(ctx, r.store)
	ids, err := r.patientIDs(ctx, rw, patient)
	if err != nil {
		return nil, err
	}
	out := make([]*AllergyRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := r.get(ctx, rw, id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *RecordStore) get(ctx context.Context, rw kv.Reader, id uint64) (*AllergyRecord, error) {
	var rec AllergyRecord
	ok, err := load(ctx, rw, recordKey(id), &rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAllergyNotFound
	}
	if rec.ReactionTypes == nil {
		rec.ReactionTypes = []string{}
	}
	return &rec, nil
}

func (r *RecordStore) patientIDs(ctx context.Context, rw kv.Reader, patient string) ([]uint64, error) {
	var ids []uint64
	if _, err := load(ctx, rw, patientKey(patient), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func validateName(name string) error {
	n := len(name)
	if n == 0 {
		return ErrInvalidAllergen
	}
	if n > maxAllergenLen {
		return ErrAllergenTooLong
	}
	return nil
}
