package allergy

import (
	"context"
	"slices"

	"github.com/ehr/allergy/internal/platform/kv"
)

// CrossSensitivityRegistry stores symmetric drug pairs. Each drug keeps a
// sorted list of its partners, so a pair lives under both names.
type CrossSensitivityRegistry struct {
	store kv.Store
}

func NewCrossSensitivityRegistry(store kv.Store) *CrossSensitivityRegistry {
	return &CrossSensitivityRegistry{store: store}
}

// Register records that a and b are cross-sensitive. Registering a known
// pair changes nothing. A drug paired with itself lists itself once.
func (r *CrossSensitivityRegistry) Register(ctx context.Context, a, b string) error {
	if err := validateName(a); err != nil {
		return err
	}
	if err := validateName(b); err != nil {
		return err
	}
	a, b = normalizeName(a), normalizeName(b)
	rw := kv.Conn(ctx, r.store)
	if err := r.link(ctx, rw, a, b); err != nil {
		return err
	}
	if a == b {
		return nil
	}
	return r.link(ctx, rw, b, a)
}

// Related returns the drugs registered against drug, sorted.
func (r *CrossSensitivityRegistry) Related(ctx context.Context, drug string) ([]string, error) {
	related, err := r.partners(ctx, kv.Conn(ctx, r.store), normalizeName(drug))
	if err != nil {
		return nil, err
	}
	if related == nil {
		related = []string{}
	}
	return related, nil
}

func (r *CrossSensitivityRegistry) link(ctx context.Context, rw kv.ReadWriter, from, to string) error {
	partners, err := r.partners(ctx, rw, from)
	if err != nil {
		return err
	}
	i, found := slices.BinarySearch(partners, to)
	if found {
		return nil
	}
	return save(ctx, rw, crossSensKey(from), slices.Insert(partners, i, to))
}

func (r *CrossSensitivityRegistry) partners(ctx context.Context, rw kv.Reader, drug string) ([]string, error) {
	var partners []string
	if _, err := load(ctx, rw, crossSensKey(drug), &partners); err != nil {
		return nil, err
	}
	return partners, nil
}
