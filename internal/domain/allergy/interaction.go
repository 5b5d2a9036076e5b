package allergy

import (
	"context"
	"sort"
)

// ActiveRecordSource lists a patient's Active records without any
// requester check.
type ActiveRecordSource interface {
	Active(ctx context.Context, patient string) ([]*AllergyRecord, error)
}

// RelatedDrugSource lists drugs cross-sensitive with a given drug.
type RelatedDrugSource interface {
	Related(ctx context.Context, drug string) ([]string, error)
}

// InteractionEngine matches a drug against a patient's active allergies,
// directly and through registered cross-sensitivities.
type InteractionEngine struct {
	records  ActiveRecordSource
	registry RelatedDrugSource
}

func NewInteractionEngine(records ActiveRecordSource, registry RelatedDrugSource) *InteractionEngine {
	return &InteractionEngine{records: records, registry: registry}
}

// Check returns one warning per matching Active record, ordered by allergy
// id. Matching is exact and case-sensitive on the NFC form of the names.
func (e *InteractionEngine) Check(ctx context.Context, patient, drug string) ([]InteractionWarning, error) {
	drug = normalizeName(drug)
	active, err := e.records.Active(ctx, patient)
	if err != nil {
		return nil, err
	}
	warnings := []InteractionWarning{}
	if len(active) == 0 {
		return warnings, nil
	}

	related, err := e.registry.Related(ctx, drug)
	if err != nil {
		return nil, err
	}
	match := make(map[string]struct{}, len(related)+1)
	match[drug] = struct{}{}
	for _, d := range related {
		match[d] = struct{}{}
	}

	seen := make(map[uint64]struct{}, len(active))
	for _, rec := range active {
		if _, ok := match[normalizeName(rec.Allergen)]; !ok {
			continue
		}
		if _, dup := seen[rec.ID]; dup {
			continue
		}
		seen[rec.ID] = struct{}{}
		warnings = append(warnings, InteractionWarning{
			AllergyID:     rec.ID,
			Allergen:      rec.Allergen,
			Severity:      rec.Severity,
			ReactionTypes: append([]string{}, rec.ReactionTypes...),
		})
	}
	sort.Slice(warnings, func(i, j int) bool { return warnings[i].AllergyID < warnings[j].AllergyID })
	return warnings, nil
}
