package allergy

import (
	"context"

	"github.com/ehr/allergy/internal/platform/kv"
)

// HistoryLedger is the append-only severity history, one list per allergy.
type HistoryLedger struct {
	store kv.Store
}

func NewHistoryLedger(store kv.Store) *HistoryLedger {
	return &HistoryLedger{store: store}
}

func (l *HistoryLedger) Append(ctx context.Context, u SeverityUpdate) error {
	rw := kv.Conn(ctx, l.store)
	var entries []SeverityUpdate
	if _, err := load(ctx, rw, historyKey(u.AllergyID), &entries); err != nil {
		return err
	}
	return save(ctx, rw, historyKey(u.AllergyID), append(entries, u))
}

// History returns the updates for id in the order they were appended. An id
// with no updates, or no record at all, yields an empty slice.
func (l *HistoryLedger) History(ctx context.Context, id uint64) ([]SeverityUpdate, error) {
	entries := []SeverityUpdate{}
	if _, err := load(ctx, kv.Conn(ctx, l.store), historyKey(id), &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []SeverityUpdate{}
	}
	return entries, nil
}
