package allergy

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ehr/allergy/internal/platform/kv"
)

// Sequence hands out allergy ids.
type Sequence interface {
	Next(ctx context.Context) (uint64, error)
}

// KVSequence keeps the next id as a decimal counter in the store. The first
// id is 0. Inside a unit of work the increment commits with the record it
// numbers, so an aborted write never burns an id.
type KVSequence struct {
	store kv.Store
}

func NewKVSequence(store kv.Store) *KVSequence {
	return &KVSequence{store: store}
}

func (s *KVSequence) Next(ctx context.Context) (uint64, error) {
	rw := kv.Conn(ctx, s.store)
	var next uint64
	b, ok, err := rw.Get(ctx, counterKey)
	if err != nil {
		return 0, fmt.Errorf("read id counter: %w", err)
	}
	if ok {
		next, err = strconv.ParseUint(string(b), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse id counter: %w", err)
		}
	}
	if err := rw.Put(ctx, counterKey, []byte(strconv.FormatUint(next+1, 10))); err != nil {
		return 0, fmt.Errorf("write id counter: %w", err)
	}
	return next, nil
}
