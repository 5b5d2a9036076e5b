package kv

import (
	"context"
	"fmt"
)

// Txn buffers writes in memory on top of a Store. Reads see the buffered
// values first. Nothing reaches the Store until Commit, which hands every
// buffered write to Store.Apply in the order the keys were first written.
type Txn struct {
	store  Store
	writes map[string][]byte
	order  []string
	done   bool
}

// Begin starts a unit of work against s.
func Begin(s Store) *Txn {
	return &Txn{store: s, writes: make(map[string][]byte)}
}

func (t *Txn) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok := t.writes[key]; ok {
		return clone(v), true, nil
	}
	return t.store.Get(ctx, key)
}

func (t *Txn) Put(_ context.Context, key string, value []byte) error {
	if t.done {
		return fmt.Errorf("kv: put %q on finished transaction", key)
	}
	if _, ok := t.writes[key]; !ok {
		t.order = append(t.order, key)
	}
	t.writes[key] = clone(value)
	return nil
}

// Pending reports how many distinct keys are staged.
func (t *Txn) Pending() int { return len(t.order) }

// Commit applies the staged writes atomically. A transaction can be
// committed once; an empty transaction commits without touching the store.
func (t *Txn) Commit(ctx context.Context) error {
	if t.done {
		return fmt.Errorf("kv: transaction already finished")
	}
	t.done = true
	if len(t.order) == 0 {
		return nil
	}
	writes := make([]Write, 0, len(t.order))
	for _, k := range t.order {
		writes = append(writes, Write{Key: k, Value: t.writes[k]})
	}
	if err := t.store.Apply(ctx, writes); err != nil {
		return fmt.Errorf("kv: commit %d writes: %w", len(writes), err)
	}
	return nil
}

// Discard drops every staged write.
func (t *Txn) Discard() {
	t.done = true
	t.writes = nil
	t.order = nil
}

type txnKey struct{}

// WithTxn returns a context carrying t, so repositories that resolve their
// connection through Conn write into the transaction.
func WithTxn(ctx context.Context, t *Txn) context.Context {
	return context.WithValue(ctx, txnKey{}, t)
}

// TxnFromContext returns the transaction stored by WithTxn, or nil.
func TxnFromContext(ctx context.Context) *Txn {
	t, _ := ctx.Value(txnKey{}).(*Txn)
	return t
}

// Conn picks the transaction from ctx when one is open, else the store.
func Conn(ctx context.Context, s Store) ReadWriter {
	if t := TxnFromContext(ctx); t != nil && !t.done {
		return t
	}
	return s
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
