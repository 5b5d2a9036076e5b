// Package kv is the key-value persistence boundary. Domain code reads and
// writes opaque byte values by string key; backends decide where the bytes
// live (memory, LevelDB, SQLite, Postgres, Redis).
package kv

import "context"

// Reader looks up a single key. A missing key is reported with ok=false and
// a nil error.
type Reader interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
}

// Writer stores a single key.
type Writer interface {
	Put(ctx context.Context, key string, value []byte) error
}

// ReadWriter is satisfied by every Store and by Txn.
type ReadWriter interface {
	Reader
	Writer
}

// Write is one staged key/value pair.
type Write struct {
	Key   string
	Value []byte
}

// Store is a persistent key-value backend.
//
// Apply must make either all of the writes visible or none of them.
type Store interface {
	ReadWriter
	Apply(ctx context.Context, writes []Write) error
	Close() error
}
