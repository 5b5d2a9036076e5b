package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
)

// LevelDB stores keys in an embedded LevelDB directory. Apply goes through a
// single leveldb.Batch, which LevelDB writes atomically.
type LevelDB struct {
	db   *leveldb.DB
	path string
}

// OpenLevelDB opens (or creates) the database directory at path.
func OpenLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &LevelDB{db: db, path: path}, nil
}

func (l *LevelDB) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, err := l.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("leveldb get %s: %w", key, err)
	}
	return v, true, nil
}

func (l *LevelDB) Put(_ context.Context, key string, value []byte) error {
	if err := l.db.Put([]byte(key), value, nil); err != nil {
		return fmt.Errorf("leveldb put %s: %w", key, err)
	}
	return nil
}

func (l *LevelDB) Apply(_ context.Context, writes []Write) error {
	batch := new(leveldb.Batch)
	for _, w := range writes {
		batch.Put([]byte(w.Key), w.Value)
	}
	if err := l.db.Write(batch, nil); err != nil {
		return fmt.Errorf("leveldb write batch: %w", err)
	}
	return nil
}

// Path returns the database directory.
func (l *LevelDB) Path() string { return l.path }

func (l *LevelDB) Close() error { return l.db.Close() }
