package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/ehr/allergy/internal/platform/db"
)

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverLevelDB  = "leveldb"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Driver      string
	Path        string
	DatabaseURL string
	MaxConns    int32
	MinConns    int32
	RedisURL    string
	RedisPrefix string
}

// Open builds the Store named by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverLevelDB, "":
		return OpenLevelDB(opts.Path)
	case DriverSQLite:
		return OpenSQLite(opts.Path)
	case DriverPostgres:
		pool, err := db.NewPool(ctx, opts.DatabaseURL, db.PoolOptions{
			MaxConns:       opts.MaxConns,
			MinConns:       opts.MinConns,
			ConnectTimeout: 10 * time.Second,
		})
		if err != nil {
			return nil, err
		}
		s, err := NewPostgres(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return s, nil
	case DriverRedis:
		return OpenRedis(ctx, opts.RedisURL, opts.RedisPrefix)
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}
