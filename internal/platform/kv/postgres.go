package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresDDL = `CREATE TABLE IF NOT EXISTS allergy_kv (
	key TEXT PRIMARY KEY,
	value BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Postgres stores keys in the allergy_kv table. The Store owns the pool and
// closes it on Close.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres ensures the kv table exists on pool.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	if _, err := pool.Exec(ctx, postgresDDL); err != nil {
		return nil, fmt.Errorf("ensure allergy_kv table: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var v []byte
	err := p.pool.QueryRow(ctx, `SELECT value FROM allergy_kv WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("postgres get %s: %w", key, err)
	}
	return v, true, nil
}

func (p *Postgres) Put(ctx context.Context, key string, value []byte) error {
	return p.Apply(ctx, []Write{{Key: key, Value: value}})
}

func (p *Postgres) Apply(ctx context.Context, writes []Write) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		for _, w := range writes {
			if _, err := tx.Exec(ctx, `
				INSERT INTO allergy_kv (key, value) VALUES ($1, $2)
				ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
				w.Key, w.Value); err != nil {
				return fmt.Errorf("upsert %s: %w", w.Key, err)
			}
		}
		return nil
	})
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
