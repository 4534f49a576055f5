package store

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is a KV backed by a single Postgres table.
type Postgres struct {
	db *pgxpool.Pool
}

// NewPostgres creates the kv table if needed.
func NewPostgres(ctx context.Context, db *pgxpool.Pool) (*Postgres, error) {
	const stmt = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	update_time TIMESTAMPTZ NOT NULL DEFAULT now()
);`

	if _, err := db.Exec(ctx, stmt); err != nil {
		return nil, fmt.Errorf("postgres: create kv table: %w", err)
	}

	return &Postgres{db: db}, nil
}

func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	const stmt = `SELECT value FROM kv WHERE key = $1;`

	var b []byte
	err := p.db.QueryRow(ctx, stmt, key).Scan(&b)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get %s: %w", key, err)
	}

	return b, nil
}

func (p *Postgres) Set(ctx context.Context, key string, value []byte) error {
	const stmt = `
INSERT INTO kv (key, value, update_time) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, update_time = EXCLUDED.update_time;`

	if _, err := p.db.Exec(ctx, stmt, key, value); err != nil {
		return fmt.Errorf("postgres: set %s: %w", key, err)
	}

	return nil
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	const stmt = `DELETE FROM kv WHERE key = $1;`

	if _, err := p.db.Exec(ctx, stmt, key); err != nil {
		return fmt.Errorf("postgres: delete %s: %w", key, err)
	}

	return nil
}
