package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// EnsureSchema creates the single table the sync engine writes to. Schema
// evolution beyond this table is handled externally.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS conversations (
			id                   TEXT PRIMARY KEY,
			agent_id             TEXT,
			status               TEXT,
			lead_phone_number    TEXT,
			client_type          TEXT,
			requested_amount     TEXT,
			age                  TEXT,
			approved             TEXT,
			channel              TEXT,
			motive               TEXT,
			evaluation_result    TEXT,
			evaluation_rationale TEXT,
			transcript           JSONB,
			created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_conversations_agent ON conversations (agent_id);
		CREATE INDEX IF NOT EXISTS idx_conversations_created ON conversations (created_at);
	`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
