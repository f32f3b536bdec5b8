package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS event_meta (
	id BIGSERIAL PRIMARY KEY,
	event_id BIGINT NOT NULL,
	meta_key TEXT NOT NULL,
	meta_value JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_event_meta_key_event
	ON event_meta (meta_key, event_id);
`

// EnsureSchema creates the event_meta table if it does not exist yet. Called
// once from the composition root before any repository is used.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure event_meta schema: %w", err)
	}
	return nil
}
