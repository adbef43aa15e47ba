package storage

import (
	"context"
	"fmt"
)

// schema holds the DDL for the tables this service owns. Health records
// cascade with their provider configuration: removing a provider removes
// its health row.
const schema = `
CREATE TABLE IF NOT EXISTS providers (
    id                    UUID PRIMARY KEY,
    name                  TEXT NOT NULL UNIQUE,
    display_name          TEXT NOT NULL DEFAULT '',
    provider_type         TEXT NOT NULL,
    endpoint              TEXT NOT NULL DEFAULT '',
    encrypted_credentials JSONB,
    model_params          JSONB,
    priority              INTEGER NOT NULL DEFAULT 100,
    enabled               BOOLEAN NOT NULL DEFAULT TRUE,
    created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS provider_health (
    provider_id          UUID PRIMARY KEY REFERENCES providers(id) ON DELETE CASCADE,
    is_healthy           BOOLEAN NOT NULL DEFAULT TRUE,
    consecutive_failures INTEGER NOT NULL DEFAULT 0,
    last_check_at        TIMESTAMPTZ NOT NULL DEFAULT 'epoch',
    last_error           TEXT,
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_provider_health_unhealthy
    ON provider_health (is_healthy) WHERE NOT is_healthy;
`

// EnsureSchema creates the service's tables if they do not exist
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
