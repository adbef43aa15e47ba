package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Angus1976/superinsight1225-sub020/internal/models"
)

// HealthRepository persists health snapshot rows, one per provider. The
// rows back the read-only operational query surface; the in-memory store
// remains authoritative for routing decisions.
type HealthRepository struct {
	db *DB
}

// NewHealthRepository creates a new health record repository
func NewHealthRepository(db *DB) *HealthRepository {
	return &HealthRepository{db: db}
}

const healthColumns = `provider_id, is_healthy, consecutive_failures, last_check_at, last_error, updated_at`

const upsertHealthQuery = `
	INSERT INTO provider_health (provider_id, is_healthy, consecutive_failures,
	                             last_check_at, last_error, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (provider_id) DO UPDATE
	SET is_healthy           = EXCLUDED.is_healthy,
	    consecutive_failures = EXCLUDED.consecutive_failures,
	    last_check_at        = GREATEST(provider_health.last_check_at, EXCLUDED.last_check_at),
	    last_error           = EXCLUDED.last_error,
	    updated_at           = EXCLUDED.updated_at
`

// Upsert writes one health snapshot row
func (r *HealthRepository) Upsert(ctx context.Context, record *models.HealthRecord) error {
	_, err := r.db.conn.ExecContext(ctx, upsertHealthQuery,
		record.ProviderID, record.IsHealthy, record.ConsecutiveFailures,
		record.LastCheckAt, record.LastError, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert health record: %w", err)
	}
	return nil
}

// UpsertBatch writes a batch of snapshot rows in one transaction
func (r *HealthRepository) UpsertBatch(ctx context.Context, records []*models.HealthRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, record := range records {
		if err := upsertInTx(ctx, tx, record); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func upsertInTx(ctx context.Context, tx *sqlx.Tx, record *models.HealthRecord) error {
	_, err := tx.ExecContext(ctx, upsertHealthQuery,
		record.ProviderID, record.IsHealthy, record.ConsecutiveFailures,
		record.LastCheckAt, record.LastError, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert health record: %w", err)
	}
	return nil
}

// GetByProviderID retrieves one health record
func (r *HealthRepository) GetByProviderID(ctx context.Context, providerID uuid.UUID) (*models.HealthRecord, error) {
	var record models.HealthRecord
	query := fmt.Sprintf(`SELECT %s FROM provider_health WHERE provider_id = $1`, healthColumns)

	err := r.db.conn.GetContext(ctx, &record, query, providerID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrHealthRecordNotFound
		}
		return nil, fmt.Errorf("failed to get health record: %w", err)
	}

	return &record, nil
}

// ListAll returns all health records
func (r *HealthRepository) ListAll(ctx context.Context) ([]*models.HealthRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM provider_health ORDER BY provider_id`, healthColumns)

	var records []*models.HealthRecord
	if err := r.db.conn.SelectContext(ctx, &records, query); err != nil {
		return nil, fmt.Errorf("failed to list health records: %w", err)
	}
	return records, nil
}

// ListUnhealthy returns only records currently marked unhealthy
func (r *HealthRepository) ListUnhealthy(ctx context.Context) ([]*models.HealthRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM provider_health WHERE NOT is_healthy ORDER BY provider_id`, healthColumns)

	var records []*models.HealthRecord
	if err := r.db.conn.SelectContext(ctx, &records, query); err != nil {
		return nil, fmt.Errorf("failed to list unhealthy records: %w", err)
	}
	return records, nil
}

// ListStale returns records whose last check predates the cutoff, which
// usually means the monitor stopped probing them.
func (r *HealthRepository) ListStale(ctx context.Context, olderThan time.Duration) ([]*models.HealthRecord, error) {
	cutoff := time.Now().Add(-olderThan)
	query := fmt.Sprintf(`SELECT %s FROM provider_health WHERE last_check_at < $1 ORDER BY last_check_at`, healthColumns)

	var records []*models.HealthRecord
	if err := r.db.conn.SelectContext(ctx, &records, query, cutoff); err != nil {
		return nil, fmt.Errorf("failed to list stale records: %w", err)
	}
	return records, nil
}

// Delete removes a provider's health row. Missing rows are not an error:
// the cascade from the providers table may already have removed it.
func (r *HealthRepository) Delete(ctx context.Context, providerID uuid.UUID) error {
	_, err := r.db.conn.ExecContext(ctx, "DELETE FROM provider_health WHERE provider_id = $1", providerID)
	if err != nil {
		return fmt.Errorf("failed to delete health record: %w", err)
	}
	return nil
}
