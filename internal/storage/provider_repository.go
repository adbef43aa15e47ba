package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/Angus1976/superinsight1225-sub020/internal/models"
)

// ProviderRepository handles provider database operations
type ProviderRepository struct {
	db *DB
}

// NewProviderRepository creates a new provider repository
func NewProviderRepository(db *DB) *ProviderRepository {
	return &ProviderRepository{db: db}
}

const providerColumns = `id, name, display_name, provider_type, endpoint,
	       encrypted_credentials, model_params, priority, enabled, created_at, updated_at`

// GetByID retrieves a provider by ID, consulting the config cache first
func (r *ProviderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Provider, error) {
	if cached, ok := r.db.providerCache.Get(id.String()); ok {
		if provider, ok := cached.(*models.Provider); ok {
			return provider, nil
		}
	}

	var provider models.Provider
	query := fmt.Sprintf(`SELECT %s FROM providers WHERE id = $1`, providerColumns)

	err := r.db.conn.GetContext(ctx, &provider, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProviderNotFound
		}
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}

	r.db.providerCache.Set(id.String(), &provider)
	return &provider, nil
}

// GetByName retrieves a provider by name
func (r *ProviderRepository) GetByName(ctx context.Context, name string) (*models.Provider, error) {
	var provider models.Provider
	query := fmt.Sprintf(`SELECT %s FROM providers WHERE name = $1`, providerColumns)

	err := r.db.conn.GetContext(ctx, &provider, query, name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProviderNotFound
		}
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}

	return &provider, nil
}

// List returns all providers ordered by priority, ties by name
func (r *ProviderRepository) List(ctx context.Context) ([]*models.Provider, error) {
	query := fmt.Sprintf(`SELECT %s FROM providers ORDER BY priority, name`, providerColumns)

	var providers []*models.Provider
	err := r.db.conn.SelectContext(ctx, &providers, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}

	return providers, nil
}

// ListEnabled returns enabled providers ordered by priority. This is the
// candidate set handed to the monitor and the switcher.
func (r *ProviderRepository) ListEnabled(ctx context.Context) ([]*models.Provider, error) {
	query := fmt.Sprintf(`SELECT %s FROM providers WHERE enabled ORDER BY priority, name`, providerColumns)

	var providers []*models.Provider
	err := r.db.conn.SelectContext(ctx, &providers, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled providers: %w", err)
	}

	return providers, nil
}

// Create creates a new provider
func (r *ProviderRepository) Create(ctx context.Context, provider *models.Provider) error {
	query := `
		INSERT INTO providers (id, name, display_name, provider_type, endpoint,
		                       encrypted_credentials, model_params, priority, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	if provider.ID == uuid.Nil {
		provider.ID = uuid.New()
	}

	err := r.db.conn.QueryRowxContext(
		ctx, query,
		provider.ID, provider.Name, provider.DisplayName, provider.ProviderType,
		provider.Endpoint, provider.EncryptedCredentials, provider.ModelParams,
		provider.Priority, provider.Enabled,
	).Scan(&provider.CreatedAt, &provider.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}

	return nil
}

// Update updates an existing provider and invalidates its cache entry
func (r *ProviderRepository) Update(ctx context.Context, provider *models.Provider) error {
	query := `
		UPDATE providers
		SET name = $2, display_name = $3, provider_type = $4, endpoint = $5,
		    encrypted_credentials = $6, model_params = $7, priority = $8,
		    enabled = $9, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.conn.QueryRowxContext(
		ctx, query,
		provider.ID, provider.Name, provider.DisplayName, provider.ProviderType,
		provider.Endpoint, provider.EncryptedCredentials, provider.ModelParams,
		provider.Priority, provider.Enabled,
	).Scan(&provider.UpdatedAt)

	if err != nil {
		if err == sql.ErrNoRows {
			return ErrProviderNotFound
		}
		return fmt.Errorf("failed to update provider: %w", err)
	}

	r.db.providerCache.Delete(provider.ID.String())
	return nil
}

// Delete deletes a provider. The provider's health row goes with it via
// the foreign key cascade.
func (r *ProviderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := "DELETE FROM providers WHERE id = $1"
	result, err := r.db.conn.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete provider: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return ErrProviderNotFound
	}

	r.db.providerCache.Delete(id.String())
	return nil
}
