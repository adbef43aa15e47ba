package models

import (
	"time"

	"github.com/google/uuid"
)

// HealthRecord is the health state of one provider. One record exists per
// known provider; it is created when the provider is first scheduled for
// probing and removed when the provider configuration is removed.
//
// IsHealthy is a projection of ConsecutiveFailures against the configured
// failure threshold. It is set only by the health store, never directly.
type HealthRecord struct {
	ProviderID          uuid.UUID `db:"provider_id" json:"provider_id"`
	IsHealthy           bool      `db:"is_healthy" json:"is_healthy"`
	ConsecutiveFailures int       `db:"consecutive_failures" json:"consecutive_failures"`
	LastCheckAt         time.Time `db:"last_check_at" json:"last_check_at"`
	LastError           *string   `db:"last_error" json:"last_error,omitempty"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// Clone returns a copy of the record safe to hand to callers while the
// original keeps being mutated under the store's lock.
func (r *HealthRecord) Clone() *HealthRecord {
	c := *r
	if r.LastError != nil {
		e := *r.LastError
		c.LastError = &e
	}
	return &c
}

// Stale reports whether the record has not been checked since cutoff.
// Used by operational tooling to detect a stuck monitor.
func (r *HealthRecord) Stale(cutoff time.Time) bool {
	return r.LastCheckAt.Before(cutoff)
}
