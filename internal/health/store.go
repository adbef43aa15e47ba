package health

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Angus1976/superinsight1225-sub020/internal/models"
)

// Store is the shared mutable health state: one record per registered
// provider, with per-key atomic read-modify-write. Implementations must
// support concurrent readers and writers without a single global lock
// serializing unrelated providers.
type Store interface {
	// Register creates the default-healthy record for a provider. Idempotent.
	Register(providerID uuid.UUID)

	// Get returns a copy of the provider's record, or false if never registered.
	Get(providerID uuid.UUID) (*models.HealthRecord, bool)

	// RecordOutcome atomically applies one probe or request outcome and
	// returns the post-update record. Outcomes for unregistered providers
	// are rejected with ErrProviderNotRegistered.
	RecordOutcome(providerID uuid.UUID, success bool, errMsg string, threshold int) (*models.HealthRecord, error)

	// ListHealthy returns a snapshot of currently healthy provider IDs.
	// The snapshot may be immediately stale relative to concurrent updates.
	ListHealthy() map[uuid.UUID]struct{}

	// List returns copies of all records.
	List() []*models.HealthRecord

	// Remove drops the provider's record. Idempotent.
	Remove(providerID uuid.UUID)
}

// healthEntry pairs a record with its own mutex so that outcomes for one
// provider serialize against each other without blocking other providers.
type healthEntry struct {
	mu     sync.Mutex
	record models.HealthRecord
}

// MemoryStore is the in-memory Store implementation. The outer RWMutex only
// guards the map structure; record mutations take the entry's own lock.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*healthEntry

	// now is swappable for tests
	now func() time.Time
}

// NewMemoryStore creates an empty in-memory health store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[uuid.UUID]*healthEntry),
		now:     time.Now,
	}
}

// Register creates the default-healthy record for a provider
func (s *MemoryStore) Register(providerID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[providerID]; ok {
		return
	}

	s.entries[providerID] = &healthEntry{
		record: models.HealthRecord{
			ProviderID: providerID,
			IsHealthy:  true,
			UpdatedAt:  s.now(),
		},
	}
}

// Get returns a copy of the provider's record
func (s *MemoryStore) Get(providerID uuid.UUID) (*models.HealthRecord, bool) {
	s.mu.RLock()
	entry, ok := s.entries[providerID]
	s.mu.RUnlock()

	if !ok {
		return nil, false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.record.Clone(), true
}

// RecordOutcome atomically applies one observation to the provider's record.
// On success the failure streak resets to zero and the last error clears; on
// failure the streak grows by exactly one. IsHealthy is always recomputed
// from the streak and the threshold, never set directly.
func (s *MemoryStore) RecordOutcome(providerID uuid.UUID, success bool, errMsg string, threshold int) (*models.HealthRecord, error) {
	s.mu.RLock()
	entry, ok := s.entries[providerID]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrProviderNotRegistered
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	rec := &entry.record

	if success {
		rec.ConsecutiveFailures = 0
		rec.LastError = nil
	} else {
		rec.ConsecutiveFailures++
		rec.LastError = &errMsg
	}
	rec.IsHealthy = rec.ConsecutiveFailures < threshold

	now := s.now()
	// LastCheckAt is monotone non-decreasing per provider
	if now.After(rec.LastCheckAt) {
		rec.LastCheckAt = now
	}
	rec.UpdatedAt = now

	return rec.Clone(), nil
}

// ListHealthy returns a snapshot of currently healthy provider IDs
func (s *MemoryStore) ListHealthy() map[uuid.UUID]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	healthy := make(map[uuid.UUID]struct{}, len(s.entries))
	for id, entry := range s.entries {
		entry.mu.Lock()
		if entry.record.IsHealthy {
			healthy[id] = struct{}{}
		}
		entry.mu.Unlock()
	}
	return healthy
}

// List returns copies of all records
func (s *MemoryStore) List() []*models.HealthRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*models.HealthRecord, 0, len(s.entries))
	for _, entry := range s.entries {
		entry.mu.Lock()
		records = append(records, entry.record.Clone())
		entry.mu.Unlock()
	}
	return records
}

// Remove drops the provider's record
func (s *MemoryStore) Remove(providerID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, providerID)
}
