package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Angus1976/superinsight1225-sub020/internal/models"
	"github.com/Angus1976/superinsight1225-sub020/internal/queue"
)

// fakeUpserter records persisted rows and can be told to fail
type fakeUpserter struct {
	mu      sync.Mutex
	rows    map[uuid.UUID]*models.HealthRecord
	batches [][]*models.HealthRecord
	deleted []uuid.UUID
	fail    bool
}

func newFakeUpserter() *fakeUpserter {
	return &fakeUpserter{rows: make(map[uuid.UUID]*models.HealthRecord)}
}

func (f *fakeUpserter) Upsert(ctx context.Context, record *models.HealthRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("database unavailable")
	}
	f.rows[record.ProviderID] = record
	return nil
}

func (f *fakeUpserter) UpsertBatch(ctx context.Context, records []*models.HealthRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("database unavailable")
	}
	batch := make([]*models.HealthRecord, len(records))
	copy(batch, records)
	f.batches = append(f.batches, batch)
	for _, record := range records {
		f.rows[record.ProviderID] = record
	}
	return nil
}

func (f *fakeUpserter) Delete(ctx context.Context, providerID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, providerID)
	delete(f.rows, providerID)
	return nil
}

func (f *fakeUpserter) row(id uuid.UUID) (*models.HealthRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.rows[id]
	return record, ok
}

func fastQueueConfig() *queue.Config {
	cfg := queue.DefaultConfig("test-snapshots")
	cfg.BatchSize = 10
	cfg.BatchTimeout = 20 * time.Millisecond
	cfg.MaxRetries = 1
	cfg.RetryBackoff = 1 * time.Millisecond
	return cfg
}

func record(id uuid.UUID, failures int, at time.Time) *models.HealthRecord {
	return &models.HealthRecord{
		ProviderID:          id,
		IsHealthy:           failures < 3,
		ConsecutiveFailures: failures,
		LastCheckAt:         at,
		UpdatedAt:           at,
	}
}

func waitForCondition(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestSnapshotWorker_PersistsEnqueuedRecords(t *testing.T) {
	cfg := fastQueueConfig()
	q := queue.NewMemoryQueue(cfg)
	defer q.Close()
	repo := newFakeUpserter()

	worker := NewSnapshotWorker(q, queue.NewMemoryDeadLetterQueue(), repo, cfg)
	worker.Start(context.Background())
	defer worker.Stop()

	id := uuid.New()
	if err := worker.Persist(context.Background(), record(id, 2, time.Now())); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	waitForCondition(t, time.Second, func() bool {
		_, ok := repo.row(id)
		return ok
	}, "Record was never upserted")

	row, _ := repo.row(id)
	if row.ConsecutiveFailures != 2 {
		t.Errorf("Expected 2 failures in persisted row, got %d", row.ConsecutiveFailures)
	}
}

func TestSnapshotWorker_BatchCollapsesToLatestPerProvider(t *testing.T) {
	cfg := fastQueueConfig()
	q := queue.NewMemoryQueue(cfg)
	defer q.Close()
	repo := newFakeUpserter()

	worker := NewSnapshotWorker(q, queue.NewMemoryDeadLetterQueue(), repo, cfg)

	id := uuid.New()
	base := time.Now()
	ctx := context.Background()

	// Three snapshots for the same provider before the worker starts,
	// out of chronological order
	worker.Persist(ctx, record(id, 1, base.Add(time.Second)))
	worker.Persist(ctx, record(id, 3, base.Add(3*time.Second)))
	worker.Persist(ctx, record(id, 2, base.Add(2*time.Second)))

	worker.Start(ctx)
	defer worker.Stop()

	waitForCondition(t, time.Second, func() bool {
		_, ok := repo.row(id)
		return ok
	}, "Record was never upserted")

	row, _ := repo.row(id)
	if row.ConsecutiveFailures != 3 {
		t.Errorf("Expected newest snapshot to win, got failures=%d", row.ConsecutiveFailures)
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.batches) != 1 || len(repo.batches[0]) != 1 {
		t.Errorf("Expected a single one-row batch, got %v", repo.batches)
	}
}

func TestSnapshotWorker_DeadLettersAfterRetries(t *testing.T) {
	cfg := fastQueueConfig()
	q := queue.NewMemoryQueue(cfg)
	defer q.Close()
	dlq := queue.NewMemoryDeadLetterQueue()
	repo := newFakeUpserter()
	repo.fail = true

	worker := NewSnapshotWorker(q, dlq, repo, cfg)
	worker.Start(context.Background())
	defer worker.Stop()

	worker.Persist(context.Background(), record(uuid.New(), 1, time.Now()))

	waitForCondition(t, 2*time.Second, func() bool {
		items, err := dlq.List(context.Background(), 10)
		return err == nil && len(items) == 1
	}, "Failed record never reached the dead letter queue")

	items, _ := dlq.List(context.Background(), 10)
	if items[0].Error != "database unavailable" {
		t.Errorf("Expected original error in DLQ item, got %q", items[0].Error)
	}
	if items[0].Record == nil || items[0].Record.ConsecutiveFailures != 1 {
		t.Errorf("Expected the failed record in the DLQ item, got %+v", items[0].Record)
	}
}

func TestSnapshotWorker_DeleteBypassesQueue(t *testing.T) {
	cfg := fastQueueConfig()
	q := queue.NewMemoryQueue(cfg)
	defer q.Close()
	repo := newFakeUpserter()

	// Worker not started: a queued item would never drain, a direct
	// delete must still land.
	worker := NewSnapshotWorker(q, queue.NewMemoryDeadLetterQueue(), repo, cfg)

	id := uuid.New()
	if err := worker.Delete(context.Background(), id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.deleted) != 1 || repo.deleted[0] != id {
		t.Errorf("Expected direct delete for %s, got %v", id, repo.deleted)
	}
}

func TestSnapshotWorker_ProcessItemReportsExhaustedRetries(t *testing.T) {
	cfg := fastQueueConfig()
	q := queue.NewMemoryQueue(cfg)
	defer q.Close()
	repo := newFakeUpserter()
	repo.fail = true

	worker := NewSnapshotWorker(q, queue.NewMemoryDeadLetterQueue(), repo, cfg)

	err := worker.processItem(context.Background(), record(uuid.New(), 1, time.Now()))
	if !errors.Is(err, queue.ErrMaxRetriesExceeded) {
		t.Errorf("Expected ErrMaxRetriesExceeded, got %v", err)
	}
}
