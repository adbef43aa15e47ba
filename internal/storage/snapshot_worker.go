package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Angus1976/superinsight1225-sub020/internal/models"
	"github.com/Angus1976/superinsight1225-sub020/internal/queue"
	"github.com/Angus1976/superinsight1225-sub020/internal/utils"
)

// SnapshotUpserter is the slice of HealthRepository the worker needs,
// kept as an interface so tests can substitute an in-memory fake.
type SnapshotUpserter interface {
	Upsert(ctx context.Context, record *models.HealthRecord) error
	UpsertBatch(ctx context.Context, records []*models.HealthRecord) error
	Delete(ctx context.Context, providerID uuid.UUID) error
}

// SnapshotWorker persists health records asynchronously. Outcomes are
// applied to the in-memory store first; the worker drains the queue in
// batches and upserts snapshot rows, so a slow database never sits on the
// probe or request path. It implements health.SnapshotSink.
type SnapshotWorker struct {
	queue       queue.Queue
	dlq         queue.DeadLetterQueue
	repo        SnapshotUpserter
	config      *queue.Config
	logger      *utils.Logger
	stopChan    chan struct{}
	stoppedChan chan struct{}
}

// NewSnapshotWorker creates a new snapshot worker
func NewSnapshotWorker(q queue.Queue, dlq queue.DeadLetterQueue, repo SnapshotUpserter, config *queue.Config) *SnapshotWorker {
	if config == nil {
		config = queue.DefaultConfig("health-snapshots")
	}

	return &SnapshotWorker{
		queue:       q,
		dlq:         dlq,
		repo:        repo,
		config:      config,
		logger:      utils.NewLogger("snapshot-worker"),
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// Start starts the worker goroutine
func (w *SnapshotWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop gracefully stops the worker
func (w *SnapshotWorker) Stop() error {
	close(w.stopChan)
	<-w.stoppedChan
	return nil
}

// Persist enqueues a health record for batched persistence
func (w *SnapshotWorker) Persist(ctx context.Context, record *models.HealthRecord) error {
	return w.queue.Enqueue(ctx, record)
}

// Delete removes a provider's snapshot row immediately. Deletes are rare
// (provider removal) and must not lose a race with queued upserts, so they
// bypass the queue.
func (w *SnapshotWorker) Delete(ctx context.Context, providerID uuid.UUID) error {
	return w.repo.Delete(ctx, providerID)
}

// run is the main worker loop
func (w *SnapshotWorker) run(ctx context.Context) {
	defer close(w.stoppedChan)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Snapshot worker stopping")
			return
		case <-ctx.Done():
			w.logger.Info("Snapshot worker context cancelled")
			return
		default:
			w.processBatch(ctx)
		}
	}
}

// processBatch drains one batch from the queue and writes it out
func (w *SnapshotWorker) processBatch(ctx context.Context) {
	items, err := w.queue.DequeueWithTimeout(ctx, w.config.BatchSize, w.config.BatchTimeout)
	if err != nil {
		w.logger.Error("Failed to dequeue health snapshots", "error", err)
		time.Sleep(1 * time.Second) // Back off on error
		return
	}

	if len(items) == 0 {
		return
	}

	records := latestPerProvider(items)
	if len(records) == 0 {
		return
	}

	w.logger.Debug("Persisting health snapshot batch", "count", len(records))

	if err := w.repo.UpsertBatch(ctx, records); err != nil {
		w.logger.Error("Failed to persist batch, falling back to individual upserts", "error", err)
		for _, record := range records {
			if err := w.processItem(ctx, record); err != nil {
				w.logger.Error("Failed to persist health snapshot", "error", err)
			}
		}
	}
}

// latestPerProvider collapses a batch to the newest record per provider;
// older snapshots in the same batch are superseded anyway.
func latestPerProvider(records []*models.HealthRecord) []*models.HealthRecord {
	latest := make(map[uuid.UUID]*models.HealthRecord, len(records))
	for _, record := range records {
		current, ok := latest[record.ProviderID]
		if !ok || record.UpdatedAt.After(current.UpdatedAt) {
			latest[record.ProviderID] = record
		}
	}

	result := make([]*models.HealthRecord, 0, len(latest))
	for _, record := range latest {
		result = append(result, record)
	}
	return result
}

// processItem persists a single record with retries, then dead-letters it
func (w *SnapshotWorker) processItem(ctx context.Context, record *models.HealthRecord) error {
	var lastErr error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			backoff := w.config.RetryBackoff * time.Duration(1<<uint(attempt-1))
			w.logger.Debug("Retrying health snapshot", "attempt", attempt, "backoff", backoff)
			time.Sleep(backoff)
		}

		if err := w.repo.Upsert(ctx, record); err != nil {
			lastErr = err
			continue
		}

		return nil
	}

	if w.dlq != nil {
		if err := w.dlq.Add(ctx, record, lastErr); err != nil {
			w.logger.Error("Failed to add to dead letter queue", "error", err)
		} else {
			w.logger.Warn("Health snapshot moved to DLQ",
				"provider_id", record.ProviderID, "error", lastErr)
		}
	}

	return fmt.Errorf("%w: %v", queue.ErrMaxRetriesExceeded, lastErr)
}

// QueueLength returns the current queue length
func (w *SnapshotWorker) QueueLength(ctx context.Context) (int, error) {
	return w.queue.Length(ctx)
}

// DeadLetterItems returns items from the dead letter queue
func (w *SnapshotWorker) DeadLetterItems(ctx context.Context, maxItems int) ([]queue.DeadLetterItem, error) {
	if w.dlq == nil {
		return nil, fmt.Errorf("dead letter queue not configured")
	}
	return w.dlq.List(ctx, maxItems)
}
