package queue

import (
	"context"
	"time"

	"github.com/Angus1976/superinsight1225-sub020/internal/models"
)

// Package queue buffers health records between the in-memory health state
// and their durable snapshot rows, with two backends:
//
// 1. Memory Queue (in-memory, channel-based):
//    - No persistence, records lost on restart
//    - Zero external dependencies
//    - Suitable for single-instance deployments
//
// 2. Redis Queue (Redis List-based):
//    - Persistent across restarts
//    - Supports distributed snapshot workers
//    - Production-ready for Kubernetes deployments
//
// Health outcomes are applied synchronously to the in-memory store and then
// enqueued here; the snapshot worker drains the queue in batches and upserts
// the rows into Postgres. Records that keep failing to persist land in the
// dead-letter queue for operational inspection.

// Queue holds health records awaiting snapshot persistence
type Queue interface {
	// Enqueue adds a record to the queue
	Enqueue(ctx context.Context, record *models.HealthRecord) error

	// Dequeue retrieves records from the queue (up to maxItems)
	// Blocks until at least one record is available or context is cancelled
	Dequeue(ctx context.Context, maxItems int) ([]*models.HealthRecord, error)

	// DequeueWithTimeout retrieves records with a timeout
	// Returns records if available before timeout, empty slice otherwise
	DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]*models.HealthRecord, error)

	// Length returns the current queue length
	Length(ctx context.Context) (int, error)

	// Close shuts down the queue gracefully
	Close() error
}

// DeadLetterQueue holds records that repeatedly failed to persist
type DeadLetterQueue interface {
	// Add stores a failed record together with its error
	Add(ctx context.Context, record *models.HealthRecord, err error) error

	// List retrieves items from the dead letter queue
	List(ctx context.Context, maxItems int) ([]DeadLetterItem, error)

	// Remove removes an item from the dead letter queue
	Remove(ctx context.Context, id string) error

	// Close shuts down the dead letter queue
	Close() error
}

// DeadLetterItem is one failed snapshot with the error that sank it
type DeadLetterItem struct {
	ID        string               `json:"id"`
	Record    *models.HealthRecord `json:"record"`
	Error     string               `json:"error"`
	Timestamp time.Time            `json:"timestamp"`
	Retries   int                  `json:"retries"`
}

// Config holds queue configuration
type Config struct {
	// BatchSize is the maximum number of records to process in a batch
	BatchSize int

	// BatchTimeout is how long to wait before processing a partial batch
	BatchTimeout time.Duration

	// MaxRetries is the maximum number of retry attempts
	MaxRetries int

	// RetryBackoff is the initial backoff duration for retries
	RetryBackoff time.Duration

	// UseRedis indicates whether to use Redis or in-memory queue
	UseRedis bool

	// RedisAddr is the Redis server address (if UseRedis is true)
	RedisAddr string

	// RedisPassword is the Redis password (if UseRedis is true)
	RedisPassword string

	// RedisDB is the Redis database number (if UseRedis is true)
	RedisDB int

	// QueueName is the name/key for the queue
	QueueName string
}

// DefaultConfig returns default queue configuration
func DefaultConfig(queueName string) *Config {
	return &Config{
		BatchSize:    100,
		BatchTimeout: 5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 1 * time.Second,
		UseRedis:     false,
		QueueName:    queueName,
	}
}
