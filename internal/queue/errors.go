package queue

import "errors"

var (
	// ErrQueueClosed is returned when operating on a closed queue
	ErrQueueClosed = errors.New("snapshot queue is closed")

	// ErrItemNotFound is returned when a dead letter item is not found
	ErrItemNotFound = errors.New("dead letter item not found")

	// ErrMaxRetriesExceeded is returned when a snapshot exhausted its retries
	ErrMaxRetriesExceeded = errors.New("snapshot retries exceeded")
)
