package storage

import "errors"

var (
	// ErrProviderNotFound is returned when a provider is not found
	ErrProviderNotFound = errors.New("provider not found")

	// ErrHealthRecordNotFound is returned when a health record is not found
	ErrHealthRecordNotFound = errors.New("health record not found")
)
