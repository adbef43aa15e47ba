package health

import "errors"

var (
	// ErrProviderNotRegistered is returned when an outcome or query references
	// a provider that was never added to health tracking. Outcomes for unknown
	// providers are rejected instead of silently creating phantom records.
	ErrProviderNotRegistered = errors.New("provider not registered for health tracking")

	// ErrMonitorRunning is returned when starting an already-running monitor
	ErrMonitorRunning = errors.New("monitor already running")

	// ErrMonitorStopped is returned when stopping a monitor that is not running
	ErrMonitorStopped = errors.New("monitor not running")
)
