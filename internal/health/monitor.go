package health

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Angus1976/superinsight1225-sub020/internal/models"
	"github.com/Angus1976/superinsight1225-sub020/internal/utils"
)

// MonitorConfig holds the probing schedule and the failure threshold.
type MonitorConfig struct {
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold int
	Jitter           time.Duration
}

// DefaultMonitorConfig returns the default probing schedule
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:         60 * time.Second,
		Timeout:          5 * time.Second,
		FailureThreshold: 3,
		Jitter:           6 * time.Second,
	}
}

// Monitor schedules liveness probes for every tracked provider and feeds
// the results into the Store. Each provider runs on its own timer so a
// slow or hanging probe never delays the others.
type Monitor struct {
	cfg    MonitorConfig
	store  Store
	prober Prober
	sink   SnapshotSink // optional
	logger *utils.Logger

	mu        sync.Mutex
	providers map[uuid.UUID]*models.Provider
	cancels   map[uuid.UUID]context.CancelFunc
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	running   bool
}

// NewMonitor creates a monitor over the given store and prober. sink may be
// nil when snapshot persistence is not configured.
func NewMonitor(cfg MonitorConfig, store Store, prober Prober, sink SnapshotSink) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.Timeout <= 0 || cfg.Timeout >= cfg.Interval {
		// Keep probes strictly shorter than the interval they run on
		cfg.Timeout = cfg.Interval / 2
		if cfg.Timeout > 5*time.Second {
			cfg.Timeout = 5 * time.Second
		}
	}
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 3
	}
	if cfg.Jitter < 0 || cfg.Jitter >= cfg.Interval {
		cfg.Jitter = cfg.Interval / 10
	}

	return &Monitor{
		cfg:       cfg,
		store:     store,
		prober:    prober,
		sink:      sink,
		logger:    utils.NewLogger("monitor"),
		providers: make(map[uuid.UUID]*models.Provider),
		cancels:   make(map[uuid.UUID]context.CancelFunc),
	}
}

// Start begins periodic probing of all tracked providers
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return ErrMonitorRunning
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.running = true

	for id, provider := range m.providers {
		m.startWorkerLocked(id, provider)
	}

	m.logger.Info("Health monitor started",
		"providers", len(m.providers),
		"interval", m.cfg.Interval,
		"threshold", m.cfg.FailureThreshold)
	return nil
}

// Stop cancels all provider timers and in-flight probes. Probe results that
// arrive after cancellation are discarded.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrMonitorStopped
	}
	m.running = false
	m.cancel()
	m.cancels = make(map[uuid.UUID]context.CancelFunc)
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("Health monitor stopped")
	return nil
}

// AddProvider registers a provider for health tracking and, if the monitor
// is running and the provider is enabled, starts its probe timer. Disabled
// providers are tracked but never probed.
func (m *Monitor) AddProvider(provider *models.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.providers[provider.ID]; ok {
		return
	}

	m.providers[provider.ID] = provider
	m.store.Register(provider.ID)

	if m.running {
		m.startWorkerLocked(provider.ID, provider)
	}
}

// UpdateProvider replaces a tracked provider's configuration and restarts
// its probe timer so the new Enabled flag and connection details take
// effect. Health history is preserved. Unknown providers are added.
func (m *Monitor) UpdateProvider(provider *models.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.providers[provider.ID]; !ok {
		m.providers[provider.ID] = provider
		m.store.Register(provider.ID)
		if m.running {
			m.startWorkerLocked(provider.ID, provider)
		}
		return
	}

	m.providers[provider.ID] = provider

	if cancel, ok := m.cancels[provider.ID]; ok {
		cancel()
		delete(m.cancels, provider.ID)
	}
	if m.running {
		m.startWorkerLocked(provider.ID, provider)
	}
}

// RemoveProvider stops the provider's timer and drops its health record.
// Other providers are unaffected.
func (m *Monitor) RemoveProvider(providerID uuid.UUID) {
	m.mu.Lock()
	if cancel, ok := m.cancels[providerID]; ok {
		cancel()
		delete(m.cancels, providerID)
	}
	delete(m.providers, providerID)
	m.mu.Unlock()

	m.store.Remove(providerID)

	if m.sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Timeout)
		defer cancel()
		if err := m.sink.Delete(ctx, providerID); err != nil {
			m.logger.Error("Failed to delete health snapshot", "provider_id", providerID, "error", err)
		}
	}
}

// CheckNow runs one out-of-cycle probe for a provider and returns the
// post-update record. Used for manual recovery checks.
func (m *Monitor) CheckNow(ctx context.Context, providerID uuid.UUID) (*models.HealthRecord, error) {
	m.mu.Lock()
	provider, ok := m.providers[providerID]
	m.mu.Unlock()

	if !ok {
		return nil, ErrProviderNotRegistered
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	outcome := m.prober.Probe(probeCtx, provider)
	return m.record(ctx, provider, outcome)
}

// startWorkerLocked launches the probe loop for one provider.
// Caller must hold m.mu.
func (m *Monitor) startWorkerLocked(id uuid.UUID, provider *models.Provider) {
	if !provider.Enabled {
		return
	}

	ctx, cancel := context.WithCancel(m.ctx)
	m.cancels[id] = cancel

	m.wg.Add(1)
	go m.run(ctx, provider)
}

// run probes one provider every Interval (± Jitter) until ctx is
// cancelled. The first probe waits a random fraction of Jitter so
// providers sharing an interval do not fire in lockstep.
func (m *Monitor) run(ctx context.Context, provider *models.Provider) {
	defer m.wg.Done()

	if m.cfg.Jitter > 0 {
		stagger := time.Duration(rand.Int63n(int64(m.cfg.Jitter)))
		select {
		case <-ctx.Done():
			return
		case <-time.After(stagger):
		}
	}

	m.probeOnce(ctx, provider)

	timer := time.NewTimer(m.nextTick())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			m.probeOnce(ctx, provider)
			timer.Reset(m.nextTick())
		}
	}
}

// nextTick returns the delay before the next probe, re-randomized every
// tick so probe timing never drifts back into lockstep.
func (m *Monitor) nextTick() time.Duration {
	if m.cfg.Jitter <= 0 {
		return m.cfg.Interval
	}
	return m.cfg.Interval - m.cfg.Jitter + time.Duration(rand.Int63n(int64(2*m.cfg.Jitter)))
}

// probeOnce runs a single bounded probe and records the outcome
func (m *Monitor) probeOnce(ctx context.Context, provider *models.Provider) {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	outcome := m.prober.Probe(probeCtx, provider)

	// Discard results that arrive after the provider was removed or the
	// monitor was stopped.
	select {
	case <-ctx.Done():
		return
	default:
	}

	if _, err := m.record(ctx, provider, outcome); err != nil {
		m.logger.Error("Failed to record probe outcome",
			"provider", provider.Name, "error", err)
	}
}

// record applies one outcome to the store, logs state transitions and hands
// the post-update record to the snapshot sink.
func (m *Monitor) record(ctx context.Context, provider *models.Provider, outcome Outcome) (*models.HealthRecord, error) {
	before, _ := m.store.Get(provider.ID)

	record, err := m.store.RecordOutcome(provider.ID, outcome.Success, outcome.Err, m.cfg.FailureThreshold)
	if err != nil {
		return nil, err
	}

	if before != nil && before.IsHealthy != record.IsHealthy {
		if record.IsHealthy {
			m.logger.Info("Provider is back up", "provider", provider.Name)
		} else {
			m.logger.Warn("Provider marked unhealthy",
				"provider", provider.Name,
				"consecutive_failures", record.ConsecutiveFailures,
				"last_error", outcome.Err)
		}
	}

	if m.sink != nil {
		// A failed snapshot write is logged and skipped; the in-memory
		// state stays authoritative and the next outcome retries.
		if err := m.sink.Persist(ctx, record); err != nil {
			m.logger.Error("Failed to persist health snapshot",
				"provider", provider.Name, "error", err)
		}
	}

	return record, nil
}

// Running reports whether the monitor is started
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Provider returns the tracked configuration for one provider
func (m *Monitor) Provider(id uuid.UUID) (*models.Provider, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	provider, ok := m.providers[id]
	return provider, ok
}

// Providers returns the IDs currently tracked by the monitor
func (m *Monitor) Providers() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(m.providers))
	for id := range m.providers {
		ids = append(ids, id)
	}
	return ids
}
