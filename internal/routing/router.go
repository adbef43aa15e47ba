package routing

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/Angus1976/superinsight1225-sub020/internal/health"
	"github.com/Angus1976/superinsight1225-sub020/internal/models"
	"github.com/Angus1976/superinsight1225-sub020/internal/utils"
)

// ErrNoProviderAvailable is returned by Select when no candidate is both
// enabled and healthy. It is a signal to the caller, not a fault: the
// caller decides whether to queue, reject or fall back.
var ErrNoProviderAvailable = errors.New("no provider available")

// ErrProviderDisabled is returned by ReportOutcome for providers that are
// tracked but administratively disabled. Disabled providers take no
// traffic, so an outcome against one is a caller error.
var ErrProviderDisabled = errors.New("provider is disabled")

// ProviderSource resolves a tracked provider's configuration from memory.
// The monitor implements it; outcome reporting stays off the database.
type ProviderSource interface {
	Provider(id uuid.UUID) (*models.Provider, bool)
}

// Switcher picks a provider for each inference request and feeds real
// request outcomes back into the health store, so live traffic failures
// count toward the failure threshold between probe ticks.
type Switcher struct {
	store     health.Store
	sink      health.SnapshotSink // optional
	source    ProviderSource      // optional
	threshold int
	logger    *utils.Logger
}

// NewSwitcher creates a switcher over the given health store. threshold is
// the same consecutive-failure threshold the monitor applies; sink and
// source may be nil.
func NewSwitcher(store health.Store, sink health.SnapshotSink, source ProviderSource, threshold int) *Switcher {
	if threshold < 1 {
		threshold = 3
	}
	return &Switcher{
		store:     store,
		sink:      sink,
		source:    source,
		threshold: threshold,
		logger:    utils.NewLogger("switcher"),
	}
}

// Select returns the best eligible provider from candidates: enabled,
// currently healthy, lowest priority value, ties broken by ID for
// determinism. Selection is a synchronous in-memory read; it never waits
// for a provider to recover.
func (s *Switcher) Select(candidates []*models.Provider) (uuid.UUID, error) {
	healthy := s.store.ListHealthy()

	var best *models.Provider
	for _, candidate := range candidates {
		if candidate == nil || !candidate.Enabled {
			continue
		}
		if _, ok := healthy[candidate.ID]; !ok {
			continue
		}
		if best == nil || better(candidate, best) {
			best = candidate
		}
	}

	if best == nil {
		return uuid.Nil, ErrNoProviderAvailable
	}
	return best.ID, nil
}

// better reports whether a should be preferred over b
func better(a, b *models.Provider) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return strings.Compare(a.ID.String(), b.ID.String()) < 0
}

// ReportOutcome records the result of a real request against a provider,
// using the same path as scheduled probes. Unknown providers are rejected
// with health.ErrProviderNotRegistered rather than creating phantom
// records; disabled providers are rejected with ErrProviderDisabled.
func (s *Switcher) ReportOutcome(ctx context.Context, providerID uuid.UUID, success bool, errMsg string) error {
	if s.source != nil {
		provider, ok := s.source.Provider(providerID)
		if !ok {
			return health.ErrProviderNotRegistered
		}
		if !provider.Enabled {
			return ErrProviderDisabled
		}
	}

	record, err := s.store.RecordOutcome(providerID, success, errMsg, s.threshold)
	if err != nil {
		return err
	}

	if !success && !record.IsHealthy {
		s.logger.Warn("Provider unhealthy after request failure",
			"provider_id", providerID,
			"consecutive_failures", record.ConsecutiveFailures)
	}

	if s.sink != nil {
		if err := s.sink.Persist(ctx, record); err != nil {
			s.logger.Error("Failed to persist health snapshot",
				"provider_id", providerID, "error", err)
		}
	}

	return nil
}
