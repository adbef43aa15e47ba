package health

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Angus1976/superinsight1225-sub020/internal/models"
)

// Outcome is the normalized verdict of one liveness check or one real
// request. All probe failure modes (network error, timeout, non-2xx,
// malformed payload) end up here as Success=false with a readable Err;
// probes never surface errors to their caller.
type Outcome struct {
	Success bool
	Err     string
	Latency time.Duration
}

// Prober performs one bounded liveness check against a provider. The
// implementation must honor ctx cancellation and return within the
// deadline set by the caller.
type Prober interface {
	Probe(ctx context.Context, provider *models.Provider) Outcome
}

// ProberFunc adapts a function to the Prober interface
type ProberFunc func(ctx context.Context, provider *models.Provider) Outcome

func (f ProberFunc) Probe(ctx context.Context, provider *models.Provider) Outcome {
	return f(ctx, provider)
}

// SnapshotSink receives post-update health records for durable persistence.
// Persist is expected to be cheap (enqueue, not a synchronous write); a
// failed persist never affects the in-memory health state.
type SnapshotSink interface {
	Persist(ctx context.Context, record *models.HealthRecord) error
	Delete(ctx context.Context, providerID uuid.UUID) error
}
