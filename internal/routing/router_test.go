package routing

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/Angus1976/superinsight1225-sub020/internal/health"
	"github.com/Angus1976/superinsight1225-sub020/internal/models"
)

func newProvider(name string, priority int, enabled bool) *models.Provider {
	return &models.Provider{
		ID:       uuid.New(),
		Name:     name,
		Priority: priority,
		Enabled:  enabled,
	}
}

// fakeSource is an in-memory provider lookup standing in for the monitor
type fakeSource map[uuid.UUID]*models.Provider

func (s fakeSource) Provider(id uuid.UUID) (*models.Provider, bool) {
	p, ok := s[id]
	return p, ok
}

func setup(providers ...*models.Provider) (*Switcher, *health.MemoryStore) {
	store := health.NewMemoryStore()
	source := make(fakeSource, len(providers))
	for _, p := range providers {
		store.Register(p.ID)
		source[p.ID] = p
	}
	return NewSwitcher(store, nil, source, 3), store
}

func markUnhealthy(store *health.MemoryStore, id uuid.UUID) {
	for i := 0; i < 3; i++ {
		store.RecordOutcome(id, false, "simulated failure", 3)
	}
}

func TestSwitcher_SelectLowestPriority(t *testing.T) {
	primary := newProvider("primary", 1, true)
	backup := newProvider("backup", 2, true)
	switcher, _ := setup(primary, backup)

	id, err := switcher.Select([]*models.Provider{backup, primary})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if id != primary.ID {
		t.Errorf("Expected primary, got %s", id)
	}
}

func TestSwitcher_SelectSkipsUnhealthy(t *testing.T) {
	primary := newProvider("primary", 1, true)
	backup := newProvider("backup", 2, true)
	switcher, store := setup(primary, backup)

	markUnhealthy(store, primary.ID)

	id, err := switcher.Select([]*models.Provider{primary, backup})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if id != backup.ID {
		t.Errorf("Expected backup after primary went unhealthy, got %s", id)
	}
}

func TestSwitcher_SelectSkipsDisabled(t *testing.T) {
	disabled := newProvider("disabled", 1, false)
	enabled := newProvider("enabled", 2, true)
	switcher, _ := setup(disabled, enabled)

	id, err := switcher.Select([]*models.Provider{disabled, enabled})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if id != enabled.ID {
		t.Errorf("Disabled provider was selected")
	}
}

func TestSwitcher_SelectSkipsUnregistered(t *testing.T) {
	registered := newProvider("registered", 2, true)
	unknown := newProvider("unknown", 1, true)
	switcher, _ := setup(registered) // unknown never registered

	id, err := switcher.Select([]*models.Provider{unknown, registered})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if id != registered.ID {
		t.Errorf("Unregistered provider was selected")
	}
}

func TestSwitcher_SelectExhausted(t *testing.T) {
	p1 := newProvider("p1", 1, true)
	p2 := newProvider("p2", 2, true)
	switcher, store := setup(p1, p2)

	markUnhealthy(store, p1.ID)
	markUnhealthy(store, p2.ID)

	_, err := switcher.Select([]*models.Provider{p1, p2})
	if err != ErrNoProviderAvailable {
		t.Fatalf("Expected ErrNoProviderAvailable, got %v", err)
	}

	_, err = switcher.Select(nil)
	if err != ErrNoProviderAvailable {
		t.Fatalf("Expected ErrNoProviderAvailable for empty candidates, got %v", err)
	}
}

func TestSwitcher_SelectDeterministicTieBreak(t *testing.T) {
	a := newProvider("a", 1, true)
	b := newProvider("b", 1, true)
	switcher, _ := setup(a, b)

	want := a.ID
	if b.ID.String() < a.ID.String() {
		want = b.ID
	}

	// Same inputs, same answer, regardless of candidate order
	for i := 0; i < 10; i++ {
		id, err := switcher.Select([]*models.Provider{a, b})
		if err != nil {
			t.Fatalf("Select failed: %v", err)
		}
		if id != want {
			t.Fatalf("Tie-break not deterministic: got %s, want %s", id, want)
		}

		id, _ = switcher.Select([]*models.Provider{b, a})
		if id != want {
			t.Fatalf("Tie-break depends on candidate order: got %s, want %s", id, want)
		}
	}
}

func TestSwitcher_FailoverAndRecovery(t *testing.T) {
	primary := newProvider("primary", 1, true)
	backup := newProvider("backup", 2, true)
	switcher, _ := setup(primary, backup)
	candidates := []*models.Provider{primary, backup}
	ctx := context.Background()

	// Primary wins while healthy
	id, _ := switcher.Select(candidates)
	if id != primary.ID {
		t.Fatalf("Expected primary, got %s", id)
	}

	// Two request failures are not enough to fail over
	switcher.ReportOutcome(ctx, primary.ID, false, "502 bad gateway")
	switcher.ReportOutcome(ctx, primary.ID, false, "502 bad gateway")
	id, _ = switcher.Select(candidates)
	if id != primary.ID {
		t.Fatal("Failed over before reaching the threshold")
	}

	// Third consecutive failure trips the threshold
	switcher.ReportOutcome(ctx, primary.ID, false, "502 bad gateway")
	id, err := switcher.Select(candidates)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if id != backup.ID {
		t.Fatal("Expected failover to backup at the threshold")
	}

	// One success brings primary straight back
	switcher.ReportOutcome(ctx, primary.ID, true, "")
	id, _ = switcher.Select(candidates)
	if id != primary.ID {
		t.Fatal("Primary not preferred again after recovery")
	}
}

func TestSwitcher_SuccessBetweenFailuresResetsStreak(t *testing.T) {
	provider := newProvider("intermittent", 1, true)
	switcher, store := setup(provider)
	ctx := context.Background()

	switcher.ReportOutcome(ctx, provider.ID, false, "timeout")
	switcher.ReportOutcome(ctx, provider.ID, false, "timeout")
	switcher.ReportOutcome(ctx, provider.ID, true, "")
	switcher.ReportOutcome(ctx, provider.ID, false, "timeout")
	switcher.ReportOutcome(ctx, provider.ID, false, "timeout")

	record, _ := store.Get(provider.ID)
	if !record.IsHealthy {
		t.Error("Non-consecutive failures must not trip the threshold")
	}
	if record.ConsecutiveFailures != 2 {
		t.Errorf("Expected streak of 2, got %d", record.ConsecutiveFailures)
	}
}

func TestSwitcher_ReportOutcomeDisabledProvider(t *testing.T) {
	disabled := newProvider("disabled", 1, false)
	switcher, store := setup(disabled)

	err := switcher.ReportOutcome(context.Background(), disabled.ID, false, "boom")
	if err != ErrProviderDisabled {
		t.Fatalf("Expected ErrProviderDisabled, got %v", err)
	}

	record, _ := store.Get(disabled.ID)
	if record.ConsecutiveFailures != 0 {
		t.Error("Outcome for disabled provider changed its health state")
	}
}

func TestSwitcher_ReportOutcomeUnknownProvider(t *testing.T) {
	switcher, store := setup()

	err := switcher.ReportOutcome(context.Background(), uuid.New(), false, "boom")
	if err != health.ErrProviderNotRegistered {
		t.Fatalf("Expected ErrProviderNotRegistered, got %v", err)
	}
	if len(store.List()) != 0 {
		t.Error("Outcome for unknown provider created a record")
	}
}
