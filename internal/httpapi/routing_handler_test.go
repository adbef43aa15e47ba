package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/Angus1976/superinsight1225-sub020/internal/health"
	"github.com/Angus1976/superinsight1225-sub020/internal/models"
	"github.com/Angus1976/superinsight1225-sub020/internal/routing"
	"github.com/Angus1976/superinsight1225-sub020/internal/storage"
)

// fakeDirectory serves provider configs from a map
type fakeDirectory struct {
	byID map[uuid.UUID]*models.Provider
}

func newFakeDirectory(providers ...*models.Provider) *fakeDirectory {
	d := &fakeDirectory{byID: make(map[uuid.UUID]*models.Provider)}
	for _, p := range providers {
		d.byID[p.ID] = p
	}
	return d
}

func (d *fakeDirectory) GetByID(ctx context.Context, id uuid.UUID) (*models.Provider, error) {
	p, ok := d.byID[id]
	if !ok {
		return nil, storage.ErrProviderNotFound
	}
	return p, nil
}

// Provider makes the directory usable as a routing.ProviderSource
func (d *fakeDirectory) Provider(id uuid.UUID) (*models.Provider, bool) {
	p, ok := d.byID[id]
	return p, ok
}

func (d *fakeDirectory) ListEnabled(ctx context.Context) ([]*models.Provider, error) {
	out := make([]*models.Provider, 0, len(d.byID))
	for _, p := range d.byID {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out, nil
}

func routingFixture(t *testing.T) (*RouteHandler, *health.MemoryStore, *models.Provider, *models.Provider) {
	t.Helper()

	primary := &models.Provider{ID: uuid.New(), Name: "primary", Priority: 1, Enabled: true}
	backup := &models.Provider{ID: uuid.New(), Name: "backup", Priority: 2, Enabled: true}

	store := health.NewMemoryStore()
	store.Register(primary.ID)
	store.Register(backup.ID)

	dir := newFakeDirectory(primary, backup)
	switcher := routing.NewSwitcher(store, nil, dir, 3)
	handler := NewRouteHandler(switcher, dir)
	return handler, store, primary, backup
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func TestRouteHandler_SelectReturnsPrimary(t *testing.T) {
	handler, _, primary, _ := routingFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/route/select", nil)
	w := httptest.NewRecorder()
	handler.Select(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp SelectResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.ProviderID != primary.ID.String() {
		t.Errorf("Expected primary %s, got %s", primary.ID, resp.ProviderID)
	}
}

func TestRouteHandler_SelectFailsOverAfterOutcomes(t *testing.T) {
	handler, store, primary, backup := routingFixture(t)

	for i := 0; i < 3; i++ {
		store.RecordOutcome(primary.ID, false, "502 bad gateway", 3)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/route/select", nil)
	w := httptest.NewRecorder()
	handler.Select(w, req)

	var resp SelectResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.ProviderID != backup.ID.String() {
		t.Errorf("Expected failover to backup %s, got %s", backup.ID, resp.ProviderID)
	}
}

func TestRouteHandler_SelectWithCandidates(t *testing.T) {
	handler, _, _, backup := routingFixture(t)

	w := postJSON(t, handler.Select, "/v1/route/select", SelectRequest{
		CandidateIDs: []string{backup.ID.String()},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp SelectResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.ProviderID != backup.ID.String() {
		t.Errorf("Expected backup %s, got %s", backup.ID, resp.ProviderID)
	}
}

func TestRouteHandler_SelectNoProviderAvailable(t *testing.T) {
	handler, store, primary, backup := routingFixture(t)

	for i := 0; i < 3; i++ {
		store.RecordOutcome(primary.ID, false, "down", 3)
		store.RecordOutcome(backup.ID, false, "down", 3)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/route/select", nil)
	w := httptest.NewRecorder()
	handler.Select(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", w.Code)
	}
}

func TestRouteHandler_SelectUnknownCandidate(t *testing.T) {
	handler, _, _, _ := routingFixture(t)

	w := postJSON(t, handler.Select, "/v1/route/select", SelectRequest{
		CandidateIDs: []string{uuid.NewString()},
	})

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown candidate, got %d", w.Code)
	}
}

func TestRouteHandler_SelectMethodNotAllowed(t *testing.T) {
	handler, _, _, _ := routingFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/route/select", nil)
	w := httptest.NewRecorder()
	handler.Select(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", w.Code)
	}
}

func TestRouteHandler_OutcomeRecordsFailure(t *testing.T) {
	handler, store, primary, _ := routingFixture(t)

	w := postJSON(t, handler.Outcome, "/v1/route/outcome", OutcomeRequest{
		ProviderID: primary.ID.String(),
		Success:    false,
		Error:      "upstream timeout",
	})

	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d: %s", w.Code, w.Body.String())
	}

	record, _ := store.Get(primary.ID)
	if record.ConsecutiveFailures != 1 {
		t.Errorf("Expected 1 failure recorded, got %d", record.ConsecutiveFailures)
	}
	if record.LastError == nil || *record.LastError != "upstream timeout" {
		t.Errorf("Expected last error recorded, got %v", record.LastError)
	}
}

func TestRouteHandler_OutcomeUnknownProvider(t *testing.T) {
	handler, _, _, _ := routingFixture(t)

	w := postJSON(t, handler.Outcome, "/v1/route/outcome", OutcomeRequest{
		ProviderID: uuid.NewString(),
		Success:    false,
		Error:      "boom",
	})

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestRouteHandler_OutcomeDisabledProvider(t *testing.T) {
	disabled := &models.Provider{ID: uuid.New(), Name: "disabled", Priority: 1, Enabled: false}
	store := health.NewMemoryStore()
	store.Register(disabled.ID)

	dir := newFakeDirectory(disabled)
	handler := NewRouteHandler(routing.NewSwitcher(store, nil, dir, 3), dir)

	w := postJSON(t, handler.Outcome, "/v1/route/outcome", OutcomeRequest{
		ProviderID: disabled.ID.String(),
		Success:    false,
		Error:      "boom",
	})

	if w.Code != http.StatusConflict {
		t.Fatalf("Expected 409 for disabled provider, got %d", w.Code)
	}

	record, _ := store.Get(disabled.ID)
	if record.ConsecutiveFailures != 0 {
		t.Error("Outcome for disabled provider changed its health state")
	}
}

func TestRouteHandler_OutcomeInvalidPayload(t *testing.T) {
	handler, _, _, _ := routingFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/route/outcome", bytes.NewReader([]byte(`{"unknown_field":1}`)))
	w := httptest.NewRecorder()
	handler.Outcome(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown field, got %d", w.Code)
	}
}
