package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Angus1976/superinsight1225-sub020/internal/health"
	"github.com/Angus1976/superinsight1225-sub020/internal/models"
	"github.com/Angus1976/superinsight1225-sub020/internal/storage"
)

// fakeProviderStore is an in-memory ProviderStore
type fakeProviderStore struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*models.Provider
}

func newFakeProviderStore(providers ...*models.Provider) *fakeProviderStore {
	s := &fakeProviderStore{byID: make(map[uuid.UUID]*models.Provider)}
	for _, p := range providers {
		s.byID[p.ID] = p
	}
	return s
}

func (s *fakeProviderStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, storage.ErrProviderNotFound
	}
	return p, nil
}

func (s *fakeProviderStore) GetByName(ctx context.Context, name string) (*models.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.byID {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, storage.ErrProviderNotFound
}

func (s *fakeProviderStore) List(ctx context.Context) ([]*models.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Provider, 0, len(s.byID))
	for _, p := range s.byID {
		out = append(out, p)
	}
	return out, nil
}

func (s *fakeProviderStore) ListEnabled(ctx context.Context) ([]*models.Provider, error) {
	all, _ := s.List(ctx)
	out := all[:0]
	for _, p := range all {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeProviderStore) Create(ctx context.Context, provider *models.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	provider.CreatedAt = time.Now()
	provider.UpdatedAt = provider.CreatedAt
	s.byID[provider.ID] = provider
	return nil
}

func (s *fakeProviderStore) Update(ctx context.Context, provider *models.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[provider.ID]; !ok {
		return storage.ErrProviderNotFound
	}
	provider.UpdatedAt = time.Now()
	s.byID[provider.ID] = provider
	return nil
}

func (s *fakeProviderStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return storage.ErrProviderNotFound
	}
	delete(s.byID, id)
	return nil
}

func providerFixture(t *testing.T, existing ...*models.Provider) (*ProviderHandler, *fakeProviderStore, *health.Monitor, *health.MemoryStore) {
	t.Helper()

	healthStore := health.NewMemoryStore()
	prober := health.ProberFunc(func(ctx context.Context, p *models.Provider) health.Outcome {
		return health.Outcome{Success: true}
	})
	monitor := health.NewMonitor(health.MonitorConfig{
		Interval:         time.Hour,
		Timeout:          time.Second,
		FailureThreshold: 3,
	}, healthStore, prober, nil)

	store := newFakeProviderStore(existing...)
	for _, p := range existing {
		monitor.AddProvider(p)
	}

	handler := NewProviderHandler(store, monitor, nil)
	return handler, store, monitor, healthStore
}

func TestProviderHandler_CreateStartsTracking(t *testing.T) {
	handler, store, monitor, healthStore := providerFixture(t)

	w := postJSON(t, handler.Handle, "/v1/providers", CreateProviderRequest{
		Name:     "primary",
		Type:     string(models.ProviderTypeOpenAI),
		Endpoint: "https://api.example.com",
		Priority: 1,
		Enabled:  true,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp ProviderResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	id, err := uuid.Parse(resp.ID)
	if err != nil {
		t.Fatalf("Invalid ID in response: %v", err)
	}
	if _, err := store.GetByID(context.Background(), id); err != nil {
		t.Error("Provider not stored")
	}
	if _, ok := monitor.Provider(id); !ok {
		t.Error("Created provider not tracked by the monitor")
	}
	if _, ok := healthStore.Get(id); !ok {
		t.Error("Created provider has no health record")
	}
}

func TestProviderHandler_CreateDuplicateName(t *testing.T) {
	existing := &models.Provider{ID: uuid.New(), Name: "primary", ProviderType: "openai", Enabled: true}
	handler, _, _, _ := providerFixture(t, existing)

	w := postJSON(t, handler.Handle, "/v1/providers", CreateProviderRequest{
		Name: "primary",
		Type: string(models.ProviderTypeOpenAI),
	})
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate name, got %d", w.Code)
	}
}

func TestProviderHandler_CreateInvalidType(t *testing.T) {
	handler, _, _, _ := providerFixture(t)

	w := postJSON(t, handler.Handle, "/v1/providers", CreateProviderRequest{
		Name: "odd",
		Type: "carrier-pigeon",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid type, got %d", w.Code)
	}
}

func TestProviderHandler_CreateCredentialsWithoutKey(t *testing.T) {
	handler, _, _, _ := providerFixture(t)

	w := postJSON(t, handler.Handle, "/v1/providers", CreateProviderRequest{
		Name:        "secure",
		Type:        string(models.ProviderTypeOpenAI),
		Credentials: map[string]string{"api_key": "sk-test"},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without an encryption key, got %d", w.Code)
	}
}

func TestProviderHandler_ListAndGet(t *testing.T) {
	existing := &models.Provider{ID: uuid.New(), Name: "primary", ProviderType: "openai", Enabled: true}
	handler, _, _, _ := providerFixture(t, existing)

	w := httptest.NewRecorder()
	handler.Handle(w, httptest.NewRequest(http.MethodGet, "/v1/providers", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var listResp ProvidersResponse
	if err := json.Unmarshal(w.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if listResp.Count != 1 {
		t.Errorf("Expected 1 provider, got %d", listResp.Count)
	}

	w = httptest.NewRecorder()
	handler.Handle(w, httptest.NewRequest(http.MethodGet, "/v1/providers/"+existing.ID.String(), nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	handler.Handle(w, httptest.NewRequest(http.MethodGet, "/v1/providers/"+uuid.NewString(), nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown provider, got %d", w.Code)
	}
}

func TestProviderHandler_UpdateDisableReachesMonitor(t *testing.T) {
	existing := &models.Provider{ID: uuid.New(), Name: "primary", ProviderType: "openai", Enabled: true}
	handler, _, monitor, _ := providerFixture(t, existing)

	enabled := false
	body, _ := json.Marshal(UpdateProviderRequest{Enabled: &enabled})
	req := httptest.NewRequest(http.MethodPut, "/v1/providers/"+existing.ID.String(), bytes.NewReader(body))
	w := httptest.NewRecorder()
	handler.Handle(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	tracked, ok := monitor.Provider(existing.ID)
	if !ok {
		t.Fatal("Provider dropped from monitoring on update")
	}
	if tracked.Enabled {
		t.Error("Disable did not reach the monitor")
	}
}

func TestProviderHandler_DeleteStopsMonitoring(t *testing.T) {
	existing := &models.Provider{ID: uuid.New(), Name: "primary", ProviderType: "openai", Enabled: true}
	handler, store, monitor, healthStore := providerFixture(t, existing)

	req := httptest.NewRequest(http.MethodDelete, "/v1/providers/"+existing.ID.String(), nil)
	w := httptest.NewRecorder()
	handler.Handle(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d: %s", w.Code, w.Body.String())
	}

	if _, err := store.GetByID(context.Background(), existing.ID); err != storage.ErrProviderNotFound {
		t.Error("Provider row not deleted")
	}
	if _, ok := monitor.Provider(existing.ID); ok {
		t.Error("Deleted provider still tracked by the monitor")
	}
	if _, ok := healthStore.Get(existing.ID); ok {
		t.Error("Deleted provider still has a health record")
	}
}

func TestProviderHandler_DeleteUnknownProvider(t *testing.T) {
	handler, _, _, _ := providerFixture(t)

	req := httptest.NewRequest(http.MethodDelete, "/v1/providers/"+uuid.NewString(), nil)
	w := httptest.NewRecorder()
	handler.Handle(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}
