package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Angus1976/superinsight1225-sub020/internal/health"
	"github.com/Angus1976/superinsight1225-sub020/internal/models"
	"github.com/Angus1976/superinsight1225-sub020/internal/storage"
	"github.com/Angus1976/superinsight1225-sub020/internal/utils"
)

// ProviderStore is the provider CRUD surface the admin handler needs,
// backed by storage.ProviderRepository.
type ProviderStore interface {
	ProviderDirectory
	GetByName(ctx context.Context, name string) (*models.Provider, error)
	List(ctx context.Context) ([]*models.Provider, error)
	Create(ctx context.Context, provider *models.Provider) error
	Update(ctx context.Context, provider *models.Provider) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ProviderHandler manages provider configurations and keeps the monitor in
// sync: created providers start being tracked, updated providers get their
// probe schedule refreshed, deleted providers stop being monitored and
// lose their health row via the schema cascade.
type ProviderHandler struct {
	providers  ProviderStore
	monitor    *health.Monitor
	encryption *storage.Encryption // optional
	logger     *utils.Logger
}

// NewProviderHandler creates a new provider admin handler. encryption may
// be nil; credentials are then rejected rather than stored in the clear.
func NewProviderHandler(providers ProviderStore, monitor *health.Monitor, encryption *storage.Encryption) *ProviderHandler {
	return &ProviderHandler{
		providers:  providers,
		monitor:    monitor,
		encryption: encryption,
		logger:     utils.NewLogger("httpapi"),
	}
}

// CreateProviderRequest is the payload for creating a provider
type CreateProviderRequest struct {
	Name        string                 `json:"name"`
	DisplayName string                 `json:"display_name"`
	Type        string                 `json:"type"`
	Endpoint    string                 `json:"endpoint"`
	Credentials map[string]string      `json:"credentials,omitempty"`
	ModelParams map[string]interface{} `json:"model_params,omitempty"`
	Priority    int                    `json:"priority"`
	Enabled     bool                   `json:"enabled"`
}

// UpdateProviderRequest is the payload for updating a provider; nil fields
// are left unchanged.
type UpdateProviderRequest struct {
	DisplayName *string                 `json:"display_name,omitempty"`
	Endpoint    *string                 `json:"endpoint,omitempty"`
	Credentials *map[string]string      `json:"credentials,omitempty"`
	ModelParams *map[string]interface{} `json:"model_params,omitempty"`
	Priority    *int                    `json:"priority,omitempty"`
	Enabled     *bool                   `json:"enabled,omitempty"`
}

// ProviderResponse is a provider without its credentials
type ProviderResponse struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	DisplayName string                 `json:"display_name"`
	Type        string                 `json:"type"`
	Endpoint    string                 `json:"endpoint"`
	ModelParams map[string]interface{} `json:"model_params"`
	Priority    int                    `json:"priority"`
	Enabled     bool                   `json:"enabled"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// ProvidersResponse wraps a provider listing
type ProvidersResponse struct {
	Providers []ProviderResponse `json:"providers"`
	Count     int                `json:"count"`
}

func providerResponse(p *models.Provider) ProviderResponse {
	params := map[string]interface{}(p.ModelParams)
	if params == nil {
		params = make(map[string]interface{})
	}
	return ProviderResponse{
		ID:          p.ID.String(),
		Name:        p.Name,
		DisplayName: p.DisplayName,
		Type:        p.ProviderType,
		Endpoint:    p.Endpoint,
		ModelParams: params,
		Priority:    p.Priority,
		Enabled:     p.Enabled,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// Handle dispatches /v1/providers and its subpaths:
//
//	GET    /v1/providers       list all providers
//	POST   /v1/providers       create a provider
//	GET    /v1/providers/{id}  get one provider
//	PUT    /v1/providers/{id}  update a provider
//	DELETE /v1/providers/{id}  delete a provider
func (h *ProviderHandler) Handle(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/providers"), "/")

	if rest == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	if strings.Contains(rest, "/") {
		utils.RespondWithError(w, http.StatusNotFound, "Not found")
		return
	}

	id, err := uuid.Parse(rest)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid provider ID")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodPut:
		h.update(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *ProviderHandler) list(w http.ResponseWriter, r *http.Request) {
	providers, err := h.providers.List(r.Context())
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list providers")
		return
	}

	responses := make([]ProviderResponse, 0, len(providers))
	for _, p := range providers {
		responses = append(responses, providerResponse(p))
	}

	utils.RespondWithJSON(w, http.StatusOK, ProvidersResponse{Providers: responses, Count: len(responses)})
}

func (h *ProviderHandler) get(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	provider, err := h.providers.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrProviderNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Provider not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get provider")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, providerResponse(provider))
}

func (h *ProviderHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateProviderRequest
	if err := decodeJSON(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if req.Name == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Provider name is required")
		return
	}
	if !validProviderType(req.Type) {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid provider type")
		return
	}

	creds, ok := h.encryptCredentials(w, req.Credentials)
	if !ok {
		return
	}

	if _, err := h.providers.GetByName(r.Context(), req.Name); err == nil {
		utils.RespondWithError(w, http.StatusConflict, "Provider with this name already exists")
		return
	} else if !errors.Is(err, storage.ErrProviderNotFound) {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create provider")
		return
	}

	provider := &models.Provider{
		ID:                   uuid.New(),
		Name:                 req.Name,
		DisplayName:          req.DisplayName,
		ProviderType:         req.Type,
		Endpoint:             req.Endpoint,
		EncryptedCredentials: creds,
		ModelParams:          models.JSONB(req.ModelParams),
		Priority:             req.Priority,
		Enabled:              req.Enabled,
	}

	if err := h.providers.Create(r.Context(), provider); err != nil {
		if strings.Contains(err.Error(), "duplicate") || strings.Contains(err.Error(), "unique") {
			utils.RespondWithError(w, http.StatusConflict, "Provider with this name already exists")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create provider")
		return
	}

	h.monitor.AddProvider(provider)
	h.logger.Info("Provider created", "provider", provider.Name, "enabled", provider.Enabled)

	utils.RespondWithJSON(w, http.StatusCreated, providerResponse(provider))
}

func (h *ProviderHandler) update(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var req UpdateProviderRequest
	if err := decodeJSON(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	provider, err := h.providers.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrProviderNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Provider not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get provider")
		return
	}

	// Copy before mutating; the cached config may be shared with readers.
	updated := *provider

	if req.DisplayName != nil {
		updated.DisplayName = *req.DisplayName
	}
	if req.Endpoint != nil {
		updated.Endpoint = *req.Endpoint
	}
	if req.ModelParams != nil {
		updated.ModelParams = models.JSONB(*req.ModelParams)
	}
	if req.Priority != nil {
		updated.Priority = *req.Priority
	}
	if req.Enabled != nil {
		updated.Enabled = *req.Enabled
	}
	if req.Credentials != nil {
		creds, ok := h.encryptCredentials(w, *req.Credentials)
		if !ok {
			return
		}
		updated.EncryptedCredentials = creds
	}

	if err := h.providers.Update(r.Context(), &updated); err != nil {
		if errors.Is(err, storage.ErrProviderNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Provider not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to update provider")
		return
	}

	h.monitor.UpdateProvider(&updated)
	h.logger.Info("Provider updated", "provider", updated.Name, "enabled", updated.Enabled)

	utils.RespondWithJSON(w, http.StatusOK, providerResponse(&updated))
}

func (h *ProviderHandler) delete(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	if err := h.providers.Delete(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrProviderNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Provider not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to delete provider")
		return
	}

	h.monitor.RemoveProvider(id)
	h.logger.Info("Provider deleted", "provider_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// encryptCredentials encrypts the given credentials, writing the error
// response itself when encryption is unavailable or fails.
func (h *ProviderHandler) encryptCredentials(w http.ResponseWriter, creds map[string]string) (models.JSONB, bool) {
	if len(creds) == 0 {
		return nil, true
	}
	if h.encryption == nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Credential storage requires an encryption key")
		return nil, false
	}

	encrypted, err := h.encryption.EncryptCredentials(creds)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to encrypt credentials")
		return nil, false
	}
	return encrypted, true
}

func validProviderType(t string) bool {
	switch models.ProviderType(t) {
	case models.ProviderTypeOpenAI, models.ProviderTypeVertexAI,
		models.ProviderTypeBedrock, models.ProviderTypeGeneric:
		return true
	default:
		return false
	}
}
