package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/Angus1976/superinsight1225-sub020/internal/health"
	"github.com/Angus1976/superinsight1225-sub020/internal/models"
	"github.com/Angus1976/superinsight1225-sub020/internal/routing"
	"github.com/Angus1976/superinsight1225-sub020/internal/utils"
)

// RouteHandler is the caller-facing routing surface: select a provider for
// a request, and report the request's outcome back into health tracking.
type RouteHandler struct {
	switcher  *routing.Switcher
	providers ProviderDirectory
}

// NewRouteHandler creates a new route handler
func NewRouteHandler(switcher *routing.Switcher, providers ProviderDirectory) *RouteHandler {
	return &RouteHandler{switcher: switcher, providers: providers}
}

// SelectRequest optionally narrows the candidate set; with no candidates
// every enabled provider is considered.
type SelectRequest struct {
	CandidateIDs []string `json:"candidate_ids,omitempty"`
}

// SelectResponse carries the chosen provider
type SelectResponse struct {
	ProviderID string `json:"provider_id"`
}

// Select handles POST /v1/route/select
func (h *RouteHandler) Select(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req SelectRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
			return
		}
	}

	candidates, err := h.candidates(r, req.CandidateIDs)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	providerID, err := h.switcher.Select(candidates)
	if err != nil {
		if errors.Is(err, routing.ErrNoProviderAvailable) {
			utils.RespondWithError(w, http.StatusServiceUnavailable, "No provider available")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Selection failed")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, SelectResponse{ProviderID: providerID.String()})
}

func (h *RouteHandler) candidates(r *http.Request, ids []string) ([]*models.Provider, error) {
	if len(ids) == 0 {
		return h.providers.ListEnabled(r.Context())
	}

	candidates := make([]*models.Provider, 0, len(ids))
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, errors.New("invalid candidate ID: " + raw)
		}
		provider, err := h.providers.GetByID(r.Context(), id)
		if err != nil {
			return nil, errors.New("unknown candidate ID: " + raw)
		}
		candidates = append(candidates, provider)
	}
	return candidates, nil
}

// OutcomeRequest reports the result of a real request against a provider
type OutcomeRequest struct {
	ProviderID string `json:"provider_id"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// Outcome handles POST /v1/route/outcome, the request-driven health
// feedback path.
func (h *RouteHandler) Outcome(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req OutcomeRequest
	if err := decodeJSON(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	providerID, err := uuid.Parse(req.ProviderID)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid provider ID")
		return
	}

	if err := h.switcher.ReportOutcome(r.Context(), providerID, req.Success, req.Error); err != nil {
		if errors.Is(err, health.ErrProviderNotRegistered) {
			utils.RespondWithError(w, http.StatusNotFound, "Provider not registered for health tracking")
			return
		}
		if errors.Is(err, routing.ErrProviderDisabled) {
			utils.RespondWithError(w, http.StatusConflict, "Provider is disabled")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to record outcome")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// decodeJSON decodes a request body, rejecting unknown fields
func decodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}
