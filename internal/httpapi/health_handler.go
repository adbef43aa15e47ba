package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/Angus1976/superinsight1225-sub020/internal/models"
	"github.com/Angus1976/superinsight1225-sub020/internal/utils"
)

// HealthQueries is the read-only snapshot query surface backed by
// storage.HealthRepository.
type HealthQueries interface {
	ListAll(ctx context.Context) ([]*models.HealthRecord, error)
	ListUnhealthy(ctx context.Context) ([]*models.HealthRecord, error)
	ListStale(ctx context.Context, olderThan time.Duration) ([]*models.HealthRecord, error)
}

// HealthQueryHandler serves read-only health record queries for
// operational tooling.
type HealthQueryHandler struct {
	queries HealthQueries
}

// NewHealthQueryHandler creates a new health query handler
func NewHealthQueryHandler(queries HealthQueries) *HealthQueryHandler {
	return &HealthQueryHandler{queries: queries}
}

// HealthRecordsResponse wraps a list of health records
type HealthRecordsResponse struct {
	Records []*models.HealthRecord `json:"records"`
	Count   int                    `json:"count"`
}

// List handles GET /v1/health/records
func (h *HealthQueryHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	records, err := h.queries.ListAll(r.Context())
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list health records")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, HealthRecordsResponse{Records: records, Count: len(records)})
}

// ListUnhealthy handles GET /v1/health/unhealthy
func (h *HealthQueryHandler) ListUnhealthy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	records, err := h.queries.ListUnhealthy(r.Context())
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list unhealthy records")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, HealthRecordsResponse{Records: records, Count: len(records)})
}

// ListStale handles GET /v1/health/stale?older_than=10m. Stale records
// point at providers the monitor has stopped probing.
func (h *HealthQueryHandler) ListStale(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	olderThan := 10 * time.Minute
	if raw := r.URL.Query().Get("older_than"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid older_than duration")
			return
		}
		olderThan = parsed
	}

	records, err := h.queries.ListStale(r.Context(), olderThan)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list stale records")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, HealthRecordsResponse{Records: records, Count: len(records)})
}
