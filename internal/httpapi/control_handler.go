package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/Angus1976/superinsight1225-sub020/internal/health"
	"github.com/Angus1976/superinsight1225-sub020/internal/models"
	"github.com/Angus1976/superinsight1225-sub020/internal/queue"
	"github.com/Angus1976/superinsight1225-sub020/internal/utils"
)

// ProviderDirectory resolves provider configurations, backed by
// storage.ProviderRepository.
type ProviderDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Provider, error)
	ListEnabled(ctx context.Context) ([]*models.Provider, error)
}

// SnapshotStats exposes the snapshot pipeline's backlog, implemented by
// storage.SnapshotWorker.
type SnapshotStats interface {
	QueueLength(ctx context.Context) (int, error)
	DeadLetterItems(ctx context.Context, maxItems int) ([]queue.DeadLetterItem, error)
}

// MonitorControlHandler exposes the monitor control surface: start/stop,
// add/remove a provider from monitoring, out-of-cycle probes and the
// snapshot backlog.
type MonitorControlHandler struct {
	monitor   *health.Monitor
	providers ProviderDirectory
	snapshots SnapshotStats // optional
	logger    *utils.Logger
}

// NewMonitorControlHandler creates a new monitor control handler.
// snapshots may be nil when no snapshot pipeline is configured.
func NewMonitorControlHandler(monitor *health.Monitor, providers ProviderDirectory, snapshots SnapshotStats) *MonitorControlHandler {
	return &MonitorControlHandler{
		monitor:   monitor,
		providers: providers,
		snapshots: snapshots,
		logger:    utils.NewLogger("httpapi"),
	}
}

// Start handles POST /v1/monitor/start
func (h *MonitorControlHandler) Start(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := h.monitor.Start(); err != nil {
		if errors.Is(err, health.ErrMonitorRunning) {
			utils.RespondWithError(w, http.StatusConflict, "Monitor already running")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to start monitor")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]bool{"running": true})
}

// Stop handles POST /v1/monitor/stop
func (h *MonitorControlHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := h.monitor.Stop(); err != nil {
		if errors.Is(err, health.ErrMonitorStopped) {
			utils.RespondWithError(w, http.StatusConflict, "Monitor not running")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to stop monitor")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]bool{"running": false})
}

// Status handles GET /v1/monitor/status
func (h *MonitorControlHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]any{
		"running":   h.monitor.Running(),
		"providers": len(h.monitor.Providers()),
	})
}

// QueueStatusResponse reports the snapshot pipeline backlog
type QueueStatusResponse struct {
	QueueLength int                    `json:"queue_length"`
	DeadLetter  []queue.DeadLetterItem `json:"dead_letter"`
}

// QueueStatus handles GET /v1/monitor/queue
func (h *MonitorControlHandler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if h.snapshots == nil {
		utils.RespondWithError(w, http.StatusNotFound, "Snapshot pipeline not configured")
		return
	}

	length, err := h.snapshots.QueueLength(r.Context())
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to read queue length")
		return
	}

	deadLetter, err := h.snapshots.DeadLetterItems(r.Context(), 100)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to read dead letter queue")
		return
	}
	if deadLetter == nil {
		deadLetter = []queue.DeadLetterItem{}
	}

	utils.RespondWithJSON(w, http.StatusOK, QueueStatusResponse{
		QueueLength: length,
		DeadLetter:  deadLetter,
	})
}

// AddProviderRequest is the payload for adding a provider to monitoring
type AddProviderRequest struct {
	ProviderID string `json:"provider_id"`
}

// HandleProviders dispatches /v1/monitor/providers and its subpaths:
//
//	POST   /v1/monitor/providers             add a provider to monitoring
//	DELETE /v1/monitor/providers/{id}        remove a provider
//	POST   /v1/monitor/providers/{id}/probe  trigger an immediate probe
func (h *MonitorControlHandler) HandleProviders(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/monitor/providers"), "/")

	if rest == "" {
		if r.Method != http.MethodPost {
			utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h.addProvider(w, r)
		return
	}

	parts := strings.Split(rest, "/")
	id, err := uuid.Parse(parts[0])
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid provider ID")
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodDelete:
		h.removeProvider(w, r, id)
	case len(parts) == 2 && parts[1] == "probe" && r.Method == http.MethodPost:
		h.probeProvider(w, r, id)
	default:
		utils.RespondWithError(w, http.StatusNotFound, "Not found")
	}
}

func (h *MonitorControlHandler) addProvider(w http.ResponseWriter, r *http.Request) {
	var req AddProviderRequest
	if err := decodeJSON(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	id, err := uuid.Parse(req.ProviderID)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid provider ID")
		return
	}

	provider, err := h.providers.GetByID(r.Context(), id)
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Provider not found")
		return
	}

	h.monitor.AddProvider(provider)
	h.logger.Info("Provider added to monitoring", "provider", provider.Name)
	utils.RespondWithJSON(w, http.StatusCreated, map[string]string{"provider_id": id.String()})
}

func (h *MonitorControlHandler) removeProvider(w http.ResponseWriter, _ *http.Request, id uuid.UUID) {
	h.monitor.RemoveProvider(id)
	h.logger.Info("Provider removed from monitoring", "provider_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *MonitorControlHandler) probeProvider(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	record, err := h.monitor.CheckNow(r.Context(), id)
	if err != nil {
		if errors.Is(err, health.ErrProviderNotRegistered) {
			utils.RespondWithError(w, http.StatusNotFound, "Provider not registered for health tracking")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Probe failed")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, record)
}
