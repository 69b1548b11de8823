// Package handler provides the HTTP request handlers for the sync API.
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/inventoryhub/marketsync/internal/cache"
	apperrors "github.com/inventoryhub/marketsync/internal/errors"
	"github.com/inventoryhub/marketsync/internal/model"
	"github.com/inventoryhub/marketsync/internal/service"
	"go.uber.org/zap"
)

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	sync         *service.SyncService
	analytics    *service.AnalyticsService
	cache        *cache.Service
	errorHandler *apperrors.Handler
	logger       *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	syncSvc *service.SyncService,
	analytics *service.AnalyticsService,
	cacheSvc *cache.Service,
	errorHandler *apperrors.Handler,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		sync:         syncSvc,
		analytics:    analytics,
		cache:        cacheSvc,
		errorHandler: errorHandler,
		logger:       logger,
	}
}

// syncTaskResponse is the wire form of a finished sync pass.
type syncTaskResponse struct {
	TaskID    string   `json:"task_id"`
	AccountID string   `json:"account_id"`
	Strategy  string   `json:"strategy"`
	Processed int      `json:"processed"`
	Updated   int      `json:"updated"`
	Created   int      `json:"created"`
	Errored   int      `json:"errored"`
	Errors    []string `json:"errors,omitempty"`
	Success   bool     `json:"success"`
	Duration  string   `json:"duration"`
}

func taskResponse(task *model.SyncTask) syncTaskResponse {
	return syncTaskResponse{
		TaskID:    task.ID,
		AccountID: task.AccountID,
		Strategy:  string(task.Strategy),
		Processed: task.Processed,
		Updated:   task.Updated,
		Created:   task.Created,
		Errored:   task.Errored,
		Errors:    task.Errors,
		Success:   task.Success,
		Duration:  task.Duration.String(),
	}
}

// RunSync handles POST /v1/accounts/{accountID}/sync requests. Partial
// failure is still a 200; only fatal conditions map to an error status.
func (h *Handlers) RunSync(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["accountID"]

	strategy := model.Strategy(r.URL.Query().Get("strategy"))
	if strategy == "" {
		strategy = model.StrategyAuto
	}

	task, err := h.sync.RunSync(r.Context(), accountID, strategy)
	if err != nil {
		if task == nil {
			h.errorHandler.HandleError(w, r, err)
			return
		}
		// A fatal mid-pass error still carries the completed counters.
		h.logger.Warn("Sync pass aborted",
			zap.String("account_id", accountID),
			zap.Error(err))
		h.writeJSONResponse(w, apperrors.HTTPStatus(apperrors.GetCode(err)), taskResponse(task))
		return
	}

	h.writeJSONResponse(w, http.StatusOK, taskResponse(task))
}

// RestockSuggestion handles GET /v1/products/{productID}/restock-suggestion.
func (h *Handlers) RestockSuggestion(w http.ResponseWriter, r *http.Request) {
	productID := mux.Vars(r)["productID"]

	suggestion, err := h.sync.SuggestRestock(r.Context(), productID)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, suggestion)
}

// AccountHealth handles GET /v1/accounts/{accountID}/health requests. The
// period query parameter accepts a Go duration and defaults to seven days.
func (h *Handlers) AccountHealth(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["accountID"]
	requestID := r.Header.Get("X-Request-ID")

	period := 7 * 24 * time.Hour
	if raw := r.URL.Query().Get("period"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			h.errorHandler.WriteErrorResponse(w, http.StatusBadRequest,
				apperrors.ErrCodeInvalidArgument, "invalid period: "+raw, requestID)
			return
		}
		period = parsed
	}

	report, err := h.analytics.Health(r.Context(), accountID, period)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, report)
}

// DismissAlert handles POST /v1/accounts/{accountID}/alerts/{alertID}/dismiss.
func (h *Handlers) DismissAlert(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	h.analytics.Dismiss(vars["accountID"], vars["alertID"])
	h.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "dismissed"})
}

// invalidateRequest is the body of a cache invalidation request.
type invalidateRequest struct {
	Pattern string `json:"pattern"`
	Tenant  string `json:"tenant"`
}

// InvalidateCache handles POST /v1/cache/invalidate requests. Either a key
// substring pattern or a tenant may be given.
func (h *Handlers) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	var req invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.WriteErrorResponse(w, http.StatusBadRequest,
			apperrors.ErrCodeInvalidArgument, "invalid request body", requestID)
		return
	}
	if req.Pattern == "" && req.Tenant == "" {
		h.errorHandler.WriteErrorResponse(w, http.StatusBadRequest,
			apperrors.ErrCodeInvalidArgument, "pattern or tenant is required", requestID)
		return
	}

	invalidated := 0
	if req.Pattern != "" {
		invalidated += h.cache.InvalidatePattern(req.Pattern)
	}
	if req.Tenant != "" {
		invalidated += h.cache.InvalidateUser(req.Tenant)
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]int{"invalidated": invalidated})
}

// cacheStatsResponse is the wire form of the cache statistics.
type cacheStatsResponse struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       uint64  `json:"hits"`
	Misses     uint64  `json:"misses"`
	Evictions  uint64  `json:"evictions"`
	HitRate    float64 `json:"hit_rate"`
}

// CacheStats handles GET /v1/cache/stats requests.
func (h *Handlers) CacheStats(w http.ResponseWriter, r *http.Request) {
	stats := h.cache.Stats()

	h.writeJSONResponse(w, http.StatusOK, cacheStatsResponse{
		Entries:    stats.Entries,
		MaxEntries: stats.MaxEntries,
		Hits:       stats.Hits,
		Misses:     stats.Misses,
		Evictions:  stats.Evictions,
		HitRate:    stats.HitRate(),
	})
}

// writeJSONResponse writes a JSON response with the given status code.
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
