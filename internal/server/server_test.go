package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/inventoryhub/marketsync/internal/auth"
	"github.com/inventoryhub/marketsync/internal/cache"
	"github.com/inventoryhub/marketsync/internal/config"
	apperrors "github.com/inventoryhub/marketsync/internal/errors"
	"github.com/inventoryhub/marketsync/internal/model"
	"github.com/inventoryhub/marketsync/internal/service"
	"github.com/inventoryhub/marketsync/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubGateway serves a fixed remote state.
type stubGateway struct {
	remote map[string]*model.RemoteListing
}

func (g *stubGateway) ValidToken(ctx context.Context, accountID string) (string, error) {
	return "token", nil
}

func (g *stubGateway) Item(ctx context.Context, id, token string) (*model.RemoteListing, error) {
	if listing, ok := g.remote[id]; ok {
		copied := *listing
		return &copied, nil
	}
	return nil, apperrors.ErrNotFound
}

func (g *stubGateway) MultipleItems(ctx context.Context, ids []string, token string) []model.ItemResult {
	out := make([]model.ItemResult, 0, len(ids))
	for _, id := range ids {
		listing, err := g.Item(ctx, id, token)
		out = append(out, model.ItemResult{ListingID: id, Listing: listing, Err: err})
	}
	return out
}

func (g *stubGateway) AllUserItemIDs(ctx context.Context, token string) ([]string, error) {
	ids := make([]string, 0, len(g.remote))
	for id := range g.remote {
		ids = append(ids, id)
	}
	return ids, nil
}

func (g *stubGateway) UserOrders(ctx context.Context, token, sellerID string, since time.Time) ([]model.Order, error) {
	return nil, nil
}

func (g *stubGateway) UpdateItemStock(ctx context.Context, id string, quantity int, token string) error {
	if listing, ok := g.remote[id]; ok {
		listing.AvailableQuantity = quantity
	}
	return nil
}

func newTestServer(t *testing.T) (*Server, *store.Memory) {
	t.Helper()

	mem := store.NewMemory()
	mem.PutStock(&model.LocalStockSnapshot{
		ProductID:    "prod-1",
		PerWarehouse: map[string]int{"main": 40},
		Total:        40,
		UpdatedAt:    time.Now(),
	})
	require.NoError(t, mem.CreateLink(context.Background(), &model.ListingLink{
		ListingID:          "MLA1",
		ProductID:          "prod-1",
		AccountID:          "acct-1",
		LastRemoteQuantity: 0,
		SyncStatus:         model.SyncStatusOK,
		LastSyncedAt:       time.Now(),
		UpdatedAt:          time.Now(),
	}))

	gateway := &stubGateway{remote: map[string]*model.RemoteListing{
		"MLA1": {ID: "MLA1", AvailableQuantity: 0, Status: model.ListingStatusActive},
	}}

	logger := zap.NewNop()
	cacheSvc := cache.NewService(&cache.Config{MaxEntries: 100}, nil, logger)
	thresholds := service.DefaultThresholds()
	syncSvc := service.NewSyncService(gateway, mem, mem, mem, cacheSvc, thresholds, nil, logger)
	analytics := service.NewAnalyticsService(mem, mem, mem, cacheSvc, thresholds, logger)

	cfg := config.Default()
	srv := NewServer(cfg, syncSvc, analytics, cacheSvc, auth.InsecureVerifier{}, nil, logger)
	srv.SetupRoutes()
	return srv, mem
}

func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestRunSyncEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodPost, "/v1/accounts/acct-1/sync?strategy=critical_stock", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		TaskID  string `json:"task_id"`
		Updated int    `json:"updated"`
		Errored int    `json:"errored"`
		Success bool   `json:"success"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.TaskID)
	assert.Equal(t, 1, resp.Updated)
	assert.Equal(t, 0, resp.Errored)
	assert.True(t, resp.Success)
}

func TestRunSyncEndpointInvalidStrategy(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodPost, "/v1/accounts/acct-1/sync?strategy=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRestockSuggestionEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/v1/products/prod-1/restock-suggestion", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp model.RestockSuggestion
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "prod-1", resp.ProductID)
	assert.Equal(t, 40, resp.LocalStock)
	assert.Equal(t, "critical", resp.Urgency)
}

func TestRestockSuggestionUnknownProduct(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/v1/products/nope/restock-suggestion", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAccountHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/v1/accounts/acct-1/health?period=168h", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var report model.HealthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "acct-1", report.AccountID)
	assert.NotEmpty(t, report.Alerts)
}

func TestAccountHealthInvalidPeriod(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/v1/accounts/acct-1/health?period=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCacheEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/v1/cache/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/v1/cache/invalidate", `{"pattern":"listing:"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/v1/cache/invalidate", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthzEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/v1/nothing-here", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	mem := store.NewMemory()
	logger := zap.NewNop()
	cacheSvc := cache.NewService(&cache.Config{MaxEntries: 100}, nil, logger)
	thresholds := service.DefaultThresholds()
	gateway := &stubGateway{remote: map[string]*model.RemoteListing{}}
	syncSvc := service.NewSyncService(gateway, mem, mem, mem, cacheSvc, thresholds, nil, logger)
	analytics := service.NewAnalyticsService(mem, mem, mem, cacheSvc, thresholds, logger)

	srv := NewServer(config.Default(), syncSvc, analytics, cacheSvc,
		auth.NewJWTVerifier("secret", ""), nil, logger)
	srv.SetupRoutes()

	rec := doRequest(srv, http.MethodGet, "/v1/cache/stats", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Health endpoints stay open.
	rec = doRequest(srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
