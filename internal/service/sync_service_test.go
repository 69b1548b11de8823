package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/inventoryhub/marketsync/internal/cache"
	apperrors "github.com/inventoryhub/marketsync/internal/errors"
	"github.com/inventoryhub/marketsync/internal/model"
	"github.com/inventoryhub/marketsync/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeGateway is an in-memory marketplace double. Remote stock state is
// mutable so convergence across passes can be observed.
type fakeGateway struct {
	mu        sync.Mutex
	remote    map[string]*model.RemoteListing
	itemIDs   []string
	orders    []model.Order
	tokenErr  error
	ordersErr error
	fetchErr  map[string]error
	updateErr map[string]error
	updates   map[string]int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		remote:    make(map[string]*model.RemoteListing),
		fetchErr:  make(map[string]error),
		updateErr: make(map[string]error),
		updates:   make(map[string]int),
	}
}

func (g *fakeGateway) ValidToken(ctx context.Context, accountID string) (string, error) {
	if g.tokenErr != nil {
		return "", g.tokenErr
	}
	return "test-token", nil
}

func (g *fakeGateway) Item(ctx context.Context, id, token string) (*model.RemoteListing, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fetchErr[id]; err != nil {
		return nil, err
	}
	listing, ok := g.remote[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *listing
	return &copied, nil
}

func (g *fakeGateway) MultipleItems(ctx context.Context, ids []string, token string) []model.ItemResult {
	out := make([]model.ItemResult, 0, len(ids))
	for _, id := range ids {
		listing, err := g.Item(ctx, id, token)
		out = append(out, model.ItemResult{ListingID: id, Listing: listing, Err: err})
	}
	return out
}

func (g *fakeGateway) AllUserItemIDs(ctx context.Context, token string) ([]string, error) {
	return g.itemIDs, nil
}

func (g *fakeGateway) UserOrders(ctx context.Context, token, sellerID string, since time.Time) ([]model.Order, error) {
	if g.ordersErr != nil {
		return nil, g.ordersErr
	}
	return g.orders, nil
}

func (g *fakeGateway) UpdateItemStock(ctx context.Context, id string, quantity int, token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.updateErr[id]; err != nil {
		return err
	}
	if listing, ok := g.remote[id]; ok {
		listing.AvailableQuantity = quantity
	}
	g.updates[id] = quantity
	return nil
}

type fixture struct {
	svc     *SyncService
	gateway *fakeGateway
	mem     *store.Memory
	cache   *cache.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	gateway := newFakeGateway()
	mem := store.NewMemory()
	cacheSvc := cache.NewService(&cache.Config{MaxEntries: 1000}, nil, zap.NewNop())

	svc := NewSyncService(gateway, mem, mem, mem, cacheSvc,
		DefaultThresholds(), nil, zap.NewNop())

	return &fixture{svc: svc, gateway: gateway, mem: mem, cache: cacheSvc}
}

// seedListing wires up a linked listing with local and remote stock.
func (f *fixture) seedListing(t *testing.T, n, local, remote int) string {
	t.Helper()

	listingID := fmt.Sprintf("MLA%d", n)
	productID := fmt.Sprintf("prod-%d", n)

	f.gateway.remote[listingID] = &model.RemoteListing{
		ID:                listingID,
		AvailableQuantity: remote,
		Status:            model.ListingStatusActive,
		PriceCents:        9900,
	}
	f.mem.PutStock(&model.LocalStockSnapshot{
		ProductID:    productID,
		PerWarehouse: map[string]int{"main": local},
		Total:        local,
		UpdatedAt:    time.Now(),
	})
	require.NoError(t, f.mem.CreateLink(context.Background(), &model.ListingLink{
		ListingID:          listingID,
		ProductID:          productID,
		AccountID:          "acct-1",
		LastRemoteQuantity: remote,
		SyncStatus:         model.SyncStatusOK,
		LastSyncedAt:       time.Now(),
		UpdatedAt:          time.Now(),
	}))
	return listingID
}

func TestDecideScenarios(t *testing.T) {
	f := newFixture(t)
	recent := time.Now().Add(-time.Hour)

	tests := []struct {
		name       string
		local      int
		remote     int
		lastSync   time.Time
		full       bool
		wantUpdate bool
		wantTarget int
		wantReason model.DecisionReason
	}{
		{"stockout correction", 50, 0, recent, false, true, 50, model.ReasonStockout},
		{"low remote stock", 10, 3, recent, false, true, 10, model.ReasonLowStock},
		{"drift within tolerance", 20, 18, recent, false, false, 0, model.ReasonNone},
		{"large divergence", 100, 10, recent, false, true, 100, model.ReasonDivergence},
		{"borderline divergence beats low-stock order", 13, 6, recent, false, true, 13, model.ReasonDivergence},
		{"stale catch-up", 12, 10, time.Now().Add(-48 * time.Hour), false, true, 12, model.ReasonStale},
		{"stale but remote ahead", 8, 10, time.Now().Add(-48 * time.Hour), false, false, 0, model.ReasonNone},
		{"both zero", 0, 0, recent, false, false, 0, model.ReasonNone},
		{"remote ahead of local", 10, 40, recent, false, true, 10, model.ReasonDivergence},
		{"full overrides tolerance", 20, 18, recent, true, true, 20, model.ReasonFullResync},
		{"full already in sync", 20, 20, recent, true, false, 0, model.ReasonNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := f.svc.Decide(tt.local, tt.remote, tt.lastSync, tt.full)
			assert.Equal(t, tt.wantUpdate, decision.ShouldUpdate)
			assert.Equal(t, tt.wantReason, decision.Reason)
			if tt.wantUpdate {
				assert.Equal(t, tt.wantTarget, decision.TargetQuantity)
			}
		})
	}
}

func TestDecideStockoutIsCritical(t *testing.T) {
	f := newFixture(t)

	decision := f.svc.Decide(50, 0, time.Now(), false)
	assert.Equal(t, model.SeverityCritical, decision.Severity)
}

func TestDecideIdempotent(t *testing.T) {
	f := newFixture(t)

	pairs := [][2]int{{50, 0}, {10, 3}, {100, 10}, {20, 18}}
	for _, pair := range pairs {
		local, remote := pair[0], pair[1]
		first := f.svc.Decide(local, remote, time.Now(), false)
		if first.ShouldUpdate {
			remote = first.TargetQuantity
		}
		second := f.svc.Decide(local, remote, time.Now(), false)
		assert.False(t, second.ShouldUpdate,
			"second pass for local=%d should be a no-op", pair[0])
	}
}

func TestDivergence(t *testing.T) {
	assert.InDelta(t, 0.9, Divergence(100, 10), 0.001)
	assert.InDelta(t, 0.1, Divergence(20, 18), 0.001)
	assert.InDelta(t, 0.0, Divergence(0, 0), 0.001)
	assert.InDelta(t, 1.0, Divergence(0, 5), 0.001)
}

func TestRunSyncPartialFailureIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Five listings all needing a stockout correction; one push fails.
	var failing string
	for i := 1; i <= 5; i++ {
		id := f.seedListing(t, i, 30, 0)
		if i == 3 {
			failing = id
		}
	}
	f.gateway.updateErr[failing] = apperrors.ErrUpstreamUnavailable

	task, err := f.svc.RunSync(ctx, "acct-1", model.StrategyCriticalStock)
	require.NoError(t, err)

	assert.Equal(t, 4, task.Updated)
	assert.Equal(t, 1, task.Errored)
	require.Len(t, task.Errors, 1)
	assert.Contains(t, task.Errors[0], failing)

	// Partial failure still counts as an overall success.
	assert.True(t, task.Success)
	assert.True(t, task.Sealed())

	// The failed listing is flagged for error recovery.
	inError, err := f.mem.InErrorState(ctx, "acct-1")
	require.NoError(t, err)
	require.Len(t, inError, 1)
	assert.Equal(t, failing, inError[0].ListingID)
}

func TestRunSyncConvergesOnSecondPass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		f.seedListing(t, i, 25, 0)
	}

	first, err := f.svc.RunSync(ctx, "acct-1", model.StrategyFull)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Updated)

	// No intervening change: the second pass must find nothing to do.
	second, err := f.svc.RunSync(ctx, "acct-1", model.StrategyFull)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, 3, second.Processed)
	assert.Equal(t, 0, second.Errored)
}

func TestRunSyncAuthFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.gateway.tokenErr = apperrors.ErrUnauthorized

	task, err := f.svc.RunSync(context.Background(), "acct-1", model.StrategyModified)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	require.NotNil(t, task)
	assert.True(t, task.Sealed())
	assert.False(t, task.Success)
}

func TestRunSyncInvalidStrategy(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RunSync(context.Background(), "acct-1", model.Strategy("bogus"))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidStrategy, apperrors.GetCode(err))
}

func TestRunSyncFullDiscoversUnlinkedListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	known := f.seedListing(t, 1, 10, 10)
	f.gateway.itemIDs = []string{known, "MLA999"}
	f.gateway.remote["MLA999"] = &model.RemoteListing{
		ID: "MLA999", AvailableQuantity: 4, Status: model.ListingStatusActive,
	}

	task, err := f.svc.RunSync(ctx, "acct-1", model.StrategyFull)
	require.NoError(t, err)

	assert.Equal(t, 1, task.Created)

	// The discovered listing has no local product: recorded, not dropped.
	assert.Equal(t, 1, task.Errored)
	require.Len(t, task.Errors, 1)
	assert.Contains(t, task.Errors[0], "MLA999")
	assert.Contains(t, task.Errors[0], "no linked local product")
}

func TestRunSyncBestSellersOrdering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	slow := f.seedListing(t, 1, 40, 0)
	hot := f.seedListing(t, 2, 40, 0)
	f.gateway.orders = []model.Order{
		{ID: "1", ListingID: hot, Quantity: 9, CreatedAt: time.Now()},
		{ID: "2", ListingID: slow, Quantity: 1, CreatedAt: time.Now()},
	}

	task, err := f.svc.RunSync(ctx, "acct-1", model.StrategyBestSellers)
	require.NoError(t, err)
	assert.Equal(t, 2, task.Updated)
	assert.Equal(t, 40, f.gateway.updates[hot])
	assert.Equal(t, 40, f.gateway.updates[slow])
}

func TestRunSyncAutoShortCircuitsOnFatal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// critical-stock finds work before best-sellers hits the auth wall.
	f.seedListing(t, 1, 30, 0)
	f.gateway.ordersErr = apperrors.ErrUnauthorized

	task, err := f.svc.RunSync(ctx, "acct-1", model.StrategyAuto)
	require.Error(t, err)
	require.NotNil(t, task)

	// Completed strategies' results are preserved alongside the fatal error.
	assert.Equal(t, 1, task.Updated)
	assert.True(t, task.Sealed())
}

func TestRunSyncErrorRecoveryRetriesFailedListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.seedListing(t, 1, 15, 0)
	require.NoError(t, f.mem.UpdateSyncState(ctx, id, model.SyncStatusError, 0, time.Now(), "previous failure"))
	healthy := f.seedListing(t, 2, 15, 15)

	task, err := f.svc.RunSync(ctx, "acct-1", model.StrategyErrorRecovery)
	require.NoError(t, err)

	// Only the errored listing is retried.
	assert.Equal(t, 1, task.Total())
	assert.Equal(t, 1, task.Updated)
	assert.Equal(t, 15, f.gateway.updates[id])
	_, retried := f.gateway.updates[healthy]
	assert.False(t, retried)
}

func TestSuggestRestock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedListing(t, 1, 50, 0)

	suggestion, err := f.svc.SuggestRestock(ctx, "prod-1")
	require.NoError(t, err)

	assert.Equal(t, 50, suggestion.LocalStock)
	assert.Equal(t, 0, suggestion.RemoteStock)
	assert.Equal(t, "critical", suggestion.Urgency)
	// Target is four times the low-stock floor; local fully covers it.
	assert.Equal(t, 20, suggestion.SuggestedTransfer)
	assert.Equal(t, 0, suggestion.SuggestedPurchase)
}

func TestSuggestRestockPurchaseNeeded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedListing(t, 1, 8, 2)

	suggestion, err := f.svc.SuggestRestock(ctx, "prod-1")
	require.NoError(t, err)

	// Shortfall is 18; local covers 8, the rest must be purchased.
	assert.Equal(t, 8, suggestion.SuggestedTransfer)
	assert.Equal(t, 10, suggestion.SuggestedPurchase)
	assert.Equal(t, "high", suggestion.Urgency)
}

func TestSuggestRestockUnknownProduct(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SuggestRestock(context.Background(), "prod-missing")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
}
