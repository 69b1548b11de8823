package service

import (
	"context"
	"testing"
	"time"

	"github.com/inventoryhub/marketsync/internal/cache"
	"github.com/inventoryhub/marketsync/internal/model"
	"github.com/inventoryhub/marketsync/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type analyticsFixture struct {
	svc   *AnalyticsService
	mem   *store.Memory
	cache *cache.Service
}

func newAnalyticsFixture(t *testing.T) *analyticsFixture {
	t.Helper()

	mem := store.NewMemory()
	cacheSvc := cache.NewService(&cache.Config{MaxEntries: 1000}, nil, zap.NewNop())
	svc := NewAnalyticsService(mem, mem, mem, cacheSvc, DefaultThresholds(), zap.NewNop())
	return &analyticsFixture{svc: svc, mem: mem, cache: cacheSvc}
}

func (f *analyticsFixture) seedLink(t *testing.T, listingID, productID string, local, remote int, lastSync time.Time) {
	t.Helper()

	if productID != "" {
		f.mem.PutStock(&model.LocalStockSnapshot{
			ProductID:    productID,
			PerWarehouse: map[string]int{"main": local},
			Total:        local,
			UpdatedAt:    time.Now(),
		})
	}
	require.NoError(t, f.mem.CreateLink(context.Background(), &model.ListingLink{
		ListingID:          listingID,
		ProductID:          productID,
		AccountID:          "acct-1",
		LastRemoteQuantity: remote,
		SyncStatus:         model.SyncStatusOK,
		LastSyncedAt:       lastSync,
		UpdatedAt:          lastSync,
	}))
}

func TestHealthAlertRanking(t *testing.T) {
	f := newAnalyticsFixture(t)
	now := time.Now()

	// One critical, two warnings with distinct timestamps, one info.
	f.seedLink(t, "MLA1", "prod-1", 30, 0, now.Add(-time.Hour))           // zero remote stock
	f.seedLink(t, "MLA2", "prod-2", 10, 3, now.Add(-2*time.Hour))         // low remote stock
	f.seedLink(t, "MLA3", "prod-3", 100, 10, now.Add(-30*time.Minute))    // divergence
	f.seedLink(t, "MLA4", "prod-4", 20, 20, now.Add(-48*time.Hour))       // stale only

	report, err := f.svc.Health(context.Background(), "acct-1", 7*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, report.Alerts, 4)

	assert.Equal(t, model.SeverityCritical, report.Alerts[0].Severity)
	assert.Equal(t, "MLA1", report.Alerts[0].ListingID)

	// Warnings ordered newest first.
	assert.Equal(t, model.SeverityWarning, report.Alerts[1].Severity)
	assert.Equal(t, "MLA3", report.Alerts[1].ListingID)
	assert.Equal(t, model.SeverityWarning, report.Alerts[2].Severity)
	assert.Equal(t, "MLA2", report.Alerts[2].ListingID)

	assert.Equal(t, model.SeverityInfo, report.Alerts[3].Severity)
	assert.Equal(t, "MLA4", report.Alerts[3].ListingID)
}

func TestHealthScoreAndStatus(t *testing.T) {
	f := newAnalyticsFixture(t)
	now := time.Now()

	// 1 critical + 2 warnings + 1 info: 100 - 15 - 10 - 1 = 74.
	f.seedLink(t, "MLA1", "prod-1", 30, 0, now.Add(-time.Hour))
	f.seedLink(t, "MLA2", "prod-2", 10, 3, now.Add(-time.Hour))
	f.seedLink(t, "MLA3", "prod-3", 100, 10, now.Add(-time.Hour))
	f.seedLink(t, "MLA4", "prod-4", 20, 20, now.Add(-48*time.Hour))

	report, err := f.svc.Health(context.Background(), "acct-1", 7*24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 74, report.Score)
	assert.Equal(t, "healthy", report.Status)
	assert.Equal(t, 1, report.Breakdown[string(model.AlertZeroRemoteStock)])
	assert.Equal(t, 1, report.Breakdown[string(model.AlertLowRemoteStock)])
	assert.Equal(t, 1, report.Breakdown[string(model.AlertStockDivergence)])
	assert.Equal(t, 1, report.Breakdown[string(model.AlertStaleSync)])
}

func TestHealthStatusDegradesUnderLoad(t *testing.T) {
	f := newAnalyticsFixture(t)
	now := time.Now()

	// Four criticals: 100 - 60 = 40, degraded but not yet critical.
	for i := 0; i < 4; i++ {
		id := string(rune('A' + i))
		f.seedLink(t, "MLA"+id, "prod-"+id, 30, 0, now.Add(-time.Hour))
	}

	report, err := f.svc.Health(context.Background(), "acct-1", 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 40, report.Score)
	assert.Equal(t, "degraded", report.Status)
}

func TestHealthScoreFloorsAtZero(t *testing.T) {
	f := newAnalyticsFixture(t)
	now := time.Now()

	for i := 0; i < 8; i++ {
		id := string(rune('A' + i))
		f.seedLink(t, "MLA"+id, "prod-"+id, 30, 0, now.Add(-time.Hour))
	}

	report, err := f.svc.Health(context.Background(), "acct-1", 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Score)
	assert.Equal(t, "critical", report.Status)
}

func TestHealthEmptyAccount(t *testing.T) {
	f := newAnalyticsFixture(t)

	report, err := f.svc.Health(context.Background(), "acct-empty", 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 100, report.Score)
	assert.Equal(t, "healthy", report.Status)
	assert.Empty(t, report.Alerts)
	assert.Empty(t, report.Insights)
}

func TestHealthIsCached(t *testing.T) {
	f := newAnalyticsFixture(t)
	now := time.Now()
	ctx := context.Background()

	f.seedLink(t, "MLA1", "prod-1", 30, 0, now.Add(-time.Hour))

	first, err := f.svc.Health(ctx, "acct-1", 7*24*time.Hour)
	require.NoError(t, err)

	// New state appears, but the cached report is still served.
	f.seedLink(t, "MLA2", "prod-2", 30, 0, now.Add(-time.Hour))

	second, err := f.svc.Health(ctx, "acct-1", 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, first.Score, second.Score)
	assert.Len(t, second.Alerts, 1)
}

func TestDismissFiltersAlertAndDropsCachedReport(t *testing.T) {
	f := newAnalyticsFixture(t)
	now := time.Now()
	ctx := context.Background()

	f.seedLink(t, "MLA1", "prod-1", 30, 0, now.Add(-time.Hour))
	f.seedLink(t, "MLA2", "prod-2", 10, 3, now.Add(-time.Hour))

	report, err := f.svc.Health(ctx, "acct-1", 7*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, report.Alerts, 2)

	f.svc.Dismiss("acct-1", report.Alerts[0].ID)

	report, err = f.svc.Health(ctx, "acct-1", 7*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, report.Alerts, 1)
	assert.Equal(t, "MLA2", report.Alerts[0].ListingID)

	// Dismissing is scoped per account.
	other, err := f.svc.Health(ctx, "acct-other", 7*24*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, other.Alerts)
}

func TestMarginAlert(t *testing.T) {
	f := newAnalyticsFixture(t)
	now := time.Now()
	ctx := context.Background()

	f.mem.PutStock(&model.LocalStockSnapshot{
		ProductID:    "prod-1",
		PerWarehouse: map[string]int{"main": 10},
		Total:        10,
		CostCents:    9500,
		UpdatedAt:    now,
	})
	// Margin (10000-9500)/10000 = 5%, below the 10% floor.
	require.NoError(t, f.mem.CreateLink(ctx, &model.ListingLink{
		ListingID:          "MLA1",
		ProductID:          "prod-1",
		AccountID:          "acct-1",
		LastRemoteQuantity: 10,
		LastPriceCents:     10000,
		SyncStatus:         model.SyncStatusOK,
		LastSyncedAt:       now.Add(-time.Hour),
		UpdatedAt:          now.Add(-time.Hour),
	}))

	report, err := f.svc.Health(ctx, "acct-1", 7*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, report.Alerts, 1)
	assert.Equal(t, model.AlertMarginOutOfBand, report.Alerts[0].Type)
	assert.Equal(t, model.SeverityWarning, report.Alerts[0].Severity)
}

func TestInsights(t *testing.T) {
	f := newAnalyticsFixture(t)
	now := time.Now()

	// Two of three listings diverged, one also invisible to buyers.
	f.seedLink(t, "MLA1", "prod-1", 30, 0, now.Add(-time.Hour))
	f.seedLink(t, "MLA2", "prod-2", 100, 10, now.Add(-time.Hour))
	f.seedLink(t, "MLA3", "prod-3", 20, 20, now.Add(-time.Hour))

	report, err := f.svc.Health(context.Background(), "acct-1", 7*24*time.Hour)
	require.NoError(t, err)

	require.NotEmpty(t, report.Insights)
	assert.Contains(t, report.Insights[0], "invisible to buyers")
}

func TestSortAlertsStable(t *testing.T) {
	now := time.Now()
	alerts := []model.Alert{
		{ID: "a", Severity: model.SeverityInfo, Timestamp: now},
		{ID: "b", Severity: model.SeverityCritical, Timestamp: now.Add(-time.Hour)},
		{ID: "c", Severity: model.SeverityWarning, Timestamp: now.Add(-time.Minute)},
		{ID: "d", Severity: model.SeverityWarning, Timestamp: now},
	}

	SortAlerts(alerts)

	assert.Equal(t, "b", alerts[0].ID)
	assert.Equal(t, "d", alerts[1].ID)
	assert.Equal(t, "c", alerts[2].ID)
	assert.Equal(t, "a", alerts[3].ID)
}
