package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/inventoryhub/marketsync/internal/cache"
	"github.com/inventoryhub/marketsync/internal/model"
	"github.com/inventoryhub/marketsync/internal/store"
	"go.uber.org/zap"
)

// AnalyticsService derives health scores, alerts and insights from cached
// and persisted sync state. It is a pure read-side projection: recomputation
// is idempotent and holds no state of its own beyond dismissed markers kept
// in the cache.
type AnalyticsService struct {
	stocks     store.StockStore
	links      store.LinkStore
	tasks      store.TaskStore
	cache      *cache.Service
	thresholds Thresholds
	logger     *zap.Logger

	now func() time.Time
}

// NewAnalyticsService creates a new analytics projection.
func NewAnalyticsService(
	stocks store.StockStore,
	links store.LinkStore,
	tasks store.TaskStore,
	cacheSvc *cache.Service,
	thresholds Thresholds,
	logger *zap.Logger,
) *AnalyticsService {
	return &AnalyticsService{
		stocks:     stocks,
		links:      links,
		tasks:      tasks,
		cache:      cacheSvc,
		thresholds: thresholds,
		logger:     logger,
		now:        time.Now,
	}
}

// Health computes the monitoring projection for one account over a period.
// Results are cached; a period of 90 days or more is treated as a
// historical aggregate.
func (s *AnalyticsService) Health(ctx context.Context, accountID string, period time.Duration) (*model.HealthReport, error) {
	key := fmt.Sprintf("account:%s:health:%s", accountID, period)
	hint := model.Hint{Historical: period >= 90*24*time.Hour}

	value, err := s.cache.WithCache(ctx, key, model.CategoryAnalytics, hint,
		func(ctx context.Context) (any, error) {
			return s.computeHealth(ctx, accountID, period)
		})
	if err != nil {
		return nil, err
	}
	return value.(*model.HealthReport), nil
}

func (s *AnalyticsService) computeHealth(ctx context.Context, accountID string, period time.Duration) (*model.HealthReport, error) {
	links, err := s.links.LinksForAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load listing links: %w", err)
	}

	productIDs := make([]string, 0, len(links))
	for _, link := range links {
		if link.ProductID != "" {
			productIDs = append(productIDs, link.ProductID)
		}
	}
	snapshots, err := s.stocks.Snapshots(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load stock snapshots: %w", err)
	}

	alerts := s.buildAlerts(links, snapshots)
	alerts = s.withoutDismissed(accountID, alerts)
	SortAlerts(alerts)

	report := &model.HealthReport{
		AccountID:  accountID,
		Breakdown:  make(map[string]int),
		Alerts:     alerts,
		Period:     period,
		ComputedAt: s.now(),
	}

	score := 100
	for _, alert := range alerts {
		report.Breakdown[string(alert.Type)]++
		switch alert.Severity {
		case model.SeverityCritical:
			score -= 15
		case model.SeverityWarning:
			score -= 5
		case model.SeverityInfo:
			score--
		}
	}
	if score < 0 {
		score = 0
	}
	report.Score = score

	switch {
	case score < 30:
		report.Status = "critical"
	case score < 60:
		report.Status = "degraded"
	default:
		report.Status = "healthy"
	}

	report.Insights = s.buildInsights(len(links), report.Breakdown)
	return report, nil
}

// buildAlerts derives alerts for each linked listing from its last known
// sync state and the local stock snapshot.
func (s *AnalyticsService) buildAlerts(links []model.ListingLink, snapshots map[string]*model.LocalStockSnapshot) []model.Alert {
	now := s.now()
	var alerts []model.Alert

	add := func(alertType model.AlertType, severity model.Severity, link model.ListingLink, at time.Time, msg string) {
		alerts = append(alerts, model.Alert{
			ID:        fmt.Sprintf("%s:%s", alertType, link.ListingID),
			Type:      alertType,
			Severity:  severity,
			Level:     severity.String(),
			ListingID: link.ListingID,
			ProductID: link.ProductID,
			Message:   msg,
			Timestamp: at,
		})
	}

	for _, link := range links {
		snapshot := snapshots[link.ProductID]
		local := 0
		if snapshot != nil {
			local = snapshot.Total
		}
		remote := link.LastRemoteQuantity

		switch {
		case remote == 0 && local > 0:
			add(model.AlertZeroRemoteStock, model.SeverityCritical, link, link.LastSyncedAt,
				fmt.Sprintf("listing %s has zero marketplace stock while %d units sit locally", link.ListingID, local))
		case remote <= s.thresholds.LowStockFloor && remote > 0:
			add(model.AlertLowRemoteStock, model.SeverityWarning, link, link.LastSyncedAt,
				fmt.Sprintf("listing %s is down to %d units on the marketplace", link.ListingID, remote))
		case Divergence(local, remote) > s.thresholds.DivergenceRatio:
			add(model.AlertStockDivergence, model.SeverityWarning, link, link.LastSyncedAt,
				fmt.Sprintf("listing %s diverged: local %d vs remote %d", link.ListingID, local, remote))
		}

		if !link.LastSyncedAt.IsZero() && now.Sub(link.LastSyncedAt) > s.thresholds.StalenessWindow {
			add(model.AlertStaleSync, model.SeverityInfo, link, link.LastSyncedAt,
				fmt.Sprintf("listing %s has not synced since %s", link.ListingID, link.LastSyncedAt.Format(time.RFC3339)))
		}

		if snapshot != nil && link.LastPriceCents > 0 && snapshot.CostCents > 0 {
			margin := float64(link.LastPriceCents-snapshot.CostCents) / float64(link.LastPriceCents)
			if margin < s.thresholds.MarginMin || margin > s.thresholds.MarginMax {
				add(model.AlertMarginOutOfBand, model.SeverityWarning, link, link.UpdatedAt,
					fmt.Sprintf("listing %s margin %.0f%% is outside the acceptable band", link.ListingID, margin*100))
			}
		}
	}
	return alerts
}

// Dismiss marks an alert so it is filtered from subsequent health reports.
// The marker is the only state this projection keeps, and it lives in the
// cache.
func (s *AnalyticsService) Dismiss(accountID, alertID string) {
	s.cache.Set(dismissKey(accountID, alertID), true, model.CategoryConfig, model.Hint{})
	// The cached report is stale once an alert is dismissed.
	s.cache.InvalidatePattern(fmt.Sprintf("account:%s:health", accountID))
}

func (s *AnalyticsService) withoutDismissed(accountID string, alerts []model.Alert) []model.Alert {
	out := alerts[:0]
	for _, alert := range alerts {
		if _, dismissed := s.cache.Get(dismissKey(accountID, alert.ID)); !dismissed {
			out = append(out, alert)
		}
	}
	return out
}

func (s *AnalyticsService) buildInsights(totalListings int, breakdown map[string]int) []string {
	var insights []string
	if totalListings == 0 {
		return insights
	}

	if n := breakdown[string(model.AlertZeroRemoteStock)]; n > 0 {
		insights = append(insights,
			fmt.Sprintf("%d listing(s) are invisible to buyers despite local stock; run a critical-stock sync", n))
	}
	if n := breakdown[string(model.AlertStockDivergence)]; n*100 > totalListings*30 {
		insights = append(insights,
			fmt.Sprintf("%d of %d listings diverged from warehouse stock; consider a full resync", n, totalListings))
	}
	if n := breakdown[string(model.AlertStaleSync)]; n*100 > totalListings*50 {
		insights = append(insights,
			"more than half of the listings have stale sync state; check the sync scheduler")
	}
	if n := breakdown[string(model.AlertMarginOutOfBand)]; n > 0 {
		insights = append(insights,
			fmt.Sprintf("%d listing(s) sell outside the configured margin band; review pricing", n))
	}
	return insights
}

// SortAlerts orders alerts by severity rank descending, ties broken by
// newest timestamp first. The sort is stable.
func SortAlerts(alerts []model.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].Severity != alerts[j].Severity {
			return alerts[i].Severity > alerts[j].Severity
		}
		return alerts[i].Timestamp.After(alerts[j].Timestamp)
	})
}

func dismissKey(accountID, alertID string) string {
	return fmt.Sprintf("account:%s:dismissed:%s", accountID, alertID)
}
