// Package service holds the reconciliation engine and the analytics
// projection built on top of the cache, the store layer and the marketplace
// gateway.
package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/inventoryhub/marketsync/internal/cache"
	apperrors "github.com/inventoryhub/marketsync/internal/errors"
	"github.com/inventoryhub/marketsync/internal/metrics"
	"github.com/inventoryhub/marketsync/internal/model"
	"github.com/inventoryhub/marketsync/internal/store"
	"github.com/inventoryhub/marketsync/internal/util/batch"
	"go.uber.org/zap"
)

// Thresholds lifts the reconciliation constants into data so they can be
// overridden per deployment.
type Thresholds struct {
	// LowStockFloor is the remote quantity at or below which a listing risks
	// missed sales.
	LowStockFloor int
	// DivergenceRatio is the relative local/remote divergence beyond which a
	// listing is resynced regardless of absolute quantities.
	DivergenceRatio float64
	// StalenessWindow is how long a listing may go untouched before the
	// catch-up rule fires.
	StalenessWindow time.Duration
	// MaxPerStrategy caps how many listings one strategy touches per pass.
	MaxPerStrategy int
	// Concurrency bounds per-listing fan-out within a pass.
	Concurrency int
	// BestSellerWindow is the sales history window for the best-sellers
	// strategy.
	BestSellerWindow time.Duration
	// MarginMin and MarginMax delimit the acceptable margin band for the
	// analytics projection.
	MarginMin float64
	MarginMax float64
}

// DefaultThresholds returns the stock reconciliation defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LowStockFloor:    5,
		DivergenceRatio:  0.5,
		StalenessWindow:  24 * time.Hour,
		MaxPerStrategy:   50,
		Concurrency:      5,
		BestSellerWindow: 90 * 24 * time.Hour,
		MarginMin:        0.10,
		MarginMax:        0.60,
	}
}

// Gateway is the remote listing gateway consumed by the engine.
type Gateway interface {
	ValidToken(ctx context.Context, accountID string) (string, error)
	Item(ctx context.Context, id, token string) (*model.RemoteListing, error)
	MultipleItems(ctx context.Context, ids []string, token string) []model.ItemResult
	AllUserItemIDs(ctx context.Context, token string) ([]string, error)
	UserOrders(ctx context.Context, token, sellerID string, since time.Time) ([]model.Order, error)
	UpdateItemStock(ctx context.Context, id string, quantity int, token string) error
}

// SyncService reconciles local warehouse stock against marketplace listings.
type SyncService struct {
	gateway    Gateway
	stocks     store.StockStore
	links      store.LinkStore
	tasks      store.TaskStore
	cache      *cache.Service
	thresholds Thresholds
	metrics    *metrics.Metrics
	logger     *zap.Logger

	now func() time.Time
}

// NewSyncService creates a new reconciliation engine.
func NewSyncService(
	gateway Gateway,
	stocks store.StockStore,
	links store.LinkStore,
	tasks store.TaskStore,
	cacheSvc *cache.Service,
	thresholds Thresholds,
	m *metrics.Metrics,
	logger *zap.Logger,
) *SyncService {
	return &SyncService{
		gateway:    gateway,
		stocks:     stocks,
		links:      links,
		tasks:      tasks,
		cache:      cacheSvc,
		thresholds: thresholds,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

// Decide evaluates the reconciliation rules for one listing. Rules are
// checked in priority order; the first match wins. A full pass overrides
// the rules and always converges remote onto local stock.
func (s *SyncService) Decide(localStock, remoteStock int, lastSync time.Time, full bool) model.Decision {
	if full {
		if localStock != remoteStock {
			return model.Decision{
				ShouldUpdate:   true,
				TargetQuantity: localStock,
				Reason:         model.ReasonFullResync,
				Severity:       model.SeverityInfo,
			}
		}
		return model.Decision{Reason: model.ReasonNone}
	}

	// Rule 1: stockout on the marketplace while local stock exists.
	if remoteStock == 0 && localStock > 0 {
		return model.Decision{
			ShouldUpdate:   true,
			TargetQuantity: localStock,
			Reason:         model.ReasonStockout,
			Severity:       model.SeverityCritical,
		}
	}

	// Rule 2: remote is about to run dry while local could cover it.
	if remoteStock <= s.thresholds.LowStockFloor && localStock > remoteStock {
		return model.Decision{
			ShouldUpdate:   true,
			TargetQuantity: localStock,
			Reason:         model.ReasonLowStock,
			Severity:       model.SeverityWarning,
		}
	}

	// Rule 3: drift beyond the divergence threshold.
	if Divergence(localStock, remoteStock) > s.thresholds.DivergenceRatio {
		return model.Decision{
			ShouldUpdate:   true,
			TargetQuantity: localStock,
			Reason:         model.ReasonDivergence,
			Severity:       model.SeverityWarning,
		}
	}

	// Rule 4: catch-up for listings that drifted silently.
	if !lastSync.IsZero() && s.now().Sub(lastSync) > s.thresholds.StalenessWindow && localStock > remoteStock {
		return model.Decision{
			ShouldUpdate:   true,
			TargetQuantity: localStock,
			Reason:         model.ReasonStale,
			Severity:       model.SeverityInfo,
		}
	}

	return model.Decision{Reason: model.ReasonNone}
}

// Divergence returns the relative difference between local and remote stock.
func Divergence(local, remote int) float64 {
	if local == remote {
		return 0
	}
	max := local
	if remote > max {
		max = remote
	}
	if max == 0 {
		return 0
	}
	diff := local - remote
	if diff < 0 {
		diff = -diff
	}
	return float64(diff) / float64(max)
}

// RunSync executes one sync pass for an account and returns the sealed task.
// Partial failure is reported in the task counters, not as an error; only
// authorization failures surface as errors.
func (s *SyncService) RunSync(ctx context.Context, accountID string, strategy model.Strategy) (*model.SyncTask, error) {
	if !model.ValidStrategy(strategy) {
		return nil, apperrors.InvalidStrategy(string(strategy))
	}

	task := model.NewSyncTask(uuid.NewString(), accountID, strategy, s.now())
	if err := s.tasks.CreateTask(ctx, task); err != nil {
		s.logger.Warn("Failed to record sync task start", zap.Error(err))
	}

	s.logger.Info("Sync pass started",
		zap.String("task_id", task.ID),
		zap.String("account_id", accountID),
		zap.String("strategy", string(strategy)))

	token, err := s.gateway.ValidToken(ctx, accountID)
	if err != nil {
		task.RecordError(fmt.Sprintf("token refresh: %v", err))
		s.finish(ctx, task)
		return task, apperrors.Unauthorized(accountID, err)
	}

	var fatal error
	if strategy == model.StrategyAuto {
		// The composite runs each strategy in sequence and merges counters.
		// A fatal error stops the remaining strategies but keeps completed
		// results.
		for _, sub := range []model.Strategy{
			model.StrategyCriticalStock,
			model.StrategyModified,
			model.StrategyErrorRecovery,
			model.StrategyBestSellers,
		} {
			if err := s.executeStrategy(ctx, task, accountID, token, sub); err != nil {
				fatal = err
				break
			}
		}
	} else {
		fatal = s.executeStrategy(ctx, task, accountID, token, strategy)
	}

	s.finish(ctx, task)
	return task, fatal
}

// executeStrategy selects the candidate listings for one strategy and runs
// the per-listing evaluation. Returns an error only for fatal conditions.
func (s *SyncService) executeStrategy(ctx context.Context, task *model.SyncTask, accountID, token string, strategy model.Strategy) error {
	links, err := s.selectCandidates(ctx, task, accountID, token, strategy)
	if err != nil {
		if apperrors.IsFatal(err) {
			task.RecordError(fmt.Sprintf("strategy %s: %v", strategy, err))
			return err
		}
		task.RecordError(fmt.Sprintf("strategy %s: %v", strategy, err))
		return nil
	}

	if len(links) > s.thresholds.MaxPerStrategy {
		links = links[:s.thresholds.MaxPerStrategy]
	}
	if len(links) == 0 {
		return nil
	}

	s.reconcile(ctx, task, accountID, token, links, strategy == model.StrategyFull)
	return nil
}

// selectCandidates returns the listing subset a strategy will evaluate.
func (s *SyncService) selectCandidates(ctx context.Context, task *model.SyncTask, accountID, token string, strategy model.Strategy) ([]model.ListingLink, error) {
	switch strategy {
	case model.StrategyFull:
		// A full pass also discovers unlinked remote listings and records
		// link stubs for them, so they show up as data inconsistencies
		// instead of vanishing.
		if err := s.discoverListings(ctx, task, accountID, token); err != nil {
			return nil, err
		}
		return s.links.LinksForAccount(ctx, accountID)

	case model.StrategyModified:
		since := s.now().Add(-s.thresholds.StalenessWindow)
		return s.links.ModifiedSince(ctx, accountID, since)

	case model.StrategyCriticalStock:
		return s.links.CriticallyLow(ctx, accountID, s.thresholds.LowStockFloor)

	case model.StrategyErrorRecovery:
		return s.links.InErrorState(ctx, accountID)

	case model.StrategyBestSellers:
		return s.bestSellerLinks(ctx, accountID, token)
	}
	return nil, apperrors.InvalidStrategy(string(strategy))
}

// discoverListings enumerates the account's remote listings and creates link
// stubs for ids that have no local record yet.
func (s *SyncService) discoverListings(ctx context.Context, task *model.SyncTask, accountID, token string) error {
	ids, err := s.gateway.AllUserItemIDs(ctx, token)
	if err != nil {
		return err
	}

	existing, err := s.links.LinksForAccount(ctx, accountID)
	if err != nil {
		return apperrors.StoreFailed("failed to load listing links", err)
	}
	known := make(map[string]bool, len(existing))
	for _, link := range existing {
		known[link.ListingID] = true
	}

	for _, id := range ids {
		if known[id] {
			continue
		}
		link := &model.ListingLink{
			ListingID:  id,
			AccountID:  accountID,
			SyncStatus: model.SyncStatusPending,
			UpdatedAt:  s.now(),
		}
		if err := s.links.CreateLink(ctx, link); err != nil {
			task.RecordError(fmt.Sprintf("listing %s: failed to create link: %v", id, err))
			continue
		}
		task.Created++
		s.logger.Debug("Discovered unlinked remote listing",
			zap.String("listing_id", id),
			zap.String("account_id", accountID))
	}
	return nil
}

// bestSellerLinks ranks the account's listings by recent sales volume and
// returns the links for the top sellers, protecting revenue-critical
// listings first.
func (s *SyncService) bestSellerLinks(ctx context.Context, accountID, token string) ([]model.ListingLink, error) {
	since := s.now().Add(-s.thresholds.BestSellerWindow)
	orders, err := s.gateway.UserOrders(ctx, token, accountID, since)
	if err != nil {
		return nil, err
	}

	sold := make(map[string]int)
	for _, order := range orders {
		sold[order.ListingID] += order.Quantity
	}

	links, err := s.links.LinksForAccount(ctx, accountID)
	if err != nil {
		return nil, apperrors.StoreFailed("failed to load listing links", err)
	}

	var ranked []model.ListingLink
	for _, link := range links {
		if sold[link.ListingID] > 0 {
			ranked = append(ranked, link)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return sold[ranked[i].ListingID] > sold[ranked[j].ListingID]
	})
	return ranked, nil
}

// listingOutcome is the settled per-listing result folded into the task.
type listingOutcome struct {
	updated  bool
	errorMsg string
}

// reconcile runs the per-listing evaluation for a candidate set. Listings
// are processed with bounded concurrency and all-settle semantics: one
// listing's failure never cancels its siblings.
func (s *SyncService) reconcile(ctx context.Context, task *model.SyncTask, accountID, token string, links []model.ListingLink, full bool) {
	byListing := make(map[string]model.ListingLink, len(links))
	ids := make([]string, 0, len(links))
	productIDs := make([]string, 0, len(links))
	for _, link := range links {
		byListing[link.ListingID] = link
		ids = append(ids, link.ListingID)
		if link.ProductID != "" {
			productIDs = append(productIDs, link.ProductID)
		}
	}

	snapshots, err := s.stocks.Snapshots(ctx, productIDs)
	if err != nil {
		task.RecordError(fmt.Sprintf("failed to load stock snapshots: %v", err))
		return
	}

	listings := s.fetchListings(ctx, accountID, ids, token)

	results := batch.Run(ctx, s.thresholds.Concurrency, ids,
		func(ctx context.Context, id string) (listingOutcome, error) {
			return s.reconcileOne(ctx, byListing[id], listings[id], snapshots, token, full)
		})

	now := s.now()
	for _, r := range results {
		switch {
		case r.Value.errorMsg != "":
			task.RecordError(r.Value.errorMsg)
			s.countItem("errored")
		case r.Value.updated:
			task.Updated++
			s.countItem("updated")
		default:
			task.Processed++
			s.countItem("processed")
		}
	}

	s.logger.Debug("Reconciliation batch finished",
		zap.String("account_id", accountID),
		zap.Int("candidates", len(links)),
		zap.Int("updated", task.Updated),
		zap.Int("errored", task.Errored),
		zap.Time("at", now))
}

// reconcileOne evaluates and, when needed, corrects a single listing.
func (s *SyncService) reconcileOne(ctx context.Context, link model.ListingLink, fetched model.ItemResult, snapshots map[string]*model.LocalStockSnapshot, token string, full bool) (listingOutcome, error) {
	if fetched.Err != nil {
		s.markError(ctx, link, fmt.Sprintf("fetch failed: %v", fetched.Err))
		return listingOutcome{errorMsg: fmt.Sprintf("listing %s: fetch failed: %v", link.ListingID, fetched.Err)}, nil
	}
	listing := fetched.Listing
	if listing == nil {
		s.markError(ctx, link, "no remote payload")
		return listingOutcome{errorMsg: fmt.Sprintf("listing %s: no remote payload", link.ListingID)}, nil
	}

	// A listing without a local product cannot be reconciled; record the
	// inconsistency rather than dropping it silently.
	snapshot := snapshots[link.ProductID]
	if link.ProductID == "" || snapshot == nil {
		reason := apperrors.DataInconsistency(link.ListingID, "no linked local product").Error()
		s.markError(ctx, link, reason)
		return listingOutcome{errorMsg: reason}, nil
	}

	decision := s.Decide(snapshot.Total, listing.AvailableQuantity, link.LastSyncedAt, full)
	if !decision.ShouldUpdate {
		// Only refresh the last-checked timestamp.
		if err := s.links.UpdateSyncState(ctx, link.ListingID, model.SyncStatusOK,
			listing.AvailableQuantity, s.now(), ""); err != nil {
			s.logger.Warn("Failed to refresh sync state",
				zap.String("listing_id", link.ListingID),
				zap.Error(err))
		}
		return listingOutcome{}, nil
	}

	if err := s.gateway.UpdateItemStock(ctx, link.ListingID, decision.TargetQuantity, token); err != nil {
		s.markError(ctx, link, fmt.Sprintf("stock push failed: %v", err))
		return listingOutcome{errorMsg: fmt.Sprintf("listing %s: stock push failed: %v", link.ListingID, err)}, nil
	}

	// The cached remote view is stale now; drop it so the next read refetches.
	s.cache.InvalidatePattern("listing:" + link.ListingID)

	if err := s.links.UpdateSyncState(ctx, link.ListingID, model.SyncStatusOK,
		decision.TargetQuantity, s.now(), ""); err != nil {
		s.logger.Warn("Failed to persist sync state",
			zap.String("listing_id", link.ListingID),
			zap.Error(err))
	}

	s.logger.Info("Pushed stock correction",
		zap.String("listing_id", link.ListingID),
		zap.Int("remote_was", listing.AvailableQuantity),
		zap.Int("target", decision.TargetQuantity),
		zap.String("reason", string(decision.Reason)))

	return listingOutcome{updated: true}, nil
}

// fetchListings resolves current remote state for a set of listings, served
// from the cache where possible and fetched in batch otherwise.
func (s *SyncService) fetchListings(ctx context.Context, accountID string, ids []string, token string) map[string]model.ItemResult {
	out := make(map[string]model.ItemResult, len(ids))

	var missing []string
	for _, id := range ids {
		key := listingCacheKey(accountID, id)
		if value, ok := s.cache.Get(key); ok {
			if listing, ok := value.(*model.RemoteListing); ok {
				out[id] = model.ItemResult{ListingID: id, Listing: listing}
				continue
			}
		}
		missing = append(missing, id)
	}

	if len(missing) == 0 {
		return out
	}

	for _, result := range s.gateway.MultipleItems(ctx, missing, token) {
		out[result.ListingID] = result
		if result.Err == nil && result.Listing != nil {
			s.cache.Set(listingCacheKey(accountID, result.ListingID),
				result.Listing, model.CategoryListing, model.Hint{})
		}
	}
	return out
}

// markError persists a failed reconciliation attempt for a listing.
func (s *SyncService) markError(ctx context.Context, link model.ListingLink, reason string) {
	if err := s.links.UpdateSyncState(ctx, link.ListingID, model.SyncStatusError,
		link.LastRemoteQuantity, s.now(), reason); err != nil {
		s.logger.Warn("Failed to persist error state",
			zap.String("listing_id", link.ListingID),
			zap.Error(err))
	}
}

// finish seals the task, persists it and records metrics.
func (s *SyncService) finish(ctx context.Context, task *model.SyncTask) {
	task.Seal(s.now())

	if err := s.tasks.SealTask(ctx, task); err != nil {
		s.logger.Warn("Failed to persist sync task", zap.Error(err))
	}

	if s.metrics != nil {
		status := "success"
		if !task.Success {
			status = "failure"
		}
		s.metrics.SyncTasksTotal.WithLabelValues(string(task.Strategy), status).Inc()
		s.metrics.SyncTaskDuration.Observe(task.Duration.Seconds())
		s.metrics.SyncErrorsTotal.Add(float64(task.Errored))
	}

	s.logger.Info("Sync pass finished",
		zap.String("task_id", task.ID),
		zap.String("strategy", string(task.Strategy)),
		zap.Int("processed", task.Processed),
		zap.Int("updated", task.Updated),
		zap.Int("created", task.Created),
		zap.Int("errored", task.Errored),
		zap.Bool("success", task.Success),
		zap.Duration("duration", task.Duration))
}

func (s *SyncService) countItem(outcome string) {
	if s.metrics != nil {
		s.metrics.SyncItemsTotal.WithLabelValues(outcome).Inc()
	}
}

// SuggestRestock answers a restock query for one product from local stock
// truth and the last known remote quantity.
func (s *SyncService) SuggestRestock(ctx context.Context, productID string) (*model.RestockSuggestion, error) {
	snapshot, err := s.stocks.Snapshot(ctx, productID)
	if err != nil {
		return nil, err
	}

	remote := 0
	if link, err := s.links.LinkForProduct(ctx, productID); err == nil {
		remote = link.LastRemoteQuantity
	}

	target := s.thresholds.LowStockFloor * 4
	shortfall := target - remote
	if shortfall < 0 {
		shortfall = 0
	}
	transfer := shortfall
	if transfer > snapshot.Total {
		transfer = snapshot.Total
	}

	urgency := "low"
	switch {
	case remote == 0 && snapshot.Total > 0:
		urgency = "critical"
	case remote <= s.thresholds.LowStockFloor:
		urgency = "high"
	case shortfall > 0:
		urgency = "medium"
	}

	return &model.RestockSuggestion{
		ProductID:         productID,
		LocalStock:        snapshot.Total,
		RemoteStock:       remote,
		SuggestedTransfer: transfer,
		SuggestedPurchase: shortfall - transfer,
		Urgency:           urgency,
	}, nil
}

func listingCacheKey(accountID, listingID string) string {
	return "account:" + accountID + ":listing:" + listingID
}
