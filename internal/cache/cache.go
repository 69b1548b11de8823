// Package cache implements the in-memory working-set cache for marketplace
// data. TTLs are assigned per data category with caller hints layered on
// top, so volatile data (prices, stock) expires fast while slow-moving data
// (account, config) is kept around.
package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/inventoryhub/marketsync/internal/metrics"
	"github.com/inventoryhub/marketsync/internal/model"
	"go.uber.org/zap"
)

const (
	// realtimeCeiling caps the TTL whenever the caller signals a live view.
	realtimeCeiling = time.Minute
	// historicalFloor raises the TTL for 90-day style aggregates.
	historicalFloor = 30 * time.Minute
	// listingPageCeiling bounds how stale a price shown on a product page
	// can get.
	listingPageCeiling = 3 * time.Minute

	defaultTTL = 5 * time.Minute

	// evictFraction is the share of entries dropped (oldest first) when the
	// expired sweep alone does not bring the store under capacity.
	evictFraction = 0.2

	userPrefix = "user:"
)

// baseTTL maps each data category to its base volatility.
var baseTTL = map[model.Category]time.Duration{
	model.CategoryStock:     45 * time.Second,
	model.CategoryPrice:     90 * time.Second,
	model.CategoryListing:   3 * time.Minute,
	model.CategoryOrder:     5 * time.Minute,
	model.CategorySales:     10 * time.Minute,
	model.CategoryAnalytics: 15 * time.Minute,
	model.CategoryAccount:   30 * time.Minute,
	model.CategoryConfig:    time.Hour,
	model.CategoryDefault:   defaultTTL,
}

// Config holds cache configuration
type Config struct {
	MaxEntries int
}

// Service is the category-aware TTL cache. Writes are atomic single-key
// replacements; readers never observe a partially written entry.
type Service struct {
	config  *Config
	entries map[string]*model.CacheEntry
	logger  *zap.Logger
	metrics *metrics.Metrics
	mu      sync.Mutex

	hits      uint64
	misses    uint64
	evictions uint64

	now func() time.Time
}

// NewService creates a new cache service
func NewService(cfg *Config, m *metrics.Metrics, logger *zap.Logger) *Service {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 5000
	}
	return &Service{
		config:  cfg,
		entries: make(map[string]*model.CacheEntry),
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Set stores a value under key with a TTL derived from category and hint.
// If the store is at capacity, eviction runs before the insert.
func (s *Service) Set(key string, value any, category model.Category, hint model.Hint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.config.MaxEntries {
		s.evict()
	}

	s.entries[key] = &model.CacheEntry{
		Key:       key,
		Value:     value,
		Category:  category,
		CreatedAt: s.now(),
		TTL:       TTLFor(category, hint),
	}
	if s.metrics != nil {
		s.metrics.CacheEntriesTotal.Set(float64(len(s.entries)))
	}
}

// Get returns the value for key if present and unexpired. Absence is a
// normal outcome, never an error; expired entries are lazily deleted.
func (s *Service) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, found := s.entries[key]
	if !found {
		s.miss()
		return nil, false
	}
	if entry.Expired(s.now()) {
		delete(s.entries, key)
		s.miss()
		return nil, false
	}

	s.hits++
	if s.metrics != nil {
		s.metrics.CacheHitsTotal.Inc()
	}
	return entry.Value, true
}

// InvalidatePattern deletes every key containing substr and returns the
// number of entries removed. Used after mutations that make cached reads
// stale.
func (s *Service) InvalidatePattern(substr string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for key := range s.entries {
		if strings.Contains(key, substr) {
			delete(s.entries, key)
			count++
		}
	}

	if count > 0 {
		s.logger.Debug("Invalidated cache entries",
			zap.String("pattern", substr),
			zap.Int("count", count))
	}
	if s.metrics != nil {
		s.metrics.CacheEntriesTotal.Set(float64(len(s.entries)))
	}
	return count
}

// SetForUser stores a value namespaced under a tenant.
func (s *Service) SetForUser(tenantID, key string, value any, category model.Category, hint model.Hint) {
	s.Set(userKey(tenantID, key), value, category, hint)
}

// GetForUser retrieves a tenant-namespaced value.
func (s *Service) GetForUser(tenantID, key string) (any, bool) {
	return s.Get(userKey(tenantID, key))
}

// InvalidateUser removes every entry belonging to one tenant, leaving other
// tenants untouched.
func (s *Service) InvalidateUser(tenantID string) int {
	return s.InvalidatePattern(userKey(tenantID, ""))
}

// WithCache returns the cached value for key, or runs producer, stores its
// result and returns it. A cache miss is resolved by the producer, never
// surfaced as an error.
func (s *Service) WithCache(ctx context.Context, key string, category model.Category, hint model.Hint, producer func(context.Context) (any, error)) (any, error) {
	if value, ok := s.Get(key); ok {
		return value, nil
	}

	value, err := producer(ctx)
	if err != nil {
		return nil, err
	}

	s.Set(key, value, category, hint)
	return value, nil
}

// Stats returns hit/miss accounting and current occupancy.
func (s *Service) Stats() model.CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return model.CacheStats{
		Entries:    len(s.entries),
		MaxEntries: s.config.MaxEntries,
		Hits:       s.hits,
		Misses:     s.misses,
		Evictions:  s.evictions,
	}
}

// TTLFor computes the TTL for a category with hint adjustments applied in
// order: realtime ceiling, historical floor, listing-page ceiling.
func TTLFor(category model.Category, hint model.Hint) time.Duration {
	ttl, ok := baseTTL[category]
	if !ok {
		ttl = defaultTTL
	}

	if hint.Realtime && ttl > realtimeCeiling {
		ttl = realtimeCeiling
	}
	if hint.Historical && ttl < historicalFloor {
		ttl = historicalFloor
	}
	if hint.ListingPage && ttl > listingPageCeiling {
		ttl = listingPageCeiling
	}
	return ttl
}

func (s *Service) miss() {
	s.misses++
	if s.metrics != nil {
		s.metrics.CacheMissesTotal.Inc()
	}
}

// evict makes room for one insert: first sweep everything already expired,
// then, if still at capacity, drop the oldest entries by creation time.
// Caller must hold the lock.
func (s *Service) evict() {
	now := s.now()
	swept := 0
	for key, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, key)
			s.evictions++
			swept++
		}
	}
	if s.metrics != nil && swept > 0 {
		s.metrics.CacheEvictionsTotal.Add(float64(swept))
	}

	if len(s.entries) < s.config.MaxEntries {
		return
	}

	// Still over capacity: drop the oldest ~20% by write recency. Write
	// recency stands in for read recency in this workload.
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return s.entries[keys[i]].CreatedAt.Before(s.entries[keys[j]].CreatedAt)
	})

	drop := int(float64(len(keys)) * evictFraction)
	if drop < 1 {
		drop = 1
	}
	for _, key := range keys[:drop] {
		delete(s.entries, key)
		s.evictions++
	}

	if s.metrics != nil {
		s.metrics.CacheEvictionsTotal.Add(float64(drop))
	}
	s.logger.Debug("Evicted cache entries",
		zap.Int("dropped", drop),
		zap.Int("remaining", len(s.entries)))
}

func userKey(tenantID, key string) string {
	return userPrefix + tenantID + ":" + key
}
