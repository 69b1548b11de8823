package model

import "time"

// Category classifies cached payloads by volatility. The TTL policy is a
// lookup on this value.
type Category string

const (
	CategoryListing   Category = "listing"
	CategoryPrice     Category = "price"
	CategoryStock     Category = "stock"
	CategoryOrder     Category = "order"
	CategorySales     Category = "sales"
	CategoryAccount   Category = "account"
	CategoryAnalytics Category = "analytics"
	CategoryConfig    Category = "config"
	CategoryDefault   Category = "default"
)

// Hint carries caller intent that adjusts the category base TTL.
type Hint struct {
	Realtime    bool // live view, clamp TTL down
	Historical  bool // 90-day style aggregate, floor TTL up
	ListingPage bool // end-user product/listing page render
}

// CacheEntry represents a single cached value. An entry is valid iff
// now - CreatedAt <= TTL; once invalid it is treated as absent even when
// still physically present.
type CacheEntry struct {
	Key       string
	Value     any
	Category  Category
	CreatedAt time.Time
	TTL       time.Duration
}

// Expired reports whether the entry is past its TTL at the given instant.
func (e *CacheEntry) Expired(now time.Time) bool {
	return now.Sub(e.CreatedAt) > e.TTL
}

// CacheStats holds hit/miss accounting for the cache.
type CacheStats struct {
	Entries    int
	MaxEntries int
	Hits       uint64
	Misses     uint64
	Evictions  uint64
}

// HitRate returns the cache hit rate as a percentage.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100.0
}
