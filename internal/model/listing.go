package model

import (
	"math"
	"time"
)

// ListingStatus defines the marketplace-side state of a listing.
type ListingStatus string

const (
	ListingStatusActive      ListingStatus = "active"
	ListingStatusPaused      ListingStatus = "paused"
	ListingStatusClosed      ListingStatus = "closed"
	ListingStatusUnderReview ListingStatus = "under_review"
	ListingStatusInactive    ListingStatus = "inactive"
)

// RemoteListing mirrors a marketplace listing. The marketplace owns this
// data; locally it is a read-mostly cache of truth. All monetary fields are
// integer minor units (cents).
type RemoteListing struct {
	ID                 string
	Title              string
	PriceCents         int64
	OriginalPriceCents int64 // 0 when no promotion applies
	AvailableQuantity  int
	SoldQuantity       int
	Status             ListingStatus
	LastUpdated        time.Time
	ShippingMode       string
}

// Discounted reports whether the listing carries a promotional price.
func (l *RemoteListing) Discounted() bool {
	return l.OriginalPriceCents > 0 && l.OriginalPriceCents > l.PriceCents
}

// ItemResult is the per-item outcome of a batched listing fetch. A failed
// item carries its error without aborting siblings.
type ItemResult struct {
	ListingID string
	Listing   *RemoteListing
	Err       error
}

// LocalStockSnapshot is the warehouse-side stock truth for one product,
// read from the persistence layer.
type LocalStockSnapshot struct {
	ProductID    string
	PerWarehouse map[string]int
	Total        int
	CostCents    int64
	UpdatedAt    time.Time
}

// SyncStatus is the persisted sync state of a listing link.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusOK      SyncStatus = "ok"
	SyncStatusError   SyncStatus = "error"
)

// ListingLink ties a marketplace listing to a local product and records the
// last known sync state for that listing.
type ListingLink struct {
	ListingID          string
	ProductID          string
	AccountID          string
	LastRemoteQuantity int
	LastPriceCents     int64
	SyncStatus         SyncStatus
	SyncError          string
	LastSyncedAt       time.Time
	UpdatedAt          time.Time
}

// Order is a marketplace sale record, used for sales ranking and health
// projections.
type Order struct {
	ID         string
	ListingID  string
	Quantity   int
	TotalCents int64
	Status     string
	CreatedAt  time.Time
}

// TokenPair holds the marketplace OAuth credentials for one account.
type TokenPair struct {
	AccountID    string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Valid reports whether the access token is still usable at the given
// instant, with a safety margin for in-flight requests.
func (t *TokenPair) Valid(now time.Time) bool {
	return t.AccessToken != "" && now.Add(60*time.Second).Before(t.ExpiresAt)
}

// CentsFromFloat converts an upstream decimal amount to integer cents.
// All conversion from float money happens at the gateway boundary.
func CentsFromFloat(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
