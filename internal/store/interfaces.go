// Package store defines the persistence collaborator interfaces the sync
// core reads and writes through, plus the in-memory and PostgreSQL
// implementations.
package store

import (
	"context"
	"time"

	"github.com/inventoryhub/marketsync/internal/model"
)

// StockStore reads local warehouse stock truth.
type StockStore interface {
	// Snapshot returns the stock snapshot for one product.
	Snapshot(ctx context.Context, productID string) (*model.LocalStockSnapshot, error)

	// Snapshots returns the snapshots for a set of products, keyed by
	// product id. Missing products are simply absent from the map.
	Snapshots(ctx context.Context, productIDs []string) (map[string]*model.LocalStockSnapshot, error)
}

// LinkStore manages listing-to-product link records and per-listing sync
// state.
type LinkStore interface {
	// LinksForAccount returns every link belonging to an account.
	LinksForAccount(ctx context.Context, accountID string) ([]model.ListingLink, error)

	// LinkForProduct returns the link for a local product, if any.
	LinkForProduct(ctx context.Context, productID string) (*model.ListingLink, error)

	// CreateLink records a new listing link.
	CreateLink(ctx context.Context, link *model.ListingLink) error

	// ModifiedSince returns links whose local side changed after the given
	// instant.
	ModifiedSince(ctx context.Context, accountID string, since time.Time) ([]model.ListingLink, error)

	// CriticallyLow returns links whose last known remote quantity is at or
	// below the floor.
	CriticallyLow(ctx context.Context, accountID string, floor int) ([]model.ListingLink, error)

	// InErrorState returns links whose last sync attempt failed.
	InErrorState(ctx context.Context, accountID string) ([]model.ListingLink, error)

	// UpdateSyncState writes the outcome of a reconciliation attempt for
	// one listing: status, last known remote quantity, timestamp and the
	// error message when the attempt failed.
	UpdateSyncState(ctx context.Context, listingID string, status model.SyncStatus, remoteQty int, syncedAt time.Time, syncErr string) error
}

// TaskStore persists sync task history records.
type TaskStore interface {
	// CreateTask records a newly started sync task.
	CreateTask(ctx context.Context, task *model.SyncTask) error

	// SealTask writes the final counters of a finished task.
	SealTask(ctx context.Context, task *model.SyncTask) error

	// RecentTasks returns the most recent tasks for an account, newest
	// first.
	RecentTasks(ctx context.Context, accountID string, limit int) ([]model.SyncTask, error)
}

// TokenStore persists marketplace OAuth credentials per account.
type TokenStore interface {
	// TokenPair returns the stored credentials for an account.
	TokenPair(ctx context.Context, accountID string) (*model.TokenPair, error)

	// SaveTokenPair stores refreshed credentials.
	SaveTokenPair(ctx context.Context, pair *model.TokenPair) error
}
