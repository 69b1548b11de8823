package store

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "github.com/inventoryhub/marketsync/internal/errors"
	"github.com/inventoryhub/marketsync/internal/model"
)

// Memory is an in-memory implementation of all store interfaces, used in
// tests and for local development without a database.
type Memory struct {
	mu     sync.RWMutex
	stocks map[string]*model.LocalStockSnapshot
	links  map[string]*model.ListingLink // keyed by listing id
	tasks  []*model.SyncTask
	tokens map[string]*model.TokenPair
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		stocks: make(map[string]*model.LocalStockSnapshot),
		links:  make(map[string]*model.ListingLink),
		tokens: make(map[string]*model.TokenPair),
	}
}

// PutStock seeds a stock snapshot.
func (m *Memory) PutStock(snapshot *model.LocalStockSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stocks[snapshot.ProductID] = snapshot
}

// Snapshot returns the stock snapshot for one product.
func (m *Memory) Snapshot(ctx context.Context, productID string) (*model.LocalStockSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot, ok := m.stocks[productID]
	if !ok {
		return nil, apperrors.NotFound("product", productID)
	}
	copied := *snapshot
	return &copied, nil
}

// Snapshots returns the snapshots for a set of products.
func (m *Memory) Snapshots(ctx context.Context, productIDs []string) (map[string]*model.LocalStockSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]*model.LocalStockSnapshot, len(productIDs))
	for _, id := range productIDs {
		if snapshot, ok := m.stocks[id]; ok {
			copied := *snapshot
			out[id] = &copied
		}
	}
	return out, nil
}

// LinksForAccount returns every link belonging to an account.
func (m *Memory) LinksForAccount(ctx context.Context, accountID string) ([]model.ListingLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterLinks(func(l *model.ListingLink) bool {
		return l.AccountID == accountID
	}), nil
}

// LinkForProduct returns the link for a local product.
func (m *Memory) LinkForProduct(ctx context.Context, productID string) (*model.ListingLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, link := range m.links {
		if link.ProductID == productID {
			copied := *link
			return &copied, nil
		}
	}
	return nil, apperrors.NotFound("listing link", productID)
}

// CreateLink records a new listing link.
func (m *Memory) CreateLink(ctx context.Context, link *model.ListingLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *link
	m.links[link.ListingID] = &copied
	return nil
}

// ModifiedSince returns links whose local side changed after the given instant.
func (m *Memory) ModifiedSince(ctx context.Context, accountID string, since time.Time) ([]model.ListingLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterLinks(func(l *model.ListingLink) bool {
		return l.AccountID == accountID && l.UpdatedAt.After(since)
	}), nil
}

// CriticallyLow returns links with remote quantity at or below the floor.
func (m *Memory) CriticallyLow(ctx context.Context, accountID string, floor int) ([]model.ListingLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterLinks(func(l *model.ListingLink) bool {
		return l.AccountID == accountID && l.LastRemoteQuantity <= floor
	}), nil
}

// InErrorState returns links whose last sync attempt failed.
func (m *Memory) InErrorState(ctx context.Context, accountID string) ([]model.ListingLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterLinks(func(l *model.ListingLink) bool {
		return l.AccountID == accountID && l.SyncStatus == model.SyncStatusError
	}), nil
}

// UpdateSyncState writes the outcome of a reconciliation attempt.
func (m *Memory) UpdateSyncState(ctx context.Context, listingID string, status model.SyncStatus, remoteQty int, syncedAt time.Time, syncErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, ok := m.links[listingID]
	if !ok {
		return apperrors.NotFound("listing link", listingID)
	}
	link.SyncStatus = status
	link.LastRemoteQuantity = remoteQty
	link.LastSyncedAt = syncedAt
	link.SyncError = syncErr
	return nil
}

// CreateTask records a newly started sync task.
func (m *Memory) CreateTask(ctx context.Context, task *model.SyncTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *task
	m.tasks = append(m.tasks, &copied)
	return nil
}

// SealTask writes the final counters of a finished task.
func (m *Memory) SealTask(ctx context.Context, task *model.SyncTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, existing := range m.tasks {
		if existing.ID == task.ID {
			copied := *task
			m.tasks[i] = &copied
			return nil
		}
	}
	return apperrors.NotFound("sync task", task.ID)
}

// RecentTasks returns the most recent tasks for an account, newest first.
func (m *Memory) RecentTasks(ctx context.Context, accountID string, limit int) ([]model.SyncTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.SyncTask
	for _, task := range m.tasks {
		if task.AccountID == accountID {
			out = append(out, *task)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// TokenPair returns the stored credentials for an account.
func (m *Memory) TokenPair(ctx context.Context, accountID string) (*model.TokenPair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pair, ok := m.tokens[accountID]
	if !ok {
		return nil, apperrors.NotFound("token pair", accountID)
	}
	copied := *pair
	return &copied, nil
}

// SaveTokenPair stores refreshed credentials.
func (m *Memory) SaveTokenPair(ctx context.Context, pair *model.TokenPair) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *pair
	m.tokens[pair.AccountID] = &copied
	return nil
}

func (m *Memory) filterLinks(keep func(*model.ListingLink) bool) []model.ListingLink {
	var out []model.ListingLink
	for _, link := range m.links {
		if keep(link) {
			out = append(out, *link)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ListingID < out[j].ListingID
	})
	return out
}
