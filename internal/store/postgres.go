package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/inventoryhub/marketsync/internal/errors"
	"github.com/inventoryhub/marketsync/internal/model"
	"go.uber.org/zap"
)

// Postgres implements the store interfaces over PostgreSQL.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres creates a PostgreSQL-backed store.
func NewPostgres(
	host string,
	port int,
	database, user, password string,
	maxConns, minConns int,
	logger *zap.Logger,
) (*Postgres, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s pool_max_conns=%d pool_min_conns=%d",
		host, port, database, user, password, maxConns, minConns,
	)

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close releases the connection pool.
func (s *Postgres) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Snapshot returns the stock snapshot for one product, aggregated across
// warehouses.
func (s *Postgres) Snapshot(ctx context.Context, productID string) (*model.LocalStockSnapshot, error) {
	query := `
		SELECT w.warehouse_id, w.quantity, p.cost_cents, p.updated_at
		FROM warehouse_stock w
		JOIN products p ON p.product_id = w.product_id
		WHERE w.product_id = $1
	`

	rows, err := s.pool.Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock snapshot: %w", err)
	}
	defer rows.Close()

	snapshot := &model.LocalStockSnapshot{
		ProductID:    productID,
		PerWarehouse: make(map[string]int),
	}
	found := false
	for rows.Next() {
		var warehouseID string
		var quantity int
		if err := rows.Scan(&warehouseID, &quantity, &snapshot.CostCents, &snapshot.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stock row: %w", err)
		}
		snapshot.PerWarehouse[warehouseID] = quantity
		snapshot.Total += quantity
		found = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stock rows: %w", err)
	}
	if !found {
		return nil, apperrors.NotFound("product", productID)
	}
	return snapshot, nil
}

// Snapshots returns the snapshots for a set of products.
func (s *Postgres) Snapshots(ctx context.Context, productIDs []string) (map[string]*model.LocalStockSnapshot, error) {
	query := `
		SELECT w.product_id, w.warehouse_id, w.quantity, p.cost_cents, p.updated_at
		FROM warehouse_stock w
		JOIN products p ON p.product_id = w.product_id
		WHERE w.product_id = ANY($1)
	`

	rows, err := s.pool.Query(ctx, query, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock snapshots: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*model.LocalStockSnapshot)
	for rows.Next() {
		var productID, warehouseID string
		var quantity int
		var costCents int64
		var updatedAt time.Time
		if err := rows.Scan(&productID, &warehouseID, &quantity, &costCents, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stock row: %w", err)
		}
		snapshot, ok := out[productID]
		if !ok {
			snapshot = &model.LocalStockSnapshot{
				ProductID:    productID,
				PerWarehouse: make(map[string]int),
				CostCents:    costCents,
				UpdatedAt:    updatedAt,
			}
			out[productID] = snapshot
		}
		snapshot.PerWarehouse[warehouseID] = quantity
		snapshot.Total += quantity
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stock rows: %w", err)
	}
	return out, nil
}

const linkColumns = `listing_id, product_id, account_id, last_remote_quantity,
	last_price_cents, sync_status, COALESCE(sync_error, ''), last_synced_at, updated_at`

// LinksForAccount returns every link belonging to an account.
func (s *Postgres) LinksForAccount(ctx context.Context, accountID string) ([]model.ListingLink, error) {
	query := fmt.Sprintf(`SELECT %s FROM listing_links WHERE account_id = $1 ORDER BY listing_id`, linkColumns)
	return s.queryLinks(ctx, query, accountID)
}

// LinkForProduct returns the link for a local product.
func (s *Postgres) LinkForProduct(ctx context.Context, productID string) (*model.ListingLink, error) {
	query := fmt.Sprintf(`SELECT %s FROM listing_links WHERE product_id = $1`, linkColumns)

	var link model.ListingLink
	err := s.pool.QueryRow(ctx, query, productID).Scan(
		&link.ListingID, &link.ProductID, &link.AccountID, &link.LastRemoteQuantity,
		&link.LastPriceCents, &link.SyncStatus, &link.SyncError, &link.LastSyncedAt, &link.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("listing link", productID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query listing link: %w", err)
	}
	return &link, nil
}

// CreateLink records a new listing link.
func (s *Postgres) CreateLink(ctx context.Context, link *model.ListingLink) error {
	query := `
		INSERT INTO listing_links
			(listing_id, product_id, account_id, last_remote_quantity,
			 last_price_cents, sync_status, sync_error, last_synced_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (listing_id) DO NOTHING
	`

	_, err := s.pool.Exec(ctx, query,
		link.ListingID, link.ProductID, link.AccountID, link.LastRemoteQuantity,
		link.LastPriceCents, link.SyncStatus, link.SyncError, link.LastSyncedAt, link.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create listing link: %w", err)
	}
	return nil
}

// ModifiedSince returns links whose local side changed after the given instant.
func (s *Postgres) ModifiedSince(ctx context.Context, accountID string, since time.Time) ([]model.ListingLink, error) {
	query := fmt.Sprintf(`SELECT %s FROM listing_links
		WHERE account_id = $1 AND updated_at > $2 ORDER BY listing_id`, linkColumns)
	return s.queryLinks(ctx, query, accountID, since)
}

// CriticallyLow returns links with remote quantity at or below the floor.
func (s *Postgres) CriticallyLow(ctx context.Context, accountID string, floor int) ([]model.ListingLink, error) {
	query := fmt.Sprintf(`SELECT %s FROM listing_links
		WHERE account_id = $1 AND last_remote_quantity <= $2 ORDER BY listing_id`, linkColumns)
	return s.queryLinks(ctx, query, accountID, floor)
}

// InErrorState returns links whose last sync attempt failed.
func (s *Postgres) InErrorState(ctx context.Context, accountID string) ([]model.ListingLink, error) {
	query := fmt.Sprintf(`SELECT %s FROM listing_links
		WHERE account_id = $1 AND sync_status = 'error' ORDER BY listing_id`, linkColumns)
	return s.queryLinks(ctx, query, accountID)
}

// UpdateSyncState writes the outcome of a reconciliation attempt.
func (s *Postgres) UpdateSyncState(ctx context.Context, listingID string, status model.SyncStatus, remoteQty int, syncedAt time.Time, syncErr string) error {
	query := `
		UPDATE listing_links
		SET sync_status = $2, last_remote_quantity = $3, last_synced_at = $4, sync_error = $5
		WHERE listing_id = $1
	`

	tag, err := s.pool.Exec(ctx, query, listingID, status, remoteQty, syncedAt, syncErr)
	if err != nil {
		return fmt.Errorf("failed to update sync state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("listing link", listingID)
	}
	return nil
}

// CreateTask records a newly started sync task.
func (s *Postgres) CreateTask(ctx context.Context, task *model.SyncTask) error {
	query := `
		INSERT INTO sync_tasks (task_id, account_id, strategy, started_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := s.pool.Exec(ctx, query, task.ID, task.AccountID, task.Strategy, task.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create sync task: %w", err)
	}
	return nil
}

// SealTask writes the final counters of a finished task.
func (s *Postgres) SealTask(ctx context.Context, task *model.SyncTask) error {
	query := `
		UPDATE sync_tasks
		SET processed = $2, updated = $3, created = $4, errored = $5,
			errors = $6, success = $7, ended_at = $8, duration_ms = $9
		WHERE task_id = $1
	`

	_, err := s.pool.Exec(ctx, query,
		task.ID, task.Processed, task.Updated, task.Created, task.Errored,
		task.Errors, task.Success, task.EndedAt, task.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to seal sync task: %w", err)
	}
	return nil
}

// RecentTasks returns the most recent tasks for an account, newest first.
func (s *Postgres) RecentTasks(ctx context.Context, accountID string, limit int) ([]model.SyncTask, error) {
	query := `
		SELECT task_id, account_id, strategy, processed, updated, created, errored,
			COALESCE(errors, '{}'), success, started_at, ended_at
		FROM sync_tasks
		WHERE account_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync tasks: %w", err)
	}
	defer rows.Close()

	var out []model.SyncTask
	for rows.Next() {
		var task model.SyncTask
		if err := rows.Scan(
			&task.ID, &task.AccountID, &task.Strategy, &task.Processed, &task.Updated,
			&task.Created, &task.Errored, &task.Errors, &task.Success,
			&task.StartedAt, &task.EndedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sync task: %w", err)
		}
		out = append(out, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sync task rows: %w", err)
	}
	return out, nil
}

// TokenPair returns the stored credentials for an account.
func (s *Postgres) TokenPair(ctx context.Context, accountID string) (*model.TokenPair, error) {
	query := `
		SELECT account_id, access_token, refresh_token, expires_at
		FROM marketplace_tokens
		WHERE account_id = $1
	`

	var pair model.TokenPair
	err := s.pool.QueryRow(ctx, query, accountID).Scan(
		&pair.AccountID, &pair.AccessToken, &pair.RefreshToken, &pair.ExpiresAt,
	)
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("token pair", accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query token pair: %w", err)
	}
	return &pair, nil
}

// SaveTokenPair stores refreshed credentials.
func (s *Postgres) SaveTokenPair(ctx context.Context, pair *model.TokenPair) error {
	query := `
		INSERT INTO marketplace_tokens (account_id, access_token, refresh_token, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id) DO UPDATE
		SET access_token = $2, refresh_token = $3, expires_at = $4
	`

	_, err := s.pool.Exec(ctx, query, pair.AccountID, pair.AccessToken, pair.RefreshToken, pair.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to save token pair: %w", err)
	}
	return nil
}

func (s *Postgres) queryLinks(ctx context.Context, query string, args ...any) ([]model.ListingLink, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query listing links: %w", err)
	}
	defer rows.Close()

	var out []model.ListingLink
	for rows.Next() {
		var link model.ListingLink
		if err := rows.Scan(
			&link.ListingID, &link.ProductID, &link.AccountID, &link.LastRemoteQuantity,
			&link.LastPriceCents, &link.SyncStatus, &link.SyncError, &link.LastSyncedAt, &link.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan listing link: %w", err)
		}
		out = append(out, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read listing link rows: %w", err)
	}
	return out, nil
}
