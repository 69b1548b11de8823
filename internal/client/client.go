// Package client implements the remote listing gateway over the
// marketplace's paginated, rate-limited REST API. It hides token lifecycle,
// chunked batch fetches and pagination behind a small set of operations.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/inventoryhub/marketsync/internal/errors"
	"github.com/inventoryhub/marketsync/internal/metrics"
	"github.com/inventoryhub/marketsync/internal/model"
	"github.com/inventoryhub/marketsync/internal/store"
	"github.com/inventoryhub/marketsync/internal/util/batch"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// itemFetchConcurrency bounds concurrent per-item requests inside one chunk.
const itemFetchConcurrency = 5

// Config holds gateway configuration
type Config struct {
	BaseURL           string
	ClientID          string
	ClientSecret      string
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	Burst             int
	ChunkSize         int
	ChunkDelay        time.Duration
	MaxPages          int
	MaxOrders         int
	PageSize          int
}

// Client is the remote listing gateway.
type Client struct {
	cfg        *Config
	httpClient *http.Client
	limiter    *rate.Limiter
	tokens     store.TokenStore
	metrics    *metrics.Metrics
	logger     *zap.Logger

	now func() time.Time
}

// NewClient creates a new marketplace gateway client
func NewClient(cfg *Config, tokens store.TokenStore, m *metrics.Metrics, logger *zap.Logger) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 8
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 16
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 20
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		tokens:     tokens,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

// ValidToken returns a usable access token for the account, refreshing and
// persisting the pair first when the stored token is expired. Callers never
// see raw expiry handling.
func (c *Client) ValidToken(ctx context.Context, accountID string) (string, error) {
	pair, err := c.tokens.TokenPair(ctx, accountID)
	if err != nil {
		return "", fmt.Errorf("failed to load token pair: %w", err)
	}

	if pair.Valid(c.now()) {
		return pair.AccessToken, nil
	}

	c.logger.Info("Refreshing marketplace token", zap.String("account_id", accountID))

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"refresh_token": {pair.RefreshToken},
	}

	var dto tokenDTO
	if err := c.postForm(ctx, "/oauth/token", form, &dto); err != nil {
		return "", fmt.Errorf("token refresh for account %s: %w", accountID, err)
	}

	refreshed := &model.TokenPair{
		AccountID:    accountID,
		AccessToken:  dto.AccessToken,
		RefreshToken: dto.RefreshToken,
		ExpiresAt:    c.now().Add(time.Duration(dto.ExpiresIn) * time.Second),
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = pair.RefreshToken
	}

	// Persist before use so a crash cannot lose the rotated refresh token.
	if err := c.tokens.SaveTokenPair(ctx, refreshed); err != nil {
		return "", apperrors.StoreFailed("failed to persist refreshed token pair", err)
	}

	if c.metrics != nil {
		c.metrics.TokenRefreshesTotal.Inc()
	}
	return refreshed.AccessToken, nil
}

// Item fetches one listing. When the primary payload shows no discounted
// price, a best-effort secondary lookup against the prices endpoint resolves
// promotions; its failure falls back to the primary price fields.
func (c *Client) Item(ctx context.Context, id, token string) (*model.RemoteListing, error) {
	var dto itemDTO
	if err := c.get(ctx, "/items/"+id, token, nil, &dto); err != nil {
		return nil, fmt.Errorf("failed to fetch item %s: %w", id, err)
	}

	listing := dto.toListing()
	if !listing.Discounted() {
		c.resolvePromotion(ctx, listing, token)
	}
	return listing, nil
}

// MultipleItems fetches listings in chunks with a small inter-chunk delay.
// Every item settles with its own result; a failed item never aborts
// already-successful chunks or its siblings.
func (c *Client) MultipleItems(ctx context.Context, ids []string, token string) []model.ItemResult {
	var out []model.ItemResult

	chunks := batch.Chunk(ids, c.cfg.ChunkSize)
	for i, chunk := range chunks {
		results := batch.Run(ctx, itemFetchConcurrency, chunk,
			func(ctx context.Context, id string) (*model.RemoteListing, error) {
				return c.Item(ctx, id, token)
			})

		for _, r := range results {
			out = append(out, model.ItemResult{ListingID: r.ID, Listing: r.Value, Err: r.Err})
		}

		if i < len(chunks)-1 && c.cfg.ChunkDelay > 0 {
			select {
			case <-ctx.Done():
				return out
			case <-time.After(c.cfg.ChunkDelay):
			}
		}
	}
	return out
}

// UserItems returns one page of the account's listing ids.
func (c *Client) UserItems(ctx context.Context, token string, offset, limit int) ([]string, int, error) {
	query := url.Values{
		"offset": {strconv.Itoa(offset)},
		"limit":  {strconv.Itoa(limit)},
	}

	var dto itemSearchDTO
	if err := c.get(ctx, "/users/me/items/search", token, query, &dto); err != nil {
		return nil, 0, fmt.Errorf("failed to list user items: %w", err)
	}
	return dto.Results, dto.Paging.Total, nil
}

// AllUserItemIDs enumerates the account's listings across pages, stopping at
// a short page or the page safety cap.
func (c *Client) AllUserItemIDs(ctx context.Context, token string) ([]string, error) {
	var ids []string

	for page := 0; page < c.cfg.MaxPages; page++ {
		results, _, err := c.UserItems(ctx, token, page*c.cfg.PageSize, c.cfg.PageSize)
		if err != nil {
			return nil, err
		}
		ids = append(ids, results...)
		if len(results) < c.cfg.PageSize {
			break
		}
	}
	return ids, nil
}

// UserOrders enumerates the account's orders created after since, bounded by
// the page and record safety caps.
func (c *Client) UserOrders(ctx context.Context, token, sellerID string, since time.Time) ([]model.Order, error) {
	var orders []model.Order

	for page := 0; page < c.cfg.MaxPages; page++ {
		query := url.Values{
			"seller":                  {sellerID},
			"order.date_created.from": {since.Format(time.RFC3339)},
			"sort":                    {"date_desc"},
			"offset":                  {strconv.Itoa(page * c.cfg.PageSize)},
			"limit":                   {strconv.Itoa(c.cfg.PageSize)},
		}

		var dto orderSearchDTO
		if err := c.get(ctx, "/orders/search", token, query, &dto); err != nil {
			return nil, fmt.Errorf("failed to search orders: %w", err)
		}

		for _, o := range dto.Results {
			for _, line := range o.OrderItems {
				orders = append(orders, model.Order{
					ID:         strconv.FormatInt(o.ID, 10),
					ListingID:  line.Item.ID,
					Quantity:   line.Quantity,
					TotalCents: model.CentsFromFloat(line.UnitPrice * float64(line.Quantity)),
					Status:     o.Status,
					CreatedAt:  o.DateCreated,
				})
			}
		}

		if c.cfg.MaxOrders > 0 && len(orders) >= c.cfg.MaxOrders {
			orders = orders[:c.cfg.MaxOrders]
			break
		}
		if len(dto.Results) < c.cfg.PageSize {
			break
		}
	}
	return orders, nil
}

// UpdateItemStock pushes a corrected available quantity to the marketplace.
func (c *Client) UpdateItemStock(ctx context.Context, id string, quantity int, token string) error {
	patch := map[string]any{"available_quantity": quantity}
	if err := c.put(ctx, "/items/"+id, token, patch, nil); err != nil {
		return fmt.Errorf("failed to update stock for item %s: %w", id, err)
	}

	c.logger.Debug("Pushed stock update",
		zap.String("listing_id", id),
		zap.Int("quantity", quantity))
	return nil
}

// UpdateItem applies an arbitrary patch to a listing.
func (c *Client) UpdateItem(ctx context.Context, id string, patch map[string]any, token string) error {
	if err := c.put(ctx, "/items/"+id, token, patch, nil); err != nil {
		return fmt.Errorf("failed to update item %s: %w", id, err)
	}
	return nil
}

// resolvePromotion looks up the prices endpoint for a promotional price.
// Best-effort: any failure keeps the primary price fields.
func (c *Client) resolvePromotion(ctx context.Context, listing *model.RemoteListing, token string) {
	var dto pricesDTO
	if err := c.get(ctx, "/items/"+listing.ID+"/prices", token, nil, &dto); err != nil {
		c.logger.Debug("Promotion lookup failed, keeping primary price",
			zap.String("listing_id", listing.ID),
			zap.Error(err))
		return
	}

	for _, entry := range dto.Prices {
		if entry.Type == "promotion" && entry.Amount > 0 {
			listing.PriceCents = model.CentsFromFloat(entry.Amount)
			if entry.RegularAmount > 0 {
				listing.OriginalPriceCents = model.CentsFromFloat(entry.RegularAmount)
			}
			return
		}
	}
}

func (c *Client) get(ctx context.Context, path, token string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, token, query, nil, out)
}

func (c *Client) put(ctx context.Context, path, token string, body, out any) error {
	return c.do(ctx, http.MethodPut, path, token, nil, body, out)
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.send(req, path, out)
}

func (c *Client) do(ctx context.Context, method, path, token string, query url.Values, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	fullURL := c.cfg.BaseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.send(req, path, out)
}

// send executes the request and maps the response status to the error
// taxonomy: 401/403 are fatal authorization failures, 429 and 5xx are
// transient.
func (c *Client) send(req *http.Request, endpoint string, out any) error {
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(endpoint, "network_error", start)
		return fmt.Errorf("%w: %v", apperrors.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	c.observe(endpoint, strconv.Itoa(resp.StatusCode), start)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s returned %d", apperrors.ErrUnauthorized, endpoint, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", apperrors.ErrNotFound, endpoint)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", apperrors.ErrRateLimited, endpoint)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s returned %d", apperrors.ErrUpstreamUnavailable, endpoint, resp.StatusCode)
	case resp.StatusCode >= 400:
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperrors.InvalidArgument(
			fmt.Sprintf("%s returned %d: %s", endpoint, resp.StatusCode, payload), nil)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}

func (c *Client) observe(endpoint, status string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.UpstreamRequestsTotal.WithLabelValues(metricEndpoint(endpoint), status).Inc()
	c.metrics.UpstreamRequestDuration.Observe(time.Since(start).Seconds())
}

// metricEndpoint collapses resource ids out of a path to keep the metric
// label cardinality bounded.
func metricEndpoint(path string) string {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for i, part := range parts {
		if strings.ContainsAny(part, "0123456789") {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}
