package model

import "time"

// Severity ranks alerts. Higher values sort first.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityCritical
)

// String returns the wire name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	}
	return "none"
}

// AlertType identifies the condition that raised an alert.
type AlertType string

const (
	AlertZeroRemoteStock AlertType = "zero_remote_stock"
	AlertLowRemoteStock  AlertType = "low_remote_stock"
	AlertStockDivergence AlertType = "stock_divergence"
	AlertStaleSync       AlertType = "stale_sync"
	AlertMarginOutOfBand AlertType = "margin_out_of_band"
)

// Alert is a derived health finding for one listing. Alerts are a pure
// read-side projection; recomputation is idempotent.
type Alert struct {
	ID        string    `json:"id"`
	Type      AlertType `json:"type"`
	Severity  Severity  `json:"-"`
	Level     string    `json:"severity"`
	ListingID string    `json:"listing_id"`
	ProductID string    `json:"product_id,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthReport is the monitoring projection for one account over a period.
type HealthReport struct {
	AccountID  string         `json:"account_id"`
	Score      int            `json:"score"`
	Status     string         `json:"status"`
	Breakdown  map[string]int `json:"per_category_breakdown"`
	Alerts     []Alert        `json:"alerts"`
	Insights   []string       `json:"insights"`
	Period     time.Duration  `json:"-"`
	ComputedAt time.Time      `json:"computed_at"`
}
