package model

import "time"

// Strategy selects which subset of listings enters a reconciliation pass.
type Strategy string

const (
	StrategyFull          Strategy = "full"
	StrategyModified      Strategy = "modified"
	StrategyCriticalStock Strategy = "critical_stock"
	StrategyErrorRecovery Strategy = "error_recovery"
	StrategyBestSellers   Strategy = "best_sellers"
	StrategyAuto          Strategy = "auto"
)

// ValidStrategy reports whether s names a known sync strategy.
func ValidStrategy(s Strategy) bool {
	switch s {
	case StrategyFull, StrategyModified, StrategyCriticalStock,
		StrategyErrorRecovery, StrategyBestSellers, StrategyAuto:
		return true
	}
	return false
}

// SyncTask is the immutable history record of one sync pass. It is created
// at sync start and sealed once the outcome counters are final.
type SyncTask struct {
	ID        string
	AccountID string
	Strategy  Strategy
	Processed int
	Updated   int
	Created   int
	Errored   int
	Errors    []string
	Success   bool
	StartedAt time.Time
	EndedAt   time.Time
	Duration  time.Duration
	sealed    bool
}

// NewSyncTask creates an open sync task.
func NewSyncTask(id, accountID string, strategy Strategy, now time.Time) *SyncTask {
	return &SyncTask{
		ID:        id,
		AccountID: accountID,
		Strategy:  strategy,
		StartedAt: now,
	}
}

// RecordError appends a per-item error and bumps the errored counter.
func (t *SyncTask) RecordError(msg string) {
	t.Errored++
	t.Errors = append(t.Errors, msg)
}

// Merge folds another task's counters into this one. Used by the auto
// composite strategy.
func (t *SyncTask) Merge(other *SyncTask) {
	t.Processed += other.Processed
	t.Updated += other.Updated
	t.Created += other.Created
	t.Errored += other.Errored
	t.Errors = append(t.Errors, other.Errors...)
}

// Total returns the number of listings that entered this pass. Each listing
// lands in exactly one of the four counters.
func (t *SyncTask) Total() int {
	return t.Processed + t.Updated + t.Created + t.Errored
}

// Seal finalizes the task. Partial failure is tolerated: the task counts as
// successful while errored items stay below half of the total.
func (t *SyncTask) Seal(now time.Time) {
	if t.sealed {
		return
	}
	t.sealed = true
	t.EndedAt = now
	t.Duration = now.Sub(t.StartedAt)
	total := t.Total()
	t.Success = total == 0 || t.Errored*2 < total
}

// Sealed reports whether the task has been finalized.
func (t *SyncTask) Sealed() bool { return t.sealed }

// DecisionReason names the reconciliation rule that produced a decision.
type DecisionReason string

const (
	ReasonStockout   DecisionReason = "stockout_correction"
	ReasonLowStock   DecisionReason = "low_stock"
	ReasonDivergence DecisionReason = "divergence"
	ReasonStale      DecisionReason = "stale_listing"
	ReasonFullResync DecisionReason = "full_resync"
	ReasonNone       DecisionReason = "in_sync"
)

// Decision is the per-listing reconciliation outcome. Derived, never stored;
// recomputed on every pass.
type Decision struct {
	ShouldUpdate   bool
	TargetQuantity int
	Reason         DecisionReason
	Severity       Severity
}

// RestockSuggestion is the answer to a restock query for one product.
type RestockSuggestion struct {
	ProductID         string `json:"product_id"`
	LocalStock        int    `json:"local_stock"`
	RemoteStock       int    `json:"remote_stock"`
	SuggestedTransfer int    `json:"suggested_transfer"`
	SuggestedPurchase int    `json:"suggested_purchase"`
	Urgency           string `json:"urgency"`
}
