package storage

import (
	"context"
	"fmt"
	"time"
)

// RetentionPolicy defines how long each table keeps rows.
type RetentionPolicy struct {
	Candles time.Duration
	Signals time.Duration
	Catalog time.Duration
}

// DefaultRetention matches the pipeline lifecycle rules: the working set of
// buckets and signals is a day, catalog entries live three.
var DefaultRetention = RetentionPolicy{
	Candles: 24 * time.Hour,
	Signals: 24 * time.Hour,
	Catalog: 72 * time.Hour,
}

// PruneStats reports per-table deleted row counts.
type PruneStats struct {
	Candles int64
	Signals int64
	Catalog int64
}

// Pruner applies a retention policy across the stores.
type Pruner struct {
	candles CandleStore
	signals SignalStore
	catalog CatalogStore
	policy  RetentionPolicy
}

// NewPruner creates a Pruner over the given stores.
func NewPruner(candles CandleStore, signals SignalStore, catalog CatalogStore, policy RetentionPolicy) *Pruner {
	return &Pruner{candles: candles, signals: signals, catalog: catalog, policy: policy}
}

// Prune deletes rows older than the policy windows relative to now.
func (p *Pruner) Prune(ctx context.Context, now time.Time) (PruneStats, error) {
	var stats PruneStats
	var err error

	stats.Candles, err = p.candles.DeleteBefore(ctx, now.Add(-p.policy.Candles).Unix())
	if err != nil {
		return stats, fmt.Errorf("prune candles: %w", err)
	}

	stats.Signals, err = p.signals.DeleteBefore(ctx, now.Add(-p.policy.Signals).Unix())
	if err != nil {
		return stats, fmt.Errorf("prune signals: %w", err)
	}

	stats.Catalog, err = p.catalog.DeleteStale(ctx, now.Add(-p.policy.Catalog).Unix())
	if err != nil {
		return stats, fmt.Errorf("prune catalog: %w", err)
	}

	return stats, nil
}
