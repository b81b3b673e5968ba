// Package stats provides read-only rollups over the order store.
package stats

import (
	"context"

	"boursicotor/internal/models"
	"boursicotor/internal/store"
)

// Aggregator computes aggregate order statistics. It never mutates state.
type Aggregator struct {
	store store.OrderStore
}

// NewAggregator creates a new statistics aggregator.
func NewAggregator(s store.OrderStore) *Aggregator {
	return &Aggregator{store: s}
}

// Snapshot returns current aggregate statistics including the per-symbol
// breakdown.
func (a *Aggregator) Snapshot(ctx context.Context) (*models.Stats, error) {
	return a.store.GetStats(ctx)
}

// Anomalies returns all recorded data-integrity anomalies, newest first.
func (a *Aggregator) Anomalies(ctx context.Context) ([]models.Anomaly, error) {
	return a.store.GetAnomalies(ctx, "")
}
