// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"boursicotor/internal/models"
)

// OrderStore defines the interface for order persistence. It is the single
// source of truth for order state when the broker is unreachable.
//
// All status transitions go through conditional writes: the new state is
// written only if the row still holds the expected prior status, so two
// concurrent callers cannot both win the same transition.
type OrderStore interface {
	// Orders
	SaveOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	GetOrderByRemoteID(ctx context.Context, remoteID string) (*models.Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]models.Order, error)
	ListReconcilable(ctx context.Context) ([]models.Order, error)

	// UpdateOrderIfStatus persists order's mutable fields only if the stored
	// row still has status expect. Returns errors.ErrConflict otherwise.
	UpdateOrderIfStatus(ctx context.Context, order *models.Order, expect models.OrderStatus) error

	// ApplyExecution atomically records an execution event and persists the
	// updated order, conditional on the stored status matching expect.
	// Returns false without modifying anything when the execution id has
	// already been applied.
	ApplyExecution(ctx context.Context, exec models.ExecutionEvent, order *models.Order, expect models.OrderStatus) (bool, error)

	// Anomalies
	RecordAnomaly(ctx context.Context, orderID, kind, detail string) error
	GetAnomalies(ctx context.Context, orderID string) ([]models.Anomaly, error)

	// Stats
	GetStats(ctx context.Context) (*models.Stats, error)

	// Lifecycle
	Close() error
}

// OrderFilter represents filters for querying orders.
type OrderFilter struct {
	Symbol    string
	Status    models.OrderStatus
	Strategy  string
	Paper     *bool
	StartDate time.Time
	EndDate   time.Time
	Limit     int
}
