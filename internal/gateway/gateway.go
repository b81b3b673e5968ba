// Package gateway provides broker gateway interfaces and implementations.
package gateway

import (
	"context"

	"boursicotor/internal/models"
)

// Gateway defines the capability surface of the external execution venue.
// Implementations hold an explicit connection lifecycle: every call made
// while disconnected fails fast with errors.ErrGatewayUnavailable instead
// of blocking.
type Gateway interface {
	// Connection lifecycle
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool

	// Orders
	Submit(ctx context.Context, order *models.Order) (string, error)
	Cancel(ctx context.Context, remoteID string) error

	// Reconciliation queries
	OpenOrders(ctx context.Context) ([]models.RemoteOrder, error)
	OrderStatus(ctx context.Context, remoteID string) (*models.RemoteOrder, error)

	// Executions returns the channel of asynchronous fill events. The channel
	// is owned by the gateway and closed on Disconnect. Delivery is
	// at-least-once from connection time; consumers must deduplicate by
	// ExecID.
	Executions() <-chan models.ExecutionEvent
}
