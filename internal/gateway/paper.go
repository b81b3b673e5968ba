// Package gateway provides broker gateway implementations.
package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "boursicotor/internal/errors"
	"boursicotor/internal/models"
)

// PaperGateway implements the Gateway interface against a simulated venue.
// It keeps its own view of orders, independent from the local store, so
// reconciliation can be exercised against genuinely divergent state.
type PaperGateway struct {
	connected bool
	orders    map[string]*models.RemoteOrder
	prices    map[string]float64
	balance   float64

	orderCounter int
	execCounter  int

	events chan models.ExecutionEvent

	mu sync.RWMutex
}

// PaperGatewayConfig holds configuration for the paper gateway.
type PaperGatewayConfig struct {
	InitialBalance float64
}

// NewPaperGateway creates a new simulated venue gateway.
func NewPaperGateway(cfg PaperGatewayConfig) *PaperGateway {
	balance := cfg.InitialBalance
	if balance == 0 {
		balance = 1000000
	}
	return &PaperGateway{
		orders:  make(map[string]*models.RemoteOrder),
		prices:  make(map[string]float64),
		balance: balance,
		events:  make(chan models.ExecutionEvent, 64),
	}
}

// Connect marks the gateway connected.
func (p *PaperGateway) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		p.connected = true
		p.events = make(chan models.ExecutionEvent, 64)
	}
	return nil
}

// Disconnect marks the gateway disconnected and closes the event channel.
func (p *PaperGateway) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connected {
		p.connected = false
		close(p.events)
	}
	return nil
}

// IsConnected reports the connection state.
func (p *PaperGateway) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// Executions returns the execution event channel.
func (p *PaperGateway) Executions() <-chan models.ExecutionEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.events
}

// Submit simulates order placement. MARKET orders fill immediately at the
// cached price; LIMIT/STOP orders stay open until filled via SimulateFill.
func (p *PaperGateway) Submit(ctx context.Context, order *models.Order) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return "", apperrors.NewGatewayError("submit", apperrors.ErrGatewayUnavailable)
	}

	p.orderCounter++
	remoteID := fmt.Sprintf("PAPER_%d_%d", time.Now().Unix(), p.orderCounter)

	remote := &models.RemoteOrder{
		RemoteID: remoteID,
		Status:   models.StatusSubmitted,
	}
	p.orders[remoteID] = remote

	if order.Type == models.OrderTypeMarket {
		price := p.prices[order.Symbol]
		if price == 0 {
			price = order.LimitPrice
		}
		if price > 0 {
			p.fillLocked(remote, order.Quantity, price, 0)
			remote.Status = models.StatusFilled
		}
	}

	return remoteID, nil
}

// Cancel simulates order cancellation.
func (p *PaperGateway) Cancel(ctx context.Context, remoteID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return apperrors.NewGatewayError("cancel", apperrors.ErrGatewayUnavailable)
	}

	order, ok := p.orders[remoteID]
	if !ok {
		return fmt.Errorf("order not found: %s", remoteID)
	}
	if order.Status.IsTerminal() {
		return fmt.Errorf("cannot cancel order with status: %s", order.Status)
	}

	order.Status = models.StatusCancelled
	return nil
}

// OpenOrders returns the venue's open-order set.
func (p *PaperGateway) OpenOrders(ctx context.Context) ([]models.RemoteOrder, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.connected {
		return nil, apperrors.NewGatewayError("open_orders", apperrors.ErrGatewayUnavailable)
	}

	orders := make([]models.RemoteOrder, 0, len(p.orders))
	for _, o := range p.orders {
		if o.Status.IsOpen() {
			orders = append(orders, *o)
		}
	}
	return orders, nil
}

// OrderStatus returns the venue's record of a single order.
func (p *PaperGateway) OrderStatus(ctx context.Context, remoteID string) (*models.RemoteOrder, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.connected {
		return nil, apperrors.NewGatewayError("order_status", apperrors.ErrGatewayUnavailable)
	}

	order, ok := p.orders[remoteID]
	if !ok {
		return nil, apperrors.ErrOrderNotFound
	}
	cp := *order
	return &cp, nil
}

// SetPrice updates the cached price for a symbol.
func (p *PaperGateway) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

// SimulateFill applies a partial or complete fill to a venue order and
// emits the corresponding execution event.
func (p *PaperGateway) SimulateFill(remoteID string, qty int, price, commission float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[remoteID]
	if !ok {
		return fmt.Errorf("order not found: %s", remoteID)
	}
	if order.Status.IsTerminal() {
		return fmt.Errorf("cannot fill order with status: %s", order.Status)
	}

	p.fillLocked(order, qty, price, commission)
	return nil
}

// SimulateReject marks a venue order rejected.
func (p *PaperGateway) SimulateReject(remoteID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[remoteID]
	if !ok {
		return fmt.Errorf("order not found: %s", remoteID)
	}
	order.Status = models.StatusRejected
	return nil
}

// SimulateExpiry removes a venue order entirely, as if it was purged after
// cancellation or expiry. Used to exercise reconciled-missing handling.
func (p *PaperGateway) SimulateExpiry(remoteID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.orders, remoteID)
}

// ReplayExecution re-emits a previously delivered execution event, modelling
// at-least-once delivery after a reconnect.
func (p *PaperGateway) ReplayExecution(event models.ExecutionEvent) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.connected {
		p.events <- event
	}
}

// fillLocked mutates the remote order and emits an event. Caller holds mu.
func (p *PaperGateway) fillLocked(order *models.RemoteOrder, qty int, price, commission float64) {
	prevQty := float64(order.FilledQty)
	order.FilledQty += qty
	order.AvgFillPrice = (order.AvgFillPrice*prevQty + price*float64(qty)) / float64(order.FilledQty)
	order.Commission += commission

	// The venue does not know the full requested quantity here; the caller
	// decides when the order is complete via SimulateComplete, except for
	// market orders which Submit fills in one shot.
	order.Status = models.StatusPartiallyFilled

	p.execCounter++
	event := models.ExecutionEvent{
		ExecID:     fmt.Sprintf("EXEC_%d_%d", time.Now().UnixNano(), p.execCounter),
		RemoteID:   order.RemoteID,
		FilledQty:  qty,
		FillPrice:  price,
		Commission: commission,
		Timestamp:  time.Now(),
	}

	if p.connected {
		select {
		case p.events <- event:
		default:
			// Slow consumer: drop and let reconciliation close the gap.
		}
	}
}

// SimulateComplete marks a venue order fully filled.
func (p *PaperGateway) SimulateComplete(remoteID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if order, ok := p.orders[remoteID]; ok {
		order.Status = models.StatusFilled
	}
}

// Ensure PaperGateway implements Gateway
var _ Gateway = (*PaperGateway)(nil)
