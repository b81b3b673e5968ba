// Package lifecycle drives order state transitions: creation, submission,
// execution application, cancellation and rejection.
package lifecycle

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"boursicotor/internal/catalog"
	apperrors "boursicotor/internal/errors"
	"boursicotor/internal/gateway"
	"boursicotor/internal/logging"
	"boursicotor/internal/models"
	"boursicotor/internal/store"
)

// Manager owns the order state machine. All mutations of a given order are
// serialized through a per-order exclusive section; the store additionally
// guards every transition with a conditional write on the expected prior
// status, so a lost race surfaces as ErrConflict instead of a blind
// overwrite.
type Manager struct {
	store       store.OrderStore
	gateway     gateway.Gateway
	catalog     catalog.Catalog
	logger      zerolog.Logger
	locks       *orderLocks
	callTimeout time.Duration
	maxOrderQty int
	paperMode   bool

	idCounter uint64
}

// ManagerConfig holds configuration for the lifecycle manager.
type ManagerConfig struct {
	Store       store.OrderStore
	Gateway     gateway.Gateway
	Catalog     catalog.Catalog
	Logger      zerolog.Logger
	CallTimeout time.Duration
	MaxOrderQty int
	PaperMode   bool
}

// NewManager creates a new lifecycle manager.
func NewManager(cfg ManagerConfig) *Manager {
	timeout := cfg.CallTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Manager{
		store:       cfg.Store,
		gateway:     cfg.Gateway,
		catalog:     cfg.Catalog,
		logger:      cfg.Logger,
		locks:       newOrderLocks(),
		callTimeout: timeout,
		maxOrderQty: cfg.MaxOrderQty,
		paperMode:   cfg.PaperMode,
	}
}

// Create validates the spec and persists a new PENDING order. Submission is
// a separate explicit step so a creation can be reviewed or retried before
// money moves. Returns the new order's local id.
func (m *Manager) Create(ctx context.Context, spec models.OrderSpec) (string, error) {
	if err := m.validateSpec(ctx, spec); err != nil {
		return "", err
	}

	order := &models.Order{
		ID:         m.nextOrderID(),
		Symbol:     spec.Symbol,
		Side:       spec.Side,
		Type:       spec.Type,
		Quantity:   spec.Quantity,
		LimitPrice: spec.LimitPrice,
		StopPrice:  spec.StopPrice,
		Status:     models.StatusPending,
		Paper:      spec.Paper || m.paperMode,
		Strategy:   spec.Strategy,
		Annotation: spec.Annotation,
		CreatedAt:  time.Now(),
	}

	if err := m.store.SaveOrder(ctx, order); err != nil {
		return "", apperrors.Wrap(err, "persisting order")
	}

	logging.LogOrder(m.logger, order.ID, order.Symbol, string(order.Side), string(order.Status))
	return order.ID, nil
}

// Submit sends a PENDING order to the broker. The per-order exclusive
// section is held across the gateway call so concurrent submits of the same
// order result in exactly one gateway call; the gateway call itself is
// bounded by the configured timeout so the section cannot be held
// indefinitely.
func (m *Manager) Submit(ctx context.Context, orderID string) error {
	unlock := m.locks.Lock(orderID)
	defer unlock()

	order, err := m.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Anomaly != "" {
		return apperrors.NewAnomalyError(order.ID, order.Anomaly, "order frozen, manual review required")
	}
	if order.Status != models.StatusPending {
		return apperrors.NewInvalidStateError(order.ID, string(order.Status), "submit")
	}

	callCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
	start := time.Now()
	remoteID, gwErr := m.gateway.Submit(callCtx, order)
	cancel()
	logging.LogGatewayCall(m.logger, "submit", time.Since(start), gwErr)

	if gwErr != nil {
		// Submission is at-most-once: no automatic retry. The order moves
		// to ERROR with the failure recorded; the caller decides whether
		// to create a fresh order.
		order.Status = models.StatusError
		order.StatusMessage = gwErr.Error()
		if err := m.store.UpdateOrderIfStatus(ctx, order, models.StatusPending); err != nil {
			return apperrors.Wrap(err, "recording submit failure")
		}
		logging.LogOrder(m.logger, order.ID, order.Symbol, string(order.Side), string(order.Status))
		if callCtx.Err() == context.DeadlineExceeded {
			return apperrors.NewGatewayTimeout("submit", gwErr)
		}
		return gwErr
	}

	order.Status = models.StatusSubmitted
	order.RemoteID = remoteID
	order.SubmittedAt = time.Now()
	order.StatusMessage = ""
	if err := m.store.UpdateOrderIfStatus(ctx, order, models.StatusPending); err != nil {
		return apperrors.Wrap(err, "committing submission")
	}

	logging.LogOrder(m.logger, order.ID, order.Symbol, string(order.Side), string(order.Status))
	return nil
}

// ApplyExecution applies an incremental fill event. Events for untracked
// orders are logged and dropped, never fatal: reconciliation may already
// have closed the order, or the event may belong to an order placed outside
// this engine. Duplicate deliveries of the same execution id are ignored.
func (m *Manager) ApplyExecution(ctx context.Context, event models.ExecutionEvent) error {
	order, err := m.store.GetOrderByRemoteID(ctx, event.RemoteID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrOrderNotFound) {
			m.logger.Warn().
				Str("event", "unknown_order").
				Str("remote_id", event.RemoteID).
				Str("exec_id", event.ExecID).
				Msg("Execution event for untracked order")
			return nil
		}
		return err
	}

	unlock := m.locks.Lock(order.ID)
	defer unlock()

	// Reload under the lock: state may have moved.
	order, err = m.store.GetOrder(ctx, order.ID)
	if err != nil {
		return err
	}

	if order.Anomaly != "" {
		m.logger.Warn().
			Str("order_id", order.ID).
			Str("exec_id", event.ExecID).
			Str("anomaly", order.Anomaly).
			Msg("Execution event for frozen order skipped")
		return nil
	}
	if order.Status.IsTerminal() {
		m.logger.Warn().
			Str("order_id", order.ID).
			Str("exec_id", event.ExecID).
			Str("status", string(order.Status)).
			Msg("Execution event for terminal order skipped")
		return nil
	}
	if event.FilledQty <= 0 {
		return nil
	}

	prev := *order
	overfill := false

	delta := event.FilledQty
	if order.FilledQty+delta > order.Quantity {
		// Clamp to the ordered quantity; the excess is a data-integrity
		// red flag that freezes the order for manual review.
		delta = order.Quantity - order.FilledQty
		overfill = true
	}

	prevFilled := float64(order.FilledQty)
	order.FilledQty += delta
	if order.FilledQty > 0 {
		order.AvgFillPrice = (order.AvgFillPrice*prevFilled + event.FillPrice*float64(delta)) / float64(order.FilledQty)
	}
	order.Commission += event.Commission

	if order.FilledQty >= order.Quantity {
		order.Status = models.StatusFilled
		if order.FilledAt.IsZero() {
			order.FilledAt = event.Timestamp
			if order.FilledAt.IsZero() {
				order.FilledAt = time.Now()
			}
		}
	} else {
		order.Status = models.StatusPartiallyFilled
	}
	if overfill {
		order.Anomaly = models.AnomalyOverfill
	}

	applied, err := m.store.ApplyExecution(ctx, event, order, prev.Status)
	if err != nil {
		return apperrors.Wrap(err, "applying execution")
	}
	if !applied {
		m.logger.Debug().
			Str("order_id", order.ID).
			Str("exec_id", event.ExecID).
			Msg("Duplicate execution event ignored")
		return nil
	}

	if overfill {
		detail := fmt.Sprintf("execution %s reported %d on top of %d/%d filled",
			event.ExecID, event.FilledQty, prev.FilledQty, order.Quantity)
		if err := m.store.RecordAnomaly(ctx, order.ID, models.AnomalyOverfill, detail); err != nil {
			m.logger.Error().Err(err).Str("order_id", order.ID).Msg("Failed to record overfill anomaly")
		}
	}

	logging.LogExecution(m.logger, order.ID, event.ExecID, delta, event.FillPrice)
	if order.Status != prev.Status {
		logging.LogOrder(m.logger, order.ID, order.Symbol, string(order.Side), string(order.Status))
	}
	return nil
}

// Cancel cancels an order. A PENDING order that never reached the broker is
// cancelled locally; an open order requires broker confirmation first, so an
// in-flight fill racing the cancel is never discarded. The exclusive section
// is released across the gateway call and the resulting transition is
// committed against whatever state the order is in afterwards.
func (m *Manager) Cancel(ctx context.Context, orderID string) error {
	unlock := m.locks.Lock(orderID)

	order, err := m.store.GetOrder(ctx, orderID)
	if err != nil {
		unlock()
		return err
	}
	if order.Anomaly != "" {
		unlock()
		return apperrors.NewAnomalyError(order.ID, order.Anomaly, "order frozen, manual review required")
	}

	switch order.Status {
	case models.StatusPending:
		// Never reached the broker: cancel locally.
		defer unlock()
		order.Status = models.StatusCancelled
		if err := m.store.UpdateOrderIfStatus(ctx, order, models.StatusPending); err != nil {
			return apperrors.Wrap(err, "cancelling pending order")
		}
		logging.LogOrder(m.logger, order.ID, order.Symbol, string(order.Side), string(order.Status))
		return nil

	case models.StatusSubmitted, models.StatusPartiallyFilled:
		remoteID := order.RemoteID
		unlock()

		callCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
		start := time.Now()
		gwErr := m.gateway.Cancel(callCtx, remoteID)
		cancel()
		logging.LogGatewayCall(m.logger, "cancel", time.Since(start), gwErr)

		if gwErr != nil {
			// Cancellation is not assumed successful until confirmed. The
			// order keeps its pre-call state; reconciliation discovers the
			// true remote outcome if this was a timeout.
			if callCtx.Err() == context.DeadlineExceeded {
				return apperrors.NewGatewayTimeout("cancel", gwErr)
			}
			return gwErr
		}

		return m.commitCancel(ctx, orderID)

	default:
		unlock()
		return apperrors.NewInvalidStateError(order.ID, string(order.Status), "cancel")
	}
}

// commitCancel re-acquires the order and records the confirmed cancellation.
// Fills that landed while the gateway call was in flight are preserved; if
// the order reached a terminal state in the meantime it is left untouched.
func (m *Manager) commitCancel(ctx context.Context, orderID string) error {
	unlock := m.locks.Lock(orderID)
	defer unlock()

	order, err := m.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status.IsTerminal() {
		m.logger.Info().
			Str("order_id", order.ID).
			Str("status", string(order.Status)).
			Msg("Cancel confirmed after order reached terminal state, keeping terminal state")
		return nil
	}

	prev := order.Status
	order.Status = models.StatusCancelled
	if err := m.store.UpdateOrderIfStatus(ctx, order, prev); err != nil {
		return apperrors.Wrap(err, "committing cancellation")
	}
	logging.LogOrder(m.logger, order.ID, order.Symbol, string(order.Side), string(order.Status))
	return nil
}

// Reject transitions a non-terminal order to REJECTED with the broker's
// reason recorded. Terminal orders are immutable.
func (m *Manager) Reject(ctx context.Context, orderID, reason string) error {
	unlock := m.locks.Lock(orderID)
	defer unlock()

	order, err := m.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status.IsTerminal() {
		return apperrors.NewInvalidStateError(order.ID, string(order.Status), "reject")
	}

	prev := order.Status
	order.Status = models.StatusRejected
	order.StatusMessage = reason
	if err := m.store.UpdateOrderIfStatus(ctx, order, prev); err != nil {
		return apperrors.Wrap(err, "recording rejection")
	}
	logging.LogOrder(m.logger, order.ID, order.Symbol, string(order.Side), string(order.Status))
	return nil
}

// Get returns a single order by local id.
func (m *Manager) Get(ctx context.Context, orderID string) (*models.Order, error) {
	return m.store.GetOrder(ctx, orderID)
}

// List returns orders matching the filter, newest first.
func (m *Manager) List(ctx context.Context, filter store.OrderFilter) ([]models.Order, error) {
	return m.store.ListOrders(ctx, filter)
}

// Correct exposes reconciliation-driven corrective transitions under the
// same per-order discipline as direct mutations. The callback receives the
// freshly loaded order under its exclusive section, mutates it, and returns
// the status the conditional write must match. Returning false aborts
// without writing. Terminal and frozen orders are never touched.
func (m *Manager) Correct(ctx context.Context, orderID string, fn func(order *models.Order) (models.OrderStatus, bool)) error {
	unlock := m.locks.Lock(orderID)
	defer unlock()

	order, err := m.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status.IsTerminal() || order.Anomaly != "" {
		return nil
	}

	expect, apply := fn(order)
	if !apply {
		return nil
	}
	return m.store.UpdateOrderIfStatus(ctx, order, expect)
}

func (m *Manager) validateSpec(ctx context.Context, spec models.OrderSpec) error {
	if spec.Symbol == "" {
		return apperrors.NewValidationError("symbol", spec.Symbol, "symbol is required")
	}
	if spec.Side != models.OrderSideBuy && spec.Side != models.OrderSideSell {
		return apperrors.NewValidationError("side", spec.Side, "side must be BUY or SELL")
	}
	switch spec.Type {
	case models.OrderTypeMarket, models.OrderTypeLimit, models.OrderTypeStop, models.OrderTypeStopLimit:
	default:
		return apperrors.NewValidationError("type", spec.Type, "unknown order type")
	}
	if spec.Quantity <= 0 {
		return apperrors.NewValidationError("quantity", spec.Quantity, "quantity must be positive")
	}
	if m.maxOrderQty > 0 && spec.Quantity > m.maxOrderQty {
		return apperrors.NewValidationError("quantity", spec.Quantity,
			fmt.Sprintf("quantity exceeds maximum %d", m.maxOrderQty))
	}
	if spec.Type == models.OrderTypeLimit || spec.Type == models.OrderTypeStopLimit {
		if spec.LimitPrice <= 0 {
			return apperrors.NewValidationError("limit_price", spec.LimitPrice, "limit price must be positive")
		}
	}
	if spec.Type == models.OrderTypeStop || spec.Type == models.OrderTypeStopLimit {
		if spec.StopPrice <= 0 {
			return apperrors.NewValidationError("stop_price", spec.StopPrice, "stop price must be positive")
		}
	}
	if _, err := m.catalog.Resolve(ctx, spec.Symbol); err != nil {
		return apperrors.NewValidationError("symbol", spec.Symbol, "not a known tradable instrument")
	}
	return nil
}

func (m *Manager) nextOrderID() string {
	n := atomic.AddUint64(&m.idCounter, 1)
	return fmt.Sprintf("ORD_%d_%d", time.Now().UnixNano(), n)
}
