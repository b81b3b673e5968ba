// Package reconcile heals drift between the local order store and the
// broker's view of open orders.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "boursicotor/internal/errors"
	"boursicotor/internal/gateway"
	"boursicotor/internal/lifecycle"
	"boursicotor/internal/logging"
	"boursicotor/internal/models"
	"boursicotor/internal/store"
	"boursicotor/pkg/utils"
)

// Reconciler periodically diffs local open orders against the broker's
// records and applies corrective transitions. It never regresses a terminal
// local state and never fabricates fill data the broker did not confirm: it
// only closes gaps.
type Reconciler struct {
	store    store.OrderStore
	gateway  gateway.Gateway
	manager  *lifecycle.Manager
	logger   zerolog.Logger
	interval time.Duration
	retry    utils.RetryConfig

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Config holds configuration for the reconciler.
type Config struct {
	Store       store.OrderStore
	Gateway     gateway.Gateway
	Manager     *lifecycle.Manager
	Logger      zerolog.Logger
	Interval    time.Duration
	MaxAttempts int
}

// New creates a new reconciler.
func New(cfg Config) *Reconciler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	retry := utils.DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.MaxAttempts
	}
	return &Reconciler{
		store:    cfg.Store,
		gateway:  cfg.Gateway,
		manager:  cfg.Manager,
		logger:   cfg.Logger,
		interval: interval,
		retry:    retry,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the reconciliation loop on the configured interval until Stop
// is called or the context is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := r.ReconcileNow(ctx); err != nil {
					r.logger.Warn().Err(err).Msg("Reconciliation pass failed")
				}
			case <-r.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the reconciliation loop.
func (r *Reconciler) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}

// ReconcileNow runs a single reconciliation pass and returns the number of
// orders corrected.
func (r *Reconciler) ReconcileNow(ctx context.Context) (int, error) {
	orders, err := r.store.ListReconcilable(ctx)
	if err != nil {
		return 0, apperrors.Wrap(err, "listing reconcilable orders")
	}
	if len(orders) == 0 {
		return 0, nil
	}

	open, err := utils.RetryWithResult(ctx, r.retry, func() ([]models.RemoteOrder, error) {
		return r.gateway.OpenOrders(ctx)
	})
	if err != nil {
		return 0, apperrors.Wrap(err, "querying open orders")
	}

	openSet := make(map[string]models.RemoteOrder, len(open))
	for _, ro := range open {
		openSet[ro.RemoteID] = ro
	}

	corrected := 0
	for i := range orders {
		order := &orders[i]
		changed, err := r.reconcileOrder(ctx, order, openSet)
		if err != nil {
			// Transient per-order failure degrades this pass, not the loop.
			r.logger.Warn().Err(err).Str("order_id", order.ID).Msg("Failed to reconcile order")
			continue
		}
		if changed {
			corrected++
		}
	}

	r.logger.Info().
		Int("examined", len(orders)).
		Int("corrected", corrected).
		Msg("Reconciliation pass complete")
	return corrected, nil
}

// reconcileOrder applies the reconciliation policy to a single local order.
func (r *Reconciler) reconcileOrder(ctx context.Context, order *models.Order, openSet map[string]models.RemoteOrder) (bool, error) {
	// Defensive: an open order with no remote id cannot be matched to any
	// broker record. Flag it and do not guess.
	if order.RemoteID == "" {
		detail := fmt.Sprintf("order in status %s has no remote id", order.Status)
		if err := r.store.RecordAnomaly(ctx, order.ID, models.AnomalyReconciliation, detail); err != nil {
			return false, err
		}
		logging.LogReconcile(r.logger, order.ID, string(order.Status), string(order.Status), "missing-remote-id")
		return true, nil
	}

	if remote, ok := openSet[order.RemoteID]; ok {
		// Still open at the venue: heal any fill drift from missed events.
		return r.healFillDrift(ctx, order, &remote)
	}

	// Not in the open set: fetch the authoritative per-order record.
	remote, err := utils.RetryWithResult(ctx, r.retry, func() (*models.RemoteOrder, error) {
		ro, err := r.gateway.OrderStatus(ctx, order.RemoteID)
		if err != nil && apperrors.Is(err, apperrors.ErrOrderNotFound) {
			return nil, nil
		}
		return ro, err
	})
	if err != nil {
		return false, err
	}

	if remote == nil {
		// The broker has no record: cancelled or expired without us seeing
		// it. Close the order without fabricating any execution data.
		err := r.manager.Correct(ctx, order.ID, func(o *models.Order) (models.OrderStatus, bool) {
			prev := o.Status
			o.Status = models.StatusCancelled
			o.Annotation = appendAnnotation(o.Annotation, "reconciled-missing")
			return prev, true
		})
		if err != nil {
			return false, err
		}
		logging.LogReconcile(r.logger, order.ID, string(order.Status), string(models.StatusCancelled), "reconciled-missing")
		return true, nil
	}

	switch remote.Status {
	case models.StatusFilled:
		return r.healFillDrift(ctx, order, remote)

	case models.StatusRejected:
		if err := r.manager.Reject(ctx, order.ID, "reconciled: broker reports rejected"); err != nil {
			return false, err
		}
		logging.LogReconcile(r.logger, order.ID, string(order.Status), string(models.StatusRejected), "remote-rejected")
		return true, nil

	case models.StatusCancelled:
		err := r.manager.Correct(ctx, order.ID, func(o *models.Order) (models.OrderStatus, bool) {
			prev := o.Status
			o.Status = models.StatusCancelled
			o.Annotation = appendAnnotation(o.Annotation, "reconciled")
			return prev, true
		})
		if err != nil {
			return false, err
		}
		logging.LogReconcile(r.logger, order.ID, string(order.Status), string(models.StatusCancelled), "remote-cancelled")
		return true, nil

	default:
		return r.healFillDrift(ctx, order, remote)
	}
}

// healFillDrift re-derives missing fill quantity and average price from the
// broker's record and applies the delta through the lifecycle manager so the
// normal idempotency and clamping rules hold. The synthetic execution id is
// keyed on the remote cumulative fill, so repeated passes are no-ops.
func (r *Reconciler) healFillDrift(ctx context.Context, order *models.Order, remote *models.RemoteOrder) (bool, error) {
	if remote.FilledQty < order.FilledQty {
		// The broker reports less progress than we recorded. Never regress:
		// flag for manual review.
		detail := fmt.Sprintf("local filled %d exceeds broker filled %d", order.FilledQty, remote.FilledQty)
		if err := r.store.RecordAnomaly(ctx, order.ID, models.AnomalyReconciliation, detail); err != nil {
			return false, err
		}
		logging.LogReconcile(r.logger, order.ID, string(order.Status), string(order.Status), "fill-regression")
		return true, nil
	}
	if remote.FilledQty == order.FilledQty {
		if remote.Status == models.StatusFilled && order.FilledQty < order.Quantity {
			// The broker claims completion at a quantity below what was
			// ordered. There is no delta to apply and the shape can never
			// heal on its own: flag it instead of re-examining it forever.
			detail := fmt.Sprintf("broker reports FILLED at %d of %d", remote.FilledQty, order.Quantity)
			if err := r.store.RecordAnomaly(ctx, order.ID, models.AnomalyReconciliation, detail); err != nil {
				return false, err
			}
			logging.LogReconcile(r.logger, order.ID, string(order.Status), string(order.Status), "incomplete-remote-fill")
			return true, nil
		}
		return false, nil
	}

	delta := remote.FilledQty - order.FilledQty

	// Back out the price of the missing quantity so the resulting average
	// matches the broker's record exactly.
	fillPrice := remote.AvgFillPrice
	if delta > 0 {
		fillPrice = (remote.AvgFillPrice*float64(remote.FilledQty) - order.AvgFillPrice*float64(order.FilledQty)) / float64(delta)
	}

	commission := remote.Commission - order.Commission
	if commission < 0 {
		commission = 0
	}

	event := models.ExecutionEvent{
		ExecID:     fmt.Sprintf("RECON_%s_%d", order.RemoteID, remote.FilledQty),
		RemoteID:   order.RemoteID,
		FilledQty:  delta,
		FillPrice:  fillPrice,
		Commission: commission,
		Timestamp:  time.Now(),
	}

	if err := r.manager.ApplyExecution(ctx, event); err != nil {
		return false, err
	}
	logging.LogReconcile(r.logger, order.ID, string(order.Status), string(remote.Status), "fill-drift")
	return true, nil
}

func appendAnnotation(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "; " + note
}
