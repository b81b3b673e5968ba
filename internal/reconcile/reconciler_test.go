package reconcile

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boursicotor/internal/catalog"
	"boursicotor/internal/gateway"
	"boursicotor/internal/lifecycle"
	"boursicotor/internal/models"
	"boursicotor/internal/store"
)

type testRig struct {
	store      *store.SQLiteStore
	gateway    *gateway.PaperGateway
	manager    *lifecycle.Manager
	reconciler *Reconciler
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	orderStore, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "orders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { orderStore.Close() })

	gw := gateway.NewPaperGateway(gateway.PaperGatewayConfig{})
	require.NoError(t, gw.Connect(context.Background()))

	instruments := []models.Instrument{
		{Token: 1, Symbol: "RELIANCE", Exchange: models.NSE, LotSize: 1, TickSize: 0.05},
	}

	manager := lifecycle.NewManager(lifecycle.ManagerConfig{
		Store:       orderStore,
		Gateway:     gw,
		Catalog:     catalog.NewStatic(instruments),
		Logger:      zerolog.Nop(),
		CallTimeout: 5 * time.Second,
		PaperMode:   true,
	})

	reconciler := New(Config{
		Store:       orderStore,
		Gateway:     gw,
		Manager:     manager,
		Logger:      zerolog.Nop(),
		Interval:    time.Minute,
		MaxAttempts: 2,
	})

	return &testRig{store: orderStore, gateway: gw, manager: manager, reconciler: reconciler}
}

// submitOrder creates and submits a limit order, returning its current state.
func (r *testRig) submitOrder(t *testing.T, qty int) *models.Order {
	t.Helper()
	ctx := context.Background()

	id, err := r.manager.Create(ctx, models.OrderSpec{
		Symbol:     "RELIANCE",
		Side:       models.OrderSideBuy,
		Type:       models.OrderTypeLimit,
		Quantity:   qty,
		LimitPrice: 2500,
	})
	require.NoError(t, err)
	require.NoError(t, r.manager.Submit(ctx, id))

	order, err := r.manager.Get(ctx, id)
	require.NoError(t, err)
	return order
}

func TestReconcileNoDrift(t *testing.T) {
	r := newTestRig(t)
	r.submitOrder(t, 100)

	corrected, err := r.reconciler.ReconcileNow(context.Background())
	require.NoError(t, err)
	assert.Zero(t, corrected)
}

func TestReconcileHealsMissedFill(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()

	order := r.submitOrder(t, 100)

	// The venue fills 60 but the event stream is never consumed, so the
	// local record still shows zero filled.
	require.NoError(t, r.gateway.SimulateFill(order.RemoteID, 60, 2505, 5))

	corrected, err := r.reconciler.ReconcileNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, corrected)

	healed, err := r.manager.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPartiallyFilled, healed.Status)
	assert.Equal(t, 60, healed.FilledQty)
	assert.InDelta(t, 2505, healed.AvgFillPrice, 1e-9)
	assert.InDelta(t, 5, healed.Commission, 1e-9)

	// A second pass sees no remaining drift.
	corrected, err = r.reconciler.ReconcileNow(ctx)
	require.NoError(t, err)
	assert.Zero(t, corrected)
}

func TestReconcileHealsCompletedFill(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()

	order := r.submitOrder(t, 100)

	// Local saw the first 40; the remaining 60 and completion were missed.
	require.NoError(t, r.manager.ApplyExecution(ctx, models.ExecutionEvent{
		ExecID: "E1", RemoteID: order.RemoteID, FilledQty: 40, FillPrice: 2500, Timestamp: time.Now(),
	}))
	require.NoError(t, r.gateway.SimulateFill(order.RemoteID, 40, 2500, 0))
	require.NoError(t, r.gateway.SimulateFill(order.RemoteID, 60, 2520, 0))
	r.gateway.SimulateComplete(order.RemoteID)

	corrected, err := r.reconciler.ReconcileNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, corrected)

	healed, err := r.manager.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFilled, healed.Status)
	assert.Equal(t, 100, healed.FilledQty)

	// The healed average must match the broker's record exactly.
	want := (40*2500.0 + 60*2520.0) / 100.0
	assert.InDelta(t, want, healed.AvgFillPrice, 1e-9)
}

func TestReconcileClosesMissingOrder(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()

	order := r.submitOrder(t, 100)
	r.gateway.SimulateExpiry(order.RemoteID)

	corrected, err := r.reconciler.ReconcileNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, corrected)

	closed, err := r.manager.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, closed.Status)
	assert.Contains(t, closed.Annotation, "reconciled-missing")
	// No execution data is fabricated for a vanished order.
	assert.Zero(t, closed.FilledQty)
}

func TestReconcileAppliesRemoteRejection(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()

	order := r.submitOrder(t, 100)
	require.NoError(t, r.gateway.SimulateReject(order.RemoteID))

	corrected, err := r.reconciler.ReconcileNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, corrected)

	rejected, err := r.manager.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rejected.Status)
	assert.Contains(t, rejected.StatusMessage, "rejected")
}

func TestReconcileFillRegressionRaisesAnomaly(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()

	order := r.submitOrder(t, 100)

	// Local recorded a fill the venue does not acknowledge.
	require.NoError(t, r.manager.ApplyExecution(ctx, models.ExecutionEvent{
		ExecID: "E1", RemoteID: order.RemoteID, FilledQty: 50, FillPrice: 2500, Timestamp: time.Now(),
	}))

	corrected, err := r.reconciler.ReconcileNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, corrected)

	flagged, err := r.manager.Get(ctx, order.ID)
	require.NoError(t, err)
	// Never regress: the local fill stands, the discrepancy is flagged.
	assert.Equal(t, 50, flagged.FilledQty)
	assert.Equal(t, models.AnomalyReconciliation, flagged.Anomaly)

	anomalies, err := r.store.GetAnomalies(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	assert.Equal(t, models.AnomalyReconciliation, anomalies[0].Kind)

	// Frozen orders drop out of the reconcilable set.
	corrected, err = r.reconciler.ReconcileNow(ctx)
	require.NoError(t, err)
	assert.Zero(t, corrected)
}

func TestReconcileFlagsIncompleteRemoteFill(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()

	order := r.submitOrder(t, 100)
	require.NoError(t, r.manager.ApplyExecution(ctx, models.ExecutionEvent{
		ExecID: "E1", RemoteID: order.RemoteID, FilledQty: 40, FillPrice: 2500, Timestamp: time.Now(),
	}))
	order, err := r.manager.Get(ctx, order.ID)
	require.NoError(t, err)

	// The broker claims the order completed at 40 of 100. No delta exists
	// to apply, so the order would otherwise stay open forever.
	remote := &models.RemoteOrder{
		RemoteID:     order.RemoteID,
		Status:       models.StatusFilled,
		FilledQty:    40,
		AvgFillPrice: 2500,
	}
	changed, err := r.reconciler.healFillDrift(ctx, order, remote)
	require.NoError(t, err)
	assert.True(t, changed)

	flagged, err := r.manager.Get(ctx, order.ID)
	require.NoError(t, err)
	// The local fill stands; the inconsistency is flagged for review.
	assert.Equal(t, 40, flagged.FilledQty)
	assert.Equal(t, models.AnomalyReconciliation, flagged.Anomaly)

	anomalies, err := r.store.GetAnomalies(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	assert.Contains(t, anomalies[0].Detail, "FILLED at 40 of 100")
}

func TestReconcileFlagsMissingRemoteID(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()

	// An open order with no remote id should never exist, but a crash
	// between the gateway call and the commit can leave one behind.
	order := &models.Order{
		ID:        "ORD_BROKEN",
		Symbol:    "RELIANCE",
		Side:      models.OrderSideBuy,
		Type:      models.OrderTypeLimit,
		Quantity:  10,
		Status:    models.StatusSubmitted,
		CreatedAt: time.Now(),
	}
	require.NoError(t, r.store.SaveOrder(ctx, order))

	corrected, err := r.reconciler.ReconcileNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, corrected)

	anomalies, err := r.store.GetAnomalies(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	assert.Equal(t, models.AnomalyReconciliation, anomalies[0].Kind)
	assert.True(t, strings.Contains(anomalies[0].Detail, "no remote id"))
}

func TestStartStopLoop(t *testing.T) {
	r := newTestRig(t)

	r.reconciler.Start(context.Background())
	// Stop must return promptly even when no tick has fired.
	done := make(chan struct{})
	go func() {
		r.reconciler.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
}
