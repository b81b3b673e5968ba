package gateway

import (
	"context"
	"testing"

	apperrors "boursicotor/internal/errors"
	"boursicotor/internal/models"
)

func newConnectedPaper(t *testing.T) *PaperGateway {
	t.Helper()
	gw := NewPaperGateway(PaperGatewayConfig{})
	if err := gw.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	return gw
}

func TestSubmitRequiresConnection(t *testing.T) {
	gw := NewPaperGateway(PaperGatewayConfig{})

	_, err := gw.Submit(context.Background(), &models.Order{
		Symbol: "RELIANCE", Side: models.OrderSideBuy, Type: models.OrderTypeLimit, Quantity: 10, LimitPrice: 2500,
	})
	if !apperrors.Is(err, apperrors.ErrGatewayUnavailable) {
		t.Errorf("Expected ErrGatewayUnavailable, got %v", err)
	}
}

func TestMarketOrderFillsImmediately(t *testing.T) {
	gw := newConnectedPaper(t)
	ctx := context.Background()

	gw.SetPrice("RELIANCE", 2500)
	remoteID, err := gw.Submit(ctx, &models.Order{
		Symbol: "RELIANCE", Side: models.OrderSideBuy, Type: models.OrderTypeMarket, Quantity: 50,
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	remote, err := gw.OrderStatus(ctx, remoteID)
	if err != nil {
		t.Fatalf("OrderStatus failed: %v", err)
	}
	if remote.Status != models.StatusFilled {
		t.Errorf("Expected FILLED, got %s", remote.Status)
	}
	if remote.FilledQty != 50 || remote.AvgFillPrice != 2500 {
		t.Errorf("Unexpected fill: %+v", remote)
	}

	select {
	case event := <-gw.Executions():
		if event.RemoteID != remoteID || event.FilledQty != 50 {
			t.Errorf("Unexpected event: %+v", event)
		}
	default:
		t.Error("Expected execution event for market fill")
	}
}

func TestLimitOrderStaysOpen(t *testing.T) {
	gw := newConnectedPaper(t)
	ctx := context.Background()

	remoteID, err := gw.Submit(ctx, &models.Order{
		Symbol: "RELIANCE", Side: models.OrderSideBuy, Type: models.OrderTypeLimit, Quantity: 50, LimitPrice: 2400,
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	open, err := gw.OpenOrders(ctx)
	if err != nil {
		t.Fatalf("OpenOrders failed: %v", err)
	}
	if len(open) != 1 || open[0].RemoteID != remoteID {
		t.Errorf("Expected the limit order open, got %+v", open)
	}
}

func TestSimulateFillEmitsEvents(t *testing.T) {
	gw := newConnectedPaper(t)
	ctx := context.Background()

	remoteID, err := gw.Submit(ctx, &models.Order{
		Symbol: "RELIANCE", Side: models.OrderSideBuy, Type: models.OrderTypeLimit, Quantity: 100, LimitPrice: 2500,
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if err := gw.SimulateFill(remoteID, 40, 2495, 2); err != nil {
		t.Fatalf("SimulateFill failed: %v", err)
	}
	if err := gw.SimulateFill(remoteID, 60, 2500, 3); err != nil {
		t.Fatalf("SimulateFill failed: %v", err)
	}

	seen := make(map[string]bool)
	total := 0
	for i := 0; i < 2; i++ {
		event := <-gw.Executions()
		if seen[event.ExecID] {
			t.Errorf("Duplicate exec id emitted: %s", event.ExecID)
		}
		seen[event.ExecID] = true
		total += event.FilledQty
	}
	if total != 100 {
		t.Errorf("Expected 100 total filled across events, got %d", total)
	}

	remote, err := gw.OrderStatus(ctx, remoteID)
	if err != nil {
		t.Fatalf("OrderStatus failed: %v", err)
	}
	want := (40*2495.0 + 60*2500.0) / 100.0
	if remote.AvgFillPrice != want {
		t.Errorf("Expected avg %.4f, got %.4f", want, remote.AvgFillPrice)
	}
}

func TestCancelOpenOrder(t *testing.T) {
	gw := newConnectedPaper(t)
	ctx := context.Background()

	remoteID, err := gw.Submit(ctx, &models.Order{
		Symbol: "RELIANCE", Side: models.OrderSideBuy, Type: models.OrderTypeLimit, Quantity: 10, LimitPrice: 2500,
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if err := gw.Cancel(ctx, remoteID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	remote, err := gw.OrderStatus(ctx, remoteID)
	if err != nil {
		t.Fatalf("OrderStatus failed: %v", err)
	}
	if remote.Status != models.StatusCancelled {
		t.Errorf("Expected CANCELLED, got %s", remote.Status)
	}

	// Cancelled is terminal at the venue too.
	if err := gw.Cancel(ctx, remoteID); err == nil {
		t.Error("Expected cancel of cancelled order to fail")
	}
}

func TestOrderStatusUnknownID(t *testing.T) {
	gw := newConnectedPaper(t)

	_, err := gw.OrderStatus(context.Background(), "NOPE")
	if !apperrors.Is(err, apperrors.ErrOrderNotFound) {
		t.Errorf("Expected ErrOrderNotFound, got %v", err)
	}
}
