package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"boursicotor/internal/catalog"
	"boursicotor/internal/gateway"
	"boursicotor/internal/lifecycle"
	"boursicotor/internal/models"
	"boursicotor/internal/store"
)

func newTestApp(t *testing.T) *App {
	t.Helper()

	orderStore, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "orders.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { orderStore.Close() })

	gw := gateway.NewPaperGateway(gateway.PaperGatewayConfig{})

	instruments := []models.Instrument{
		{Token: 1, Symbol: "RELIANCE", Exchange: models.NSE, LotSize: 1, TickSize: 0.05},
	}
	cat := catalog.NewStatic(instruments)

	manager := lifecycle.NewManager(lifecycle.ManagerConfig{
		Store:       orderStore,
		Gateway:     gw,
		Catalog:     cat,
		Logger:      zerolog.Nop(),
		CallTimeout: 5 * time.Second,
		PaperMode:   true,
	})

	return &App{
		Logger:  zerolog.Nop(),
		Store:   orderStore,
		Gateway: gw,
		Catalog: cat,
		Manager: manager,
	}
}

// The gateway starts disconnected, so create --submit must connect before
// submitting; otherwise every order it touches lands in terminal ERROR.
func TestCreateWithSubmitConnectsGateway(t *testing.T) {
	app := newTestApp(t)

	cmd := newOrderCmd(app)
	cmd.SetArgs([]string{"create", "--symbol", "RELIANCE", "--side", "BUY",
		"--type", "LIMIT", "--qty", "10", "--limit", "2500", "--submit"})
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("create --submit failed: %v\noutput: %s", err, buf.String())
	}

	orders, err := app.Manager.List(context.Background(), store.OrderFilter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("Expected 1 order, got %d", len(orders))
	}
	if orders[0].Status != models.StatusSubmitted {
		t.Errorf("Expected SUBMITTED, got %s (message: %q)", orders[0].Status, orders[0].StatusMessage)
	}
	if orders[0].RemoteID == "" {
		t.Error("Expected a remote id after submission")
	}
}
