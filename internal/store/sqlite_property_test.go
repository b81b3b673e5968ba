package store

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"boursicotor/internal/models"
)

// Property: For any valid order, saving it and reading it back produces an
// equivalent order (round-trip consistency), by local id and by remote id.
func TestProperty_OrderRoundTripConsistency(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "orders_property.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	symbols := []string{"RELIANCE", "TCS", "INFY", "HDFCBANK", "SBIN", "TATAMOTORS"}
	sides := []models.OrderSide{models.OrderSideBuy, models.OrderSideSell}
	types := []models.OrderType{models.OrderTypeMarket, models.OrderTypeLimit, models.OrderTypeStop, models.OrderTypeStopLimit}

	counter := 0

	properties.Property("Order round-trip: save then get produces equivalent data", prop.ForAll(
		func(symbolIdx, sideIdx, typeIdx, quantity int, limitPrice float64, paper bool) bool {
			ctx := context.Background()
			counter++

			order := &models.Order{
				ID:         fmt.Sprintf("ORD_PROP_%d", counter),
				RemoteID:   fmt.Sprintf("BROKER_PROP_%d", counter),
				Symbol:     symbols[symbolIdx%len(symbols)],
				Side:       sides[sideIdx%len(sides)],
				Type:       types[typeIdx%len(types)],
				Quantity:   quantity,
				LimitPrice: limitPrice,
				Status:     models.StatusSubmitted,
				Paper:      paper,
				CreatedAt:  time.Now().UTC().Truncate(time.Second),
			}

			if err := store.SaveOrder(ctx, order); err != nil {
				t.Logf("Failed to save order: %v", err)
				return false
			}

			got, err := store.GetOrder(ctx, order.ID)
			if err != nil {
				t.Logf("Failed to get order: %v", err)
				return false
			}

			if got.Symbol != order.Symbol || got.Side != order.Side || got.Type != order.Type {
				t.Logf("Identity fields differ: %+v vs %+v", got, order)
				return false
			}
			if got.Quantity != order.Quantity || got.Paper != order.Paper {
				t.Logf("Quantity/paper differ: %+v vs %+v", got, order)
				return false
			}
			if math.Abs(got.LimitPrice-order.LimitPrice) > 1e-9 {
				t.Logf("Limit price differs: %f vs %f", got.LimitPrice, order.LimitPrice)
				return false
			}

			byRemote, err := store.GetOrderByRemoteID(ctx, order.RemoteID)
			if err != nil {
				t.Logf("Failed to get order by remote id: %v", err)
				return false
			}
			return byRemote.ID == order.ID
		},
		gen.IntRange(0, 100),
		gen.IntRange(0, 100),
		gen.IntRange(0, 100),
		gen.IntRange(1, 10000),
		gen.Float64Range(0.05, 50000),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// Property: Conditional status updates never lose a prior transition. When
// two writers race from the same expected status, exactly one wins and the
// loser gets ErrConflict.
func TestProperty_ConditionalUpdateNeverLosesTransition(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "orders_cond.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	targets := []models.OrderStatus{
		models.StatusSubmitted, models.StatusCancelled, models.StatusError,
	}

	counter := 0

	properties.Property("Exactly one of two racing conditional writes wins", prop.ForAll(
		func(firstIdx, secondIdx int) bool {
			ctx := context.Background()
			counter++

			order := &models.Order{
				ID:        fmt.Sprintf("ORD_COND_%d", counter),
				Symbol:    "RELIANCE",
				Side:      models.OrderSideBuy,
				Type:      models.OrderTypeMarket,
				Quantity:  10,
				Status:    models.StatusPending,
				CreatedAt: time.Now(),
			}
			if err := store.SaveOrder(ctx, order); err != nil {
				t.Logf("Failed to save order: %v", err)
				return false
			}

			first := *order
			first.Status = targets[firstIdx%len(targets)]
			second := *order
			second.Status = targets[secondIdx%len(targets)]

			err1 := store.UpdateOrderIfStatus(ctx, &first, models.StatusPending)
			err2 := store.UpdateOrderIfStatus(ctx, &second, models.StatusPending)

			// First write wins, second must conflict.
			if err1 != nil {
				t.Logf("First conditional write failed: %v", err1)
				return false
			}
			if err2 == nil {
				t.Log("Second conditional write should have conflicted")
				return false
			}

			got, err := store.GetOrder(ctx, order.ID)
			if err != nil {
				t.Logf("Failed to get order: %v", err)
				return false
			}
			return got.Status == first.Status
		},
		gen.IntRange(0, 100),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}
