package lifecycle

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"boursicotor/internal/models"
)

// Property: For any sequence of execution events, the filled quantity never
// decreases, never exceeds the ordered quantity, and the order is FILLED
// exactly when the fill reaches the ordered quantity.
func TestProperty_FillMonotonicityAndClamping(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("Fills are monotone and clamped to ordered quantity", prop.ForAll(
		func(quantity int, fills []int) bool {
			order := e.submitLimitOrder(t, quantity)

			prevFilled := 0
			for i, qty := range fills {
				if qty <= 0 {
					continue
				}
				err := e.manager.ApplyExecution(ctx, models.ExecutionEvent{
					ExecID:    fmt.Sprintf("%s_E%d", order.ID, i),
					RemoteID:  order.RemoteID,
					FilledQty: qty,
					FillPrice: 2500,
					Timestamp: time.Now(),
				})
				if err != nil {
					t.Logf("ApplyExecution failed: %v", err)
					return false
				}

				current, err := e.manager.Get(ctx, order.ID)
				if err != nil {
					t.Logf("Get failed: %v", err)
					return false
				}

				if current.FilledQty < prevFilled {
					t.Logf("Fill regressed: %d -> %d", prevFilled, current.FilledQty)
					return false
				}
				if current.FilledQty > current.Quantity {
					t.Logf("Fill exceeds quantity: %d > %d", current.FilledQty, current.Quantity)
					return false
				}
				if current.FilledQty == current.Quantity && current.Status != models.StatusFilled {
					t.Logf("Complete fill but status %s", current.Status)
					return false
				}
				if current.FilledQty < current.Quantity && current.Status == models.StatusFilled {
					t.Logf("Incomplete fill but status FILLED at %d/%d", current.FilledQty, current.Quantity)
					return false
				}
				prevFilled = current.FilledQty
			}
			return true
		},
		gen.IntRange(1, 500),
		gen.SliceOfN(5, gen.IntRange(1, 200)),
	))

	properties.TestingRun(t)
}

// Property: Applying the same execution event any number of times has the
// same effect as applying it once.
func TestProperty_DuplicateExecutionIdempotence(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("Redelivered execution events do not change state", prop.ForAll(
		func(quantity, fillQty, redeliveries int) bool {
			if fillQty > quantity {
				fillQty = quantity
			}
			order := e.submitLimitOrder(t, quantity)

			event := models.ExecutionEvent{
				ExecID:    order.ID + "_E1",
				RemoteID:  order.RemoteID,
				FilledQty: fillQty,
				FillPrice: 2500,
				Timestamp: time.Now(),
			}

			for i := 0; i <= redeliveries; i++ {
				if err := e.manager.ApplyExecution(ctx, event); err != nil {
					t.Logf("ApplyExecution failed: %v", err)
					return false
				}
			}

			current, err := e.manager.Get(ctx, order.ID)
			if err != nil {
				t.Logf("Get failed: %v", err)
				return false
			}
			return current.FilledQty == fillQty
		},
		gen.IntRange(2, 500),
		gen.IntRange(1, 500),
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}
