package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newReconcileCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run a reconciliation pass now",
		Long: `Diff local open orders against the broker's records and apply
corrective transitions: heal missed fills, close orders the broker no
longer knows about, and flag discrepancies that need manual review.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Reconciler == nil {
				return fmt.Errorf("order engine not initialized")
			}

			if err := app.Gateway.Connect(cmd.Context()); err != nil {
				output.Error("Failed to connect to broker: %v", err)
				return err
			}

			corrected, err := app.Reconciler.ReconcileNow(cmd.Context())
			if err != nil {
				output.Error("Reconciliation failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]int{"corrected": corrected})
			}
			if corrected == 0 {
				output.Success("✓ All orders consistent with broker")
			} else {
				output.Success("✓ Reconciliation corrected %d order(s)", corrected)
			}
			return nil
		},
	}
}
