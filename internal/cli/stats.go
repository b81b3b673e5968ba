package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newStatsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate order statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Stats == nil {
				return fmt.Errorf("order store not initialized")
			}

			snapshot, err := app.Stats.Snapshot(cmd.Context())
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(snapshot)
			}

			output.Bold("Order Statistics")
			output.Printf("  Total Orders: %d\n", snapshot.TotalOrders)
			output.Printf("  Filled:       %d\n", snapshot.FilledCount)
			output.Printf("  Open:         %d\n", snapshot.OpenCount)
			output.Printf("  Cancelled:    %d\n", snapshot.CancelledCount)
			output.Printf("  Rejected:     %d\n", snapshot.RejectedCount)
			output.Printf("  Errors:       %d\n", snapshot.ErrorCount)
			output.Printf("  Fill Rate:    %.1f%%\n", snapshot.FillRate)
			output.Printf("  Volume:       %d\n", snapshot.TotalVolume)
			output.Printf("  Commission:   %.2f\n", snapshot.TotalCommission)
			if snapshot.AnomalyCount > 0 {
				output.Warning("  ⚠ Anomalies:  %d (see 'boursicotor anomalies')", snapshot.AnomalyCount)
			}

			if len(snapshot.BySymbol) > 0 {
				output.Println()
				table := NewTable(output, "SYMBOL", "ORDERS", "FILLED", "VOLUME", "COMMISSION")
				for _, s := range snapshot.BySymbol {
					table.AddRow(
						s.Symbol,
						fmt.Sprintf("%d", s.TotalOrders),
						fmt.Sprintf("%d", s.FilledCount),
						fmt.Sprintf("%d", s.TotalVolume),
						fmt.Sprintf("%.2f", s.TotalCommission),
					)
				}
				table.Render()
			}
			return nil
		},
	}
}

func newAnomaliesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "anomalies",
		Short: "List recorded data-integrity anomalies",
		Long: `List anomalies raised against orders: overfills and reconciliation
discrepancies. Anomalous orders are frozen from further automatic
mutation until reviewed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Stats == nil {
				return fmt.Errorf("order store not initialized")
			}

			anomalies, err := app.Stats.Anomalies(cmd.Context())
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(anomalies)
			}
			if len(anomalies) == 0 {
				output.Success("✓ No anomalies recorded")
				return nil
			}

			table := NewTable(output, "ORDER", "KIND", "DETAIL", "WHEN")
			for _, a := range anomalies {
				table.AddRow(
					a.OrderID,
					output.ColoredString(ColorRed, a.Kind),
					a.Detail,
					a.CreatedAt.Format(time.RFC3339),
				)
			}
			table.Render()
			return nil
		},
	}
}
