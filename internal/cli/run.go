package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"boursicotor/internal/stream"
)

func newRunCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the engine: consume fills and reconcile continuously",
		Long: `Connect to the broker and run until interrupted. The engine consumes
the broker's asynchronous execution stream and runs the reconciliation
loop on the configured interval, keeping the local database in sync with
the broker's records.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Manager == nil || app.Reconciler == nil {
				return fmt.Errorf("order engine not initialized")
			}

			ctx := cmd.Context()
			if err := app.Gateway.Connect(ctx); err != nil {
				output.Error("Failed to connect to broker: %v", err)
				return err
			}
			defer app.Gateway.Disconnect()

			consumer := stream.NewConsumer(app.Gateway, app.Manager, app.Logger)
			consumer.Start(ctx)
			defer consumer.Stop()

			app.Reconciler.Start(ctx)
			defer app.Reconciler.Stop()

			// Startup reconciliation closes any gap accumulated while the
			// engine was down.
			if corrected, err := app.Reconciler.ReconcileNow(ctx); err != nil {
				app.Logger.Warn().Err(err).Msg("Startup reconciliation failed")
			} else if corrected > 0 {
				output.Info("Startup reconciliation corrected %d order(s)", corrected)
			}

			output.Success("✓ Engine running (mode: %s, reconcile every %s)",
				app.Config.Trading.Mode, app.Config.Reconcile.Interval)
			output.Dim("Press Ctrl+C to stop")

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-sigCh:
			case <-ctx.Done():
			}

			output.Println()
			output.Info("Shutting down")
			return nil
		},
	}
}
