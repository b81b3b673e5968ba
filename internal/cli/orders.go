package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"boursicotor/internal/models"
	"boursicotor/internal/store"
)

func newOrderCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Order lifecycle operations",
		Long:  "Create, submit, cancel and inspect orders.",
	}

	cmd.AddCommand(newOrderCreateCmd(app))
	cmd.AddCommand(newOrderSubmitCmd(app))
	cmd.AddCommand(newOrderCancelCmd(app))
	cmd.AddCommand(newOrderListCmd(app))
	cmd.AddCommand(newOrderShowCmd(app))

	return cmd
}

func newOrderCreateCmd(app *App) *cobra.Command {
	var (
		symbol     string
		side       string
		orderType  string
		quantity   int
		limitPrice float64
		stopPrice  float64
		strategy   string
		submit     bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new order",
		Long: `Create a new order in PENDING state. The order is validated and
persisted but not sent to the broker; use --submit to submit it in the
same invocation, or 'order submit' later.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Manager == nil {
				return fmt.Errorf("order engine not initialized")
			}

			spec := models.OrderSpec{
				Symbol:     strings.ToUpper(symbol),
				Side:       models.OrderSide(strings.ToUpper(side)),
				Type:       models.OrderType(strings.ToUpper(orderType)),
				Quantity:   quantity,
				LimitPrice: limitPrice,
				StopPrice:  stopPrice,
				Strategy:   strategy,
			}

			id, err := app.Manager.Create(cmd.Context(), spec)
			if err != nil {
				output.Error("Failed to create order: %v", err)
				return err
			}

			if submit {
				if err := app.Gateway.Connect(cmd.Context()); err != nil {
					output.Error("Failed to connect to broker: %v", err)
					return err
				}
				if err := app.Manager.Submit(cmd.Context(), id); err != nil {
					output.Error("Order %s created but submission failed: %v", id, err)
					return err
				}
			}

			order, err := app.Manager.Get(cmd.Context(), id)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(order)
			}
			output.Success("✓ Order %s %s", id, order.Status)
			output.Printf("  %s %s %d %s\n", output.SideString(order.Side), order.Type, order.Quantity, order.Symbol)
			return nil
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "", "trading symbol (required)")
	cmd.Flags().StringVar(&side, "side", "", "BUY or SELL (required)")
	cmd.Flags().StringVar(&orderType, "type", "MARKET", "MARKET, LIMIT, STOP or STOP_LIMIT")
	cmd.Flags().IntVar(&quantity, "qty", 0, "order quantity (required)")
	cmd.Flags().Float64Var(&limitPrice, "limit", 0, "limit price")
	cmd.Flags().Float64Var(&stopPrice, "stop", 0, "stop trigger price")
	cmd.Flags().StringVar(&strategy, "strategy", "", "strategy tag")
	cmd.Flags().BoolVar(&submit, "submit", false, "submit immediately after creation")
	cmd.MarkFlagRequired("symbol")
	cmd.MarkFlagRequired("side")
	cmd.MarkFlagRequired("qty")

	return cmd
}

func newOrderSubmitCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <order-id>",
		Short: "Submit a pending order to the broker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Manager == nil {
				return fmt.Errorf("order engine not initialized")
			}

			if err := app.Gateway.Connect(cmd.Context()); err != nil {
				output.Error("Failed to connect to broker: %v", err)
				return err
			}

			if err := app.Manager.Submit(cmd.Context(), args[0]); err != nil {
				output.Error("Submission failed: %v", err)
				return err
			}

			order, err := app.Manager.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(order)
			}
			output.Success("✓ Order %s submitted (broker id %s)", order.ID, order.RemoteID)
			return nil
		},
	}
}

func newOrderCancelCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <order-id>",
		Short: "Cancel an order",
		Long: `Cancel an order. Pending orders are cancelled locally; orders that
reached the broker are cancelled there first, and fills that arrive while
the cancel is in flight are preserved.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Manager == nil {
				return fmt.Errorf("order engine not initialized")
			}

			if err := app.Gateway.Connect(cmd.Context()); err != nil {
				output.Error("Failed to connect to broker: %v", err)
				return err
			}

			if err := app.Manager.Cancel(cmd.Context(), args[0]); err != nil {
				output.Error("Cancellation failed: %v", err)
				return err
			}

			order, err := app.Manager.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(order)
			}
			output.Success("✓ Order %s %s", order.ID, order.Status)
			if order.FilledQty > 0 {
				output.Printf("  Filled %d/%d @ %.2f before cancellation\n",
					order.FilledQty, order.Quantity, order.AvgFillPrice)
			}
			return nil
		},
	}
}

func newOrderListCmd(app *App) *cobra.Command {
	var (
		symbol   string
		status   string
		strategy string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Manager == nil {
				return fmt.Errorf("order engine not initialized")
			}

			filter := store.OrderFilter{
				Symbol:   strings.ToUpper(symbol),
				Status:   models.OrderStatus(strings.ToUpper(status)),
				Strategy: strategy,
				Limit:    limit,
			}
			orders, err := app.Manager.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(orders)
			}
			if len(orders) == 0 {
				output.Dim("No orders found")
				return nil
			}

			table := NewTable(output, "ID", "SYMBOL", "SIDE", "TYPE", "QTY", "FILLED", "AVG PRICE", "STATUS", "CREATED")
			for _, o := range orders {
				table.AddRow(
					o.ID,
					o.Symbol,
					output.SideString(o.Side),
					string(o.Type),
					fmt.Sprintf("%d", o.Quantity),
					fmt.Sprintf("%d", o.FilledQty),
					fmt.Sprintf("%.2f", o.AvgFillPrice),
					output.StatusString(o.Status),
					o.CreatedAt.Format("2006-01-02 15:04"),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "", "filter by symbol")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&strategy, "strategy", "", "filter by strategy tag")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of orders")

	return cmd
}

func newOrderShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "show <order-id>",
		Aliases: []string{"status"},
		Short:   "Show order details",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Manager == nil {
				return fmt.Errorf("order engine not initialized")
			}

			order, err := app.Manager.Get(cmd.Context(), args[0])
			if err != nil {
				output.Error("Order not found: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(order)
			}
			printOrder(output, order)
			return nil
		},
	}
}

func printOrder(output *Output, o *models.Order) {
	output.Bold("Order %s", o.ID)
	output.Printf("  Symbol:    %s\n", o.Symbol)
	output.Printf("  Side:      %s\n", output.SideString(o.Side))
	output.Printf("  Type:      %s\n", o.Type)
	output.Printf("  Quantity:  %d\n", o.Quantity)
	if o.LimitPrice > 0 {
		output.Printf("  Limit:     %.2f\n", o.LimitPrice)
	}
	if o.StopPrice > 0 {
		output.Printf("  Stop:      %.2f\n", o.StopPrice)
	}
	output.Printf("  Status:    %s\n", output.StatusString(o.Status))
	output.Printf("  Filled:    %d/%d", o.FilledQty, o.Quantity)
	if o.FilledQty > 0 {
		output.Printf(" @ %.2f", o.AvgFillPrice)
	}
	output.Println()
	if o.Commission > 0 {
		output.Printf("  Commission: %.2f\n", o.Commission)
	}
	if o.RemoteID != "" {
		output.Printf("  Broker ID: %s\n", o.RemoteID)
	}
	if o.Strategy != "" {
		output.Printf("  Strategy:  %s\n", o.Strategy)
	}
	if o.Annotation != "" {
		output.Printf("  Notes:     %s\n", o.Annotation)
	}
	if o.StatusMessage != "" {
		output.Printf("  Message:   %s\n", o.StatusMessage)
	}
	if o.Anomaly != "" {
		output.Warning("  ⚠ Anomaly: %s (frozen, manual review required)", o.Anomaly)
	}
	output.Printf("  Created:   %s\n", o.CreatedAt.Format(time.RFC3339))
	if !o.SubmittedAt.IsZero() {
		output.Printf("  Submitted: %s\n", o.SubmittedAt.Format(time.RFC3339))
	}
	if !o.FilledAt.IsZero() {
		output.Printf("  Filled At: %s\n", o.FilledAt.Format(time.RFC3339))
	}
}
