package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"boursicotor/internal/models"
	"boursicotor/internal/strategy"
)

func newStrategyCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strategy",
		Short: "Evaluate strategy rules against market inputs",
	}
	cmd.AddCommand(newStrategyEvalCmd(app))
	return cmd
}

func newStrategyEvalCmd(app *App) *cobra.Command {
	var (
		name      string
		symbol    string
		condition string
		side      string
		orderType string
		quantity  int
		inputs    []string
		execute   bool
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate a rule and optionally place the resulting order",
		Long: `Evaluate a rule condition against named numeric inputs. Without
--execute the command only reports whether the rule fires; with it, a
firing rule creates an order (and submits it when auto_submit is set).

Example:
  boursicotor strategy eval --symbol RELIANCE \
    --when "rsi < 30 and close > sma_50" --side BUY --qty 10 \
    --input rsi=25 --input close=2510 --input sma_50=2500`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Manager == nil {
				return fmt.Errorf("order engine not initialized")
			}

			rule, err := strategy.ParseRule(name, condition,
				models.OrderSide(strings.ToUpper(side)),
				models.OrderType(strings.ToUpper(orderType)), quantity)
			if err != nil {
				output.Error("Invalid rule: %v", err)
				return err
			}

			values, err := parseInputs(inputs)
			if err != nil {
				output.Error("Invalid input: %v", err)
				return err
			}

			s := strategy.New(strategy.Config{
				Name:       name,
				Symbol:     strings.ToUpper(symbol),
				Rules:      []strategy.Rule{rule},
				Manager:    app.Manager,
				Logger:     app.Logger,
				AutoSubmit: app.Config.Trading.AutoSubmit,
			})

			signals := s.Evaluate(values)
			if len(signals) == 0 {
				if output.IsJSON() {
					return output.JSON(map[string]bool{"fired": false})
				}
				output.Dim("Rule did not fire")
				return nil
			}

			if !execute {
				if output.IsJSON() {
					return output.JSON(map[string]interface{}{"fired": true, "signals": signals})
				}
				output.Success("✓ Rule fired: %s %d %s", signals[0].Side, signals[0].Quantity, signals[0].Symbol)
				output.Dim("Run again with --execute to place the order")
				return nil
			}

			if app.Config.Trading.AutoSubmit {
				if err := app.Gateway.Connect(cmd.Context()); err != nil {
					output.Error("Failed to connect to broker: %v", err)
					return err
				}
			}

			ids, err := s.Act(cmd.Context(), signals)
			if err != nil {
				output.Error("Failed to act on signal: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"fired": true, "order_ids": ids})
			}
			for _, id := range ids {
				order, err := app.Manager.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				output.Success("✓ Order %s %s", id, order.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "adhoc", "rule name")
	cmd.Flags().StringVar(&symbol, "symbol", "", "trading symbol (required)")
	cmd.Flags().StringVar(&condition, "when", "", "rule condition expression (required)")
	cmd.Flags().StringVar(&side, "side", "BUY", "BUY or SELL")
	cmd.Flags().StringVar(&orderType, "type", "MARKET", "order type when the rule fires")
	cmd.Flags().IntVar(&quantity, "qty", 0, "order quantity (required)")
	cmd.Flags().StringArrayVar(&inputs, "input", nil, "named numeric input, key=value (repeatable)")
	cmd.Flags().BoolVar(&execute, "execute", false, "create the order when the rule fires")
	cmd.MarkFlagRequired("symbol")
	cmd.MarkFlagRequired("when")
	cmd.MarkFlagRequired("qty")

	return cmd
}

func parseInputs(pairs []string) (map[string]float64, error) {
	values := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("input %q is not numeric: %q", key, raw)
		}
		values[key] = v
	}
	return values, nil
}
