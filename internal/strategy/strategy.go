// Package strategy turns rule evaluations into order intents and routes them
// through the lifecycle manager.
package strategy

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	apperrors "boursicotor/internal/errors"
	"boursicotor/internal/lifecycle"
	"boursicotor/internal/models"
	"boursicotor/internal/rules"
)

// Rule pairs a named condition with the order it should place when the
// condition holds.
type Rule struct {
	Name      string
	Condition rules.Expr
	Side      models.OrderSide
	Type      models.OrderType
	Quantity  int
}

// Strategy evaluates a set of rules against numeric inputs for a symbol and
// creates orders for the rules that fire. Orders are created PENDING; when
// AutoSubmit is set they are submitted immediately, otherwise they wait for
// explicit review.
type Strategy struct {
	name       string
	symbol     string
	ruleset    []Rule
	manager    *lifecycle.Manager
	logger     zerolog.Logger
	autoSubmit bool
}

// Config holds configuration for a strategy.
type Config struct {
	Name       string
	Symbol     string
	Rules      []Rule
	Manager    *lifecycle.Manager
	Logger     zerolog.Logger
	AutoSubmit bool
}

// New creates a new strategy.
func New(cfg Config) *Strategy {
	return &Strategy{
		name:       cfg.Name,
		symbol:     cfg.Symbol,
		ruleset:    cfg.Rules,
		manager:    cfg.Manager,
		logger:     cfg.Logger,
		autoSubmit: cfg.AutoSubmit,
	}
}

// ParseRule builds a Rule from a condition expression string.
func ParseRule(name, condition string, side models.OrderSide, orderType models.OrderType, quantity int) (Rule, error) {
	expr, err := rules.Parse(condition)
	if err != nil {
		return Rule{}, apperrors.Wrapf(err, "parsing rule %s", name)
	}
	return Rule{
		Name:      name,
		Condition: expr,
		Side:      side,
		Type:      orderType,
		Quantity:  quantity,
	}, nil
}

// Evaluate runs every rule against the inputs and returns the signals that
// fired. A rule whose inputs are incomplete is skipped with a warning rather
// than failing the whole evaluation.
func (s *Strategy) Evaluate(inputs map[string]float64) []models.Signal {
	var signals []models.Signal
	for _, rule := range s.ruleset {
		fired, err := rule.Condition.Eval(inputs)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Str("strategy", s.name).
				Str("rule", rule.Name).
				Msg("Rule evaluation skipped")
			continue
		}
		if !fired {
			continue
		}
		signals = append(signals, models.Signal{
			Symbol:    s.symbol,
			Side:      rule.Side,
			Quantity:  rule.Quantity,
			Price:     inputs["close"],
			Rule:      rule.Name,
			Timestamp: time.Now(),
		})
		s.logger.Info().
			Str("strategy", s.name).
			Str("rule", rule.Name).
			Str("symbol", s.symbol).
			Str("side", string(rule.Side)).
			Int("quantity", rule.Quantity).
			Msg("Rule fired")
	}
	return signals
}

// Act creates an order for each signal and returns the local order ids. With
// AutoSubmit enabled each order is also submitted; a submit failure for one
// signal does not block the others, the order stays recorded in its failed
// state for review.
func (s *Strategy) Act(ctx context.Context, signals []models.Signal) ([]string, error) {
	var ids []string
	var firstErr error

	for _, sig := range signals {
		ruleName := sig.Rule
		rule, ok := s.findRule(ruleName)
		if !ok {
			continue
		}

		spec := models.OrderSpec{
			Symbol:     sig.Symbol,
			Side:       sig.Side,
			Type:       rule.Type,
			Quantity:   sig.Quantity,
			Strategy:   s.name,
			Annotation: "rule:" + ruleName,
		}
		if rule.Type == models.OrderTypeLimit {
			spec.LimitPrice = sig.Price
		}

		id, err := s.manager.Create(ctx, spec)
		if err != nil {
			s.logger.Error().
				Err(err).
				Str("strategy", s.name).
				Str("rule", ruleName).
				Msg("Failed to create order for signal")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		ids = append(ids, id)

		if !s.autoSubmit {
			continue
		}
		if err := s.manager.Submit(ctx, id); err != nil {
			s.logger.Error().
				Err(err).
				Str("strategy", s.name).
				Str("order_id", id).
				Msg("Failed to submit order for signal")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return ids, firstErr
}

// Run evaluates the rules and acts on whatever fired.
func (s *Strategy) Run(ctx context.Context, inputs map[string]float64) ([]string, error) {
	return s.Act(ctx, s.Evaluate(inputs))
}

func (s *Strategy) findRule(name string) (Rule, bool) {
	for _, r := range s.ruleset {
		if r.Name == name {
			return r, true
		}
	}
	return Rule{}, false
}
