// Package models provides domain models for the order engine.
package models

import "time"

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType represents the type of an order.
type OrderType string

const (
	OrderTypeMarket    OrderType = "MARKET"
	OrderTypeLimit     OrderType = "LIMIT"
	OrderTypeStop      OrderType = "STOP"
	OrderTypeStopLimit OrderType = "STOP_LIMIT"
)

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	StatusPending         OrderStatus = "PENDING"
	StatusSubmitted       OrderStatus = "SUBMITTED"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCancelled       OrderStatus = "CANCELLED"
	StatusRejected        OrderStatus = "REJECTED"
	StatusError           OrderStatus = "ERROR"
)

// IsTerminal reports whether no further transition is permitted from s.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected, StatusError:
		return true
	}
	return false
}

// IsOpen reports whether the order is live at the broker.
func (s OrderStatus) IsOpen() bool {
	return s == StatusSubmitted || s == StatusPartiallyFilled
}

// CanTransitionTo reports whether the state machine permits s -> next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case StatusPending:
		return next == StatusSubmitted || next == StatusCancelled || next == StatusError
	case StatusSubmitted:
		return next == StatusPartiallyFilled || next == StatusFilled ||
			next == StatusCancelled || next == StatusRejected
	case StatusPartiallyFilled:
		// Self-loop for repeated partial fills.
		return next == StatusPartiallyFilled || next == StatusFilled ||
			next == StatusCancelled || next == StatusRejected
	}
	return false
}

// Order represents a trading order tracked by the engine.
// The local store is the source of truth; RemoteID links the order to the
// broker's record once submission succeeds.
type Order struct {
	ID            string
	RemoteID      string
	Symbol        string
	Side          OrderSide
	Type          OrderType
	Quantity      int
	LimitPrice    float64
	StopPrice     float64
	Status        OrderStatus
	FilledQty     int
	AvgFillPrice  float64
	Commission    float64
	Paper         bool
	Strategy      string
	Annotation    string
	StatusMessage string
	Anomaly       string
	CreatedAt     time.Time
	SubmittedAt   time.Time
	FilledAt      time.Time
}

// IsFilled reports whether the order is completely filled.
func (o *Order) IsFilled() bool {
	return o.FilledQty >= o.Quantity
}

// RemainingQty returns the unfilled quantity.
func (o *Order) RemainingQty() int {
	if o.FilledQty >= o.Quantity {
		return 0
	}
	return o.Quantity - o.FilledQty
}

// OrderSpec describes a new order request.
type OrderSpec struct {
	Symbol     string
	Side       OrderSide
	Type       OrderType
	Quantity   int
	LimitPrice float64
	StopPrice  float64
	Paper      bool
	Strategy   string
	Annotation string
}

// ExecutionEvent represents an incremental fill reported by the broker.
// ExecID is the provider-assigned execution identifier used to deduplicate
// redelivered events.
type ExecutionEvent struct {
	ExecID     string
	RemoteID   string
	FilledQty  int
	FillPrice  float64
	Commission float64
	Timestamp  time.Time
}

// RemoteOrder is the broker's view of an order, as returned by the gateway.
type RemoteOrder struct {
	RemoteID     string
	Status       OrderStatus
	FilledQty    int
	AvgFillPrice float64
	Commission   float64
}
