// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrInvalidState       = errors.New("operation not legal for current order status")
	ErrGatewayUnavailable = errors.New("gateway unavailable")
	ErrGatewayTimeout     = errors.New("gateway call timed out")
	ErrSymbolNotFound     = errors.New("symbol not found")
	ErrDuplicateRemoteID  = errors.New("remote id already assigned")
	ErrOrderFrozen        = errors.New("order frozen pending manual review")
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrDatabaseError      = errors.New("database error")
	ErrConflict           = errors.New("concurrent modification detected")
)

// ValidationError represents a malformed order request. No order is
// persisted when one of these is returned.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// InvalidStateError represents an operation that is not legal for the
// order's current status. Callers should re-check state and retry or abort.
type InvalidStateError struct {
	OrderID string
	Status  string
	Action  string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state: cannot %s order %s in status %s", e.Action, e.OrderID, e.Status)
}

func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}

// NewInvalidStateError creates a new InvalidStateError.
func NewInvalidStateError(orderID, status, action string) *InvalidStateError {
	return &InvalidStateError{
		OrderID: orderID,
		Status:  status,
		Action:  action,
	}
}

// GatewayError represents a transient error from the broker gateway.
// The order is left in its last-known-good state and healed by reconciliation.
type GatewayError struct {
	Op      string
	Timeout bool
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("gateway error [%s]: timeout: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("gateway error [%s]: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	if e.Timeout {
		return ErrGatewayTimeout
	}
	return ErrGatewayUnavailable
}

// NewGatewayError creates a new GatewayError.
func NewGatewayError(op string, err error) *GatewayError {
	return &GatewayError{Op: op, Err: err}
}

// NewGatewayTimeout creates a GatewayError marking a client-side timeout.
func NewGatewayTimeout(op string, err error) *GatewayError {
	return &GatewayError{Op: op, Timeout: true, Err: err}
}

// AnomalyError represents a data-integrity red flag recorded against an
// order. The order is frozen from further automatic mutation.
type AnomalyError struct {
	OrderID string
	Kind    string
	Detail  string
}

func (e *AnomalyError) Error() string {
	return fmt.Sprintf("anomaly [%s] order %s: %s", e.Kind, e.OrderID, e.Detail)
}

func (e *AnomalyError) Unwrap() error {
	return ErrOrderFrozen
}

// NewAnomalyError creates a new AnomalyError.
func NewAnomalyError(orderID, kind, detail string) *AnomalyError {
	return &AnomalyError{
		OrderID: orderID,
		Kind:    kind,
		Detail:  detail,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
