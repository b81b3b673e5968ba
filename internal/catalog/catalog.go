// Package catalog provides instrument resolution for order validation.
package catalog

import (
	"context"
	"strings"
	"sync"

	apperrors "boursicotor/internal/errors"
	"boursicotor/internal/models"
)

// Catalog resolves trading symbols to known tradable instruments.
type Catalog interface {
	Resolve(ctx context.Context, symbol string) (*models.Instrument, error)
}

// Static is an in-memory catalog, seeded at construction and optionally
// refreshed from the broker's instrument dump.
type Static struct {
	instruments map[string]models.Instrument
	mu          sync.RWMutex
}

// NewStatic creates a catalog holding the given instruments.
func NewStatic(instruments []models.Instrument) *Static {
	c := &Static{instruments: make(map[string]models.Instrument, len(instruments))}
	for _, inst := range instruments {
		c.instruments[strings.ToUpper(inst.Symbol)] = inst
	}
	return c
}

// Resolve returns the instrument for symbol, or ErrSymbolNotFound.
func (c *Static) Resolve(ctx context.Context, symbol string) (*models.Instrument, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	inst, ok := c.instruments[strings.ToUpper(symbol)]
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrSymbolNotFound, "symbol %q", symbol)
	}
	return &inst, nil
}

// Add registers or replaces an instrument.
func (c *Static) Add(inst models.Instrument) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instruments[strings.ToUpper(inst.Symbol)] = inst
}

// Ensure Static implements Catalog
var _ Catalog = (*Static)(nil)
