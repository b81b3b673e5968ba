// Package models provides domain models for the order engine.
package models

import "time"

// Exchange represents a stock exchange.
type Exchange string

const (
	NSE Exchange = "NSE"
	BSE Exchange = "BSE"
	NFO Exchange = "NFO" // F&O
)

// Instrument represents a tradeable instrument resolved from the catalog.
type Instrument struct {
	Token    uint32
	Symbol   string
	Name     string
	Exchange Exchange
	LotSize  int
	TickSize float64
}

// Stats holds aggregate statistics over the order store.
type Stats struct {
	TotalOrders     int
	FilledCount     int
	OpenCount       int
	CancelledCount  int
	RejectedCount   int
	ErrorCount      int
	AnomalyCount    int
	FillRate        float64
	TotalVolume     int64
	TotalCommission float64
	BySymbol        map[string]SymbolStats
}

// SymbolStats holds per-instrument statistics.
type SymbolStats struct {
	Symbol          string
	TotalOrders     int
	FilledCount     int
	TotalVolume     int64
	TotalCommission float64
}

// Anomaly records a data-integrity red flag raised against an order.
// Anomalous orders are frozen from further automatic mutation.
type Anomaly struct {
	ID        int64
	OrderID   string
	Kind      string
	Detail    string
	CreatedAt time.Time
}

// Anomaly kinds.
const (
	AnomalyOverfill       = "OVERFILL"
	AnomalyReconciliation = "RECONCILIATION"
)

// Signal represents a strategy-driven order intent.
type Signal struct {
	Symbol    string
	Side      OrderSide
	Quantity  int
	Price     float64
	Rule      string
	Timestamp time.Time
}
