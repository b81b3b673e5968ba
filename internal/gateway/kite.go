// Package gateway provides broker gateway implementations.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"

	apperrors "boursicotor/internal/errors"
	"boursicotor/internal/models"
)

// KiteGateway implements the Gateway interface for Zerodha Kite Connect.
type KiteGateway struct {
	client      *kiteconnect.Client
	ticker      *kiteticker.Ticker
	apiKey      string
	apiSecret   string
	userID      string
	exchange    string
	accessToken string
	tokenPath   string
	connected   bool

	events chan models.ExecutionEvent
	// Last cumulative filled quantity and average price seen per remote id,
	// used to convert cumulative order updates into incremental execution
	// events with per-slice prices.
	lastFilled map[string]int
	lastAvg    map[string]float64

	mu sync.RWMutex
}

// KiteConfig holds configuration for the Kite gateway.
type KiteConfig struct {
	APIKey    string
	APISecret string
	UserID    string
	Exchange  string
	TokenPath string
}

// NewKiteGateway creates a new Kite Connect gateway instance.
// It automatically loads any saved session from disk.
func NewKiteGateway(cfg KiteConfig) *KiteGateway {
	client := kiteconnect.New(cfg.APIKey)

	tokenPath := cfg.TokenPath
	if tokenPath == "" {
		homeDir, _ := os.UserHomeDir()
		tokenPath = filepath.Join(homeDir, ".config", "boursicotor", "session.json")
	}

	exchange := cfg.Exchange
	if exchange == "" {
		exchange = "NSE"
	}

	kg := &KiteGateway{
		client:     client,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		userID:     cfg.UserID,
		exchange:   exchange,
		tokenPath:  tokenPath,
		events:     make(chan models.ExecutionEvent, 64),
		lastFilled: make(map[string]int),
		lastAvg:    make(map[string]float64),
	}

	_ = kg.loadSession()

	return kg
}

// sessionData represents persisted session data.
type sessionData struct {
	AccessToken string    `json:"access_token"`
	UserID      string    `json:"user_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Connect validates the session and starts the order-update stream.
func (k *KiteGateway) Connect(ctx context.Context) error {
	if err := k.loadSession(); err != nil {
		loginURL := k.client.GetLoginURL()
		return fmt.Errorf("authentication required: please visit %s and complete login, then call CompleteLogin with the request token", loginURL)
	}

	if _, err := k.client.GetUserProfile(); err != nil {
		return apperrors.NewGatewayError("connect", err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.connected {
		return nil
	}

	k.events = make(chan models.ExecutionEvent, 64)
	k.ticker = kiteticker.New(k.apiKey, k.accessToken)
	k.ticker.OnOrderUpdate(k.handleOrderUpdate)
	go k.ticker.Serve()

	k.connected = true
	return nil
}

// CompleteLogin completes the OAuth flow with the request token.
func (k *KiteGateway) CompleteLogin(ctx context.Context, requestToken string) error {
	session, err := k.client.GenerateSession(requestToken, k.apiSecret)
	if err != nil {
		return fmt.Errorf("failed to generate session: %w", err)
	}

	k.mu.Lock()
	k.accessToken = session.AccessToken
	k.client.SetAccessToken(session.AccessToken)
	k.mu.Unlock()

	return k.saveSession(session.AccessToken)
}

// Disconnect stops the order-update stream and closes the event channel.
func (k *KiteGateway) Disconnect() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.connected {
		return nil
	}

	if k.ticker != nil {
		k.ticker.Stop()
		k.ticker = nil
	}
	k.connected = false
	close(k.events)
	return nil
}

// IsConnected reports the connection state.
func (k *KiteGateway) IsConnected() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.connected
}

// Executions returns the execution event channel.
func (k *KiteGateway) Executions() <-chan models.ExecutionEvent {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.events
}

// Submit places an order at the venue and returns the broker-assigned id.
func (k *KiteGateway) Submit(ctx context.Context, order *models.Order) (string, error) {
	if !k.IsConnected() {
		return "", apperrors.NewGatewayError("submit", apperrors.ErrGatewayUnavailable)
	}

	params := kiteconnect.OrderParams{
		Exchange:        k.exchange,
		Tradingsymbol:   order.Symbol,
		TransactionType: string(order.Side),
		OrderType:       mapOrderType(order.Type),
		Product:         "CNC",
		Quantity:        order.Quantity,
		Price:           order.LimitPrice,
		TriggerPrice:    order.StopPrice,
		Validity:        "DAY",
		Tag:             order.ID,
	}

	resp, err := k.client.PlaceOrder(kiteconnect.VarietyRegular, params)
	if err != nil {
		return "", apperrors.NewGatewayError("submit", err)
	}

	return resp.OrderID, nil
}

// Cancel cancels an order at the venue.
func (k *KiteGateway) Cancel(ctx context.Context, remoteID string) error {
	if !k.IsConnected() {
		return apperrors.NewGatewayError("cancel", apperrors.ErrGatewayUnavailable)
	}

	if _, err := k.client.CancelOrder(kiteconnect.VarietyRegular, remoteID, nil); err != nil {
		return apperrors.NewGatewayError("cancel", err)
	}
	return nil
}

// OpenOrders returns the venue's open-order set.
func (k *KiteGateway) OpenOrders(ctx context.Context) ([]models.RemoteOrder, error) {
	if !k.IsConnected() {
		return nil, apperrors.NewGatewayError("open_orders", apperrors.ErrGatewayUnavailable)
	}

	orders, err := k.client.GetOrders()
	if err != nil {
		return nil, apperrors.NewGatewayError("open_orders", err)
	}

	var result []models.RemoteOrder
	for _, o := range orders {
		status := mapKiteStatus(o.Status, int(o.FilledQuantity), int(o.Quantity))
		if !status.IsOpen() {
			continue
		}
		result = append(result, models.RemoteOrder{
			RemoteID:     o.OrderID,
			Status:       status,
			FilledQty:    int(o.FilledQuantity),
			AvgFillPrice: o.AveragePrice,
		})
	}
	return result, nil
}

// OrderStatus returns the venue's record of a single order.
func (k *KiteGateway) OrderStatus(ctx context.Context, remoteID string) (*models.RemoteOrder, error) {
	if !k.IsConnected() {
		return nil, apperrors.NewGatewayError("order_status", apperrors.ErrGatewayUnavailable)
	}

	history, err := k.client.GetOrderHistory(remoteID)
	if err != nil {
		return nil, apperrors.NewGatewayError("order_status", err)
	}
	if len(history) == 0 {
		return nil, apperrors.ErrOrderNotFound
	}

	// The last entry is the most recent state.
	o := history[len(history)-1]
	return &models.RemoteOrder{
		RemoteID:     o.OrderID,
		Status:       mapKiteStatus(o.Status, int(o.FilledQuantity), int(o.Quantity)),
		FilledQty:    int(o.FilledQuantity),
		AvgFillPrice: o.AveragePrice,
	}, nil
}

// handleOrderUpdate converts cumulative order updates into incremental
// execution events.
func (k *KiteGateway) handleOrderUpdate(order kiteconnect.Order) {
	filled := int(order.FilledQuantity)

	k.mu.Lock()
	prev := k.lastFilled[order.OrderID]
	if filled <= prev {
		k.mu.Unlock()
		return
	}
	prevAvg := k.lastAvg[order.OrderID]
	k.lastFilled[order.OrderID] = filled
	k.lastAvg[order.OrderID] = order.AveragePrice
	connected := k.connected
	events := k.events
	k.mu.Unlock()

	if !connected {
		return
	}

	delta := filled - prev

	// The update carries the broker's cumulative average; back out the
	// price of the new slice so the locally maintained VWAP matches the
	// broker's record.
	fillPrice := order.AveragePrice
	if prev > 0 {
		fillPrice = (order.AveragePrice*float64(filled) - prevAvg*float64(prev)) / float64(delta)
	}

	event := models.ExecutionEvent{
		ExecID:    fmt.Sprintf("%s:%d", order.OrderID, filled),
		RemoteID:  order.OrderID,
		FilledQty: delta,
		FillPrice: fillPrice,
		Timestamp: time.Now(),
	}

	select {
	case events <- event:
	default:
		// Slow consumer: reconciliation closes the gap.
	}
}

func mapOrderType(t models.OrderType) string {
	switch t {
	case models.OrderTypeMarket:
		return "MARKET"
	case models.OrderTypeLimit:
		return "LIMIT"
	case models.OrderTypeStop:
		return "SL-M"
	case models.OrderTypeStopLimit:
		return "SL"
	default:
		return string(t)
	}
}

// mapKiteStatus converts Kite order statuses to lifecycle statuses.
func mapKiteStatus(status string, filled, quantity int) models.OrderStatus {
	switch status {
	case "COMPLETE":
		return models.StatusFilled
	case "CANCELLED":
		return models.StatusCancelled
	case "REJECTED":
		return models.StatusRejected
	case "OPEN", "TRIGGER PENDING", "AMO REQ RECEIVED":
		if filled > 0 && filled < quantity {
			return models.StatusPartiallyFilled
		}
		return models.StatusSubmitted
	default:
		return models.StatusSubmitted
	}
}

func (k *KiteGateway) loadSession() error {
	data, err := os.ReadFile(k.tokenPath)
	if err != nil {
		return err
	}

	var session sessionData
	if err := json.Unmarshal(data, &session); err != nil {
		return err
	}

	// Kite tokens expire at 6 AM IST the next day.
	if time.Now().After(session.ExpiresAt) {
		return fmt.Errorf("session expired")
	}

	k.mu.Lock()
	k.accessToken = session.AccessToken
	k.client.SetAccessToken(session.AccessToken)
	k.mu.Unlock()

	return nil
}

func (k *KiteGateway) saveSession(accessToken string) error {
	dir := filepath.Dir(k.tokenPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	loc, _ := time.LoadLocation("Asia/Kolkata")
	now := time.Now().In(loc)
	expiresAt := time.Date(now.Year(), now.Month(), now.Day()+1, 6, 0, 0, 0, loc)

	session := sessionData{
		AccessToken: accessToken,
		UserID:      k.userID,
		ExpiresAt:   expiresAt,
	}

	data, err := json.Marshal(session)
	if err != nil {
		return err
	}

	return os.WriteFile(k.tokenPath, data, 0600)
}

// Ensure KiteGateway implements Gateway
var _ Gateway = (*KiteGateway)(nil)
