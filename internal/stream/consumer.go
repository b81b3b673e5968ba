// Package stream consumes asynchronous execution events from the broker
// gateway and feeds them into the order lifecycle.
package stream

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"boursicotor/internal/gateway"
	"boursicotor/internal/lifecycle"
	"boursicotor/internal/models"
)

// Consumer drains the gateway's execution channel and applies each event to
// the lifecycle manager. Delivery is at-least-once; the manager deduplicates
// by execution id, so redelivery after a reconnect is harmless.
type Consumer struct {
	gateway gateway.Gateway
	manager *lifecycle.Manager
	logger  zerolog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewConsumer creates a new execution-stream consumer.
func NewConsumer(gw gateway.Gateway, manager *lifecycle.Manager, logger zerolog.Logger) *Consumer {
	return &Consumer{
		gateway: gw,
		manager: manager,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
}

// Start begins consuming execution events until Stop is called, the context
// is cancelled, or the gateway closes its channel on disconnect.
func (c *Consumer) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		events := c.gateway.Executions()

		for {
			select {
			case event, ok := <-events:
				if !ok {
					c.logger.Info().Msg("Execution stream closed")
					return
				}
				c.apply(ctx, event)
			case <-c.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the consumer.
func (c *Consumer) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *Consumer) apply(ctx context.Context, event models.ExecutionEvent) {
	if err := c.manager.ApplyExecution(ctx, event); err != nil {
		// A failed application is recorded and retried implicitly: the
		// reconciliation loop re-derives missed fills from the broker.
		c.logger.Error().
			Err(err).
			Str("exec_id", event.ExecID).
			Str("remote_id", event.RemoteID).
			Msg("Failed to apply execution event")
	}
}
