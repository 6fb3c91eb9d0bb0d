package selection

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"cart-order-system/internal/logger"
	"cart-order-system/internal/models"
)

// EventSource delivers raw order event bodies until ctx is done.
type EventSource interface {
	StartConsuming(ctx context.Context, handler func(ctx context.Context, body []byte) error) error
}

// Worker reconciles the selection when order events arrive and on a fixed tick,
// which covers events that were missed or never published.
type Worker struct {
	tracker  *Tracker
	source   EventSource
	interval time.Duration
	logger   *logger.Logger
}

// NewWorker creates a reconciler. source may be nil, in which case only the
// periodic tick runs.
func NewWorker(tracker *Tracker, source EventSource, interval time.Duration, log *logger.Logger) *Worker {
	return &Worker{
		tracker:  tracker,
		source:   source,
		interval: interval,
		logger:   log,
	}
}

// Start runs until ctx is cancelled or the event source fails.
func (w *Worker) Start(ctx context.Context) error {
	requestID := logger.GenerateRequestID()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w.tickLoop(gctx)
		return nil
	})
	if w.source != nil {
		g.Go(func() error {
			if err := w.source.StartConsuming(gctx, w.HandleMessage); err != nil {
				w.logger.Error("consumer_failed", "Order event consumer failed", requestID, err, nil)
				return err
			}
			return nil
		})
	}

	w.logger.Info("worker_started", "Selection reconciler started", requestID, map[string]interface{}{
		"interval_seconds": w.interval.Seconds(),
		"consumes_events":  w.source != nil,
	})

	err := g.Wait()
	w.logger.Info("graceful_shutdown", "Selection reconciler stopped", requestID, nil)
	return err
}

// HandleMessage reconciles after one order event. Malformed bodies are
// rejected so the transport can dead-letter them.
func (w *Worker) HandleMessage(ctx context.Context, body []byte) error {
	requestID := logger.GenerateRequestID()

	var event models.OrderEvent
	if err := json.Unmarshal(body, &event); err != nil {
		w.logger.Error("message_parsing_failed", "Failed to parse order event", requestID, err, nil)
		return fmt.Errorf("failed to parse message: %w", err)
	}

	w.logger.Debug("order_event_received", "Received order event", requestID, map[string]interface{}{
		"event_id":   event.EventID,
		"event_type": event.Type,
		"order_id":   event.OrderID,
	})

	var err error
	switch event.Type {
	case models.EventOrderPlaced:
		_, err = w.tracker.OnPlaced(ctx, event.OrderID)
	case models.EventOrderDeleted:
		_, err = w.tracker.OnDeleted(ctx, event.OrderID)
	default:
		_, err = w.tracker.Reconcile(ctx)
	}
	return err
}

func (w *Worker) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.tracker.Reconcile(ctx); err != nil {
				w.logger.Warn("tick_reconcile_failed", "Periodic reconciliation failed, retrying next tick", "", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}
}
