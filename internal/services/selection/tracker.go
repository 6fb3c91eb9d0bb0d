// Package selection keeps the single globally selected order pointed at a
// processing order.
package selection

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cart-order-system/internal/live"
	"cart-order-system/internal/logger"
	"cart-order-system/internal/metrics"
	"cart-order-system/internal/models"
	"cart-order-system/internal/store"
)

// Reconciliation outcomes, also used as metric labels.
const (
	OutcomeKept       = "kept"
	OutcomeReselected = "reselected"
	OutcomeCleared    = "cleared"
	OutcomeFailed     = "failed"
)

// staleRetries bounds how often a reconciliation restarts after its pick was
// placed or deleted by a writer outside the selection lock.
const staleRetries = 3

// Tracker owns the selected order id. Every read-modify-write of the
// selection happens under its mutex and the store's selection lock, so
// trackers in other processes sharing the store take turns with it.
type Tracker struct {
	mu       sync.Mutex
	orders   store.OrderStore
	selected store.SelectedStore
	value    *live.Value[int]
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

func NewTracker(orders store.OrderStore, selected store.SelectedStore, m *metrics.Metrics, log *logger.Logger) *Tracker {
	return &Tracker{
		orders:   orders,
		selected: selected,
		value:    live.NewValue(models.NoSelection),
		metrics:  m,
		logger:   log,
	}
}

// Select makes orderID the selected order. The order must exist and still be processing.
func (t *Tracker) Select(ctx context.Context, orderID int) error {
	err := t.locked(ctx, func(ctx context.Context) error {
		order, err := t.orders.GetOrder(ctx, orderID)
		if err != nil {
			return models.Persistence("get order", err)
		}
		if !order.IsProcessing() {
			return notSelectable(orderID, order.Status)
		}

		err = t.persist(ctx, orderID)
		if errors.Is(err, models.ErrStaleSelection) {
			return notSelectable(orderID, models.StatusPlaced)
		}
		return err
	})
	if err != nil {
		return err
	}
	t.logger.Info("order_selected", "Order selected", logger.RequestID(ctx), map[string]interface{}{"order_id": orderID})
	return nil
}

// OnPlaced repairs the selection after orderID was placed.
func (t *Tracker) OnPlaced(ctx context.Context, orderID int) (int, error) {
	return t.after(ctx, models.EventOrderPlaced, orderID)
}

// OnDeleted repairs the selection after orderID was deleted.
func (t *Tracker) OnDeleted(ctx context.Context, orderID int) (int, error) {
	return t.after(ctx, models.EventOrderDeleted, orderID)
}

func (t *Tracker) after(ctx context.Context, event models.OrderEventType, orderID int) (int, error) {
	t.logger.Debug("selection_event", "Reconciling selection after order event", logger.RequestID(ctx), map[string]interface{}{
		"event":    event,
		"order_id": orderID,
	})
	return t.Reconcile(ctx)
}

// Transition runs a place or delete mutation and the follow-up reconciliation
// as one step, so no concurrent select can observe the order in between.
func (t *Tracker) Transition(ctx context.Context, mutate func(ctx context.Context) error) (int, error) {
	var id int
	err := t.locked(ctx, func(ctx context.Context) error {
		if err := mutate(ctx); err != nil {
			return err
		}
		var err error
		id, err = t.reconcileLocked(ctx)
		return err
	})
	if err != nil {
		return t.value.Get(), err
	}
	return id, nil
}

// Reconcile is an idempotent repair: an invalid selection, or no selection
// while a processing order exists, is replaced by the most recently created
// processing order. A lookup failure leaves the previous selection in place.
func (t *Tracker) Reconcile(ctx context.Context) (int, error) {
	id := t.value.Get()
	err := t.locked(ctx, func(ctx context.Context) error {
		var err error
		id, err = t.reconcileLocked(ctx)
		return err
	})
	if err != nil && !errors.Is(err, models.ErrPersistenceFailed) {
		return t.fail(ctx, err)
	}
	return id, err
}

// Observe records a selection committed elsewhere, such as by a reconciler
// in another process, and passes it on to watchers.
func (t *Tracker) Observe(orderID int) {
	t.value.Set(orderID)
}

// Current reconciles and returns the selected order id. On failure the last
// known selection is returned.
func (t *Tracker) Current(ctx context.Context) int {
	id, err := t.Reconcile(ctx)
	if err != nil {
		return t.value.Get()
	}
	return id
}

// Watch streams the selected order id, models.NoSelection meaning none.
func (t *Tracker) Watch(ctx context.Context) <-chan int {
	return t.value.Subscribe(ctx)
}

func (t *Tracker) locked(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.selected.WithSelectionLock(ctx, fn)
}

func (t *Tracker) reconcileLocked(ctx context.Context) (int, error) {
	for attempt := 0; ; attempt++ {
		id, err := t.reconcileOnce(ctx)
		if !errors.Is(err, models.ErrStaleSelection) {
			return id, err
		}
		if attempt == staleRetries {
			return t.fail(ctx, err)
		}
		t.logger.Debug("selection_stale", "Picked order changed before it was stored, retrying", logger.RequestID(ctx), map[string]interface{}{
			"attempt": attempt + 1,
		})
	}
}

func (t *Tracker) reconcileOnce(ctx context.Context) (int, error) {
	current, err := t.selected.SelectedID(ctx)
	if err != nil {
		return t.fail(ctx, err)
	}
	t.value.Set(current)

	if current != models.NoSelection {
		order, err := t.orders.GetOrder(ctx, current)
		switch {
		case err == nil && order.IsProcessing():
			t.metrics.Reconciled(OutcomeKept)
			return current, nil
		case err != nil && !errors.Is(err, models.ErrNotFound):
			return t.fail(ctx, err)
		}
	}

	next, err := t.orders.LatestProcessingID(ctx)
	if err != nil {
		return t.fail(ctx, err)
	}
	if next == current {
		t.metrics.Reconciled(OutcomeKept)
		return current, nil
	}
	if err := t.persist(ctx, next); err != nil {
		if errors.Is(err, models.ErrStaleSelection) {
			return current, err
		}
		return t.fail(ctx, err)
	}

	outcome := OutcomeReselected
	if next == models.NoSelection {
		outcome = OutcomeCleared
	}
	t.metrics.Reconciled(outcome)
	t.logger.Info("selection_reconciled", "Selected order reconciled", logger.RequestID(ctx), map[string]interface{}{
		"previous_order_id": current,
		"selected_order_id": next,
		"outcome":           outcome,
	})
	return next, nil
}

func (t *Tracker) persist(ctx context.Context, orderID int) error {
	if err := t.selected.SetSelectedID(ctx, orderID); err != nil {
		return models.Persistence("set selected order", err)
	}
	t.value.Set(orderID)
	return nil
}

func notSelectable(orderID int, status models.OrderStatus) error {
	return models.ValidationError{Field: "order_id", Message: fmt.Sprintf("order %d is %s and cannot be selected", orderID, status)}
}

func (t *Tracker) fail(ctx context.Context, err error) (int, error) {
	t.metrics.Reconciled(OutcomeFailed)
	t.logger.Error("selection_reconcile_failed", "Keeping previous selection", logger.RequestID(ctx), err, nil)
	return t.value.Get(), fmt.Errorf("reconcile selection: %w", models.Persistence("lookup", err))
}
