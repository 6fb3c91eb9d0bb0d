// Package cart applies line and add-on/charge mutations to an order and keeps
// its price snapshot in step with them.
package cart

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"cart-order-system/internal/live"
	"cart-order-system/internal/logger"
	"cart-order-system/internal/models"
	"cart-order-system/internal/services/pricing"
	"cart-order-system/internal/store"
)

// ChangeNotifier is told about every order whose content changed.
type ChangeNotifier interface {
	Notify(orderID int)
}

// LineResult is the outcome of a line mutation.
type LineResult struct {
	OrderID   int               `json:"order_id"`
	ProductID int               `json:"product_id"`
	Quantity  int               `json:"quantity"`
	Price     models.OrderPrice `json:"order_price"`
}

// ToggleResult is the outcome of an add-on or charge toggle.
type ToggleResult struct {
	OrderID  int               `json:"order_id"`
	ItemID   int               `json:"item_id"`
	Selected bool              `json:"selected"`
	Price    models.OrderPrice `json:"order_price"`
}

type lineKey struct {
	orderID   int
	productID int
}

// Service serializes all mutations of one order and drives the price cache
// after each of them.
type Service struct {
	orders     store.OrderStore
	lines      store.CartLineStore
	selections store.SelectionStore
	cache      *pricing.Cache
	notifier   ChangeNotifier
	logger     *logger.Logger

	locks      *orderLocks
	quantities *live.Keyed[lineKey, int]
}

func NewService(
	orders store.OrderStore,
	lines store.CartLineStore,
	selections store.SelectionStore,
	cache *pricing.Cache,
	notifier ChangeNotifier,
	log *logger.Logger,
) *Service {
	return &Service{
		orders:     orders,
		lines:      lines,
		selections: selections,
		cache:      cache,
		notifier:   notifier,
		logger:     log,
		locks:      newOrderLocks(),
		quantities: live.NewKeyed[lineKey](0),
	}
}

// WithOrderLock runs fn while holding the mutation lock of orderID.
func (s *Service) WithOrderLock(orderID int, fn func() error) error {
	unlock := s.locks.lock(orderID)
	defer unlock()
	return fn()
}

// AddLine adds one unit of a product. A failed price delta is returned
// together with the new quantity.
func (s *Service) AddLine(ctx context.Context, orderID, productID int) (LineResult, error) {
	unlock := s.locks.lock(orderID)
	defer unlock()

	if err := s.editable(ctx, orderID); err != nil {
		return LineResult{}, err
	}

	qty, err := s.lines.AddLine(ctx, orderID, productID)
	if err != nil {
		return LineResult{}, models.Persistence("add line", err)
	}
	return s.afterLineChange(ctx, "line_added", orderID, productID, qty, 1)
}

// RemoveLine removes one unit of a product, deleting the line at zero.
func (s *Service) RemoveLine(ctx context.Context, orderID, productID int) (LineResult, error) {
	unlock := s.locks.lock(orderID)
	defer unlock()

	if err := s.editable(ctx, orderID); err != nil {
		return LineResult{}, err
	}

	qty, err := s.lines.RemoveLine(ctx, orderID, productID)
	if err != nil {
		return LineResult{}, models.Persistence("remove line", err)
	}
	return s.afterLineChange(ctx, "line_removed", orderID, productID, qty, -1)
}

// DeleteLine removes the whole line regardless of its quantity.
func (s *Service) DeleteLine(ctx context.Context, orderID, productID int) (LineResult, error) {
	unlock := s.locks.lock(orderID)
	defer unlock()

	if err := s.editable(ctx, orderID); err != nil {
		return LineResult{}, err
	}

	removed, err := s.lines.DeleteLine(ctx, orderID, productID)
	if err != nil {
		return LineResult{}, models.Persistence("delete line", err)
	}
	return s.afterLineChange(ctx, "line_deleted", orderID, productID, 0, -removed)
}

func (s *Service) afterLineChange(ctx context.Context, action string, orderID, productID, qty, delta int) (LineResult, error) {
	s.quantities.Set(lineKey{orderID, productID}, qty)
	s.notify(orderID)

	result := LineResult{OrderID: orderID, ProductID: productID, Quantity: qty}
	price, err := s.cache.ApplyProduct(ctx, orderID, productID, delta)
	if err != nil {
		s.logger.Error("price_delta_failed", "Line changed but price was not updated", logger.RequestID(ctx), err, map[string]interface{}{
			"order_id":   orderID,
			"product_id": productID,
		})
		return result, err
	}
	result.Price = price

	s.logger.Debug(action, "Cart line changed", logger.RequestID(ctx), map[string]interface{}{
		"order_id":   orderID,
		"product_id": productID,
		"quantity":   qty,
	})
	return result, nil
}

// QuantityOf streams the quantity of a product in an order until ctx is done.
// Absent lines report 0 and only changes are emitted.
func (s *Service) QuantityOf(ctx context.Context, orderID, productID int) (<-chan int, error) {
	unlock := s.locks.lock(orderID)
	defer unlock()

	qty, err := s.lines.Quantity(ctx, orderID, productID)
	if err != nil {
		return nil, models.Persistence("get quantity", err)
	}

	value := s.quantities.At(lineKey{orderID, productID})
	value.Set(qty)
	return value.Subscribe(ctx), nil
}

// ToggleAddOn flips the membership of an add-on and applies its price delta.
func (s *Service) ToggleAddOn(ctx context.Context, orderID, itemID int) (ToggleResult, error) {
	unlock := s.locks.lock(orderID)
	defer unlock()

	if err := s.editable(ctx, orderID); err != nil {
		return ToggleResult{}, err
	}
	return s.toggleAddOn(ctx, orderID, itemID)
}

// ToggleCharge flips the membership of a charge and applies its price delta.
func (s *Service) ToggleCharge(ctx context.Context, orderID, chargeID int) (ToggleResult, error) {
	unlock := s.locks.lock(orderID)
	defer unlock()

	if err := s.editable(ctx, orderID); err != nil {
		return ToggleResult{}, err
	}
	return s.toggleCharge(ctx, orderID, chargeID)
}

func (s *Service) toggleAddOn(ctx context.Context, orderID, itemID int) (ToggleResult, error) {
	selected, err := s.selections.ToggleAddOn(ctx, orderID, itemID)
	if err != nil {
		return ToggleResult{}, models.Persistence("toggle add-on", err)
	}
	s.notify(orderID)

	price, err := s.cache.ApplyAddOn(ctx, orderID, itemID, selected)
	return s.toggled(ctx, "addon_toggled", orderID, itemID, selected, price, err)
}

func (s *Service) toggleCharge(ctx context.Context, orderID, chargeID int) (ToggleResult, error) {
	selected, err := s.selections.ToggleCharge(ctx, orderID, chargeID)
	if err != nil {
		return ToggleResult{}, models.Persistence("toggle charge", err)
	}
	s.notify(orderID)

	price, err := s.cache.ApplyCharge(ctx, orderID, chargeID, selected)
	return s.toggled(ctx, "charge_toggled", orderID, chargeID, selected, price, err)
}

func (s *Service) toggled(ctx context.Context, action string, orderID, itemID int, selected bool, price models.OrderPrice, err error) (ToggleResult, error) {
	result := ToggleResult{OrderID: orderID, ItemID: itemID, Selected: selected}
	fields := map[string]interface{}{
		"order_id": orderID,
		"item_id":  itemID,
		"selected": selected,
	}
	if err != nil {
		s.logger.Error("price_delta_failed", "Selection toggled but price was not updated", logger.RequestID(ctx), err, fields)
		return result, err
	}
	result.Price = price
	s.logger.Debug(action, "Selection toggled", logger.RequestID(ctx), fields)
	return result, nil
}

// SyncSelections toggles the difference between the current and the wanted
// add-on and charge sets. Every toggle is attempted; failures are joined.
func (s *Service) SyncSelections(ctx context.Context, orderID int, addOnIDs, chargeIDs []int) error {
	unlock := s.locks.lock(orderID)
	defer unlock()

	currentAddOns, err := s.selections.AddOnIDs(ctx, orderID)
	if err != nil {
		return models.Persistence("list add-ons", err)
	}
	currentCharges, err := s.selections.ChargeIDs(ctx, orderID)
	if err != nil {
		return models.Persistence("list charges", err)
	}

	var errs []error
	for _, id := range symmetricDiff(currentAddOns, addOnIDs) {
		if _, err := s.toggleAddOn(ctx, orderID, id); err != nil {
			errs = append(errs, fmt.Errorf("add-on %d: %w", id, err))
		}
	}
	for _, id := range symmetricDiff(currentCharges, chargeIDs) {
		if _, err := s.toggleCharge(ctx, orderID, id); err != nil {
			errs = append(errs, fmt.Errorf("charge %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// OrderRemoved resets the live quantities of a deleted order.
func (s *Service) OrderRemoved(orderID int) {
	match := func(k lineKey) bool { return k.orderID == orderID }
	s.quantities.SetWhere(match, 0)
	s.quantities.Forget(match)
}

func (s *Service) editable(ctx context.Context, orderID int) error {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return models.Persistence("get order", err)
	}
	if !order.IsProcessing() {
		return models.ValidationError{Field: "order_id", Message: fmt.Sprintf("order %d is %s and can no longer be edited", orderID, order.Status)}
	}
	return nil
}

func (s *Service) notify(orderID int) {
	if s.notifier != nil {
		s.notifier.Notify(orderID)
	}
}

// symmetricDiff returns the ids present in exactly one of current and wanted.
func symmetricDiff(current, wanted []int) []int {
	var diff []int
	for _, id := range current {
		if !slices.Contains(wanted, id) {
			diff = append(diff, id)
		}
	}
	for _, id := range wanted {
		if !slices.Contains(current, id) && !slices.Contains(diff, id) {
			diff = append(diff, id)
		}
	}
	return diff
}
