// Package order is the entry point of the cart: it validates requests, drives
// the cart, pricing, selection and view components and exposes them over HTTP.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cart-order-system/internal/catalog"
	"cart-order-system/internal/logger"
	"cart-order-system/internal/metrics"
	"cart-order-system/internal/models"
	"cart-order-system/internal/services/cart"
	"cart-order-system/internal/services/orderview"
	"cart-order-system/internal/services/pricing"
	"cart-order-system/internal/services/selection"
	"cart-order-system/internal/store"
)

// EventPublisher delivers order lifecycle events.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error
}

// HealthChecker reports whether the backing database is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// OrderResult is returned by CreateOrUpdateOrder.
type OrderResult struct {
	Order   models.CartOrder  `json:"cart_order"`
	Price   models.OrderPrice `json:"order_price"`
	Created bool              `json:"created"`
}

// PriceReport compares the full aggregation with the stored snapshot.
// Snapshot is the value found before any repair.
type PriceReport struct {
	Computed   models.OrderPrice `json:"computed"`
	Snapshot   models.OrderPrice `json:"snapshot"`
	Consistent bool              `json:"consistent"`
	Repaired   bool              `json:"repaired"`
}

// Deps holds the collaborators of Service.
type Deps struct {
	Store      store.Store
	Catalog    catalog.Catalog
	Cart       *cart.Service
	Cache      *pricing.Cache
	Aggregator *pricing.Aggregator
	Tracker    *selection.Tracker
	Views      *orderview.Builder
	Feed       *orderview.Feed
	Events     EventPublisher
	Health     HealthChecker
	Metrics    *metrics.Metrics
	Logger     *logger.Logger
}

// Service is the order facade used by the HTTP handler.
type Service struct {
	store      store.Store
	catalog    catalog.Catalog
	cart       *cart.Service
	cache      *pricing.Cache
	aggregator *pricing.Aggregator
	tracker    *selection.Tracker
	views      *orderview.Builder
	feed       *orderview.Feed
	events     EventPublisher
	health     HealthChecker
	metrics    *metrics.Metrics
	logger     *logger.Logger
	now        func() time.Time
}

func NewService(d Deps) *Service {
	return &Service{
		store:      d.Store,
		catalog:    d.Catalog,
		cart:       d.Cart,
		cache:      d.Cache,
		aggregator: d.Aggregator,
		tracker:    d.Tracker,
		views:      d.Views,
		feed:       d.Feed,
		events:     d.Events,
		health:     d.Health,
		metrics:    d.Metrics,
		logger:     d.Logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Assemble wires every component over one store and catalog.
func Assemble(st store.Store, cat catalog.Catalog, events EventPublisher, health HealthChecker, m *metrics.Metrics, log *logger.Logger) *Service {
	tracker := selection.NewTracker(st, st, m, log)
	views := orderview.NewBuilder(st, st, st, st, cat, tracker)
	feed := orderview.NewFeed(views, log)
	cache := pricing.NewCache(st, cat, m, log)

	return NewService(Deps{
		Store:      st,
		Catalog:    cat,
		Cart:       cart.NewService(st, st, st, cache, feed, log),
		Cache:      cache,
		Aggregator: pricing.NewAggregator(cat, st, st, m, log),
		Tracker:    tracker,
		Views:      views,
		Feed:       feed,
		Events:     events,
		Health:     health,
		Metrics:    m,
		Logger:     log,
	})
}

// Tracker exposes the selected-order tracker for background reconciliation.
func (s *Service) Tracker() *selection.Tracker {
	return s.tracker
}

// CreateOrUpdateOrder creates an order when req.OrderID is 0 and updates it
// otherwise. A new order is selected. The add-on and charge lists of the
// request replace the current ones.
//
// A returned error wrapping pricing.ErrDeltaFailed means the order was saved
// but its price snapshot lags behind.
func (s *Service) CreateOrUpdateOrder(ctx context.Context, req *models.CreateOrUpdateOrderRequest) (OrderResult, error) {
	if err := ValidateCreateOrUpdate(req); err != nil {
		return OrderResult{}, err
	}

	customerID, addressID, err := s.resolveParty(ctx, req)
	if err != nil {
		return OrderResult{}, err
	}

	var out saved
	if req.OrderID == 0 {
		out, err = s.create(ctx, req, customerID, addressID)
	} else {
		out, err = s.update(ctx, req, customerID, addressID)
	}
	if err != nil {
		return OrderResult{}, err
	}
	result := out.result

	orderID := result.Order.OrderID
	syncErr := s.cart.SyncSelections(ctx, orderID, req.AddOnItems, req.Charges)
	s.feed.Notify(orderID)

	if price, err := s.cache.Snapshot(ctx, orderID); err == nil {
		result.Price = price
	}

	if err := errors.Join(out.priceErr, syncErr); err != nil {
		s.logger.Warn("order_saved_with_errors", "Order saved but not every change applied", logger.RequestID(ctx), map[string]interface{}{
			"order_id": orderID,
			"error":    err.Error(),
		})
		return result, err
	}

	s.logger.Info("order_saved", "Order saved", logger.RequestID(ctx), map[string]interface{}{
		"order_id":    orderID,
		"order_type":  result.Order.OrderType,
		"created":     result.Created,
		"total_price": result.Price.TotalPrice,
	})
	return result, nil
}

// saved is an order write whose price snapshot may lag behind (priceErr).
type saved struct {
	result   OrderResult
	priceErr error
}

func (s *Service) create(ctx context.Context, req *models.CreateOrUpdateOrderRequest, customerID, addressID int) (saved, error) {
	id, err := s.store.NextOrderID(ctx)
	if err != nil {
		return saved{}, models.Persistence("next order id", err)
	}

	order := models.CartOrder{
		OrderID:         id,
		OrderType:       req.OrderType,
		Status:          models.StatusProcessing,
		ChargesIncluded: req.ChargesIncluded,
		CustomerID:      customerID,
		AddressID:       addressID,
		CreatedAt:       s.now(),
	}

	var priceErr error
	err = s.cart.WithOrderLock(id, func() error {
		if err := s.store.CreateOrder(ctx, order); err != nil {
			return models.Persistence("create order", err)
		}
		_, err := s.cache.Seed(ctx, id, order.OrderType, order.ChargesIncluded)
		if errors.Is(err, pricing.ErrDeltaFailed) {
			priceErr = err
			return nil
		}
		return err
	})
	if err != nil {
		return saved{}, err
	}

	if err := s.tracker.Select(ctx, id); err != nil {
		return saved{}, err
	}
	return saved{result: OrderResult{Order: order, Created: true}, priceErr: priceErr}, nil
}

func (s *Service) update(ctx context.Context, req *models.CreateOrUpdateOrderRequest, customerID, addressID int) (saved, error) {
	var (
		updated  models.CartOrder
		priceErr error
	)
	err := s.cart.WithOrderLock(req.OrderID, func() error {
		existing, err := s.store.GetOrder(ctx, req.OrderID)
		if err != nil {
			return models.Persistence("get order", err)
		}
		if !existing.IsProcessing() {
			return models.ValidationError{Field: "order_id", Message: fmt.Sprintf("order %d is %s and can no longer be edited", existing.OrderID, existing.Status)}
		}

		now := s.now()
		updated = existing
		updated.OrderType = req.OrderType
		updated.ChargesIncluded = req.ChargesIncluded
		updated.CustomerID = customerID
		updated.AddressID = addressID
		updated.UpdatedAt = &now

		if err := s.store.UpdateOrder(ctx, updated); err != nil {
			return models.Persistence("update order", err)
		}

		_, err = s.cache.Rebase(ctx, updated.OrderID, existing, updated)
		if errors.Is(err, pricing.ErrDeltaFailed) {
			priceErr = err
			return nil
		}
		return err
	})
	if err != nil {
		return saved{}, err
	}
	return saved{result: OrderResult{Order: updated}, priceErr: priceErr}, nil
}

// resolveParty returns the customer and address ids of a DineOut order,
// creating them when only their details were given. DineIn orders have none.
func (s *Service) resolveParty(ctx context.Context, req *models.CreateOrUpdateOrderRequest) (int, int, error) {
	if req.OrderType != models.DineOut {
		return 0, 0, nil
	}

	var customer models.Customer
	var err error
	if req.Customer.CustomerID > 0 {
		customer, err = s.catalog.Customer(ctx, req.Customer.CustomerID)
	} else {
		customer, err = s.catalog.FindOrCreateCustomer(ctx, req.Customer)
	}
	if err != nil {
		return 0, 0, models.Persistence("resolve customer", err)
	}

	var address models.Address
	if req.Address.AddressID > 0 {
		address, err = s.catalog.Address(ctx, req.Address.AddressID)
	} else {
		address, err = s.catalog.FindOrCreateAddress(ctx, req.Address)
	}
	if err != nil {
		return 0, 0, models.Persistence("resolve address", err)
	}
	return customer.CustomerID, address.AddressID, nil
}

// PlaceOrder moves a processing order to placed and returns the selected
// order id after reconciliation.
func (s *Service) PlaceOrder(ctx context.Context, orderID int) (int, error) {
	done := false
	selected, err := s.tracker.Transition(ctx, func(ctx context.Context) error {
		return s.cart.WithOrderLock(orderID, func() error {
			order, err := s.store.GetOrder(ctx, orderID)
			if err != nil {
				return models.Persistence("get order", err)
			}
			if !order.IsProcessing() {
				return models.ValidationError{Field: "order_id", Message: fmt.Sprintf("order %d is already %s", orderID, order.Status)}
			}
			if err := s.store.SetStatus(ctx, orderID, models.StatusPlaced, s.now()); err != nil {
				return models.Persistence("place order", err)
			}
			done = true
			return nil
		})
	})
	if done {
		s.feed.Notify(orderID)
		s.publish(ctx, models.EventOrderPlaced, orderID)
		s.logger.Info("order_placed", "Order placed", logger.RequestID(ctx), map[string]interface{}{
			"order_id":          orderID,
			"selected_order_id": selected,
		})
	}
	return selected, err
}

// DeleteOrder removes an order with its lines, selections and price snapshot
// and returns the selected order id after reconciliation.
func (s *Service) DeleteOrder(ctx context.Context, orderID int) (int, error) {
	done := false
	selected, err := s.tracker.Transition(ctx, func(ctx context.Context) error {
		return s.cart.WithOrderLock(orderID, func() error {
			if err := s.store.DeleteOrder(ctx, orderID); err != nil {
				return models.Persistence("delete order", err)
			}
			done = true
			return s.cache.Drop(ctx, orderID)
		})
	})
	if done {
		s.cart.OrderRemoved(orderID)
		s.feed.Notify(orderID)
		s.publish(ctx, models.EventOrderDeleted, orderID)
		s.logger.Info("order_deleted", "Order deleted", logger.RequestID(ctx), map[string]interface{}{
			"order_id":          orderID,
			"selected_order_id": selected,
		})
	}
	return selected, err
}

// PlaceOrders places every order in ids. Each row is attempted; the ids that
// succeeded are returned with the joined failures.
func (s *Service) PlaceOrders(ctx context.Context, ids []int) ([]int, error) {
	return s.batch(ctx, ids, s.PlaceOrder)
}

// DeleteOrders deletes every order in ids, like PlaceOrders.
func (s *Service) DeleteOrders(ctx context.Context, ids []int) ([]int, error) {
	return s.batch(ctx, ids, s.DeleteOrder)
}

func (s *Service) batch(ctx context.Context, ids []int, op func(context.Context, int) (int, error)) ([]int, error) {
	if err := validateBatch(ids); err != nil {
		return nil, err
	}

	var (
		succeeded []int
		errs      []error
	)
	for _, id := range ids {
		if _, err := op(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("order %d: %w", id, err))
			continue
		}
		succeeded = append(succeeded, id)
	}
	return succeeded, errors.Join(errs...)
}

// SelectOrder selects a processing order.
func (s *Service) SelectOrder(ctx context.Context, orderID int) error {
	if err := s.tracker.Select(ctx, orderID); err != nil {
		return err
	}
	s.feed.Notify(orderID)
	return nil
}

// SelectedOrderID returns the reconciled selected order id.
func (s *Service) SelectedOrderID(ctx context.Context) int {
	return s.tracker.Current(ctx)
}

// WatchSelected reconciles once and then streams the selected order id.
func (s *Service) WatchSelected(ctx context.Context) <-chan int {
	s.tracker.Current(ctx)
	return s.tracker.Watch(ctx)
}

// ComputePrice aggregates the price of an order from scratch and compares it
// with the stored snapshot. A drifted snapshot is rewritten from the
// aggregation under the order's mutation lock.
func (s *Service) ComputePrice(ctx context.Context, orderID int) (PriceReport, error) {
	var report PriceReport
	err := s.cart.WithOrderLock(orderID, func() error {
		order, err := s.store.GetOrder(ctx, orderID)
		if err != nil {
			return models.Persistence("get order", err)
		}

		computed, err := s.aggregator.Compute(ctx, orderID, order.OrderType, order.ChargesIncluded)
		if err != nil {
			return err
		}
		snapshot, err := s.cache.Snapshot(ctx, orderID)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return err
		}

		report = PriceReport{Computed: computed, Snapshot: snapshot, Consistent: computed == snapshot}
		if report.Consistent {
			return nil
		}
		s.logger.Warn("price_snapshot_drift", "Stored price differs from aggregation", logger.RequestID(ctx), map[string]interface{}{
			"order_id":       orderID,
			"computed_total": computed.TotalPrice,
			"snapshot_total": snapshot.TotalPrice,
		})
		if err := s.cache.Resync(ctx, computed); err != nil {
			return err
		}
		report.Repaired = true
		return nil
	})
	if err != nil {
		return PriceReport{}, err
	}
	if report.Repaired {
		s.feed.Notify(orderID)
	}
	return report, nil
}

// ListOrders builds the order list for q.
func (s *Service) ListOrders(ctx context.Context, q orderview.Query) ([]models.OrderView, error) {
	return s.views.List(ctx, q)
}

// OrderDetail builds the view of one order.
func (s *Service) OrderDetail(ctx context.Context, orderID int) (models.OrderView, error) {
	return s.views.Detail(ctx, orderID)
}

// WatchOrders streams the order list for the latest query.
func (s *Service) WatchOrders(ctx context.Context, initial orderview.Query, queries <-chan orderview.Query) <-chan []models.OrderView {
	return s.feed.WatchList(ctx, initial, queries)
}

// WatchOrder streams the view of one order.
func (s *Service) WatchOrder(ctx context.Context, orderID int) <-chan models.OrderView {
	return s.feed.WatchDetail(ctx, orderID)
}

func (s *Service) AddLine(ctx context.Context, orderID, productID int) (cart.LineResult, error) {
	return s.cart.AddLine(ctx, orderID, productID)
}

func (s *Service) RemoveLine(ctx context.Context, orderID, productID int) (cart.LineResult, error) {
	return s.cart.RemoveLine(ctx, orderID, productID)
}

func (s *Service) DeleteLine(ctx context.Context, orderID, productID int) (cart.LineResult, error) {
	return s.cart.DeleteLine(ctx, orderID, productID)
}

func (s *Service) QuantityOf(ctx context.Context, orderID, productID int) (<-chan int, error) {
	return s.cart.QuantityOf(ctx, orderID, productID)
}

func (s *Service) ToggleAddOn(ctx context.Context, orderID, itemID int) (cart.ToggleResult, error) {
	return s.cart.ToggleAddOn(ctx, orderID, itemID)
}

func (s *Service) ToggleCharge(ctx context.Context, orderID, chargeID int) (cart.ToggleResult, error) {
	return s.cart.ToggleCharge(ctx, orderID, chargeID)
}

// HealthCheck pings the database when one is configured.
func (s *Service) HealthCheck(ctx context.Context) error {
	if s.health == nil {
		return nil
	}
	return s.health.Ping(ctx)
}

func (s *Service) publish(ctx context.Context, eventType models.OrderEventType, orderID int) {
	if s.events == nil {
		return
	}

	event := models.NewOrderEvent(eventType, orderID)
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.metrics.EventPublished(string(eventType), "failed")
		s.logger.Error("event_publish_failed", "Failed to publish order event", logger.RequestID(ctx), err, map[string]interface{}{
			"event":    eventType,
			"order_id": orderID,
		})
		return
	}
	s.metrics.EventPublished(string(eventType), "ok")
}
