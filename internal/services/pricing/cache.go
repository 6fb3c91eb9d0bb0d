package pricing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cart-order-system/internal/catalog"
	"cart-order-system/internal/logger"
	"cart-order-system/internal/metrics"
	"cart-order-system/internal/models"
	"cart-order-system/internal/store"
)

// ErrDeltaFailed marks an incremental price update that was skipped because a
// catalog lookup failed. The triggering mutation itself is kept.
var ErrDeltaFailed = errors.New("price delta failed")

// Delta kinds, also used as metric labels.
const (
	KindAddOn   = "addon"
	KindCharge  = "charge"
	KindProduct = "product"
)

type appliedKey struct {
	kind    string
	orderID int
	itemID  int
}

// Cache maintains the persisted price snapshot of each order by deltas.
// Callers serialize mutations per order; the store serializes the snapshot
// row itself.
type Cache struct {
	prices  store.PriceStore
	catalog catalog.Catalog
	metrics *metrics.Metrics
	logger  *logger.Logger

	mu      sync.Mutex
	applied map[appliedKey]int64
	// units holds the unit price each product line was added with, oldest first.
	units map[appliedKey][]int64
}

func NewCache(prices store.PriceStore, cat catalog.Catalog, m *metrics.Metrics, log *logger.Logger) *Cache {
	return &Cache{
		prices:  prices,
		catalog: cat,
		metrics: m,
		logger:  log,
		applied: make(map[appliedKey]int64),
		units:   make(map[appliedKey][]int64),
	}
}

// Seed creates the snapshot of a new order: only the included-charges term.
// When the charges cannot be looked up an empty snapshot is still written and
// the lookup error is returned with it.
func (c *Cache) Seed(ctx context.Context, orderID int, orderType models.OrderType, chargesIncluded bool) (models.OrderPrice, error) {
	base, lookupErr := IncludedChargesTotal(ctx, c.catalog, orderType, chargesIncluded)
	if lookupErr != nil {
		base = 0
		lookupErr = fmt.Errorf("%w: included charges: %w", ErrDeltaFailed, lookupErr)
	}

	price := models.NewOrderPrice(orderID, base, 0)
	if err := c.write(ctx, price); err != nil {
		return models.OrderPrice{}, err
	}
	return price, lookupErr
}

// Snapshot returns the current snapshot of an order.
func (c *Cache) Snapshot(ctx context.Context, orderID int) (models.OrderPrice, error) {
	price, err := c.prices.GetPrice(ctx, orderID)
	if err != nil {
		return models.OrderPrice{}, models.Persistence("get price", err)
	}
	return price, nil
}

// ApplyAddOn adds or removes one add-on. Applicable add-ons move the base,
// non-applicable ones move the discount.
func (c *Cache) ApplyAddOn(ctx context.Context, orderID, itemID int, selected bool) (models.OrderPrice, error) {
	item, err := c.catalog.AddOnPrice(ctx, itemID)
	if err != nil {
		c.metrics.PriceDelta(KindAddOn, direction(selected), "lookup_failed")
		return models.OrderPrice{}, fmt.Errorf("%w: add-on %d: %w", ErrDeltaFailed, itemID, err)
	}

	price := c.checkSymmetry(ctx, appliedKey{KindAddOn, orderID, itemID}, item.Price, selected)
	signed := sign(selected) * price
	if item.Applicable {
		return c.apply(ctx, KindAddOn, orderID, selected, signed, 0)
	}
	return c.apply(ctx, KindAddOn, orderID, selected, 0, signed)
}

// ApplyCharge adds or removes one order-specific charge on the base.
func (c *Cache) ApplyCharge(ctx context.Context, orderID, chargeID int, selected bool) (models.OrderPrice, error) {
	charge, err := c.catalog.ChargePrice(ctx, chargeID)
	if err != nil {
		c.metrics.PriceDelta(KindCharge, direction(selected), "lookup_failed")
		return models.OrderPrice{}, fmt.Errorf("%w: charge %d: %w", ErrDeltaFailed, chargeID, err)
	}

	price := c.checkSymmetry(ctx, appliedKey{KindCharge, orderID, chargeID}, charge.Price, selected)
	return c.apply(ctx, KindCharge, orderID, selected, sign(selected)*price, 0)
}

// ApplyProduct moves the base by unit price times qtyDelta. Removed units are
// taken off at the price they were added with; units the cache has no record
// of fall back to the current catalog price.
func (c *Cache) ApplyProduct(ctx context.Context, orderID, productID, qtyDelta int) (models.OrderPrice, error) {
	if qtyDelta == 0 {
		return c.Snapshot(ctx, orderID)
	}

	added := qtyDelta > 0
	product, err := c.catalog.Product(ctx, productID)
	if err != nil {
		c.metrics.PriceDelta(KindProduct, direction(added), "lookup_failed")
		return models.OrderPrice{}, fmt.Errorf("%w: product %d: %w", ErrDeltaFailed, productID, err)
	}

	key := appliedKey{KindProduct, orderID, productID}
	if added {
		price, err := c.apply(ctx, KindProduct, orderID, true, product.Price*int64(qtyDelta), 0)
		if err == nil {
			c.pushUnits(key, product.Price, qtyDelta)
		}
		return price, err
	}

	popped := c.popUnits(key, -qtyDelta)
	var removed int64
	reported := false
	for _, unit := range popped {
		removed += unit
		if unit != product.Price && !reported {
			c.reportAsymmetry(ctx, key, unit, product.Price)
			reported = true
		}
	}
	removed += product.Price * int64(-qtyDelta-len(popped))

	price, err := c.apply(ctx, KindProduct, orderID, false, -removed, 0)
	if err != nil {
		c.restoreUnits(key, popped)
	}
	return price, err
}

// Rebase adjusts the included-charges term after an order changed its type
// or its charges-included flag.
func (c *Cache) Rebase(ctx context.Context, orderID int, from, to models.CartOrder) (models.OrderPrice, error) {
	was := includesCharges(from.OrderType, from.ChargesIncluded)
	now := includesCharges(to.OrderType, to.ChargesIncluded)
	if was == now {
		return c.Snapshot(ctx, orderID)
	}

	total, err := IncludedChargesTotal(ctx, c.catalog, models.DineOut, true)
	if err != nil {
		return models.OrderPrice{}, fmt.Errorf("%w: included charges: %w", ErrDeltaFailed, err)
	}
	return c.apply(ctx, "included", orderID, now, sign(now)*total, 0)
}

// Resync overwrites the snapshot with a fully aggregated price and forgets
// the remembered prices of the order, whose deltas it supersedes.
func (c *Cache) Resync(ctx context.Context, price models.OrderPrice) error {
	if err := c.write(ctx, price); err != nil {
		return err
	}
	c.forget(price.OrderID)
	c.logger.Info("price_snapshot_resynced", "Price snapshot rewritten from aggregation", logger.RequestID(ctx), map[string]interface{}{
		"order_id":    price.OrderID,
		"total_price": price.TotalPrice,
	})
	return nil
}

// Drop removes the snapshot and the remembered prices of an order.
func (c *Cache) Drop(ctx context.Context, orderID int) error {
	c.forget(orderID)
	return models.Persistence("delete price", c.prices.DeletePrice(ctx, orderID))
}

func (c *Cache) forget(orderID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.applied {
		if k.orderID == orderID {
			delete(c.applied, k)
		}
	}
	for k := range c.units {
		if k.orderID == orderID {
			delete(c.units, k)
		}
	}
}

func (c *Cache) apply(ctx context.Context, kind string, orderID int, selected bool, baseDelta, discountDelta int64) (models.OrderPrice, error) {
	next, err := c.prices.UpdatePrice(ctx, orderID, func(current models.OrderPrice) (models.OrderPrice, error) {
		next := models.NewOrderPrice(orderID, current.BasePrice+baseDelta, current.DiscountPrice+discountDelta)
		if err := next.Validate(); err != nil {
			c.logger.Error("price_invariant_violated", "Refusing to persist inconsistent price", logger.RequestID(ctx), err, map[string]interface{}{
				"order_id": orderID,
			})
			return models.OrderPrice{}, err
		}
		return next, nil
	})
	if err != nil {
		if errors.Is(err, models.ErrPriceInvariant) {
			c.metrics.PriceDelta(kind, direction(selected), "rejected")
			return models.OrderPrice{}, err
		}
		return models.OrderPrice{}, models.Persistence("update price", err)
	}

	c.metrics.PriceDelta(kind, direction(selected), "ok")
	c.logger.Debug("price_delta_applied", "Applied price delta", logger.RequestID(ctx), map[string]interface{}{
		"order_id":       orderID,
		"kind":           kind,
		"base_delta":     baseDelta,
		"discount_delta": discountDelta,
		"total_price":    next.TotalPrice,
	})
	return next, nil
}

func (c *Cache) write(ctx context.Context, price models.OrderPrice) error {
	if err := price.Validate(); err != nil {
		c.logger.Error("price_invariant_violated", "Refusing to persist inconsistent price", logger.RequestID(ctx), err, map[string]interface{}{
			"order_id": price.OrderID,
		})
		return err
	}
	return models.Persistence("put price", c.prices.PutPrice(ctx, price))
}

// checkSymmetry remembers the price applied on insert and, on removal, returns
// the remembered price so the removal inverts the insert exactly. A differing
// catalog price is reported.
func (c *Cache) checkSymmetry(ctx context.Context, key appliedKey, looked int64, selected bool) int64 {
	if selected {
		c.remember(key, looked)
		return looked
	}

	c.mu.Lock()
	applied, ok := c.applied[key]
	delete(c.applied, key)
	c.mu.Unlock()

	if !ok || applied == looked {
		return looked
	}
	c.reportAsymmetry(ctx, key, applied, looked)
	return applied
}

func (c *Cache) pushUnits(key appliedKey, price int64, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for range n {
		c.units[key] = append(c.units[key], price)
	}
}

// popUnits takes up to n of the most recently added unit prices.
func (c *Cache) popUnits(key appliedKey, n int) []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	units := c.units[key]
	n = min(n, len(units))
	popped := append([]int64(nil), units[len(units)-n:]...)
	if rest := units[:len(units)-n]; len(rest) > 0 {
		c.units[key] = rest
	} else {
		delete(c.units, key)
	}
	return popped
}

func (c *Cache) restoreUnits(key appliedKey, popped []int64) {
	if len(popped) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.units[key] = append(c.units[key], popped...)
}

func (c *Cache) remember(key appliedKey, price int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applied[key] = price
}

func (c *Cache) reportAsymmetry(ctx context.Context, key appliedKey, applied, looked int64) {
	c.metrics.PriceAsymmetry(key.kind)
	c.logger.Warn("price_asymmetry_detected", "Catalog price changed between insert and removal", logger.RequestID(ctx), map[string]interface{}{
		"order_id":      key.orderID,
		"kind":          key.kind,
		"item_id":       key.itemID,
		"applied_price": applied,
		"current_price": looked,
	})
}

func sign(selected bool) int64 {
	if selected {
		return 1
	}
	return -1
}

func direction(selected bool) string {
	if selected {
		return "add"
	}
	return "remove"
}
