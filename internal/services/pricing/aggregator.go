package pricing

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"cart-order-system/internal/catalog"
	"cart-order-system/internal/logger"
	"cart-order-system/internal/metrics"
	"cart-order-system/internal/models"
	"cart-order-system/internal/store"
)

// lineFanOut bounds the concurrent product lookups of one order.
const lineFanOut = 8

// partial is one of the four independent sums of a price breakdown.
type partial struct {
	base     int64
	discount int64
}

// Aggregator computes a price breakdown from scratch. It is the source of
// truth the incremental Cache is checked against.
type Aggregator struct {
	catalog    catalog.Catalog
	lines      store.CartLineStore
	selections store.SelectionStore
	metrics    *metrics.Metrics
	logger     *logger.Logger
}

func NewAggregator(
	cat catalog.Catalog,
	lines store.CartLineStore,
	selections store.SelectionStore,
	m *metrics.Metrics,
	log *logger.Logger,
) *Aggregator {
	return &Aggregator{
		catalog:    cat,
		lines:      lines,
		selections: selections,
		metrics:    m,
		logger:     log,
	}
}

// Compute evaluates add-ons, selected charges, included charges and product
// lines concurrently and combines them. Any failing part fails the whole call
// with models.ErrAggregationFailed.
func (a *Aggregator) Compute(ctx context.Context, orderID int, orderType models.OrderType, chargesIncluded bool) (models.OrderPrice, error) {
	var parts [4]partial

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := a.addOnTotal(gctx, orderID)
		parts[0] = p
		return err
	})
	g.Go(func() error {
		p, err := a.chargeTotal(gctx, orderID)
		parts[1] = p
		return err
	})
	g.Go(func() error {
		base, err := IncludedChargesTotal(gctx, a.catalog, orderType, chargesIncluded)
		parts[2] = partial{base: base}
		return err
	})
	g.Go(func() error {
		p, err := a.lineTotal(gctx, orderID)
		parts[3] = p
		return err
	})

	if err := g.Wait(); err != nil {
		a.metrics.AggregationFailed()
		a.logger.Error("price_aggregation_failed", "Failed to compute order price", logger.RequestID(ctx), err, map[string]interface{}{
			"order_id": orderID,
		})
		return models.OrderPrice{}, fmt.Errorf("%w: order %d: %w", models.ErrAggregationFailed, orderID, err)
	}

	price := models.NewOrderPrice(orderID, 0, 0)
	for _, p := range parts {
		price = price.Add(models.NewOrderPrice(orderID, p.base, p.discount))
	}
	return price, nil
}

func (a *Aggregator) addOnTotal(ctx context.Context, orderID int) (partial, error) {
	ids, err := a.selections.AddOnIDs(ctx, orderID)
	if err != nil {
		return partial{}, fmt.Errorf("failed to load add-ons: %w", err)
	}

	var p partial
	for _, id := range ids {
		item, err := a.catalog.AddOnPrice(ctx, id)
		if err != nil {
			return partial{}, fmt.Errorf("failed to look up add-on %d: %w", id, err)
		}
		if item.Applicable {
			p.base += item.Price
		} else {
			p.discount += item.Price
		}
	}
	return p, nil
}

func (a *Aggregator) chargeTotal(ctx context.Context, orderID int) (partial, error) {
	ids, err := a.selections.ChargeIDs(ctx, orderID)
	if err != nil {
		return partial{}, fmt.Errorf("failed to load charges: %w", err)
	}

	var p partial
	for _, id := range ids {
		charge, err := a.catalog.ChargePrice(ctx, id)
		if err != nil {
			return partial{}, fmt.Errorf("failed to look up charge %d: %w", id, err)
		}
		p.base += charge.Price
	}
	return p, nil
}

func (a *Aggregator) lineTotal(ctx context.Context, orderID int) (partial, error) {
	lines, err := a.lines.Lines(ctx, orderID)
	if err != nil {
		return partial{}, fmt.Errorf("failed to load cart lines: %w", err)
	}

	subtotals := make([]int64, len(lines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lineFanOut)
	for i, line := range lines {
		g.Go(func() error {
			product, err := a.catalog.Product(gctx, line.ProductID)
			if err != nil {
				return fmt.Errorf("failed to look up product %d: %w", line.ProductID, err)
			}
			subtotals[i] = product.Price * int64(line.Quantity)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return partial{}, err
	}

	var p partial
	for _, s := range subtotals {
		p.base += s
	}
	return p, nil
}

// IncludedChargesTotal sums every globally applicable charge when the order is
// DineOut with charges included, and is 0 otherwise.
func IncludedChargesTotal(ctx context.Context, cat catalog.Catalog, orderType models.OrderType, chargesIncluded bool) (int64, error) {
	if !includesCharges(orderType, chargesIncluded) {
		return 0, nil
	}

	charges, err := cat.ApplicableCharges(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load applicable charges: %w", err)
	}

	var total int64
	for _, c := range charges {
		total += c.Price
	}
	return total, nil
}

func includesCharges(orderType models.OrderType, chargesIncluded bool) bool {
	return chargesIncluded && orderType == models.DineOut
}
