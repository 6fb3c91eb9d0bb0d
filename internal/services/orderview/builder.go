// Package orderview assembles enriched order views for list and detail screens.
package orderview

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"cart-order-system/internal/catalog"
	"cart-order-system/internal/models"
	"cart-order-system/internal/store"
)

// SearchTimeLayout is the timestamp format matched by free-text search.
const SearchTimeLayout = "02 Jan 2006 03:04 PM"

const (
	listFanOut = 16
	lineFanOut = 8
)

// Query selects and filters the order list.
type Query struct {
	Search       string           `json:"search"`
	ViewAll      bool             `json:"view_all"`
	OrderType    models.OrderType `json:"order_type,omitempty"`
	NonEmptyOnly bool             `json:"non_empty_only"`
}

// SelectionReader returns the reconciled selected order id.
type SelectionReader interface {
	Current(ctx context.Context) int
}

// Builder joins stores and catalog lookups into models.OrderView.
type Builder struct {
	orders     store.OrderStore
	lines      store.CartLineStore
	selections store.SelectionStore
	prices     store.PriceStore
	catalog    catalog.Catalog
	selected   SelectionReader
}

func NewBuilder(
	orders store.OrderStore,
	lines store.CartLineStore,
	selections store.SelectionStore,
	prices store.PriceStore,
	cat catalog.Catalog,
	selected SelectionReader,
) *Builder {
	return &Builder{
		orders:     orders,
		lines:      lines,
		selections: selections,
		prices:     prices,
		catalog:    cat,
		selected:   selected,
	}
}

// Build fetches every part of one order view concurrently and joins them.
func (b *Builder) Build(ctx context.Context, order models.CartOrder) (models.OrderView, error) {
	view := models.OrderView{Order: order}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		products, err := b.products(gctx, order.OrderID)
		view.Products = products
		return err
	})
	g.Go(func() error {
		ids, err := b.selections.AddOnIDs(gctx, order.OrderID)
		view.AddOnItems = ids
		return err
	})
	g.Go(func() error {
		ids, err := b.selections.ChargeIDs(gctx, order.OrderID)
		view.Charges = ids
		return err
	})
	g.Go(func() error {
		// a snapshot not written yet shows as an empty price
		price, err := b.prices.GetPrice(gctx, order.OrderID)
		if errors.Is(err, models.ErrNotFound) {
			view.Price = models.NewOrderPrice(order.OrderID, 0, 0)
			return nil
		}
		view.Price = price
		return err
	})
	if order.OrderType != models.DineIn {
		if order.CustomerID != 0 {
			g.Go(func() error {
				customer, err := b.catalog.Customer(gctx, order.CustomerID)
				view.Customer = customer
				return err
			})
		}
		if order.AddressID != 0 {
			g.Go(func() error {
				address, err := b.catalog.Address(gctx, order.AddressID)
				view.Address = address
				return err
			})
		}
	}

	if err := g.Wait(); err != nil {
		return models.OrderView{}, fmt.Errorf("failed to build view of order %d: %w", order.OrderID, err)
	}
	return view, nil
}

func (b *Builder) products(ctx context.Context, orderID int) ([]models.CartProductItem, error) {
	lines, err := b.lines.Lines(ctx, orderID)
	if err != nil {
		return nil, err
	}

	items := make([]models.CartProductItem, len(lines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lineFanOut)
	for i, line := range lines {
		g.Go(func() error {
			product, err := b.catalog.Product(gctx, line.ProductID)
			if err != nil {
				return err
			}
			items[i] = models.CartProductItem{
				ProductID: product.ProductID,
				Name:      product.Name,
				Price:     product.Price,
				Quantity:  line.Quantity,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

// Detail builds the view of one order.
func (b *Builder) Detail(ctx context.Context, orderID int) (models.OrderView, error) {
	order, err := b.orders.GetOrder(ctx, orderID)
	if err != nil {
		return models.OrderView{}, models.Persistence("get order", err)
	}

	view, err := b.Build(ctx, order)
	if err != nil {
		return models.OrderView{}, err
	}
	view.Selected = b.selected.Current(ctx) == orderID
	return view, nil
}

// List builds the views matching q. The selected order comes first, the rest
// most recent first.
func (b *Builder) List(ctx context.Context, q Query) ([]models.OrderView, error) {
	selected := b.selected.Current(ctx)

	orders, err := b.orders.ListOrders(ctx, !q.ViewAll)
	if err != nil {
		return nil, models.Persistence("list orders", err)
	}
	if q.OrderType != "" {
		orders = filterType(orders, q.OrderType)
	}

	views := make([]models.OrderView, len(orders))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listFanOut)
	for i, order := range orders {
		g.Go(func() error {
			view, err := b.Build(gctx, order)
			if err != nil {
				return err
			}
			view.Selected = order.OrderID == selected
			views[i] = view
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make([]models.OrderView, 0, len(views))
	for _, v := range views {
		if q.NonEmptyOnly && len(v.Products) == 0 {
			continue
		}
		if Matches(v, q.Search) {
			result = append(result, v)
		}
	}
	sortViews(result)
	return result, nil
}

// Matches reports whether search is a case-insensitive substring of any
// searchable field of v. An empty search matches everything.
func Matches(v models.OrderView, search string) bool {
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return true
	}

	fields := []string{
		strconv.Itoa(v.Order.OrderID),
		string(v.Order.Status),
		string(v.Order.OrderType),
		v.Customer.Phone,
		v.Address.Name,
		v.Address.ShortName,
		v.Order.CreatedAt.Format(SearchTimeLayout),
	}
	if v.Customer.Name != nil {
		fields = append(fields, *v.Customer.Name)
	}
	if v.Customer.Email != nil {
		fields = append(fields, *v.Customer.Email)
	}
	if v.Order.UpdatedAt != nil {
		fields = append(fields, v.Order.UpdatedAt.Format(SearchTimeLayout))
	}

	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), search) {
			return true
		}
	}
	return false
}

func filterType(orders []models.CartOrder, orderType models.OrderType) []models.CartOrder {
	filtered := orders[:0]
	for _, o := range orders {
		if o.OrderType == orderType {
			filtered = append(filtered, o)
		}
	}
	return filtered
}

func sortViews(views []models.OrderView) {
	sort.SliceStable(views, func(i, j int) bool {
		a, b := views[i], views[j]
		if a.Selected != b.Selected {
			return a.Selected
		}
		if !a.Order.CreatedAt.Equal(b.Order.CreatedAt) {
			return a.Order.CreatedAt.After(b.Order.CreatedAt)
		}
		return a.Order.OrderID > b.Order.OrderID
	})
}
