// Package store defines the persistence contracts of the cart order core.
// Implementations live in store/memory and internal/database.
package store

import (
	"context"
	"time"

	"cart-order-system/internal/models"
)

// CartLineStore keeps product quantities per order.
// It has no side effects beyond the lines themselves.
type CartLineStore interface {
	// AddLine increments the quantity, creating the line with quantity 1.
	AddLine(ctx context.Context, orderID, productID int) (int, error)
	// RemoveLine decrements the quantity and deletes the line when it reaches 0.
	// It returns models.ErrNotFound when the line does not exist.
	RemoveLine(ctx context.Context, orderID, productID int) (int, error)
	// DeleteLine removes the line and returns the quantity it had (0 if absent).
	DeleteLine(ctx context.Context, orderID, productID int) (int, error)
	Quantity(ctx context.Context, orderID, productID int) (int, error)
	Lines(ctx context.Context, orderID int) ([]models.CartLine, error)
}

// SelectionStore keeps add-on and charge membership per order.
type SelectionStore interface {
	ToggleAddOn(ctx context.Context, orderID, itemID int) (bool, error)
	ToggleCharge(ctx context.Context, orderID, chargeID int) (bool, error)
	AddOnIDs(ctx context.Context, orderID int) ([]int, error)
	ChargeIDs(ctx context.Context, orderID int) ([]int, error)
}

// PriceStore keeps the price snapshot of each order.
type PriceStore interface {
	// GetPrice returns models.ErrNotFound when no snapshot exists.
	GetPrice(ctx context.Context, orderID int) (models.OrderPrice, error)
	PutPrice(ctx context.Context, price models.OrderPrice) error
	// UpdatePrice replaces the snapshot with fn's result while holding it
	// against concurrent writers. It returns models.ErrNotFound when no
	// snapshot exists and stores nothing when fn fails.
	UpdatePrice(ctx context.Context, orderID int, fn func(models.OrderPrice) (models.OrderPrice, error)) (models.OrderPrice, error)
	DeletePrice(ctx context.Context, orderID int) error
}

// OrderStore keeps cart orders. DeleteOrder cascades to the order's lines,
// selections and price snapshot.
type OrderStore interface {
	CreateOrder(ctx context.Context, order models.CartOrder) error
	UpdateOrder(ctx context.Context, order models.CartOrder) error
	GetOrder(ctx context.Context, orderID int) (models.CartOrder, error)
	// ListOrders returns orders ordered by created_at desc, order_id desc.
	ListOrders(ctx context.Context, processingOnly bool) ([]models.CartOrder, error)
	SetStatus(ctx context.Context, orderID int, status models.OrderStatus, at time.Time) error
	DeleteOrder(ctx context.Context, orderID int) error
	// LatestProcessingID returns the most recently created processing order,
	// or models.NoSelection when there is none.
	LatestProcessingID(ctx context.Context) (int, error)
}

// SelectedStore persists the selected order id shared by every process.
type SelectedStore interface {
	SelectedID(ctx context.Context) (int, error)
	// SetSelectedID stores id; models.NoSelection clears the selection.
	// It returns models.ErrStaleSelection when id is not a processing order.
	SetSelectedID(ctx context.Context, id int) error
	// WithSelectionLock runs fn while no other holder, in this process or
	// another one sharing the store, can run a selection read-modify-write.
	WithSelectionLock(ctx context.Context, fn func(ctx context.Context) error) error
}

// IDGenerator hands out monotonically increasing order ids.
type IDGenerator interface {
	NextOrderID(ctx context.Context) (int, error)
}

// Store is the full set of persistence contracts.
type Store interface {
	CartLineStore
	SelectionStore
	PriceStore
	OrderStore
	SelectedStore
	IDGenerator
}
