package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"cart-order-system/internal/models"
	"cart-order-system/internal/store"
)

// Store persists carts, orders, price snapshots and the selected order in
// PostgreSQL.
type Store struct {
	db *DB
}

var _ store.Store = (*Store)(nil)

func NewStore(db *DB) *Store {
	return &Store{db: db}
}

func (s *Store) AddLine(ctx context.Context, orderID, productID int) (int, error) {
	var qty int
	if err := s.db.QueryRow(ctx, AddLineSQL, orderID, productID).Scan(&qty); err != nil {
		return 0, fmt.Errorf("failed to add line: %w", err)
	}
	return qty, nil
}

func (s *Store) RemoveLine(ctx context.Context, orderID, productID int) (int, error) {
	var qty int
	err := s.db.InTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, LockLineSQL, orderID, productID).Scan(&qty); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.NotFoundf("product %d in order %d", productID, orderID)
			}
			return err
		}

		if qty <= 1 {
			qty = 0
			_, err := tx.Exec(ctx, DeleteLineSQL, orderID, productID)
			return err
		}
		return tx.QueryRow(ctx, DecrementLineSQL, orderID, productID).Scan(&qty)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to remove line: %w", err)
	}
	return qty, nil
}

func (s *Store) DeleteLine(ctx context.Context, orderID, productID int) (int, error) {
	var qty int
	err := s.db.QueryRow(ctx, DeleteLineSQL, orderID, productID).Scan(&qty)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("failed to delete line: %w", err)
	}
	return qty, nil
}

func (s *Store) Quantity(ctx context.Context, orderID, productID int) (int, error) {
	var qty int
	err := s.db.QueryRow(ctx, GetQuantitySQL, orderID, productID).Scan(&qty)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("failed to get quantity: %w", err)
	}
	return qty, nil
}

func (s *Store) Lines(ctx context.Context, orderID int) ([]models.CartLine, error) {
	rows, err := s.db.Query(ctx, GetLinesSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get lines: %w", err)
	}
	lines, err := pgx.CollectRows(rows, pgx.RowToStructByPos[models.CartLine])
	if err != nil {
		return nil, fmt.Errorf("failed to scan lines: %w", err)
	}
	return lines, nil
}

func (s *Store) ToggleAddOn(ctx context.Context, orderID, itemID int) (bool, error) {
	return s.toggle(ctx, DeleteAddOnSQL, InsertAddOnSQL, orderID, itemID)
}

func (s *Store) ToggleCharge(ctx context.Context, orderID, chargeID int) (bool, error) {
	return s.toggle(ctx, DeleteChargeSQL, InsertChargeSQL, orderID, chargeID)
}

// toggle removes the membership row if present and inserts it otherwise.
func (s *Store) toggle(ctx context.Context, deleteSQL, insertSQL string, orderID, id int) (bool, error) {
	var selected bool
	err := s.db.InTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, deleteSQL, orderID, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() > 0 {
			return nil
		}
		selected = true
		_, err = tx.Exec(ctx, insertSQL, orderID, id)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to toggle %d on order %d: %w", id, orderID, err)
	}
	return selected, nil
}

func (s *Store) AddOnIDs(ctx context.Context, orderID int) ([]int, error) {
	return s.ids(ctx, GetAddOnIDsSQL, orderID)
}

func (s *Store) ChargeIDs(ctx context.Context, orderID int) ([]int, error) {
	return s.ids(ctx, GetChargeIDsSQL, orderID)
}

func (s *Store) ids(ctx context.Context, sql string, orderID int) ([]int, error) {
	rows, err := s.db.Query(ctx, sql, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return nil, fmt.Errorf("failed to scan ids: %w", err)
	}
	return ids, nil
}

func (s *Store) GetPrice(ctx context.Context, orderID int) (models.OrderPrice, error) {
	var p models.OrderPrice
	err := s.db.QueryRow(ctx, GetPriceSQL, orderID).Scan(&p.OrderID, &p.BasePrice, &p.DiscountPrice, &p.TotalPrice)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return models.OrderPrice{}, models.NotFoundf("price snapshot for order %d", orderID)
	case err != nil:
		return models.OrderPrice{}, fmt.Errorf("failed to get price: %w", err)
	}
	return p, nil
}

func (s *Store) PutPrice(ctx context.Context, price models.OrderPrice) error {
	if err := price.Validate(); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, PutPriceSQL, price.OrderID, price.BasePrice, price.DiscountPrice, price.TotalPrice)
	if hasCode(err, checkViolation) {
		return fmt.Errorf("%w: %w", models.ErrPriceInvariant, err)
	}
	if err != nil {
		return fmt.Errorf("failed to put price: %w", err)
	}
	return nil
}

// UpdatePrice locks the snapshot row for the duration of fn so concurrent
// writers from any process apply their deltas one after another.
func (s *Store) UpdatePrice(ctx context.Context, orderID int, fn func(models.OrderPrice) (models.OrderPrice, error)) (models.OrderPrice, error) {
	var next models.OrderPrice
	err := s.db.InTx(ctx, func(tx pgx.Tx) error {
		var current models.OrderPrice
		err := tx.QueryRow(ctx, LockPriceSQL, orderID).
			Scan(&current.OrderID, &current.BasePrice, &current.DiscountPrice, &current.TotalPrice)
		if errors.Is(err, pgx.ErrNoRows) {
			return models.NotFoundf("price snapshot for order %d", orderID)
		}
		if err != nil {
			return err
		}

		if next, err = fn(current); err != nil {
			return err
		}
		if err := next.Validate(); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, UpdatePriceSQL, orderID, next.BasePrice, next.DiscountPrice, next.TotalPrice)
		return err
	})
	switch {
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrPriceInvariant):
		return models.OrderPrice{}, err
	case hasCode(err, checkViolation):
		return models.OrderPrice{}, fmt.Errorf("%w: %w", models.ErrPriceInvariant, err)
	case err != nil:
		return models.OrderPrice{}, fmt.Errorf("failed to update price: %w", err)
	}
	return next, nil
}

func (s *Store) DeletePrice(ctx context.Context, orderID int) error {
	if _, err := s.db.Exec(ctx, DeletePriceSQL, orderID); err != nil {
		return fmt.Errorf("failed to delete price: %w", err)
	}
	return nil
}

func (s *Store) CreateOrder(ctx context.Context, o models.CartOrder) error {
	_, err := s.db.Exec(ctx, InsertOrderSQL,
		o.OrderID, string(o.OrderType), string(o.Status), o.ChargesIncluded, o.CustomerID, o.AddressID, o.CreatedAt)
	if hasCode(err, uniqueViolation) {
		return models.ValidationError{Field: "order_id", Message: "order already exists"}
	}
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (s *Store) UpdateOrder(ctx context.Context, o models.CartOrder) error {
	n, err := s.db.Exec(ctx, UpdateOrderSQL,
		o.OrderID, string(o.OrderType), string(o.Status), o.ChargesIncluded, o.CustomerID, o.AddressID, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	if n == 0 {
		return models.NotFoundf("order %d", o.OrderID)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, orderID int) (models.CartOrder, error) {
	o, err := scanOrder(s.db.QueryRow(ctx, GetOrderSQL, orderID))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return models.CartOrder{}, models.NotFoundf("order %d", orderID)
	case err != nil:
		return models.CartOrder{}, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}

func (s *Store) ListOrders(ctx context.Context, processingOnly bool) ([]models.CartOrder, error) {
	rows, err := s.db.Query(ctx, ListOrdersSQL, processingOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.CartOrder, error) {
		return scanOrder(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan orders: %w", err)
	}
	return orders, nil
}

func (s *Store) SetStatus(ctx context.Context, orderID int, status models.OrderStatus, at time.Time) error {
	n, err := s.db.Exec(ctx, SetOrderStatusSQL, orderID, string(status), at)
	if err != nil {
		return fmt.Errorf("failed to set order status: %w", err)
	}
	if n == 0 {
		return models.NotFoundf("order %d", orderID)
	}
	return nil
}

// DeleteOrder removes the order; lines, memberships and the price snapshot
// go with it through ON DELETE CASCADE.
func (s *Store) DeleteOrder(ctx context.Context, orderID int) error {
	n, err := s.db.Exec(ctx, DeleteOrderSQL, orderID)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	if n == 0 {
		return models.NotFoundf("order %d", orderID)
	}
	return nil
}

func (s *Store) LatestProcessingID(ctx context.Context) (int, error) {
	var id int
	err := s.db.QueryRow(ctx, LatestProcessingSQL).Scan(&id)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return models.NoSelection, nil
	case err != nil:
		return 0, fmt.Errorf("failed to get latest processing order: %w", err)
	}
	return id, nil
}

func (s *Store) SelectedID(ctx context.Context) (int, error) {
	var id int
	err := s.db.QueryRow(ctx, GetSelectedSQL).Scan(&id)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return models.NoSelection, nil
	case err != nil:
		return 0, fmt.Errorf("failed to get selected order: %w", err)
	}
	return id, nil
}

func (s *Store) SetSelectedID(ctx context.Context, id int) error {
	var stored int
	err := s.db.QueryRow(ctx, SetSelectedSQL, id).Scan(&stored, nil)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("%w: order %d", models.ErrStaleSelection, id)
	case err != nil:
		return fmt.Errorf("failed to set selected order: %w", err)
	}
	return nil
}

// WithSelectionLock holds a transaction-scoped advisory lock while fn runs,
// which serializes selection changes across every process sharing the
// database. fn's own statements use other pool connections.
func (s *Store) WithSelectionLock(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.db.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, SelectionLockSQL, selectionLockID); err != nil {
			return fmt.Errorf("failed to take selection lock: %w", err)
		}
		return fn(ctx)
	})
}

func (s *Store) NextOrderID(ctx context.Context) (int, error) {
	var id int64
	if err := s.db.QueryRow(ctx, NextOrderIDSQL).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to get next order id: %w", err)
	}
	return int(id), nil
}

func scanOrder(row pgx.Row) (models.CartOrder, error) {
	var (
		o         models.CartOrder
		orderType string
		status    string
	)
	err := row.Scan(&o.OrderID, &orderType, &status, &o.ChargesIncluded,
		&o.CustomerID, &o.AddressID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return models.CartOrder{}, err
	}
	o.OrderType = models.OrderType(orderType)
	o.Status = models.OrderStatus(status)
	return o, nil
}
