// Package memory is an in-process implementation of the store contracts.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cart-order-system/internal/models"
)

type lineKey struct {
	orderID   int
	productID int
}

// Store keeps every entity in maps guarded by one mutex. The selection lock
// is separate because its holders call back into the store.
type Store struct {
	sync.Mutex
	selection sync.Mutex
	orders   map[int]models.CartOrder
	lines    map[lineKey]int
	addOns   map[int]map[int]struct{}
	charges  map[int]map[int]struct{}
	prices   map[int]models.OrderPrice
	selected int
	lastID   int
}

func New() *Store {
	return &Store{
		orders:  make(map[int]models.CartOrder),
		lines:   make(map[lineKey]int),
		addOns:  make(map[int]map[int]struct{}),
		charges: make(map[int]map[int]struct{}),
		prices:  make(map[int]models.OrderPrice),
	}
}

func (s *Store) AddLine(_ context.Context, orderID, productID int) (int, error) {
	s.Lock()
	defer s.Unlock()
	k := lineKey{orderID, productID}
	s.lines[k]++
	return s.lines[k], nil
}

func (s *Store) RemoveLine(_ context.Context, orderID, productID int) (int, error) {
	s.Lock()
	defer s.Unlock()
	k := lineKey{orderID, productID}
	qty, ok := s.lines[k]
	if !ok {
		return 0, models.NotFoundf("line %d/%d", orderID, productID)
	}
	if qty <= 1 {
		delete(s.lines, k)
		return 0, nil
	}
	s.lines[k] = qty - 1
	return qty - 1, nil
}

func (s *Store) DeleteLine(_ context.Context, orderID, productID int) (int, error) {
	s.Lock()
	defer s.Unlock()
	k := lineKey{orderID, productID}
	qty := s.lines[k]
	delete(s.lines, k)
	return qty, nil
}

func (s *Store) Quantity(_ context.Context, orderID, productID int) (int, error) {
	s.Lock()
	defer s.Unlock()
	return s.lines[lineKey{orderID, productID}], nil
}

func (s *Store) Lines(_ context.Context, orderID int) ([]models.CartLine, error) {
	s.Lock()
	defer s.Unlock()
	var lines []models.CartLine
	for k, qty := range s.lines {
		if k.orderID == orderID {
			lines = append(lines, models.CartLine{OrderID: orderID, ProductID: k.productID, Quantity: qty})
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines, nil
}

func toggle(sets map[int]map[int]struct{}, orderID, id int) bool {
	set, ok := sets[orderID]
	if !ok {
		set = make(map[int]struct{})
		sets[orderID] = set
	}
	if _, ok := set[id]; ok {
		delete(set, id)
		return false
	}
	set[id] = struct{}{}
	return true
}

func members(set map[int]struct{}) []int {
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (s *Store) ToggleAddOn(_ context.Context, orderID, itemID int) (bool, error) {
	s.Lock()
	defer s.Unlock()
	return toggle(s.addOns, orderID, itemID), nil
}

func (s *Store) ToggleCharge(_ context.Context, orderID, chargeID int) (bool, error) {
	s.Lock()
	defer s.Unlock()
	return toggle(s.charges, orderID, chargeID), nil
}

func (s *Store) AddOnIDs(_ context.Context, orderID int) ([]int, error) {
	s.Lock()
	defer s.Unlock()
	return members(s.addOns[orderID]), nil
}

func (s *Store) ChargeIDs(_ context.Context, orderID int) ([]int, error) {
	s.Lock()
	defer s.Unlock()
	return members(s.charges[orderID]), nil
}

func (s *Store) GetPrice(_ context.Context, orderID int) (models.OrderPrice, error) {
	s.Lock()
	defer s.Unlock()
	p, ok := s.prices[orderID]
	if !ok {
		return models.OrderPrice{}, models.NotFoundf("price snapshot for order %d", orderID)
	}
	return p, nil
}

func (s *Store) PutPrice(_ context.Context, price models.OrderPrice) error {
	if err := price.Validate(); err != nil {
		return err
	}
	s.Lock()
	defer s.Unlock()
	s.prices[price.OrderID] = price
	return nil
}

func (s *Store) UpdatePrice(_ context.Context, orderID int, fn func(models.OrderPrice) (models.OrderPrice, error)) (models.OrderPrice, error) {
	s.Lock()
	defer s.Unlock()
	current, ok := s.prices[orderID]
	if !ok {
		return models.OrderPrice{}, models.NotFoundf("price snapshot for order %d", orderID)
	}
	next, err := fn(current)
	if err != nil {
		return models.OrderPrice{}, err
	}
	if err := next.Validate(); err != nil {
		return models.OrderPrice{}, err
	}
	s.prices[orderID] = next
	return next, nil
}

func (s *Store) DeletePrice(_ context.Context, orderID int) error {
	s.Lock()
	defer s.Unlock()
	delete(s.prices, orderID)
	return nil
}

func (s *Store) CreateOrder(_ context.Context, order models.CartOrder) error {
	s.Lock()
	defer s.Unlock()
	if _, ok := s.orders[order.OrderID]; ok {
		return models.ValidationError{Field: "order_id", Message: "order already exists"}
	}
	s.orders[order.OrderID] = order
	if order.OrderID > s.lastID {
		s.lastID = order.OrderID
	}
	return nil
}

func (s *Store) UpdateOrder(_ context.Context, order models.CartOrder) error {
	s.Lock()
	defer s.Unlock()
	if _, ok := s.orders[order.OrderID]; !ok {
		return models.NotFoundf("order %d", order.OrderID)
	}
	s.orders[order.OrderID] = order
	return nil
}

func (s *Store) GetOrder(_ context.Context, orderID int) (models.CartOrder, error) {
	s.Lock()
	defer s.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return models.CartOrder{}, models.NotFoundf("order %d", orderID)
	}
	return o, nil
}

func (s *Store) ListOrders(_ context.Context, processingOnly bool) ([]models.CartOrder, error) {
	s.Lock()
	defer s.Unlock()
	orders := make([]models.CartOrder, 0, len(s.orders))
	for _, o := range s.orders {
		if processingOnly && !o.IsProcessing() {
			continue
		}
		orders = append(orders, o)
	}
	sortRecentFirst(orders)
	return orders, nil
}

func (s *Store) SetStatus(_ context.Context, orderID int, status models.OrderStatus, at time.Time) error {
	s.Lock()
	defer s.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return models.NotFoundf("order %d", orderID)
	}
	o.Status = status
	o.UpdatedAt = &at
	s.orders[orderID] = o
	return nil
}

func (s *Store) DeleteOrder(_ context.Context, orderID int) error {
	s.Lock()
	defer s.Unlock()
	if _, ok := s.orders[orderID]; !ok {
		return models.NotFoundf("order %d", orderID)
	}
	delete(s.orders, orderID)
	delete(s.addOns, orderID)
	delete(s.charges, orderID)
	delete(s.prices, orderID)
	for k := range s.lines {
		if k.orderID == orderID {
			delete(s.lines, k)
		}
	}
	return nil
}

func (s *Store) LatestProcessingID(_ context.Context) (int, error) {
	s.Lock()
	defer s.Unlock()
	var latest *models.CartOrder
	for _, o := range s.orders {
		if !o.IsProcessing() {
			continue
		}
		if latest == nil || recentFirst(o, *latest) {
			latest = &o
		}
	}
	if latest == nil {
		return models.NoSelection, nil
	}
	return latest.OrderID, nil
}

func (s *Store) SelectedID(_ context.Context) (int, error) {
	s.Lock()
	defer s.Unlock()
	return s.selected, nil
}

func (s *Store) SetSelectedID(_ context.Context, id int) error {
	s.Lock()
	defer s.Unlock()
	if id != models.NoSelection && !s.orders[id].IsProcessing() {
		return fmt.Errorf("%w: order %d", models.ErrStaleSelection, id)
	}
	s.selected = id
	return nil
}

func (s *Store) WithSelectionLock(ctx context.Context, fn func(ctx context.Context) error) error {
	s.selection.Lock()
	defer s.selection.Unlock()
	return fn(ctx)
}

func (s *Store) NextOrderID(_ context.Context) (int, error) {
	s.Lock()
	defer s.Unlock()
	s.lastID++
	return s.lastID, nil
}

func recentFirst(a, b models.CartOrder) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.OrderID > b.OrderID
}

func sortRecentFirst(orders []models.CartOrder) {
	sort.Slice(orders, func(i, j int) bool { return recentFirst(orders[i], orders[j]) })
}
