package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"

	"cart-order-system/internal/models"
)

// Memory is an in-process catalog used by tests and the demo seed.
type Memory struct {
	sync.RWMutex
	products  map[int]models.Product
	addOns    map[int]models.AddOnItem
	charges   map[int]models.Charge
	customers map[int]models.Customer
	addresses map[int]models.Address
	failure   error
}

func NewMemory() *Memory {
	return &Memory{
		products:  make(map[int]models.Product),
		addOns:    make(map[int]models.AddOnItem),
		charges:   make(map[int]models.Charge),
		customers: make(map[int]models.Customer),
		addresses: make(map[int]models.Address),
	}
}

func (m *Memory) PutProduct(p models.Product) {
	m.Lock()
	defer m.Unlock()
	m.products[p.ProductID] = p
}

func (m *Memory) PutAddOn(a models.AddOnItem) {
	m.Lock()
	defer m.Unlock()
	m.addOns[a.ItemID] = a
}

func (m *Memory) PutCharge(c models.Charge) {
	m.Lock()
	defer m.Unlock()
	m.charges[c.ChargeID] = c
}

func (m *Memory) PutCustomer(c models.Customer) {
	m.Lock()
	defer m.Unlock()
	m.customers[c.CustomerID] = c
}

func (m *Memory) PutAddress(a models.Address) {
	m.Lock()
	defer m.Unlock()
	m.addresses[a.AddressID] = a
}

// SetFailure makes every lookup return err until it is reset with nil.
func (m *Memory) SetFailure(err error) {
	m.Lock()
	defer m.Unlock()
	m.failure = err
}

func (m *Memory) Product(_ context.Context, productID int) (models.Product, error) {
	m.RLock()
	defer m.RUnlock()
	if m.failure != nil {
		return models.Product{}, m.failure
	}
	p, ok := m.products[productID]
	if !ok {
		return models.Product{}, models.NotFoundf("product %d", productID)
	}
	return p, nil
}

func (m *Memory) AddOnPrice(_ context.Context, itemID int) (models.PriceWithApplicable, error) {
	m.RLock()
	defer m.RUnlock()
	if m.failure != nil {
		return models.PriceWithApplicable{}, m.failure
	}
	a, ok := m.addOns[itemID]
	if !ok {
		return models.PriceWithApplicable{}, models.NotFoundf("add-on item %d", itemID)
	}
	return models.PriceWithApplicable{Price: a.Price, Applicable: a.Applicable}, nil
}

func (m *Memory) ChargePrice(_ context.Context, chargeID int) (models.PriceWithApplicable, error) {
	m.RLock()
	defer m.RUnlock()
	if m.failure != nil {
		return models.PriceWithApplicable{}, m.failure
	}
	c, ok := m.charges[chargeID]
	if !ok {
		return models.PriceWithApplicable{}, models.NotFoundf("charge %d", chargeID)
	}
	return models.PriceWithApplicable{Price: c.Price, Applicable: c.Applicable}, nil
}

func (m *Memory) ApplicableCharges(_ context.Context) ([]models.Charge, error) {
	m.RLock()
	defer m.RUnlock()
	if m.failure != nil {
		return nil, m.failure
	}
	var charges []models.Charge
	for _, c := range m.charges {
		if c.Applicable {
			charges = append(charges, c)
		}
	}
	sort.Slice(charges, func(i, j int) bool { return charges[i].ChargeID < charges[j].ChargeID })
	return charges, nil
}

func (m *Memory) Customer(_ context.Context, customerID int) (models.Customer, error) {
	m.RLock()
	defer m.RUnlock()
	if m.failure != nil {
		return models.Customer{}, m.failure
	}
	c, ok := m.customers[customerID]
	if !ok {
		return models.Customer{}, models.NotFoundf("customer %d", customerID)
	}
	return c, nil
}

func (m *Memory) Address(_ context.Context, addressID int) (models.Address, error) {
	m.RLock()
	defer m.RUnlock()
	if m.failure != nil {
		return models.Address{}, m.failure
	}
	a, ok := m.addresses[addressID]
	if !ok {
		return models.Address{}, models.NotFoundf("address %d", addressID)
	}
	return a, nil
}

func (m *Memory) FindOrCreateCustomer(_ context.Context, in models.CustomerInput) (models.Customer, error) {
	m.Lock()
	defer m.Unlock()
	if m.failure != nil {
		return models.Customer{}, m.failure
	}
	next := 0
	for id, c := range m.customers {
		if c.Phone == in.Phone {
			return c, nil
		}
		next = max(next, id)
	}
	c := models.Customer{CustomerID: next + 1, Phone: in.Phone, Name: in.Name, Email: in.Email}
	m.customers[c.CustomerID] = c
	return c, nil
}

func (m *Memory) FindOrCreateAddress(_ context.Context, in models.AddressInput) (models.Address, error) {
	m.Lock()
	defer m.Unlock()
	if m.failure != nil {
		return models.Address{}, m.failure
	}
	next := 0
	for id, a := range m.addresses {
		if strings.EqualFold(a.ShortName, in.ShortName) {
			return a, nil
		}
		next = max(next, id)
	}
	a := models.Address{AddressID: next + 1, Name: in.Name, ShortName: in.ShortName}
	m.addresses[a.AddressID] = a
	return a, nil
}
