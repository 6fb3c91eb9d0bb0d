package orderview

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cart-order-system/internal/catalog"
	"cart-order-system/internal/models"
	"cart-order-system/internal/store/memory"
)

type fixedSelection int

func (f fixedSelection) Current(context.Context) int { return int(f) }

var epoch = time.Date(2024, 5, 10, 14, 30, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

type fixture struct {
	ctx     context.Context
	store   *memory.Store
	catalog *catalog.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	cat := catalog.NewMemory()
	cat.PutProduct(models.Product{ProductID: 7, Name: "Coffee", Price: 50, Available: true})
	cat.PutCustomer(models.Customer{CustomerID: 1, Phone: "9876543210", Name: strPtr("Asha")})
	cat.PutCustomer(models.Customer{CustomerID: 2, Phone: "9123456789", Email: strPtr("RAVI@example.com")})
	cat.PutAddress(models.Address{AddressID: 1, Name: "Main Street", ShortName: "MS"})

	orders := []models.CartOrder{
		{OrderID: 1, OrderType: models.DineIn, Status: models.StatusProcessing, CreatedAt: epoch},
		{OrderID: 2, OrderType: models.DineOut, Status: models.StatusProcessing, CustomerID: 1, AddressID: 1, CreatedAt: epoch.Add(time.Minute)},
		{OrderID: 3, OrderType: models.DineOut, Status: models.StatusProcessing, CustomerID: 2, AddressID: 1, CreatedAt: epoch.Add(2 * time.Minute)},
		{OrderID: 4, OrderType: models.DineIn, Status: models.StatusPlaced, CreatedAt: epoch.Add(3 * time.Minute)},
	}
	for _, o := range orders {
		require.NoError(t, s.CreateOrder(ctx, o))
		require.NoError(t, s.PutPrice(ctx, models.NewOrderPrice(o.OrderID, 0, 0)))
	}
	return &fixture{ctx: ctx, store: s, catalog: cat}
}

func (f *fixture) builder(selected int) *Builder {
	return NewBuilder(f.store, f.store, f.store, f.store, f.catalog, fixedSelection(selected))
}

func ids(views []models.OrderView) []int {
	out := make([]int, len(views))
	for i, v := range views {
		out[i] = v.Order.OrderID
	}
	return out
}

func TestBuild(t *testing.T) {
	f := newFixture(t)
	f.store.AddLine(f.ctx, 2, 7)
	f.store.AddLine(f.ctx, 2, 7)
	f.store.ToggleAddOn(f.ctx, 2, 5)
	f.store.ToggleCharge(f.ctx, 2, 6)
	require.NoError(t, f.store.PutPrice(f.ctx, models.NewOrderPrice(2, 100, 0)))

	view, err := f.builder(0).Detail(f.ctx, 2)
	require.NoError(t, err)

	assert.Equal(t, []models.CartProductItem{{ProductID: 7, Name: "Coffee", Price: 50, Quantity: 2}}, view.Products)
	assert.Equal(t, []int{5}, view.AddOnItems)
	assert.Equal(t, []int{6}, view.Charges)
	assert.Equal(t, int64(100), view.Price.TotalPrice)
	assert.Equal(t, "9876543210", view.Customer.Phone)
	assert.Equal(t, "MS", view.Address.ShortName)
	assert.Equal(t, 2, view.ItemCount())
}

func TestBuild_DineInSkipsCustomer(t *testing.T) {
	f := newFixture(t)
	f.catalog.PutCustomer(models.Customer{CustomerID: 9, Phone: "1111111111"})
	o, _ := f.store.GetOrder(f.ctx, 1)
	o.CustomerID = 9
	require.NoError(t, f.store.UpdateOrder(f.ctx, o))

	view, err := f.builder(0).Detail(f.ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, view.Customer.Phone)
}

func TestBuild_FailureFailsWholeView(t *testing.T) {
	f := newFixture(t)
	f.store.AddLine(f.ctx, 1, 7)
	f.catalog.SetFailure(errors.New("catalog offline"))

	_, err := f.builder(0).Detail(f.ctx, 1)
	require.Error(t, err)

	_, err = f.builder(0).Detail(f.ctx, 42)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestList_OrderWithoutPriceSnapshot(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.CreateOrder(f.ctx, models.CartOrder{
		OrderID:   5,
		OrderType: models.DineIn,
		Status:    models.StatusProcessing,
		CreatedAt: epoch.Add(4 * time.Minute),
	}))

	views, err := f.builder(0).List(f.ctx, Query{})
	require.NoError(t, err)
	require.Equal(t, []int{5, 3, 2, 1}, ids(views))
	assert.Equal(t, models.NewOrderPrice(5, 0, 0), views[0].Price)
}

func TestList_OrderingAndModes(t *testing.T) {
	f := newFixture(t)

	views, err := f.builder(1).List(f.ctx, Query{})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 2}, ids(views), "selected first, then most recent")
	assert.True(t, views[0].Selected)

	views, err = f.builder(1).List(f.ctx, Query{ViewAll: true})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 3, 2}, ids(views))

	views, err = f.builder(0).List(f.ctx, Query{ViewAll: true, OrderType: models.DineIn})
	require.NoError(t, err)
	assert.Equal(t, []int{4, 1}, ids(views))

	f.store.AddLine(f.ctx, 2, 7)
	views, err = f.builder(0).List(f.ctx, Query{NonEmptyOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, ids(views))
}

func TestList_Search(t *testing.T) {
	f := newFixture(t)
	b := f.builder(0)

	tests := []struct {
		search string
		want   []int
	}{
		{"", []int{3, 2, 1}},
		{"98765", []int{2}},
		{"asha", []int{2}},
		{"ravi@EXAMPLE", []int{3}},
		{"ms", []int{3, 2}},
		{"main st", []int{3, 2}},
		{"dineout", []int{3, 2}},
		{"processing", []int{3, 2, 1}},
		{"10 May 2024 02:31", []int{2}},
		{"zzz", []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.search, func(t *testing.T) {
			views, err := b.List(f.ctx, Query{Search: tt.search})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(views))
		})
	}
}

func TestMatches_UpdatedAt(t *testing.T) {
	updated := epoch.Add(48 * time.Hour)
	v := models.OrderView{Order: models.CartOrder{OrderID: 5, CreatedAt: epoch, UpdatedAt: &updated}}

	assert.True(t, Matches(v, "12 may"))
	assert.False(t, Matches(v, "13 may"))
}
