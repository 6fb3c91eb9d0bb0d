package order

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cart-order-system/internal/catalog"
	"cart-order-system/internal/logger"
	"cart-order-system/internal/metrics"
	"cart-order-system/internal/models"
	"cart-order-system/internal/services/pricing"
	"cart-order-system/internal/store/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.OrderEvent
	err    error
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, event *models.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, *event)
	return nil
}

func (p *recordingPublisher) published() []models.OrderEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.OrderEvent(nil), p.events...)
}

type testEnv struct {
	ctx     context.Context
	store   *memory.Store
	catalog *catalog.Memory
	events  *recordingPublisher
	metrics *metrics.Metrics
	service *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newEnv()
}

func newEnv() *testEnv {
	cat := catalog.NewMemory()
	cat.PutProduct(models.Product{ProductID: 7, Name: "Coffee", Price: 50, Available: true})
	cat.PutProduct(models.Product{ProductID: 8, Name: "Bagel", Price: 35, Available: true})
	cat.PutAddOn(models.AddOnItem{ItemID: 3, Name: "Napkins", Price: 10, Applicable: false})
	cat.PutAddOn(models.AddOnItem{ItemID: 4, Name: "Cutlery", Price: 15, Applicable: true})
	cat.PutCharge(models.Charge{ChargeID: 1, Name: "Delivery", Price: 40, Applicable: true})
	cat.PutCharge(models.Charge{ChargeID: 2, Name: "Packaging", Price: 5, Applicable: true})
	cat.PutCharge(models.Charge{ChargeID: 9, Name: "Service", Price: 25, Applicable: false})

	st := memory.New()
	events := &recordingPublisher{}
	m := metrics.New(prometheus.NewRegistry())
	return &testEnv{
		ctx:     context.Background(),
		store:   st,
		catalog: cat,
		events:  events,
		metrics: m,
		service: Assemble(st, cat, events, nil, m, logger.Discard()),
	}
}

func (e *testEnv) create(t *testing.T, req models.CreateOrUpdateOrderRequest) OrderResult {
	t.Helper()
	result, err := e.service.CreateOrUpdateOrder(e.ctx, &req)
	require.NoError(t, err)
	return result
}

func (e *testEnv) assertConsistent(t *testing.T, orderID int) models.OrderPrice {
	t.Helper()
	report, err := e.service.ComputePrice(e.ctx, orderID)
	require.NoError(t, err)
	assert.True(t, report.Consistent, "snapshot %+v, computed %+v", report.Snapshot, report.Computed)
	return report.Snapshot
}

func dineOut(included bool, addOns, charges []int) models.CreateOrUpdateOrderRequest {
	return models.CreateOrUpdateOrderRequest{
		OrderType:       models.DineOut,
		ChargesIncluded: included,
		Customer:        models.CustomerInput{Phone: "9876543210"},
		Address:         models.AddressInput{Name: "Main Street", ShortName: "MS"},
		AddOnItems:      addOns,
		Charges:         charges,
	}
}

func TestCreateOrUpdateOrder_DineIn(t *testing.T) {
	e := newTestEnv(t)

	result := e.create(t, models.CreateOrUpdateOrderRequest{OrderType: models.DineIn})

	assert.True(t, result.Created)
	assert.Equal(t, 1, result.Order.OrderID)
	assert.Equal(t, models.StatusProcessing, result.Order.Status)
	assert.Zero(t, result.Order.CustomerID)
	assert.Equal(t, models.NewOrderPrice(1, 0, 0), result.Price)
	assert.Equal(t, 1, e.service.SelectedOrderID(e.ctx))
}

func TestCreateOrUpdateOrder_DineOut(t *testing.T) {
	e := newTestEnv(t)

	result := e.create(t, dineOut(true, []int{3}, []int{9}))

	assert.Equal(t, 1, result.Order.CustomerID)
	assert.Equal(t, 1, result.Order.AddressID)
	// included charges 40+5, selected charge 25, non-applicable add-on as discount
	assert.Equal(t, models.NewOrderPrice(1, 70, 10), result.Price)
	assert.Equal(t, result.Price, e.assertConsistent(t, 1))

	view, err := e.service.OrderDetail(e.ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "9876543210", view.Customer.Phone)
	assert.Equal(t, "MS", view.Address.ShortName)
	assert.True(t, view.Selected)
}

func TestCreateOrUpdateOrder_ReusesCustomer(t *testing.T) {
	e := newTestEnv(t)

	first := e.create(t, dineOut(false, nil, nil))
	second := e.create(t, dineOut(false, nil, nil))

	assert.Equal(t, first.Order.CustomerID, second.Order.CustomerID)
	assert.Equal(t, first.Order.AddressID, second.Order.AddressID)
	assert.NotEqual(t, first.Order.OrderID, second.Order.OrderID)
}

func TestCreateOrUpdateOrder_PaddedPhoneMatchesCustomer(t *testing.T) {
	e := newTestEnv(t)
	first := e.create(t, dineOut(false, nil, nil))

	padded := dineOut(false, nil, nil)
	padded.Customer.Phone = " " + padded.Customer.Phone + "  "
	second := e.create(t, padded)
	assert.Equal(t, first.Order.CustomerID, second.Order.CustomerID)

	customer, err := e.catalog.Customer(e.ctx, second.Order.CustomerID)
	require.NoError(t, err)
	assert.Equal(t, "9876543210", customer.Phone)
}

func TestCreateOrUpdateOrder_Update(t *testing.T) {
	e := newTestEnv(t)
	created := e.create(t, dineOut(false, []int{3, 4}, []int{9}))
	require.Equal(t, models.NewOrderPrice(1, 40, 10), created.Price)

	req := dineOut(true, []int{4}, nil)
	req.OrderID = created.Order.OrderID
	updated := e.create(t, req)

	assert.False(t, updated.Created)
	assert.True(t, updated.Order.ChargesIncluded)
	assert.NotNil(t, updated.Order.UpdatedAt)
	assert.Equal(t, models.NewOrderPrice(1, 60, 0), updated.Price)
	e.assertConsistent(t, 1)

	addOns, err := e.store.AddOnIDs(e.ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{4}, addOns)
}

func TestCreateOrUpdateOrder_UpdateToDineInDropsParty(t *testing.T) {
	e := newTestEnv(t)
	created := e.create(t, dineOut(true, nil, nil))

	updated := e.create(t, models.CreateOrUpdateOrderRequest{OrderID: created.Order.OrderID, OrderType: models.DineIn, ChargesIncluded: true})

	assert.Zero(t, updated.Order.CustomerID)
	assert.Zero(t, updated.Order.AddressID)
	assert.Equal(t, models.NewOrderPrice(1, 0, 0), updated.Price)
	e.assertConsistent(t, 1)
}

func TestCreateOrUpdateOrder_Errors(t *testing.T) {
	e := newTestEnv(t)
	placed := e.create(t, models.CreateOrUpdateOrderRequest{OrderType: models.DineIn})
	_, err := e.service.PlaceOrder(e.ctx, placed.Order.OrderID)
	require.NoError(t, err)

	tests := []struct {
		name string
		req  models.CreateOrUpdateOrderRequest
		want error
	}{
		{"invalid type", models.CreateOrUpdateOrderRequest{OrderType: "Takeaway"}, models.ErrValidationFailed},
		{"unknown order", models.CreateOrUpdateOrderRequest{OrderID: 42, OrderType: models.DineIn}, models.ErrNotFound},
		{"placed order", models.CreateOrUpdateOrderRequest{OrderID: placed.Order.OrderID, OrderType: models.DineIn}, models.ErrValidationFailed},
		{"unknown customer", models.CreateOrUpdateOrderRequest{
			OrderType: models.DineOut,
			Customer:  models.CustomerInput{CustomerID: 99},
			Address:   models.AddressInput{AddressID: 1},
		}, models.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.service.CreateOrUpdateOrder(e.ctx, &tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreateOrUpdateOrder_DeltaFailureKeepsOrder(t *testing.T) {
	e := newTestEnv(t)
	e.catalog.SetFailure(errors.New("catalog offline"))

	req := models.CreateOrUpdateOrderRequest{OrderType: models.DineIn, AddOnItems: []int{3}}
	result, err := e.service.CreateOrUpdateOrder(e.ctx, &req)

	require.Error(t, err)
	assert.ErrorIs(t, err, pricing.ErrDeltaFailed)
	assert.Equal(t, 1, result.Order.OrderID)

	addOns, err := e.store.AddOnIDs(e.ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, addOns, "membership is kept")
}

func TestPlaceOrder_ReselectsMostRecent(t *testing.T) {
	e := newTestEnv(t)
	e.create(t, models.CreateOrUpdateOrderRequest{OrderType: models.DineIn})
	e.create(t, models.CreateOrUpdateOrderRequest{OrderType: models.DineIn})
	require.Equal(t, 2, e.service.SelectedOrderID(e.ctx))

	selected, err := e.service.PlaceOrder(e.ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, selected)

	order, err := e.store.GetOrder(e.ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPlaced, order.Status)
	assert.NotNil(t, order.UpdatedAt)

	events := e.events.published()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventOrderPlaced, events[0].Type)
	assert.Equal(t, 2, events[0].OrderID)

	_, err = e.service.PlaceOrder(e.ctx, 2)
	assert.ErrorIs(t, err, models.ErrValidationFailed)
	assert.Len(t, e.events.published(), 1)
}

func TestDeleteOrder_ClearsSelection(t *testing.T) {
	e := newTestEnv(t)
	e.create(t, models.CreateOrUpdateOrderRequest{OrderType: models.DineIn, AddOnItems: []int{3}})
	_, err := e.service.AddLine(e.ctx, 1, 7)
	require.NoError(t, err)

	selected, err := e.service.DeleteOrder(e.ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.NoSelection, selected)

	_, err = e.store.GetPrice(e.ctx, 1)
	assert.ErrorIs(t, err, models.ErrNotFound)
	lines, err := e.store.Lines(e.ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, lines)

	events := e.events.published()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventOrderDeleted, events[0].Type)

	_, err = e.service.DeleteOrder(e.ctx, 1)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestBatch_ReportsEveryFailure(t *testing.T) {
	e := newTestEnv(t)
	e.create(t, models.CreateOrUpdateOrderRequest{OrderType: models.DineIn})
	e.create(t, models.CreateOrUpdateOrderRequest{OrderType: models.DineIn})

	succeeded, err := e.service.PlaceOrders(e.ctx, []int{1, 99, 2})
	assert.Equal(t, []int{1, 2}, succeeded)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorContains(t, err, "order 99")

	succeeded, err = e.service.DeleteOrders(e.ctx, []int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, succeeded)

	_, err = e.service.DeleteOrders(e.ctx, nil)
	assert.ErrorIs(t, err, models.ErrValidationFailed)
}

func TestPublishFailureDoesNotFailPlacement(t *testing.T) {
	e := newTestEnv(t)
	e.events.err = errors.New("broker down")
	e.create(t, models.CreateOrUpdateOrderRequest{OrderType: models.DineIn})

	_, err := e.service.PlaceOrder(e.ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.EventsPublished.WithLabelValues(string(models.EventOrderPlaced), "failed")))
}

func TestSelectOrder(t *testing.T) {
	e := newTestEnv(t)
	e.create(t, models.CreateOrUpdateOrderRequest{OrderType: models.DineIn})
	e.create(t, models.CreateOrUpdateOrderRequest{OrderType: models.DineIn})

	require.NoError(t, e.service.SelectOrder(e.ctx, 1))
	assert.Equal(t, 1, e.service.SelectedOrderID(e.ctx))

	_, err := e.service.PlaceOrder(e.ctx, 2)
	require.NoError(t, err)
	assert.ErrorIs(t, e.service.SelectOrder(e.ctx, 2), models.ErrValidationFailed)
	assert.ErrorIs(t, e.service.SelectOrder(e.ctx, 42), models.ErrNotFound)
	assert.Equal(t, 1, e.service.SelectedOrderID(e.ctx))
}

func TestLineAndToggleMutationsMatchAggregation(t *testing.T) {
	e := newTestEnv(t)
	e.create(t, dineOut(true, nil, nil))

	steps := []func() error{
		func() error { _, err := e.service.AddLine(e.ctx, 1, 7); return err },
		func() error { _, err := e.service.AddLine(e.ctx, 1, 8); return err },
		func() error { _, err := e.service.AddLine(e.ctx, 1, 7); return err },
		func() error { _, err := e.service.ToggleAddOn(e.ctx, 1, 3); return err },
		func() error { _, err := e.service.ToggleCharge(e.ctx, 1, 9); return err },
		func() error { _, err := e.service.RemoveLine(e.ctx, 1, 7); return err },
		func() error { _, err := e.service.DeleteLine(e.ctx, 1, 8); return err },
		func() error { _, err := e.service.ToggleAddOn(e.ctx, 1, 3); return err },
	}
	for i, step := range steps {
		require.NoError(t, step(), "step %d", i)
		e.assertConsistent(t, 1)
	}

	price := e.assertConsistent(t, 1)
	assert.Equal(t, models.NewOrderPrice(1, 45+50+25, 0), price)
}

func TestComputePriceRepairsDrift(t *testing.T) {
	e := newTestEnv(t)
	e.create(t, dineOut(false, nil, nil))
	_, err := e.service.AddLine(e.ctx, 1, 7)
	require.NoError(t, err)

	e.catalog.PutProduct(models.Product{ProductID: 7, Name: "Coffee", Price: 80, Available: true})
	report, err := e.service.ComputePrice(e.ctx, 1)
	require.NoError(t, err)
	assert.False(t, report.Consistent)
	assert.True(t, report.Repaired)
	assert.Equal(t, int64(50), report.Snapshot.BasePrice)
	assert.Equal(t, int64(80), report.Computed.BasePrice)

	stored, err := e.store.GetPrice(e.ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, report.Computed, stored)

	result, err := e.service.DeleteLine(e.ctx, 1, 7)
	require.NoError(t, err)
	assert.Equal(t, models.NewOrderPrice(1, 0, 0), result.Price)
	report, err = e.service.ComputePrice(e.ctx, 1)
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.False(t, report.Repaired)
}

func TestRemovingLineAfterPriceChangeKeepsSnapshotValid(t *testing.T) {
	e := newTestEnv(t)
	e.create(t, dineOut(false, nil, nil))
	_, err := e.service.AddLine(e.ctx, 1, 7)
	require.NoError(t, err)

	e.catalog.PutProduct(models.Product{ProductID: 7, Name: "Coffee", Price: 80, Available: true})
	result, err := e.service.RemoveLine(e.ctx, 1, 7)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Quantity)
	assert.Equal(t, models.NewOrderPrice(1, 0, 0), result.Price)
	e.assertConsistent(t, 1)
}

func TestHealthCheck(t *testing.T) {
	e := newTestEnv(t)
	assert.NoError(t, e.service.HealthCheck(e.ctx))

	failing := Assemble(e.store, e.catalog, nil, pingFunc(func(context.Context) error { return errors.New("down") }), nil, logger.Discard())
	assert.Error(t, failing.HealthCheck(e.ctx))
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }
