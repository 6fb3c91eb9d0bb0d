package order

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"testing"

	"github.com/cucumber/godog"

	"cart-order-system/internal/models"
	"cart-order-system/internal/services/orderview"
)

type cartTestContext struct {
	env    *testEnv
	orders map[string]int
	list   []models.OrderView
}

func (c *cartTestContext) reset() {
	c.env = newEnv()
	c.orders = make(map[string]int)
	c.list = nil
}

func (c *cartTestContext) orderID(name string) (int, error) {
	id, ok := c.orders[name]
	if !ok {
		return 0, fmt.Errorf("unknown order %q", name)
	}
	return id, nil
}

func (c *cartTestContext) theCatalogHasProductPriced(productID, price int) error {
	c.env.catalog.PutProduct(models.Product{ProductID: productID, Name: fmt.Sprintf("product-%d", productID), Price: int64(price), Available: true})
	return nil
}

func (c *cartTestContext) theCatalogHasNonApplicableAddOnPriced(itemID, price int) error {
	c.env.catalog.PutAddOn(models.AddOnItem{ItemID: itemID, Name: fmt.Sprintf("addon-%d", itemID), Price: int64(price)})
	return nil
}

func (c *cartTestContext) aNewOrderNamed(orderType, name string) error {
	return c.save(name, &models.CreateOrUpdateOrderRequest{OrderType: models.OrderType(orderType)})
}

func (c *cartTestContext) aNewOrderNamedForPhoneAt(orderType, name, phone, shortName string) error {
	return c.save(name, &models.CreateOrUpdateOrderRequest{
		OrderType: models.OrderType(orderType),
		Customer:  models.CustomerInput{Phone: phone},
		Address:   models.AddressInput{Name: shortName + " Street", ShortName: shortName},
	})
}

func (c *cartTestContext) save(name string, req *models.CreateOrUpdateOrderRequest) error {
	result, err := c.env.service.CreateOrUpdateOrder(c.env.ctx, req)
	if err != nil {
		return err
	}
	c.orders[name] = result.Order.OrderID
	return nil
}

func (c *cartTestContext) iAddProductToOrder(productID int, name string) error {
	id, err := c.orderID(name)
	if err != nil {
		return err
	}
	_, err = c.env.service.AddLine(c.env.ctx, id, productID)
	return err
}

func (c *cartTestContext) iRemoveProductFromOrder(productID int, name string) error {
	id, err := c.orderID(name)
	if err != nil {
		return err
	}
	_, err = c.env.service.RemoveLine(c.env.ctx, id, productID)
	return err
}

func (c *cartTestContext) iToggleAddOnOnOrder(itemID int, name string) error {
	id, err := c.orderID(name)
	if err != nil {
		return err
	}
	_, err = c.env.service.ToggleAddOn(c.env.ctx, id, itemID)
	return err
}

func (c *cartTestContext) theQuantityOfProductInOrderIs(productID int, name string, want int) error {
	id, err := c.orderID(name)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(c.env.ctx)
	defer cancel()
	quantities, err := c.env.service.QuantityOf(ctx, id, productID)
	if err != nil {
		return err
	}
	if got := <-quantities; got != want {
		return fmt.Errorf("expected quantity %d, got %d", want, got)
	}
	return nil
}

func (c *cartTestContext) orderHasNoProductLines(name string) error {
	id, err := c.orderID(name)
	if err != nil {
		return err
	}
	lines, err := c.env.store.Lines(c.env.ctx, id)
	if err != nil {
		return err
	}
	if len(lines) != 0 {
		return fmt.Errorf("expected no lines, got %v", lines)
	}
	return nil
}

func (c *cartTestContext) priceOf(name string) (models.OrderPrice, error) {
	id, err := c.orderID(name)
	if err != nil {
		return models.OrderPrice{}, err
	}
	return c.env.store.GetPrice(c.env.ctx, id)
}

func (c *cartTestContext) orderHasBasePrice(name string, want int) error {
	price, err := c.priceOf(name)
	if err != nil {
		return err
	}
	if price.BasePrice != int64(want) {
		return fmt.Errorf("expected base price %d, got %d", want, price.BasePrice)
	}
	return nil
}

func (c *cartTestContext) orderHasDiscountPrice(name string, want int) error {
	price, err := c.priceOf(name)
	if err != nil {
		return err
	}
	if price.DiscountPrice != int64(want) {
		return fmt.Errorf("expected discount price %d, got %d", want, price.DiscountPrice)
	}
	return nil
}

func (c *cartTestContext) orderHasTotalPrice(name string, want int) error {
	price, err := c.priceOf(name)
	if err != nil {
		return err
	}
	if price.TotalPrice != int64(want) {
		return fmt.Errorf("expected total price %d, got %d", want, price.TotalPrice)
	}
	return nil
}

func (c *cartTestContext) thePriceMatchesAFullRecomputation(name string) error {
	id, err := c.orderID(name)
	if err != nil {
		return err
	}
	report, err := c.env.service.ComputePrice(c.env.ctx, id)
	if err != nil {
		return err
	}
	if !report.Consistent {
		return fmt.Errorf("snapshot %+v differs from computed %+v", report.Snapshot, report.Computed)
	}
	return nil
}

func (c *cartTestContext) orderIsSelected(name string) error {
	id, err := c.orderID(name)
	if err != nil {
		return err
	}
	return c.env.service.SelectOrder(c.env.ctx, id)
}

func (c *cartTestContext) iPlaceOrder(name string) error {
	id, err := c.orderID(name)
	if err != nil {
		return err
	}
	_, err = c.env.service.PlaceOrder(c.env.ctx, id)
	return err
}

func (c *cartTestContext) iDeleteOrder(name string) error {
	id, err := c.orderID(name)
	if err != nil {
		return err
	}
	_, err = c.env.service.DeleteOrder(c.env.ctx, id)
	return err
}

func (c *cartTestContext) theSelectedOrderIs(name string) error {
	id, err := c.orderID(name)
	if err != nil {
		return err
	}
	if got := c.env.service.SelectedOrderID(c.env.ctx); got != id {
		return fmt.Errorf("expected order %d to be selected, got %d", id, got)
	}
	return nil
}

func (c *cartTestContext) noOrderIsSelected() error {
	if got := c.env.service.SelectedOrderID(c.env.ctx); got != models.NoSelection {
		return fmt.Errorf("expected no selection, got %d", got)
	}
	return nil
}

func (c *cartTestContext) iSearchTheOrderListFor(search string) error {
	views, err := c.env.service.ListOrders(c.env.ctx, orderview.Query{Search: search})
	if err != nil {
		return err
	}
	c.list = views
	return nil
}

func (c *cartTestContext) theOrderListContains(names ...string) error {
	want := make([]int, 0, len(names))
	for _, name := range names {
		id, err := c.orderID(name)
		if err != nil {
			return err
		}
		want = append(want, id)
	}

	got := make([]int, 0, len(c.list))
	for _, v := range c.list {
		got = append(got, v.Order.OrderID)
	}
	sort.Ints(want)
	sort.Ints(got)
	if !slices.Equal(want, got) {
		return fmt.Errorf("expected orders %v, got %v", want, got)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &cartTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^the catalog has product (\d+) priced (\d+)$`, tc.theCatalogHasProductPriced)
	ctx.Step(`^the catalog has add-on (\d+) priced (\d+) that is not applicable$`, tc.theCatalogHasNonApplicableAddOnPriced)
	ctx.Step(`^a new "([^"]*)" order named "([^"]*)"$`, tc.aNewOrderNamed)
	ctx.Step(`^a new "([^"]*)" order named "([^"]*)" for phone "([^"]*)" at "([^"]*)"$`, tc.aNewOrderNamedForPhoneAt)
	ctx.Step(`^order "([^"]*)" is selected$`, tc.orderIsSelected)

	// When steps
	ctx.Step(`^I add product (\d+) to order "([^"]*)"$`, tc.iAddProductToOrder)
	ctx.Step(`^I remove product (\d+) from order "([^"]*)"$`, tc.iRemoveProductFromOrder)
	ctx.Step(`^I toggle add-on (\d+) on order "([^"]*)"$`, tc.iToggleAddOnOnOrder)
	ctx.Step(`^I place order "([^"]*)"$`, tc.iPlaceOrder)
	ctx.Step(`^I delete order "([^"]*)"$`, tc.iDeleteOrder)
	ctx.Step(`^I search the order list for "([^"]*)"$`, tc.iSearchTheOrderListFor)

	// Then steps
	ctx.Step(`^the quantity of product (\d+) in order "([^"]*)" is (\d+)$`, tc.theQuantityOfProductInOrderIs)
	ctx.Step(`^order "([^"]*)" has no product lines$`, tc.orderHasNoProductLines)
	ctx.Step(`^order "([^"]*)" has base price (\d+)$`, tc.orderHasBasePrice)
	ctx.Step(`^order "([^"]*)" has discount price (\d+)$`, tc.orderHasDiscountPrice)
	ctx.Step(`^order "([^"]*)" has total price (\d+)$`, tc.orderHasTotalPrice)
	ctx.Step(`^the price of order "([^"]*)" matches a full recomputation$`, tc.thePriceMatchesAFullRecomputation)
	ctx.Step(`^the selected order is "([^"]*)"$`, tc.theSelectedOrderIs)
	ctx.Step(`^no order is selected$`, tc.noOrderIsSelected)
	ctx.Step(`^the order list contains only "([^"]*)"$`, func(name string) error { return tc.theOrderListContains(name) })
	ctx.Step(`^the order list contains "([^"]*)" and "([^"]*)"$`, func(a, b string) error { return tc.theOrderListContains(a, b) })
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/cart_order.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
