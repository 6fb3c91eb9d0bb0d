package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"cart-order-system/internal/catalog"
	"cart-order-system/internal/models"
)

// Catalog reads products, add-ons and charges from PostgreSQL and resolves
// dine-out customers and addresses.
type Catalog struct {
	db *DB
}

var _ catalog.Catalog = (*Catalog)(nil)

func NewCatalog(db *DB) *Catalog {
	return &Catalog{db: db}
}

func (c *Catalog) Product(ctx context.Context, productID int) (models.Product, error) {
	var p models.Product
	err := c.db.QueryRow(ctx, GetProductSQL, productID).Scan(&p.ProductID, &p.Name, &p.Price, &p.Available)
	if err != nil {
		return models.Product{}, lookupErr(err, "product %d", productID)
	}
	return p, nil
}

func (c *Catalog) AddOnPrice(ctx context.Context, itemID int) (models.PriceWithApplicable, error) {
	var p models.PriceWithApplicable
	if err := c.db.QueryRow(ctx, GetAddOnPriceSQL, itemID).Scan(&p.Price, &p.Applicable); err != nil {
		return models.PriceWithApplicable{}, lookupErr(err, "add-on %d", itemID)
	}
	return p, nil
}

func (c *Catalog) ChargePrice(ctx context.Context, chargeID int) (models.PriceWithApplicable, error) {
	var p models.PriceWithApplicable
	if err := c.db.QueryRow(ctx, GetChargePriceSQL, chargeID).Scan(&p.Price, &p.Applicable); err != nil {
		return models.PriceWithApplicable{}, lookupErr(err, "charge %d", chargeID)
	}
	return p, nil
}

func (c *Catalog) ApplicableCharges(ctx context.Context) ([]models.Charge, error) {
	rows, err := c.db.Query(ctx, GetApplicableChargesSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to get applicable charges: %w", err)
	}
	charges, err := pgx.CollectRows(rows, pgx.RowToStructByPos[models.Charge])
	if err != nil {
		return nil, fmt.Errorf("failed to scan charges: %w", err)
	}
	return charges, nil
}

func (c *Catalog) Customer(ctx context.Context, customerID int) (models.Customer, error) {
	var cu models.Customer
	err := c.db.QueryRow(ctx, GetCustomerSQL, customerID).Scan(&cu.CustomerID, &cu.Phone, &cu.Name, &cu.Email)
	if err != nil {
		return models.Customer{}, lookupErr(err, "customer %d", customerID)
	}
	return cu, nil
}

func (c *Catalog) Address(ctx context.Context, addressID int) (models.Address, error) {
	var a models.Address
	if err := c.db.QueryRow(ctx, GetAddressSQL, addressID).Scan(&a.AddressID, &a.Name, &a.ShortName); err != nil {
		return models.Address{}, lookupErr(err, "address %d", addressID)
	}
	return a, nil
}

// FindOrCreateCustomer keeps the stored name and email of a known phone.
func (c *Catalog) FindOrCreateCustomer(ctx context.Context, in models.CustomerInput) (models.Customer, error) {
	var cu models.Customer
	err := c.db.QueryRow(ctx, UpsertCustomerSQL, in.Phone, in.Name, in.Email).
		Scan(&cu.CustomerID, &cu.Phone, &cu.Name, &cu.Email)
	if err != nil {
		return models.Customer{}, fmt.Errorf("failed to resolve customer: %w", err)
	}
	return cu, nil
}

// FindOrCreateAddress matches short names case-insensitively.
func (c *Catalog) FindOrCreateAddress(ctx context.Context, in models.AddressInput) (models.Address, error) {
	var a models.Address
	err := c.db.QueryRow(ctx, UpsertAddressSQL, in.Name, in.ShortName).Scan(&a.AddressID, &a.Name, &a.ShortName)
	if err != nil {
		return models.Address{}, fmt.Errorf("failed to resolve address: %w", err)
	}
	return a, nil
}

func lookupErr(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return models.NotFoundf(format, args...)
	}
	return fmt.Errorf("failed to get %s: %w", fmt.Sprintf(format, args...), err)
}
