// Package catalog is the read side of products, add-ons, charges, customers
// and addresses consumed by the cart core.
package catalog

import (
	"context"

	"cart-order-system/internal/models"
)

// Catalog answers lookups by id. Missing entities yield models.ErrNotFound.
type Catalog interface {
	Product(ctx context.Context, productID int) (models.Product, error)
	AddOnPrice(ctx context.Context, itemID int) (models.PriceWithApplicable, error)
	ChargePrice(ctx context.Context, chargeID int) (models.PriceWithApplicable, error)
	// ApplicableCharges lists every globally applicable charge.
	ApplicableCharges(ctx context.Context) ([]models.Charge, error)
	Customer(ctx context.Context, customerID int) (models.Customer, error)
	Address(ctx context.Context, addressID int) (models.Address, error)
	// FindOrCreateCustomer returns the customer with the same phone, creating it if needed.
	FindOrCreateCustomer(ctx context.Context, in models.CustomerInput) (models.Customer, error)
	// FindOrCreateAddress returns the address with the same short name, creating it if needed.
	FindOrCreateAddress(ctx context.Context, in models.AddressInput) (models.Address, error)
}
