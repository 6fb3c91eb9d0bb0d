package models

import (
	"fmt"
	"strings"
	"time"
)

// OrderType represents the type of a cart order
type OrderType string

const (
	DineIn  OrderType = "DineIn"
	DineOut OrderType = "DineOut"
)

// OrderStatus represents the lifecycle status of a cart order
type OrderStatus string

const (
	StatusProcessing OrderStatus = "PROCESSING"
	StatusPlaced     OrderStatus = "PLACED"
)

// NoSelection is the selected order id reported when nothing is selected
const NoSelection = 0

// CartOrder represents an order in the cart
type CartOrder struct {
	OrderID         int         `json:"order_id" db:"order_id"`
	OrderType       OrderType   `json:"order_type" db:"order_type"`
	Status          OrderStatus `json:"order_status" db:"order_status"`
	ChargesIncluded bool        `json:"charges_included" db:"charges_included"`
	CustomerID      int         `json:"customer_id,omitempty" db:"customer_id"`
	AddressID       int         `json:"address_id,omitempty" db:"address_id"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt       *time.Time  `json:"updated_at,omitempty" db:"updated_at"`
}

// IsProcessing reports whether the order can still be edited and selected
func (o CartOrder) IsProcessing() bool {
	return o.Status == StatusProcessing
}

// CartLine is a product with its quantity inside one order
type CartLine struct {
	OrderID   int `json:"order_id" db:"order_id"`
	ProductID int `json:"product_id" db:"product_id"`
	Quantity  int `json:"quantity" db:"quantity"`
}

// OrderPrice is the persisted price snapshot of an order.
// TotalPrice always equals BasePrice - DiscountPrice.
type OrderPrice struct {
	OrderID       int   `json:"order_id" db:"order_id"`
	BasePrice     int64 `json:"base_price" db:"base_price"`
	DiscountPrice int64 `json:"discount_price" db:"discount_price"`
	TotalPrice    int64 `json:"total_price" db:"total_price"`
}

// NewOrderPrice builds a snapshot with a consistent total
func NewOrderPrice(orderID int, base, discount int64) OrderPrice {
	return OrderPrice{
		OrderID:       orderID,
		BasePrice:     base,
		DiscountPrice: discount,
		TotalPrice:    base - discount,
	}
}

// Validate checks the snapshot invariants
func (p OrderPrice) Validate() error {
	if p.BasePrice < 0 || p.DiscountPrice < 0 {
		return fmt.Errorf("%w: order %d has base %d and discount %d",
			ErrPriceInvariant, p.OrderID, p.BasePrice, p.DiscountPrice)
	}
	if p.TotalPrice != p.BasePrice-p.DiscountPrice {
		return fmt.Errorf("%w: order %d total %d != %d - %d",
			ErrPriceInvariant, p.OrderID, p.TotalPrice, p.BasePrice, p.DiscountPrice)
	}
	return nil
}

// Add returns the sum of two price breakdowns for the same order
func (p OrderPrice) Add(other OrderPrice) OrderPrice {
	return NewOrderPrice(p.OrderID, p.BasePrice+other.BasePrice, p.DiscountPrice+other.DiscountPrice)
}

// CustomerInput identifies an existing customer or describes a new one
type CustomerInput struct {
	CustomerID int     `json:"customer_id,omitempty"`
	Phone      string  `json:"customer_phone,omitempty"`
	Name       *string `json:"customer_name,omitempty"`
	Email      *string `json:"customer_email,omitempty"`
}

// AddressInput identifies an existing address or describes a new one
type AddressInput struct {
	AddressID int    `json:"address_id,omitempty"`
	Name      string `json:"address_name,omitempty"`
	ShortName string `json:"short_name,omitempty"`
}

// CreateOrUpdateOrderRequest creates a new order when OrderID is 0,
// otherwise it updates the existing order
type CreateOrUpdateOrderRequest struct {
	OrderID         int           `json:"order_id"`
	OrderType       OrderType     `json:"order_type"`
	ChargesIncluded bool          `json:"charges_included"`
	Customer        CustomerInput `json:"customer"`
	Address         AddressInput  `json:"address"`
	AddOnItems      []int         `json:"addon_items"`
	Charges         []int         `json:"charges"`
}

// BatchRequest carries the ids of a batch place or delete
type BatchRequest struct {
	OrderIDs []int `json:"order_ids"`
}

// ParseOrderType parses an order type name case-insensitively
func ParseOrderType(s string) (OrderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dinein", "dine_in":
		return DineIn, nil
	case "dineout", "dine_out":
		return DineOut, nil
	default:
		return "", ValidationError{Field: "order_type", Message: "order type must be one of: DineIn, DineOut"}
	}
}
