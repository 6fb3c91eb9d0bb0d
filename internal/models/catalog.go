package models

// Product represents a sellable catalog product
type Product struct {
	ProductID int    `json:"product_id" db:"product_id"`
	Name      string `json:"product_name" db:"product_name"`
	Price     int64  `json:"product_price" db:"product_price"`
	Available bool   `json:"product_availability" db:"product_availability"`
}

// AddOnItem represents an optional extra attachable to an order
type AddOnItem struct {
	ItemID     int    `json:"item_id" db:"item_id"`
	Name       string `json:"item_name" db:"item_name"`
	Price      int64  `json:"item_price" db:"item_price"`
	Applicable bool   `json:"is_applicable" db:"is_applicable"`
}

// Charge represents a named fee such as delivery or packaging
type Charge struct {
	ChargeID   int    `json:"charges_id" db:"charges_id"`
	Name       string `json:"charges_name" db:"charges_name"`
	Price      int64  `json:"charges_price" db:"charges_price"`
	Applicable bool   `json:"is_applicable" db:"is_applicable"`
}

// PriceWithApplicable is the price lookup result for add-ons and charges
type PriceWithApplicable struct {
	Price      int64 `json:"price"`
	Applicable bool  `json:"is_applicable"`
}

// Customer represents a dine-out customer
type Customer struct {
	CustomerID int     `json:"customer_id" db:"customer_id"`
	Phone      string  `json:"customer_phone" db:"customer_phone"`
	Name       *string `json:"customer_name,omitempty" db:"customer_name"`
	Email      *string `json:"customer_email,omitempty" db:"customer_email"`
}

// Address represents a dine-out delivery address
type Address struct {
	AddressID int    `json:"address_id" db:"address_id"`
	Name      string `json:"address_name" db:"address_name"`
	ShortName string `json:"short_name" db:"short_name"`
}
