package models

// CartProductItem is a cart line enriched with product details
type CartProductItem struct {
	ProductID int    `json:"product_id"`
	Name      string `json:"product_name"`
	Price     int64  `json:"product_price"`
	Quantity  int    `json:"product_quantity"`
}

// OrderView is the enriched order representation used by list and detail views
type OrderView struct {
	Order      CartOrder         `json:"cart_order"`
	Customer   Customer          `json:"customer"`
	Address    Address           `json:"address"`
	Products   []CartProductItem `json:"cart_products"`
	AddOnItems []int             `json:"addon_items"`
	Charges    []int             `json:"charges"`
	Price      OrderPrice        `json:"order_price"`
	Selected   bool              `json:"selected"`
}

// ItemCount returns the total quantity of products in the view
func (v OrderView) ItemCount() int {
	n := 0
	for _, p := range v.Products {
		n += p.Quantity
	}
	return n
}
