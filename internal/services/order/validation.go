package order

import (
	"fmt"
	"strings"
	"unicode"

	"cart-order-system/internal/models"
)

const (
	phoneLength        = 10
	minAddressNameLen  = 2
	minAddressShortLen = 2
	maxSelectionIDs    = 50
)

// ValidateCreateOrUpdate checks a create/update request before any store is
// touched and normalizes it in place.
func ValidateCreateOrUpdate(req *models.CreateOrUpdateOrderRequest) error {
	if req.OrderID < 0 {
		return models.ValidationError{Field: "order_id", Message: "order id must not be negative"}
	}

	orderType, err := models.ParseOrderType(string(req.OrderType))
	if err != nil {
		return err
	}
	req.OrderType = orderType

	if orderType == models.DineOut {
		req.Customer.Phone = strings.TrimSpace(req.Customer.Phone)
		req.Address.Name = strings.TrimSpace(req.Address.Name)
		req.Address.ShortName = strings.TrimSpace(req.Address.ShortName)
		if err := validateCustomer(req.Customer); err != nil {
			return err
		}
		if err := validateAddress(req.Address); err != nil {
			return err
		}
	}

	if err := validateIDs("addon_items", req.AddOnItems); err != nil {
		return err
	}
	return validateIDs("charges", req.Charges)
}

func validateCustomer(c models.CustomerInput) error {
	if c.CustomerID > 0 {
		return nil
	}

	phone := strings.TrimSpace(c.Phone)
	if phone == "" {
		return models.ValidationError{Field: "customer_phone", Message: "customer is required for dine out orders"}
	}
	if len(phone) != phoneLength {
		return models.ValidationError{Field: "customer_phone", Message: fmt.Sprintf("customer phone must be %d digits", phoneLength)}
	}
	for _, r := range phone {
		if !unicode.IsDigit(r) {
			return models.ValidationError{Field: "customer_phone", Message: "customer phone must not contain letters"}
		}
	}
	return nil
}

func validateAddress(a models.AddressInput) error {
	if a.AddressID > 0 {
		return nil
	}

	if strings.TrimSpace(a.Name) == "" {
		return models.ValidationError{Field: "address_name", Message: "address is required for dine out orders"}
	}
	if len(strings.TrimSpace(a.Name)) < minAddressNameLen {
		return models.ValidationError{Field: "address_name", Message: fmt.Sprintf("address name must be at least %d characters", minAddressNameLen)}
	}
	if len(strings.TrimSpace(a.ShortName)) < minAddressShortLen {
		return models.ValidationError{Field: "short_name", Message: fmt.Sprintf("address short name must be at least %d characters", minAddressShortLen)}
	}
	return nil
}

func validateIDs(field string, ids []int) error {
	if len(ids) > maxSelectionIDs {
		return models.ValidationError{Field: field, Message: fmt.Sprintf("a maximum of %d ids is allowed", maxSelectionIDs)}
	}
	for i, id := range ids {
		if id <= 0 {
			return models.ValidationError{Field: fmt.Sprintf("%s[%d]", field, i), Message: "id must be positive"}
		}
	}
	return nil
}

// validateBatch checks the ids of a batch place or delete.
func validateBatch(ids []int) error {
	if len(ids) == 0 {
		return models.ValidationError{Field: "order_ids", Message: "order ids cannot be empty"}
	}
	for i, id := range ids {
		if id <= 0 {
			return models.ValidationError{Field: fmt.Sprintf("order_ids[%d]", i), Message: "id must be positive"}
		}
	}
	return nil
}
