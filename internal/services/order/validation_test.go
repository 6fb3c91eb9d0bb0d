package order

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"cart-order-system/internal/models"
)

func TestValidateCreateOrUpdate(t *testing.T) {
	tests := []struct {
		name    string
		req     models.CreateOrUpdateOrderRequest
		wantErr string
	}{
		{
			name: "valid dine in",
			req:  models.CreateOrUpdateOrderRequest{OrderType: "dine_in"},
		},
		{
			name: "valid dine out with new customer and address",
			req: models.CreateOrUpdateOrderRequest{
				OrderType: models.DineOut,
				Customer:  models.CustomerInput{Phone: "9876543210"},
				Address:   models.AddressInput{Name: "Main Street", ShortName: "MS"},
				Charges:   []int{1, 2},
			},
		},
		{
			name: "valid dine out with existing ids",
			req: models.CreateOrUpdateOrderRequest{
				OrderType: "DineOut",
				Customer:  models.CustomerInput{CustomerID: 3},
				Address:   models.AddressInput{AddressID: 4},
			},
		},
		{
			name:    "invalid order type",
			req:     models.CreateOrUpdateOrderRequest{OrderType: "takeaway"},
			wantErr: "order_type",
		},
		{
			name:    "negative order id",
			req:     models.CreateOrUpdateOrderRequest{OrderID: -1, OrderType: models.DineIn},
			wantErr: "order_id",
		},
		{
			name: "dine out missing customer",
			req: models.CreateOrUpdateOrderRequest{
				OrderType: models.DineOut,
				Address:   models.AddressInput{AddressID: 4},
			},
			wantErr: "customer is required",
		},
		{
			name: "phone with letters",
			req: models.CreateOrUpdateOrderRequest{
				OrderType: models.DineOut,
				Customer:  models.CustomerInput{Phone: "98765abcde"},
				Address:   models.AddressInput{AddressID: 4},
			},
			wantErr: "letters",
		},
		{
			name: "short phone",
			req: models.CreateOrUpdateOrderRequest{
				OrderType: models.DineOut,
				Customer:  models.CustomerInput{Phone: "12345"},
				Address:   models.AddressInput{AddressID: 4},
			},
			wantErr: "10 digits",
		},
		{
			name: "dine out missing address",
			req: models.CreateOrUpdateOrderRequest{
				OrderType: models.DineOut,
				Customer:  models.CustomerInput{CustomerID: 3},
			},
			wantErr: "address is required",
		},
		{
			name: "short address short name",
			req: models.CreateOrUpdateOrderRequest{
				OrderType: models.DineOut,
				Customer:  models.CustomerInput{CustomerID: 3},
				Address:   models.AddressInput{Name: "Main Street", ShortName: "M"},
			},
			wantErr: "short_name",
		},
		{
			name:    "non positive add-on id",
			req:     models.CreateOrUpdateOrderRequest{OrderType: models.DineIn, AddOnItems: []int{1, 0}},
			wantErr: "addon_items[1]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCreateOrUpdate(&tt.req)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, models.ErrValidationFailed)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidateCreateOrUpdate_NormalizesType(t *testing.T) {
	req := models.CreateOrUpdateOrderRequest{OrderType: "dineout", Customer: models.CustomerInput{CustomerID: 1}, Address: models.AddressInput{AddressID: 1}}
	assert.NoError(t, ValidateCreateOrUpdate(&req))
	assert.Equal(t, models.DineOut, req.OrderType)
}

func TestValidateCreateOrUpdate_TrimsNewParty(t *testing.T) {
	req := models.CreateOrUpdateOrderRequest{
		OrderType: models.DineOut,
		Customer:  models.CustomerInput{Phone: "  9876543210 "},
		Address:   models.AddressInput{Name: " Main Street ", ShortName: "\tMS "},
	}
	assert.NoError(t, ValidateCreateOrUpdate(&req))
	assert.Equal(t, "9876543210", req.Customer.Phone)
	assert.Equal(t, "Main Street", req.Address.Name)
	assert.Equal(t, "MS", req.Address.ShortName)
}

func TestValidateBatch(t *testing.T) {
	assert.ErrorIs(t, validateBatch(nil), models.ErrValidationFailed)
	assert.ErrorIs(t, validateBatch([]int{1, -2}), models.ErrValidationFailed)
	assert.NoError(t, validateBatch([]int{1, 2}))
}
