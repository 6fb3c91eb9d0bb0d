package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cart-order-system/internal/models"
)

func TestMemory_Lookups(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.PutProduct(models.Product{ProductID: 1, Name: "Tea", Price: 50, Available: true})
	m.PutAddOn(models.AddOnItem{ItemID: 2, Price: 10})
	m.PutCharge(models.Charge{ChargeID: 3, Price: 20, Applicable: true})
	m.PutCharge(models.Charge{ChargeID: 4, Price: 30, Applicable: false})

	p, err := m.Product(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(50), p.Price)

	a, err := m.AddOnPrice(ctx, 2)
	require.NoError(t, err)
	assert.False(t, a.Applicable)

	charges, err := m.ApplicableCharges(ctx)
	require.NoError(t, err)
	require.Len(t, charges, 1)
	assert.Equal(t, 3, charges[0].ChargeID)

	_, err = m.ChargePrice(ctx, 99)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemory_Failure(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.PutProduct(models.Product{ProductID: 1, Price: 50})
	boom := errors.New("catalog offline")

	m.SetFailure(boom)
	_, err := m.Product(ctx, 1)
	assert.ErrorIs(t, err, boom)

	m.SetFailure(nil)
	_, err = m.Product(ctx, 1)
	assert.NoError(t, err)
}

func TestMemory_FindOrCreate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	c1, err := m.FindOrCreateCustomer(ctx, models.CustomerInput{Phone: "9876543210"})
	require.NoError(t, err)
	c2, err := m.FindOrCreateCustomer(ctx, models.CustomerInput{Phone: "9876543210"})
	require.NoError(t, err)
	assert.Equal(t, c1.CustomerID, c2.CustomerID)

	a1, _ := m.FindOrCreateAddress(ctx, models.AddressInput{Name: "Main Street", ShortName: "MS"})
	a2, _ := m.FindOrCreateAddress(ctx, models.AddressInput{Name: "Main Street", ShortName: "ms"})
	a3, _ := m.FindOrCreateAddress(ctx, models.AddressInput{Name: "Park Road", ShortName: "PR"})
	assert.Equal(t, a1.AddressID, a2.AddressID)
	assert.NotEqual(t, a1.AddressID, a3.AddressID)
}
