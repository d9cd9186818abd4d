package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProduct_BaseUnitsNeeded(t *testing.T) {
	tablets := &Product{ID: "p1", UnitsPerBasePackage: 10, AllowUnitSale: true}
	syrup := &Product{ID: "p2", UnitsPerBasePackage: 1}

	tests := []struct {
		name    string
		p       *Product
		qty     int
		g       Granularity
		want    int
		wantErr error
	}{
		{name: "packages map one to one", p: tablets, qty: 3, g: GranularityPackage, want: 3},
		{name: "units round up", p: tablets, qty: 12, g: GranularityUnit, want: 2},
		{name: "exact multiple", p: tablets, qty: 20, g: GranularityUnit, want: 2},
		{name: "single unit holds a package", p: tablets, qty: 1, g: GranularityUnit, want: 1},
		{name: "unit sale not allowed", p: syrup, qty: 1, g: GranularityUnit, wantErr: ErrUnitSaleNotAllowed},
		{name: "unknown granularity", p: syrup, qty: 1, g: "box", wantErr: ErrInvalidGranularity},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.p.BaseUnitsNeeded(tc.qty, tc.g)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestProduct_Price(t *testing.T) {
	p := &Product{PriceCents: 1005, UnitsPerBasePackage: 10, AllowUnitSale: true}
	assert.Equal(t, int64(1005), p.Price(GranularityPackage))
	assert.Equal(t, int64(101), p.Price(GranularityUnit))

	p.UnitPriceCents = 120
	assert.Equal(t, int64(120), p.Price(GranularityUnit))
}

func TestProduct_CheckQuantity(t *testing.T) {
	p := &Product{ID: "p1", MinOrderQty: 2, MaxOrderQty: 5}

	assert.NoError(t, p.CheckQuantity(2))
	assert.NoError(t, p.CheckQuantity(5))

	err := p.CheckQuantity(6)
	assert.ErrorIs(t, err, ErrQuantityOutOfRange)
	var qe *QuantityError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, 6, qe.Requested)
	assert.Equal(t, 5, qe.Max)

	assert.ErrorIs(t, (&Product{}).CheckQuantity(0), ErrQuantityOutOfRange)
	assert.NoError(t, (&Product{}).CheckQuantity(1000))
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	s.Put(Product{ID: "p1", SKU: "b", Name: "Paracetamol"})
	s.Put(Product{ID: "p2", SKU: "a", Name: "Ibuprofen"})

	p, err := s.Get(context.Background(), "p1")
	require.NoError(t, err)
	p.Name = "changed"

	again, err := s.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Paracetamol", again.Name)

	_, err = s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "p2", list[0].ID)
}
