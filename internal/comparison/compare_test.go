package comparison

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/flyer-extractor/internal/cache"
	"github.com/spherical/flyer-extractor/internal/domain"
	"github.com/spherical/flyer-extractor/internal/observability"
)

func rec(id int64, name, brand string, price float64) domain.ProductRecord {
	return domain.ProductRecord{ID: id, Name: name, Brand: brand, PriceValue: price, Retailer: "Deco"}
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Pasta Barilla", "barilla pasta"},
		{"  BARILLA -- pasta!! ", "barilla pasta"},
		{"Caffè Lavazza 250g", "250g caffè lavazza"},
		{"", ""},
		{"***", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Canonical(tt.in))
		})
	}
}

func TestNormalizeKeepsOrder(t *testing.T) {
	assert.Equal(t, "pasta barilla integrale", Normalize(" Pasta-Barilla  INTEGRALE "))
	assert.Equal(t, "", Normalize("!!"))
}

func TestCompareExtendedNames(t *testing.T) {
	catalog := []domain.ProductRecord{
		rec(1, "Pasta Barilla Integrale", "Barilla", 1.10),
		rec(2, "Latte Granarolo Intero 1L", "Granarolo", 1.30),
	}

	result := Compare([]domain.CompareQuery{
		{Name: "Pasta Barilla", Brand: "Barilla", Quantity: 1},
		{Name: "Latte Granarolo", Quantity: 2},
	}, catalog)

	require.Len(t, result.Lines, 2)
	require.NotNil(t, result.Lines[0].Best)
	assert.Equal(t, int64(1), result.Lines[0].Best.ID)
	require.NotNil(t, result.Lines[1].Best)
	assert.Equal(t, int64(2), result.Lines[1].Best.ID)
	assert.InDelta(t, 3.70, result.Total, 1e-9)
}

func TestCompareMatchesEitherDirection(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		catalog string
	}{
		{"query extends catalog name", "Passata Mutti Classica 700g", "Passata Mutti"},
		{"catalog extends query", "Mozzarella", "Mozzarella Santa Lucia 125g"},
		{"reordered tokens", "Barilla Pasta", "Pasta Barilla"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Compare([]domain.CompareQuery{{Name: tt.query}}, []domain.ProductRecord{rec(1, tt.catalog, "", 1)})
			assert.NotNil(t, result.Lines[0].Best)
		})
	}
}

func TestCompareBestOfferAndLineTotal(t *testing.T) {
	catalog := []domain.ProductRecord{
		rec(1, "Pasta Barilla", "Barilla", 0.99),
		rec(2, "Pasta Barilla 500g", "Barilla", 1.29),
		rec(3, "Latte", "Granarolo", 1.10),
	}

	res := Compare([]domain.CompareQuery{{Name: "Barilla Pasta", Quantity: 2}}, catalog)

	require.Len(t, res.Lines, 1)
	line := res.Lines[0]
	require.NotNil(t, line.Best)
	assert.Equal(t, int64(1), line.Best.ID)
	assert.InDelta(t, 0.99, line.Best.PriceValue, 1e-9)
	assert.InDelta(t, 1.98, line.LineTotal, 1e-9)
	assert.Len(t, line.Offers, 2)
	assert.InDelta(t, 1.98, res.Total, 1e-9)
}

func TestCompareExcludesZeroPrices(t *testing.T) {
	catalog := []domain.ProductRecord{
		rec(1, "Latte intero", "", 0),
		rec(2, "Latte intero", "", 1.05),
	}

	res := Compare([]domain.CompareQuery{{Name: "latte", Quantity: 1}}, catalog)

	require.NotNil(t, res.Lines[0].Best)
	assert.Equal(t, int64(2), res.Lines[0].Best.ID)
	assert.Len(t, res.Lines[0].Offers, 1)
}

func TestCompareNoMatch(t *testing.T) {
	res := Compare([]domain.CompareQuery{{Name: "caviale", Quantity: 3}}, []domain.ProductRecord{rec(1, "Latte", "", 1)})

	require.Len(t, res.Lines, 1)
	assert.Nil(t, res.Lines[0].Best)
	assert.Empty(t, res.Lines[0].Offers)
	assert.Zero(t, res.Lines[0].LineTotal)
	assert.Zero(t, res.Total)
}

func TestCompareBrandFilter(t *testing.T) {
	catalog := []domain.ProductRecord{
		rec(1, "Passata di pomodoro", "Mutti", 1.49),
		rec(2, "Passata di pomodoro", "Cirio", 0.89),
	}

	res := Compare([]domain.CompareQuery{{Name: "passata", Brand: "mutti", Quantity: 1}}, catalog)

	require.NotNil(t, res.Lines[0].Best)
	assert.Equal(t, int64(1), res.Lines[0].Best.ID)
	assert.Len(t, res.Lines[0].Offers, 1)
}

func TestCompareCapsOffersAndIsStable(t *testing.T) {
	var catalog []domain.ProductRecord
	for i := 0; i < 30; i++ {
		catalog = append(catalog, rec(int64(i+1), fmt.Sprintf("Acqua naturale %d", i), "", 0.25))
	}

	res := Compare([]domain.CompareQuery{{Name: "acqua", Quantity: 6}}, catalog)

	line := res.Lines[0]
	assert.Len(t, line.Offers, MaxOffers)
	assert.Equal(t, int64(1), line.Best.ID, "ties keep catalog order")
	assert.InDelta(t, 1.5, line.LineTotal, 1e-9)
}

func TestCompareTotalRounded(t *testing.T) {
	catalog := []domain.ProductRecord{
		rec(1, "Mela", "", 0.1),
		rec(2, "Pera", "", 0.2),
	}

	res := Compare([]domain.CompareQuery{
		{Name: "mela", Quantity: 1},
		{Name: "pera", Quantity: 1},
	}, catalog)

	assert.Equal(t, 0.3, res.Total)
}

func TestCompareDefaultsQuantity(t *testing.T) {
	res := Compare([]domain.CompareQuery{{Name: "mela"}}, []domain.ProductRecord{rec(1, "Mela", "", 0.5)})
	assert.Equal(t, 1, res.Lines[0].Query.Quantity)
	assert.InDelta(t, 0.5, res.Total, 1e-9)
}

type fakeReader struct {
	domain.CatalogReader
	records []domain.ProductRecord
	calls   int
}

func (f *fakeReader) All(context.Context) ([]domain.ProductRecord, error) {
	f.calls++
	return f.records, nil
}

func TestServiceCachesCatalog(t *testing.T) {
	ctx := context.Background()
	reader := &fakeReader{records: []domain.ProductRecord{rec(1, "Latte", "", 1.2)}}
	svc := NewService(reader, cache.NewMemoryClient(8, time.Minute), time.Minute, observability.Nop())

	for i := 0; i < 3; i++ {
		res, err := svc.Compare(ctx, []domain.CompareQuery{{Name: "latte", Quantity: 1}})
		require.NoError(t, err)
		assert.InDelta(t, 1.2, res.Total, 1e-9)
	}
	assert.Equal(t, 1, reader.calls)

	svc.Invalidate(ctx)
	_, err := svc.Compare(ctx, []domain.CompareQuery{{Name: "latte", Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, 2, reader.calls)
}

func TestServiceRejectsEmptyList(t *testing.T) {
	svc := NewService(&fakeReader{}, nil, 0, nil)
	_, err := svc.Compare(context.Background(), nil)
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
}
