package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/spherical/flyer-extractor/internal/domain"
)

func TestWriteXLSX(t *testing.T) {
	records := []domain.ProductRecord{
		{ID: 1, JobID: "42", Retailer: "Deco", Page: 1, Name: "Pasta Barilla", Brand: "Barilla", PriceText: "1,20 €", PriceValue: 1.2},
		{ID: 2, JobID: "42", Retailer: "Deco", Page: 2, Name: "Caffè Lavazza", Brand: "Lavazza", PriceText: "non visibile"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, records))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, headers, rows[0])
	assert.Equal(t, "Pasta Barilla", rows[1][4])
	assert.Equal(t, "1.2", rows[1][8])
	assert.Equal(t, "non visibile", rows[2][7])
}

func TestWriteXLSXEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
