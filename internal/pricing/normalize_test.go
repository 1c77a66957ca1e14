package pricing

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

type labelPrice string

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  float64
	}{
		{name: "euro with comma", input: "2,49 €", want: 2.49},
		{name: "euro prefix", input: "€1.99", want: 1.99},
		{name: "dollar", input: "$ 3.5", want: 3.5},
		{name: "non visibile", input: "Non visibile", want: 0},
		{name: "not visible upper", input: "  NOT VISIBLE ", want: 0},
		{name: "gratis", input: "gratis", want: 0},
		{name: "gratuito", input: "Gratuito", want: 0},
		{name: "free", input: "Free", want: 0},
		{name: "empty", input: "", want: 0},
		{name: "nil", input: nil, want: 0},
		{name: "float", input: 3.5, want: 3.5},
		{name: "int", input: 2, want: 2},
		{name: "json number", input: json.Number("4.20"), want: 4.2},
		{name: "named string type", input: labelPrice("0,89"), want: 0.89},
		{name: "three decimals truncates", input: "2.499", want: 2.49},
		{name: "one decimal", input: "1,5", want: 1.5},
		{name: "text around", input: "solo 0,99 al pezzo", want: 0.99},
		{name: "no digits", input: "prezzo speciale", want: 0},
		{name: "negative number", input: -3.0, want: 3},
		{name: "thousands separator", input: "1.234,56", want: 1.23},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Normalize(tt.input), 1e-9)
		})
	}
}

func TestNormalizeNeverNegativeOrNaN(t *testing.T) {
	inputs := []any{"-5", "NaN", "+Inf", 1e100, "9" + repeat("9", 400), math.Inf(1), math.NaN()}
	for _, in := range inputs {
		got := Normalize(in)
		assert.GreaterOrEqual(t, got, 0.0, "input %v", in)
		assert.False(t, math.IsNaN(got), "NaN for input %v", in)
		assert.False(t, math.IsInf(got, 0), "Inf for input %v", in)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []any{
		"2,49 €", "€ 10", "1.234,56", "0,5", "Non visibile", "", nil, 3.5, 7, "12.999",
		"abc 4,2 def", "100", "0.01", "$0.10",
	}
	for _, in := range inputs {
		first := Normalize(in)
		second := Normalize(Format(first))
		assert.Equal(t, first, second, "input %v", in)
	}
}

func repeat(s string, n int) string {
	out := make([]byte, 0, len(s)*n)
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}
