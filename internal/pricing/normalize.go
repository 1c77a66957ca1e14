// Package pricing turns the price strings printed on flyers into numbers.
package pricing

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

var pricePattern = regexp.MustCompile(`(\d+\.\d{2}|\d+\.\d{1}|\d+)`)

// placeholders are answers that mean "no price" rather than a price of zero.
var placeholders = map[string]struct{}{
	"":             {},
	"non visibile": {},
	"not visible":  {},
	"gratis":       {},
	"gratuito":     {},
	"free":         {},
}

// Normalize converts a price of any shape into a finite float >= 0.
// Numbers are formatted and then parsed as text, nil becomes 0.
func Normalize(v any) float64 {
	switch t := v.(type) {
	case nil:
		return 0
	case string:
		return NormalizeText(t)
	case float64:
		return NormalizeText(strconv.FormatFloat(t, 'f', -1, 64))
	case float32:
		return NormalizeText(strconv.FormatFloat(float64(t), 'f', -1, 32))
	case int:
		return NormalizeText(strconv.Itoa(t))
	case int64:
		return NormalizeText(strconv.FormatInt(t, 10))
	case json.Number:
		return NormalizeText(t.String())
	case fmt.Stringer:
		return NormalizeText(t.String())
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String {
		return NormalizeText(rv.String())
	}
	return NormalizeText(fmt.Sprint(v))
}

// NormalizeText parses a textual price such as "2,49 €" or "€ 1.99 al kg".
func NormalizeText(s string) float64 {
	cleaned := strings.TrimSpace(s)
	if _, ok := placeholders[strings.ToLower(cleaned)]; ok {
		return 0
	}

	cleaned = strings.NewReplacer("€", "", "$", "", ",", ".").Replace(cleaned)
	match := pricePattern.FindString(strings.TrimSpace(cleaned))
	if match == "" {
		return 0
	}

	f, err := strconv.ParseFloat(match, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f < 0 {
		return 0
	}
	return f
}

// Format renders a normalized price back to text so that NormalizeText(Format(p)) == p.
func Format(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
