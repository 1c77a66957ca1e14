// Package comparison finds the cheapest catalog offers for a shopping list.
package comparison

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/spherical/flyer-extractor/internal/domain"
)

// MaxOffers caps the offers listed per query line.
const MaxOffers = 20

// Compare matches every query against the catalog and totals the best offers.
// Only records with a positive price are eligible. A query with no match
// contributes a nil Best and a zero line total.
func Compare(queries []domain.CompareQuery, catalog []domain.ProductRecord) domain.CompareResult {
	eligible := make([]indexedRecord, 0, len(catalog))
	for _, rec := range catalog {
		if rec.PriceValue > 0 {
			eligible = append(eligible, indexedRecord{
				rec:   rec,
				name:  newTerm(rec.Name),
				brand: newTerm(rec.Brand),
			})
		}
	}

	result := domain.CompareResult{Lines: make([]domain.CompareLine, 0, len(queries))}
	var total float64

	for _, q := range queries {
		line := compareOne(q, eligible)
		total += line.LineTotal
		result.Lines = append(result.Lines, line)
	}

	result.Total = round2(total)
	return result
}

type indexedRecord struct {
	rec   domain.ProductRecord
	name  term
	brand term
}

// term holds a text in reading order and with its tokens sorted.
type term struct {
	plain  string
	sorted string
}

func newTerm(s string) term {
	tokens := tokenize(s)
	t := term{plain: strings.Join(tokens, " ")}
	sort.Strings(tokens)
	t.sorted = strings.Join(tokens, " ")
	return t
}

// matches reports containment in either direction, first in reading order
// ("pasta barilla" within "pasta barilla integrale"), then with sorted tokens
// ("barilla pasta" against "pasta barilla").
func (t term) matches(other term) bool {
	return contains(t.plain, other.plain) || contains(t.sorted, other.sorted)
}

func compareOne(q domain.CompareQuery, eligible []indexedRecord) domain.CompareLine {
	qty := q.Quantity
	if qty < 1 {
		qty = 1
	}
	q.Quantity = qty

	name := newTerm(q.Name)
	brand := newTerm(q.Brand)

	var matches []domain.ProductRecord
	for _, cand := range eligible {
		if !name.matches(cand.name) {
			continue
		}
		if brand.plain != "" && !brand.matches(cand.brand) {
			continue
		}
		matches = append(matches, cand.rec)
	}

	line := domain.CompareLine{Query: q, Offers: []domain.Offer{}}
	if len(matches) == 0 {
		return line
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].PriceValue < matches[j].PriceValue
	})

	limit := len(matches)
	if limit > MaxOffers {
		limit = MaxOffers
	}
	for _, m := range matches[:limit] {
		line.Offers = append(line.Offers, domain.Offer{
			ProductRecord: m,
			LineTotal:     round2(m.PriceValue * float64(qty)),
		})
	}

	best := line.Offers[0]
	line.Best = &best
	line.LineTotal = best.LineTotal
	return line
}

// contains reports whether either canonical text contains the other.
// An empty side never matches so blank catalog fields cannot swallow a query.
func contains(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// Canonical lowercases s, splits it into letter/digit tokens and joins them
// sorted with single spaces, so word order does not affect matching.
func Canonical(s string) string {
	return newTerm(s).sorted
}

// Normalize lowercases s and joins its letter/digit tokens in reading order.
func Normalize(s string) string {
	return newTerm(s).plain
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
