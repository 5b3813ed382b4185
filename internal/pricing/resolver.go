// Package pricing resolves the price in effect for a currency and price group.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/baker-beach/market-index/internal/domain"
)

// Resolve returns the value of the price in effect at asOf for the given
// currency and group. Records without a start count as the earliest instant.
// When the group has no candidate the reserved default group is tried. A nil
// asOf only considers records without a start, which yields the standard
// price of the product.
func Resolve(prices []domain.Price, currency, group string, asOf *time.Time) (decimal.Decimal, bool) {
	if p, ok := latest(prices, currency, group, asOf); ok {
		return p.Value, true
	}
	if group == domain.DefaultPriceGroup {
		return decimal.Decimal{}, false
	}
	if p, ok := latest(prices, currency, domain.DefaultPriceGroup, asOf); ok {
		return p.Value, true
	}
	return decimal.Decimal{}, false
}

// latest picks the candidate with the greatest start. On equal starts the
// record seen first wins.
func latest(prices []domain.Price, currency, group string, asOf *time.Time) (domain.Price, bool) {
	var (
		best  domain.Price
		found bool
	)
	for _, p := range prices {
		if p.Currency != currency || p.Group != group || !effective(p, asOf) {
			continue
		}
		if !found || startsAfter(p, best) {
			best, found = p, true
		}
	}
	return best, found
}

func effective(p domain.Price, asOf *time.Time) bool {
	if p.Start == nil {
		return true
	}
	return asOf != nil && !p.Start.After(*asOf)
}

func startsAfter(a, b domain.Price) bool {
	switch {
	case a.Start == nil:
		return false
	case b.Start == nil:
		return true
	default:
		return a.Start.After(*b.Start)
	}
}
