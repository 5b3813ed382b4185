// Package availability derives per price group order quantities from the
// stock state of a product.
package availability

import (
	"context"
	"errors"
	"log/slog"

	"github.com/baker-beach/market-index/internal/domain"
	"github.com/baker-beach/market-index/pkg/logger"
)

// ErrNoInventory is reported when no inventory lookup is configured.
var ErrNoInventory = errors.New("inventory lookup not configured")

// InventoryLookup returns the stock state of a product.
type InventoryLookup interface {
	Status(ctx context.Context, code string) (domain.InventoryStatus, error)
}

// Availability is the order quantity and flag published for one price group.
type Availability struct {
	MOQ       int
	Available int
}

// Calculator computes availability, failing closed when stock state is unknown.
type Calculator struct {
	lookup InventoryLookup
	logger *slog.Logger
	// OnFallback is invoked when the lookup fails. May be nil.
	OnFallback func(code string, err error)
}

// NewCalculator creates a Calculator. A nil lookup makes every product
// unavailable.
func NewCalculator(lookup InventoryLookup, log *slog.Logger) *Calculator {
	return &Calculator{lookup: lookup, logger: log}
}

// Calculate returns the availability of code for each price group. Lookup
// errors are logged and turn every group unavailable with a zero quantity.
func (c *Calculator) Calculate(ctx context.Context, code string, groups []string) map[string]Availability {
	var (
		status domain.InventoryStatus
		err    = ErrNoInventory
	)
	if c.lookup != nil {
		status, err = c.lookup.Status(ctx, code)
	}

	var a Availability
	if err != nil {
		logger.WithContext(ctx, c.logger).ErrorContext(ctx, "inventory lookup failed, marking product unavailable",
			slog.String("product_code", code),
			slog.String("error", err.Error()),
		)
		if c.OnFallback != nil {
			c.OnFallback(code, err)
		}
	} else {
		a = FromStatus(status)
	}

	out := make(map[string]Availability, len(groups))
	for _, g := range groups {
		out[g] = a
	}
	return out
}

// FromStatus converts a stock state into an availability value.
func FromStatus(s domain.InventoryStatus) Availability {
	moq := s.Stock - s.OutOfStockLimit
	a := Availability{MOQ: moq}
	if moq > 0 {
		a.Available = 1
	}
	return a
}
