package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultPriceGroup is the reserved price group used when a product carries no
// price for the requested group.
const DefaultPriceGroup = "default"

// Product is the catalog state of a sellable item as it arrives for indexing.
type Product struct {
	Code   string `json:"code" validate:"required"`
	Type   string `json:"type"`
	Status string `json:"status"`

	// Indexed suppresses all documents for the product when explicitly false.
	Indexed   *bool      `json:"indexed,omitempty"`
	StartDate *time.Time `json:"start_date,omitempty"`

	Brand       string   `json:"brand,omitempty"`
	Name        string   `json:"name,omitempty"`
	Size        string   `json:"size,omitempty"`
	Color       string   `json:"color,omitempty"`
	Diet        string   `json:"diet,omitempty"`
	ColorPicker []string `json:"colorpicker,omitempty"`
	Categories  []string `json:"categories,omitempty"`

	Variant1     string `json:"variant_1,omitempty"`
	Variant1Sort *int   `json:"variant_1_sort,omitempty"`
	Variant2     string `json:"variant_2,omitempty"`
	Variant2Sort *int   `json:"variant_2_sort,omitempty"`

	PrimaryGroup   *GroupTag `json:"primary_group,omitempty"`
	SecondaryGroup *GroupTag `json:"secondary_group,omitempty"`
	Sort           *int      `json:"sort,omitempty"`

	Logos map[string][]string `json:"logos,omitempty"`
	Tags  map[string][]string `json:"tags,omitempty"`

	// Assets is keyed by purpose, then by size.
	Assets map[string]map[string][]Asset `json:"assets,omitempty"`

	Prices     []Price     `json:"prices,omitempty" validate:"dive"`
	BasePrices []BasePrice `json:"base_prices,omitempty"`
}

// IsIndexed reports whether the product should produce index documents.
func (p *Product) IsIndexed() bool {
	return p.Indexed == nil || *p.Indexed
}

// GroupTag classifies a product into a primary or secondary group.
type GroupTag struct {
	Code string `json:"code"`
	Sort *int   `json:"sort,omitempty"`
	Dim1 string `json:"dim_1,omitempty"`
	Dim2 string `json:"dim_2,omitempty"`
}

// Price is a single price record. A nil Start means the price has always been
// in effect.
type Price struct {
	Currency string          `json:"currency" validate:"required"`
	Group    string          `json:"group" validate:"required"`
	Tag      string          `json:"tag,omitempty"`
	Value    decimal.Decimal `json:"value"`
	Start    *time.Time      `json:"start,omitempty"`
}

// BasePrice describes unit pricing, e.g. a divisor of "100" for unit "g".
type BasePrice struct {
	Divisor string `json:"divisor"`
	Unit    string `json:"unit"`
}

// Asset references a media file attached to the product.
type Asset struct {
	Path string `json:"path"`
	Type string `json:"type"`
}

// InventoryStatus is the stock state reported by the inventory service.
type InventoryStatus struct {
	Stock           int `json:"stock"`
	OutOfStockLimit int `json:"out_of_stock_limit"`
}
