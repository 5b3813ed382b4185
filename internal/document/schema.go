package document

import (
	"fmt"

	"github.com/baker-beach/market-index/internal/domain"
)

// Schema names accepted by SchemaByName.
const (
	SchemaDefault = "default"
	SchemaCatalog = "catalog"
)

// LocalizedField describes an attribute published as code plus one
// translated value per locale.
type LocalizedField struct {
	Name  string
	Tag   string
	Type  string
	Multi bool
	// Values extracts the attribute codes. Blank codes are skipped.
	Values func(p *domain.Product) []string
	// Sort optionally extracts a "{Name}_sort" value.
	Sort func(p *domain.Product) *int
}

// Schema is the field mapping applied by the assembler.
type Schema struct {
	Name string
	// CodeField holds the product code, e.g. "code" or "gtin".
	CodeField string
	// GroupInID includes the primary group code in document ids.
	GroupInID       bool
	Localized       []LocalizedField
	StandardPrices  bool
	GroupDimensions bool
	AssetPurpose    string
	AssetSize       string
}

func single(get func(p *domain.Product) string) func(p *domain.Product) []string {
	return func(p *domain.Product) []string {
		if v := get(p); v != "" {
			return []string{v}
		}
		return nil
	}
}

// DefaultSchema publishes the full raw catalog attribute set.
func DefaultSchema() Schema {
	return Schema{
		Name:      SchemaDefault,
		CodeField: "code",
		GroupInID: true,
		Localized: []LocalizedField{
			{Name: "brand", Tag: "brand", Type: "text", Values: single(func(p *domain.Product) string { return p.Brand })},
			{Name: "size", Tag: "size", Type: "text", Values: single(func(p *domain.Product) string { return p.Size })},
			{Name: "color", Tag: "color", Type: "text", Values: single(func(p *domain.Product) string { return p.Color })},
			{Name: "diet", Tag: "diet", Type: "text", Values: single(func(p *domain.Product) string { return p.Diet })},
			{Name: "colorpicker", Tag: "color", Type: "text", Multi: true,
				Values: func(p *domain.Product) []string { return p.ColorPicker }},
			{Name: "variant_1", Tag: "variant_1", Type: "text",
				Values: single(func(p *domain.Product) string { return p.Variant1 }),
				Sort:   func(p *domain.Product) *int { return p.Variant1Sort }},
			{Name: "variant_2", Tag: "variant_2", Type: "text",
				Values: single(func(p *domain.Product) string { return p.Variant2 }),
				Sort:   func(p *domain.Product) *int { return p.Variant2Sort }},
			{Name: "name", Tag: "product.code", Type: "text", Values: single(func(p *domain.Product) string { return p.Code })},
			{Name: "category", Tag: "category", Type: "text", Multi: true,
				Values: func(p *domain.Product) []string { return p.Categories }},
		},
		StandardPrices:  true,
		GroupDimensions: true,
		AssetPurpose:    "listing",
		AssetSize:       "m",
	}
}

// CatalogSchema publishes the reduced attribute set of the generic catalog.
func CatalogSchema() Schema {
	return Schema{
		Name:      SchemaCatalog,
		CodeField: "code",
		GroupInID: true,
		Localized: []LocalizedField{
			{Name: "brand", Tag: "index.brand", Type: "text", Values: single(func(p *domain.Product) string { return p.Brand })},
			{Name: "name", Tag: "index.name", Type: "text", Values: single(func(p *domain.Product) string { return p.Name })},
			{Name: "category", Tag: "category", Type: "text", Multi: true,
				Values: func(p *domain.Product) []string { return p.Categories }},
		},
		AssetPurpose: "listing",
		AssetSize:    "m",
	}
}

// SchemaByName returns a predefined schema.
func SchemaByName(name string) (Schema, error) {
	switch name {
	case "", SchemaDefault:
		return DefaultSchema(), nil
	case SchemaCatalog:
		return CatalogSchema(), nil
	default:
		return Schema{}, fmt.Errorf("unknown document schema %q", name)
	}
}
