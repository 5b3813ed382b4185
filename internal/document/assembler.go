// Package document assembles the per-interval index documents of a product.
package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/baker-beach/market-index/internal/availability"
	"github.com/baker-beach/market-index/internal/domain"
	"github.com/baker-beach/market-index/internal/pricing"
	"github.com/baker-beach/market-index/internal/timeline"
	"github.com/baker-beach/market-index/pkg/logger"
)

var (
	// ErrInvalidProduct is returned for products that cannot be indexed at all.
	ErrInvalidProduct = errors.New("invalid product")
	// ErrAssembly is returned when building a product's documents panicked.
	ErrAssembly = errors.New("document assembly failed")
)

// Assembler builds index documents according to a Schema.
type Assembler struct {
	schema       Schema
	translator   domain.Translator
	availability *availability.Calculator
	logger       *slog.Logger

	// OnMissingPrice is invoked for every price field left out. May be nil.
	OnMissingPrice func(currency, group string)
	// OnIntervalFailure is invoked when an interval is skipped. May be nil.
	OnIntervalFailure func(code string, err error)
}

// NewAssembler creates an Assembler. A nil translator publishes raw codes for
// every locale.
func NewAssembler(schema Schema, translator domain.Translator, calc *availability.Calculator, log *slog.Logger) *Assembler {
	return &Assembler{
		schema:       schema,
		translator:   translator,
		availability: calc,
		logger:       log,
	}
}

// Schema returns the field mapping in use.
func (a *Assembler) Schema() Schema {
	return a.schema
}

// Build returns one document per validity interval of the product, in
// interval order. Products marked as not indexed yield no documents. An
// error is returned only when the product itself is unusable; failures
// confined to a single interval drop that interval. A panic raised while
// building is returned as ErrAssembly.
func (a *Assembler) Build(ctx context.Context, p *domain.Product, lastUpdate time.Time, ic *domain.IndexContext) (docs []domain.Document, err error) {
	if p == nil || strings.TrimSpace(p.Code) == "" {
		return nil, fmt.Errorf("%w: missing product code", ErrInvalidProduct)
	}
	if !p.IsIndexed() {
		return nil, nil
	}

	ctx = logger.WithProductCode(ctx, p.Code)
	log := logger.WithContext(ctx, a.logger)

	defer func() {
		if r := recover(); r != nil {
			log.ErrorContext(ctx, "panic while assembling documents",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			docs, err = nil, fmt.Errorf("%w: %s: %v", ErrAssembly, p.Code, r)
		}
	}()

	start := lastUpdate
	if p.StartDate != nil {
		start = *p.StartDate
	}
	intervals, err := timeline.Partition(start, p.Prices, ic.Horizon)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidProduct, p.Code, err)
	}
	if len(intervals) == 0 {
		log.WarnContext(ctx, "product starts at or after the index horizon",
			slog.Time("start", start),
			slog.Time("horizon", ic.Horizon),
		)
		return nil, nil
	}

	base := a.productFields(ctx, p, ic)

	docs = make([]domain.Document, 0, len(intervals))
	for _, iv := range intervals {
		doc, err := a.intervalDocument(ctx, p, iv, lastUpdate, ic, base)
		if err != nil {
			log.ErrorContext(ctx, "skipping interval",
				slog.String("interval", iv.String()),
				slog.String("error", err.Error()),
			)
			if a.OnIntervalFailure != nil {
				a.OnIntervalFailure(p.Code, err)
			}
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// productFields computes the fields that do not depend on the interval.
func (a *Assembler) productFields(ctx context.Context, p *domain.Product, ic *domain.IndexContext) domain.Document {
	doc := domain.Document{
		a.schema.CodeField: p.Code,
	}
	if p.Type != "" {
		doc[domain.FieldType] = p.Type
	}

	a.addGroup(doc, "primary_group", p.PrimaryGroup, p.Sort)
	a.addGroup(doc, "secondary_group", p.SecondaryGroup, p.Sort)

	for _, f := range a.schema.Localized {
		a.addLocalized(ctx, doc, f, p, ic)
	}

	if a.schema.StandardPrices {
		for _, cur := range ic.Currencies {
			for _, group := range ic.PriceGroups {
				if v, ok := pricing.Resolve(p.Prices, cur, group, nil); ok {
					doc[StdPriceField(cur, group)] = v
				}
			}
		}
	}

	i := 0
	for _, bp := range p.BasePrices {
		if strings.TrimSpace(bp.Divisor) == "" || strings.TrimSpace(bp.Unit) == "" {
			continue
		}
		divisor, unit := BasePriceFields(i)
		doc[divisor] = bp.Divisor
		doc[unit] = bp.Unit
		i++
	}

	for group, codes := range p.Logos {
		if len(codes) > 0 {
			doc[GroupCodesField("logos", group)] = append([]string(nil), codes...)
		}
	}
	for group, codes := range p.Tags {
		if len(codes) > 0 {
			doc[GroupCodesField("tags", group)] = append([]string(nil), codes...)
		}
	}

	if a.schema.AssetPurpose != "" {
		for i, asset := range p.Assets[a.schema.AssetPurpose][a.schema.AssetSize] {
			path, typ := AssetFields(a.schema.AssetPurpose, a.schema.AssetSize, i)
			doc[path] = asset.Path
			doc[typ] = asset.Type
		}
	}

	if a.availability != nil {
		for group, av := range a.availability.Calculate(ctx, p.Code, ic.PriceGroups) {
			doc[MOQField(group)] = av.MOQ
			doc[AvailableField(group)] = av.Available
		}
	}

	return doc
}

func (a *Assembler) addGroup(doc domain.Document, field string, g *domain.GroupTag, productSort *int) {
	if g == nil {
		return
	}
	doc[field] = g.Code
	if a.schema.GroupDimensions {
		if g.Dim1 != "" {
			doc[field+"_dim_1"] = g.Dim1
		}
		if g.Dim2 != "" {
			doc[field+"_dim_2"] = g.Dim2
		}
	}
	switch {
	case g.Sort != nil:
		doc[field+"_sort"] = *g.Sort
	case productSort != nil:
		doc[field+"_sort"] = *productSort
	}
}

func (a *Assembler) addLocalized(ctx context.Context, doc domain.Document, f LocalizedField, p *domain.Product, ic *domain.IndexContext) {
	var codes []string
	for _, c := range f.Values(p) {
		if strings.TrimSpace(c) != "" {
			codes = append(codes, c)
		}
	}
	if f.Sort != nil {
		if s := f.Sort(p); s != nil {
			doc[f.Name+"_sort"] = *s
		}
	}
	if len(codes) == 0 {
		return
	}

	if !f.Multi {
		doc[CodeField(f.Name, false)] = codes[0]
		for _, loc := range ic.Locales {
			doc[LocaleField(f.Name, loc, false)] = a.translate(ctx, f, codes[0], loc)
		}
		return
	}

	doc[CodeField(f.Name, true)] = codes
	for _, loc := range ic.Locales {
		msgs := make([]string, 0, len(codes))
		for _, c := range codes {
			msgs = append(msgs, a.translate(ctx, f, c, loc))
		}
		doc[LocaleField(f.Name, loc, true)] = msgs
	}
}

func (a *Assembler) translate(ctx context.Context, f LocalizedField, code string, loc language.Tag) string {
	if a.translator == nil {
		return code
	}
	msg, err := a.translator.Message(ctx, domain.MessageKey{
		Tag:      f.Tag,
		Type:     f.Type,
		Code:     code,
		Fallback: code,
	}, loc)
	if err != nil {
		logger.WithContext(ctx, a.logger).WarnContext(ctx, "translation failed, using code",
			slog.String("field", f.Name),
			slog.String("code", code),
			slog.String("locale", loc.String()),
			slog.String("error", err.Error()),
		)
		return code
	}
	if msg == "" {
		return code
	}
	return msg
}

// intervalDocument completes a copy of base with the interval's identity,
// validity and prices.
func (a *Assembler) intervalDocument(
	ctx context.Context,
	p *domain.Product,
	iv domain.Interval,
	lastUpdate time.Time,
	ic *domain.IndexContext,
	base domain.Document,
) (doc domain.Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("assembling interval %s: %v", iv, r)
		}
	}()

	doc = maps.Clone(base)
	doc[domain.FieldID] = a.documentID(p, iv)
	doc[domain.FieldActiveFrom] = iv.From
	doc[domain.FieldActiveTo] = iv.To
	doc[domain.FieldLastUpdate] = lastUpdate

	log := logger.WithContext(ctx, a.logger)
	asOf := iv.From
	for _, cur := range ic.Currencies {
		for _, group := range ic.PriceGroups {
			v, ok := pricing.Resolve(p.Prices, cur, group, &asOf)
			if !ok {
				log.WarnContext(ctx, "missing price information",
					slog.String("currency", cur),
					slog.String("price_group", group),
					slog.Time("as_of", asOf),
				)
				if a.OnMissingPrice != nil {
					a.OnMissingPrice(cur, group)
				}
				continue
			}
			doc[PriceField(cur, group)] = v
		}
	}
	return doc, nil
}

// documentID is stable for a given product, primary group and interval start.
func (a *Assembler) documentID(p *domain.Product, iv domain.Interval) string {
	from := iv.From.UTC().Format(time.RFC3339Nano)
	if a.schema.GroupInID && p.PrimaryGroup != nil && p.PrimaryGroup.Code != "" {
		return p.Code + "-" + p.PrimaryGroup.Code + "-" + from
	}
	return p.Code + "-" + from
}
