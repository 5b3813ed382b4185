// Package service drives indexing: it rebuilds the interval documents of
// products and replaces them in the search engine selected by the product
// status.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/baker-beach/market-index/internal/document"
	"github.com/baker-beach/market-index/internal/domain"
	"github.com/baker-beach/market-index/internal/engine"
	apperrors "github.com/baker-beach/market-index/pkg/errors"
	"github.com/baker-beach/market-index/pkg/kafka"
	"github.com/baker-beach/market-index/pkg/logger"
	"github.com/baker-beach/market-index/pkg/pagination"
	"github.com/baker-beach/market-index/pkg/tracing"
)

const tracerName = "github.com/baker-beach/market-index/internal/service"

// Event types published after the index of a product changed.
const (
	EventProductPublished = "index.product.published"
	EventProductRemoved   = "index.product.removed"
)

// ProductSource loads product snapshots, e.g. from the catalog database.
type ProductSource interface {
	Get(ctx context.Context, code string) (*domain.Product, error)
	List(ctx context.Context, params pagination.Params) (pagination.Page[domain.Product], error)
}

// Publisher announces index changes to other services.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *kafka.Event) error
}

// Options tune batch and reindex throughput.
type Options struct {
	// Workers bounds the products indexed in parallel. Values below 1 mean 1.
	Workers int
	// ReindexRPS limits products per second during Reindex. Zero disables
	// the limit.
	ReindexRPS      float64
	ReindexPageSize int
	// PublishTopic receives an event per indexed or removed product when a
	// publisher is set.
	PublishTopic string
}

// IndexResult describes what happened to one product.
type IndexResult struct {
	Code      string `json:"code"`
	Shop      string `json:"shop,omitempty"`
	Index     string `json:"index,omitempty"`
	Documents int    `json:"documents"`
	Skipped   bool   `json:"skipped,omitempty"`
	Error     string `json:"error,omitempty"`
}

// IndexService rebuilds and submits product documents.
type IndexService struct {
	assembler *document.Assembler
	engines   *engine.Registry
	ic        *domain.IndexContext
	source    ProductSource
	publisher Publisher
	opts      Options
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time

	reindexing atomic.Bool
}

// NewIndexService creates the service. The assembler's missing-price and
// interval-failure hooks are bound to the service metrics when unset.
func NewIndexService(asm *document.Assembler, engines *engine.Registry, ic *domain.IndexContext, opts Options, log *slog.Logger) *IndexService {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.ReindexPageSize < 1 {
		opts.ReindexPageSize = pagination.DefaultPerPage
	}
	if asm.OnMissingPrice == nil {
		asm.OnMissingPrice = func(currency, group string) {
			missingPrices.WithLabelValues(currency, group).Inc()
		}
	}
	if asm.OnIntervalFailure == nil {
		asm.OnIntervalFailure = func(string, error) { intervalFailures.Inc() }
	}
	return &IndexService{
		assembler: asm,
		engines:   engines,
		ic:        ic,
		opts:      opts,
		logger:    log,
		tracer:    tracing.Tracer(tracerName),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithSource sets the catalog used by IndexByCode and Reindex.
func (s *IndexService) WithSource(src ProductSource) *IndexService {
	s.source = src
	return s
}

// WithPublisher enables index change events.
func (s *IndexService) WithPublisher(p Publisher) *IndexService {
	s.publisher = p
	return s
}

// Build returns the documents the product would be indexed with, without
// touching any engine.
func (s *IndexService) Build(ctx context.Context, p *domain.Product) ([]domain.Document, error) {
	docs, err := s.assembler.Build(ctx, p, s.now(), s.ic)
	if err != nil {
		if errors.Is(err, document.ErrInvalidProduct) {
			return nil, apperrors.InvalidInput(err.Error())
		}
		return nil, err
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	return docs, nil
}

// IndexProduct replaces the documents of p in the index for its status:
// existing documents with the same code are deleted, then the rebuilt set is
// submitted in one bulk request. A failed delete is logged and the new set is
// still submitted, overwriting documents with the same ids. Products marked as
// not indexed are only deleted.
func (s *IndexService) IndexProduct(ctx context.Context, p *domain.Product) (res IndexResult, err error) {
	if p == nil || strings.TrimSpace(p.Code) == "" {
		return IndexResult{}, apperrors.InvalidInput("product code is required")
	}
	res = IndexResult{Code: p.Code, Shop: s.ic.Shop, Index: s.ic.IndexName(p.Status)}

	ctx, span := s.tracer.Start(ctx, "IndexService.IndexProduct", trace.WithAttributes(
		attribute.String("product.code", p.Code),
		attribute.String("index.name", res.Index),
	))
	defer func() {
		tracing.Fail(span, err)
		span.End()
	}()

	ctx = logger.WithProductCode(ctx, p.Code)
	log := logger.WithContext(ctx, s.logger)

	start := time.Now()
	defer func() {
		indexDuration.WithLabelValues(res.Index).Observe(time.Since(start).Seconds())
		productsIndexed.WithLabelValues(res.Index, outcome(res, err)).Inc()
	}()

	eng, err := s.engineFor(p.Status)
	if err != nil {
		return res, err
	}

	docs, err := s.Build(ctx, p)
	if err != nil {
		return res, err
	}

	if err := eng.DeleteByField(ctx, s.assembler.Schema().CodeField, p.Code); err != nil {
		deleteFailures.WithLabelValues(res.Index).Inc()
		log.ErrorContext(ctx, "failed to delete previous documents",
			slog.String("index", res.Index),
			slog.String("error", err.Error()),
		)
		if len(docs) == 0 {
			return res, fmt.Errorf("delete documents of %s: %w", p.Code, err)
		}
	}

	if len(docs) == 0 {
		res.Skipped = true
		log.InfoContext(ctx, "product removed from index",
			slog.String("index", res.Index),
			slog.Bool("indexed", p.IsIndexed()),
		)
		s.publish(ctx, EventProductRemoved, res)
		return res, nil
	}

	if err := eng.Submit(ctx, docs); err != nil {
		return res, fmt.Errorf("submit documents of %s: %w", p.Code, err)
	}
	res.Documents = len(docs)
	documentsSubmitted.WithLabelValues(res.Index).Add(float64(len(docs)))
	span.SetAttributes(attribute.Int("index.documents", len(docs)))

	log.InfoContext(ctx, "product indexed",
		slog.String("index", res.Index),
		slog.Int("documents", len(docs)),
	)
	s.publish(ctx, EventProductPublished, res)
	return res, nil
}

// IndexByCode loads the product from the catalog and indexes it.
func (s *IndexService) IndexByCode(ctx context.Context, code string) (IndexResult, error) {
	if s.source == nil {
		return IndexResult{}, apperrors.Unavailable("catalog", errors.New("no product source configured"))
	}
	if strings.TrimSpace(code) == "" {
		return IndexResult{}, apperrors.InvalidInput("product code is required")
	}
	p, err := s.source.Get(ctx, code)
	if err != nil {
		return IndexResult{Code: code}, err
	}
	return s.IndexProduct(ctx, p)
}

// DeleteProduct removes every document of code from the index for status.
// An empty status removes the product from all configured indexes.
func (s *IndexService) DeleteProduct(ctx context.Context, code, status string) (err error) {
	if strings.TrimSpace(code) == "" {
		return apperrors.InvalidInput("product code is required")
	}

	ctx, span := s.tracer.Start(ctx, "IndexService.DeleteProduct", trace.WithAttributes(
		attribute.String("product.code", code),
	))
	defer func() {
		tracing.Fail(span, err)
		span.End()
	}()

	var addresses []string
	if status == "" {
		addresses = s.engines.Addresses()
	} else {
		addr, ok := s.ic.Address(status)
		if !ok {
			return apperrors.InvalidInput(fmt.Sprintf("no index configured for status %q", status))
		}
		addresses = []string{addr}
	}

	field := s.assembler.Schema().CodeField
	var errs []error
	for _, addr := range addresses {
		eng, err := s.engines.Get(addr)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := eng.DeleteByField(ctx, field, code); err != nil {
			errs = append(errs, fmt.Errorf("delete %s from %s: %w", code, addr, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	logger.WithContext(logger.WithProductCode(ctx, code), s.logger).InfoContext(ctx, "product deleted from index",
		slog.String("status", status),
	)
	s.publish(ctx, EventProductRemoved, IndexResult{Code: code, Shop: s.ic.Shop, Index: status, Skipped: true})
	return nil
}

// Documents returns the indexed documents of code from the index for status,
// ordered by validity start. An empty status reads the default index.
func (s *IndexService) Documents(ctx context.Context, code, status string) ([]domain.Document, error) {
	if strings.TrimSpace(code) == "" {
		return nil, apperrors.InvalidInput("product code is required")
	}
	eng, err := s.engineFor(status)
	if err != nil {
		return nil, err
	}

	docs, err := eng.Find(ctx, s.assembler.Schema().CodeField, code)
	if err != nil {
		return nil, fmt.Errorf("find documents of %s: %w", code, err)
	}
	if len(docs) == 0 {
		return nil, apperrors.NotFound("product", code)
	}
	slices.SortStableFunc(docs, func(a, b domain.Document) int {
		return a.ActiveFrom().Compare(b.ActiveFrom())
	})
	return docs, nil
}

func (s *IndexService) engineFor(status string) (engine.Engine, error) {
	addr, ok := s.ic.Address(status)
	if !ok {
		return nil, apperrors.InvalidInput(fmt.Sprintf("no index configured for status %q", status))
	}
	eng, err := s.engines.Get(addr)
	if err != nil {
		return nil, apperrors.Unavailable("index "+s.ic.IndexName(status), err)
	}
	return eng, nil
}

func (s *IndexService) publish(ctx context.Context, eventType string, res IndexResult) {
	if s.publisher == nil || s.opts.PublishTopic == "" {
		return
	}
	evt, err := kafka.NewEvent(eventType, res.Code, "product", "market-index", res)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to build index event", slog.String("error", err.Error()))
		return
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		evt.WithCorrelationID(id)
	}
	if err := s.publisher.Publish(ctx, s.opts.PublishTopic, evt); err != nil {
		s.logger.WarnContext(ctx, "failed to publish index event",
			slog.String("event_type", eventType),
			slog.String("product_code", res.Code),
			slog.String("error", err.Error()),
		)
	}
}

func outcome(res IndexResult, err error) string {
	switch {
	case err != nil:
		return "failed"
	case res.Skipped:
		return "skipped"
	default:
		return "indexed"
	}
}

func reindexLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}
