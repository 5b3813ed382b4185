package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/baker-beach/market-index/internal/domain"
	apperrors "github.com/baker-beach/market-index/pkg/errors"
	"github.com/baker-beach/market-index/pkg/pagination"
)

// BatchSummary aggregates the results of a batch or a reindex run.
type BatchSummary struct {
	Total     int           `json:"total"`
	Indexed   int           `json:"indexed"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Documents int           `json:"documents"`
	Failures  []IndexResult `json:"failures,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
}

func (b *BatchSummary) add(res IndexResult) {
	b.Total++
	b.Documents += res.Documents
	switch {
	case res.Error != "":
		b.Failed++
		b.Failures = append(b.Failures, res)
	case res.Skipped:
		b.Skipped++
	default:
		b.Indexed++
	}
}

// IndexProducts indexes distinct products in parallel, bounded by
// Options.Workers. A failing product does not stop the others. Products not
// yet started when ctx is cancelled are reported as failed.
func (s *IndexService) IndexProducts(ctx context.Context, products []domain.Product) BatchSummary {
	start := time.Now()
	results := s.indexAll(ctx, products, nil)

	var sum BatchSummary
	for _, res := range results {
		sum.add(res)
	}
	sum.Duration = time.Since(start)

	s.logger.InfoContext(ctx, "batch indexed",
		slog.Int("total", sum.Total),
		slog.Int("indexed", sum.Indexed),
		slog.Int("skipped", sum.Skipped),
		slog.Int("failed", sum.Failed),
		slog.Int("documents", sum.Documents),
	)
	return sum
}

// indexAll returns one result per product, in input order. limiter, when set,
// paces the start of each product.
func (s *IndexService) indexAll(ctx context.Context, products []domain.Product, limiter *rate.Limiter) []IndexResult {
	results := make([]IndexResult, len(products))

	g := new(errgroup.Group)
	g.SetLimit(s.opts.Workers)
	for i := range products {
		p := &products[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = IndexResult{Code: p.Code, Error: err.Error()}
				return nil
			}
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					results[i] = IndexResult{Code: p.Code, Error: err.Error()}
					return nil
				}
			}
			res, err := s.IndexProduct(ctx, p)
			if err != nil {
				res.Code = p.Code
				res.Error = err.Error()
				s.logger.ErrorContext(ctx, "failed to index product",
					slog.String("product_code", p.Code),
					slog.String("error", err.Error()),
				)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Reindexing reports whether a Reindex run is in progress.
func (s *IndexService) Reindexing() bool {
	return s.reindexing.Load()
}

// Reindex walks the whole catalog page by page and indexes every product at
// no more than Options.ReindexRPS products per second. Only one reindex runs
// at a time.
func (s *IndexService) Reindex(ctx context.Context) (BatchSummary, error) {
	if s.source == nil {
		return BatchSummary{}, apperrors.Unavailable("catalog", fmt.Errorf("no product source configured"))
	}
	if !s.reindexing.CompareAndSwap(false, true) {
		return BatchSummary{}, apperrors.Conflict("reindex already running")
	}
	defer s.reindexing.Store(false)

	start := time.Now()
	limiter := reindexLimiter(s.opts.ReindexRPS)
	s.logger.InfoContext(ctx, "reindex started",
		slog.Float64("rps", s.opts.ReindexRPS),
		slog.Int("page_size", s.opts.ReindexPageSize),
	)

	var sum BatchSummary
	params := pagination.New(1, s.opts.ReindexPageSize)
	for {
		page, err := s.source.List(ctx, params)
		if err != nil {
			reindexRuns.WithLabelValues("failed").Inc()
			sum.Duration = time.Since(start)
			return sum, fmt.Errorf("list catalog page %d: %w", params.Page, err)
		}
		for _, res := range s.indexAll(ctx, page.Items, limiter) {
			sum.add(res)
		}
		if err := ctx.Err(); err != nil {
			reindexRuns.WithLabelValues("cancelled").Inc()
			sum.Duration = time.Since(start)
			return sum, err
		}
		if !page.HasNext() || len(page.Items) == 0 {
			break
		}
		params = params.Next()
	}
	sum.Duration = time.Since(start)
	reindexRuns.WithLabelValues("completed").Inc()

	s.logger.InfoContext(ctx, "reindex completed",
		slog.Int("total", sum.Total),
		slog.Int("indexed", sum.Indexed),
		slog.Int("skipped", sum.Skipped),
		slog.Int("failed", sum.Failed),
		slog.Duration("duration", sum.Duration),
	)
	return sum, nil
}
