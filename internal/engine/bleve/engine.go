// Package bleve stores index documents in an embedded bleve index, for
// single-node deployments and local development without a search cluster.
package bleve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/shopspring/decimal"

	"github.com/baker-beach/market-index/internal/domain"
)

const (
	// MaxBatchSize is the maximum number of operations per batch.
	MaxBatchSize = 100

	// pageSize bounds the hits fetched per search round.
	pageSize = 500
)

// Engine is a bleve-backed index of product documents.
type Engine struct {
	index  bleve.Index
	path   string
	logger *slog.Logger
}

// CreateIndexMapping returns a dynamic mapping in which every string is a
// single exact-match term and every field is stored for retrieval.
func CreateIndexMapping() mapping.IndexMapping {
	m := bleve.NewIndexMapping()
	m.DefaultAnalyzer = keyword.Name
	m.StoreDynamic = true
	m.IndexDynamic = true
	return m
}

// Open opens the index at path, creating it if needed. An empty path keeps
// the index in memory.
func Open(path string, logger *slog.Logger) (*Engine, error) {
	var (
		idx bleve.Index
		err error
	)
	if path == "" {
		idx, err = bleve.NewMemOnly(CreateIndexMapping())
	} else {
		idx, err = bleve.Open(path)
		if err != nil {
			idx, err = bleve.New(path, CreateIndexMapping())
		}
	}
	if err != nil {
		return nil, fmt.Errorf("bleve: open index %q: %w", path, err)
	}

	return &Engine{
		index:  idx,
		path:   path,
		logger: logger.With(slog.String("index_path", path)),
	}, nil
}

// Submit indexes the documents by id in batches.
func (e *Engine) Submit(ctx context.Context, docs []domain.Document) error {
	batch := e.index.NewBatch()
	for i, d := range docs {
		id := d.ID()
		if id == "" {
			return fmt.Errorf("bleve submit: document %d has no id", i)
		}
		if err := batch.Index(id, flatten(d)); err != nil {
			return fmt.Errorf("bleve submit: %s: %w", id, err)
		}
		if batch.Size() >= MaxBatchSize {
			if err := e.flush(ctx, batch); err != nil {
				return err
			}
			batch.Reset()
		}
	}
	if batch.Size() > 0 {
		if err := e.flush(ctx, batch); err != nil {
			return err
		}
	}
	e.logger.DebugContext(ctx, "submitted documents", slog.Int("count", len(docs)))
	return nil
}

func (e *Engine) flush(ctx context.Context, batch *bleve.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.index.Batch(batch); err != nil {
		return fmt.Errorf("bleve: execute batch: %w", err)
	}
	return nil
}

// DeleteByField removes every document with an exact match on field.
func (e *Engine) DeleteByField(ctx context.Context, field, value string) error {
	for {
		ids, err := e.matchIDs(ctx, field, value)
		if err != nil {
			return fmt.Errorf("bleve delete: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}
		batch := e.index.NewBatch()
		for _, id := range ids {
			batch.Delete(id)
		}
		if err := e.flush(ctx, batch); err != nil {
			return fmt.Errorf("bleve delete: %w", err)
		}
	}
}

func (e *Engine) matchIDs(ctx context.Context, field, value string) ([]string, error) {
	q := bleve.NewTermQuery(value)
	q.SetField(field)
	req := bleve.NewSearchRequestOptions(q, pageSize, 0, false)

	res, err := e.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// Find returns the stored documents with an exact match on field, ordered by id.
func (e *Engine) Find(ctx context.Context, field, value string) ([]domain.Document, error) {
	q := bleve.NewTermQuery(value)
	q.SetField(field)
	req := bleve.NewSearchRequestOptions(q, pageSize, 0, false)
	req.Fields = []string{"*"}

	res, err := e.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve find: %w", err)
	}

	docs := make([]domain.Document, 0, len(res.Hits))
	for _, hit := range res.Hits {
		d := domain.Document(hit.Fields)
		d[domain.FieldID] = hit.ID
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID() < docs[j].ID() })
	return docs, nil
}

// Count returns the number of stored documents.
func (e *Engine) Count() (uint64, error) {
	return e.index.DocCount()
}

// Ping verifies the index is open.
func (e *Engine) Ping(context.Context) error {
	if _, err := e.index.DocCount(); err != nil {
		return fmt.Errorf("bleve ping: %w", err)
	}
	return nil
}

// Close closes the underlying index.
func (e *Engine) Close() error {
	if err := e.index.Close(); err != nil && !errors.Is(err, bleve.ErrorIndexClosed) {
		return fmt.Errorf("bleve close: %w", err)
	}
	return nil
}

// flatten converts values bleve cannot map natively.
func flatten(d domain.Document) map[string]any {
	out := make(map[string]any, len(d))
	for k, v := range d {
		if dec, ok := v.(decimal.Decimal); ok {
			out[k] = dec.InexactFloat64()
			continue
		}
		out[k] = v
	}
	return out
}
