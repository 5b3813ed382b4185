package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/baker-beach/market-index/internal/domain"
)

// Engine is an in-memory index keyed by document id.
// Thread-safe via sync.RWMutex.
type Engine struct {
	mu   sync.RWMutex
	name string
	docs map[string]domain.Document
}

// New creates a new in-memory index.
func New(name string) *Engine {
	return &Engine{
		name: name,
		docs: make(map[string]domain.Document),
	}
}

// Name returns the index name.
func (e *Engine) Name() string {
	return e.name
}

// Submit adds or replaces the documents by id.
func (e *Engine) Submit(_ context.Context, docs []domain.Document) error {
	for i, d := range docs {
		if d.ID() == "" {
			return fmt.Errorf("memory submit: document %d has no id", i)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, d := range docs {
		e.docs[d.ID()] = maps.Clone(d)
	}
	return nil
}

// DeleteByField removes every document whose field equals value.
func (e *Engine) DeleteByField(_ context.Context, field, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, d := range e.docs {
		if matches(d, field, value) {
			delete(e.docs, id)
		}
	}
	return nil
}

// Find returns matching documents ordered by id.
func (e *Engine) Find(_ context.Context, field, value string) ([]domain.Document, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]domain.Document, 0)
	for _, d := range e.docs {
		if matches(d, field, value) {
			out = append(out, maps.Clone(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}

// Get returns the document with the given id.
func (e *Engine) Get(id string) (domain.Document, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	d, ok := e.docs[id]
	if !ok {
		return nil, false
	}
	return maps.Clone(d), true
}

// Len returns the number of stored documents.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.docs)
}

// Ping always succeeds.
func (e *Engine) Ping(context.Context) error { return nil }

// Close drops all documents.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.docs = make(map[string]domain.Document)
	return nil
}

func matches(d domain.Document, field, value string) bool {
	switch v := d[field].(type) {
	case string:
		return v == value
	case []string:
		return slices.Contains(v, value)
	default:
		return false
	}
}
