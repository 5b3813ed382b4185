package engine

import (
	"context"

	"github.com/baker-beach/market-index/internal/domain"
)

// Engine is a search-engine index receiving product documents.
// Implementations may use Elasticsearch, an embedded bleve index, or memory.
// Calls are independent; there is no transaction across Delete and Submit.
type Engine interface {
	// Submit adds or replaces documents by id in one bulk request.
	Submit(ctx context.Context, docs []domain.Document) error

	// DeleteByField removes every document whose field equals value.
	DeleteByField(ctx context.Context, field, value string) error

	// Find returns the documents whose field equals value.
	Find(ctx context.Context, field, value string) ([]domain.Document, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}
