// Package event reacts to catalog and inventory events by reindexing the
// affected products.
package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/baker-beach/market-index/internal/domain"
	"github.com/baker-beach/market-index/internal/service"
	apperrors "github.com/baker-beach/market-index/pkg/errors"
	pkgkafka "github.com/baker-beach/market-index/pkg/kafka"
	"github.com/baker-beach/market-index/pkg/logger"
)

// Kafka topics consumed by the indexer. Event types equal the topic names.
const (
	TopicProductUpdated = "catalog.product.updated"
	TopicProductDeleted = "catalog.product.deleted"
	TopicStockChanged   = "inventory.stock.changed"
)

// Topics lists every topic the consumer handles.
func Topics() []string {
	return []string{TopicProductUpdated, TopicProductDeleted, TopicStockChanged}
}

// ProductUpdatedData carries either the full product or only its code. A
// code-only event makes the indexer load the product from the catalog.
type ProductUpdatedData struct {
	Code    string          `json:"code"`
	Product *domain.Product `json:"product,omitempty"`
}

// ProductDeletedData identifies a removed product. An empty status removes
// it from every index.
type ProductDeletedData struct {
	Code   string `json:"code"`
	Status string `json:"status,omitempty"`
}

// StockChangedData is published by the inventory service.
type StockChangedData struct {
	Code string `json:"code"`
}

// Indexer is the part of the index service driven by events.
type Indexer interface {
	IndexProduct(ctx context.Context, p *domain.Product) (service.IndexResult, error)
	IndexByCode(ctx context.Context, code string) (service.IndexResult, error)
	DeleteProduct(ctx context.Context, code, status string) error
}

// Store mirrors product snapshots so later reindexing sees the latest state.
type Store interface {
	Upsert(ctx context.Context, p *domain.Product) error
	Delete(ctx context.Context, code string) error
}

// Consumer handles Kafka events related to product changes.
type Consumer struct {
	indexer Indexer
	store   Store
	logger  *slog.Logger
}

// NewConsumer creates a new event consumer.
func NewConsumer(indexer Indexer, logger *slog.Logger) *Consumer {
	return &Consumer{indexer: indexer, logger: logger}
}

// WithStore keeps the catalog in sync with full product events.
func (c *Consumer) WithStore(s Store) *Consumer {
	c.store = s
	return c
}

// Handle processes a Kafka event based on its type.
func (c *Consumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.EventType {
	case TopicProductUpdated:
		return c.handleProductUpdated(ctx, event)
	case TopicProductDeleted:
		return c.handleProductDeleted(ctx, event)
	case TopicStockChanged:
		return c.handleStockChanged(ctx, event)
	default:
		c.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

func (c *Consumer) handleProductUpdated(ctx context.Context, event *pkgkafka.Event) error {
	var data ProductUpdatedData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal product.updated data: %w", err)
	}

	if data.Product == nil {
		return c.reindex(ctx, data.Code, "product.updated")
	}

	p := data.Product
	if p.Code == "" {
		p.Code = data.Code
	}
	if strings.TrimSpace(p.Code) == "" {
		return fmt.Errorf("product.updated event %s: %w", event.EventID, apperrors.ErrInvalidInput)
	}

	if c.store != nil {
		if err := c.store.Upsert(ctx, p); err != nil {
			return fmt.Errorf("store product %s: %w", p.Code, err)
		}
	}

	res, err := c.indexer.IndexProduct(ctx, p)
	if err != nil {
		return fmt.Errorf("index product from updated event: %w", err)
	}

	logger.WithContext(logger.WithProductCode(ctx, p.Code), c.logger).InfoContext(ctx, "re-indexed product from updated event",
		slog.String("index", res.Index),
		slog.Int("documents", res.Documents),
	)
	return nil
}

func (c *Consumer) handleProductDeleted(ctx context.Context, event *pkgkafka.Event) error {
	var data ProductDeletedData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal product.deleted data: %w", err)
	}

	if c.store != nil && data.Status == "" {
		if err := c.store.Delete(ctx, data.Code); err != nil {
			return fmt.Errorf("delete stored product %s: %w", data.Code, err)
		}
	}

	if err := c.indexer.DeleteProduct(ctx, data.Code, data.Status); err != nil {
		return fmt.Errorf("delete product from deleted event: %w", err)
	}

	c.logger.InfoContext(ctx, "deleted product from deleted event",
		slog.String("product_code", data.Code),
		slog.String("status", data.Status),
	)
	return nil
}

// handleStockChanged rebuilds the product so its availability fields are
// current.
func (c *Consumer) handleStockChanged(ctx context.Context, event *pkgkafka.Event) error {
	var data StockChangedData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal stock.changed data: %w", err)
	}
	return c.reindex(ctx, data.Code, "stock.changed")
}

// reindex loads code from the catalog. Products unknown to the catalog are
// skipped.
func (c *Consumer) reindex(ctx context.Context, code, source string) error {
	res, err := c.indexer.IndexByCode(ctx, code)
	if errors.Is(err, apperrors.ErrNotFound) {
		c.logger.WarnContext(ctx, "product of event not in catalog, skipping",
			slog.String("product_code", code),
			slog.String("event", source),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reindex product from %s event: %w", source, err)
	}

	c.logger.InfoContext(ctx, "re-indexed product from catalog",
		slog.String("product_code", code),
		slog.String("event", source),
		slog.Int("documents", res.Documents),
	)
	return nil
}
