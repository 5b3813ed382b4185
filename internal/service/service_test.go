package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/baker-beach/market-index/internal/availability"
	"github.com/baker-beach/market-index/internal/document"
	"github.com/baker-beach/market-index/internal/domain"
	"github.com/baker-beach/market-index/internal/engine"
	"github.com/baker-beach/market-index/internal/engine/memory"
	apperrors "github.com/baker-beach/market-index/pkg/errors"
	"github.com/baker-beach/market-index/pkg/kafka"
	"github.com/baker-beach/market-index/pkg/logger"
	"github.com/baker-beach/market-index/pkg/pagination"
)

var (
	indexTime = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	horizon   = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
)

type fixture struct {
	svc     *IndexService
	live    *memory.Engine
	archive *memory.Engine
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	live, archive := memory.New("live"), memory.New("archive")
	reg := engine.NewRegistry()
	reg.Register("memory://live", live)
	reg.Register("memory://archive", archive)

	ic := &domain.IndexContext{
		Shop:        "shop",
		Locales:     []language.Tag{language.German},
		Currencies:  []string{"EUR"},
		PriceGroups: []string{"default"},
		Addresses: map[string]string{
			"live":     "memory://live",
			"archived": "memory://archive",
		},
		DefaultIndex: "live",
		Horizon:      horizon,
	}
	calc := availability.NewCalculator(nil, logger.Discard())
	asm := document.NewAssembler(document.DefaultSchema(), nil, calc, logger.Discard())

	svc := NewIndexService(asm, reg, ic, opts, logger.Discard())
	svc.now = func() time.Time { return indexTime }
	return &fixture{svc: svc, live: live, archive: archive}
}

func product(code, status string) domain.Product {
	return domain.Product{
		Code:   code,
		Type:   "product",
		Status: status,
		Prices: []domain.Price{
			{Currency: "EUR", Group: "default", Value: decimal.RequireFromString("10.00")},
			{Currency: "EUR", Group: "default", Value: decimal.RequireFromString("8.00"), Start: ptr(time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC))},
		},
	}
}

func ptr[T any](v T) *T { return &v }

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []*kafka.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, evt *kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, evt)
	return p.err
}

type failingEngine struct {
	*memory.Engine
	submitErr error
	deleteErr error
}

func (f failingEngine) Submit(ctx context.Context, docs []domain.Document) error {
	if f.submitErr != nil {
		return f.submitErr
	}
	return f.Engine.Submit(ctx, docs)
}

func (f failingEngine) DeleteByField(ctx context.Context, field, value string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Engine.DeleteByField(ctx, field, value)
}

type stubSource struct {
	products []domain.Product
	listErr  error
	pages    int
}

func (s *stubSource) Get(_ context.Context, code string) (*domain.Product, error) {
	for i := range s.products {
		if s.products[i].Code == code {
			p := s.products[i]
			return &p, nil
		}
	}
	return nil, apperrors.NotFound("product", code)
}

func (s *stubSource) List(_ context.Context, params pagination.Params) (pagination.Page[domain.Product], error) {
	if s.listErr != nil {
		return pagination.Page[domain.Product]{}, s.listErr
	}
	s.pages++
	from := min(params.Offset(), len(s.products))
	to := min(from+params.PerPage, len(s.products))
	return pagination.NewPage(s.products[from:to], len(s.products), params), nil
}

func TestIndexService_Build(t *testing.T) {
	f := newFixture(t, Options{})
	p := product("SKU-1", "live")

	docs, err := f.svc.Build(context.Background(), &p)

	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "10.00", docs[0]["eur_default_price"].(decimal.Decimal).StringFixed(2))
	assert.Equal(t, "8.00", docs[1]["eur_default_price"].(decimal.Decimal).StringFixed(2))
	assert.Zero(t, f.live.Len(), "build must not touch the index")
}

func TestIndexService_Build_InvalidProduct(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.svc.Build(context.Background(), &domain.Product{})

	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestIndexService_IndexProduct_ReplacesDocuments(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	require.NoError(t, f.live.Submit(ctx, []domain.Document{
		{domain.FieldID: "stale", "code": "SKU-1"},
		{domain.FieldID: "other", "code": "SKU-2"},
	}))

	p := product("SKU-1", "live")
	res, err := f.svc.IndexProduct(ctx, &p)

	require.NoError(t, err)
	assert.Equal(t, IndexResult{Code: "SKU-1", Shop: "shop", Index: "live", Documents: 2}, res)
	_, stale := f.live.Get("stale")
	assert.False(t, stale)
	docs, err := f.live.Find(ctx, "code", "SKU-1")
	require.NoError(t, err)
	assert.Len(t, docs, 2)
	_, other := f.live.Get("other")
	assert.True(t, other)
}

func TestIndexService_IndexProduct_Idempotent(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	p := product("SKU-1", "live")

	_, err := f.svc.IndexProduct(ctx, &p)
	require.NoError(t, err)
	_, err = f.svc.IndexProduct(ctx, &p)
	require.NoError(t, err)

	assert.Equal(t, 2, f.live.Len())
}

func TestIndexService_IndexProduct_RoutesByStatus(t *testing.T) {
	tests := []struct {
		status    string
		wantIndex string
	}{
		{"archived", "archived"},
		{"live", "live"},
		{"draft", "live"},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			f := newFixture(t, Options{})
			p := product("SKU-1", tt.status)

			res, err := f.svc.IndexProduct(context.Background(), &p)

			require.NoError(t, err)
			assert.Equal(t, tt.wantIndex, res.Index)
			if tt.wantIndex == "archived" {
				assert.Equal(t, 2, f.archive.Len())
				assert.Zero(t, f.live.Len())
			} else {
				assert.Equal(t, 2, f.live.Len())
				assert.Zero(t, f.archive.Len())
			}
		})
	}
}

func TestIndexService_IndexProduct_NotIndexedRemovesDocuments(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	p := product("SKU-1", "live")
	_, err := f.svc.IndexProduct(ctx, &p)
	require.NoError(t, err)

	p.Indexed = ptr(false)
	res, err := f.svc.IndexProduct(ctx, &p)

	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Zero(t, res.Documents)
	assert.Zero(t, f.live.Len())
}

func TestIndexService_IndexProduct_MissingCode(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.svc.IndexProduct(context.Background(), &domain.Product{Status: "live"})

	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestIndexService_IndexProduct_SubmitFailure(t *testing.T) {
	f := newFixture(t, Options{PublishTopic: "index.product.published"})
	pub := &recordingPublisher{}
	f.svc.WithPublisher(pub)
	f.svc.engines.Register("memory://live", failingEngine{Engine: f.live, submitErr: errors.New("bulk rejected")})

	p := product("SKU-1", "live")
	_, err := f.svc.IndexProduct(context.Background(), &p)

	assert.ErrorContains(t, err, "bulk rejected")
	assert.Empty(t, pub.events)
}

func TestIndexService_IndexProduct_PublishesEvent(t *testing.T) {
	f := newFixture(t, Options{PublishTopic: "index.product.published"})
	pub := &recordingPublisher{}
	f.svc.WithPublisher(pub)

	ctx := logger.WithCorrelationID(context.Background(), "corr-1")
	p := product("SKU-1", "live")
	_, err := f.svc.IndexProduct(ctx, &p)
	require.NoError(t, err)

	require.Len(t, pub.events, 1)
	assert.Equal(t, "index.product.published", pub.topics[0])
	evt := pub.events[0]
	assert.Equal(t, EventProductPublished, evt.EventType)
	assert.Equal(t, "SKU-1", evt.AggregateID)
	assert.Equal(t, "corr-1", evt.CorrelationID)

	var res IndexResult
	require.NoError(t, evt.UnmarshalData(&res))
	assert.Equal(t, 2, res.Documents)
	assert.Equal(t, "shop", res.Shop)
	assert.Equal(t, "live", res.Index)
}

func TestIndexService_IndexProduct_DeleteFailureStillSubmits(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	p := product("SKU-1", "live")
	_, err := f.svc.IndexProduct(ctx, &p)
	require.NoError(t, err)
	f.svc.engines.Register("memory://live", failingEngine{Engine: f.live, deleteErr: errors.New("delete-by-query timed out")})

	p.Prices[0].Value = decimal.RequireFromString("12.00")
	res, err := f.svc.IndexProduct(ctx, &p)

	require.NoError(t, err)
	assert.Equal(t, 2, res.Documents)
	assert.Equal(t, 2, f.live.Len())
	docs, err := f.live.Find(ctx, "code", "SKU-1")
	require.NoError(t, err)
	prices := []string{}
	for _, d := range docs {
		prices = append(prices, d["eur_default_price"].(decimal.Decimal).StringFixed(2))
	}
	assert.ElementsMatch(t, []string{"12.00", "8.00"}, prices)
}

func TestIndexService_IndexProduct_DeleteFailureWithoutDocuments(t *testing.T) {
	f := newFixture(t, Options{})
	f.svc.engines.Register("memory://live", failingEngine{Engine: f.live, deleteErr: errors.New("delete-by-query timed out")})
	p := product("SKU-1", "live")
	p.Indexed = ptr(false)

	_, err := f.svc.IndexProduct(context.Background(), &p)

	assert.ErrorContains(t, err, "delete-by-query timed out")
}

func TestIndexService_IndexProduct_PublishErrorIgnored(t *testing.T) {
	f := newFixture(t, Options{PublishTopic: "index.product.published"})
	f.svc.WithPublisher(&recordingPublisher{err: errors.New("broker down")})

	p := product("SKU-1", "live")
	_, err := f.svc.IndexProduct(context.Background(), &p)

	assert.NoError(t, err)
}

func TestIndexService_IndexProducts_Summary(t *testing.T) {
	f := newFixture(t, Options{Workers: 4})
	hidden := product("SKU-3", "live")
	hidden.Indexed = ptr(false)
	products := []domain.Product{
		product("SKU-1", "live"),
		product("SKU-2", "archived"),
		hidden,
		{Status: "live"},
	}

	sum := f.svc.IndexProducts(context.Background(), products)

	assert.Equal(t, 4, sum.Total)
	assert.Equal(t, 2, sum.Indexed)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 4, sum.Documents)
	require.Len(t, sum.Failures, 1)
	assert.Contains(t, sum.Failures[0].Error, "product code is required")
}

func TestIndexService_IndexProducts_CancelledContext(t *testing.T) {
	f := newFixture(t, Options{Workers: 2})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum := f.svc.IndexProducts(ctx, []domain.Product{product("SKU-1", "live"), product("SKU-2", "live")})

	assert.Equal(t, 2, sum.Failed)
	assert.Zero(t, f.live.Len())
}

func TestIndexService_IndexByCode(t *testing.T) {
	f := newFixture(t, Options{})
	f.svc.WithSource(&stubSource{products: []domain.Product{product("SKU-1", "live")}})

	res, err := f.svc.IndexByCode(context.Background(), "SKU-1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Documents)

	_, err = f.svc.IndexByCode(context.Background(), "SKU-404")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestIndexService_IndexByCode_NoSource(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.svc.IndexByCode(context.Background(), "SKU-1")

	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
}

func TestIndexService_DeleteProduct(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	live, archived := product("SKU-1", "live"), product("SKU-1", "archived")
	_, err := f.svc.IndexProduct(ctx, &live)
	require.NoError(t, err)
	_, err = f.svc.IndexProduct(ctx, &archived)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteProduct(ctx, "SKU-1", "archived"))
	assert.Zero(t, f.archive.Len())
	assert.Equal(t, 2, f.live.Len())

	require.NoError(t, f.svc.DeleteProduct(ctx, "SKU-1", ""))
	assert.Zero(t, f.live.Len())
}

func TestIndexService_DeleteProduct_Validation(t *testing.T) {
	f := newFixture(t, Options{})

	assert.ErrorIs(t, f.svc.DeleteProduct(context.Background(), "", "live"), apperrors.ErrInvalidInput)
}

func TestIndexService_Reindex_WalksAllPages(t *testing.T) {
	f := newFixture(t, Options{Workers: 2, ReindexPageSize: 2})
	src := &stubSource{}
	for _, code := range []string{"A", "B", "C", "D", "E"} {
		src.products = append(src.products, product(code, "live"))
	}
	f.svc.WithSource(src)

	sum, err := f.svc.Reindex(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, src.pages)
	assert.Equal(t, 5, sum.Total)
	assert.Equal(t, 5, sum.Indexed)
	assert.Equal(t, 10, f.live.Len())
}

func TestIndexService_Reindex_ListError(t *testing.T) {
	f := newFixture(t, Options{})
	f.svc.WithSource(&stubSource{listErr: errors.New("connection reset")})

	_, err := f.svc.Reindex(context.Background())

	assert.ErrorContains(t, err, "connection reset")
	assert.False(t, f.svc.reindexing.Load())
}

func TestIndexService_Reindex_AlreadyRunning(t *testing.T) {
	f := newFixture(t, Options{})
	f.svc.WithSource(&stubSource{})
	f.svc.reindexing.Store(true)

	_, err := f.svc.Reindex(context.Background())

	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestIndexService_Reindex_NoSource(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.svc.Reindex(context.Background())

	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
}

func TestIndexService_Documents(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	p := product("SKU-1", "archived")
	_, err := f.svc.IndexProduct(ctx, &p)
	require.NoError(t, err)

	docs, err := f.svc.Documents(ctx, "SKU-1", "archived")

	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, indexTime, docs[0].ActiveFrom())
	assert.Equal(t, time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), docs[1].ActiveFrom())
}

func TestIndexService_Documents_NotFound(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.svc.Documents(context.Background(), "SKU-1", "")

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestIndexService_Documents_MissingCode(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.svc.Documents(context.Background(), " ", "live")

	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

type panickingLookup struct{ code string }

func (l panickingLookup) Status(_ context.Context, code string) (domain.InventoryStatus, error) {
	if code == l.code {
		panic("nil stock record")
	}
	return domain.InventoryStatus{Stock: 3}, nil
}

func TestIndexService_IndexProducts_PanicFailsOnlyThatProduct(t *testing.T) {
	f := newFixture(t, Options{Workers: 2})
	calc := availability.NewCalculator(panickingLookup{code: "SKU-2"}, logger.Discard())
	asm := document.NewAssembler(document.DefaultSchema(), nil, calc, logger.Discard())
	svc := NewIndexService(asm, f.svc.engines, f.svc.ic, Options{Workers: 2}, logger.Discard())

	sum := svc.IndexProducts(context.Background(), []domain.Product{
		product("SKU-1", "live"),
		product("SKU-2", "live"),
	})

	assert.Equal(t, 1, sum.Indexed)
	assert.Equal(t, 1, sum.Failed)
	require.Len(t, sum.Failures, 1)
	assert.Equal(t, "SKU-2", sum.Failures[0].Code)
	assert.Contains(t, sum.Failures[0].Error, "document assembly failed")
	assert.Equal(t, 2, f.live.Len())
}
