package inventory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baker-beach/market-index/internal/availability"
	"github.com/baker-beach/market-index/internal/domain"
	apperrors "github.com/baker-beach/market-index/pkg/errors"
	"github.com/baker-beach/market-index/pkg/httpclient"
	"github.com/baker-beach/market-index/pkg/logger"
)

var _ availability.InventoryLookup = (*Client)(nil)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := httpclient.DefaultConfig()
	cfg.MaxRetries = 0
	return New(srv.URL+"/", httpclient.NewResilient(cfg, httpclient.DefaultCircuitBreakerConfig("inventory-test"), logger.Discard()))
}

func TestClient_Status(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/inventory/SKU%2F1/status", r.URL.EscapedPath())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"stock":12,"out_of_stock_limit":2}}`))
	})

	status, err := c.Status(context.Background(), "SKU/1")

	require.NoError(t, err)
	assert.Equal(t, domain.InventoryStatus{Stock: 12, OutOfStockLimit: 2}, status)
}

func TestClient_Status_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"SKU-9"}}`))
	})

	_, err := c.Status(context.Background(), "SKU-9")

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestClient_Status_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.Status(context.Background(), "SKU-1")

	assert.ErrorContains(t, err, "server error 500")
}

func TestClient_Status_EmptyData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := c.Status(context.Background(), "SKU-1")

	assert.ErrorContains(t, err, "empty response")
}

func TestClient_FeedsCalculator(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"stock":3,"out_of_stock_limit":3}}`))
	})

	got := availability.NewCalculator(c, logger.Discard()).Calculate(context.Background(), "SKU-1", []string{"default"})

	assert.Equal(t, availability.Availability{MOQ: 0, Available: 0}, got["default"])
}
