package translation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/baker-beach/market-index/internal/domain"
	"github.com/baker-beach/market-index/pkg/httpclient"
	"github.com/baker-beach/market-index/pkg/logger"
)

var brandKey = domain.MessageKey{Tag: "brand", Type: "text", Code: "acme", Fallback: "acme"}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := httpclient.DefaultConfig()
	cfg.MaxRetries = 0
	return New(srv.URL, httpclient.New(cfg))
}

func TestClient_Message(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/messages", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "brand", q.Get("tag"))
		assert.Equal(t, "text", q.Get("type"))
		assert.Equal(t, "acme", q.Get("code"))
		assert.Equal(t, "de-DE", q.Get("locale"))
		_, _ = w.Write([]byte(`{"data":{"message":"ACME Backwaren"}}`))
	})

	msg, err := c.Message(context.Background(), brandKey, language.MustParse("de-DE"))

	require.NoError(t, err)
	assert.Equal(t, "ACME Backwaren", msg)
}

func TestClient_Message_FallbackOnMissing(t *testing.T) {
	tests := []struct {
		name string
		h    http.HandlerFunc
	}{
		{"not found", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) }},
		{"empty message", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"data":{"message":""}}`)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := newTestClient(t, tt.h).Message(context.Background(), brandKey, language.English)

			require.NoError(t, err)
			assert.Equal(t, "acme", msg)
		})
	}
}

func TestClient_Message_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"INVALID_INPUT","message":"locale missing"}}`))
	})

	_, err := c.Message(context.Background(), brandKey, language.English)

	assert.ErrorContains(t, err, "locale missing")
}

func TestClient_Ping(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health/live", r.URL.Path)
	})
	assert.NoError(t, c.Ping(context.Background()))
}

type mockTranslator struct {
	mock.Mock
}

func (m *mockTranslator) Message(_ context.Context, key domain.MessageKey, locale language.Tag) (string, error) {
	args := m.Called(key.Code, locale.String())
	return args.String(0), args.Error(1)
}

func newCached(t *testing.T, inner domain.Translator) (*Cached, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return NewCached(inner, client, time.Minute, logger.Discard()), mr
}

func TestCached_StoresAndServes(t *testing.T) {
	inner := &mockTranslator{}
	inner.On("Message", "acme", "fr").Return("ACME Boulangerie", nil).Once()
	c, mr := newCached(t, inner)

	for i := 0; i < 3; i++ {
		msg, err := c.Message(context.Background(), brandKey, language.French)
		require.NoError(t, err)
		assert.Equal(t, "ACME Boulangerie", msg)
	}

	inner.AssertExpectations(t)
	got, err := mr.Get("market-index:msg:fr:brand:text:acme")
	require.NoError(t, err)
	assert.Equal(t, "ACME Boulangerie", got)
	assert.Equal(t, time.Minute, mr.TTL("market-index:msg:fr:brand:text:acme"))
}

func TestCached_InnerErrorNotCached(t *testing.T) {
	inner := &mockTranslator{}
	inner.On("Message", "acme", "en").Return("", errors.New("timeout")).Twice()
	c, mr := newCached(t, inner)

	for i := 0; i < 2; i++ {
		_, err := c.Message(context.Background(), brandKey, language.English)
		assert.Error(t, err)
	}
	inner.AssertExpectations(t)
	assert.Empty(t, mr.Keys())
}

func TestCached_RedisDownFallsThrough(t *testing.T) {
	inner := &mockTranslator{}
	inner.On("Message", "acme", "en").Return("ACME", nil)
	c, mr := newCached(t, inner)
	mr.Close()

	msg, err := c.Message(context.Background(), brandKey, language.English)

	require.NoError(t, err)
	assert.Equal(t, "ACME", msg)
}

func TestStatic_Message(t *testing.T) {
	s := NewStatic().
		Add(language.German, "brand", "acme", "ACME Backwaren").
		Add(language.MustParse("de-CH"), "brand", "acme", "ACME Beck")

	ctx := context.Background()
	msg, _ := s.Message(ctx, brandKey, language.MustParse("de-CH"))
	assert.Equal(t, "ACME Beck", msg)

	msg, _ = s.Message(ctx, brandKey, language.MustParse("de-AT"))
	assert.Equal(t, "ACME Backwaren", msg)

	msg, _ = s.Message(ctx, brandKey, language.Italian)
	assert.Equal(t, "acme", msg)
}
