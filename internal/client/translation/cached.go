package translation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"golang.org/x/text/language"

	"github.com/baker-beach/market-index/internal/domain"
)

const keyPrefix = "market-index:msg:"

var cacheLookups = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "translation_cache_lookups_total",
		Help: "Translation cache lookups by result (hit, miss, error)",
	},
	[]string{"result"},
)

// Cached keeps resolved messages in redis for a TTL. Redis failures are
// logged and the inner translator is asked directly.
type Cached struct {
	inner  domain.Translator
	client redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

var _ domain.Translator = (*Cached)(nil)

// NewCached wraps inner with a redis cache.
func NewCached(inner domain.Translator, client redis.Cmdable, ttl time.Duration, logger *slog.Logger) *Cached {
	return &Cached{inner: inner, client: client, ttl: ttl, logger: logger}
}

func cacheKey(key domain.MessageKey, locale language.Tag) string {
	parts := []string{locale.String(), key.Tag, key.Type, key.Code}
	parts = append(parts, key.Params...)
	return keyPrefix + strings.Join(parts, ":")
}

// Message implements domain.Translator.
func (c *Cached) Message(ctx context.Context, key domain.MessageKey, locale language.Tag) (string, error) {
	k := cacheKey(key, locale)

	msg, err := c.client.Get(ctx, k).Result()
	switch {
	case err == nil:
		cacheLookups.WithLabelValues("hit").Inc()
		return msg, nil
	case errors.Is(err, redis.Nil):
		cacheLookups.WithLabelValues("miss").Inc()
	default:
		cacheLookups.WithLabelValues("error").Inc()
		c.logger.WarnContext(ctx, "translation cache read failed", slog.String("error", err.Error()))
	}

	msg, err = c.inner.Message(ctx, key, locale)
	if err != nil {
		return "", err
	}

	if err := c.client.Set(ctx, k, msg, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "translation cache write failed", slog.String("error", err.Error()))
	}
	return msg, nil
}
