package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/baker-beach/market-index/internal/document"
	"github.com/baker-beach/market-index/internal/domain"
	pkgconfig "github.com/baker-beach/market-index/pkg/config"
	"github.com/baker-beach/market-index/pkg/database"
	"github.com/baker-beach/market-index/pkg/httpclient"
	"github.com/baker-beach/market-index/pkg/tracing"
)

// Config holds all configuration for the indexer.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	HTTPPort int `env:"INDEXER_HTTP_PORT" envDefault:"8011"`
	// DebugCIDRs may reach /debug/pprof. Empty disables the endpoints.
	DebugCIDRs []string `env:"DEBUG_ALLOWED_CIDRS" envDefault:"127.0.0.0/8,::1/128" envSeparator:","`

	// Index layout
	ShopCode    string            `env:"SHOP_CODE" envDefault:"market"`
	Locales     []string          `env:"INDEX_LOCALES" envDefault:"de_DE,en_GB" envSeparator:","`
	Currencies  []string          `env:"INDEX_CURRENCIES" envDefault:"EUR" envSeparator:","`
	PriceGroups []string          `env:"INDEX_PRICE_GROUPS" envDefault:"default" envSeparator:","`
	Addresses   map[string]string `env:"INDEX_ADDRESSES" envDefault:"live=memory://live" envSeparator:"," envKeyValSeparator:"="`
	// DefaultIndex receives products whose status has no address of its own.
	DefaultIndex string    `env:"INDEX_DEFAULT" envDefault:"live"`
	Horizon      time.Time `env:"INDEX_HORIZON" envDefault:"2100-01-01T00:00:00Z"`
	Schema       string    `env:"INDEX_SCHEMA" envDefault:"default"`
	AssetPurpose string    `env:"ASSET_PURPOSE" envDefault:"listing"`
	AssetSize    string    `env:"ASSET_SIZE" envDefault:"m"`

	// Throughput
	Workers         int     `env:"INDEX_WORKERS" envDefault:"8"`
	ReindexRPS      float64 `env:"REINDEX_RPS" envDefault:"50"`
	ReindexPageSize int     `env:"REINDEX_PAGE_SIZE" envDefault:"100"`

	// Collaborators. An empty URL disables the client.
	InventoryServiceURL   string        `env:"INVENTORY_SERVICE_URL" envDefault:"http://localhost:8006"`
	TranslationServiceURL string        `env:"TRANSLATION_SERVICE_URL"`
	TranslationCacheTTL   time.Duration `env:"TRANSLATION_CACHE_TTL" envDefault:"10m"`
	RedisEnabled          bool          `env:"REDIS_ENABLED" envDefault:"false"`
	CatalogEnabled        bool          `env:"CATALOG_ENABLED" envDefault:"false"`

	HTTPClient     httpclient.Config               `envPrefix:"HTTP_CLIENT_"`
	CircuitBreaker httpclient.CircuitBreakerConfig `envPrefix:"CB_"`
	Redis          database.RedisConfig
	Postgres       database.PostgresConfig
	Tracing        tracing.Config

	// Kafka. No brokers means no consumers.
	KafkaBrokers      []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaGroupID      string   `env:"KAFKA_GROUP_ID" envDefault:"market-index"`
	KafkaPublishTopic string   `env:"KAFKA_PUBLISH_TOPIC" envDefault:"index.product.published"`
	KafkaDLQ          bool     `env:"KAFKA_DLQ_ENABLED" envDefault:"true"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load indexer config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP port: %d", c.HTTPPort))
	}
	if _, err := c.locales(); err != nil {
		errs = append(errs, err)
	}
	if len(c.Currencies) == 0 {
		errs = append(errs, errors.New("INDEX_CURRENCIES is required"))
	}
	if len(c.PriceGroups) == 0 {
		errs = append(errs, errors.New("INDEX_PRICE_GROUPS is required"))
	}
	if len(c.Addresses) == 0 {
		errs = append(errs, errors.New("INDEX_ADDRESSES is required"))
	}
	for name, addr := range c.Addresses {
		if _, err := url.Parse(addr); err != nil {
			errs = append(errs, fmt.Errorf("invalid address for index %q: %w", name, err))
		}
	}
	if _, ok := c.Addresses[c.DefaultIndex]; !ok {
		errs = append(errs, fmt.Errorf("INDEX_DEFAULT %q has no entry in INDEX_ADDRESSES", c.DefaultIndex))
	}
	if c.Horizon.IsZero() {
		errs = append(errs, errors.New("INDEX_HORIZON is required"))
	}
	if _, err := document.SchemaByName(c.Schema); err != nil {
		errs = append(errs, err)
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("INDEX_WORKERS must be positive: %d", c.Workers))
	}
	if c.ReindexRPS <= 0 {
		errs = append(errs, fmt.Errorf("REINDEX_RPS must be positive: %v", c.ReindexRPS))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATE must be within [0,1]: %v", c.Tracing.SampleRate))
	}
	return errors.Join(errs...)
}

// locales parses INDEX_LOCALES. Both "de_DE" and "de-DE" are accepted.
func (c *Config) locales() ([]language.Tag, error) {
	if len(c.Locales) == 0 {
		return nil, errors.New("INDEX_LOCALES is required")
	}
	tags := make([]language.Tag, 0, len(c.Locales))
	for _, l := range c.Locales {
		tag, err := language.Parse(strings.ReplaceAll(strings.TrimSpace(l), "_", "-"))
		if err != nil {
			return nil, fmt.Errorf("invalid locale %q: %w", l, err)
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

// IndexContext builds the read-only parameters shared by every indexing run.
func (c *Config) IndexContext() (*domain.IndexContext, error) {
	tags, err := c.locales()
	if err != nil {
		return nil, err
	}
	return &domain.IndexContext{
		Shop:         c.ShopCode,
		Locales:      tags,
		Currencies:   c.Currencies,
		PriceGroups:  c.PriceGroups,
		Addresses:    c.Addresses,
		DefaultIndex: c.DefaultIndex,
		Horizon:      c.Horizon.UTC(),
	}, nil
}

// DocumentSchema returns the configured schema with the asset settings applied.
func (c *Config) DocumentSchema() (document.Schema, error) {
	s, err := document.SchemaByName(c.Schema)
	if err != nil {
		return document.Schema{}, err
	}
	s.AssetPurpose = c.AssetPurpose
	s.AssetSize = c.AssetSize
	return s, nil
}
