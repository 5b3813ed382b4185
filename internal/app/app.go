// Package app wires the indexer's dependencies and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/baker-beach/market-index/internal/availability"
	"github.com/baker-beach/market-index/internal/catalog"
	"github.com/baker-beach/market-index/internal/client/inventory"
	"github.com/baker-beach/market-index/internal/client/translation"
	"github.com/baker-beach/market-index/internal/config"
	"github.com/baker-beach/market-index/internal/document"
	"github.com/baker-beach/market-index/internal/domain"
	"github.com/baker-beach/market-index/internal/engine"
	"github.com/baker-beach/market-index/internal/event"
	handler "github.com/baker-beach/market-index/internal/handler/http"
	"github.com/baker-beach/market-index/internal/service"
	"github.com/baker-beach/market-index/pkg/database"
	"github.com/baker-beach/market-index/pkg/health"
	"github.com/baker-beach/market-index/pkg/httpclient"
	pkgkafka "github.com/baker-beach/market-index/pkg/kafka"
	"github.com/baker-beach/market-index/pkg/tracing"
)

const serviceName = "market-index"

var inventoryFallbacks = promauto.NewCounter(prometheus.CounterOpts{
	Name: "index_inventory_fallbacks_total",
	Help: "Inventory lookups that failed and marked a product unavailable",
})

// App wires together all dependencies and runs the indexer.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	service    *service.IndexService
	engines    *engine.Registry
	consumers  []*pkgkafka.Consumer
	httpServer *http.Server
	health     *health.Handler

	// closers release resources in reverse order of acquisition.
	closers []func() error
}

// NewApp creates a new application instance, initializing all dependencies.
// Resources acquired before a failure are released again.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	a := &App{cfg: cfg, logger: logger, health: health.NewHandler()}
	defer func() {
		if err != nil {
			_ = a.close()
		}
	}()

	shutdownTracer, err := tracing.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.onClose(func() error {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdownTracer(sctx)
	})

	ic, err := cfg.IndexContext()
	if err != nil {
		return nil, err
	}

	a.engines, err = engine.OpenAll(ctx, distinctAddresses(cfg.Addresses), OpenEngine(logger))
	if err != nil {
		return nil, err
	}
	a.onClose(a.engines.Close)
	a.health.Register("engines", a.engines.Ping)

	var rdb *redis.Client
	if cfg.RedisEnabled {
		rdb, err = database.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		a.onClose(rdb.Close)
		a.health.RegisterOptional("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		logger.Info("redis connected", slog.String("addr", cfg.Redis.Addr))
	}

	asm, err := a.newAssembler(cfg, rdb)
	if err != nil {
		return nil, err
	}

	a.service = service.NewIndexService(asm, a.engines, ic, service.Options{
		Workers:         cfg.Workers,
		ReindexRPS:      cfg.ReindexRPS,
		ReindexPageSize: cfg.ReindexPageSize,
		PublishTopic:    cfg.KafkaPublishTopic,
	}, logger)

	var repo *catalog.Repository
	if cfg.CatalogEnabled {
		repo, err = a.openCatalog(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.service.WithSource(repo)
	}

	if len(cfg.KafkaBrokers) > 0 {
		a.initKafka(cfg, rdb, repo)
	}

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      handler.NewRouter(a.service, a.health, cfg.DebugCIDRs, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return a, nil
}

// Preview builds the documents of p with the configured schema, translation
// and inventory collaborators. No index, database or broker is opened.
func Preview(ctx context.Context, cfg *config.Config, logger *slog.Logger, p *domain.Product) ([]domain.Document, error) {
	ic, err := cfg.IndexContext()
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, logger: logger, health: health.NewHandler()}
	asm, err := a.newAssembler(cfg, nil)
	if err != nil {
		return nil, err
	}
	return service.NewIndexService(asm, engine.NewRegistry(), ic, service.Options{}, logger).Build(ctx, p)
}

// Service returns the index service, e.g. for one-shot commands.
func (a *App) Service() *service.IndexService {
	return a.service
}

// newAssembler builds the document assembler with its translation and
// inventory collaborators. Collaborators without a URL are left out:
// translations fall back to raw codes and availability fails closed.
func (a *App) newAssembler(cfg *config.Config, rdb *redis.Client) (*document.Assembler, error) {
	schema, err := cfg.DocumentSchema()
	if err != nil {
		return nil, err
	}

	var inv availability.InventoryLookup
	if cfg.InventoryServiceURL != "" {
		inv = inventory.New(cfg.InventoryServiceURL, a.resilientClient(cfg, "inventory-service"))
	} else {
		a.logger.Warn("no inventory service configured, every product is indexed as unavailable")
	}
	calc := availability.NewCalculator(inv, a.logger)
	calc.OnFallback = func(string, error) { inventoryFallbacks.Inc() }

	var tr domain.Translator = translation.NewStatic()
	if cfg.TranslationServiceURL != "" {
		client := translation.New(cfg.TranslationServiceURL, a.resilientClient(cfg, "translation-service"))
		a.health.RegisterOptional("translation", client.Ping)
		tr = client
		if rdb != nil {
			tr = translation.NewCached(client, rdb, cfg.TranslationCacheTTL, a.logger)
		}
	}

	return document.NewAssembler(schema, tr, calc, a.logger), nil
}

func (a *App) resilientClient(cfg *config.Config, name string) *httpclient.CircuitBreakerClient {
	cb := cfg.CircuitBreaker
	cb.Name = name
	return httpclient.NewResilient(cfg.HTTPClient, cb, a.logger)
}

func (a *App) openCatalog(ctx context.Context, cfg *config.Config) (*catalog.Repository, error) {
	pool, err := database.NewPostgresPool(ctx, &cfg.Postgres, a.logger)
	if err != nil {
		return nil, fmt.Errorf("init catalog database: %w", err)
	}
	a.onClose(func() error { pool.Close(); return nil })

	if err := catalog.Migrate(ctx, pool, a.logger); err != nil {
		return nil, fmt.Errorf("migrate catalog: %w", err)
	}

	collector := database.NewPoolStatsCollector(pool, serviceName)
	if err := prometheus.Register(collector); err == nil {
		a.onClose(func() error { prometheus.Unregister(collector); return nil })
	}

	repo := catalog.NewRepository(pool, a.logger)
	a.health.RegisterOptional("postgres", repo.Ping)
	return repo, nil
}

// initKafka creates the event publisher and one consumer per topic. With
// redis available, processed event ids are shared between replicas.
func (a *App) initKafka(cfg *config.Config, rdb *redis.Client, repo *catalog.Repository) {
	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), a.logger)
	a.onClose(producer.Close)
	a.service.WithPublisher(producer)

	var dlq *pkgkafka.DLQProducer
	if cfg.KafkaDLQ {
		dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, a.logger)
		a.onClose(dlq.Close)
	}

	var store pkgkafka.IdempotencyStore = pkgkafka.NewMemoryIdempotencyStore(24 * time.Hour)
	if rdb != nil {
		store = pkgkafka.NewRedisIdempotencyStore(rdb, serviceName, 24*time.Hour)
	}

	events := event.NewConsumer(a.service, a.logger)
	if repo != nil {
		events.WithStore(repo)
	}

	for _, topic := range event.Topics() {
		c := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:  cfg.KafkaBrokers,
			GroupID:  cfg.KafkaGroupID,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 10e6,
		}, pkgkafka.IdempotentHandler(store, events.Handle, topic, cfg.KafkaGroupID, a.logger), a.logger)
		if dlq != nil {
			c.WithDLQ(dlq)
		}
		a.consumers = append(a.consumers, c)
	}

	a.health.RegisterOptional("kafka", func(ctx context.Context) error {
		return pkgkafka.PingBrokers(ctx, cfg.KafkaBrokers)
	})
	a.logger.Info("kafka consumers initialized",
		slog.Any("brokers", cfg.KafkaBrokers),
		slog.Int("topic_count", len(a.consumers)),
	)
}

// Run starts the HTTP server and Kafka consumers, blocking until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1+len(a.consumers))

	for _, c := range a.consumers {
		go func() {
			if err := c.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("kafka consumer %s: %w", c.Topic(), err)
			}
		}()
	}

	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	return errors.Join(runErr, a.Shutdown())
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error
	if a.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	for _, c := range a.consumers {
		if err := c.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	errs = append(errs, a.close())
	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) onClose(f func() error) {
	a.closers = append(a.closers, f)
}

func (a *App) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
