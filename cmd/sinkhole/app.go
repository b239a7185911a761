package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/haukened/dns-sinkhole/internal/dns/common/clock"
	"github.com/haukened/dns-sinkhole/internal/dns/common/log"
	"github.com/haukened/dns-sinkhole/internal/dns/common/metrics"
	"github.com/haukened/dns-sinkhole/internal/dns/config"
	"github.com/haukened/dns-sinkhole/internal/dns/gateways/admin"
	"github.com/haukened/dns-sinkhole/internal/dns/gateways/feed"
	"github.com/haukened/dns-sinkhole/internal/dns/gateways/invalidation"
	"github.com/haukened/dns-sinkhole/internal/dns/gateways/transport"
	"github.com/haukened/dns-sinkhole/internal/dns/gateways/upstream"
	"github.com/haukened/dns-sinkhole/internal/dns/gateways/wire"
	"github.com/haukened/dns-sinkhole/internal/dns/repos/blocklist"
	"github.com/haukened/dns-sinkhole/internal/dns/repos/blocklist/bloom"
	"github.com/haukened/dns-sinkhole/internal/dns/repos/blocklist/bolt"
	"github.com/haukened/dns-sinkhole/internal/dns/repos/blocklist/lru"
	"github.com/haukened/dns-sinkhole/internal/dns/repos/blocklist/sqlstore"
	"github.com/haukened/dns-sinkhole/internal/dns/services/ingest"
	"github.com/haukened/dns-sinkhole/internal/dns/services/resolver"
)

const defaultShutdownTimeout = 10 * time.Second

// Application holds all the components of the sinkhole.
type Application struct {
	config    *config.AppConfig
	logger    log.Logger
	codec     wire.DNSCodec
	store     blocklist.Store
	repo      blocklist.Repository
	resolver  *resolver.Resolver
	scheduler *ingest.Scheduler
	admin     *admin.Server
	redis     *redis.Client
	bus       *invalidation.Bus
	registry  *prometheus.Registry

	transports []transport.ServerTransport
	// ready is closed once every listener is bound.
	ready chan struct{}
}

// buildApplication constructs all components and wires them together.
func buildApplication(ctx context.Context, cfg *config.AppConfig, logger log.Logger) (_ *Application, err error) {
	app := &Application{
		config:   cfg,
		logger:   logger,
		codec:    wire.NewCodec(logger),
		registry: prometheus.NewRegistry(),
		ready:    make(chan struct{}),
	}
	defer func() {
		if err != nil {
			app.close()
		}
	}()

	app.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := metrics.NewPrometheus(app.registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	app.store, err = openStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open blocklist store: %w", err)
	}

	app.repo, err = buildRepository(ctx, cfg, app.store, app.registry, recorder, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build blocklist repository: %w", err)
	}

	forwarder, err := upstream.NewForwarder(upstream.Options{
		Servers: cfg.Upstream.Servers,
		Timeout: cfg.Upstream.Timeout,
		Logger:  log.Component(logger, "upstream"),
		Metrics: recorder,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream forwarder: %w", err)
	}
	logger.Info(map[string]any{
		"servers": forwarder.Servers(),
		"timeout": cfg.Upstream.Timeout.String(),
	}, "Upstream forwarder configured")

	app.resolver = resolver.NewResolver(resolver.ResolverOptions{
		Blocklist: app.repo,
		Upstream:  forwarder,
		Logger:    log.Component(logger, "resolver"),
		Metrics:   recorder,
		BlockTTL:  cfg.Blocklist.TTL,
		NullIPv4:  parseAddr(cfg.Blocklist.NullIPv4),
		NullIPv6:  parseAddr(cfg.Blocklist.NullIPv6),
	})

	ingestLogger := log.Component(logger, "ingest")
	pipeline := newPipeline(cfg, app.store, recorder, ingestLogger)
	pipeline.AddInvalidator(ingest.InvalidatorFunc(app.repo.Invalidate))

	if cfg.Redis.URL != "" {
		app.redis, err = invalidation.NewClient(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		app.bus = invalidation.NewBus(app.redis, cfg.Redis.Channel, log.Component(logger, "invalidation"))
		pipeline.AddInvalidator(app.bus)
		logger.Info(map[string]any{"channel": cfg.Redis.Channel}, "Cross-process invalidation enabled")
	}

	app.scheduler = ingest.NewScheduler(pipeline, cfg.BlocklistFeeds(), cfg.Ingest.Interval, ingestLogger)
	app.scheduler.SkipInitial = !cfg.Ingest.OnStart

	if cfg.Admin.Addr != "" {
		app.admin = admin.NewServer(admin.Options{
			Addr:       cfg.Admin.Addr,
			Repository: app.repo,
			Ingester:   app.scheduler,
			Gatherer:   app.registry,
			Logger:     log.Component(logger, "admin"),
		})
	}
	return app, nil
}

// openStore opens the blocklist store selected by blocklist.driver.
func openStore(ctx context.Context, cfg *config.AppConfig, logger log.Logger) (blocklist.Store, error) {
	switch cfg.Blocklist.Driver {
	case "bolt":
		if err := os.MkdirAll(filepath.Dir(cfg.Blocklist.Path), 0o750); err != nil {
			return nil, err
		}
		logger.Info(map[string]any{"path": cfg.Blocklist.Path}, "Opening embedded blocklist store")
		return bolt.New(cfg.Blocklist.Path, clock.RealClock{})
	case "postgres":
		var hostResolver sqlstore.HostResolver
		if cfg.Database.Resolver != "" {
			hostResolver = sqlstore.NewPinnedResolver(cfg.Database.Resolver, cfg.Upstream.Timeout)
		}
		return sqlstore.Open(ctx, sqlstore.Config{
			Host:         cfg.Database.Host,
			Port:         cfg.Database.Port,
			User:         cfg.Database.User,
			Password:     cfg.Database.Password,
			Name:         cfg.Database.Name,
			SSLMode:      cfg.Database.SSLMode,
			MaxOpenConns: cfg.Database.MaxOpenConns,
		}, hostResolver, logger)
	default:
		logger.Warn(nil, "Blocklist store disabled, nothing will be blocked")
		return blocklist.NoopStore{}, nil
	}
}

func buildRepository(ctx context.Context, cfg *config.AppConfig, store blocklist.Store, reg prometheus.Registerer, recorder metrics.Recorder, logger log.Logger) (blocklist.Repository, error) {
	cache, err := lru.New(cfg.Cache.Size, cfg.Cache.TTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create decision cache: %w", err)
	}
	if err := metrics.RegisterCacheSize(reg, cache.Len); err != nil {
		return nil, err
	}

	var factory blocklist.BloomFactory
	if cfg.Cache.BloomFPRate > 0 {
		factory = bloom.NewFactory()
	}
	logger.Info(map[string]any{
		"size":             cfg.Cache.Size,
		"ttl":              cfg.Cache.TTL.String(),
		"bloom_fp_rate":    cfg.Cache.BloomFPRate,
		"match_subdomains": cfg.Blocklist.MatchSubdomains,
	}, "Block decision cache configured")

	return blocklist.NewRepository(ctx, blocklist.Options{
		Store:           store,
		Cache:           cache,
		BloomFactory:    factory,
		BloomFPRate:     cfg.Cache.BloomFPRate,
		MatchSubdomains: cfg.Blocklist.MatchSubdomains,
		Logger:          log.Component(logger, "blocklist"),
		Metrics:         recorder,
	})
}

func newPipeline(cfg *config.AppConfig, store blocklist.Store, recorder metrics.Recorder, logger log.Logger) *ingest.Pipeline {
	fetcher := feed.NewHTTPFetcher(feed.Options{
		UserAgent: cfg.Ingest.UserAgent,
		MaxBytes:  cfg.Ingest.MaxBytes,
		Logger:    logger,
	})
	return ingest.NewPipeline(ingest.Options{
		Fetcher:     fetcher,
		Store:       store,
		Logger:      logger,
		Metrics:     recorder,
		Concurrency: cfg.Ingest.Concurrency,
		FeedTimeout: cfg.Ingest.Timeout,
	})
}

func parseAddr(s string) netip.Addr {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}
	}
	return addr
}

// Run starts the DNS listeners, the admin API, scheduled ingestion and the
// invalidation subscriber, then blocks until ctx is cancelled.
func (app *Application) Run(ctx context.Context) error {
	defer app.close()

	if err := app.start(ctx); err != nil {
		app.stop(context.Background())
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := app.scheduler.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if app.bus != nil {
		g.Go(func() error {
			app.bus.Subscribe(gctx, app.repo.Invalidate)
			return nil
		})
	}
	close(app.ready)

	<-ctx.Done()
	app.logger.Info(nil, "Shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	app.stop(shutdownCtx)

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		app.logger.Info(nil, "Graceful shutdown completed")
		return err
	case <-shutdownCtx.Done():
		app.logger.Warn(map[string]any{"timeout": defaultShutdownTimeout.String()}, "Shutdown timeout exceeded")
		return fmt.Errorf("shutdown timeout")
	}
}

func (app *Application) start(ctx context.Context) error {
	srv := app.config.Server
	udp, err := transport.Listen(ctx, transport.ListenConfig{
		Type:         transport.TransportUDP,
		Host:         srv.Host,
		Port:         srv.Port,
		FallbackPort: srv.FallbackPort,
		QueryTimeout: srv.QueryTimeout,
	}, app.codec, app.logger, app.resolver)
	if err != nil {
		return fmt.Errorf("failed to start UDP transport: %w", err)
	}
	app.transports = append(app.transports, udp)

	if srv.TCP {
		// TCP follows UDP onto whatever port it actually bound.
		_, portStr, err := net.SplitHostPort(udp.Address())
		if err != nil {
			return err
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return err
		}
		tcp, err := transport.Listen(ctx, transport.ListenConfig{
			Type:         transport.TransportTCP,
			Host:         srv.Host,
			Port:         port,
			QueryTimeout: srv.QueryTimeout,
		}, app.codec, app.logger, app.resolver)
		if err != nil {
			return fmt.Errorf("failed to start TCP transport: %w", err)
		}
		app.transports = append(app.transports, tcp)
	}

	for _, t := range app.transports {
		app.logger.Info(map[string]any{"address": t.Address()}, "DNS server started")
	}

	if app.admin != nil {
		if err := app.admin.Start(); err != nil {
			return fmt.Errorf("failed to start admin API: %w", err)
		}
	}
	return nil
}

func (app *Application) stop(ctx context.Context) {
	for _, t := range app.transports {
		if err := t.Stop(); err != nil {
			app.logger.Warn(map[string]any{"error": err}, "Error during transport shutdown")
		}
	}
	if app.admin != nil {
		if err := app.admin.Stop(ctx); err != nil {
			app.logger.Warn(map[string]any{"error": err}, "Error during admin API shutdown")
		}
	}
}

// close releases the store and the redis client.
func (app *Application) close() {
	if app.redis != nil {
		_ = app.redis.Close()
		app.redis = nil
	}
	if app.store != nil {
		if err := app.store.Close(); err != nil {
			app.logger.Warn(map[string]any{"error": err}, "Error closing blocklist store")
		}
		app.store = nil
	}
}

// DNSAddress returns the bound UDP address once Run has started the listeners.
func (app *Application) DNSAddress() string {
	if len(app.transports) == 0 {
		return ""
	}
	return app.transports[0].Address()
}
