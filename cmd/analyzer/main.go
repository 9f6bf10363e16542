// Command analyzer starts the Sentinel text analysis service.
//
// It serves synchronous analysis, uploads, similarity, related-document
// ranking and exports over HTTP, consumes queued documents from Kafka,
// caches reports in Redis, persists them to PostgreSQL and aggregates usage
// analytics. Postgres, Redis and Kafka are each optional; disabling one
// turns off the features that need it.
//
// Usage:
//
//	go run ./cmd/analyzer [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/analysis/cache"
	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/analysis/consumer"
	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/analysis/handler"
	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/analysis/store"
	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/analytics/snapshot"
	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/ingestion/webpage"
	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/sentinel/pkg/redis"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analyzer service", "port", cfg.Server.Port)

	if err := run(cfg); err != nil {
		slog.Error("analyzer service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("analyzer service stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)

	analyzer := analysis.New(analysis.Options{
		SummaryLength: cfg.Analysis.SummaryLength,
		KeywordCount:  cfg.Analysis.KeywordCount,
		Workers:       cfg.Analysis.RelatedWorkers,
	}, m)
	checker := health.NewChecker(health.WithCacheTTL(2 * time.Second))
	aggregator := analytics.NewAggregator()

	var (
		deps = handler.Deps{
			Metrics: m,
			Fetcher: webpage.NewFetcher(cfg.Analysis.FetchTimeout, cfg.Analysis.MaxFetchSize),
		}
		reports   *store.Store
		snapshots analytics.SnapshotLister
		snapStore *snapshot.Store
	)

	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer db.Close()
		reports = store.New(db, cfg.Analysis.StoreTimeout, m)
		if err := reports.Migrate(ctx); err != nil {
			return fmt.Errorf("migrating report store: %w", err)
		}
		snapStore = snapshot.NewStore(db, cfg.Analysis.SnapshotRetain)
		if err := snapStore.Migrate(ctx); err != nil {
			return fmt.Errorf("migrating snapshot store: %w", err)
		}
		if latest, err := snapStore.LatestSnapshot(ctx); err != nil {
			slog.Warn("could not restore analytics snapshot", "error", err)
		} else if latest != nil {
			aggregator.Restore(*latest)
			slog.Info("analytics restored from snapshot", "captured_at", latest.CapturedAt, "documents", latest.TotalDocuments)
		}
		deps.Store = reports
		snapshots = snapStore
		checker.Register("postgres", health.PingCheck(db, false))
		slog.Info("connected to postgres")
	} else {
		checker.Register("postgres", health.Static(health.StatusUp, "disabled"))
	}

	if cfg.Redis.Enabled {
		rdb, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			// The cache is an optimisation; run without it.
			slog.Warn("redis unavailable, caching disabled", "error", err)
			checker.Register("redis", health.Static(health.StatusDegraded, err.Error()))
		} else {
			defer rdb.Close()
			deps.Cache = cache.New(rdb, cfg.Redis.CacheTTL, m)
			checker.Register("redis", health.PingCheck(rdb, true))
			slog.Info("connected to redis", "addr", cfg.Redis.Addr)
		}
	} else {
		checker.Register("redis", health.Static(health.StatusUp, "disabled"))
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Enabled {
		g.Go(func() error {
			return m.Serve(gctx, fmt.Sprintf(":%d", cfg.Metrics.Port))
		})
	}

	var eventSink analytics.Publisher = aggregator
	if cfg.Kafka.Enabled {
		ingestProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest)
		defer ingestProducer.Close()
		eventsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer eventsProducer.Close()

		deps.Queue = publisher.New(ingestProducer)
		eventSink = eventsProducer
		checker.Register("kafka", health.PingCheck(kafka.BrokerPinger(cfg.Kafka.Brokers), false))
		slog.Info("kafka producers initialized", "brokers", cfg.Kafka.Brokers)
	} else {
		checker.Register("kafka", health.Static(health.StatusUp, "disabled"))
	}

	collector := analytics.NewCollector(eventSink, 0, cfg.Analysis.EventBatchSize, cfg.Analysis.EventFlush)
	collector.Start(ctx)
	deps.Tracker = collector

	if cfg.Kafka.Enabled {
		var saver consumer.ReportSaver
		if reports != nil {
			saver = reports
		}
		analyzedProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentAnalyzed)
		defer analyzedProducer.Close()
		ingestConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest,
			consumer.HandleMessage(analyzer, saver, analyzedProducer, collector))
		g.Go(func() error {
			return consumer.New(ingestConsumer).Start(gctx)
		})

		analyticsCfg := cfg.Kafka
		analyticsCfg.ConsumerGroup = cfg.Kafka.ConsumerGroup + "-analytics"
		eventsConsumer := kafka.NewConsumer(analyticsCfg, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(aggregator))
		g.Go(func() error {
			return eventsConsumer.Start(gctx)
		})
		slog.Info("kafka consumers started",
			"ingest_topic", cfg.Kafka.Topics.DocumentIngest,
			"analytics_topic", cfg.Kafka.Topics.AnalyticsEvents,
		)
	}

	if snapStore != nil {
		g.Go(func() error {
			snapshot.RunPeriodic(gctx, snapStore, aggregator, cfg.Analysis.SnapshotInterval,
				logger.WithComponent("analytics-snapshots"))
			return nil
		})
	}

	analysisHandler := handler.New(analyzer, deps, handler.Limits{
		MaxContentLength: cfg.Analysis.MaxContentLength,
		MaxUploadSize:    cfg.Analysis.MaxUploadSize,
		RelatedMinScore:  cfg.Analysis.RelatedMinScore,
		RelatedLimit:     cfg.Analysis.RelatedLimit,
	})
	analyticsHandler := analytics.NewHandler(aggregator, snapshots)

	mux := http.NewServeMux()
	analysisHandler.Routes(mux)
	analyticsHandler.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.HandleFunc("GET /health", checker.ReadyHandler())

	limiter := ratelimit.New(cfg.Server.RateLimit, time.Minute)
	defer limiter.Close()

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: middleware.Chain(mux,
			middleware.RequestID,
			middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins...)),
			middleware.RateLimit(limiter),
			middleware.Metrics(m),
			middleware.Timeout(cfg.Server.RequestTimeout),
		),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g.Go(func() error {
		slog.Info("analyzer service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	// Every Track caller has returned; flush what is left.
	collector.Close()
	return err
}
