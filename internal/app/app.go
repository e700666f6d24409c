// Package app initializes and holds the long-lived application
// services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/quirkfly/ivesna/internal/api"
	"github.com/quirkfly/ivesna/internal/chunker"
	"github.com/quirkfly/ivesna/internal/config"
	"github.com/quirkfly/ivesna/internal/crawler"
	"github.com/quirkfly/ivesna/internal/ingest"
	"github.com/quirkfly/ivesna/internal/llm"
	"github.com/quirkfly/ivesna/internal/logging"
	"github.com/quirkfly/ivesna/internal/metrics"
	"github.com/quirkfly/ivesna/internal/progress"
	"github.com/quirkfly/ivesna/internal/progress/sinks"
	"github.com/quirkfly/ivesna/internal/retrieval"
	"github.com/quirkfly/ivesna/internal/store"
	"github.com/quirkfly/ivesna/internal/store/memory"
	"github.com/quirkfly/ivesna/internal/store/postgres"
)

// App holds the shared services for the assistant: the store provider,
// the model client, the crawler engine, the ingestion workers, and the
// HTTP server. It is built once at startup and torn down by Close.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	provider   store.Provider
	llmClient  *llm.Client
	engine     *crawler.Engine
	renderer   *crawler.ChromedpRenderer
	hub        *progress.Hub
	queue      *ingest.Queue
	dispatcher *ingest.Dispatcher
	pipeline   *ingest.Pipeline
	retriever  *retrieval.Retriever
	server     *api.Server
}

// New builds the full service graph from the configuration. It fails
// fast when any critical dependency cannot be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	metrics.Init()

	a := &App{cfg: cfg, logger: logger}

	if a.provider, err = newProvider(ctx, cfg); err != nil {
		return nil, err
	}

	a.llmClient, err = llm.NewClient(llm.Config{
		APIKey:      cfg.OpenAI.APIKey,
		EmbedModel:  cfg.OpenAI.EmbedModel,
		ChatModel:   cfg.OpenAI.ChatModel,
		Temperature: cfg.OpenAI.Temperature,
		MaxRetries:  cfg.OpenAI.MaxRetries,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init model client: %w", err)
	}

	if err = a.buildCrawler(cfg, logger); err != nil {
		return nil, err
	}
	a.buildIngest(cfg, logger)

	a.retriever = retrieval.New(a.provider, a.llmClient, retrieval.Config{
		TopK:           cfg.Retrieval.TopK,
		PreselectLimit: cfg.Retrieval.PreselectLimit,
	}, logger)

	a.server = api.NewServer(a.retriever, a.llmClient, a.provider, a.dispatcher, cfg, logger)

	logger.Info("application services initialized",
		zap.String("db_provider", cfg.DB.Provider),
		zap.String("tenant", cfg.Tenant.Default),
		zap.Bool("headless", cfg.Headless.Enabled),
	)
	return a, nil
}

func newProvider(ctx context.Context, cfg config.Config) (store.Provider, error) {
	switch cfg.DB.Provider {
	case "postgres":
		p, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.DB.DSN,
			MaxConns:        cfg.DB.MaxConns,
			MinConns:        cfg.DB.MinConns,
			MaxConnLifetime: time.Duration(cfg.DB.LifetimeMins) * time.Minute,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		if err := p.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("migrate postgres store: %w", err)
		}
		return p, nil
	case "memory", "":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown db provider: %s", cfg.DB.Provider)
	}
}

func (a *App) buildCrawler(cfg config.Config, logger *zap.Logger) error {
	opts := make([]crawler.Option, 0, 2)
	if cfg.Headless.Enabled {
		renderer, err := crawler.NewChromedpRenderer(crawler.RendererConfig{
			MaxParallel: cfg.Headless.MaxParallel,
			NavTimeout:  time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
			DomainQPS:   cfg.Headless.DomainQPS,
			UserAgent:   cfg.Crawler.UserAgent,
		}, logger)
		if err != nil {
			return fmt.Errorf("init headless renderer: %w", err)
		}
		a.renderer = renderer
		detector := crawler.NewHeuristicDetector(
			cfg.Headless.MinHTMLBytes,
			cfg.Headless.MustSelectors,
			cfg.Headless.SignalKeywords,
		)
		robots := crawler.NewRobotsPolicy(!cfg.Crawler.IgnoreRobots, cfg.Crawler.UserAgent, logger)
		opts = append(opts, crawler.WithHeadless(detector, renderer, robots))
	}
	if cfg.Crawler.SnapshotDir != "" {
		sink, err := crawler.NewFileSystemSink(cfg.Crawler.SnapshotDir, cfg.Crawler.MaxPageBytes, logger)
		if err != nil {
			return fmt.Errorf("init snapshot sink: %w", err)
		}
		opts = append(opts, crawler.WithSink(sink))
	}

	engine, err := crawler.New(crawler.Config{
		AllowedDomains: cfg.Crawler.AllowedDomains,
		UserAgent:      cfg.Crawler.UserAgent,
		Concurrency:    cfg.Crawler.Concurrency,
		RatePerDomain:  cfg.Crawler.RatePerDomain,
		RequestTimeout: time.Duration(cfg.Crawler.TimeoutSeconds) * time.Second,
		MaxPageBytes:   cfg.Crawler.MaxPageBytes,
	}, logger, opts...)
	if err != nil {
		return fmt.Errorf("init crawler engine: %w", err)
	}
	a.engine = engine
	return nil
}

func (a *App) buildIngest(cfg config.Config, logger *zap.Logger) {
	hubSinks := []progress.Sink{sinks.NewLogSink(logger)}
	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Warn("progress metrics disabled", zap.Error(err))
	} else {
		hubSinks = append(hubSinks, promSink)
	}
	a.hub = progress.NewHub(progress.Config{Logger: logger}, hubSinks...)

	a.pipeline = ingest.NewPipeline(
		a.engine,
		chunker.New(cfg.Chunking.MaxTokens, cfg.Chunking.OverlapTokens),
		a.llmClient,
		a.provider,
		a.hub,
		logger,
	)

	a.queue = ingest.NewQueue(cfg.Ingest.QueueDepth)
	workerCount := cfg.Ingest.Workers
	if workerCount <= 0 {
		workerCount = 1
	}
	workers := make([]*ingest.Worker, 0, workerCount)
	for i := 0; i < workerCount; i++ {
		workers = append(workers, ingest.NewWorker(a.queue, a.provider, a.pipeline, a.hub, logger))
	}
	a.dispatcher = ingest.NewDispatcher(a.queue, workers)
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Provider returns the configured store provider.
func (a *App) Provider() store.Provider {
	return a.provider
}

// Dispatcher returns the ingestion dispatcher.
func (a *App) Dispatcher() *ingest.Dispatcher {
	return a.dispatcher
}

// RunServer starts the ingestion workers and the HTTP server and blocks
// until the context is canceled, then shuts both down gracefully.
func (a *App) RunServer(ctx context.Context) error {
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		a.dispatcher.Run(workerCtx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		stopWorkers()
		<-workersDone
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownTimeout := time.Duration(a.cfg.Server.ShutdownTimeout) * time.Second
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.logger.Info("shutting down http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown incomplete", zap.Error(err))
	}

	stopWorkers()
	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("workers did not stop before shutdown deadline")
	}
	return nil
}

// Close tears down the remaining services. Safe to call after RunServer
// returns.
func (a *App) Close(ctx context.Context) {
	if a.queue != nil {
		a.queue.Close()
	}
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close", zap.Error(err))
		}
	}
	if a.renderer != nil {
		if err := a.renderer.Close(ctx); err != nil {
			a.logger.Warn("renderer close", zap.Error(err))
		}
	}
	if a.provider != nil {
		a.provider.Close()
	}
	// Best effort; stderr sync errors on shutdown are not actionable.
	_ = a.logger.Sync()
}
