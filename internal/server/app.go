// Package server wires the ingestion service together and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/legal-ingest-crawler/internal/api"
	"github.com/JakeFAU/legal-ingest-crawler/internal/catalogue"
	"github.com/JakeFAU/legal-ingest-crawler/internal/clock/system"
	"github.com/JakeFAU/legal-ingest-crawler/internal/config"
	"github.com/JakeFAU/legal-ingest-crawler/internal/crawler"
	"github.com/JakeFAU/legal-ingest-crawler/internal/dispatcher"
	"github.com/JakeFAU/legal-ingest-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/legal-ingest-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/legal-ingest-crawler/internal/hash/sha256"
	"github.com/JakeFAU/legal-ingest-crawler/internal/id/uuid"
	"github.com/JakeFAU/legal-ingest-crawler/internal/input"
	"github.com/JakeFAU/legal-ingest-crawler/internal/metrics"
	"github.com/JakeFAU/legal-ingest-crawler/internal/policy/ratelimit"
	pubmemory "github.com/JakeFAU/legal-ingest-crawler/internal/publisher/memory"
	pubsubpub "github.com/JakeFAU/legal-ingest-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/legal-ingest-crawler/internal/storage"
	"github.com/JakeFAU/legal-ingest-crawler/internal/storage/gcs"
	"github.com/JakeFAU/legal-ingest-crawler/internal/storage/local"
	"github.com/JakeFAU/legal-ingest-crawler/internal/storage/memory"
	"github.com/JakeFAU/legal-ingest-crawler/internal/storage/postgres"
	s3store "github.com/JakeFAU/legal-ingest-crawler/internal/storage/s3"
	"github.com/JakeFAU/legal-ingest-crawler/internal/storage/web"
	"github.com/JakeFAU/legal-ingest-crawler/internal/worker"
)

const shutdownTimeout = 15 * time.Second

// App holds the long-lived services of one ingestion process.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	Runner *Runner
	api    *api.Server
	docs   crawler.DocumentStore
	runs   crawler.RunStore

	closers []func() error
}

// Build constructs every component from cfg. Runs triggered over HTTP use
// ctx, so cancelling it stops them.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	app := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	extractor, err := buildExtractor(cfg, logger)
	if err != nil {
		return nil, err
	}
	gateway, err := app.buildGateway(ctx, extractor)
	if err != nil {
		return nil, err
	}

	var (
		docs  crawler.DocumentStore = memory.NewDocumentStore()
		runs  crawler.RunStore      = memory.NewRunStore()
		ready api.ReadyFunc
	)
	if cfg.DB.DSN != "" {
		pool, err := app.openDatabase(ctx)
		if err != nil {
			return nil, err
		}
		docStore, err := postgres.NewDocumentStore(pool, cfg.DB.DocumentsTable)
		if err != nil {
			return nil, err
		}
		runStore, err := postgres.NewRunStore(pool, cfg.DB.RunsTable)
		if err != nil {
			return nil, err
		}
		docs, runs = docStore, runStore
		ready = pool.Ping
	} else {
		logger.Info("db.dsn not set; documents and runs stay in memory")
	}
	app.docs, app.runs = docs, runs

	publisher, err := app.buildPublisher(ctx)
	if err != nil {
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	clock := system.NewIn(loc)
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Crawler.DomainRPS,
		DefaultBurst: cfg.Crawler.DomainBurst,
	})
	engine := collyfetcher.New(collyfetcher.Config{
		UserAgent:      cfg.Crawler.UserAgent,
		RespectRobots:  cfg.Crawler.RespectRobots,
		Timeout:        cfg.Crawler.RequestTimeout,
		MaxBodySize:    cfg.Crawler.MaxBodySize,
		BlockedDomains: cfg.Crawler.BlockedDomains,
		RefusalLimit:   cfg.Crawler.RefusalLimit,
		TempDir:        cfg.Storage.TempDir,
	}, limiter, extractor, logger)

	cataloguer, err := catalogue.New(catalogue.Config{
		BaseDir: cfg.Ingest.BaseDir,
		TempDir: cfg.Storage.TempDir,
	}, gateway, docs, sha256.New(), clock, logger)
	if err != nil {
		return nil, fmt.Errorf("build cataloguer: %w", err)
	}

	w := worker.New(engine, cataloguer, publisher, clock,
		worker.NewExponentialRetryPolicy(cfg.Ingest.CrawlAttempts, 500*time.Millisecond, 10*time.Second),
		worker.Config{
			MaxPagesPerDomain: cfg.Ingest.MaxPagesPerDomain,
			Recurse:           cfg.Ingest.ShouldRecurse,
			DownloadPDF:       cfg.Ingest.DownloadPDF,
			JobTimeout:        cfg.Ingest.JobTimeout,
			Topic:             cfg.PubSub.TopicName,
		}, logger)
	dispatch := dispatcher.New(w, uuid.New(), dispatcher.Config{
		MaxParallelism: cfg.Ingest.MaxParallelism,
		QueueDepth:     cfg.Ingest.QueueDepth,
	}, logger)

	app.Runner = NewRunner(ctx, input.NewLoader(gateway, logger), dispatch, runs, publisher, clock, RunConfig{
		InputPath:     cfg.Ingest.InputPath,
		RunTopic:      cfg.PubSub.RunTopic,
		RunHour:       cfg.Ingest.RunHour,
		CheckInterval: cfg.Ingest.CheckInterval,
	}, logger)
	app.api = api.NewServer(app.Runner, api.Options{APIKey: cfg.Server.APIKey, Ready: ready}, logger)
	return app, nil
}

func buildExtractor(cfg config.Config, logger *zap.Logger) (*extract.Extractor, error) {
	var ocr *extract.OCR
	if cfg.Extract.OCREnabled {
		var err error
		ocr, err = extract.NewOCR(
			extract.Pdftoppm{Binary: cfg.Extract.PdftoppmPath, DPI: cfg.Extract.OCRDPI},
			extract.Tesseract{Binary: cfg.Extract.TesseractPath, Language: cfg.Extract.OCRLanguage},
			cfg.Storage.TempDir, logger)
		if err != nil {
			return nil, fmt.Errorf("build ocr: %w", err)
		}
	}
	return extract.New(extract.Config{MinPDFTextLength: cfg.Extract.MinPDFTextLength}, nil, ocr, logger), nil
}

func (a *App) buildGateway(ctx context.Context, extractor crawler.Extractor) (*storage.Gateway, error) {
	localBackend, err := local.New(extractor)
	if err != nil {
		return nil, fmt.Errorf("build local backend: %w", err)
	}

	stores := map[string]storage.ObjectStore{"memory": memory.NewObjectStore()}
	if a.cfg.Storage.S3Enabled {
		s3, err := s3store.NewFromConfig(ctx, s3store.Config{
			Region:       a.cfg.Storage.S3Region,
			Endpoint:     a.cfg.Storage.S3Endpoint,
			UsePathStyle: a.cfg.Storage.S3UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		stores["s3"] = s3
	}
	if a.cfg.Storage.GCSEnabled {
		gs, err := gcs.NewFromEnvironment(ctx)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, gs.Close)
		stores["gs"] = gs
	}
	objects, err := storage.NewObjectBackend(storage.ObjectConfig{
		TempDir: a.cfg.Storage.TempDir,
		Stores:  stores,
		Local:   localBackend,
	})
	if err != nil {
		return nil, fmt.Errorf("build object backend: %w", err)
	}

	return storage.NewGateway(storage.Backends{
		Local: localBackend,
		HTTP: web.New(web.Config{
			Timeout:   a.cfg.Storage.HTTPTimeout,
			UserAgent: a.cfg.Crawler.UserAgent,
		}),
		Object: objects,
	}, a.logger), nil
}

func (a *App) openDatabase(ctx context.Context) (*pgxpool.Pool, error) {
	pool, err := postgres.Open(ctx, postgres.Config{
		DSN:             a.cfg.DB.DSN,
		DocumentsTable:  a.cfg.DB.DocumentsTable,
		RunsTable:       a.cfg.DB.RunsTable,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})
	if err := postgres.EnsureSchema(ctx, pool, a.cfg.DB.DocumentsTable, a.cfg.DB.RunsTable); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return pool, nil
}

func (a *App) buildPublisher(ctx context.Context) (crawler.Publisher, error) {
	if a.cfg.PubSub.ProjectID == "" {
		a.logger.Info("pubsub project not set; events stay in memory")
		return pubmemory.New(), nil
	}
	pub, err := pubsubpub.NewFromProject(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, pub.Close)
	return pub, nil
}

// Serve runs the HTTP API and the daily schedule until ctx ends, then shuts
// down gracefully and waits for any in-flight run.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(a.cfg.Server.Port)),
		Handler:           a.api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	scheduleDone := make(chan struct{})
	go func() {
		defer close(scheduleDone)
		a.Runner.Schedule(ctx)
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		a.logger.Warn("http shutdown", zap.Error(shutdownErr))
	}
	<-scheduleDone
	a.Runner.Wait()
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Close releases clients and pools in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}

// RunOnce performs a single ingestion run in the foreground.
func (a *App) RunOnce(ctx context.Context) (api.RunSummary, error) {
	return a.Runner.RunOnce(ctx)
}
