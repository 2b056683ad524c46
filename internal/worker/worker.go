// Package worker executes one crawl task end-to-end: crawl the site,
// catalogue the pages and announce the result.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/legal-ingest-crawler/internal/clock/system"
	"github.com/JakeFAU/legal-ingest-crawler/internal/crawler"
	"github.com/JakeFAU/legal-ingest-crawler/internal/metrics"
)

// Queue is the consuming side of the task queue.
type Queue interface {
	Dequeue(ctx context.Context) (crawler.Task, error)
}

// Config controls Worker behavior.
type Config struct {
	MaxPagesPerDomain int
	Recurse           bool
	DownloadPDF       bool
	// JobTimeout bounds one task including cataloguing. Zero means no limit.
	JobTimeout time.Duration
	// Topic receives a site-catalogued event per successful task. Empty
	// disables publishing.
	Topic string
}

// Worker runs crawl tasks.
type Worker struct {
	engine     crawler.Engine
	cataloguer crawler.Cataloguer
	publisher  crawler.Publisher
	clock      crawler.Clock
	retry      RetryPolicy
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Worker. publisher, clock and retry may be nil.
func New(
	engine crawler.Engine,
	cataloguer crawler.Cataloguer,
	publisher crawler.Publisher,
	clock crawler.Clock,
	retry RetryPolicy,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = system.New()
	}
	if retry == nil {
		retry = NewExponentialRetryPolicy(1, 0, 0)
	}
	return &Worker{
		engine:     engine,
		cataloguer: cataloguer,
		publisher:  publisher,
		clock:      clock,
		retry:      retry,
		cfg:        cfg,
		logger:     logger.Named("worker"),
	}
}

// Run consumes tasks until the queue closes or ctx ends, sending one Outcome
// per task to results.
func (w *Worker) Run(ctx context.Context, queue Queue, results chan<- crawler.Outcome) {
	for {
		task, err := queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Debug("worker stopping", zap.Error(err))
			}
			return
		}
		outcome := w.Execute(ctx, task)
		select {
		case results <- outcome:
		case <-ctx.Done():
			return
		}
	}
}

// Execute runs a single task under the configured job timeout.
func (w *Worker) Execute(ctx context.Context, task crawler.Task) crawler.Outcome {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	start := w.clock.Now()
	jobCtx, cancel := w.jobContext(ctx)
	defer cancel()

	logger := w.logger.With(zap.String("job_id", task.ID), zap.String("site", task.Spec.URL))
	outcome := crawler.Outcome{TaskID: task.ID, Spec: task.Spec}

	pages, err := w.crawlWithRetry(jobCtx, task, logger)
	if err != nil {
		outcome.Err = err
		outcome.Duration = w.clock.Now().Sub(start)
		metrics.ObserveJob("failed")
		logger.Error("crawl failed", zap.Error(err))
		return outcome
	}
	outcome.Pages = len(pages)

	records, err := w.cataloguer.Catalogue(jobCtx, task.ID, crawler.CrawlResult{Spec: task.Spec, Pages: pages})
	outcome.Duration = w.clock.Now().Sub(start)
	if err != nil {
		outcome.Err = fmt.Errorf("catalogue %s: %w", task.Spec.URL, err)
		metrics.ObserveJob("failed")
		logger.Error("catalogue failed", zap.Error(err))
		return outcome
	}
	outcome.Records = records
	metrics.ObserveJob("succeeded")
	logger.Info("site catalogued",
		zap.Int("pages", outcome.Pages),
		zap.Int("records", len(records)),
		zap.Duration("duration", outcome.Duration))

	w.announce(jobCtx, task, outcome, logger)
	return outcome
}

func (w *Worker) jobContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.cfg.JobTimeout > 0 {
		return context.WithTimeout(ctx, w.cfg.JobTimeout)
	}
	return context.WithCancel(ctx)
}

func (w *Worker) crawlWithRetry(ctx context.Context, task crawler.Task, logger *zap.Logger) ([]crawler.Page, error) {
	for attempt := 1; ; attempt++ {
		pages, err := w.crawl(ctx, task)
		if err == nil {
			return pages, nil
		}
		if !w.retry.ShouldRetry(err, attempt) {
			return nil, err
		}
		delay := w.retry.Backoff(attempt)
		logger.Warn("retrying crawl", zap.Int("attempt", attempt), zap.Duration("backoff", delay), zap.Error(err))
		if sleepErr := sleepWithContext(ctx, delay); sleepErr != nil {
			return nil, crawler.NewError(crawler.KindCrawl, "crawl", task.Spec.URL, errors.Join(err, sleepErr))
		}
	}
}

// crawl calls the engine, converting panics into crawl errors so one broken
// site cannot take down the pool.
func (w *Worker) crawl(ctx context.Context, task crawler.Task) (pages []crawler.Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = crawler.NewError(crawler.KindCrawl, "crawl", task.Spec.URL, fmt.Errorf("engine panic: %v", r))
		}
	}()
	pages, err = w.engine.Crawl(ctx, crawler.EngineRequest{
		Seeds:          []string{task.Spec.URL},
		AllowedDomains: task.Spec.AllowedDomains,
		Recurse:        w.cfg.Recurse,
		MaxPages:       w.cfg.MaxPagesPerDomain,
		DownloadPDF:    w.cfg.DownloadPDF,
	})
	if err != nil {
		if crawler.KindOf(err) == crawler.KindUnknown {
			err = crawler.NewError(crawler.KindCrawl, "crawl", task.Spec.URL, err)
		}
		return nil, err
	}
	return pages, nil
}

// SiteCatalogued is published after a site's pages are stored.
type SiteCatalogued struct {
	JobID        string    `json:"job_id"`
	URL          string    `json:"url"`
	Jurisdiction string    `json:"jurisdiction"`
	Category     string    `json:"category"`
	SiteName     string    `json:"site_name,omitempty"`
	Pages        int       `json:"pages"`
	Records      int       `json:"records"`
	CataloguedAt time.Time `json:"catalogued_at"`
}

func (w *Worker) announce(ctx context.Context, task crawler.Task, outcome crawler.Outcome, logger *zap.Logger) {
	if w.cfg.Topic == "" || w.publisher == nil {
		return
	}
	event := SiteCatalogued{
		JobID:        task.ID,
		URL:          task.Spec.URL,
		Jurisdiction: task.Spec.Jurisdiction,
		Category:     task.Spec.Category,
		SiteName:     task.Spec.SiteName,
		Pages:        outcome.Pages,
		Records:      len(outcome.Records),
		CataloguedAt: w.clock.Now(),
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, event); err != nil {
		logger.Warn("publish site event failed", zap.Error(err))
	}
}
