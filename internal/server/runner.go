package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/legal-ingest-crawler/internal/api"
	"github.com/JakeFAU/legal-ingest-crawler/internal/crawler"
	"github.com/JakeFAU/legal-ingest-crawler/internal/dispatcher"
	"github.com/JakeFAU/legal-ingest-crawler/internal/metrics"
)

// ErrRunInProgress is returned when a run is requested while one is active.
var ErrRunInProgress = errors.New("ingestion run already in progress")

// SpecLoader reads the site list.
type SpecLoader interface {
	Load(ctx context.Context, path string) ([]crawler.CrawlSpec, error)
}

// Dispatch crawls and catalogues a batch of specs.
type Dispatch interface {
	Run(ctx context.Context, specs []crawler.CrawlSpec) (dispatcher.Report, error)
}

// RunConfig controls what a run reads and when scheduled runs fire.
type RunConfig struct {
	InputPath     string
	RunTopic      string
	RunHour       int
	CheckInterval time.Duration
}

// RunCompleted is published once per finished run.
type RunCompleted struct {
	RunNumber    int64     `json:"run_number"`
	PagesCrawled int       `json:"pages_crawled"`
	LawsCrawled  int       `json:"laws_crawled"`
	SitesCrawled int       `json:"sites_crawled"`
	SitesFailed  int       `json:"sites_failed"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Runner executes ingestion runs, one at a time, on demand or on schedule.
type Runner struct {
	ctx       context.Context
	loader    SpecLoader
	dispatch  Dispatch
	runs      crawler.RunStore
	publisher crawler.Publisher
	clock     crawler.Clock
	cfg       RunConfig
	logger    *zap.Logger

	mu       sync.Mutex
	running  bool
	last     *api.RunSummary
	lastDay  string
	inFlight sync.WaitGroup
}

var _ api.Runs = (*Runner)(nil)

// NewRunner builds a Runner. Runs started through Trigger use ctx. runs and
// publisher may be nil.
func NewRunner(
	ctx context.Context,
	loader SpecLoader,
	dispatch Dispatch,
	runs crawler.RunStore,
	publisher crawler.Publisher,
	clock crawler.Clock,
	cfg RunConfig,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Hour
	}
	return &Runner{
		ctx:       ctx,
		loader:    loader,
		dispatch:  dispatch,
		runs:      runs,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger.Named("runner"),
	}
}

func (r *Runner) tryStart() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	r.inFlight.Add(1)
	return true
}

func (r *Runner) finish(summary api.RunSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
	r.last = &summary
	r.inFlight.Done()
}

// Trigger starts a run in the background.
func (r *Runner) Trigger() bool {
	if !r.tryStart() {
		return false
	}
	go func() {
		if _, err := r.execute(r.ctx); err != nil {
			r.logger.Error("triggered run failed", zap.Error(err))
		}
	}()
	return true
}

// RunOnce runs ingestion synchronously.
func (r *Runner) RunOnce(ctx context.Context) (api.RunSummary, error) {
	if !r.tryStart() {
		return api.RunSummary{}, ErrRunInProgress
	}
	return r.execute(ctx)
}

// Wait blocks until any in-flight run finishes.
func (r *Runner) Wait() {
	r.inFlight.Wait()
}

// Snapshot reports whether a run is active and how the last one went.
func (r *Runner) Snapshot() api.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := api.Snapshot{Running: r.running}
	if r.last != nil {
		last := *r.last
		snap.LastRun = &last
	}
	return snap
}

func (r *Runner) execute(ctx context.Context) (summary api.RunSummary, err error) {
	summary.StartedAt = r.clock.Now()
	defer func() {
		summary.FinishedAt = r.clock.Now()
		if err != nil {
			summary.Error = err.Error()
			metrics.ObserveRun("failed", summary.PagesCrawled)
		} else {
			metrics.ObserveRun("succeeded", summary.PagesCrawled)
		}
		r.finish(summary)
	}()

	r.logger.Info("ingestion run started", zap.String("path", r.cfg.InputPath))
	specs, err := r.loader.Load(ctx, r.cfg.InputPath)
	if err != nil {
		return summary, fmt.Errorf("load site list: %w", err)
	}

	report, dispatchErr := r.dispatch.Run(ctx, specs)
	summary.PagesCrawled = report.PagesCrawled
	summary.SitesCrawled = report.SitesCrawled
	summary.SitesFailed = len(report.Failures())
	if dispatchErr != nil {
		return summary, dispatchErr
	}

	stats := crawler.RunStats{
		PagesCrawled: report.PagesCrawled,
		SitesCrawled: report.SitesCrawled,
		StartedAt:    summary.StartedAt,
		FinishedAt:   r.clock.Now(),
	}
	if r.runs != nil {
		number, err := r.runs.NextRunNumber(ctx)
		if err != nil {
			return summary, fmt.Errorf("next run number: %w", err)
		}
		stats.RunNumber = number
		summary.RunNumber = number
		if err := r.runs.RecordRun(ctx, stats); err != nil {
			return summary, fmt.Errorf("record run: %w", err)
		}
	}
	r.announce(ctx, stats, summary.SitesFailed)

	r.logger.Info("ingestion run finished",
		zap.Int64("run_number", stats.RunNumber),
		zap.Int("pages", stats.PagesCrawled),
		zap.Int("sites", stats.SitesCrawled),
		zap.Int("failed_sites", summary.SitesFailed))
	return summary, nil
}

func (r *Runner) announce(ctx context.Context, stats crawler.RunStats, failed int) {
	if r.publisher == nil || r.cfg.RunTopic == "" {
		return
	}
	event := RunCompleted{
		RunNumber:    stats.RunNumber,
		PagesCrawled: stats.PagesCrawled,
		LawsCrawled:  stats.LawsCrawled,
		SitesCrawled: stats.SitesCrawled,
		SitesFailed:  failed,
		StartedAt:    stats.StartedAt,
		FinishedAt:   stats.FinishedAt,
	}
	if _, err := r.publisher.Publish(ctx, r.cfg.RunTopic, event); err != nil {
		r.logger.Warn("publish run event failed", zap.Error(err))
	}
}

// Schedule checks the clock every CheckInterval and runs once per day when
// the hour matches RunHour. It returns when ctx ends.
func (r *Runner) Schedule(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.CheckInterval)
	defer ticker.Stop()
	r.logger.Info("scheduler started",
		zap.Int("run_hour", r.cfg.RunHour),
		zap.Duration("check_interval", r.cfg.CheckInterval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick runs ingestion if it is due.
func (r *Runner) tick(ctx context.Context) {
	now := r.clock.Now()
	if now.Hour() != r.cfg.RunHour {
		return
	}
	day := now.Format(time.DateOnly)
	r.mu.Lock()
	due := r.lastDay != day
	if due {
		r.lastDay = day
	}
	r.mu.Unlock()
	if !due {
		return
	}
	if _, err := r.RunOnce(ctx); err != nil {
		r.logger.Error("scheduled run failed", zap.Error(err))
	}
}
