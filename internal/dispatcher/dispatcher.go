// Package dispatcher fans crawl specs out to a bounded pool of workers and
// gathers their outcomes.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/legal-ingest-crawler/internal/crawler"
	"github.com/JakeFAU/legal-ingest-crawler/internal/queue/memory"
	"github.com/JakeFAU/legal-ingest-crawler/internal/worker"
)

// Runner consumes tasks from a queue until it is closed.
type Runner interface {
	Run(ctx context.Context, queue worker.Queue, results chan<- crawler.Outcome)
}

// Config controls fan-out.
type Config struct {
	MaxParallelism int
	QueueDepth     int
}

// Report summarizes one dispatch.
type Report struct {
	PagesCrawled int
	SitesCrawled int
	Outcomes     []crawler.Outcome
}

// Failures returns the outcomes that ended in error.
func (r Report) Failures() []crawler.Outcome {
	var out []crawler.Outcome
	for _, o := range r.Outcomes {
		if !o.Succeeded() {
			out = append(out, o)
		}
	}
	return out
}

// Dispatcher runs one task per spec.
type Dispatcher struct {
	runner Runner
	ids    crawler.IDGenerator
	cfg    Config
	logger *zap.Logger
}

// New creates a Dispatcher.
func New(runner Runner, ids crawler.IDGenerator, cfg Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxParallelism < 1 {
		cfg.MaxParallelism = 1
	}
	if cfg.QueueDepth < 1 {
		cfg.QueueDepth = cfg.MaxParallelism
	}
	return &Dispatcher{runner: runner, ids: ids, cfg: cfg, logger: logger.Named("dispatcher")}
}

// Run crawls every spec and blocks until all tasks finish or ctx ends.
// Failed tasks are reported but never stop the others. Outcomes arrive in
// completion order.
func (d *Dispatcher) Run(ctx context.Context, specs []crawler.CrawlSpec) (Report, error) {
	var report Report
	if len(specs) == 0 {
		return report, nil
	}

	tasks := make([]crawler.Task, 0, len(specs))
	for _, spec := range specs {
		id, err := d.ids.NewID()
		if err != nil {
			return report, fmt.Errorf("generate job id: %w", err)
		}
		tasks = append(tasks, crawler.Task{ID: id, Spec: spec})
	}

	queue := memory.NewQueue(d.cfg.QueueDepth)
	results := make(chan crawler.Outcome, len(tasks))

	go func() {
		defer queue.Close()
		for _, task := range tasks {
			if err := queue.Enqueue(ctx, task); err != nil {
				d.logger.Warn("stopped enqueueing", zap.Error(err))
				return
			}
		}
	}()

	workers := d.cfg.MaxParallelism
	if workers > len(tasks) {
		workers = len(tasks)
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.runner.Run(ctx, queue, results)
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	for outcome := range results {
		report.Outcomes = append(report.Outcomes, outcome)
		if outcome.Succeeded() {
			report.PagesCrawled += outcome.Pages
			report.SitesCrawled++
			continue
		}
		d.logger.Error("site crawl failed",
			zap.String("job_id", outcome.TaskID),
			zap.String("site", outcome.Spec.URL),
			zap.Error(outcome.Err))
	}

	d.logger.Info("dispatch finished",
		zap.Int("sites", len(specs)),
		zap.Int("succeeded", report.SitesCrawled),
		zap.Int("pages", report.PagesCrawled))

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("dispatch interrupted: %w", err)
	}
	return report, nil
}
