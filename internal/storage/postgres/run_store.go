package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/legal-ingest-crawler/internal/crawler"
)

const defaultRunsTable = "crawl_runs"

// RunStore numbers runs and records their statistics.
type RunStore struct {
	db    Querier
	table string
}

var _ crawler.RunStore = (*RunStore)(nil)

// NewRunStore builds a store on an existing pool.
func NewRunStore(db Querier, table string) (*RunStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table, defaultRunsTable)
	if err != nil {
		return nil, err
	}
	return &RunStore{db: db, table: name}, nil
}

// NextRunNumber returns one more than the highest recorded run number.
func (s *RunStore) NextRunNumber(ctx context.Context) (int64, error) {
	var next int64
	query := fmt.Sprintf(`SELECT COALESCE(MAX(run_number), 0) + 1 FROM %s`, s.table)
	if err := s.db.QueryRow(ctx, query).Scan(&next); err != nil {
		return 0, fmt.Errorf("next run number: %w", err)
	}
	return next, nil
}

// RecordRun inserts one run row.
func (s *RunStore) RecordRun(ctx context.Context, stats crawler.RunStats) error {
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_number,
	pages_crawled,
	laws_crawled,
	sites_crawled,
	started_at,
	finished_at
) VALUES ($1,$2,$3,$4,$5,$6)`, s.table)

	if _, err := s.db.Exec(ctx, query,
		stats.RunNumber,
		stats.PagesCrawled,
		stats.LawsCrawled,
		stats.SitesCrawled,
		stats.StartedAt,
		stats.FinishedAt,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}
