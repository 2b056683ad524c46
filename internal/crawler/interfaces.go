package crawler

import (
	"context"
	"time"
)

// Engine crawls one site and returns the fetched pages.
type Engine interface {
	Crawl(ctx context.Context, req EngineRequest) ([]Page, error)
}

// Gateway reads and writes content regardless of where it lives.
type Gateway interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, content []byte, path string) error
	Exists(ctx context.Context, path string) (bool, error)
	Delete(ctx context.Context, path string) error
}

// Extractor turns a local document into normalized text.
type Extractor interface {
	ExtractFile(ctx context.Context, path string) ([]byte, error)
}

// Cataloguer persists a crawl result and returns its metadata rows.
type Cataloguer interface {
	Catalogue(ctx context.Context, jobToken string, result CrawlResult) (MetadataRecordSet, error)
}

// DocumentStore persists ParsedObjects for downstream indexing.
type DocumentStore interface {
	UpsertDocument(ctx context.Context, obj ParsedObject) error
}

// RunStore persists run statistics.
type RunStore interface {
	NextRunNumber(ctx context.Context) (int64, error)
	RecordRun(ctx context.Context, stats RunStats) error
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for deduplication/integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job tokens (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// Task is one crawl job waiting for a worker.
type Task struct {
	ID   string
	Spec CrawlSpec
}

// Outcome is the explicit result of one task: pages and records on success,
// Err on failure.
type Outcome struct {
	TaskID   string
	Spec     CrawlSpec
	Pages    int
	Records  MetadataRecordSet
	Err      error
	Duration time.Duration
}

// Succeeded reports whether the task completed without error.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}
