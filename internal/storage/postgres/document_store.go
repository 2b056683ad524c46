package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/legal-ingest-crawler/internal/crawler"
)

const defaultDocumentsTable = "documents"

// DocumentStore upserts ParsedObjects keyed by their stored file URL.
type DocumentStore struct {
	db    Querier
	table string
}

var _ crawler.DocumentStore = (*DocumentStore)(nil)

// NewDocumentStore builds a store on an existing pool.
func NewDocumentStore(db Querier, table string) (*DocumentStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table, defaultDocumentsTable)
	if err != nil {
		return nil, err
	}
	return &DocumentStore{db: db, table: name}, nil
}

// UpsertDocument inserts obj or refreshes the row for the same file URL.
func (s *DocumentStore) UpsertDocument(ctx context.Context, obj crawler.ParsedObject) error {
	if obj.FileURL == "" {
		return crawler.NewError(crawler.KindConfig, "upsert document", "", fmt.Errorf("file url is required"))
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	file_url,
	jurisdiction,
	source_url,
	category,
	subcategory,
	title,
	hash,
	indexed_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)
ON CONFLICT (file_url) DO UPDATE SET
	source_url = EXCLUDED.source_url,
	subcategory = EXCLUDED.subcategory,
	title = EXCLUDED.title,
	hash = EXCLUDED.hash,
	indexed_at = EXCLUDED.indexed_at`, s.table)

	args := []any{
		obj.FileURL,
		obj.Jurisdiction,
		obj.SourceURL,
		obj.Category,
		obj.Subcategory,
		obj.Title,
		obj.Hash,
		obj.IndexedAt,
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}
