package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/legal-ingest-crawler/internal/crawler"
)

func TestUpsertDocumentWritesRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewDocumentStore(mock, "documents")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	obj := crawler.ParsedObject{
		FileURL:      "s3://laws/US/TAX/site/abc.txt",
		Jurisdiction: "US",
		SourceURL:    "https://law.example.gov/title-1",
		Category:     "TAX",
		Subcategory:  "site",
		IndexedAt:    now,
		Hash:         "deadbeef",
		Title:        "Title 1",
	}

	mock.ExpectExec("INSERT INTO documents").
		WithArgs(obj.FileURL, obj.Jurisdiction, obj.SourceURL, obj.Category,
			obj.Subcategory, obj.Title, obj.Hash, obj.IndexedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.UpsertDocument(context.Background(), obj))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertDocumentErrors(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewDocumentStore(mock, "")
	require.NoError(t, err)

	err = store.UpsertDocument(context.Background(), crawler.ParsedObject{})
	assert.ErrorIs(t, err, crawler.ErrConfig)

	mock.ExpectExec("INSERT INTO documents").WillReturnError(errors.New("db down"))
	err = store.UpsertDocument(context.Background(), crawler.ParsedObject{FileURL: "x"})
	assert.ErrorContains(t, err, "db down")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewStoresValidateInputs(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewDocumentStore(nil, "")
	assert.Error(t, err)
	_, err = NewDocumentStore(mock, "documents; DROP TABLE x")
	assert.Error(t, err)
	_, err = NewRunStore(nil, "")
	assert.Error(t, err)
	_, err = NewRunStore(mock, "1runs")
	assert.Error(t, err)
}

func TestNextRunNumber(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStore(mock, "")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT COALESCE\\(MAX\\(run_number\\), 0\\) \\+ 1 FROM crawl_runs").
		WillReturnRows(pgxmock.NewRows([]string{"next"}).AddRow(int64(8)))

	next, err := store.NextRunNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(8), next)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRun(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStore(mock, "crawl_runs")
	require.NoError(t, err)

	start := time.Unix(1700000000, 0).UTC()
	stats := crawler.RunStats{
		RunNumber:    3,
		PagesCrawled: 42,
		SitesCrawled: 2,
		StartedAt:    start,
		FinishedAt:   start.Add(time.Minute),
	}
	mock.ExpectExec("INSERT INTO crawl_runs").
		WithArgs(stats.RunNumber, stats.PagesCrawled, stats.LawsCrawled, stats.SitesCrawled,
			stats.StartedAt, stats.FinishedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.RecordRun(context.Background(), stats))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS documents").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS crawl_runs").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, EnsureSchema(context.Background(), mock, "", ""))
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Error(t, EnsureSchema(context.Background(), mock, "bad name", ""))
}

func TestOpenRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Config{})
	assert.Error(t, err)
	_, err = Open(context.Background(), Config{DSN: "://not a dsn"})
	assert.Error(t, err)
}
