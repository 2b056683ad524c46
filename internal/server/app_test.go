package server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/legal-ingest-crawler/internal/catalogue"
	"github.com/JakeFAU/legal-ingest-crawler/internal/config"
	"github.com/JakeFAU/legal-ingest-crawler/internal/storage/memory"
)

func lawSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Revenue Code</title></head><body><p>Tax on income.</p><a href="/part-2">next</a></body></html>`)
	})
	mux.HandleFunc("/part-2", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "Part two of the revenue code.")
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func testConfig(t *testing.T, siteURL string) config.Config {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, "sites.csv")
	require.NoError(t, os.WriteFile(input,
		[]byte("url,jurisdiction,category,site\n"+siteURL+"/,US,TAX,revenue\n"), 0o600))

	return config.Config{
		Server: config.ServerConfig{Port: 0},
		Ingest: config.IngestConfig{
			InputPath:         input,
			BaseDir:           filepath.Join(dir, "out"),
			MaxPagesPerDomain: 10,
			ShouldRecurse:     true,
			MaxParallelism:    2,
			QueueDepth:        4,
			JobTimeout:        30 * time.Second,
			CrawlAttempts:     1,
			RunHour:           1,
			Timezone:          "UTC",
			CheckInterval:     time.Hour,
		},
		Crawler: config.CrawlerConfig{
			UserAgent:      "ingest-test",
			RequestTimeout: 5 * time.Second,
			DomainRPS:      1000,
			DomainBurst:    10,
		},
		Storage: config.StorageConfig{TempDir: t.TempDir()},
		PubSub:  config.PubSubConfig{TopicName: "sites", RunTopic: "runs"},
	}
}

func TestBuildAndRunOnceCataloguesSite(t *testing.T) {
	t.Parallel()

	site := lawSite(t)
	cfg := testConfig(t, site.URL)
	app, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(app.Close)

	summary, err := app.Runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.RunNumber)
	assert.Equal(t, 2, summary.PagesCrawled)
	assert.Equal(t, 1, summary.SitesCrawled)
	assert.Zero(t, summary.SitesFailed)

	target := filepath.Join(cfg.Ingest.BaseDir, "US", "TAX", "revenue")
	raw, err := os.ReadFile(filepath.Join(target, catalogue.MetadataFileName))
	require.NoError(t, err)
	records, err := catalogue.DecodeRecordSet(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, rec := range records {
		_, statErr := os.Stat(filepath.Join(target, rec.FileName))
		assert.NoError(t, statErr, rec.FileName)
	}

	docs, ok := app.docs.(*memory.DocumentStore)
	require.True(t, ok)
	assert.Len(t, docs.Documents(), 2)

	runs, ok := app.runs.(*memory.RunStore)
	require.True(t, ok)
	stats, found := runs.Run(1)
	require.True(t, found)
	assert.Equal(t, 2, stats.PagesCrawled)
}

func TestBuildRejectsUnknownTimezone(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "http://127.0.0.1")
	cfg.Ingest.Timezone = "Mars/Olympus"
	_, err := Build(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestBuildRejectsMissingBaseDir(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "http://127.0.0.1")
	cfg.Ingest.BaseDir = ""
	_, err := Build(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "http://127.0.0.1")
	app, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(app.Close)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
