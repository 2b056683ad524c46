// Package web reads content from HTTP(S) URLs.
package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/JakeFAU/legal-ingest-crawler/internal/crawler"
	"github.com/JakeFAU/legal-ingest-crawler/internal/storage"
)

// Config controls the HTTP client.
type Config struct {
	Timeout   time.Duration
	UserAgent string
}

// Backend serves http:// and https:// locations. It is read-only.
type Backend struct {
	client    *http.Client
	userAgent string
}

var _ storage.Backend = (*Backend)(nil)

// New builds a Backend with a pooled transport.
func New(cfg Config) *Backend {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Backend{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 15 * time.Second,
				MaxIdleConns:        20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent: cfg.UserAgent,
	}
}

// NewWithClient uses the given client as-is.
func NewWithClient(client *http.Client) *Backend {
	return &Backend{client: client}
}

func (b *Backend) do(ctx context.Context, method string, loc storage.Location) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, loc.Raw, nil)
	if err != nil {
		return nil, crawler.NewError(crawler.KindConfig, method, loc.Raw, err)
	}
	if b.userAgent != "" {
		req.Header.Set("User-Agent", b.userAgent)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, crawler.NewError(crawler.KindCrawl, method, loc.Raw, err)
	}
	return resp, nil
}

// Read GETs the URL and returns the body.
func (b *Backend) Read(ctx context.Context, loc storage.Location) ([]byte, error) {
	resp, err := b.do(ctx, http.MethodGet, loc)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck // read-only

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, crawler.NewError(crawler.KindNotFound, "get", loc.Raw, errors.New(resp.Status))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, crawler.NewError(crawler.KindCrawl, "get", loc.Raw, fmt.Errorf("unexpected status %s", resp.Status))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

// Exists issues a HEAD request; only a 200 counts as present.
func (b *Backend) Exists(ctx context.Context, loc storage.Location) (bool, error) {
	resp, err := b.do(ctx, http.MethodHead, loc)
	if err != nil {
		return false, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// Write is not supported for URLs.
func (b *Backend) Write(_ context.Context, loc storage.Location, _ []byte) error {
	return crawler.NewError(crawler.KindUnsupported, "write", loc.Raw, errors.New("writing to http locations is not supported"))
}

// Delete is not supported for URLs.
func (b *Backend) Delete(_ context.Context, loc storage.Location) error {
	return crawler.NewError(crawler.KindUnsupported, "delete", loc.Raw, errors.New("deleting http locations is not supported"))
}
