// Package collyfetcher implements the crawl engine using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/legal-ingest-crawler/internal/crawler"
	"github.com/JakeFAU/legal-ingest-crawler/internal/extract"
	"github.com/JakeFAU/legal-ingest-crawler/internal/metrics"
)

const defaultMaxBodySize = 64 << 20

// Config controls collector behavior.
type Config struct {
	UserAgent      string
	RespectRobots  bool
	Timeout        time.Duration
	MaxBodySize    int
	BlockedDomains []string
	// RefusalLimit is how many 403/429 responses a host may return before
	// the crawl stops asking it. Zero means 3.
	RefusalLimit int
	// TempDir receives downloaded PDFs while they are extracted.
	TempDir string
}

// Limiter paces requests per host.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Engine implements crawler.Engine with one fresh collector per crawl.
type Engine struct {
	cfg       Config
	transport http.RoundTripper
	limiter   Limiter
	extractor crawler.Extractor
	blocked   *domainMatcher
	logger    *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnHTML(string, colly.HTMLCallback)
	OnError(colly.ErrorCallback)
}

// New builds an Engine. limiter and extractor may be nil; without an
// extractor PDF responses are skipped.
func New(cfg Config, limiter Limiter, extractor crawler.Extractor, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = defaultMaxBodySize
	}
	return &Engine{
		cfg:       cfg,
		transport: newHTTPTransport(),
		limiter:   limiter,
		extractor: extractor,
		blocked:   newDomainMatcher(cfg.BlockedDomains),
		logger:    logger.Named("engine"),
	}
}

// crawlState collects pages for one Crawl call.
type crawlState struct {
	mu       sync.Mutex
	req      crawler.EngineRequest
	allowed  *domainMatcher
	refusals *refusalTracker
	pages    []crawler.Page
}

func (s *crawlState) full() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.req.MaxPages > 0 && len(s.pages) >= s.req.MaxPages
}

func (s *crawlState) add(page crawler.Page) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.req.MaxPages > 0 && len(s.pages) >= s.req.MaxPages {
		return false
	}
	s.pages = append(s.pages, page)
	return true
}

func (s *crawlState) snapshot() []crawler.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]crawler.Page(nil), s.pages...)
}

// Crawl visits the seeds, following in-domain links when req.Recurse is set,
// and returns at most req.MaxPages pages in visit order.
func (e *Engine) Crawl(ctx context.Context, req crawler.EngineRequest) ([]crawler.Page, error) {
	if len(req.Seeds) == 0 {
		return nil, crawler.NewError(crawler.KindConfig, "crawl", "", errors.New("no seed urls"))
	}
	state := &crawlState{
		req:      req,
		allowed:  newSiteMatcher(req.AllowedDomains),
		refusals: newRefusalTracker(e.cfg.RefusalLimit),
	}
	collector, robots := e.buildCollector(ctx)
	e.configureCollectorHooks(ctx, collector, state)

	visitErr := e.runCollector(ctx, collector, req.Seeds)
	for _, fallback := range robots.Fallbacks() {
		e.logger.Warn("robots.txt treated as allow-all",
			zap.String("site", req.Seeds[0]),
			zap.String("fallback", fallback))
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, crawler.NewError(crawler.KindCrawl, "crawl", req.Seeds[0], ctxErr)
	}
	pages := state.snapshot()
	if visitErr != nil && len(pages) == 0 {
		return nil, crawler.NewError(crawler.KindCrawl, "crawl", req.Seeds[0], visitErr)
	}
	return pages, nil
}

func (e *Engine) buildCollector(ctx context.Context) (*colly.Collector, *robotsTransport) {
	collector := colly.NewCollector(colly.Async(false), colly.StdlibContext(ctx))
	if e.cfg.UserAgent != "" {
		collector.UserAgent = e.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !e.cfg.RespectRobots
	collector.MaxBodySize = e.cfg.MaxBodySize
	collector.SetRequestTimeout(e.cfg.Timeout)

	var robots *robotsTransport
	if e.cfg.RespectRobots {
		robots = newRobotsTransport(e.transport)
		collector.WithTransport(robots)
	} else {
		collector.WithTransport(e.transport)
	}
	return collector, robots
}

func (e *Engine) configureCollectorHooks(ctx context.Context, hooks collectorHooks, state *crawlState) {
	hooks.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil || state.full() {
			r.Abort()
			return
		}
		host := r.URL.Hostname()
		if e.blocked.Matches(host) || state.refusals.Stopped(host) ||
			(state.allowed != nil && !state.allowed.Matches(host)) {
			r.Abort()
			return
		}
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx, r.URL.String()); err != nil {
				r.Abort()
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		pageURL := r.Request.URL.String()
		page, ok := e.toPage(ctx, state.req, pageURL, r)
		if !ok {
			metrics.ObserveCrawl(pageURL, "skipped", len(r.Body))
			return
		}
		if !state.add(page) {
			return
		}
		metrics.ObserveCrawl(pageURL, "ok", len(r.Body))
	})

	hooks.OnHTML("a[href]", func(el *colly.HTMLElement) {
		if !state.req.Recurse || state.full() {
			return
		}
		link := el.Request.AbsoluteURL(el.Attr("href"))
		if link == "" {
			return
		}
		if normalized, err := crawler.NormalizeURL(link); err == nil {
			link = normalized
		}
		if err := el.Request.Visit(link); err != nil && !isRoutineVisitError(err) {
			e.logger.Debug("link not followed", zap.String("url", link), zap.Error(err))
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		var target string
		status := 0
		if r != nil {
			status = r.StatusCode
			if r.Request != nil && r.Request.URL != nil {
				target = r.Request.URL.String()
				if isRefusal(status) && state.refusals.Refused(r.Request.URL.Hostname()) {
					e.logger.Warn("host keeps refusing; skipping the rest of it",
						zap.String("host", r.Request.URL.Hostname()))
				}
			}
		}
		metrics.ObserveCrawl(target, "error", 0)
		e.logger.Warn("request failed",
			zap.String("url", target),
			zap.Int("status_code", status),
			zap.Error(err))
	})
}

func (e *Engine) toPage(ctx context.Context, req crawler.EngineRequest, pageURL string, r *colly.Response) (crawler.Page, bool) {
	if r.StatusCode != http.StatusOK || len(r.Body) == 0 {
		return crawler.Page{}, false
	}
	contentType := mediaType(r.Headers)
	page := crawler.Page{URL: pageURL, ContentType: contentType}

	switch {
	case contentType == "application/pdf" || strings.EqualFold(path.Ext(r.Request.URL.Path), ".pdf"):
		if !req.DownloadPDF {
			return crawler.Page{}, false
		}
		text, err := e.pdfText(ctx, r.Body)
		if err != nil {
			e.logger.Warn("pdf extraction failed", zap.String("url", pageURL), zap.Error(err))
			return crawler.Page{}, false
		}
		page.ContentType = "application/pdf"
		page.Content = text
	case contentType == "text/html" || contentType == "application/xhtml+xml" || contentType == "":
		text, title, err := extract.HTMLText(r.Body)
		if err != nil {
			e.logger.Warn("html parse failed", zap.String("url", pageURL), zap.Error(err))
			return crawler.Page{}, false
		}
		page.Content = []byte(text)
		page.Title = title
	case strings.HasPrefix(contentType, "text/"):
		page.Content = append([]byte(nil), r.Body...)
	default:
		return crawler.Page{}, false
	}
	if len(page.Content) == 0 {
		return crawler.Page{}, false
	}
	return page, true
}

// pdfText stages the body in a temp file so the extractor can run its
// text-layer and OCR passes on it.
func (e *Engine) pdfText(ctx context.Context, body []byte) ([]byte, error) {
	if e.extractor == nil {
		return nil, crawler.NewError(crawler.KindUnsupported, "extract pdf", "", errors.New("no extractor configured"))
	}
	f, err := os.CreateTemp(e.cfg.TempDir, "crawl-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create pdf temp file: %w", err)
	}
	name := f.Name()
	defer os.Remove(name) //nolint:errcheck // best-effort cleanup

	if _, err := f.Write(body); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write pdf temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close pdf temp file: %w", err)
	}
	text, err := e.extractor.ExtractFile(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("extract pdf: %w", err)
	}
	return text, nil
}

func (e *Engine) runCollector(ctx context.Context, collector *colly.Collector, seeds []string) error {
	done := make(chan error, 1)
	go func() {
		var firstErr error
		for _, seed := range seeds {
			if err := collector.Visit(seed); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		collector.Wait()
		done <- firstErr
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly crawl canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func isRoutineVisitError(err error) bool {
	var already *colly.AlreadyVisitedError
	return errors.As(err, &already) ||
		errors.Is(err, colly.ErrForbiddenDomain) ||
		errors.Is(err, colly.ErrMaxDepth) ||
		errors.Is(err, colly.ErrMissingURL)
}

func mediaType(headers *http.Header) string {
	if headers == nil {
		return ""
	}
	raw := headers.Get("Content-Type")
	if raw == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(raw, ";")[0]))
	}
	return mt
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
