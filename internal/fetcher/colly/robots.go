package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/legal-ingest-crawler/internal/metrics"
)

// allowAllRobots stands in for a robots.txt that could not be read. colly
// treats a 5xx robots.txt as disallow-all, which would silently empty a
// crawl of a flaky government host.
const allowAllRobots = "User-agent: *\nAllow: /\n"

var defaultRobotsBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// robotsTransport retries robots.txt fetches that time out or return 5xx and
// falls back to allow-all per host once the retries are spent. Every other
// request goes straight to next.
type robotsTransport struct {
	next    http.RoundTripper
	backoff []time.Duration

	mu        sync.Mutex
	fallbacks map[string]string
}

func newRobotsTransport(next http.RoundTripper) *robotsTransport {
	return &robotsTransport{
		next:      next,
		backoff:   defaultRobotsBackoff,
		fallbacks: make(map[string]string),
	}
}

func (t *robotsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil || req.URL == nil {
		return nil, errors.New("robots transport: request has no url")
	}
	if !strings.EqualFold(req.URL.Path, "/robots.txt") {
		return t.next.RoundTrip(req) //nolint:wrapcheck // transparent pass-through
	}
	return t.fetchRobots(req)
}

func (t *robotsTransport) fetchRobots(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	var reason string
	for attempt := 0; ; attempt++ {
		resp, err := t.next.RoundTrip(req.Clone(ctx))
		switch {
		case err == nil && resp.StatusCode < http.StatusInternalServerError:
			return resp, nil
		case err == nil:
			reason = fmt.Sprintf("robots.txt answered %d", resp.StatusCode)
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		case ctx.Err() == nil && isTimeout(err):
			reason = "robots.txt timed out"
		default:
			return nil, fmt.Errorf("fetch robots.txt: %w", err)
		}

		if attempt >= len(t.backoff) {
			break
		}
		if err := waitBackoff(ctx, t.backoff[attempt]); err != nil {
			return nil, fmt.Errorf("fetch robots.txt: %w", err)
		}
	}

	t.recordFallback(req.URL.Host, reason)
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": {"text/plain"}},
		Body:          io.NopCloser(strings.NewReader(allowAllRobots)),
		ContentLength: int64(len(allowAllRobots)),
		Request:       req,
	}, nil
}

func (t *robotsTransport) recordFallback(host, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, seen := t.fallbacks[host]; seen {
		return
	}
	t.fallbacks[host] = reason
	metrics.ObserveRobotsFallback()
}

// Fallbacks lists "host: reason" for every host crawled without its
// robots.txt, sorted by host.
func (t *robotsTransport) Fallbacks() []string {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.fallbacks))
	for host, reason := range t.fallbacks {
		out = append(out, host+": "+reason)
	}
	sort.Strings(out)
	return out
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func waitBackoff(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
