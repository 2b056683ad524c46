package collyfetcher

import (
	"net/http"
	"strings"
	"sync"
)

const defaultRefusalLimit = 3

// refusalTracker stops a crawl from asking a host again once it has refused
// limit requests with 403 or 429.
type refusalTracker struct {
	mu      sync.Mutex
	limit   int
	counts  map[string]int
	stopped map[string]struct{}
}

func newRefusalTracker(limit int) *refusalTracker {
	if limit <= 0 {
		limit = defaultRefusalLimit
	}
	return &refusalTracker{
		limit:   limit,
		counts:  make(map[string]int),
		stopped: make(map[string]struct{}),
	}
}

func isRefusal(status int) bool {
	return status == http.StatusForbidden || status == http.StatusTooManyRequests
}

func (t *refusalTracker) Stopped(host string) bool {
	if host == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.stopped[strings.ToLower(host)]
	return ok
}

// Refused counts one refusal and reports whether host is now stopped.
func (t *refusalTracker) Refused(host string) bool {
	if host == "" {
		return false
	}
	key := strings.ToLower(host)
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.stopped[key]; ok {
		return true
	}
	t.counts[key]++
	if t.counts[key] >= t.limit {
		t.stopped[key] = struct{}{}
		return true
	}
	return false
}
