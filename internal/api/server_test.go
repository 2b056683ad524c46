package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRuns struct {
	mu       sync.Mutex
	running  bool
	triggers int
	last     *RunSummary
}

func (f *fakeRuns) Trigger() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return false
	}
	f.running = true
	f.triggers++
	return true
}

func (f *fakeRuns) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Snapshot{Running: f.running, LastRun: f.last}
}

func serve(t *testing.T, s *Server, method, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthRoutes(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeRuns{}, Options{}, zap.NewNop())
	for _, path := range []string{"/", "/healthz", "/readyz"} {
		rec := serve(t, s, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	}
}

func TestReadyzReportsDependencyFailure(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeRuns{}, Options{Ready: func(context.Context) error { return errors.New("db down") }}, nil)
	rec := serve(t, s, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "db down")
}

func TestStatusReturnsSnapshot(t *testing.T) {
	t.Parallel()

	runs := &fakeRuns{last: &RunSummary{RunNumber: 7, PagesCrawled: 12, SitesCrawled: 2, SitesFailed: 1}}
	rec := serve(t, NewServer(runs, Options{}, nil), http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.False(t, got.Running)
	require.NotNil(t, got.LastRun)
	assert.Equal(t, int64(7), got.LastRun.RunNumber)
	assert.Equal(t, 12, got.LastRun.PagesCrawled)
	assert.Equal(t, 1, got.LastRun.SitesFailed)
}

func TestTriggerRunConflictsWhileRunning(t *testing.T) {
	t.Parallel()

	runs := &fakeRuns{}
	s := NewServer(runs, Options{}, nil)

	rec := serve(t, s, http.MethodPost, "/v1/runs", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = serve(t, s, http.MethodPost, "/v1/runs", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 1, runs.triggers)
}

func TestAPIKeyGuardsRunsOnly(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeRuns{}, Options{APIKey: "secret"}, nil)

	assert.Equal(t, http.StatusOK, serve(t, s, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusForbidden, serve(t, s, http.MethodPost, "/v1/runs", nil).Code)
	assert.Equal(t, http.StatusAccepted,
		serve(t, s, http.MethodPost, "/v1/runs", map[string]string{"X-API-Key": "secret"}).Code)
}

func TestMetricsRoute(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(&fakeRuns{}, Options{}, nil), http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# HELP")
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	h := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(&fakeRuns{}, Options{Timeout: time.Second}, nil), http.MethodGet, "/healthz", nil)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rw.Hijack()
	require.EqualError(t, err, "hijacker not supported")

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	require.NoError(t, h.CloseClient())
	assert.NotNil(t, buf)
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}
