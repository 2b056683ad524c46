// Package api hosts the HTTP server, middleware, and handlers for operator
// access. Notable routes:
//   - GET / and /healthz for liveness, /readyz for readiness.
//   - GET /status for the current and most recent ingestion run.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/runs to start an ingestion run outside the schedule.
package api
