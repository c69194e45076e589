// Package api hosts the HTTP server, middleware, and JSON handlers polled by
// the dashboard. Notable routes:
//   - POST /api/submit-url and /api/upload-csv to create jobs.
//   - POST /api/start-indexing to run deferred uploads.
//   - /api/accounts and /api/upload-account for service-account keys.
//   - GET /api/requests, /api/status/{id}, /api/python-status for polling.
//   - GET /healthz, /readyz, and /metrics for orchestrator health checks and Prometheus scraping.
package api
