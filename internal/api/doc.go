// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/executions/{pid}/status for execution progress.
//   - POST /v1/executions/stop for a graceful halt.
package api
