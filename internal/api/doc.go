// Package api serves the read-only status API: stored compression history,
// live job progress, health and Prometheus metrics.
//
// # Routes
//
//	GET /healthz                    liveness and store reachability
//	GET /api/history?limit=N        records newest first, plus totals
//	GET /api/history/record?path=P  one record by source path
//	GET /api/progress               latest event per job of the current run
//	GET /metrics                    Prometheus exposition
//
// # Design Notes
//
// DTOs use camelCase JSON tags for JavaScript consumers and are built by
// converters (FromRecord, FromEvent) so internal types never leak onto the
// wire. Timestamps use RFC3339 with milliseconds. The router is a
// gorilla/mux tree; request metrics are labelled by route template to keep
// cardinality bounded.
package api
