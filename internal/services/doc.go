// Package services defines shared utilities consumed by the pipeline stages
// and their external tool integrations.
//
// Key responsibilities:
//   - Context helpers that stamp the job source path, stage names, and
//     correlation identifiers for logging.
//   - The failure taxonomy (probe, estimation, encode, stall, cancel,
//     quality, metadata, replace, rollback) plus the Wrap helper that keeps
//     stage context while staying matchable with errors.Is.
//
// Use these helpers when wiring new stage logic so error handling and
// observability stay uniform across the pipeline.
package services
