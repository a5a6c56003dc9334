// Package pipeline orchestrates one compression job per source file.
//
// Each job walks a fixed state machine: probe, estimate and decide, encode
// under supervision, assess quality, transplant metadata, and optionally
// replace the source. Probe, estimate and encode failures fail only the job;
// quality and metadata failures degrade it; a failed rollback during source
// replacement aborts the whole run. Jobs run sequentially within a Pipeline.
// Separate pipelines may share a source tree because every job holds a
// per-source file lock while it runs.
//
// Observers receive immutable Event values; Tracker keeps the latest event
// per job for the status API.
package pipeline
