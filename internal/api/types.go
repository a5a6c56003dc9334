package api

import (
	"time"

	"vidshrink/internal/history"
	"vidshrink/internal/pipeline"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Record is a history entry in a transport-friendly format.
type Record struct {
	SourcePath          string  `json:"sourcePath"`
	FileName            string  `json:"fileName"`
	DurationSeconds     float64 `json:"durationSeconds,omitempty"`
	OriginalSizeBytes   int64   `json:"originalSizeBytes,omitempty"`
	OriginalBitrateMbps float64 `json:"originalBitrateMbps,omitempty"`
	TargetBitrateMbps   float64 `json:"targetBitrateMbps,omitempty"`
	CompressedSizeBytes int64   `json:"compressedSizeBytes,omitempty"`
	CompressionRatio    float64 `json:"compressionRatio,omitempty"`
	SavedBytes          int64   `json:"savedBytes,omitempty"`
	ImpactLabel         string  `json:"impactLabel,omitempty"`
	ImpactScore         float64 `json:"impactScore,omitempty"`
	Status              string  `json:"status"`
	Completed           bool    `json:"completed"`
	UpdatedAt           string  `json:"updatedAt,omitempty"`
}

// Totals summarises completed records.
type Totals struct {
	Completed           int   `json:"completed"`
	OriginalSizeBytes   int64 `json:"originalSizeBytes"`
	CompressedSizeBytes int64 `json:"compressedSizeBytes"`
	SavedBytes          int64 `json:"savedBytes"`
}

// HistoryResponse wraps the history listing.
type HistoryResponse struct {
	Records []Record `json:"records"`
	Totals  Totals   `json:"totals"`
}

// RecordResponse wraps a single history record.
type RecordResponse struct {
	Record Record `json:"record"`
}

// JobProgress is the latest known state of one job.
type JobProgress struct {
	RunID      string  `json:"runId,omitempty"`
	SourcePath string  `json:"sourcePath"`
	FileName   string  `json:"fileName"`
	State      string  `json:"state"`
	Percent    float64 `json:"percent"`
	Message    string  `json:"message,omitempty"`
	Error      string  `json:"error,omitempty"`
	Terminal   bool    `json:"terminal"`
	UpdatedAt  string  `json:"updatedAt"`
}

// ProgressResponse lists job progress, active jobs first by path.
type ProgressResponse struct {
	Jobs   []JobProgress `json:"jobs"`
	Active int           `json:"active"`
}

// HealthResponse reports liveness.
type HealthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	History bool   `json:"history"`
	Detail  string `json:"detail,omitempty"`
}

// FromRecord converts a stored record.
func FromRecord(rec history.Record) Record {
	return Record{
		SourcePath:          rec.SourcePath,
		FileName:            rec.FileName,
		DurationSeconds:     rec.DurationSeconds,
		OriginalSizeBytes:   rec.OriginalSizeBytes,
		OriginalBitrateMbps: rec.OriginalBitrateMbps,
		TargetBitrateMbps:   rec.TargetBitrateMbps,
		CompressedSizeBytes: rec.CompressedSizeBytes,
		CompressionRatio:    rec.CompressionRatio,
		SavedBytes:          rec.SavedBytes(),
		ImpactLabel:         rec.ImpactLabel,
		ImpactScore:         rec.ImpactScore,
		Status:              rec.Status,
		Completed:           history.IsDone(rec.Status),
		UpdatedAt:           formatTimestamp(rec.Timestamp),
	}
}

// FromTotals converts aggregate history totals.
func FromTotals(t history.Totals) Totals {
	return Totals{
		Completed:           t.Completed,
		OriginalSizeBytes:   t.OriginalSizeBytes,
		CompressedSizeBytes: t.CompressedSizeBytes,
		SavedBytes:          t.SavedBytes,
	}
}

// FromEvent converts a pipeline event.
func FromEvent(evt pipeline.Event) JobProgress {
	return JobProgress{
		RunID:      evt.RunID,
		SourcePath: evt.SourcePath,
		FileName:   evt.FileName,
		State:      string(evt.State),
		Percent:    evt.Percent,
		Message:    evt.Message,
		Error:      evt.Error,
		Terminal:   evt.State.Terminal(),
		UpdatedAt:  evt.Time.UTC().Format(dateTimeFormat),
	}
}

func formatTimestamp(value string) string {
	if value == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	return t.UTC().Format(dateTimeFormat)
}
