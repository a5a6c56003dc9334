package history

import (
	"fmt"
	"math"
	"strings"
)

// Status labels stored in the status column.
const (
	StatusCompleted         = "completed"
	StatusCompletedDegraded = "completed, metadata copy failed"
	StatusFailed            = "failed"
	StatusCancelled         = "cancelled"
	StatusSkipped           = "skipped"
	StatusFileNotFound      = "file not found"
)

// Record is the persisted outcome for one source file.
type Record struct {
	SourcePath          string  `json:"source_path"`
	FileName            string  `json:"file_name,omitempty"`
	DurationSeconds     float64 `json:"duration_seconds,omitempty"`
	OriginalSizeBytes   int64   `json:"original_size_bytes,omitempty"`
	OriginalBitrateMbps float64 `json:"original_bitrate_mbps,omitempty"`
	TargetBitrateMbps   float64 `json:"target_bitrate_mbps,omitempty"`
	CompressedSizeBytes int64   `json:"compressed_size_bytes,omitempty"`
	CompressionRatio    float64 `json:"compression_ratio,omitempty"`
	ImpactLabel         string  `json:"impact_label,omitempty"`
	ImpactScore         float64 `json:"impact_score,omitempty"`
	Status              string  `json:"status"`
	Timestamp           string  `json:"timestamp"`
}

// IsDone reports whether status is one of the completed labels.
func IsDone(status string) bool {
	return status == StatusCompleted || status == StatusCompletedDegraded
}

// IsTransient reports whether status is never persisted.
func IsTransient(status string) bool {
	return status == StatusSkipped || status == StatusFileNotFound
}

// EncodingStatus is the in-progress label, rounded down to 10% steps so the
// store sees at most eleven writes per encode.
func EncodingStatus(percent float64) string {
	bucket := int(math.Floor(min(max(percent, 0), 100)/10)) * 10
	return fmt.Sprintf("encoding %d%%", bucket)
}

// FailedStatus renders a failure label with a short reason.
func FailedStatus(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return StatusFailed
	}
	return StatusFailed + ": " + reason
}

// SavedBytes is the size reduction, or zero when the record has no sizes.
func (r Record) SavedBytes() int64 {
	if r.OriginalSizeBytes <= 0 || r.CompressedSizeBytes <= 0 {
		return 0
	}
	return r.OriginalSizeBytes - r.CompressedSizeBytes
}

// Totals aggregates completed records.
type Totals struct {
	Completed           int   `json:"completed"`
	OriginalSizeBytes   int64 `json:"original_size_bytes"`
	CompressedSizeBytes int64 `json:"compressed_size_bytes"`
	SavedBytes          int64 `json:"saved_bytes"`
}
