package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTransient     = errors.New("transient failure")
)

// Pipeline failure taxonomy. Probe, estimation and encode errors fail only the
// current job; quality and metadata errors degrade it; replace errors surface
// after a rollback attempt and rollback errors abort the batch.
var (
	ErrProbeFailed              = errors.New("probe failed")
	ErrEstimationUnavailable    = errors.New("estimation unavailable")
	ErrEncodeFailed             = errors.New("encode failed")
	ErrEncodeStalled            = errors.New("encode stalled")
	ErrEncodeCancelled          = errors.New("encode cancelled")
	ErrQualityUnknown           = errors.New("quality unknown")
	ErrMetadataTransplantFailed = errors.New("metadata transplant failed")
	ErrReplaceFailed            = errors.New("replace failed")
	ErrRollbackFailed           = errors.New("rollback failed")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of
// the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether err leaves the filesystem in a state the batch must
// not continue past.
func IsFatal(err error) bool {
	return errors.Is(err, ErrRollbackFailed)
}

// DiagnosticTail keeps the last maxLines non-empty lines of external tool
// output so error messages stay readable.
func DiagnosticTail(output string, maxLines int) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	if maxLines > 0 && len(kept) > maxLines {
		kept = kept[len(kept)-maxLines:]
	}
	return strings.Join(kept, "\n")
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
