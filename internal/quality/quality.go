// Package quality measures how much an encode degraded its source using
// ffmpeg's SSIM filter and maps the score to an impact label.
package quality

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"vidshrink/internal/logging"
	"vidshrink/internal/services"
)

// Impact labels, from least to most visible loss.
const (
	LabelNegligible  = "negligible"
	LabelSlight      = "slight"
	LabelModerate    = "moderate"
	LabelSignificant = "significant"
	LabelUnknown     = "unknown"
)

// Inclusive lower bounds for each label.
const (
	negligibleFloor = 0.98
	slightFloor     = 0.95
	moderateFloor   = 0.90
)

// Assessment is the result of one comparison. Known is false when the score
// could not be extracted; Label is then LabelUnknown.
type Assessment struct {
	Score float64
	Label string
	Known bool
}

func (a Assessment) String() string {
	if !a.Known {
		return LabelUnknown
	}
	return fmt.Sprintf("%s (%.4f)", a.Label, a.Score)
}

// Label maps an SSIM score to an impact label.
func Label(score float64) string {
	switch {
	case score >= negligibleFloor:
		return LabelNegligible
	case score >= slightFloor:
		return LabelSlight
	case score >= moderateFloor:
		return LabelModerate
	default:
		return LabelSignificant
	}
}

var allScorePattern = regexp.MustCompile(`All:\s*([0-9]*\.?[0-9]+)`)

// ParseScore extracts the aggregate score from the ssim filter's summary
// line. Per-frame or per-plane values are ignored.
func ParseScore(output string) (float64, bool) {
	lines := strings.Split(output, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := lines[i]
		if !strings.Contains(line, "SSIM") {
			continue
		}
		match := allScorePattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		score, err := strconv.ParseFloat(match[1], 64)
		if err != nil || score < 0 || score > 1 {
			return 0, false
		}
		return score, true
	}
	return 0, false
}

// Assessor runs the similarity comparison.
type Assessor struct {
	FFmpeg string
	Logger *slog.Logger
}

// NewAssessor returns an Assessor using the given ffmpeg binary.
func NewAssessor(ffmpeg string, logger *slog.Logger) *Assessor {
	return &Assessor{FFmpeg: ffmpeg, Logger: logging.NewComponentLogger(logger, "quality")}
}

// Assess compares encoded against source. A missing or unparsable score
// yields an Assessment labelled unknown together with an error marked
// services.ErrQualityUnknown; callers log it and carry on. Cancellation is
// reported as services.ErrEncodeCancelled.
func (a *Assessor) Assess(ctx context.Context, source, encoded string) (Assessment, error) {
	unknown := Assessment{Label: LabelUnknown}
	binary := strings.TrimSpace(a.FFmpeg)
	if binary == "" {
		binary = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, binary, Args(source, encoded)...)
	output, runErr := cmd.CombinedOutput()
	if ctx.Err() != nil {
		return unknown, services.Wrap(services.ErrEncodeCancelled, "quality", source, "cancelled", ctx.Err())
	}

	score, ok := ParseScore(string(output))
	if !ok {
		detail := services.DiagnosticTail(string(output), 5)
		if detail == "" {
			detail = "no SSIM summary in output"
		}
		return unknown, services.Wrap(services.ErrQualityUnknown, "quality", source, detail, runErr)
	}
	assessment := Assessment{Score: score, Label: Label(score), Known: true}
	if a.Logger != nil {
		logging.WithContext(ctx, a.Logger).Debug("quality assessed",
			logging.Float64("ssim", score),
			logging.String("impact", assessment.Label),
		)
	}
	return assessment, nil
}

// Args builds the comparison command. The encoded file is the main input and
// the source the reference.
func Args(source, encoded string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-nostats",
		"-i", encoded,
		"-i", source,
		"-lavfi", "[0:v][1:v]ssim",
		"-f", "null",
		"-",
	}
}
