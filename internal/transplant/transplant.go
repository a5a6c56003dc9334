package transplant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"vidshrink/internal/config"
	"vidshrink/internal/logging"
	"vidshrink/internal/media/ffprobe"
	"vidshrink/internal/services"
)

// RemuxTempMarker is inserted between stem and extension of the
// intermediate file.
const RemuxTempMarker = ".remux.tmp"

// inspectSource is replaced in tests.
var inspectSource = ffprobe.Inspect

// Attempt records one strategy's outcome.
type Attempt struct {
	Strategy string
	Err      error
}

// Outcome reports which strategy produced the final file, if any.
type Outcome struct {
	Strategy string
	Attempts []Attempt
}

// Transplanter runs remux strategies in order until one succeeds.
type Transplanter struct {
	FFmpeg     string
	FFprobe    string
	Strategies []Strategy
	Logger     *slog.Logger
}

// New builds a Transplanter with the default strategies.
func New(settings config.Settings, logger *slog.Logger) *Transplanter {
	return &Transplanter{
		FFmpeg:     settings.FFmpeg,
		FFprobe:    settings.FFprobe,
		Strategies: DefaultStrategies(),
		Logger:     logging.NewComponentLogger(logger, "transplant"),
	}
}

// IntermediatePath returns the remux scratch path for encoded:
// <dir>/<stem>.remux.tmp<ext>.
func IntermediatePath(encoded string) string {
	ext := filepath.Ext(encoded)
	stem := strings.TrimSuffix(filepath.Base(encoded), ext)
	return filepath.Join(filepath.Dir(encoded), stem+RemuxTempMarker+ext)
}

// Transplant rewrites encoded in place so it carries the source's non-video
// streams and metadata. On failure encoded is left exactly as the encoder
// produced it and the error is marked services.ErrMetadataTransplantFailed.
func (t *Transplanter) Transplant(ctx context.Context, source, encoded string) (Outcome, error) {
	logger := logging.WithContext(ctx, t.logger())
	strategies := t.Strategies
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	intermediate := IntermediatePath(encoded)
	defer removeIntermediate(intermediate, logger)

	inputs := Inputs{
		Encoded:      encoded,
		Source:       source,
		Output:       intermediate,
		CreationTime: t.creationTime(ctx, source, logger),
	}

	var outcome Outcome
	var errs []error
	for _, strategy := range strategies {
		err := t.run(ctx, strategy, inputs)
		outcome.Attempts = append(outcome.Attempts, Attempt{Strategy: strategy.Name, Err: err})
		if err == nil {
			if err := ReplaceFile(intermediate, encoded); err != nil {
				return outcome, services.Wrap(services.ErrMetadataTransplantFailed, "transplant", "replace encoded output", encoded, err)
			}
			outcome.Strategy = strategy.Name
			if len(outcome.Attempts) > 1 {
				logging.WarnWithContext(logger, "metadata transplant fell back to a reduced stream set", "transplant_fallback",
					logging.String("strategy", strategy.Name),
					logging.String(logging.FieldErrorHint, "subtitle or chapter streams may be incompatible with the output container"),
					logging.String(logging.FieldImpact, "some source streams were not carried over"),
				)
			}
			return outcome, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", strategy.Name, err))
		removeIntermediate(intermediate, logger)
		if ctx.Err() != nil {
			return outcome, services.Wrap(services.ErrEncodeCancelled, "transplant", source, "cancelled", ctx.Err())
		}
		logger.Debug("remux strategy failed",
			logging.String("strategy", strategy.Name),
			logging.Error(err),
		)
	}
	return outcome, services.Wrap(services.ErrMetadataTransplantFailed, "transplant", source, "all remux strategies failed", errors.Join(errs...))
}

func (t *Transplanter) run(ctx context.Context, strategy Strategy, inputs Inputs) error {
	binary := strings.TrimSpace(t.FFmpeg)
	if binary == "" {
		binary = "ffmpeg"
	}
	output, err := exec.CommandContext(ctx, binary, strategy.Args(inputs)...).CombinedOutput()
	if err != nil {
		if tail := services.DiagnosticTail(string(output), 5); tail != "" {
			return fmt.Errorf("%w: %s", err, tail)
		}
		return err
	}
	info, err := os.Stat(inputs.Output)
	if err != nil {
		return fmt.Errorf("remux produced no output: %w", err)
	}
	if info.Size() == 0 {
		return errors.New("remux produced an empty output")
	}
	return nil
}

// creationTime is best effort; a source without the tag or a failed
// inspection simply leaves creation_time to -map_metadata.
func (t *Transplanter) creationTime(ctx context.Context, source string, logger *slog.Logger) string {
	result, err := inspectSource(ctx, t.FFprobe, source)
	if err != nil {
		logger.Debug("creation time lookup failed", logging.Error(err))
		return ""
	}
	return result.CreationTime()
}

func (t *Transplanter) logger() *slog.Logger {
	if t.Logger == nil {
		return logging.NewNop()
	}
	return t.Logger
}

func removeIntermediate(path string, logger *slog.Logger) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to remove intermediate remux file",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "remux_cleanup_failed"),
			logging.String(logging.FieldErrorHint, "delete the .remux.tmp file manually"),
		)
	}
}
