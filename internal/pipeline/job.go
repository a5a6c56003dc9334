package pipeline

import (
	"path/filepath"
	"strings"
	"time"

	"vidshrink/internal/config"
	"vidshrink/internal/estimate"
	"vidshrink/internal/media/ffprobe"
	"vidshrink/internal/quality"
	"vidshrink/internal/selection"
)

// Job is the pipeline's working record for one source. It is owned by the
// pipeline while the job runs; observers see Event snapshots instead.
type Job struct {
	SourcePath  string
	TargetPath  string
	Coefficient float64
	State       State
	Percent     float64
	Err         error

	Probe          ffprobe.ProbeResult
	Decision       estimate.Decision
	Quality        quality.Assessment
	Strategy       string
	Degraded       bool
	OriginalSize   int64
	CompressedSize int64
	Elapsed        time.Duration
}

func newJob(source string, settings config.Settings) *Job {
	return &Job{
		SourcePath:  source,
		TargetPath:  OutputPath(source, settings),
		Coefficient: settings.QuantizationCoefficient,
		State:       StatePending,
	}
}

func (j *Job) transition(next State) error {
	if !CanTransition(j.State, next) {
		return transitionError(j.State, next)
	}
	j.State = next
	return nil
}

// FileName is the base name of the source.
func (j *Job) FileName() string {
	return filepath.Base(j.SourcePath)
}

// Ratio is compressed size over original size, or zero when unknown.
func (j *Job) Ratio() float64 {
	if j.OriginalSize <= 0 || j.CompressedSize <= 0 {
		return 0
	}
	return float64(j.CompressedSize) / float64(j.OriginalSize)
}

// SavedBytes is the size reduction of a finished job.
func (j *Job) SavedBytes() int64 {
	if j.State != StateDone || j.CompressedSize <= 0 {
		return 0
	}
	return j.OriginalSize - j.CompressedSize
}

// OutputPath names the encoded file for source: <stem><suffix><ext> in the
// output directory, mirroring the source's position below the source
// directory, or beside the source when no output directory is set.
func OutputPath(source string, settings config.Settings) string {
	ext := filepath.Ext(source)
	stem := strings.TrimSuffix(filepath.Base(source), ext)
	dir := filepath.Dir(source)
	if settings.OutputDir != "" {
		dir = settings.OutputDir
		if settings.SourceDir != "" {
			if rel, err := filepath.Rel(settings.SourceDir, filepath.Dir(source)); err == nil && !strings.HasPrefix(rel, "..") {
				dir = filepath.Join(settings.OutputDir, rel)
			}
		}
	}
	suffix := settings.OutputSuffix
	target := filepath.Join(dir, stem+suffix+ext)
	if filepath.Clean(target) == filepath.Clean(source) {
		target = filepath.Join(dir, stem+selection.FallbackOutputSuffix+ext)
	}
	return target
}
