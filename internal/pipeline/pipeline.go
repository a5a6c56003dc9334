package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"vidshrink/internal/config"
	"vidshrink/internal/encoding"
	"vidshrink/internal/estimate"
	"vidshrink/internal/fileutil"
	"vidshrink/internal/history"
	"vidshrink/internal/logging"
	"vidshrink/internal/media/ffprobe"
	"vidshrink/internal/metrics"
	"vidshrink/internal/quality"
	"vidshrink/internal/services"
	"vidshrink/internal/transplant"
)

// Prober reports the video properties of a file.
type Prober interface {
	Probe(ctx context.Context, path string) (ffprobe.ProbeResult, error)
}

// ProbeFunc adapts a function to Prober.
type ProbeFunc func(ctx context.Context, path string) (ffprobe.ProbeResult, error)

// Probe calls f.
func (f ProbeFunc) Probe(ctx context.Context, path string) (ffprobe.ProbeResult, error) {
	return f(ctx, path)
}

// Encoder runs one supervised encode.
type Encoder interface {
	Encode(ctx context.Context, req encoding.Request, onProgress encoding.ProgressFunc) (encoding.Result, error)
}

// QualityChecker compares an encoded file with its source.
type QualityChecker interface {
	Assess(ctx context.Context, source, encoded string) (quality.Assessment, error)
}

// Remuxer carries source streams and metadata into an encoded file.
type Remuxer interface {
	Transplant(ctx context.Context, source, encoded string) (transplant.Outcome, error)
}

// HistoryWriter persists job records.
type HistoryWriter interface {
	Upsert(ctx context.Context, rec history.Record) (bool, error)
}

// ReplaceFunc swaps output over source, restoring source on failure.
type ReplaceFunc func(source, output string, logger *slog.Logger) error

// Pipeline processes source files one at a time with a fixed Settings
// snapshot.
type Pipeline struct {
	settings  config.Settings
	prober    Prober
	encoder   Encoder
	quality   QualityChecker
	remuxer   Remuxer
	history   HistoryWriter
	replace   ReplaceFunc
	locker    *Locker
	observers []Observer
	runID     string
	logger    *slog.Logger
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithProber overrides the ffprobe-backed prober.
func WithProber(p Prober) Option { return func(pl *Pipeline) { pl.prober = p } }

// WithEncoder overrides the ffmpeg supervisor.
func WithEncoder(e Encoder) Option { return func(pl *Pipeline) { pl.encoder = e } }

// WithQualityChecker overrides the SSIM assessor.
func WithQualityChecker(q QualityChecker) Option { return func(pl *Pipeline) { pl.quality = q } }

// WithRemuxer overrides the metadata transplanter.
func WithRemuxer(r Remuxer) Option { return func(pl *Pipeline) { pl.remuxer = r } }

// WithReplacer overrides source replacement.
func WithReplacer(fn ReplaceFunc) Option { return func(pl *Pipeline) { pl.replace = fn } }

// WithLocker enables per-source locks.
func WithLocker(l *Locker) Option { return func(pl *Pipeline) { pl.locker = l } }

// WithObserver subscribes fn to job events.
func WithObserver(fn Observer) Option {
	return func(pl *Pipeline) {
		if fn != nil {
			pl.observers = append(pl.observers, fn)
		}
	}
}

// WithRunID stamps events with a run correlation id.
func WithRunID(id string) Option { return func(pl *Pipeline) { pl.runID = id } }

// New builds a pipeline over settings. store may be nil to run without
// history.
func New(settings config.Settings, store HistoryWriter, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	p := &Pipeline{
		settings: settings,
		history:  store,
		replace:  transplant.ReplaceSource,
		logger:   logging.NewComponentLogger(logger, "pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.prober == nil {
		binary := settings.FFprobe
		p.prober = ProbeFunc(func(ctx context.Context, path string) (ffprobe.ProbeResult, error) {
			return ffprobe.Probe(ctx, binary, path)
		})
	}
	if p.encoder == nil {
		p.encoder = encoding.NewSupervisor(settings, logger)
	}
	if p.quality == nil {
		p.quality = quality.NewAssessor(settings.FFmpeg, logger)
	}
	if p.remuxer == nil {
		p.remuxer = transplant.New(settings, logger)
	}
	return p
}

// Settings returns the snapshot the pipeline runs with.
func (p *Pipeline) Settings() config.Settings {
	return p.settings
}

// Summary tallies the jobs of one run.
type Summary struct {
	Jobs       []Job
	Completed  int
	Degraded   int
	Skipped    int
	Failed     int
	Cancelled  int
	SavedBytes int64
}

func (s *Summary) add(job *Job) {
	s.Jobs = append(s.Jobs, *job)
	switch job.State {
	case StateDone:
		if job.Degraded {
			s.Degraded++
		} else {
			s.Completed++
		}
		s.SavedBytes += job.SavedBytes()
	case StateSkipped:
		s.Skipped++
	case StateCancelled:
		s.Cancelled++
	default:
		s.Failed++
	}
}

// Run processes every path from paths in order. It stops early when ctx is
// cancelled or a job fails in a way that leaves the filesystem unsafe for
// further work (services.ErrRollbackFailed).
func (p *Pipeline) Run(ctx context.Context, paths iter.Seq[string]) (Summary, error) {
	var summary Summary
	for path := range paths {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		job := p.Process(ctx, path)
		summary.add(job)
		if services.IsFatal(job.Err) {
			logging.ErrorWithContext(p.logger, "aborting run", "run_aborted",
				logging.String("source", job.SourcePath),
				logging.Error(job.Err),
				logging.String(logging.FieldErrorHint, "restore the source from its .bak file before running again"),
			)
			return summary, job.Err
		}
		if job.State == StateCancelled && ctx.Err() != nil {
			return summary, ctx.Err()
		}
	}
	p.logger.Info("run finished",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int("completed", summary.Completed),
		logging.Int("degraded", summary.Degraded),
		logging.Int("skipped", summary.Skipped),
		logging.Int("failed", summary.Failed),
		logging.Int("cancelled", summary.Cancelled),
		logging.Int64("saved_bytes", summary.SavedBytes),
	)
	return summary, nil
}

// Process runs one job to a terminal state and returns it. The job's Err is
// set for Failed and Cancelled jobs and for degraded completions.
func (p *Pipeline) Process(ctx context.Context, source string) *Job {
	ctx = services.WithJob(ctx, source)
	logger := logging.WithContext(ctx, p.logger)
	job := newJob(source, p.settings)
	started := time.Now()
	defer func() {
		job.Elapsed = time.Since(started)
		p.finish(job, logger)
	}()
	p.emit(job, "queued")

	release, err := p.locker.Acquire(source)
	if err != nil {
		// the other run owns this file's history row
		p.fail(ctx, job, services.Wrap(services.ErrValidation, "lock", source, job.FileName()+" is in use by another run", err), false)
		return job
	}
	defer release()

	info, err := os.Stat(source)
	if err != nil {
		p.record(ctx, job, history.StatusFileNotFound)
		p.fail(ctx, job, services.Wrap(services.ErrNotFound, "probe", source, job.FileName()+" not found", err), false)
		return job
	}
	job.OriginalSize = info.Size()

	if !p.probe(ctx, job) {
		return job
	}
	if !p.encode(ctx, job, logger) {
		return job
	}
	p.check(ctx, job, logger)
	if !p.transplant(ctx, job, logger) {
		return job
	}
	if err := fileutil.CopyAttributes(source, job.TargetPath); err != nil {
		logging.WarnWithContext(logger, "failed to copy file attributes", "attributes_copy_failed",
			logging.String("target", job.TargetPath),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check ownership of the output directory"),
			logging.String(logging.FieldImpact, "output keeps the encode time as its modification time"),
		)
	}
	if p.settings.ReplaceSource && !job.Degraded {
		if !p.replaceSource(ctx, job, logger) {
			return job
		}
	}
	p.complete(ctx, job)
	return job
}

func (p *Pipeline) probe(ctx context.Context, job *Job) bool {
	ctx = services.WithStage(ctx, "probe")
	logger := logging.WithContext(ctx, p.logger)
	probe, err := p.prober.Probe(ctx, job.SourcePath)
	if err != nil {
		p.fail(ctx, job, err, true)
		return false
	}
	job.Probe = probe
	if err := job.transition(StateProbed); err != nil {
		p.fail(ctx, job, err, true)
		return false
	}
	p.emit(job, probe.String())

	decision, err := estimate.Plan(probe, job.Coefficient, p.settings.SkipThreshold)
	if err != nil {
		p.fail(ctx, job, err, true)
		return false
	}
	job.Decision = decision
	result := "compress"
	if decision.Skip {
		result = "skip"
	}
	logger.Info("compression decision",
		logging.Args(append(logging.DecisionAttrs("skip_policy", result, decision.Reason),
			logging.Int64("target_bps", decision.TargetBitRate),
			logging.Int64("current_bps", decision.CurrentBitRate),
		)...)...,
	)
	if decision.Skip {
		_ = job.transition(StateSkipped)
		p.record(ctx, job, history.StatusSkipped)
		p.emit(job, decision.Reason)
		return false
	}
	if err := job.transition(StateEstimating); err != nil {
		p.fail(ctx, job, err, true)
		return false
	}
	p.emit(job, "target "+estimate.FormatMbps(decision.TargetBitRate))
	return true
}

func (p *Pipeline) encode(ctx context.Context, job *Job, logger *slog.Logger) bool {
	ctx = services.WithStage(ctx, "encode")
	logger = logging.WithContext(ctx, logger)
	if err := os.MkdirAll(filepath.Dir(job.TargetPath), 0o755); err != nil {
		p.fail(ctx, job, services.Wrap(services.ErrEncodeFailed, "encode", job.SourcePath, "create output directory", err), true)
		return false
	}
	if err := job.transition(StateEncoding); err != nil {
		p.fail(ctx, job, err, true)
		return false
	}
	p.record(ctx, job, history.EncodingStatus(0))
	p.emit(job, "encoding to "+job.TargetPath)

	throttle := logging.NewPercentThrottle(10)
	lastStatus := history.EncodingStatus(0)
	onProgress := func(progress encoding.Progress) {
		job.Percent = progress.Percent
		p.emit(job, progress.String())
		if status := history.EncodingStatus(progress.Percent); status != lastStatus {
			lastStatus = status
			p.record(ctx, job, status)
		}
		if throttle.Allow(progress.Percent) {
			logger.Info("encode progress",
				logging.Float64("percent", progress.Percent),
				logging.String("speed", progress.Speed),
			)
		}
	}

	duration := 0.0
	if job.Probe.DurationKnown {
		duration = job.Probe.Duration
	}
	metrics.EncodesInFlight.Inc()
	result, err := p.encoder.Encode(ctx, encoding.Request{
		Source:      job.SourcePath,
		Destination: job.TargetPath,
		BitRate:     job.Decision.TargetBitRate,
		Duration:    duration,
	}, onProgress)
	metrics.EncodesInFlight.Dec()
	if err != nil {
		if errors.Is(err, services.ErrEncodeStalled) {
			_ = job.transition(StateStalled)
			p.emit(job, "encoder stalled")
		}
		p.fail(ctx, job, err, true)
		return false
	}
	metrics.EncodeDuration.Observe(result.Elapsed.Seconds())
	job.CompressedSize = result.Size
	job.Percent = 100
	if err := job.transition(StateEncoded); err != nil {
		p.fail(ctx, job, err, true)
		return false
	}
	p.emit(job, "encoded in "+result.Elapsed.Round(time.Second).String())
	return true
}

// check never fails the job; an unknown score only leaves the label unset.
func (p *Pipeline) check(ctx context.Context, job *Job, logger *slog.Logger) {
	ctx = services.WithStage(ctx, "quality")
	logger = logging.WithContext(ctx, logger)
	_ = job.transition(StateQualityCheck)
	if !p.settings.QualityCheck {
		p.emit(job, "quality check disabled")
		return
	}
	p.emit(job, "comparing with source")
	assessment, err := p.quality.Assess(ctx, job.SourcePath, job.TargetPath)
	job.Quality = assessment
	if err != nil {
		logging.WarnWithContext(logger, "quality assessment unavailable", "quality_unknown",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run vidshrink check to confirm ffmpeg has the ssim filter"),
			logging.String(logging.FieldImpact, "impact label recorded as unknown"),
		)
		return
	}
	if assessment.Known {
		metrics.QualityScore.Observe(assessment.Score)
	}
	logger.Info("quality assessed",
		logging.String("impact", assessment.Label),
		logging.Float64("ssim", assessment.Score),
	)
}

func (p *Pipeline) transplant(ctx context.Context, job *Job, logger *slog.Logger) bool {
	ctx = services.WithStage(ctx, "transplant")
	logger = logging.WithContext(ctx, logger)
	if err := job.transition(StateMetadataTransplant); err != nil {
		p.fail(ctx, job, err, true)
		return false
	}
	p.emit(job, "copying metadata")
	outcome, err := p.remuxer.Transplant(ctx, job.SourcePath, job.TargetPath)
	if err != nil {
		if errors.Is(err, services.ErrEncodeCancelled) || ctx.Err() != nil {
			p.fail(ctx, job, err, true)
			return false
		}
		job.Degraded = true
		job.Err = err
		logging.WarnWithContext(logger, "metadata transplant failed; keeping encoded output", "transplant_failed",
			logging.String("target", job.TargetPath),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "inspect the source streams with vidshrink check --probe"),
			logging.String(logging.FieldImpact, "output lacks source subtitles, chapters or tags"),
		)
	} else {
		job.Strategy = outcome.Strategy
	}
	if info, statErr := os.Stat(job.TargetPath); statErr == nil {
		job.CompressedSize = info.Size()
	}
	return true
}

func (p *Pipeline) replaceSource(ctx context.Context, job *Job, logger *slog.Logger) bool {
	ctx = services.WithStage(ctx, "replace")
	logger = logging.WithContext(ctx, logger)
	if err := job.transition(StateReplacingSource); err != nil {
		p.fail(ctx, job, err, true)
		return false
	}
	p.emit(job, "replacing source")
	if err := p.replace(job.SourcePath, job.TargetPath, logger); err != nil {
		p.fail(ctx, job, err, true)
		return false
	}
	job.TargetPath = job.SourcePath
	return true
}

func (p *Pipeline) complete(ctx context.Context, job *Job) {
	if err := job.transition(StateDone); err != nil {
		p.fail(ctx, job, err, true)
		return
	}
	status := history.StatusCompleted
	if job.Degraded {
		status = history.StatusCompletedDegraded
	}
	p.record(ctx, job, status)
	p.emit(job, status)
}

// fail moves job to Failed or Cancelled. When persist is set the outcome is
// written to history.
func (p *Pipeline) fail(ctx context.Context, job *Job, err error, persist bool) {
	if job.State.Terminal() {
		return
	}
	job.Err = err
	next := StateForError(err)
	if ctx.Err() != nil {
		next = StateCancelled
	}
	if !CanTransition(job.State, next) {
		next = StateFailed
	}
	job.State = next
	if next == StateCancelled {
		// a finished encode awaiting transplant is discarded with the job
		p.discardOutput(job)
	}
	if persist {
		status := history.StatusCancelled
		if next == StateFailed {
			status = history.FailedStatus(failureReason(err))
		}
		// the job context may already be cancelled
		p.record(context.WithoutCancel(ctx), job, status)
	}
	p.emit(job, fmt.Sprintf("%s: %v", job.FileName(), err))
}

func (p *Pipeline) discardOutput(job *Job) {
	if job.TargetPath == "" || job.TargetPath == job.SourcePath {
		return
	}
	if err := os.Remove(job.TargetPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.logger.Debug("failed to remove output of cancelled job", logging.String("target", job.TargetPath), logging.Error(err))
	}
}

func failureReason(err error) string {
	for _, marker := range []error{
		services.ErrProbeFailed,
		services.ErrEstimationUnavailable,
		services.ErrEncodeStalled,
		services.ErrEncodeFailed,
		services.ErrReplaceFailed,
		services.ErrRollbackFailed,
		services.ErrMetadataTransplantFailed,
	} {
		if errors.Is(err, marker) {
			return marker.Error()
		}
	}
	return ""
}

func (p *Pipeline) record(ctx context.Context, job *Job, status string) {
	if p.history == nil {
		return
	}
	rec := history.Record{
		SourcePath:          job.SourcePath,
		FileName:            job.FileName(),
		OriginalSizeBytes:   job.OriginalSize,
		TargetBitrateMbps:   estimate.Mbps(job.Decision.TargetBitRate),
		CompressedSizeBytes: job.CompressedSize,
		CompressionRatio:    job.Ratio(),
		Status:              status,
		Timestamp:           time.Now().UTC().Format(time.RFC3339),
	}
	if job.Probe.DurationKnown {
		rec.DurationSeconds = job.Probe.Duration
	}
	if job.Probe.BitRateKnown {
		rec.OriginalBitrateMbps = estimate.Mbps(job.Probe.BitRate)
	}
	if job.State != StateDone {
		// sizes of an unfinished encode are not final
		rec.CompressedSizeBytes = 0
		rec.CompressionRatio = 0
	}
	if job.Quality.Known {
		rec.ImpactLabel = job.Quality.Label
		rec.ImpactScore = job.Quality.Score
	} else if job.State == StateDone && p.settings.QualityCheck {
		rec.ImpactLabel = quality.LabelUnknown
	}
	if _, err := p.history.Upsert(ctx, rec); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, p.logger), "failed to persist history record", "history_write_failed",
			logging.String("status", status),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check free space and permissions in the state directory"),
			logging.String(logging.FieldImpact, "history shows a stale status for this file"),
		)
	}
}

func (p *Pipeline) emit(job *Job, message string) {
	if len(p.observers) == 0 {
		return
	}
	evt := job.event(p.runID, message)
	for _, observer := range p.observers {
		observer(evt)
	}
}

func (p *Pipeline) finish(job *Job, logger *slog.Logger) {
	outcome := metrics.OutcomeFailed
	switch job.State {
	case StateDone:
		outcome = metrics.OutcomeCompleted
		if job.Degraded {
			outcome = metrics.OutcomeDegraded
		}
	case StateSkipped:
		outcome = metrics.OutcomeSkipped
	case StateCancelled:
		outcome = metrics.OutcomeCancelled
	}
	metrics.RecordJob(outcome, job.SavedBytes())

	attrs := []logging.Attr{
		logging.String("state", string(job.State)),
		logging.Int64("original_bytes", job.OriginalSize),
		logging.Duration("elapsed", job.Elapsed),
	}
	if job.State == StateDone {
		attrs = append(attrs,
			logging.Int64("compressed_bytes", job.CompressedSize),
			logging.Float64("ratio", job.Ratio()),
			logging.String("impact", job.Quality.String()),
			logging.String("target", job.TargetPath),
		)
	}
	switch job.State {
	case StateFailed:
		logging.ErrorWithContext(logger, "job failed", "job_failed",
			append(attrs,
				logging.Error(job.Err),
				logging.String(logging.FieldErrorHint, hintFor(job.Err)),
			)...,
		)
	case StateCancelled:
		logger.Info("job cancelled", logging.Args(append(attrs, logging.String(logging.FieldEventType, "job_cancelled"))...)...)
	default:
		logger.Info("job finished", logging.Args(append(attrs, logging.String(logging.FieldEventType, "job_complete"))...)...)
	}
}

func hintFor(err error) string {
	switch {
	case errors.Is(err, services.ErrProbeFailed):
		return "confirm the file is a readable video with vidshrink check --probe"
	case errors.Is(err, services.ErrEstimationUnavailable):
		return "the probe reported no usable resolution or frame rate"
	case errors.Is(err, services.ErrEncodeStalled):
		return "raise encoding.watchdog_seconds if the encoder is merely slow"
	case errors.Is(err, services.ErrEncodeFailed):
		return "see the encoder output in the error for the cause"
	case errors.Is(err, services.ErrRollbackFailed):
		return "restore the source from its .bak file manually"
	case errors.Is(err, services.ErrReplaceFailed):
		return "check permissions in the source directory"
	case errors.Is(err, services.ErrNotFound):
		return "the file was moved or deleted after the scan"
	default:
		return "retry the file after resolving the error"
	}
}
