package encoding

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"vidshrink/internal/config"
	"vidshrink/internal/logging"
	"vidshrink/internal/services"
)

const (
	// DefaultPollInterval bounds how long a stop request or a stall can go
	// unnoticed.
	DefaultPollInterval = 250 * time.Millisecond
	// DefaultWatchdog is the stall interval used when none is configured.
	DefaultWatchdog = 30 * time.Second

	killGrace = 5 * time.Second
)

// ErrBusy is returned when Encode is called while another encode is running
// on the same Supervisor.
var ErrBusy = errors.New("encoder already running")

// Request describes one encode.
type Request struct {
	Source      string
	Destination string
	// BitRate is the target video bit rate in bits per second.
	BitRate int64
	// Duration in seconds; zero disables percentage reporting.
	Duration float64
}

// Result summarises a finished encode.
type Result struct {
	Destination string
	Size        int64
	Elapsed     time.Duration
	Progress    Progress
}

// Supervisor runs at most one encoder process at a time.
type Supervisor struct {
	FFmpeg       string
	VideoCodec   string
	AudioCodec   string
	Watchdog     time.Duration
	PollInterval time.Duration
	Logger       *slog.Logger

	active  atomic.Bool
	stopped atomic.Bool
}

// NewSupervisor builds a Supervisor from a settings snapshot.
func NewSupervisor(settings config.Settings, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		FFmpeg:       settings.FFmpeg,
		VideoCodec:   settings.VideoCodec,
		AudioCodec:   settings.AudioCodec,
		Watchdog:     settings.Watchdog,
		PollInterval: DefaultPollInterval,
		Logger:       logging.NewComponentLogger(logger, "encoder"),
	}
}

// Running reports whether an encoder process is active.
func (s *Supervisor) Running() bool {
	return s.active.Load()
}

// Stop asks the running encode to terminate. The supervising loop notices on
// its next poll tick, kills the process and removes the partial output. A
// Stop that lands before the process starts prevents the launch. Stop is a
// no-op while no encode holds the slot.
func (s *Supervisor) Stop() {
	if s.active.Load() {
		s.stopped.Store(true)
	}
}

// Encode runs the encoder for req and blocks until it exits, stalls, or is
// cancelled through ctx or Stop.
func (s *Supervisor) Encode(ctx context.Context, req Request, onProgress ProgressFunc) (Result, error) {
	if err := validateRequest(req); err != nil {
		return Result{}, err
	}
	if !s.active.CompareAndSwap(false, true) {
		return Result{}, services.Wrap(services.ErrEncodeFailed, "encode", req.Source, "", ErrBusy)
	}
	defer func() {
		s.stopped.Store(false)
		s.active.Store(false)
	}()

	if err := os.MkdirAll(filepath.Dir(req.Destination), 0o755); err != nil {
		return Result{}, services.Wrap(services.ErrEncodeFailed, "encode", "create output dir", filepath.Dir(req.Destination), err)
	}

	binary := strings.TrimSpace(s.FFmpeg)
	if binary == "" {
		binary = "ffmpeg"
	}
	args := BuildArgs(req, s.VideoCodec, s.AudioCodec)
	cmd := exec.Command(binary, args...)
	isolate(cmd)
	// stderr is copied by a goroutine; bound how long Wait may block on it
	cmd.WaitDelay = time.Second
	stderr := &tailBuffer{}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, services.Wrap(services.ErrEncodeFailed, "encode", "stdout pipe", "", err)
	}

	logger := logging.WithContext(ctx, s.logger())
	logger.Debug("encoder command", logging.String("command", binary+" "+strings.Join(args, " ")))

	if s.stopped.Load() {
		return Result{}, services.Wrap(services.ErrEncodeCancelled, "encode", req.Source, "stop requested", nil)
	}
	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, services.Wrap(services.ErrEncodeFailed, "encode", "start", binary, err)
	}

	run := &encodeRun{
		cmd:        cmd,
		req:        req,
		stderr:     stderr,
		parser:     newProgressParser(req.Duration),
		onProgress: onProgress,
		lines:      make(chan string, 64),
		readDone:   make(chan struct{}),
		exited:     make(chan error, 1),
		quit:       make(chan struct{}),
	}
	go run.readProgress(stdout)
	go run.wait()
	defer run.stopReading()

	result, err := s.supervise(ctx, run, logger)
	result.Elapsed = time.Since(start)
	return result, err
}

func (s *Supervisor) logger() *slog.Logger {
	if s.Logger == nil {
		return logging.NewNop()
	}
	return s.Logger
}

func validateRequest(req Request) error {
	if strings.TrimSpace(req.Source) == "" || strings.TrimSpace(req.Destination) == "" {
		return services.Wrap(services.ErrEncodeFailed, "encode", "", "source and destination are required", nil)
	}
	if req.BitRate <= 0 {
		return services.Wrap(services.ErrEncodeFailed, "encode", "", fmt.Sprintf("invalid bit rate %d", req.BitRate), nil)
	}
	if samePath(req.Source, req.Destination) {
		return services.Wrap(services.ErrEncodeFailed, "encode", "", "destination is the source file", nil)
	}
	return nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA == nil && errB == nil && absA == absB {
		return true
	}
	infoA, errA := os.Stat(a)
	infoB, errB := os.Stat(b)
	return errA == nil && errB == nil && os.SameFile(infoA, infoB)
}

// encodeRun holds the plumbing between the encoder process and the
// supervising loop.
type encodeRun struct {
	cmd        *exec.Cmd
	req        Request
	stderr     *tailBuffer
	parser     *progressParser
	onProgress ProgressFunc

	lines    chan string
	readDone chan struct{}
	exited   chan error
	quit     chan struct{}
	quitOnce sync.Once
}

// stopReading releases the reader goroutine from delivering lines nobody
// will consume.
func (r *encodeRun) stopReading() {
	r.quitOnce.Do(func() { close(r.quit) })
}

func (r *encodeRun) readProgress(stdout io.Reader) {
	defer close(r.readDone)
	defer close(r.lines)
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		select {
		case r.lines <- scanner.Text():
		case <-r.quit:
			_, _ = io.Copy(io.Discard, stdout)
			return
		}
	}
}

// wait reaps the process once stdout is drained; Wait closes the pipe and
// would otherwise drop the final progress lines.
func (r *encodeRun) wait() {
	<-r.readDone
	r.exited <- r.cmd.Wait()
}

func (r *encodeRun) apply(line string) {
	if r.parser.apply(line) && r.onProgress != nil {
		r.onProgress(r.parser.snapshot())
	}
}

func (s *Supervisor) supervise(ctx context.Context, run *encodeRun, logger *slog.Logger) (Result, error) {
	poll := s.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	watchdog := s.Watchdog
	if watchdog <= 0 {
		watchdog = DefaultWatchdog
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	lines := run.lines
	lastActivity := time.Now()
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			lastActivity = time.Now()
			run.apply(line)

		case waitErr := <-run.exited:
			for line := range run.lines {
				run.apply(line)
			}
			return s.finish(run, waitErr, logger)

		case <-ctx.Done():
			s.stopped.Store(true)
			s.abort(run, logger)
			return Result{Progress: run.parser.snapshot()}, services.Wrap(services.ErrEncodeCancelled, "encode", run.req.Source, "cancelled", ctx.Err())

		case <-ticker.C:
			if s.stopped.Load() {
				s.abort(run, logger)
				return Result{Progress: run.parser.snapshot()}, services.Wrap(services.ErrEncodeCancelled, "encode", run.req.Source, "stop requested", nil)
			}
			if idle := time.Since(lastActivity); idle >= watchdog {
				logging.WarnWithContext(logger, "encoder stalled; killing process", "encode_stalled",
					logging.String("source", run.req.Source),
					logging.Duration("idle", idle),
					logging.Duration("watchdog", watchdog),
					logging.String(logging.FieldErrorHint, "inspect the source for corruption or raise encoding.watchdog_seconds"),
					logging.String(logging.FieldImpact, "file left uncompressed"),
				)
				s.abort(run, logger)
				message := fmt.Sprintf("no progress for %s", watchdog)
				if tail := services.DiagnosticTail(run.stderr.String(), 5); tail != "" {
					message += ": " + tail
				}
				return Result{Progress: run.parser.snapshot()}, services.Wrap(services.ErrEncodeStalled, "encode", run.req.Source, message, nil)
			}
		}
	}
}

// abort kills the process group, waits briefly for it to be reaped, and
// removes whatever the encoder had written.
func (s *Supervisor) abort(run *encodeRun, logger *slog.Logger) {
	run.stopReading()
	if err := hardKill(run.cmd); err != nil {
		logger.Warn("encoder kill failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "encode_kill_failed"),
			logging.String(logging.FieldErrorHint, "check for a leftover ffmpeg process"),
		)
	}
	select {
	case <-run.exited:
	case <-time.After(killGrace):
		logger.Warn("encoder did not exit after kill",
			logging.Int("pid", run.cmd.Process.Pid),
			logging.String(logging.FieldEventType, "encode_kill_timeout"),
			logging.String(logging.FieldErrorHint, "check for a leftover ffmpeg process"),
		)
	}
	removePartial(run.req.Destination, logger)
}

func (s *Supervisor) finish(run *encodeRun, waitErr error, logger *slog.Logger) (Result, error) {
	progress := run.parser.snapshot()
	if waitErr != nil {
		removePartial(run.req.Destination, logger)
		message := services.DiagnosticTail(run.stderr.String(), 10)
		if message == "" {
			message = "encoder exited with an error"
		}
		return Result{Progress: progress}, services.Wrap(services.ErrEncodeFailed, "encode", run.req.Source, message, waitErr)
	}
	info, err := os.Stat(run.req.Destination)
	if err != nil {
		return Result{Progress: progress}, services.Wrap(services.ErrEncodeFailed, "encode", run.req.Source, "encoder exited cleanly but produced no output", err)
	}
	if info.Size() == 0 {
		removePartial(run.req.Destination, logger)
		return Result{Progress: progress}, services.Wrap(services.ErrEncodeFailed, "encode", run.req.Source, "encoder produced an empty output", nil)
	}
	return Result{Destination: run.req.Destination, Size: info.Size(), Progress: progress}, nil
}

func removePartial(path string, logger *slog.Logger) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to remove partial output",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "partial_output_cleanup_failed"),
			logging.String(logging.FieldErrorHint, "delete the file manually"),
		)
	}
}
