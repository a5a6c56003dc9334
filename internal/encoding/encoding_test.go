package encoding

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"vidshrink/internal/services"
)

// lastArg assigns the destination path (the final argument) to $dest.
const lastArg = `for dest; do :; done
`

func writeStub(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+lastArg+body), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func newTestSupervisor(binary string) *Supervisor {
	return &Supervisor{
		FFmpeg:       binary,
		Watchdog:     5 * time.Second,
		PollInterval: 20 * time.Millisecond,
	}
}

func newRequest(t *testing.T) Request {
	t.Helper()
	dir := t.TempDir()
	source := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(source, []byte("original source bytes"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return Request{
		Source:      source,
		Destination: filepath.Join(dir, "out", "clip_comp.mp4"),
		BitRate:     7_464_960,
		Duration:    10,
	}
}

func assertSourceIntact(t *testing.T, req Request) {
	t.Helper()
	data, err := os.ReadFile(req.Source)
	if err != nil {
		t.Fatalf("read source: %v", err)
	}
	if !bytes.Equal(data, []byte("original source bytes")) {
		t.Fatalf("source modified: %q", data)
	}
}

func assertNoOutput(t *testing.T, req Request) {
	t.Helper()
	if _, err := os.Stat(req.Destination); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected partial output removed, stat err = %v", err)
	}
}

func TestBuildArgs(t *testing.T) {
	req := Request{Source: "/in/a.mkv", Destination: "/out/a_comp.mp4", BitRate: 7_464_960}
	args := BuildArgs(req, "", "")
	joined := strings.Join(args, " ")
	for _, want := range []string{
		"-i /in/a.mkv",
		"-b:v 7464960",
		"-c:v libx264",
		"-c:a copy",
		"-pix_fmt yuv420p",
		"-movflags +faststart",
		"-progress pipe:1",
		"-nostats",
		"-y",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %s", want, joined)
		}
	}
	if args[len(args)-1] != req.Destination {
		t.Fatalf("destination must be the final argument: %v", args)
	}

	req.Destination = "/out/a_comp.mkv"
	if slices.Contains(BuildArgs(req, "libx265", "copy"), "-movflags") {
		t.Fatal("faststart should only be requested for mp4-family containers")
	}
}

func TestProgressParser(t *testing.T) {
	p := newProgressParser(10)
	steps := []struct {
		line        string
		wantChanged bool
		wantPercent float64
	}{
		{"frame=10", false, 0},
		{"out_time_us=2500000", true, 25},
		{"out_time_us=N/A", false, 25},
		{"out_time_ms=5000000", true, 50},
		{"out_time_us=1000000", false, 50},
		{"speed=1.5x", false, 50},
		{"garbage", false, 50},
		{"out_time_us=99000000", true, 100},
		{"progress=end", true, 100},
		{"progress=end", false, 100},
	}
	for _, step := range steps {
		changed := p.apply(step.line)
		if changed != step.wantChanged {
			t.Fatalf("apply(%q) changed = %v, want %v", step.line, changed, step.wantChanged)
		}
		if got := p.snapshot().Percent; got != step.wantPercent {
			t.Fatalf("after %q percent = %v, want %v", step.line, got, step.wantPercent)
		}
	}
	if p.snapshot().Speed != "1.5x" || !p.snapshot().Done {
		t.Fatalf("unexpected final snapshot %+v", p.snapshot())
	}
}

func TestProgressParserUnknownDuration(t *testing.T) {
	p := newProgressParser(0)
	if !p.apply("out_time_us=3000000") {
		t.Fatal("out time should still be tracked without a duration")
	}
	got := p.snapshot()
	if got.Percent != 0 || got.OutTime != 3*time.Second {
		t.Fatalf("unexpected snapshot %+v", got)
	}
}

func TestEncodeReportsProgress(t *testing.T) {
	stub := writeStub(t, `echo "out_time_us=2500000"
echo "out_time_us=N/A"
echo "out_time_us=5000000"
printf 'encoded' > "$dest"
echo "progress=end"
`)
	req := newRequest(t)
	var percents []float64
	result, err := newTestSupervisor(stub).Encode(context.Background(), req, func(p Progress) {
		percents = append(percents, p.Percent)
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !slices.Equal(percents, []float64{25, 50, 100}) {
		t.Fatalf("progress = %v", percents)
	}
	if result.Size != int64(len("encoded")) || result.Destination != req.Destination {
		t.Fatalf("unexpected result %+v", result)
	}
	assertSourceIntact(t, req)
}

func TestEncodeNonZeroExit(t *testing.T) {
	stub := writeStub(t, `printf 'partial' > "$dest"
echo "clip.mp4: Invalid data found when processing input" >&2
exit 1
`)
	req := newRequest(t)
	_, err := newTestSupervisor(stub).Encode(context.Background(), req, nil)
	if !errors.Is(err, services.ErrEncodeFailed) {
		t.Fatalf("expected ErrEncodeFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid data found") {
		t.Fatalf("expected diagnostic in error, got %v", err)
	}
	assertNoOutput(t, req)
	assertSourceIntact(t, req)
}

func TestEncodeMissingOutput(t *testing.T) {
	stub := writeStub(t, `echo "progress=end"
exit 0
`)
	req := newRequest(t)
	_, err := newTestSupervisor(stub).Encode(context.Background(), req, nil)
	if !errors.Is(err, services.ErrEncodeFailed) {
		t.Fatalf("expected ErrEncodeFailed, got %v", err)
	}
}

func TestEncodeStallKillsProcess(t *testing.T) {
	stub := writeStub(t, `printf 'partial' > "$dest"
echo "out_time_us=1000000"
exec sleep 30
`)
	req := newRequest(t)
	sup := newTestSupervisor(stub)
	sup.Watchdog = 300 * time.Millisecond

	start := time.Now()
	_, err := sup.Encode(context.Background(), req, nil)
	if !errors.Is(err, services.ErrEncodeStalled) {
		t.Fatalf("expected ErrEncodeStalled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("stall detection took %v", elapsed)
	}
	if sup.Running() {
		t.Fatal("supervisor still marked running")
	}
	assertNoOutput(t, req)
	assertSourceIntact(t, req)
}

func TestEncodeCancellation(t *testing.T) {
	stub := writeStub(t, `printf 'partial' > "$dest"
while true; do
  echo "out_time_us=1000000"
  sleep 0.1
done
`)
	req := newRequest(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := time.Now()
	_, err := newTestSupervisor(stub).Encode(ctx, req, func(Progress) { cancel() })
	if !errors.Is(err, services.ErrEncodeCancelled) {
		t.Fatalf("expected ErrEncodeCancelled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("cancellation took %v", elapsed)
	}
	assertNoOutput(t, req)
	assertSourceIntact(t, req)
}

func TestEncodeStop(t *testing.T) {
	stub := writeStub(t, `printf 'partial' > "$dest"
echo "out_time_us=1000000"
exec sleep 30
`)
	req := newRequest(t)
	sup := newTestSupervisor(stub)
	_, err := sup.Encode(context.Background(), req, func(Progress) { sup.Stop() })
	if !errors.Is(err, services.ErrEncodeCancelled) {
		t.Fatalf("expected ErrEncodeCancelled, got %v", err)
	}
	assertNoOutput(t, req)
}

func TestEncodeStopBeforeLaunchSkipsEncoder(t *testing.T) {
	stub := writeStub(t, `touch "$0.launched"
printf 'encoded' > "$dest"
echo "progress=end"
`)
	req := newRequest(t)
	sup := newTestSupervisor(stub)
	// A Stop that landed after the slot was claimed but before launch.
	sup.stopped.Store(true)

	_, err := sup.Encode(context.Background(), req, nil)
	if !errors.Is(err, services.ErrEncodeCancelled) {
		t.Fatalf("expected ErrEncodeCancelled, got %v", err)
	}
	if _, statErr := os.Stat(stub + ".launched"); !os.IsNotExist(statErr) {
		t.Fatalf("encoder should not have been launched, stat err = %v", statErr)
	}
	assertNoOutput(t, req)

	if _, err := sup.Encode(context.Background(), req, nil); err != nil {
		t.Fatalf("stop flag should not outlive the cancelled encode: %v", err)
	}
}

func TestStopWhileIdleIsIgnored(t *testing.T) {
	stub := writeStub(t, `printf 'encoded' > "$dest"
echo "progress=end"
`)
	req := newRequest(t)
	sup := newTestSupervisor(stub)
	sup.Stop()
	if _, err := sup.Encode(context.Background(), req, nil); err != nil {
		t.Fatalf("Encode after idle Stop: %v", err)
	}
}

func TestEncodeRejectsSourceAsDestination(t *testing.T) {
	stub := writeStub(t, `printf 'clobbered' > "$dest"
`)
	req := newRequest(t)
	req.Destination = req.Source
	_, err := newTestSupervisor(stub).Encode(context.Background(), req, nil)
	if !errors.Is(err, services.ErrEncodeFailed) {
		t.Fatalf("expected ErrEncodeFailed, got %v", err)
	}
	assertSourceIntact(t, req)
}
