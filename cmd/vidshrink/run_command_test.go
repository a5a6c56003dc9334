package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vidshrink/internal/history"
	"vidshrink/internal/pipeline"
	"vidshrink/internal/testsupport"
)

func TestRunDryRunReportsDecisions(t *testing.T) {
	env := setupCLITestEnv(t)
	clip := filepath.Join(env.cfg.Paths.SourceDir, "clip.mp4")
	testsupport.WriteFile(t, clip, 4096)

	out, _, err := runCLI(t, []string{"run", "--dry-run"}, env.configPath)
	if err != nil {
		t.Fatalf("run --dry-run: %v", err)
	}
	requireContains(t, out, "clip.mp4")
	requireContains(t, out, "20.00 Mbps")
	requireContains(t, out, "7.46 Mbps")
	requireContains(t, out, "compress")

	if _, err := os.Stat(pipeline.OutputPath(clip, env.cfg.Settings())); !os.IsNotExist(err) {
		t.Fatalf("dry run should not write output, stat err = %v", err)
	}
}

func TestRunDryRunSkipsAtLowCoefficient(t *testing.T) {
	env := setupCLITestEnv(t)
	clip := filepath.Join(env.cfg.Paths.SourceDir, "clip.mp4")
	testsupport.WriteFile(t, clip, 4096)

	// 1920*1080*30*0.3 = 18.66 Mbps, above 90% of 20 Mbps.
	out, _, err := runCLI(t, []string{"run", "--dry-run", "--coefficient", "0.3"}, env.configPath)
	if err != nil {
		t.Fatalf("run --dry-run: %v", err)
	}
	requireContains(t, out, "18.66 Mbps")
	requireContains(t, out, "skip")
}

func TestRunSelectionFlags(t *testing.T) {
	env := setupCLITestEnv(t)
	a := filepath.Join(env.cfg.Paths.SourceDir, "a.mp4")
	b := filepath.Join(env.cfg.Paths.SourceDir, "nested", "b.mkv")
	testsupport.WriteFile(t, a, 1024)
	testsupport.WriteFile(t, b, 1024)

	tests := []struct {
		name    string
		args    []string
		want    string
		notWant string
	}{
		{name: "exclude", args: []string{"--exclude", b}, want: "a.mp4", notWant: "b.mkv"},
		{name: "explicit path", args: []string{b}, want: "b.mkv", notWant: "a.mp4"},
		{name: "invert", args: []string{"--invert", a}, want: "b.mkv", notWant: "a.mp4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"run", "--dry-run"}, tt.args...)
			out, _, err := runCLI(t, args, env.configPath)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			requireContains(t, out, tt.want)
			if strings.Contains(out, tt.notWant) {
				t.Fatalf("expected %q to be unselected:\n%s", tt.notWant, out)
			}
		})
	}
}

func TestRunNothingSelected(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WriteFile(t, filepath.Join(env.cfg.Paths.SourceDir, "a.mp4"), 1024)

	out, _, err := runCLI(t, []string{"run", "--exclude", env.cfg.Paths.SourceDir}, env.configPath)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	requireContains(t, out, "Nothing selected (1 videos found")
}

func TestRunRejectsBadInput(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WriteFile(t, filepath.Join(env.cfg.Paths.SourceDir, "a.mp4"), 1024)

	if _, _, err := runCLI(t, []string{"run", "--dry-run", "--coefficient", "0"}, env.configPath); err == nil {
		t.Fatal("expected zero coefficient to be rejected")
	}
	_, _, err := runCLI(t, []string{"run", "--dry-run", filepath.Join(env.baseDir, "elsewhere.mp4")}, env.configPath)
	if err == nil {
		t.Fatal("expected a path outside the source tree to be rejected")
	}
	requireContains(t, err.Error(), "select")
}

func TestRunCompressesAndRecordsHistory(t *testing.T) {
	env := setupCLITestEnv(t)
	clip := filepath.Join(env.cfg.Paths.SourceDir, "clip.mp4")
	testsupport.WriteFile(t, clip, 64*1024)

	out, _, err := runCLI(t, []string{"run"}, env.configPath)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	requireContains(t, out, "clip.mp4")
	requireContains(t, out, "Completed")

	target := pipeline.OutputPath(clip, env.cfg.Settings())
	if filepath.Dir(target) != env.cfg.Paths.OutputDir {
		t.Fatalf("output %s not under %s", target, env.cfg.Paths.OutputDir)
	}
	info, err := os.Stat(target)
	if err != nil {
		t.Fatalf("expected compressed output: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("compressed output is empty")
	}
	if _, err := os.Stat(clip); err != nil {
		t.Fatalf("source should be kept without --replace: %v", err)
	}

	store := testsupport.MustOpenHistory(t, env.cfg)
	rec, err := store.Get(context.Background(), clip)
	if err != nil {
		t.Fatalf("history get: %v", err)
	}
	if rec == nil || rec.Status != history.StatusCompleted {
		t.Fatalf("unexpected history record %+v", rec)
	}
	if rec.CompressedSizeBytes != info.Size() {
		t.Fatalf("recorded compressed size %d, file has %d", rec.CompressedSizeBytes, info.Size())
	}
}

func TestRunReplaceSwapsSource(t *testing.T) {
	env := setupCLITestEnv(t)
	clip := filepath.Join(env.cfg.Paths.SourceDir, "clip.mp4")
	testsupport.WriteFile(t, clip, 64*1024)

	out, _, err := runCLI(t, []string{"run", "--replace"}, env.configPath)
	if err != nil {
		t.Fatalf("run --replace: %v\n%s", err, out)
	}
	info, err := os.Stat(clip)
	if err != nil {
		t.Fatalf("source missing after replace: %v", err)
	}
	if info.Size() >= 64*1024 {
		t.Fatalf("source was not replaced, size %d", info.Size())
	}
}
