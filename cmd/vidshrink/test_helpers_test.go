package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vidshrink/internal/config"
	"vidshrink/internal/testsupport"
)

// probeJSON describes a 10 second 1080p30 clip at 20 Mbps.
const probeJSON = `{"streams":[{"codec_type":"video","width":1920,"height":1080,"r_frame_rate":"30/1","avg_frame_rate":"30/1","duration":"10.0","bit_rate":"20000000"}],"format":{"duration":"10.0","bit_rate":"20000000"}}`

const ffprobeStub = "#!/bin/sh\ncat <<'JSON'\n" + probeJSON + "\nJSON\n"

// ffmpegStub answers feature listings, reports an SSIM summary for quality
// checks and otherwise writes its last argument, emitting progress when
// asked for it.
const ffmpegStub = `#!/bin/sh
case "$2" in
  -encoders) printf ' V....D libx264              libx264 H.264\n A....D aac                  AAC (Advanced Audio Coding)\n'; exit 0 ;;
  -filters) printf ' ... ssim              VV->V      Calculate the SSIM between two video streams.\n'; exit 0 ;;
esac
for last; do :; done
case "$*" in
  *ssim*) echo "[Parsed_ssim_0 @ 0x1] SSIM Y:0.97 (15.0) All:0.97 (15.2)" >&2; exit 0 ;;
  *-progress*)
    printf 'compressed' > "$last"
    printf 'out_time_us=5000000\nprogress=continue\nout_time_us=10000000\nprogress=end\n'
    exit 0 ;;
esac
printf 'remuxed' > "$last"
`

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	all := append([]testsupport.ConfigOption{
		testsupport.WithTool("ffmpeg", ffmpegStub),
		testsupport.WithTool("ffprobe", ffprobeStub),
	}, opts...)
	cfg := testsupport.NewConfig(t, all...)

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nsource_dir = %q\noutput_dir = %q\nstate_dir = %q\nlog_dir = %q\n\n"+
			"[encoding]\nquantization_coefficient = %g\nreplace_source = %t\n\n"+
			"[tools]\nffmpeg = %q\nffprobe = %q\n\n"+
			"[logging]\nlevel = \"error\"\n",
		cfg.Paths.SourceDir,
		cfg.Paths.OutputDir,
		cfg.Paths.StateDir,
		cfg.Paths.LogDir,
		cfg.Encoding.QuantizationCoefficient,
		cfg.Encoding.ReplaceSource,
		cfg.Tools.FFmpeg,
		cfg.Tools.FFprobe,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
