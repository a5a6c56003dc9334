package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"vidshrink/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The source directory is created; output and state directories are left to
// EnsureDirectories. Tool paths point at stubs under BaseDir/bin only when
// WithStubbedBinaries or WithTool is applied.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.SourceDir = filepath.Join(base, "videos")
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.API.Bind = "127.0.0.1:0"
	if err := os.MkdirAll(cfgVal.Paths.SourceDir, 0o755); err != nil {
		t.Fatalf("mkdir source dir: %v", err)
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithCoefficient overrides the quantization coefficient.
func WithCoefficient(value float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Encoding.QuantizationCoefficient = value
	}
}

// WithReplaceSource toggles in-place replacement.
func WithReplaceSource(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Encoding.ReplaceSource = enabled
	}
}

// WithTool writes an executable shell script named name under BaseDir/bin
// and points the matching tool setting ("ffmpeg" or "ffprobe") at it.
func WithTool(name, script string) ConfigOption {
	return func(b *configBuilder) {
		path := WriteScript(b.t, filepath.Join(b.baseDir, "bin"), name, script)
		switch name {
		case "ffmpeg":
			b.cfg.Tools.FFmpeg = path
		case "ffprobe":
			b.cfg.Tools.FFprobe = path
		}
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg and ffprobe are stubbed;
// the ffmpeg stub lists libx264, aac and the ssim filter so feature checks
// pass.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		for _, name := range names {
			script := "#!/bin/sh\nexit 0\n"
			if name == "ffmpeg" {
				script = FFmpegListingScript
			}
			WriteScript(b.t, binDir, name, script)
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
		b.cfg.Tools.FFmpeg = "ffmpeg"
		b.cfg.Tools.FFprobe = "ffprobe"
	}
}

// FFmpegListingScript answers -encoders and -filters like a stock ffmpeg
// build and exits 0 for anything else.
const FFmpegListingScript = `#!/bin/sh
case "$2" in
  -encoders) printf ' V....D libx264              libx264 H.264\n A....D aac                  AAC (Advanced Audio Coding)\n' ;;
  -filters) printf ' ... ssim              VV->V      Calculate the SSIM between two video streams.\n' ;;
esac
exit 0
`

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
