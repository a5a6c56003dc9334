package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	SourceDir string `toml:"source_dir"`
	OutputDir string `toml:"output_dir"`
	StateDir  string `toml:"state_dir"`
	LogDir    string `toml:"log_dir"`
}

// Encoding contains the knobs consumed by the transcode pipeline.
type Encoding struct {
	// QuantizationCoefficient converts pixel throughput into a bit rate.
	// Recommended range is 0.07-0.15; values outside it are accepted.
	QuantizationCoefficient float64 `toml:"quantization_coefficient"`
	// SkipThreshold is the fraction of the current bit rate at or above which
	// the estimate is considered not worth re-encoding. Default: 0.90
	SkipThreshold   float64  `toml:"skip_threshold"`
	WatchdogSeconds int      `toml:"watchdog_seconds"`
	ReplaceSource   bool     `toml:"replace_source"`
	OutputSuffix    string   `toml:"output_suffix"`
	Extensions      []string `toml:"extensions"`
	VideoCodec      string   `toml:"video_codec"`
	AudioCodec      string   `toml:"audio_codec"`
	QualityCheck    bool     `toml:"quality_check"`
}

// Tools names the external binaries.
type Tools struct {
	FFmpeg  string `toml:"ffmpeg"`
	FFprobe string `toml:"ffprobe"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// API contains configuration for the read-only status API.
type API struct {
	Bind string `toml:"bind"`
}

// Config encapsulates all configuration values for vidshrink.
//
// Configuration sections by subsystem:
//   - Paths: source tree, output and state directories
//   - Encoding: bit rate estimation, skip policy, watchdog, replacement
//   - Tools: ffmpeg/ffprobe executables
//   - Logging: log format and level
//   - API: status API bind address (empty disables it)
type Config struct {
	Paths    Paths    `toml:"paths"`
	Encoding Encoding `toml:"encoding"`
	Tools    Tools    `toml:"tools"`
	Logging  Logging  `toml:"logging"`
	API      API      `toml:"api"`
}

// Settings is the immutable configuration snapshot handed to one pipeline
// run. Build a new one with Config.Settings after reloading.
type Settings struct {
	QuantizationCoefficient float64
	SkipThreshold           float64
	Watchdog                time.Duration
	ReplaceSource           bool
	QualityCheck            bool
	SourceDir               string
	OutputDir               string
	OutputSuffix            string
	VideoCodec              string
	AudioCodec              string
	FFmpeg                  string
	FFprobe                 string
}

// Settings returns a snapshot of the values the pipeline reads.
func (c *Config) Settings() Settings {
	return Settings{
		QuantizationCoefficient: c.Encoding.QuantizationCoefficient,
		SkipThreshold:           c.Encoding.SkipThreshold,
		Watchdog:                time.Duration(c.Encoding.WatchdogSeconds) * time.Second,
		ReplaceSource:           c.Encoding.ReplaceSource,
		QualityCheck:            c.Encoding.QualityCheck,
		SourceDir:               c.Paths.SourceDir,
		OutputDir:               c.Paths.OutputDir,
		OutputSuffix:            c.Encoding.OutputSuffix,
		VideoCodec:              c.Encoding.VideoCodec,
		AudioCodec:              c.Encoding.AudioCodec,
		FFmpeg:                  c.Tools.FFmpeg,
		FFprobe:                 c.Tools.FFprobe,
	}
}

// CoefficientInRecommendedRange reports whether the quantization coefficient
// falls inside the documented 0.07-0.15 band.
func (s Settings) CoefficientInRecommendedRange() bool {
	return s.QuantizationCoefficient >= recommendedCoefficientLo && s.QuantizationCoefficient <= recommendedCoefficientHi
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/vidshrink/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/vidshrink/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vidshrink.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state, log and (when set) output
// directories. Subdirectories mirroring the source tree are created by the
// pipeline per job.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, c.Paths.OutputDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// HistoryPath returns the SQLite database location.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// LockDir returns the directory holding per-source job locks.
func (c *Config) LockDir() string {
	return filepath.Join(c.Paths.StateDir, "locks")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
