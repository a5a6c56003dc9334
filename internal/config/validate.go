package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateEncoding(); err != nil {
		return err
	}
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateEncoding() error {
	if c.Encoding.QuantizationCoefficient <= 0 {
		return errors.New("encoding.quantization_coefficient must be positive")
	}
	if c.Encoding.SkipThreshold <= 0 || c.Encoding.SkipThreshold > 1 {
		return errors.New("encoding.skip_threshold must be in (0, 1]")
	}
	if c.Encoding.WatchdogSeconds < 0 {
		return errors.New("encoding.watchdog_seconds must be positive")
	}
	if c.Encoding.OutputSuffix == "" && c.Paths.OutputDir == "" && !c.Encoding.ReplaceSource {
		return errors.New("encoding.output_suffix must be set when paths.output_dir is empty")
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.OutputDir == "" || c.Paths.SourceDir == "" || c.Encoding.OutputSuffix != "" {
		return nil
	}
	if filepath.Clean(c.Paths.OutputDir) == filepath.Clean(c.Paths.SourceDir) {
		return errors.New("paths.output_dir equals paths.source_dir; set encoding.output_suffix to avoid overwriting sources")
	}
	if within(c.Paths.SourceDir, c.Paths.OutputDir) {
		return errors.New("paths.output_dir is inside paths.source_dir; set encoding.output_suffix so outputs are not rescanned as sources")
	}
	return nil
}

// within reports whether path lies below dir.
func within(dir, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (c *Config) validateAPI() error {
	if c.API.Bind == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.API.Bind); err != nil {
		return fmt.Errorf("api.bind: %w", err)
	}
	return nil
}
