package preflight

import (
	"context"
	"strings"

	"vidshrink/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the directory and binary checks for cfg.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// Sources are only written when they are replaced in place.
	if cfg.Paths.SourceDir != "" {
		results = append(results, CheckDirectoryAccess("Source directory", cfg.Paths.SourceDir, cfg.Encoding.ReplaceSource))
	}
	if cfg.Paths.OutputDir != "" {
		results = append(results, CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir, true))
	}
	results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir, true))

	for _, status := range CheckSystemDeps(ctx, cfg) {
		result := Result{Name: status.Name, Passed: status.Available, Detail: status.Detail}
		if result.Passed && result.Detail == "" {
			result.Detail = status.Path
			if result.Detail == "" {
				result.Detail = strings.TrimSpace(status.Command)
			}
		}
		results = append(results, result)
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
