package preflight

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"vidshrink/internal/config"
	"vidshrink/internal/deps"
)

// ssimFilter is the ffmpeg filter the quality assessor relies on.
const ssimFilter = "ssim"

// CheckDirectoryAccess verifies that the directory exists and is readable,
// and writable when writable is set.
func CheckDirectoryAccess(name, path string, writable bool) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	mode := uint32(unix.R_OK | unix.X_OK)
	label := "read ok"
	if writable {
		mode |= unix.W_OK
		label = "read/write ok"
	}
	if err := unix.Access(path, mode); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, label)}
}

// CheckSystemDeps evaluates the external binaries for cfg. When ffmpeg is
// present its encoder and, with quality checks enabled, the SSIM filter are
// verified too.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	settings := cfg.Settings()
	statuses := deps.CheckBinaries(deps.Requirements(settings))
	if len(statuses) == 0 || !statuses[0].Available {
		return statuses
	}
	filter := ""
	if settings.QualityCheck {
		filter = ssimFilter
	}
	return append(statuses, deps.CheckFFmpegSupport(ctx, settings.FFmpeg, settings.VideoCodec, filter))
}
