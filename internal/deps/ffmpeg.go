package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"vidshrink/internal/config"
)

// Requirements lists the binaries a run needs under settings.
func Requirements(settings config.Settings) []Requirement {
	return []Requirement{
		{
			Name:    "FFmpeg",
			Command: settings.FFmpeg,
			Purpose: "encoding, quality checks and metadata remux",
		},
		{
			Name:    "FFprobe",
			Command: settings.FFprobe,
			Purpose: "media inspection",
		},
	}
}

// CheckFFmpegSupport asks ffmpeg whether it was built with the named encoder
// and filter. Empty names are not checked.
func CheckFFmpegSupport(ctx context.Context, ffmpeg, encoder, filter string) Status {
	status := Status{
		Name:    "FFmpeg features",
		Command: ffmpeg,
		Purpose: fmt.Sprintf("encoder %s, filter %s", encoder, filter),
	}
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if encoder != "" {
		out, err := exec.CommandContext(checkCtx, ffmpeg, "-hide_banner", "-encoders").Output() //nolint:gosec
		if err != nil {
			status.Detail = fmt.Sprintf("list encoders: %v", err)
			return status
		}
		if !listsName(out, encoder) {
			status.Detail = fmt.Sprintf("encoder %q not available", encoder)
			return status
		}
	}
	if filter != "" {
		out, err := exec.CommandContext(checkCtx, ffmpeg, "-hide_banner", "-filters").Output() //nolint:gosec
		if err != nil {
			status.Detail = fmt.Sprintf("list filters: %v", err)
			return status
		}
		if !listsName(out, filter) {
			status.Detail = fmt.Sprintf("filter %q not available", filter)
			return status
		}
	}
	status.Available = true
	return status
}

// listsName reports whether an ffmpeg -encoders/-filters listing has a row
// whose name column equals name. Rows look like " V....D libx264  H.264".
func listsName(listing []byte, name string) bool {
	scanner := bufio.NewScanner(bytes.NewReader(listing))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[1] == name {
			return true
		}
	}
	return false
}
