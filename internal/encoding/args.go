package encoding

import (
	"path/filepath"
	"strconv"
	"strings"
)

// faststartContainers can move the index to the front of the file.
var faststartContainers = map[string]bool{
	".mp4": true,
	".mov": true,
	".m4v": true,
}

// BuildArgs assembles the encoder command line for req. Progress goes to
// stdout as key=value lines; human-readable statistics are suppressed.
func BuildArgs(req Request, videoCodec, audioCodec string) []string {
	if strings.TrimSpace(videoCodec) == "" {
		videoCodec = "libx264"
	}
	if strings.TrimSpace(audioCodec) == "" {
		audioCodec = "copy"
	}
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-nostats",
		"-loglevel", "error",
		"-y",
		"-i", req.Source,
		"-map", "0:v:0",
		"-map", "0:a?",
		"-c:v", videoCodec,
		"-b:v", strconv.FormatInt(req.BitRate, 10),
		"-pix_fmt", "yuv420p",
		"-c:a", audioCodec,
	}
	if faststartContainers[strings.ToLower(filepath.Ext(req.Destination))] {
		args = append(args, "-movflags", "+faststart")
	}
	args = append(args, "-progress", "pipe:1", req.Destination)
	return args
}
