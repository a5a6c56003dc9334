package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"vidshrink/internal/services"
)

// ProbeResult is the snapshot of intrinsic video properties taken once per
// job attempt.
type ProbeResult struct {
	Width         int
	Height        int
	FrameRate     Rational
	Duration      float64
	DurationKnown bool
	BitRate       int64
	BitRateKnown  bool
}

// Pixels returns width * height.
func (p ProbeResult) Pixels() int64 {
	return int64(p.Width) * int64(p.Height)
}

type probeStream struct {
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	Duration     string `json:"duration"`
	BitRate      string `json:"bit_rate"`
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
}

// Probe queries the first video stream of path.
func Probe(ctx context.Context, binary string, path string) (ProbeResult, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	if strings.TrimSpace(path) == "" {
		return ProbeResult{}, services.Wrap(services.ErrProbeFailed, "probe", "", "empty path", nil)
	}

	cmd := exec.CommandContext(ctx, binary,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,avg_frame_rate,duration,bit_rate:format=duration,bit_rate",
		"-of", "json",
		"--", path,
	)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return ProbeResult{}, services.Wrap(services.ErrProbeFailed, "probe", binary, services.DiagnosticTail(stderr.String(), 5), err)
	}
	return ParseProbeOutput(output)
}

// ParseProbeOutput decodes the JSON produced by Probe's ffprobe invocation.
func ParseProbeOutput(data []byte) (ProbeResult, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return ProbeResult{}, services.Wrap(services.ErrProbeFailed, "probe", "parse", "invalid json", err)
	}
	if len(out.Streams) == 0 {
		return ProbeResult{}, services.Wrap(services.ErrProbeFailed, "probe", "", "no video stream", nil)
	}
	stream := out.Streams[0]
	result := ProbeResult{Width: stream.Width, Height: stream.Height}

	rate, err := ParseRational(stream.RFrameRate)
	if err != nil || rate.IsZero() {
		// r_frame_rate is 0/0 for some variable frame rate streams
		if avg, avgErr := ParseRational(stream.AvgFrameRate); avgErr == nil && !avg.IsZero() {
			rate, err = avg, nil
		}
	}
	if errors.Is(err, ErrZeroDenominator) {
		// no usable rate; the estimator reports this as unavailable
		rate, err = Rational{}, nil
	}
	if err != nil {
		return ProbeResult{}, services.Wrap(services.ErrProbeFailed, "probe", "frame rate", "", err)
	}
	result.FrameRate = rate

	if d, ok := parseKnownFloat(stream.Duration); ok {
		result.Duration, result.DurationKnown = d, true
	} else if d, ok := parseKnownFloat(out.Format.Duration); ok {
		result.Duration, result.DurationKnown = d, true
	}

	if b, ok := parseKnownInt(stream.BitRate); ok {
		result.BitRate, result.BitRateKnown = b, true
	} else if b, ok := parseKnownInt(out.Format.BitRate); ok {
		result.BitRate, result.BitRateKnown = b, true
	}
	return result, nil
}

func parseKnownFloat(value string) (float64, bool) {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "N/A") {
		return 0, false
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) || parsed <= 0 {
		return 0, false
	}
	return parsed, true
}

func parseKnownInt(value string) (int64, bool) {
	f, ok := parseKnownFloat(value)
	if !ok {
		return 0, false
	}
	return int64(math.Round(f)), true
}

func (p ProbeResult) String() string {
	return fmt.Sprintf("%dx%d@%.3f", p.Width, p.Height, p.FrameRate.Float64())
}
