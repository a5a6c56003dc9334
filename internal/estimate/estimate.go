package estimate

import (
	"fmt"
	"math"

	"vidshrink/internal/media/ffprobe"
	"vidshrink/internal/services"
)

// TargetBitrate returns width * height * fps * coefficient in bits per second.
// A zero or negative result, or one that does not fit an int64, cannot drive
// an encode and is reported as services.ErrEstimationUnavailable.
func TargetBitrate(probe ffprobe.ProbeResult, coefficient float64) (int64, error) {
	fps := probe.FrameRate.Float64()
	target := float64(probe.Pixels()) * fps * coefficient
	if math.IsNaN(target) || math.IsInf(target, 0) || target >= math.MaxInt64 {
		return 0, services.Wrap(services.ErrEstimationUnavailable, "estimate", "", fmt.Sprintf("estimate out of range for %s", probe), nil)
	}
	bps := int64(math.Round(target))
	if bps <= 0 {
		return 0, services.Wrap(
			services.ErrEstimationUnavailable,
			"estimate",
			"",
			fmt.Sprintf("zero estimate for %s (coefficient %g)", probe, coefficient),
			nil,
		)
	}
	return bps, nil
}

// Decision is the outcome of the skip policy for one file.
type Decision struct {
	Skip          bool
	TargetBitRate int64
	// CurrentBitRate is zero when the probe could not report one.
	CurrentBitRate int64
	Threshold      float64
	Reason         string
}

// Decide reports whether a file should be skipped. A file is skipped only when
// its current bit rate is known and target >= current * threshold; an unknown
// current bit rate always compresses.
func Decide(target int64, probe ffprobe.ProbeResult, threshold float64) Decision {
	decision := Decision{TargetBitRate: target, Threshold: threshold}
	if !probe.BitRateKnown || probe.BitRate <= 0 {
		decision.Reason = "current bit rate unknown"
		return decision
	}
	decision.CurrentBitRate = probe.BitRate
	floor := float64(probe.BitRate) * threshold
	if float64(target) >= floor {
		decision.Skip = true
		decision.Reason = fmt.Sprintf("target %s >= %.0f%% of current %s", FormatMbps(target), threshold*100, FormatMbps(probe.BitRate))
		return decision
	}
	decision.Reason = fmt.Sprintf("target %s < %.0f%% of current %s", FormatMbps(target), threshold*100, FormatMbps(probe.BitRate))
	return decision
}

// Plan estimates and decides in one step.
func Plan(probe ffprobe.ProbeResult, coefficient, threshold float64) (Decision, error) {
	target, err := TargetBitrate(probe, coefficient)
	if err != nil {
		return Decision{}, err
	}
	return Decide(target, probe, threshold), nil
}

// Mbps converts bits per second to megabits per second.
func Mbps(bps int64) float64 {
	return float64(bps) / 1_000_000
}

// FormatMbps renders a bit rate for logs and tables.
func FormatMbps(bps int64) string {
	return fmt.Sprintf("%.2f Mbps", Mbps(bps))
}
