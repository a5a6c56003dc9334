// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - ProbeResult: the immutable per-job snapshot of the first video stream
//     (resolution, frame rate, duration, current bit rate)
//   - Rational: an exact num/den frame rate
//   - Result: the full parsed output used by diagnostics
//
// Primary entry points:
//   - Probe: queries the first video stream and returns a ProbeResult
//   - Inspect: executes ffprobe and returns the full parsed Result
//
// Fields ffprobe reports as absent or "N/A" are treated the same: unknown.
package ffprobe
