// Package estimate turns probed video properties into a target bit rate and
// decides whether re-encoding a file is worthwhile.
//
// The estimate is a pixel-throughput heuristic, width * height * fps scaled by
// a quantization coefficient, not a rate-control model. The skip decision is
// derived from the estimate alone and never from a trial encode.
package estimate
