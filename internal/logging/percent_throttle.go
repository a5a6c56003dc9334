package logging

import "math"

// PercentThrottle decides which encode progress updates reach the log. ffmpeg
// reports progress several times a second; only the first update, each
// crossing of a step boundary and completion are let through.
type PercentThrottle struct {
	step float64
	last int
	done bool
}

// NewPercentThrottle returns a throttle that passes one update per step
// percent. A non-positive step falls back to 10.
func NewPercentThrottle(step float64) *PercentThrottle {
	if step <= 0 || step > 100 {
		step = 10
	}
	return &PercentThrottle{step: step, last: -1}
}

// Allow reports whether an update at percent should be logged. Values outside
// [0, 100] and anything after completion are dropped.
func (t *PercentThrottle) Allow(percent float64) bool {
	if t == nil {
		return true
	}
	if t.done || math.IsNaN(percent) || percent < 0 {
		return false
	}
	if percent >= 100 {
		t.done = true
		return true
	}
	bucket := int(percent / t.step)
	if bucket <= t.last {
		return false
	}
	t.last = bucket
	return true
}
