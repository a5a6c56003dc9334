package encoding

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Progress is one observation of a running encode.
type Progress struct {
	Percent float64
	OutTime time.Duration
	Speed   string
	// Done is set once the encoder reports progress=end.
	Done bool
}

func (p Progress) String() string {
	base := fmt.Sprintf("%.1f%%", p.Percent)
	if p.Speed != "" {
		base += " @ " + p.Speed
	}
	return base
}

// ProgressFunc receives progress updates from the supervising loop. It runs
// on the loop's goroutine and must not block.
type ProgressFunc func(Progress)

// progressParser folds ffmpeg -progress lines into a Progress value. Percent
// never decreases and stays within [0,100].
type progressParser struct {
	duration float64
	current  Progress
}

func newProgressParser(durationSeconds float64) *progressParser {
	return &progressParser{duration: durationSeconds}
}

// apply consumes one line and reports whether the observable progress
// changed. Unknown keys, placeholders such as N/A, and malformed lines are
// ignored.
func (p *progressParser) apply(line string) bool {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return false
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	switch key {
	case "out_time_us", "out_time_ms":
		// ffmpeg reports out_time_ms in microseconds as well
		micros, err := strconv.ParseInt(value, 10, 64)
		if err != nil || micros < 0 {
			return false
		}
		return p.setOutTime(time.Duration(micros) * time.Microsecond)
	case "speed":
		if value == "" || strings.EqualFold(value, "N/A") {
			return false
		}
		// reported with the next time update
		p.current.Speed = value
		return false
	case "progress":
		if value != "end" || p.current.Done {
			return false
		}
		p.current.Done = true
		p.current.Percent = 100
		return true
	}
	return false
}

func (p *progressParser) setOutTime(outTime time.Duration) bool {
	changed := false
	if outTime > p.current.OutTime {
		p.current.OutTime = outTime
		changed = true
	}
	if p.duration <= 0 {
		return changed
	}
	percent := outTime.Seconds() / p.duration * 100
	percent = min(max(percent, 0), 100)
	if percent > p.current.Percent {
		p.current.Percent = percent
		changed = true
	}
	return changed
}

func (p *progressParser) snapshot() Progress {
	return p.current
}
