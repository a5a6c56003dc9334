package pipeline

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// Event is an immutable snapshot of a job published to observers.
type Event struct {
	RunID      string    `json:"run_id,omitempty"`
	SourcePath string    `json:"source_path"`
	FileName   string    `json:"file_name"`
	State      State     `json:"state"`
	Percent    float64   `json:"percent"`
	Message    string    `json:"message,omitempty"`
	Error      string    `json:"error,omitempty"`
	Time       time.Time `json:"time"`
}

// Observer receives events on the pipeline goroutine; it must not block.
type Observer func(Event)

func (j *Job) event(runID, message string) Event {
	evt := Event{
		RunID:      runID,
		SourcePath: j.SourcePath,
		FileName:   j.FileName(),
		State:      j.State,
		Percent:    j.Percent,
		Message:    message,
		Time:       time.Now().UTC(),
	}
	if j.Err != nil {
		evt.Error = j.Err.Error()
	}
	return evt
}

// Tracker keeps the latest event per source path. It is safe for one writer
// and many concurrent readers.
type Tracker struct {
	mu     sync.RWMutex
	latest map[string]Event
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{latest: make(map[string]Event)}
}

// Observe records evt; it satisfies Observer.
func (t *Tracker) Observe(evt Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latest[evt.SourcePath] = evt
}

// Get returns the latest event for sourcePath.
func (t *Tracker) Get(sourcePath string) (Event, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	evt, ok := t.latest[sourcePath]
	return evt, ok
}

// Snapshot returns the latest event of every job ordered by source path.
func (t *Tracker) Snapshot() []Event {
	t.mu.RLock()
	events := make([]Event, 0, len(t.latest))
	for _, evt := range t.latest {
		events = append(events, evt)
	}
	t.mu.RUnlock()
	slices.SortFunc(events, func(a, b Event) int {
		return strings.Compare(a.SourcePath, b.SourcePath)
	})
	return events
}

// Active returns events for jobs that have not reached a terminal state.
func (t *Tracker) Active() []Event {
	var active []Event
	for _, evt := range t.Snapshot() {
		if !evt.State.Terminal() {
			active = append(active, evt)
		}
	}
	return active
}
