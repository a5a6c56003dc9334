package pipeline

import (
	"errors"
	"fmt"
	"slices"

	"vidshrink/internal/services"
)

// State is a job's position in the pipeline.
type State string

const (
	StatePending            State = "pending"
	StateProbed             State = "probed"
	StateSkipped            State = "skipped"
	StateEstimating         State = "estimating"
	StateEncoding           State = "encoding"
	StateStalled            State = "stalled"
	StateEncoded            State = "encoded"
	StateQualityCheck       State = "quality_check"
	StateMetadataTransplant State = "metadata_transplant"
	StateReplacingSource    State = "replacing_source"
	StateDone               State = "done"
	StateFailed             State = "failed"
	StateCancelled          State = "cancelled"
)

// ErrInvalidTransition is returned for moves the state machine forbids.
var ErrInvalidTransition = errors.New("invalid state transition")

// transitions lists forward moves. Failed and Cancelled are reachable from
// every non-terminal state and are handled in CanTransition.
var transitions = map[State][]State{
	StatePending:            {StateProbed},
	StateProbed:             {StateSkipped, StateEstimating},
	StateEstimating:         {StateEncoding},
	StateEncoding:           {StateStalled, StateEncoded},
	StateStalled:            nil,
	StateEncoded:            {StateQualityCheck},
	StateQualityCheck:       {StateMetadataTransplant},
	StateMetadataTransplant: {StateReplacingSource, StateDone},
	StateReplacingSource:    {StateDone},
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	switch s {
	case StateSkipped, StateFailed, StateDone, StateCancelled:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	if to == StateCancelled {
		// a stall has already killed the encoder; it can only fail
		return from != StateStalled
	}
	return slices.Contains(transitions[from], to)
}

// StateForError maps a job error onto the terminal state it leads to.
func StateForError(err error) State {
	if errors.Is(err, services.ErrEncodeCancelled) {
		return StateCancelled
	}
	return StateFailed
}

func transitionError(from, to State) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
