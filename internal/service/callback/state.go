package callback

import "time"

// State is a callback lifecycle state.
type State string

const (
	StateIdle           State = "idle"
	StateParsing        State = "parsing"
	StateExchanging     State = "exchanging"
	StateWaitingSession State = "waiting_session"
	StateVerifying      State = "verifying"
	StatePublishing     State = "publishing"
	StateRouted         State = "routed"
	StateFailed         State = "failed"
	StateRedirecting    State = "redirecting"
)

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == StateRouted || s == StateRedirecting
}

// order ranks states along the forward path; Failed and Redirecting sit after every
// pre-publish stage.
var order = map[State]int{
	StateIdle:           0,
	StateParsing:        1,
	StateExchanging:     2,
	StateWaitingSession: 3,
	StateVerifying:      4,
	StatePublishing:     5,
	StateRouted:         6,
	StateFailed:         6,
	StateRedirecting:    7,
}

// canEnter reports whether moving from -> to keeps transitions strictly forward.
// Verifying may repeat, once per attempt.
func canEnter(from, to State) bool {
	if from == to {
		return to == StateVerifying
	}
	if from.Terminal() {
		return false
	}
	if from == StateFailed {
		return to == StateRedirecting
	}
	if to == StateFailed {
		return true
	}
	if to == StateRedirecting {
		return false
	}
	return order[to] > order[from]
}

// Transition records one state entry.
type Transition struct {
	State State
	// Attempt is set for Verifying entries.
	Attempt int
	At      time.Time
}
