package auth

import "time"

// CallbackOutcome is the terminal result of one callback lifecycle.
// It is either Success or Failure.
type CallbackOutcome interface {
	isCallbackOutcome()
}

// Success carries the published identity and the route the user is sent to.
// Degraded is set when the identity was built from provider data only.
type Success struct {
	Identity Identity
	Route    string
	Degraded bool
}

// Failure carries the user-facing message and the delay before the sign-in redirect.
type Failure struct {
	Kind       string
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (Success) isCallbackOutcome() {}
func (Failure) isCallbackOutcome() {}
