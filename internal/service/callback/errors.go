package callback

import (
	"errors"
	"fmt"
)

// Kind names a stage-specific callback failure.
type Kind string

const (
	KindProviderError         Kind = "provider_error"
	KindExchange              Kind = "exchange_error"
	KindSessionTimeout        Kind = "session_timeout"
	KindNoSession             Kind = "no_session"
	KindSessionExpired        Kind = "session_expired"
	KindVerificationTransient Kind = "verification_transient"
	KindVerificationTerminal  Kind = "verification_terminal"
	KindVerificationExhausted Kind = "verification_exhausted"
	KindFallbackInvalid       Kind = "fallback_identity_invalid"
	KindPublish               Kind = "publish_failed"
)

var (
	// ErrAlreadyStarted is returned when Run is called a second time on the same Callback.
	ErrAlreadyStarted = errors.New("callback already started")
	// ErrDuplicateInvocation is returned when another request already claimed the same credentials.
	ErrDuplicateInvocation = errors.New("callback credentials already claimed")
	// ErrTornDown is returned when the lifecycle ended before the flow settled.
	ErrTornDown = errors.New("callback torn down")
)

var userMessages = map[Kind]string{
	KindProviderError:         "Sign-in was not completed by the identity provider.",
	KindExchange:              "We could not complete sign-in with the identity provider. Please try again.",
	KindSessionTimeout:        "Sign-in is taking too long. Please try again.",
	KindNoSession:             "No sign-in session was found. Please sign in again.",
	KindSessionExpired:        "Your sign-in session has expired. Please sign in again.",
	KindVerificationTransient: "Your account could not be verified right now. Please try again.",
	KindVerificationTerminal:  "Your account is not allowed to access this portal.",
	KindVerificationExhausted: "Your account could not be verified right now. Please try again.",
	KindFallbackInvalid:       "Your sign-in profile is missing required details.",
	KindPublish:               "We could not save your sign-in. Please try again.",
}

// UserMessage returns the message shown to the user for k.
func (k Kind) UserMessage() string {
	if msg, ok := userMessages[k]; ok {
		return msg
	}
	return "Sign-in failed. Please try again."
}

// Error is a classified callback failure.
type Error struct {
	Kind Kind
	// Message overrides the default user message when set (provider error descriptions).
	Message string
	// Attempts is the number of verification attempts made, when relevant.
	Attempts int
	Cause    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Attempts > 0 {
		msg = fmt.Sprintf("%s after %d attempts", msg, e.Attempts)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// ErrorClass tags metrics with the failure kind.
func (e *Error) ErrorClass() string { return string(e.Kind) }

// UserMessage is the text displayed to the user.
func (e *Error) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.UserMessage()
}

func newError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var cbErr *Error
	if errors.As(err, &cbErr) {
		return cbErr.Kind
	}
	return ""
}
