package dflow

import "fmt"

// WorkflowError is the error a guest entrypoint returns to signal it is
// done. When ID is non-empty it names the
// correlation id of the effect the guest deemed a failure (by calling
// error_for_status or an equivalent on the recorded response); the Runner
// uses that id to flip exactly that log entry to failed via
// State.SetFailure so the next attempt re-performs it. A WorkflowError
// with an empty ID is a guest-classified failure the Runner cannot target
// at any particular effect — see AttemptFailedWithoutID.
type WorkflowError struct {
	// ID is the correlation id of the offending effect, or "" if none applies.
	ID string
	// Err is the underlying cause.
	Err error
}

func (e *WorkflowError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("workflow failed: %v", e.Err)
	}
	return fmt.Sprintf("workflow failed at effect %s: %v", e.ID, e.Err)
}

func (e *WorkflowError) Unwrap() error { return e.Err }

// NewWorkflowError builds a WorkflowError carrying the given correlation id
// (may be empty).
func NewWorkflowError(id string, err error) *WorkflowError {
	return &WorkflowError{ID: id, Err: err}
}

// ErrProtocolViolation is returned (and should be treated as an unreachable
// bug) when the guest sends a request tag the host does not
// recognize, or the host would construct a response tag the guest does not
// expect. The ABI is closed: every GuestToHost variant has exactly one
// legal HostToGuest shape.
type ErrProtocolViolation struct {
	Detail string
}

func (e *ErrProtocolViolation) Error() string {
	return fmt.Sprintf("protocol violation: %s", e.Detail)
}

// ErrInputUnsupported is returned for GuestToHost.Input: reserved, not
// yet implemented, fatal on receipt.
var ErrInputUnsupported = &ErrProtocolViolation{Detail: "Input effect is reserved and not implemented"}

// ErrRandomStringUnsupported is returned when the guest requests a random
// string scalar. String random is not supported and fails closed on the
// host side.
var ErrRandomStringUnsupported = &ErrProtocolViolation{Detail: "random string generation is not supported"}

// HTTPError is the ABI's structured transport/request failure (Content ::=
// HttpResponse(Result<Response, Error>)'s Err arm), distinct from
// WorkflowError: an HTTPError is a *successfully recorded* effect outcome,
// not a host- or guest-level failure. See Error in abi.go.
type HTTPError struct {
	URL  string
	Kind ErrorKind
}

func (e *HTTPError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("http: %s", e.Kind)
	}
	return fmt.Sprintf("http: %s (%s)", e.Kind, e.URL)
}
