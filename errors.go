package thread

import (
	"errors"
	"fmt"
)

// Error codes classify domain errors so callers can match on the kind of
// violation without parsing messages.
const (
	// ErrCodeInvalidTransition indicates a state machine transition that is
	// not permitted from the thread's current status.
	ErrCodeInvalidTransition = "invalid_transition"

	// ErrCodePrecondition indicates the thread or workflow was not in an
	// executable state before the loop started.
	ErrCodePrecondition = "precondition_failed"

	// ErrCodeConcurrency indicates a violation of the
	// single-active-thread-per-session policy.
	ErrCodeConcurrency = "concurrency_violation"

	// ErrCodeCheckpoint indicates missing or foreign checkpoint data.
	ErrCodeCheckpoint = "checkpoint_invalid"

	// ErrCodeInvalidArgument indicates a caller-supplied value outside its
	// valid range.
	ErrCodeInvalidArgument = "invalid_argument"
)

// DomainError is a structured error carrying the violated rule, the attempted
// action, and the thread status at the time of the attempt. It supports Go's
// error wrapping via Unwrap.
type DomainError struct {
	Code    string `json:"code"`
	Action  string `json:"action,omitempty"`
	Status  Status `json:"status,omitempty"`
	Cause   string `json:"cause"`
	Wrapped error  `json:"-"`
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Cause)
}

func (e *DomainError) Unwrap() error {
	return e.Wrapped
}

// NewTransitionError reports an action the state machine forbids from the
// given status.
func NewTransitionError(action string, status Status) *DomainError {
	return &DomainError{
		Code:   ErrCodeInvalidTransition,
		Action: action,
		Status: status,
		Cause:  fmt.Sprintf("cannot %s a thread with status %q", action, status),
	}
}

// NewPreconditionError reports a failed execution precondition.
func NewPreconditionError(cause string) *DomainError {
	return &DomainError{Code: ErrCodePrecondition, Cause: cause}
}

// NewConcurrencyError reports a single-active-thread-per-session violation.
func NewConcurrencyError(sessionID string) *DomainError {
	return &DomainError{
		Code:  ErrCodeConcurrency,
		Cause: fmt.Sprintf("session %q already has a running thread", sessionID),
	}
}

// NewCheckpointError reports invalid checkpoint data. Restoration never
// silently defaults on bad data.
func NewCheckpointError(cause string) *DomainError {
	return &DomainError{Code: ErrCodeCheckpoint, Cause: cause}
}

// NewInvalidArgumentError reports a caller-supplied value outside its range.
func NewInvalidArgumentError(cause string) *DomainError {
	return &DomainError{Code: ErrCodeInvalidArgument, Cause: cause}
}

// IsDomainError reports whether err's chain contains a DomainError with the
// given code.
func IsDomainError(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}
