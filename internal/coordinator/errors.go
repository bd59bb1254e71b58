package coordinator

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/forge/internal/pipeline"
)

var (
	// ErrInvalidInput is returned when Run is called with an empty requirement
	// or a non-positive attempt budget. No collaborator is called.
	ErrInvalidInput = errors.New("invalid coordinator input")

	// ErrContractViolation marks a collaborator that returned a malformed
	// result: a nil artifact, or a valid verdict carrying errors.
	ErrContractViolation = errors.New("collaborator contract violation")
)

// Collaborator identifies which side of the loop failed.
type Collaborator string

const (
	CollaboratorGeneration Collaborator = "generation"
	CollaboratorValidation Collaborator = "validation"
)

// CollaboratorError reports a collaborator breakdown. It aborts the run
// immediately and does not consume a retry.
type CollaboratorError struct {
	// Collaborator is the failing side of the loop.
	Collaborator Collaborator

	// Name is the collaborator implementation's Name().
	Name string

	// Attempt is the 1-based attempt during which the fault occurred.
	Attempt int

	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s collaborator %q failed on attempt %d: %v", e.Collaborator, e.Name, e.Attempt, e.Err)
}

// Unwrap allows errors.Is and errors.As to see the cause.
func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// TimeoutError reports a collaborator call that outlived its timeout. It is a
// CollaboratorError: errors.As with a *CollaboratorError target matches it.
type TimeoutError struct {
	CollaboratorError
	Timeout time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s collaborator %q timed out after %s on attempt %d", e.Collaborator, e.Name, e.Timeout, e.Attempt)
}

// As lets errors.As resolve a TimeoutError to its CollaboratorError.
func (e *TimeoutError) As(target any) bool {
	if t, ok := target.(**CollaboratorError); ok {
		*t = &e.CollaboratorError
		return true
	}
	return false
}

// Unwrap returns the underlying deadline error.
func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// ExhaustedRetriesError is the normal terminal outcome of a run whose attempts
// were all rejected.
type ExhaustedRetriesError struct {
	// MaxAttempts is the budget that was spent.
	MaxAttempts int

	// Attempts is the complete attempt log.
	Attempts []pipeline.AttemptRecord

	// Errors are the final verdict's errors.
	Errors []pipeline.Diagnostic
}

// Error implements the error interface.
func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("exhausted %d attempt(s) without a valid artifact (%d error(s) in final verdict)", e.MaxAttempts, len(e.Errors))
}

// CancelledError reports a run stopped by its caller.
type CancelledError struct {
	// Attempt is the attempt that was about to run or was interrupted.
	Attempt int

	// Attempts holds the attempts completed before cancellation.
	Attempts []pipeline.AttemptRecord

	// Err is the context error.
	Err error
}

// Error implements the error interface.
func (e *CancelledError) Error() string {
	return fmt.Sprintf("run cancelled before completing attempt %d: %v", e.Attempt, e.Err)
}

// Unwrap returns the context error so errors.Is(err, context.Canceled) works.
func (e *CancelledError) Unwrap() error {
	return e.Err
}

// IsExhausted reports whether err is an ExhaustedRetriesError.
func IsExhausted(err error) bool {
	var target *ExhaustedRetriesError
	return errors.As(err, &target)
}

// IsCollaboratorFault reports whether err is a CollaboratorError (including
// timeouts).
func IsCollaboratorFault(err error) bool {
	var target *CollaboratorError
	return errors.As(err, &target)
}

// IsTimeout reports whether err is a TimeoutError.
func IsTimeout(err error) bool {
	var target *TimeoutError
	return errors.As(err, &target)
}

// IsCancelled reports whether err is a CancelledError.
func IsCancelled(err error) bool {
	var target *CancelledError
	return errors.As(err, &target)
}
