package campaign

import (
	"errors"
	"fmt"
)

// Sentinel errors for the campaign lifecycle. All of these are permanent:
// they describe caller or domain-rule violations and must never be retried
// or counted against a circuit breaker.
var (
	ErrNotFound             = errors.New("campaign not found")
	ErrContactNotFound      = errors.New("contact not found")
	ErrIllegalTransition    = errors.New("illegal status transition")
	ErrDuplicateCampaign    = errors.New("contact already has an active campaign")
	ErrHistoryLimitExceeded = errors.New("message history limit exceeded")
	ErrInvalidSchedule      = errors.New("scheduled call date must be in the future")

	// ErrConflict means a concurrent writer won the atomic update. The
	// operation was not applied; callers may re-read and retry, and the
	// orchestrator treats a lost claim as "someone else took it".
	ErrConflict = errors.New("concurrent update conflict")
)

// TransientError marks a dependency failure that may succeed on retry:
// timeouts, connection loss, an open circuit breaker. It carries the name
// of the dependency so the error policy can trip the right breaker.
type TransientError struct {
	Dependency string
	Err        error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure on %s: %v", e.Dependency, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError for the named dependency.
func Transient(dependency string, err error) error {
	return &TransientError{Dependency: dependency, Err: err}
}

// IsTransient reports whether err is retryable. Everything that is not
// explicitly marked transient is treated as permanent.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
