package entity

import (
	"errors"
	"fmt"
	"time"

	accountentity "github.com/vadim/mention-tracker/internal/domain/account/entity"
)

// Failure taxonomy for a single account poll
var (
	// ErrTerminalCredential means the refresh credential was rejected and
	// the operator has to reauthorize the account.
	ErrTerminalCredential = errors.New("credentials rejected, reauthorization required")
	// ErrTransient covers network errors and 5xx responses; retried next tick.
	ErrTransient = errors.New("transient failure")
	// ErrRateLimited is only produced from an explicit rate-limit signal.
	ErrRateLimited = errors.New("rate limited")
	// ErrTimeout is a per-account deadline overrun, handled as transient.
	ErrTimeout = fmt.Errorf("poll timed out: %w", ErrTransient)
	// ErrUnauthorized is a 401 from a data endpoint with a token believed valid.
	ErrUnauthorized = errors.New("access token rejected")

	ErrPollInProgress  = errors.New("poll already in progress for account")
	ErrAccountPaused   = errors.New("account is paused")
	ErrAccountNotFound = accountentity.ErrAccountNotFound
)

// RateLimitedError carries the reset time announced by the platform
type RateLimitedError struct {
	ResetAt time.Time
	Source  string
}

func (e *RateLimitedError) Error() string {
	if e.ResetAt.IsZero() {
		return fmt.Sprintf("%s: rate limited", e.Source)
	}
	return fmt.Sprintf("%s: rate limited until %s", e.Source, e.ResetAt.UTC().Format(time.RFC3339))
}

func (e *RateLimitedError) Unwrap() error {
	return ErrRateLimited
}

// TransientError wraps an underlying error as retryable
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Is(target error) bool {
	return target == ErrTransient
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient marks err as retryable on the next tick
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}
