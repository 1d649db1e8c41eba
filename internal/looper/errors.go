package looper

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAlreadyRunning rejects registration on a running looper.
	ErrAlreadyRunning = errors.New("looper is running")

	// ErrDuplicateClient rejects a second client under an existing name.
	ErrDuplicateClient = errors.New("client name already registered")

	// ErrNilClient rejects a nil client or an empty name.
	ErrNilClient = errors.New("client is nil or unnamed")

	// ErrNotRunning is returned by Tick before Start or after Stop.
	ErrNotRunning = errors.New("looper is not running")

	// ErrNotManual is returned by Tick when the looper drives itself.
	ErrNotManual = errors.New("looper is not in manual drive mode")
)

// RegistrationError is returned by Register. The looper is unchanged.
type RegistrationError struct {
	Looper string
	Client string
	Err    error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("looper %s: register %q: %v", e.Looper, e.Client, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// ClientFault records an error or panic raised by one client callback.
type ClientFault struct {
	Looper string
	Client string
	Phase  Phase
	Tick   uint64
	At     time.Time
	Err    error

	// Panicked is set when Err was recovered from a panic.
	Panicked bool
}

func (e *ClientFault) Error() string {
	return fmt.Sprintf("looper %s: client %s: %s (tick %d): %v", e.Looper, e.Client, e.Phase, e.Tick, e.Err)
}

func (e *ClientFault) Unwrap() error {
	return e.Err
}

// IsClientFault returns true if err wraps a *ClientFault.
func IsClientFault(err error) bool {
	var cf *ClientFault
	return errors.As(err, &cf)
}

// IsRegistrationError returns true if err wraps a *RegistrationError.
func IsRegistrationError(err error) bool {
	var re *RegistrationError
	return errors.As(err, &re)
}
