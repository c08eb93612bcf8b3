package lease

import (
	"errors"
)

// ------------------------------------------------------------
// ERROR-KIND

// ErrorKind classifies why an acquisition failed.
type ErrorKind int

const (
	KindNone        ErrorKind = iota // No failure
	KindContention                   // Someone else validly holds the lock or won the race
	KindTimeout                      // The fresh lease does not cover the operation budget
	KindConsistency                  // The owner record was cleared or replaced after the race was won
	KindTransport                    // A storage read or write failed
	KindRollback                     // A storage failure while undoing a partial acquisition
	KindRequest                      // The request itself was invalid
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindContention:
		return "contention"
	case KindTimeout:
		return "timeout"
	case KindConsistency:
		return "consistency"
	case KindTransport:
		return "transport"
	case KindRollback:
		return "rollback"
	case KindRequest:
		return "request"
	}
	return "unknown"
}

// Retryable answers true if a caller can simply try again later.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindContention, KindTimeout, KindConsistency, KindTransport:
		return true
	}
	return false
}

// ------------------------------------------------------------
// ERROR

// Error struct provides additional information about an error.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error // The underlying storage error, if any
}

func (e *Error) Error() string {
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// transportErr wraps a storage failure. The message is the storage message.
func transportErr(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Msg: err.Error(), Err: err}
}

// KindOf answers the kind of err, KindNone for nil and KindTransport for
// anything that is not an *Error.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransport
}

// ------------------------------------------------------------
// UTIL

// MustErr is a simple utility to panic on errors.
func MustErr(err error) {
	if err != nil {
		panic(err)
	}
}

// MergeErr answers the first non-nil error.
func MergeErr(a, b error) error {
	if a != nil {
		return a
	}
	return b
}

// ------------------------------------------------------------
// CONST and VAR

const (
	lockErrorPrefix = "Lock error: "
)

var (
	ErrBadRequest     = errors.New("Bad request")
	ErrBudgetRequired = errors.New("Bad request: Operation budget required")
	ErrLockRequired   = errors.New("Bad request: Lock name required")
	ErrOwnerRequired  = errors.New("Bad request: Owner name required")
	ErrPortRequired   = errors.New("Bad request: Storage port required")
	ErrUnscripted     = errors.New("No stage scripted for this call")

	errCounterRange     = errors.New("Counter out of range")
	errUndefinedCounter = errors.New("Can't persist an undefined counter")
)
