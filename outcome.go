package lease

import (
	"fmt"
)

// ------------------------------------------------------------
// OUTCOME

// Outcome reports the result of an acquisition attempt.
type Outcome struct {
	RequestedOwner string
	Result         Result
	Kind           ErrorKind // KindNone when acquired
	Message        string    // Empty when acquired
	Err            error     // The *Error behind Message, nil when acquired
}

func acquired(owner string) Outcome {
	return Outcome{RequestedOwner: owner, Result: Acquired}
}

// notAcquired converts a failure into an outcome. Rollback failures keep the
// raw storage message so they stand out from ordinary protocol failures.
func notAcquired(owner string, err *Error) Outcome {
	msg := lockErrorPrefix + err.Msg
	if err.Kind == KindRollback {
		msg = err.Msg
	}
	return Outcome{RequestedOwner: owner, Result: NotAcquired, Kind: err.Kind, Message: msg, Err: err}
}

// Succeeded answers true if the requester now holds the lock.
func (o Outcome) Succeeded() bool {
	return o.Result == Acquired
}

// Failed answers true if the requester does not hold the lock.
func (o Outcome) Failed() bool {
	return o.Result == NotAcquired
}

func (o Outcome) String() string {
	msg := o.Message
	if msg == "" {
		msg = "None"
	}
	return fmt.Sprintf("Lock owner requested: %v\nLock: %v\nError message: %v", o.RequestedOwner, o.Result, msg)
}

// ------------------------------------------------------------
// CONST and VAR

// Result defines the result of an acquisition.
type Result int

const (
	NotAcquired Result = iota // Someone else owns the lock, or the attempt failed
	Acquired                  // I own the lock
)

func (r Result) String() string {
	if r == Acquired {
		return "Acquired"
	}
	return "NotAcquired"
}
