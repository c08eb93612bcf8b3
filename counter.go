package lease

import (
	"math"
	"strconv"
	"strings"
)

// ------------------------------------------------------------
// COUNTER

// Counter is the fencing token shared by every holder of a lock. It is only
// ever compared for equality; Defined distinguishes a never-written counter
// from zero.
type Counter struct {
	Value   uint64
	Defined bool
}

// Undefined is the counter of a lock that has never been acquired.
var Undefined = Counter{}

// NewCounter answers a defined counter.
func NewCounter(v uint64) Counter {
	return Counter{Value: v, Defined: true}
}

// Next answers the counter written by a successful acquisition. Undefined
// counts as 0. Values wrap from MaxCounter back to 1.
func (c Counter) Next() Counter {
	if !c.Defined || c.Value == 0 {
		return NewCounter(1)
	}
	if c.Value >= MaxCounter {
		return NewCounter(1)
	}
	return NewCounter(c.Value + 1)
}

func (c Counter) String() string {
	if !c.Defined {
		return "undefined"
	}
	return strconv.FormatUint(c.Value, 10)
}

// MarshalCounter answers the persisted form of c, a bare decimal integer.
// Undefined counters cannot be persisted.
func MarshalCounter(c Counter) ([]byte, error) {
	if !c.Defined {
		return nil, errUndefinedCounter
	}
	return []byte(strconv.FormatUint(c.Value, 10)), nil
}

// UnmarshalCounter answers the counter in a persisted document. A missing
// or empty document is Undefined.
func UnmarshalCounter(data []byte) (Counter, error) {
	s := strings.TrimSpace(string(data))
	if s == "" {
		return Undefined, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return Undefined, err
	}
	if v > MaxCounter {
		return Undefined, errCounterRange
	}
	return NewCounter(v), nil
}

// ------------------------------------------------------------
// CONST and VAR

const (
	// MaxCounter is the largest persisted counter. It fits a signed 64-bit
	// integer so other readers of the counter document can parse it.
	MaxCounter uint64 = math.MaxInt64
)
