package lease

import (
	"time"

	"go.uber.org/zap"
)

// ------------------------------------------------------------
// ENGINE-OPTS

// EngineOpts provides standard options when constructing an engine.
type EngineOpts struct {
	Lock     string        // Name of the lock. Required.
	Budget   time.Duration // How long the caller needs the lock for its protected work. Required.
	Overhead time.Duration // Expected cost of the acquire protocol itself. Defaults to DefaultOverhead.
	Clock    Clock         // Defaults to the system clock.
	Logger   *zap.Logger   // Defaults to a no-op logger.
	Observer Observer      // Optional.
}

func (o EngineOpts) withDefaults() EngineOpts {
	if o.Overhead <= 0 {
		o.Overhead = DefaultOverhead
	}
	if o.Clock == nil {
		o.Clock = SystemClock{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

func (o EngineOpts) validate() error {
	if o.Lock == "" {
		return ErrLockRequired
	}
	if o.Budget <= 0 {
		return ErrBudgetRequired
	}
	return nil
}

// ------------------------------------------------------------
// OBSERVER

// Observer is told about every acquisition attempt.
type Observer interface {
	ObserveAcquire(outcome Outcome, elapsed time.Duration)
}

// ------------------------------------------------------------
// CONST and VAR

const (
	// DefaultOverhead is added to the budget when sizing a lease.
	DefaultOverhead = time.Minute
)
