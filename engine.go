package lease

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// ------------------------------------------------------------
// ENGINE

// Engine runs the acquire / release protocol for one lock against a Port.
// It holds no state of its own, so any number of engines, in any number of
// processes, can share the same lock as long as they share the storage.
type Engine struct {
	opts EngineOpts
	port Port
	log  *zap.Logger
}

// NewEngine constructs an engine for opts.Lock on port.
func NewEngine(opts EngineOpts, port Port) (*Engine, error) {
	if port == nil {
		return nil, ErrPortRequired
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	log := opts.Logger.With(zap.String("lock", opts.Lock))
	return &Engine{opts: opts, port: port, log: log}, nil
}

// Lock answers the name of my lock.
func (e *Engine) Lock() string {
	return e.opts.Lock
}

// Budget answers the operation budget every lease must cover.
func (e *Engine) Budget() time.Duration {
	return e.opts.Budget
}

// Acquire tries once to make owner the holder of the lock. It never answers
// an error; every failure, including storage failures, is reported in the
// outcome. Retrying is the caller's business.
//
// The lock is acquired if the current owner record is:
// * NoOwner
// * Or owned by owner, which refreshes the lease
// * Or owned by someone else with no more than the budget remaining
// and no other caller advanced the counter or replaced the owner record
// while I was acquiring.
func (e *Engine) Acquire(ctx context.Context, owner string) Outcome {
	start := time.Now()
	var o Outcome
	if err := e.acquire(ctx, owner); err != nil {
		o = notAcquired(owner, err)
		e.logFailure(owner, err)
	} else {
		o = acquired(owner)
		e.log.Info("lock acquired", zap.String("owner", owner))
	}
	if e.opts.Observer != nil {
		e.opts.Observer.ObserveAcquire(o, time.Since(start))
	}
	return o
}

func (e *Engine) acquire(ctx context.Context, owner string) *Error {
	if owner == "" {
		return &Error{Kind: KindRequest, Msg: ErrOwnerRequired.Error(), Err: ErrOwnerRequired}
	}
	lock := e.opts.Lock

	initial, err := e.port.ReadCounter(e.step(ctx, StepInitialCounter, owner), lock)
	if err != nil {
		return transportErr(KindTransport, err)
	}

	current, err := e.port.ReadOwner(e.step(ctx, StepEligibility, owner), lock)
	if err != nil {
		return transportErr(KindTransport, err)
	}
	if ferr := e.eligible(owner, current); ferr != nil {
		return ferr
	}

	lease := NewOwner(owner, e.opts.Clock.Now().Add(e.opts.Budget+e.opts.Overhead))
	if err = e.port.WriteOwner(e.step(ctx, StepOwnerWrite, owner), lock, lease); err != nil {
		return transportErr(KindTransport, err)
	}

	// My record is visible now. Failures before ownership is confirmed lost
	// must undo it, even once the caller has given up.
	ferr, undo := e.claim(ctx, owner, initial)
	if ferr != nil && undo {
		if rerr := e.rollback(context.WithoutCancel(ctx), owner); rerr != nil {
			rerr.Err = errors.Join(rerr.Err, ferr)
			return rerr
		}
	}
	return ferr
}

// eligible answers nil if owner may write a new owner record over current.
func (e *Engine) eligible(owner string, current Owner) *Error {
	if current.IsNoOwner() || current.Name == owner || e.expiring(current) {
		return nil
	}
	return e.heldBy(current)
}

// claim advances the counter and confirms the owner record. The bool is true
// when the failure still requires a rollback.
func (e *Engine) claim(ctx context.Context, owner string, initial Counter) (*Error, bool) {
	lock := e.opts.Lock

	counter, err := e.port.ReadCounter(e.step(ctx, StepCounterCheck, owner), lock)
	if err != nil {
		return transportErr(KindTransport, err), true
	}
	if counter != initial {
		return newError(KindContention, concurrentAcquireMsg), true
	}
	if err = e.port.WriteCounter(e.step(ctx, StepCounterWrite, owner), lock, initial.Next()); err != nil {
		return transportErr(KindTransport, err), true
	}

	current, err := e.port.ReadOwner(e.step(ctx, StepFinalCheck, owner), lock)
	if err != nil {
		return transportErr(KindTransport, err), true
	}
	switch {
	case current.IsNoOwner():
		return newError(KindConsistency, clearedMsg), false
	case current.Name != owner:
		// I won the counter race but a later eligible writer replaced me.
		lost := e.heldBy(current)
		lost.Kind = KindConsistency
		return lost, false
	case e.expiring(current):
		return newError(KindTimeout, fmt.Sprintf(tooSlowMsg, minutes(e.opts.Budget))), false
	}
	return nil, false
}

// rollback clears the owner record if it is still mine.
func (e *Engine) rollback(ctx context.Context, owner string) *Error {
	lock := e.opts.Lock
	current, err := e.port.ReadOwner(e.step(ctx, StepRollbackRead, owner), lock)
	if err != nil {
		return transportErr(KindRollback, err)
	}
	if current.Name != owner {
		return nil
	}
	if err = e.port.WriteOwner(e.step(ctx, StepRollbackWrite, owner), lock, NoOwner); err != nil {
		return transportErr(KindRollback, err)
	}
	e.log.Debug("rolled back owner record", zap.String("owner", owner))
	return nil
}

// Release clears the lock if expectedOwner holds it. Releasing a lock held by
// someone else, or by no one, does nothing. Storage failures are answered.
func (e *Engine) Release(ctx context.Context, expectedOwner string) error {
	lock := e.opts.Lock
	current, err := e.port.ReadOwner(e.step(ctx, StepReleaseRead, expectedOwner), lock)
	if err != nil {
		return transportErr(KindTransport, err)
	}
	if current.IsNoOwner() || current.Name != expectedOwner {
		e.log.Debug("release skipped", zap.String("owner", expectedOwner), zap.String("current", current.Name))
		return nil
	}
	if err = e.port.WriteOwner(e.step(ctx, StepReleaseWrite, expectedOwner), lock, NoOwner); err != nil {
		return transportErr(KindTransport, err)
	}
	e.log.Info("lock released", zap.String("owner", expectedOwner))
	return nil
}

// Status answers the current owner record. Treat it as out of date the
// moment it is answered. expectedOwner is only carried for observability.
func (e *Engine) Status(ctx context.Context, expectedOwner ...string) (Owner, error) {
	name := ""
	if len(expectedOwner) > 0 {
		name = expectedOwner[0]
	}
	current, err := e.port.ReadOwner(e.step(ctx, StepStatus, name), e.opts.Lock)
	if err != nil {
		return NoOwner, transportErr(KindTransport, err)
	}
	return current, nil
}

// Run acquires the lock for owner, runs fn and releases the lock. fn gets a
// context that ends when the operation budget is spent. If the lock is not
// acquired fn does not run and the outcome's error is answered.
func (e *Engine) Run(ctx context.Context, owner string, fn func(context.Context) error) error {
	o := e.Acquire(ctx, owner)
	if o.Failed() {
		return o.Err
	}
	runCtx, cancel := context.WithTimeout(ctx, e.opts.Budget)
	ferr := fn(runCtx)
	cancel()
	rerr := e.Release(context.WithoutCancel(ctx), owner)
	return errors.Join(ferr, rerr)
}

// ------------------------------------------------------------
// BOILERPLATE

func (e *Engine) step(ctx context.Context, step Step, owner string) context.Context {
	if ce := e.log.Check(zap.DebugLevel, "storage call"); ce != nil {
		ce.Write(zap.Stringer("step", step), zap.String("owner", owner))
	}
	return WithStep(ctx, step)
}

// expiring answers true if current will not outlast my budget.
func (e *Engine) expiring(current Owner) bool {
	return current.RemainingSeconds(e.opts.Clock.Now()) <= e.opts.Budget.Seconds()
}

func (e *Engine) heldBy(current Owner) *Error {
	wait := int64(math.Ceil(current.RemainingSeconds(e.opts.Clock.Now())))
	return newError(KindContention, fmt.Sprintf(heldByMsg, current.Name, wait))
}

func (e *Engine) logFailure(owner string, err *Error) {
	fields := []zap.Field{zap.String("owner", owner), zap.Stringer("kind", err.Kind), zap.String("reason", err.Msg)}
	switch err.Kind {
	case KindRollback:
		e.log.Error("rollback failed, lock may stay held until the lease expires", fields...)
	case KindTransport:
		e.log.Warn("lock not acquired", append(fields, zap.Error(err.Err))...)
	default:
		e.log.Info("lock not acquired", fields...)
	}
}

func minutes(d time.Duration) string {
	return strconv.FormatFloat(d.Minutes(), 'f', -1, 64)
}

// ------------------------------------------------------------
// CONST and VAR

const (
	heldByMsg            = "Lock is currently held by owner %v, wait for %v seconds before retrying."
	concurrentAcquireMsg = "Another caller is acquiring the lock at the same time. Please retry."
	clearedMsg           = "Lock is not currently held by anyone but should be. Please retry."
	tooSlowMsg           = "Acquiring the lock took too long, there may not be enough time left for the operation (limit set to %v minutes). Please retry."
)
