package lease

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/micro-go/lock"
)

// ------------------------------------------------------------
// INITIAL-STATE

// InitialState contains the state of a lock before a scenario runs.
type InitialState struct {
	Owner   Owner
	Counter Counter
}

// Seed writes the state to port. NoOwner and Undefined leave their slot
// unwritten.
func (s InitialState) Seed(ctx context.Context, port Port, lock string) error {
	if !s.Owner.IsNoOwner() {
		if err := port.WriteOwner(ctx, lock, s.Owner); err != nil {
			return err
		}
	}
	if s.Counter.Defined {
		return port.WriteCounter(ctx, lock, s.Counter)
	}
	return nil
}

// ------------------------------------------------------------
// STAGE

// Stage describes one storage call by one caller in a scripted sequence.
// Owner, Counter and Err replace the result of the call.
type Stage struct {
	Caller  string
	Step    Step
	Owner   *Owner        // Answered instead of reading the owner slot
	Counter *Counter      // Answered instead of reading the counter slot
	Err     error         // Answered instead of performing the call
	Delay   time.Duration // Clock advance before the call runs
}

func (s Stage) String() string {
	return s.Caller + ":" + s.Step.String()
}

// ------------------------------------------------------------
// SEQUENCER

// Sequencer releases storage calls strictly in the order of a script. Each
// caller gets its own Port; a call blocks until the head of the script names
// that caller and the step carried by the call's context.
type Sequencer struct {
	mutex   sync.Mutex
	port    Port
	clock   *ManualClock
	stages  []Stage
	changed chan struct{}
}

// NewSequencer answers a sequencer running stages against port. clock may be
// nil if no stage has a delay.
func NewSequencer(port Port, clock *ManualClock, stages ...Stage) *Sequencer {
	return &Sequencer{port: port, clock: clock, stages: stages, changed: make(chan struct{})}
}

// Port answers the storage seen by caller.
func (s *Sequencer) Port(caller string) Port {
	return &stagedPort{caller: caller, run: s.run, port: s.port}
}

// Remaining answers the stages that have not run.
func (s *Sequencer) Remaining() []Stage {
	defer lock.Locker(&s.mutex).Unlock()
	return append([]Stage(nil), s.stages...)
}

func (s *Sequencer) run(ctx context.Context, caller string, fn func(Stage) error) error {
	step := StepFrom(ctx)
	for {
		done, changed, err := s.tryRun(caller, step, fn)
		if done {
			return err
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// tryRun runs fn if the head stage is mine. Otherwise it answers the channel
// closed on the next change.
func (s *Sequencer) tryRun(caller string, step Step, fn func(Stage) error) (bool, chan struct{}, error) {
	defer lock.Locker(&s.mutex).Unlock()
	if len(s.stages) == 0 {
		return true, nil, fmt.Errorf("%w (%v:%v)", ErrUnscripted, caller, step)
	}
	head := s.stages[0]
	if head.Caller != caller {
		return false, s.changed, nil
	}
	if head.Step != step {
		return true, nil, fmt.Errorf("%w (%v:%v, script has %v)", ErrUnscripted, caller, step, head.Step)
	}
	if head.Delay > 0 && s.clock != nil {
		s.clock.Advance(head.Delay)
	}
	err := fn(head)
	s.stages = s.stages[1:]
	close(s.changed)
	s.changed = make(chan struct{})
	return true, nil, err
}

// ------------------------------------------------------------
// SCHEDULER

// Scheduler interleaves callers without a script. Once every live caller is
// blocked in a storage call, one of them, picked by a seeded source, runs
// its call. The same seed always produces the same interleaving. Callers not
// named at construction bypass the scheduler.
type Scheduler struct {
	mutex   sync.Mutex
	port    Port
	rng     *rand.Rand
	live    map[string]bool
	waiting map[string]*waiter
	running bool
	history []Stage
}

type waiter struct {
	step    Step
	release chan struct{}
}

// NewScheduler answers a scheduler for callers against port.
func NewScheduler(port Port, seed int64, callers ...string) *Scheduler {
	live := make(map[string]bool)
	for _, c := range callers {
		live[c] = true
	}
	return &Scheduler{
		port:    port,
		rng:     rand.New(rand.NewSource(seed)),
		live:    live,
		waiting: make(map[string]*waiter),
	}
}

// Port answers the storage seen by caller.
func (s *Scheduler) Port(caller string) Port {
	return &stagedPort{caller: caller, run: s.run, port: s.port}
}

// Done retires caller. Every caller must be retired once it makes no more
// storage calls, or the remaining callers never run.
func (s *Scheduler) Done(caller string) {
	defer lock.Locker(&s.mutex).Unlock()
	delete(s.live, caller)
	s.dispatch()
}

// History answers the calls in the order they ran.
func (s *Scheduler) History() []Stage {
	defer lock.Locker(&s.mutex).Unlock()
	return append([]Stage(nil), s.history...)
}

func (s *Scheduler) run(ctx context.Context, caller string, fn func(Stage) error) error {
	w := s.enqueue(caller, StepFrom(ctx))
	if w == nil {
		return fn(Stage{Caller: caller, Step: StepFrom(ctx)})
	}
	select {
	case <-w.release:
	case <-ctx.Done():
		if s.dequeue(caller, w) {
			return ctx.Err()
		}
	}
	err := fn(Stage{Caller: caller, Step: w.step})
	s.finish()
	return err
}

func (s *Scheduler) enqueue(caller string, step Step) *waiter {
	defer lock.Locker(&s.mutex).Unlock()
	if !s.live[caller] {
		return nil
	}
	w := &waiter{step: step, release: make(chan struct{})}
	s.waiting[caller] = w
	s.dispatch()
	return w
}

// dequeue answers true if w was withdrawn before it was released. A
// withdrawn caller is retired; its later calls bypass the scheduler.
func (s *Scheduler) dequeue(caller string, w *waiter) bool {
	defer lock.Locker(&s.mutex).Unlock()
	if s.waiting[caller] != w {
		return false
	}
	delete(s.waiting, caller)
	delete(s.live, caller)
	s.dispatch()
	return true
}

func (s *Scheduler) finish() {
	defer lock.Locker(&s.mutex).Unlock()
	s.running = false
	s.dispatch()
}

// dispatch releases one waiter once every live caller is waiting. Must be
// called with the mutex held.
func (s *Scheduler) dispatch() {
	if s.running || len(s.waiting) == 0 || len(s.waiting) < len(s.live) {
		return
	}
	names := make([]string, 0, len(s.waiting))
	for n := range s.waiting {
		names = append(names, n)
	}
	sort.Strings(names)
	pick := names[s.rng.Intn(len(names))]
	w := s.waiting[pick]
	delete(s.waiting, pick)
	s.running = true
	s.history = append(s.history, Stage{Caller: pick, Step: w.step})
	close(w.release)
}

// ------------------------------------------------------------
// STAGED-PORT

// stagedPort routes every call of one caller through a sequencer or scheduler.
type stagedPort struct {
	caller string
	run    func(context.Context, string, func(Stage) error) error
	port   Port
}

func (p *stagedPort) ReadOwner(ctx context.Context, lock string) (Owner, error) {
	owner := NoOwner
	err := p.run(ctx, p.caller, func(st Stage) error {
		if st.Err != nil {
			return st.Err
		}
		if st.Owner != nil {
			owner = *st.Owner
			return nil
		}
		var err error
		owner, err = p.port.ReadOwner(ctx, lock)
		return err
	})
	return owner, err
}

func (p *stagedPort) WriteOwner(ctx context.Context, lock string, owner Owner) error {
	return p.run(ctx, p.caller, func(st Stage) error {
		if st.Err != nil {
			return st.Err
		}
		return p.port.WriteOwner(ctx, lock, owner)
	})
}

func (p *stagedPort) ReadCounter(ctx context.Context, lock string) (Counter, error) {
	counter := Undefined
	err := p.run(ctx, p.caller, func(st Stage) error {
		if st.Err != nil {
			return st.Err
		}
		if st.Counter != nil {
			counter = *st.Counter
			return nil
		}
		var err error
		counter, err = p.port.ReadCounter(ctx, lock)
		return err
	})
	return counter, err
}

func (p *stagedPort) WriteCounter(ctx context.Context, lock string, counter Counter) error {
	return p.run(ctx, p.caller, func(st Stage) error {
		if st.Err != nil {
			return st.Err
		}
		return p.port.WriteCounter(ctx, lock, counter)
	})
}
