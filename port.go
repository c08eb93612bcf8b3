package lease

import (
	"context"
	"strings"
)

// ------------------------------------------------------------
// PORT

// Port defines the storage the protocol needs: an owner slot and a counter
// slot per lock, each independently readable and writable. There is no
// atomicity between the slots and no compare-and-swap; any read may be stale
// by the time the next write lands.
//
// Reads of a slot that was never written answer NoOwner or Undefined, not
// an error. Every write is a full overwrite.
type Port interface {
	ReadOwner(ctx context.Context, lock string) (Owner, error)
	WriteOwner(ctx context.Context, lock string, owner Owner) error
	ReadCounter(ctx context.Context, lock string) (Counter, error)
	WriteCounter(ctx context.Context, lock string, counter Counter) error
}

// ------------------------------------------------------------
// KEYS

// OwnerKey answers the object key of the owner slot for lock.
func OwnerKey(prefix, lock string) string {
	return NormalizePrefix(prefix) + lock + "-" + ownerSuffix
}

// CounterKey answers the object key of the counter slot for lock.
func CounterKey(prefix, lock string) string {
	return NormalizePrefix(prefix) + lock + "-" + counterSuffix
}

// NormalizePrefix makes sure a non-empty prefix ends with a '/'.
func NormalizePrefix(prefix string) string {
	if prefix == "" || strings.HasSuffix(prefix, "/") {
		return prefix
	}
	return prefix + "/"
}

// ------------------------------------------------------------
// STEP

// Step names the point in the protocol that issued a storage call.
type Step int

const (
	StepNone           Step = iota
	StepInitialCounter      // Baseline counter read
	StepEligibility         // Owner read deciding whether I may write
	StepOwnerWrite          // The first side effect
	StepCounterCheck        // Counter re-read against the baseline
	StepCounterWrite        // Counter increment
	StepFinalCheck          // Owner re-read confirming the acquisition
	StepRollbackRead        // Owner read before undoing my write
	StepRollbackWrite       // Clearing my write
	StepReleaseRead
	StepReleaseWrite
	StepStatus
)

func (s Step) String() string {
	if s >= 0 && int(s) < len(stepNames) {
		return stepNames[s]
	}
	return "unknown"
}

type stepKey struct{}

// WithStep answers a context carrying step.
func WithStep(ctx context.Context, step Step) context.Context {
	return context.WithValue(ctx, stepKey{}, step)
}

// StepFrom answers the step carried by ctx, or StepNone.
func StepFrom(ctx context.Context) Step {
	if s, ok := ctx.Value(stepKey{}).(Step); ok {
		return s
	}
	return StepNone
}

// ------------------------------------------------------------
// CONST and VAR

const (
	ownerSuffix   = "owner.json"
	counterSuffix = "counter.json"
)

var (
	stepNames = []string{
		"none",
		"initial-counter",
		"eligibility",
		"owner-write",
		"counter-check",
		"counter-write",
		"final-check",
		"rollback-read",
		"rollback-write",
		"release-read",
		"release-write",
		"status",
	}
)
