package lease

import (
	"sync"
	"time"

	"github.com/micro-go/lock"
)

// ------------------------------------------------------------
// CLOCK

// Clock supplies the current time for lease arithmetic.
type Clock interface {
	Now() time.Time
}

// SystemClock answers the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// ------------------------------------------------------------
// MANUAL-CLOCK

// ManualClock only moves when told to. It is safe for concurrent use.
type ManualClock struct {
	mutex sync.RWMutex
	now   time.Time
}

// NewManualClock answers a clock stopped at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	defer lock.Read(&c.mutex).Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	defer lock.Write(&c.mutex).Unlock()
	c.now = t
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	defer lock.Write(&c.mutex).Unlock()
	c.now = c.now.Add(d)
}
