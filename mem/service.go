package leasemem

import (
	"context"
	"sync"

	"github.com/hackborn/lease"
	"github.com/micro-go/lock"
)

// ------------------------------------------------------------
// MEM-PORT

// memPort provides an in-memory lease.Port implementation. Slots hold the
// same documents an object store would, so reads go through the wire codec.
type memPort struct {
	mutex   sync.RWMutex
	records map[string]*record
}

// NewPort constructs a new in-memory storage port.
func NewPort() lease.Port {
	records := make(map[string]*record)
	return &memPort{records: records}
}

func (p *memPort) ReadOwner(ctx context.Context, name string) (lease.Owner, error) {
	if err := ctx.Err(); err != nil {
		return lease.NoOwner, err
	}
	r := p.find(name)
	if r == nil {
		return lease.NoOwner, nil
	}
	owner, _ := r.read()
	return lease.UnmarshalOwner(owner)
}

func (p *memPort) WriteOwner(ctx context.Context, name string, owner lease.Owner) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := lease.MarshalOwner(owner)
	if err != nil {
		return err
	}
	p.findOrCreate(name).writeOwner(data)
	return nil
}

func (p *memPort) ReadCounter(ctx context.Context, name string) (lease.Counter, error) {
	if err := ctx.Err(); err != nil {
		return lease.Undefined, err
	}
	r := p.find(name)
	if r == nil {
		return lease.Undefined, nil
	}
	_, counter := r.read()
	return lease.UnmarshalCounter(counter)
}

func (p *memPort) WriteCounter(ctx context.Context, name string, counter lease.Counter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := lease.MarshalCounter(counter)
	if err != nil {
		return err
	}
	p.findOrCreate(name).writeCounter(data)
	return nil
}

func (p *memPort) find(name string) *record {
	defer lock.Read(&p.mutex).Unlock()
	return p.records[name]
}

func (p *memPort) findOrCreate(name string) *record {
	// First try a read
	if r := p.find(name); r != nil {
		return r
	}

	// Then a write
	defer lock.Write(&p.mutex).Unlock()
	r := p.records[name]
	if r == nil {
		r = &record{}
		p.records[name] = r
	}
	return r
}

// ------------------------------------------------------------
// RECORD

// record holds the two independent slots of one lock.
type record struct {
	mutex   sync.Mutex
	owner   []byte
	counter []byte
}

func (r *record) read() ([]byte, []byte) {
	defer lock.Locker(&r.mutex).Unlock()
	return r.owner, r.counter
}

func (r *record) writeOwner(data []byte) {
	defer lock.Locker(&r.mutex).Unlock()
	r.owner = data
}

func (r *record) writeCounter(data []byte) {
	defer lock.Locker(&r.mutex).Unlock()
	r.counter = data
}
