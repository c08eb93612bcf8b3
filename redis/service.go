package leaseredis

import (
	"context"
	"errors"

	"github.com/hackborn/lease"
	"github.com/redis/go-redis/v9"
)

// ------------------------------------------------------------
// REDIS-PORT

// Opts describes where the lock documents live.
type Opts struct {
	Prefix string // Optional key prefix. A missing trailing '/' is added.
}

// redisPort provides a lease.Port on plain Redis strings. Only GET and SET
// are used, no scripts and no SET NX, so the port offers exactly what an
// object store offers.
type redisPort struct {
	client redis.Cmdable
	opts   Opts
}

// NewPort constructs a new port on client.
func NewPort(opts Opts, client redis.Cmdable) (lease.Port, error) {
	if client == nil {
		return nil, errClientRequired
	}
	opts.Prefix = lease.NormalizePrefix(opts.Prefix)
	return &redisPort{client: client, opts: opts}, nil
}

func (p *redisPort) ReadOwner(ctx context.Context, name string) (lease.Owner, error) {
	data, err := p.get(ctx, lease.OwnerKey(p.opts.Prefix, name))
	if err != nil {
		return lease.NoOwner, err
	}
	return lease.UnmarshalOwner(data)
}

func (p *redisPort) WriteOwner(ctx context.Context, name string, owner lease.Owner) error {
	data, err := lease.MarshalOwner(owner)
	if err != nil {
		return err
	}
	return p.client.Set(ctx, lease.OwnerKey(p.opts.Prefix, name), data, 0).Err()
}

func (p *redisPort) ReadCounter(ctx context.Context, name string) (lease.Counter, error) {
	data, err := p.get(ctx, lease.CounterKey(p.opts.Prefix, name))
	if err != nil {
		return lease.Undefined, err
	}
	return lease.UnmarshalCounter(data)
}

func (p *redisPort) WriteCounter(ctx context.Context, name string, counter lease.Counter) error {
	data, err := lease.MarshalCounter(counter)
	if err != nil {
		return err
	}
	return p.client.Set(ctx, lease.CounterKey(p.opts.Prefix, name), data, 0).Err()
}

// get answers the value at key, or no data if the key is missing.
func (p *redisPort) get(ctx context.Context, key string) ([]byte, error) {
	data, err := p.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return data, err
}

// ------------------------------------------------------------
// CONST and VAR

var (
	errClientRequired = errors.New("Redis client is required")
)
