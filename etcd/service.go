package leaseetcd

import (
	"context"
	"errors"

	"github.com/hackborn/lease"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// ------------------------------------------------------------
// ETCD-PORT

// Opts describes where the lock documents live.
type Opts struct {
	Prefix string // Optional key prefix. A missing trailing '/' is added.
}

// etcdPort provides a lease.Port on plain etcd keys. Only Get and Put are
// used. Transactions and etcd leases would make the protocol pointless, the
// port exists to run it on storage that happens to be etcd.
type etcdPort struct {
	kv   clientv3.KV
	opts Opts
}

// NewPort constructs a new port on kv, usually a *clientv3.Client.
func NewPort(opts Opts, kv clientv3.KV) (lease.Port, error) {
	if kv == nil {
		return nil, errClientRequired
	}
	opts.Prefix = lease.NormalizePrefix(opts.Prefix)
	return &etcdPort{kv: kv, opts: opts}, nil
}

func (p *etcdPort) ReadOwner(ctx context.Context, name string) (lease.Owner, error) {
	data, err := p.get(ctx, lease.OwnerKey(p.opts.Prefix, name))
	if err != nil {
		return lease.NoOwner, err
	}
	return lease.UnmarshalOwner(data)
}

func (p *etcdPort) WriteOwner(ctx context.Context, name string, owner lease.Owner) error {
	data, err := lease.MarshalOwner(owner)
	if err != nil {
		return err
	}
	_, err = p.kv.Put(ctx, lease.OwnerKey(p.opts.Prefix, name), string(data))
	return err
}

func (p *etcdPort) ReadCounter(ctx context.Context, name string) (lease.Counter, error) {
	data, err := p.get(ctx, lease.CounterKey(p.opts.Prefix, name))
	if err != nil {
		return lease.Undefined, err
	}
	return lease.UnmarshalCounter(data)
}

func (p *etcdPort) WriteCounter(ctx context.Context, name string, counter lease.Counter) error {
	data, err := lease.MarshalCounter(counter)
	if err != nil {
		return err
	}
	_, err = p.kv.Put(ctx, lease.CounterKey(p.opts.Prefix, name), string(data))
	return err
}

// get answers the value at key, or no data if the key is missing.
func (p *etcdPort) get(ctx context.Context, key string) ([]byte, error) {
	resp, err := p.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(resp.Kvs) < 1 {
		return nil, nil
	}
	return resp.Kvs[0].Value, nil
}

// ------------------------------------------------------------
// CONST and VAR

var (
	errClientRequired = errors.New("etcd client is required")
)
