package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	awssession "github.com/aws/aws-sdk-go/aws/session"
	"github.com/hackborn/lease"
	leasedynamo "github.com/hackborn/lease/dynamo"
	leaseetcd "github.com/hackborn/lease/etcd"
	"github.com/hackborn/lease/internal/config"
	leasemem "github.com/hackborn/lease/mem"
	leaseredis "github.com/hackborn/lease/redis"
	leases3 "github.com/hackborn/lease/s3"
	goredis "github.com/redis/go-redis/v9"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// openPort answers the storage named by cfg and the function that releases
// its client, if any. Tests replace it.
var openPort = func(ctx context.Context, cfg config.Config) (lease.Port, func() error, error) {
	switch cfg.Backend {
	case config.BackendS3:
		sess, err := newAWSSession(cfg)
		if err != nil {
			return nil, nil, err
		}
		p, err := leases3.NewPortFromSession(leases3.Opts{Bucket: cfg.Bucket, Prefix: cfg.Prefix}, sess)
		return p, nil, err
	case config.BackendDynamo:
		sess, err := newAWSSession(cfg)
		if err != nil {
			return nil, nil, err
		}
		p, err := leasedynamo.NewPortFromSession(leasedynamo.Opts{Table: cfg.Table, Prefix: cfg.Prefix}, sess)
		return p, nil, err
	case config.BackendRedis:
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		p, err := leaseredis.NewPort(leaseredis.Opts{Prefix: cfg.Prefix}, client)
		return p, client.Close, err
	case config.BackendEtcd:
		client, err := clientv3.New(clientv3.Config{
			Endpoints:   cfg.EtcdEndpoints,
			DialTimeout: etcdDialTimeout,
			Context:     ctx,
		})
		if err != nil {
			return nil, nil, err
		}
		p, err := leaseetcd.NewPort(leaseetcd.Opts{Prefix: cfg.Prefix}, client)
		return p, client.Close, err
	case config.BackendMem:
		return leasemem.NewPort(), nil, nil
	}
	return nil, nil, fmt.Errorf("%w: %v %q", config.ErrInvalid, config.KeyBackend, cfg.Backend)
}

// newAWSSession answers a session from the shared AWS configuration with
// the region and endpoint overrides applied.
func newAWSSession(cfg config.Config) (*awssession.Session, error) {
	awsCfg := aws.Config{}
	if cfg.Region != "" {
		awsCfg.Region = aws.String(cfg.Region)
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		// Lookalikes such as minio rarely support virtual hosted buckets.
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	return awssession.NewSessionWithOptions(awssession.Options{
		Config:            awsCfg,
		SharedConfigState: awssession.SharedConfigEnable,
	})
}

const (
	etcdDialTimeout = 5 * time.Second
)
