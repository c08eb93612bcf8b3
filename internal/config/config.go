package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds everything the CLI needs to reach a lock.
type Config struct {
	Backend       string
	Lock          string
	Owner         string
	Budget        time.Duration
	Prefix        string
	Bucket        string
	Region        string
	Endpoint      string
	Table         string
	RedisAddr     string
	EtcdEndpoints []string
	LogLevel      string
	LogFormat     string
	MetricsFile   string
	OTLPEndpoint  string
}

// Backends lists the supported storage backends.
var Backends = []string{BackendS3, BackendDynamo, BackendRedis, BackendEtcd, BackendMem}

const (
	BackendS3     = "s3"
	BackendDynamo = "dynamo"
	BackendRedis  = "redis"
	BackendEtcd   = "etcd"
	BackendMem    = "mem"
)

// Flag keys. Each is also read from the environment as LEASE_<KEY>, with
// dashes replaced by underscores.
const (
	KeyBackend       = "backend"
	KeyLock          = "lock"
	KeyOwner         = "owner"
	KeyBudget        = "budget"
	KeyPrefix        = "prefix"
	KeyBucket        = "bucket"
	KeyRegion        = "region"
	KeyEndpoint      = "endpoint"
	KeyTable         = "table"
	KeyRedisAddr     = "redis-addr"
	KeyEtcdEndpoints = "etcd-endpoints"
	KeyLogLevel      = "log-level"
	KeyLogFormat     = "log-format"
	KeyMetricsFile   = "metrics-file"
	KeyOTLPEndpoint  = "otlp-endpoint"
)

// SetupFlags adds the configuration flags to flags.
func SetupFlags(flags *pflag.FlagSet) {
	flags.String(KeyBackend, BackendS3, "storage backend ("+strings.Join(Backends, ", ")+")")
	flags.String(KeyLock, "", "name of the lock")
	flags.String(KeyOwner, "", "owner name (defaults to the hostname plus a random id)")
	flags.Duration(KeyBudget, 2*time.Minute, "how long the protected operation needs the lock")
	flags.String(KeyPrefix, "", "key prefix of the lock documents")
	flags.String(KeyBucket, "", "S3 bucket")
	flags.String(KeyRegion, "", "AWS region")
	flags.String(KeyEndpoint, "", "AWS endpoint override, for S3 or DynamoDB lookalikes")
	flags.String(KeyTable, "", "DynamoDB table")
	flags.String(KeyRedisAddr, "localhost:6379", "Redis address")
	flags.String(KeyEtcdEndpoints, "localhost:2379", "comma separated etcd endpoints")
	flags.String(KeyLogLevel, "info", "log level (debug, info, warn, error)")
	flags.String(KeyLogFormat, "console", "log format (console, json)")
	flags.String(KeyMetricsFile, "", "write prometheus metrics to this textfile on exit")
	flags.String(KeyOTLPEndpoint, "", "export traces to this OTLP/HTTP endpoint")
}

// New answers a viper reading .env files and LEASE_ environment variables.
// Flags are bound separately with BindFlags.
func New() *viper.Viper {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags makes flags the fallback-aware source of every key.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	return v.BindPFlags(flags)
}

// Load answers the validated configuration.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Backend:      strings.ToLower(v.GetString(KeyBackend)),
		Lock:         v.GetString(KeyLock),
		Owner:        v.GetString(KeyOwner),
		Budget:       v.GetDuration(KeyBudget),
		Prefix:       v.GetString(KeyPrefix),
		Bucket:       v.GetString(KeyBucket),
		Region:       v.GetString(KeyRegion),
		Endpoint:     v.GetString(KeyEndpoint),
		Table:        v.GetString(KeyTable),
		RedisAddr:    v.GetString(KeyRedisAddr),
		LogLevel:     v.GetString(KeyLogLevel),
		LogFormat:    v.GetString(KeyLogFormat),
		MetricsFile:  v.GetString(KeyMetricsFile),
		OTLPEndpoint: v.GetString(KeyOTLPEndpoint),
	}
	for _, e := range strings.Split(v.GetString(KeyEtcdEndpoints), ",") {
		if e = strings.TrimSpace(e); e != "" {
			cfg.EtcdEndpoints = append(cfg.EtcdEndpoints, e)
		}
	}
	if cfg.Owner == "" {
		cfg.Owner = DefaultOwner()
	}
	return cfg, cfg.Validate()
}

// Validate answers an error describing the first missing or bad setting.
func (c Config) Validate() error {
	if c.Lock == "" {
		return fmt.Errorf("%w: %v", ErrMissing, KeyLock)
	}
	if c.Budget <= 0 {
		return fmt.Errorf("%w: %v must be positive", ErrInvalid, KeyBudget)
	}
	switch c.Backend {
	case BackendS3:
		if c.Bucket == "" {
			return fmt.Errorf("%w: %v", ErrMissing, KeyBucket)
		}
	case BackendDynamo:
		if c.Table == "" {
			return fmt.Errorf("%w: %v", ErrMissing, KeyTable)
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: %v", ErrMissing, KeyRedisAddr)
		}
	case BackendEtcd:
		if len(c.EtcdEndpoints) == 0 {
			return fmt.Errorf("%w: %v", ErrMissing, KeyEtcdEndpoints)
		}
	case BackendMem:
	default:
		return fmt.Errorf("%w: %v %q", ErrInvalid, KeyBackend, c.Backend)
	}
	return nil
}

// DefaultOwner answers a name unique to this process.
func DefaultOwner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "lease"
	}
	return host + "-" + uuid.NewString()
}

// ------------------------------------------------------------
// CONST and VAR

const (
	envPrefix = "lease"
)

var (
	ErrMissing = errors.New("missing setting")
	ErrInvalid = errors.New("invalid setting")
)
