package config

import (
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	cases := []struct {
		Name    string
		Env     map[string]string
		Args    []string
		Want    func(*testing.T, Config)
		WantErr error
	}{
		{
			"defaults", nil, []string{"--lock", "deploy", "--bucket", "b"},
			func(t *testing.T, c Config) {
				assert.Equal(t, BackendS3, c.Backend)
				assert.Equal(t, 2*time.Minute, c.Budget)
				assert.Equal(t, []string{"localhost:2379"}, c.EtcdEndpoints)
				host, _ := os.Hostname()
				assert.True(t, strings.HasPrefix(c.Owner, host+"-"), c.Owner)
			}, nil,
		},
		{
			"environment", map[string]string{"LEASE_LOCK": "nightly", "LEASE_BACKEND": "ETCD", "LEASE_ETCD_ENDPOINTS": "a:1, b:2,", "LEASE_BUDGET": "90s"}, nil,
			func(t *testing.T, c Config) {
				assert.Equal(t, "nightly", c.Lock)
				assert.Equal(t, BackendEtcd, c.Backend)
				assert.Equal(t, []string{"a:1", "b:2"}, c.EtcdEndpoints)
				assert.Equal(t, 90*time.Second, c.Budget)
			}, nil,
		},
		{
			"flags beat environment", map[string]string{"LEASE_OWNER": "env"}, []string{"--lock", "l", "--backend", "mem", "--owner", "flag"},
			func(t *testing.T, c Config) {
				assert.Equal(t, "flag", c.Owner)
			}, nil,
		},
		{"missing lock", nil, []string{"--backend", "mem"}, nil, ErrMissing},
		{"missing bucket", nil, []string{"--lock", "l"}, nil, ErrMissing},
		{"missing table", nil, []string{"--lock", "l", "--backend", "dynamo"}, nil, ErrMissing},
		{"bad budget", nil, []string{"--lock", "l", "--backend", "mem", "--budget", "0s"}, nil, ErrInvalid},
		{"bad backend", nil, []string{"--lock", "l", "--backend", "floppy"}, nil, ErrInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			for k, v := range tc.Env {
				t.Setenv(k, v)
			}
			flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
			SetupFlags(flags)
			require.NoError(t, flags.Parse(tc.Args))
			v := New()
			require.NoError(t, BindFlags(v, flags))

			have, err := Load(v)
			if tc.WantErr != nil {
				assert.True(t, errors.Is(err, tc.WantErr), "have err %v", err)
				return
			}
			require.NoError(t, err)
			tc.Want(t, have)
		})
	}
}

func TestDefaultOwnerIsUnique(t *testing.T) {
	assert.NotEqual(t, DefaultOwner(), DefaultOwner())
}
