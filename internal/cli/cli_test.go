package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hackborn/lease"
	"github.com/hackborn/lease/internal/config"
	leasemem "github.com/hackborn/lease/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCommands runs a sequence of command lines against one shared lock.
func TestCommands(t *testing.T) {
	useMemPort(t)
	base := []string{"--backend", "mem", "--lock", "deploy", "--log-level", "error"}

	cases := []struct {
		Args       []string
		WantCode   int
		WantOutput string
	}{
		{[]string{"status"}, ExitOK, "owner=<none>"},
		{[]string{"acquire", "--owner", "a"}, ExitOK, "Lock: Acquired"},
		{[]string{"acquire", "--owner", "b"}, ExitNotAcquired, "Lock is currently held by owner a"},
		{[]string{"status"}, ExitOK, "owner=a "},
		{[]string{"release", "--owner", "b"}, ExitOK, ""},
		{[]string{"status"}, ExitOK, "owner=a "},
		{[]string{"release", "--owner", "a"}, ExitOK, ""},
		{[]string{"status"}, ExitOK, "owner=<none>"},
		{[]string{"exec", "--owner", "c", "--", "sh", "-c", "echo working; exit 3"}, 3, "working"},
		{[]string{"status"}, ExitOK, "owner=<none>"},
		{[]string{"exec", "--owner", "c", "--", "sh", "-c", "true"}, ExitOK, ""},
	}
	for i, tc := range cases {
		out, code := runArgs(t, append(append([]string{}, base...), tc.Args...))
		if code != tc.WantCode {
			t.Fatalf("TestCommands %d %v has exit %v but wants %v (%v)", i, tc.Args, code, tc.WantCode, out)
		}
		if !strings.Contains(out, tc.WantOutput) {
			t.Fatalf("TestCommands %d %v has output %q but wants %q", i, tc.Args, out, tc.WantOutput)
		}
	}
}

// TestExecWhenHeld verifies the command does not run without the lock.
func TestExecWhenHeld(t *testing.T) {
	useMemPort(t)
	base := []string{"--backend", "mem", "--lock", "deploy", "--log-level", "error"}
	_, code := runArgs(t, append(base, "acquire", "--owner", "a"))
	require.Equal(t, ExitOK, code)

	out, code := runArgs(t, append(base, "exec", "--owner", "b", "--", "sh", "-c", "echo ran"))
	assert.Equal(t, ExitNotAcquired, code)
	assert.NotContains(t, out, "ran")
}

// TestMetricsFile verifies metrics are written on exit.
func TestMetricsFile(t *testing.T) {
	useMemPort(t)
	path := filepath.Join(t.TempDir(), "lease.prom")
	_, code := runArgs(t, []string{"--backend", "mem", "--lock", "deploy", "--log-level", "error", "--metrics-file", path, "acquire", "--owner", "a"})
	require.Equal(t, ExitOK, code)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `lease_acquire_total{kind="none",result="Acquired"} 1`)
	assert.Contains(t, string(data), "lease_storage_ops_total")
}

// TestConfigErrors verifies bad configuration exits 1.
func TestConfigErrors(t *testing.T) {
	useMemPort(t)
	cases := [][]string{
		{"--backend", "mem", "status"},
		{"--backend", "mem", "--lock", "l", "--log-format", "xml", "status"},
		{"--backend", "tape", "--lock", "l", "status"},
	}
	for i, args := range cases {
		if _, code := runArgs(t, args); code != ExitError {
			t.Fatalf("TestConfigErrors %d has exit %v", i, code)
		}
	}
}

func TestVersion(t *testing.T) {
	out, code := runArgs(t, []string{"version"})
	assert.Equal(t, ExitOK, code)
	assert.Equal(t, "lease v"+Version+"\n", out)
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		Err  error
		Want int
	}{
		{nil, ExitOK},
		{config.ErrMissing, ExitError},
		{kindErr(&lease.Error{Kind: lease.KindContention}), ExitNotAcquired},
		{kindErr(&lease.Error{Kind: lease.KindTransport}), ExitNotAcquired},
		{kindErr(&lease.Error{Kind: lease.KindRollback}), ExitRollback},
	}
	for i, tc := range cases {
		if have := ExitCode(tc.Err); have != tc.Want {
			t.Fatalf("TestExitCode %d has %v but wants %v", i, have, tc.Want)
		}
	}
}

// ------------------------------------------------------------
// SUPPORT

// useMemPort shares one in-memory storage across every command run by
// the test.
func useMemPort(t *testing.T) {
	t.Helper()
	port := leasemem.NewPort()
	saved := openPort
	openPort = func(context.Context, config.Config) (lease.Port, func() error, error) {
		return port, nil, nil
	}
	t.Cleanup(func() {
		openPort = saved
	})
}

func runArgs(t *testing.T, args []string) (string, int) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	code := run(context.Background(), root, args, &errOut)
	return out.String() + errOut.String(), code
}
