package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hackborn/lease/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	Version = "0.1.0"
)

// Exit statuses.
const (
	ExitOK          = 0
	ExitError       = 1
	ExitNotAcquired = 2
	ExitRollback    = 3
)

// exitError carries a specific exit status up to Execute.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// ExitCode answers the process exit status for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var e *exitError
	if errors.As(err, &e) {
		return e.code
	}
	return ExitError
}

// NewRootCmd answers the lease command tree.
func NewRootCmd() *cobra.Command {
	v := config.New()
	root := &cobra.Command{
		Use:   "lease",
		Short: "lease based mutual exclusion on plain storage",
		Long: fmt.Sprintf(`lease (v%s)

Acquire, inspect and release a named lock kept as two documents in an
object store, a DynamoDB table, Redis or etcd. The lock is a lease: it
expires on its own, so a crashed holder never blocks anyone for longer
than the operation budget plus a minute.`, Version),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return config.BindFlags(v, cmd.Flags())
		},
	}
	config.SetupFlags(root.PersistentFlags())

	root.AddCommand(newAcquireCmd(v))
	root.AddCommand(newReleaseCmd(v))
	root.AddCommand(newStatusCmd(v))
	root.AddCommand(newExecCmd(v))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number of lease",
		// Skip flag binding and configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "lease v%s\n", Version)
		},
	})
	return root
}

// Execute runs the command line and answers the exit status.
// This is called by main.main().
func Execute() int {
	return run(context.Background(), NewRootCmd(), os.Args[1:], os.Stderr)
}

func run(ctx context.Context, root *cobra.Command, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(stderr, err)
	}
	return ExitCode(err)
}

// session is the state shared by one command run.
type session struct {
	cfg config.Config
	app *app
}

func withSession(v *viper.Viper, cmd *cobra.Command, fn func(context.Context, *session) error) (err error) {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, a.close(context.WithoutCancel(ctx)))
	}()
	return fn(ctx, &session{cfg: cfg, app: a})
}
