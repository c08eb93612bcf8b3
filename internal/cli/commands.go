package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/hackborn/lease"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newAcquireCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "acquire",
		Short: "Try once to acquire the lock",
		Long:  "Try once to acquire the lock for --owner. Exits 2 when the lock was not acquired and 3 when a failed attempt could not be undone.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(v, cmd, func(ctx context.Context, s *session) error {
				o := s.app.engine.Acquire(ctx, s.cfg.Owner)
				fmt.Fprintln(cmd.OutOrStdout(), o.String())
				return outcomeErr(o)
			})
		},
	}
}

func newReleaseCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "release",
		Short: "Release the lock if --owner holds it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(v, cmd, func(ctx context.Context, s *session) error {
				return s.app.engine.Release(ctx, s.cfg.Owner)
			})
		},
	}
}

func newStatusCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the current owner record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(v, cmd, func(ctx context.Context, s *session) error {
				owner, err := s.app.engine.Status(ctx, s.cfg.Owner)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), formatOwner(owner, s.app.clock.Now()))
				return nil
			})
		},
	}
}

func newExecCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "exec -- command [args...]",
		Short: "Run a command while holding the lock",
		Long:  "Acquire the lock, run the command with a deadline of --budget, then release the lock. The command's exit status is passed through.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(v, cmd, func(ctx context.Context, s *session) error {
				ran := false
				err := s.app.engine.Run(ctx, s.cfg.Owner, func(ctx context.Context) error {
					ran = true
					c := exec.CommandContext(ctx, args[0], args[1:]...)
					c.Stdin = os.Stdin
					c.Stdout = cmd.OutOrStdout()
					c.Stderr = cmd.ErrOrStderr()
					return c.Run()
				})
				if !ran {
					return kindErr(err)
				}
				var ee *exec.ExitError
				if errors.As(err, &ee) && ee.ExitCode() > 0 {
					return &exitError{code: ee.ExitCode(), err: err}
				}
				return err
			})
		},
	}
}

// outcomeErr converts a failed outcome into an exit status.
func outcomeErr(o lease.Outcome) error {
	if o.Succeeded() {
		return nil
	}
	return kindErr(o.Err)
}

func kindErr(err error) error {
	switch lease.KindOf(err) {
	case lease.KindNone:
		return nil
	case lease.KindRollback:
		return &exitError{code: ExitRollback, err: err}
	default:
		return &exitError{code: ExitNotAcquired, err: err}
	}
}

func formatOwner(o lease.Owner, now time.Time) string {
	if o.IsNoOwner() {
		return "owner=<none>"
	}
	return fmt.Sprintf("owner=%v expires=%v remaining=%.0fs valid=%v",
		o.Name, o.Expiry.UTC().Format(time.RFC3339), o.RemainingSeconds(now), o.Valid(now))
}
