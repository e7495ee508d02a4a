package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"racuni/internal/client/orchestrator"
)

func newPushCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Push every ready queued mutation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.Close()

			report, err := s.orch.PushAll(cmd.Context())
			if report != nil {
				if werr := opts.emit(cmd, report, func(w io.Writer) error { return printPush(w, report) }); werr != nil {
					return werr
				}
			}
			return err
		},
	}
}

func newPullCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Merge the server snapshot into the local copy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.Close()

			report, err := s.orch.PullAll(cmd.Context())
			if err != nil {
				return err
			}
			return opts.emit(cmd, report, func(w io.Writer) error { return printPull(w, report) })
		},
	}
}

func newSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push queued mutations, then pull",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.Close()

			report, err := s.orch.FullSync(cmd.Context())
			if report != nil {
				werr := opts.emit(cmd, report, func(w io.Writer) error {
					if report.Push != nil {
						if err := printPush(w, report.Push); err != nil {
							return err
						}
					}
					if report.Pull != nil {
						return printPull(w, report.Pull)
					}
					return nil
				})
				if werr != nil {
					return werr
				}
			}
			return err
		},
	}
}

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Interval time.Duration
}

func newRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sync periodically until interrupted",
		Long: `Run a full sync immediately and then on every interval, printing each
status change. Stops on SIGINT or SIGTERM after the in-flight item finishes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoop(opts, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "time between syncs (default from config)")

	return cmd
}

func runLoop(opts *RunOptions, cmd *cobra.Command) error {
	interval := opts.Interval
	if interval <= 0 {
		interval = opts.config.Sync.Interval
	}

	s, err := opts.open()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	statuses, unsubscribe := s.orch.Subscribe()
	defer unsubscribe()

	done := make(chan error, 1)
	go func() { done <- s.orch.Run(ctx, interval) }()

	var last string
	for {
		select {
		case st := <-statuses:
			line := statusLine(st)
			if line == last {
				continue
			}
			last = line
			if err := opts.emit(cmd, st, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, line)
				return err
			}); err != nil {
				return err
			}
		case err := <-done:
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func statusLine(st orchestrator.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "pending=%d dead=%d", st.Pending, st.Dead)
	if st.Syncing {
		b.WriteString(" syncing")
	}
	if st.LastPushAt != nil {
		fmt.Fprintf(&b, " last_push=%s", st.LastPushAt.Local().Format(time.TimeOnly))
	}
	if st.LastPullAt != nil {
		fmt.Fprintf(&b, " last_pull=%s", st.LastPullAt.Local().Format(time.TimeOnly))
	}
	if st.LastError != "" {
		fmt.Fprintf(&b, " error=%q", st.LastError)
	}
	return b.String()
}

func printPush(w io.Writer, r *orchestrator.PushReport) error {
	_, err := fmt.Fprintf(w, "Push: %d pushed, %d retrying, %d dead, %d skipped\n", r.Pushed, r.Retried, r.Dead, r.Skipped)
	return err
}

func printPull(w io.Writer, r *orchestrator.PullReport) error {
	_, err := fmt.Fprintf(w, "Pull: %d applied, %d removed, %d kept local, %d unchanged, %d invalid\n",
		r.Applied, r.Removed, r.SkippedPending, r.SkippedStale, r.Invalid)
	if err == nil && len(r.Failed) > 0 {
		_, err = fmt.Fprintf(w, "Server could not read: %s\n", strings.Join(r.Failed, ", "))
	}
	return err
}
