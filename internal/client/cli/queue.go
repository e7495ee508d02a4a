package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"racuni/internal/client/localdb"
	"racuni/internal/domain/entity"
)

type statusView struct {
	Pending  int            `json:"pending"`
	Dead     int            `json:"dead"`
	Entities map[string]int `json:"entities"`
}

func newStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue counts and local entity totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			view := statusView{Entities: make(map[string]int)}
			if view.Pending, view.Dead, err = s.db.Counts(ctx); err != nil {
				return err
			}

			descriptors := entity.NewRegistry().Descriptors()
			for _, d := range descriptors {
				rows, err := s.db.Entities(ctx, string(d.Kind))
				if err != nil {
					return err
				}
				view.Entities[d.Collection] = len(rows)
			}

			return opts.emit(cmd, view, func(w io.Writer) error {
				fmt.Fprintf(w, "Queue: %d pending, %d dead\n", view.Pending, view.Dead)
				for _, d := range descriptors {
					fmt.Fprintf(w, "  %-16s %d\n", d.Collection, view.Entities[d.Collection])
				}
				return nil
			})
		},
	}
}

func newQueueCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "List every queued mutation with its retry state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.Close()

			items, err := s.orch.Diagnostics(cmd.Context())
			if err != nil {
				return err
			}
			views := viewItems(items)
			return opts.emit(cmd, views, func(w io.Writer) error { return printItems(w, views) })
		},
	}
}

func newDeadCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dead",
		Short: "List mutations that are no longer retried",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.Close()

			items, err := s.orch.DeadLetters(cmd.Context())
			if err != nil {
				return err
			}
			views := viewItems(items)
			return opts.emit(cmd, views, func(w io.Writer) error { return printItems(w, views) })
		},
	}
}

func newRetryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <item-id>...",
		Short: "Re-queue dead mutations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return eachDead(opts, cmd, args, "Re-queued", func(s *session, id string) error {
				return s.orch.Retry(cmd.Context(), id)
			})
		},
	}
}

func newDiscardCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "discard <item-id>...",
		Short: "Drop dead mutations",
		Long: `Drop dead mutations from the queue. A never-synced entity with nothing
else queued is removed locally; otherwise the next pull restores the
server copy.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return eachDead(opts, cmd, args, "Discarded", func(s *session, id string) error {
				return s.orch.Discard(cmd.Context(), id)
			})
		},
	}
}

func eachDead(opts *RootOptions, cmd *cobra.Command, ids []string, verb string, fn func(*session, string) error) error {
	s, err := opts.open()
	if err != nil {
		return err
	}
	defer s.Close()

	for _, id := range ids {
		err := fn(s, id)
		if errors.Is(err, localdb.ErrNotFound) {
			return fmt.Errorf("no dead item %s", id)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, id)
	}
	return nil
}
