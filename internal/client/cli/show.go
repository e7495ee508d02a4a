package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"racuni/internal/client/localdb"
	"racuni/internal/domain/entity"
	"racuni/internal/domain/syncer"
)

func newShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <entity-type> [entity-id]",
		Short: "Print local entities of one kind",
		Long: `Print the live local entities of one kind, or a single entity by id.
A single entity is shown even when it is a pending delete.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, ok := entity.NewRegistry().Lookup(args[0])
			if !ok {
				return fmt.Errorf("%w: %q", syncer.ErrUnknownEntityType, args[0])
			}

			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.Close()
			ctx := cmd.Context()

			if len(args) == 2 {
				e, err := s.db.Entity(ctx, string(d.Kind), args[1])
				if errors.Is(err, localdb.ErrNotFound) {
					return fmt.Errorf("no local %s %s", d.Kind, args[1])
				}
				if err != nil {
					return err
				}
				view := viewEntity(*e)
				return opts.emit(cmd, view, func(w io.Writer) error { return printEntities(w, []entityView{view}) })
			}

			rows, err := s.db.Entities(ctx, string(d.Kind))
			if err != nil {
				return err
			}
			views := make([]entityView, 0, len(rows))
			for _, e := range rows {
				views = append(views, viewEntity(e))
			}
			return opts.emit(cmd, views, func(w io.Writer) error { return printEntities(w, views) })
		},
	}
}
