package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"racuni/internal/client/localdb"
	"racuni/internal/domain/entity"
)

// RecordOptions holds flags for the record command.
type RecordOptions struct {
	*RootOptions
	Operation string
	Data      string
}

func newRecordCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "record <entity-type> [entity-id]",
		Short: "Queue a local create, update or delete",
		Long: `Validate a mutation, apply it to the local copy and queue it for push.

A new id is generated for creates without one. --data takes a JSON object,
or "-" to read it from stdin.

Example:
  syncctl record receipt --data '{"merchantName":"Maxi","totalAmount":1250.5,"date":"2024-01-15"}'
  syncctl record device d1 --op update --data '{"notes":"box in garage"}'
  syncctl record reminder r7 --op delete`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(opts, cmd, args)
		},
	}

	cmd.Flags().StringVar(&opts.Operation, "op", string(entity.OpCreate), "operation (create|update|delete)")
	cmd.Flags().StringVar(&opts.Data, "data", "", "entity fields as a JSON object")

	return cmd
}

func runRecord(opts *RecordOptions, cmd *cobra.Command, args []string) error {
	op := entity.Operation(opts.Operation)
	if !entity.IsValidOperation(op) {
		return fmt.Errorf("invalid operation %q: must be create, update or delete", opts.Operation)
	}

	var id string
	if len(args) > 1 {
		id = strings.TrimSpace(args[1])
	}
	if id == "" {
		if op != entity.OpCreate {
			return fmt.Errorf("an entity id is required for %s", op)
		}
		id = uuid.NewString()
	}

	data, err := readData(opts.Data, cmd.InOrStdin())
	if err != nil {
		return err
	}
	if op != entity.OpDelete && data == nil {
		return fmt.Errorf("--data is required for %s", op)
	}

	s, err := opts.open()
	if err != nil {
		return err
	}
	defer s.Close()

	item, err := s.orch.Record(cmd.Context(), args[0], id, op, data)
	if err != nil {
		return err
	}

	return opts.emit(cmd, viewItems([]localdb.Item{*item})[0], func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Queued %s %s/%s (%s)\n", item.Operation, item.EntityType, item.EntityID, item.ID)
		return err
	})
}

func readData(arg string, stdin io.Reader) (json.RawMessage, error) {
	if arg == "" {
		return nil, nil
	}
	raw := []byte(arg)
	if arg == "-" {
		var err error
		if raw, err = io.ReadAll(stdin); err != nil {
			return nil, fmt.Errorf("failed to read data from stdin: %w", err)
		}
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("--data is not valid JSON")
	}
	return json.RawMessage(raw), nil
}
