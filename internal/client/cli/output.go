package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"racuni/internal/client/localdb"
)

// emit writes v as indented JSON in json mode, otherwise calls text.
func (o *RootOptions) emit(cmd *cobra.Command, v any, text func(w io.Writer) error) error {
	w := cmd.OutOrStdout()
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return text(w)
}

// itemView is the printable form of a queue item.
type itemView struct {
	ID            string          `json:"id"`
	EntityType    string          `json:"entityType"`
	EntityID      string          `json:"entityId"`
	Operation     string          `json:"operation"`
	Status        string          `json:"status"`
	RetryCount    int             `json:"retryCount"`
	NextAttemptAt time.Time       `json:"nextAttemptAt"`
	LastError     string          `json:"lastError,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

func viewItems(items []localdb.Item) []itemView {
	views := make([]itemView, 0, len(items))
	for _, it := range items {
		views = append(views, itemView{
			ID:            it.ID,
			EntityType:    it.EntityType,
			EntityID:      it.EntityID,
			Operation:     string(it.Operation),
			Status:        string(it.Status),
			RetryCount:    it.RetryCount,
			NextAttemptAt: it.NextAttemptAt,
			LastError:     it.LastError,
			Payload:       it.Payload,
		})
	}
	return views
}

func printItems(w io.Writer, items []itemView) error {
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, "No queued mutations")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tENTITY\tOP\tSTATUS\tRETRIES\tNEXT ATTEMPT\tLAST ERROR")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s/%s\t%s\t%s\t%d\t%s\t%s\n",
			it.ID, it.EntityType, it.EntityID, it.Operation, it.Status, it.RetryCount,
			it.NextAttemptAt.Local().Format(time.DateTime), it.LastError)
	}
	return tw.Flush()
}

// entityView is the printable form of a locally cached entity.
type entityView struct {
	Type            string          `json:"entityType"`
	ID              string          `json:"entityId"`
	SyncStatus      string          `json:"syncStatus"`
	Deleted         bool            `json:"deleted"`
	LocalUpdatedAt  time.Time       `json:"localUpdatedAt"`
	RemoteUpdatedAt *time.Time      `json:"remoteUpdatedAt,omitempty"`
	Data            json.RawMessage `json:"data"`
}

func viewEntity(e localdb.Entity) entityView {
	return entityView{
		Type:            e.Type,
		ID:              e.ID,
		SyncStatus:      e.SyncStatus,
		Deleted:         e.Deleted,
		LocalUpdatedAt:  e.LocalUpdatedAt,
		RemoteUpdatedAt: e.RemoteUpdatedAt,
		Data:            e.Data,
	}
}

func printEntities(w io.Writer, entities []entityView) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSYNC\tDELETED\tDATA")
	for _, e := range entities {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", e.ID, e.SyncStatus, e.Deleted, e.Data)
	}
	return tw.Flush()
}
