package syncer

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"racuni/internal/domain/entity"
)

// Domain errors
var (
	ErrInvalidEnvelope   = errors.New("invalid sync envelope")
	ErrUnknownEntityType = errors.New("unknown entity type")
)

// Envelope is a single pushed mutation as it arrives on the wire.
type Envelope struct {
	EntityType string           `json:"entityType"`
	EntityID   string           `json:"entityId"`
	Operation  entity.Operation `json:"operation"`
	Data       json.RawMessage  `json:"data,omitempty"`
}

// Validate checks the envelope shape; entity fields are checked by the registry.
func (e Envelope) Validate() entity.FieldErrors {
	var errs entity.FieldErrors
	if strings.TrimSpace(e.EntityType) == "" {
		errs.Add("entityType", "is required")
	}
	if strings.TrimSpace(e.EntityID) == "" {
		errs.Add("entityId", "is required")
	} else if len(e.EntityID) > 128 {
		errs.Add("entityId", "must be at most 128 characters")
	}
	switch {
	case e.Operation == "":
		errs.Add("operation", "is required")
	case !entity.IsValidOperation(e.Operation):
		errs.Add("operation", "must be one of: create, update, delete")
	case e.Operation != entity.OpDelete && isEmptyJSON(e.Data):
		errs.Add("data", "is required for %s", e.Operation)
	}
	return errs
}

func isEmptyJSON(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

// Mutation is a validated envelope ready for the store.
type Mutation struct {
	Descriptor      entity.Descriptor
	UserID          string
	EntityID        string
	Operation       entity.Operation
	Payload         entity.Payload // nil for delete
	ClientCreatedAt *time.Time
}

// PushResult is returned to the client after a successful apply.
type PushResult struct {
	Operation  entity.Operation `json:"operation"`
	EntityType entity.Kind      `json:"entityType"`
	EntityID   string           `json:"entityId"`
}

// KindStats is the diagnostic summary of one kind for one user.
type KindStats struct {
	Count         int64
	LatestUpdated *time.Time
}

// Snapshot is the full live entity set of a user.
type Snapshot struct {
	Collections map[string][]map[string]any
	Settings    map[string]any
	Counts      map[string]int
	PulledAt    time.Time
	Failed      []string // collections whose fetch failed and were returned empty
}

// Diagnostics is the per-kind summary returned by the debug endpoint.
type Diagnostics struct {
	UserID        string
	Counts        map[string]int64
	LatestUpdates map[string]*time.Time
	Failed        []string
}
