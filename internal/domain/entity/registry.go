package entity

import (
	"encoding/json"
	"slices"
	"strings"
	"time"
)

// Kind is the wire token identifying an entity type in a push envelope.
type Kind string

const (
	KindReceipt       Kind = "receipt"
	KindDevice        Kind = "device"
	KindReminder      Kind = "reminder"
	KindHouseholdBill Kind = "householdBill"
	KindDocument      Kind = "document"
	KindSubscription  Kind = "subscription"
	KindSettings      Kind = "settings"
)

// Operation is the mutation carried by a push envelope.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// IsValidOperation checks if the provided operation is known
func IsValidOperation(op Operation) bool {
	switch op {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// DeletePolicy decides what a delete does to the stored row.
type DeletePolicy int

const (
	// SoftDelete sets is_deleted and keeps the row as a tombstone.
	SoftDelete DeletePolicy = iota
	// HardDelete removes the row.
	HardDelete
)

// Payload is a typed, per-kind set of fields.
type Payload interface {
	Fields() []Field
}

// Descriptor is the static description of one entity kind.
type Descriptor struct {
	Kind       Kind
	Table      string
	Collection string // key in the pull response
	Delete     DeletePolicy
	Singleton  bool // at most one live row per user
	New        func() Payload
	aliases    []string
}

// Registry maps entity-type tokens to descriptors. It is built once and
// never modified, so it is safe for concurrent use.
type Registry struct {
	ordered []Descriptor
	byToken map[string]Descriptor
}

// NewRegistry builds the registry of every synchronized kind. Settings is the
// only hard-deleted kind; every other kind keeps tombstones so other devices
// can observe the delete.
func NewRegistry() *Registry {
	descs := []Descriptor{
		{Kind: KindReceipt, Table: "receipts", Collection: "receipts", Delete: SoftDelete,
			New: func() Payload { return &Receipt{} }},
		{Kind: KindDevice, Table: "devices", Collection: "devices", Delete: SoftDelete,
			New: func() Payload { return &Device{} }},
		{Kind: KindHouseholdBill, Table: "household_bills", Collection: "householdBills", Delete: SoftDelete,
			New: func() Payload { return &HouseholdBill{} }, aliases: []string{"household_bill", "householdbill"}},
		{Kind: KindReminder, Table: "reminders", Collection: "reminders", Delete: SoftDelete,
			New: func() Payload { return &Reminder{} }},
		{Kind: KindDocument, Table: "documents", Collection: "documents", Delete: SoftDelete,
			New: func() Payload { return &Document{} }},
		{Kind: KindSubscription, Table: "subscriptions", Collection: "subscriptions", Delete: SoftDelete,
			New: func() Payload { return &Subscription{} }},
		{Kind: KindSettings, Table: "user_settings", Collection: "settings", Delete: HardDelete, Singleton: true,
			New: func() Payload { return &Settings{} }, aliases: []string{"setting", "user_settings"}},
	}

	r := &Registry{ordered: descs, byToken: make(map[string]Descriptor)}
	for _, d := range descs {
		r.byToken[string(d.Kind)] = d
		r.byToken[d.Collection] = d
		for _, a := range d.aliases {
			r.byToken[a] = d
		}
	}
	return r
}

// Lookup resolves a wire token to its descriptor.
func (r *Registry) Lookup(token string) (Descriptor, bool) {
	d, ok := r.byToken[strings.TrimSpace(token)]
	return d, ok
}

// Descriptors returns every kind in a stable order.
func (r *Registry) Descriptors() []Descriptor {
	return slices.Clone(r.ordered)
}

// Decoded is the structural result of validating a push payload.
type Decoded struct {
	Payload         Payload
	ClientCreatedAt *time.Time
}

// Decode parses and structurally validates data for op. Create requires every
// required field; update checks only the fields that are present. Field paths
// are prefixed with "data.".
func (d Descriptor) Decode(op Operation, data json.RawMessage) (*Decoded, FieldErrors) {
	var errs FieldErrors

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		errs.Add("data", "must be an object")
		return nil, errs
	}

	p := d.New()
	for _, f := range p.Fields() {
		path := "data." + f.Name
		value, ok := raw[f.Name]
		if !ok {
			if op == OpCreate && f.Required {
				errs.Add(path, "is required")
			}
			continue
		}
		if err := f.Slot.decode(value); err != nil {
			errs.Add(path, "must be a %s", f.Type)
			continue
		}
		if !f.Slot.Present() {
			if op == OpCreate && f.Required {
				errs.Add(path, "is required")
			}
			continue
		}
		f.check(path, &errs)
	}

	out := &Decoded{Payload: p}
	if value, ok := raw["createdAt"]; ok && op == OpCreate {
		var s Optional[string]
		if err := s.decode(value); err != nil {
			errs.Add("data.createdAt", "must be a string")
		} else if s.Present() {
			t, err := ParseDate(s.Value)
			if err != nil {
				errs.Add("data.createdAt", "must be a date (YYYY-MM-DD or RFC 3339)")
			} else {
				out.ClientCreatedAt = &t
			}
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

// ApplyDefaults fills absent fields of p that declare a default.
func ApplyDefaults(p Payload) {
	for _, f := range p.Fields() {
		if f.Default != nil {
			f.Slot.applyDefault(f.Default)
		}
	}
}

// MergePresent copies every present field of src over dst. Fields that are
// absent or null in src leave dst untouched.
func MergePresent(dst, src Payload) {
	df, sf := dst.Fields(), src.Fields()
	for i := range df {
		if i < len(sf) && sf[i].Slot.Present() {
			df[i].Slot.assign(sf[i].Slot)
		}
	}
}

// Clone returns a copy of p built from its descriptor. JSON
// sub-structures share their backing bytes, which are never mutated in place.
func (d Descriptor) Clone(p Payload) Payload {
	out := d.New()
	df, sf := out.Fields(), p.Fields()
	for i := range df {
		if i < len(sf) {
			df[i].Slot.assign(sf[i].Slot)
		}
	}
	return out
}

// Columns returns the column names of p in declaration order.
func Columns(p Payload) []string {
	fields := p.Fields()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Column
	}
	return cols
}

// Record is a stored entity row.
type Record struct {
	ID        string
	UserID    string
	Payload   Payload
	IsDeleted bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Wire converts the row into the client shape: camelCase keys, absent fields
// omitted, JSON sub-structures inlined, timestamps as RFC 3339.
func (r Record) Wire() map[string]any {
	out := map[string]any{
		"id":         r.ID,
		"createdAt":  r.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updatedAt":  r.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"syncStatus": "synced",
	}
	for _, f := range r.Payload.Fields() {
		if v, ok := f.wireValue(); ok {
			out[f.Name] = v
		}
	}
	return out
}
