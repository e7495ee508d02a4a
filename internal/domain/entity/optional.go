package entity

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Optional holds a payload value that may be absent, explicitly null, or set.
// Update semantics depend on telling the first two apart from the third, so
// every kind field is an Optional rather than a pointer.
type Optional[T any] struct {
	Value T
	Set   bool // key was present in the payload (or column was read)
	Null  bool // key was present with a JSON null (or column was NULL)
}

// Some returns a present Optional.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

// Present reports whether the Optional carries a non-null value.
func (o Optional[T]) Present() bool {
	return o.Set && !o.Null
}

// IsZero makes absent and null values disappear under `omitzero`.
func (o Optional[T]) IsZero() bool {
	return !o.Present()
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Present() {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		var zero T
		o.Value = zero
		o.Null = true
		return nil
	}
	o.Null = false
	return json.Unmarshal(b, &o.Value)
}

// Scan implements sql.Scanner. JSON sub-structures are stored as text and
// come back from the driver as either string or []byte.
func (o *Optional[T]) Scan(src any) error {
	if raw, ok := any(&o.Value).(*json.RawMessage); ok {
		o.Set = true
		switch v := src.(type) {
		case nil:
			*raw = nil
			o.Null = true
		case string:
			*raw = json.RawMessage(v)
			o.Null = false
		case []byte:
			*raw = json.RawMessage(bytes.Clone(v))
			o.Null = false
		default:
			return fmt.Errorf("cannot scan %T into json field", src)
		}
		return nil
	}

	var n sql.Null[T]
	if err := n.Scan(src); err != nil {
		return err
	}
	o.Value = n.V
	o.Set = true
	o.Null = !n.Valid
	return nil
}

// DriverValue returns the value handed to the database driver: nil when the
// Optional is absent or null, text for JSON sub-structures.
func (o Optional[T]) DriverValue() any {
	if !o.Present() {
		return nil
	}
	if raw, ok := any(o.Value).(json.RawMessage); ok {
		return string(raw)
	}
	return o.Value
}

// Wire returns the value as it appears in a pull response.
func (o Optional[T]) Wire() any {
	if !o.Present() {
		return nil
	}
	return o.Value
}

func (o *Optional[T]) decode(raw json.RawMessage) error {
	return o.UnmarshalJSON(raw)
}

func (o *Optional[T]) assign(other Slot) {
	if src, ok := other.(*Optional[T]); ok {
		*o = *src
	}
}

func (o *Optional[T]) applyDefault(v any) {
	if o.Present() {
		return
	}
	if d, ok := v.(T); ok {
		o.Value = d
		o.Set = true
		o.Null = false
	}
}

func (o *Optional[T]) raw() any {
	return o.Value
}
