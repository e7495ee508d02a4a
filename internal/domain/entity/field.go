package entity

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

// FieldType is the structural type a payload field must satisfy.
type FieldType int

const (
	TypeString FieldType = iota
	TypeNumber
	TypeInteger
	TypeBool
	TypeDate
	TypeClock
	TypeEnum
	TypeJSONArray
	TypeJSONObject
)

func (t FieldType) String() string {
	switch t {
	case TypeString, TypeEnum:
		return "string"
	case TypeNumber:
		return "number"
	case TypeInteger:
		return "integer"
	case TypeBool:
		return "boolean"
	case TypeDate:
		return "date"
	case TypeClock:
		return "time of day"
	case TypeJSONArray:
		return "array"
	case TypeJSONObject:
		return "object"
	default:
		return "unknown"
	}
}

// Slot is the storage behind a Field. *Optional[T] is the only implementation.
type Slot interface {
	sql.Scanner
	Present() bool
	DriverValue() any
	Wire() any

	decode(raw json.RawMessage) error
	assign(other Slot)
	applyDefault(v any)
	raw() any
}

// Field binds a wire key and a table column to a slot inside a typed payload.
type Field struct {
	Name        string
	Column      string
	Type        FieldType
	Required    bool
	NonNegative bool
	Enum        []string
	Default     any
	Slot        Slot
}

// FieldError is a single structural problem, addressed by a dotted path.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// FieldErrors collects structural problems for one request.
type FieldErrors []FieldError

func (e FieldErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.Path+": "+fe.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add appends an error for path.
func (e *FieldErrors) Add(path, format string, args ...any) {
	*e = append(*e, FieldError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// Numbers are stored as NUMERIC(14,2) and integers as INTEGER; values outside
// those columns are rejected here rather than by the database.
const (
	maxAmount   = 1e12
	maxDecimals = 2
)

var clockPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d(:[0-5]\d)?$`)

// ParseDate accepts a calendar date or an RFC 3339 timestamp.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// check validates a decoded, present value against the field's constraints.
func (f Field) check(path string, errs *FieldErrors) {
	switch v := f.Slot.raw().(type) {
	case string:
		switch f.Type {
		case TypeDate:
			if _, err := ParseDate(v); err != nil {
				errs.Add(path, "must be a date (YYYY-MM-DD or RFC 3339)")
			}
		case TypeClock:
			if !clockPattern.MatchString(v) {
				errs.Add(path, "must be a time of day (HH:MM)")
			}
		case TypeEnum:
			if !slices.Contains(f.Enum, v) {
				errs.Add(path, "must be one of: %s", strings.Join(f.Enum, ", "))
			}
		default:
			if f.Required && strings.TrimSpace(v) == "" {
				errs.Add(path, "must not be empty")
			}
		}
	case float64:
		switch {
		case f.NonNegative && v < 0:
			errs.Add(path, "must not be negative")
		case math.Abs(v) >= maxAmount:
			errs.Add(path, "must be less than %.0f in magnitude", maxAmount)
		case decimals(v) > maxDecimals:
			errs.Add(path, "must have at most %d decimal places", maxDecimals)
		}
	case int64:
		switch {
		case f.NonNegative && v < 0:
			errs.Add(path, "must not be negative")
		case v < math.MinInt32 || v > math.MaxInt32:
			errs.Add(path, "must fit in a 32-bit integer")
		}
	case json.RawMessage:
		trimmed := strings.TrimSpace(string(v))
		switch f.Type {
		case TypeJSONArray:
			if !strings.HasPrefix(trimmed, "[") {
				errs.Add(path, "must be an array")
			}
		case TypeJSONObject:
			if !strings.HasPrefix(trimmed, "{") {
				errs.Add(path, "must be an object")
			}
		}
	}
}

func decimals(v float64) int {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}

// wireValue converts a stored slot into its pull representation, dropping
// JSON text that no longer parses.
func (f Field) wireValue() (any, bool) {
	if !f.Slot.Present() {
		return nil, false
	}
	v := f.Slot.Wire()
	if raw, ok := v.(json.RawMessage); ok && !json.Valid(raw) {
		return nil, false
	}
	return v, true
}
