package fields

import (
	"cmp"
	"strings"
	"time"
)

// Value is the canonical, typed form of a stored field value. Exactly one of the payload members is
// meaningful, selected by Type.
type Value struct {
	Type   Type      `json:"type"`
	Text   string    `json:"text,omitempty"`
	Number int64     `json:"number,omitempty"`
	Float  float64   `json:"float,omitempty"`
	Date   time.Time `json:"date,omitempty"`
}

func TextValue(t Type, s string) Value { return Value{Type: t, Text: s} }
func NumberValue(n int64) Value        { return Value{Type: Number, Number: n} }
func FloatValue(f float64) Value       { return Value{Type: Float, Float: f} }
func DateValue(t time.Time) Value      { return Value{Type: Date, Date: t.UTC()} }

// Interface returns the value as it is written back to clients.
func (v Value) Interface() any {
	switch v.Type {
	case Number:
		return v.Number
	case Float:
		return v.Float
	case Date:
		return FormatDate(v.Date)
	default:
		return v.Text
	}
}

// IsEmpty reports whether the value carries nothing a user would see.
func (v Value) IsEmpty() bool {
	return v.Type.IsTextual() && strings.TrimSpace(v.Text) == ""
}

func (v Value) float() float64 {
	if v.Type == Number {
		return float64(v.Number)
	}
	return v.Float
}

// Compare orders a against b. ok is false when the two types have no common ordering.
func Compare(a, b Value) (int, bool) {
	switch {
	case a.Type.IsTextual() && b.Type.IsTextual():
		if c := strings.Compare(strings.ToLower(a.Text), strings.ToLower(b.Text)); c != 0 {
			return c, true
		}
		return strings.Compare(a.Text, b.Text), true
	case a.Type == Number && b.Type == Number:
		return cmp.Compare(a.Number, b.Number), true
	case a.Type.IsNumeric() && b.Type.IsNumeric():
		return cmp.Compare(a.float(), b.float()), true
	case a.Type == Date && b.Type == Date:
		return a.Date.Compare(b.Date), true
	}
	return 0, false
}

// Entry is a stored field: a name bound to its canonical value.
type Entry struct {
	Name  string `json:"name"`
	Value Value  `json:"value"`
}

// Lookup returns the entry called name.
func Lookup(entries []Entry, name string) (Value, bool) {
	for _, e := range entries {
		if e.Name == name {
			return e.Value, true
		}
	}
	return Value{}, false
}
