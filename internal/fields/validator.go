package fields

import (
	"bytes"
	"encoding/json"
	"math"
	"slices"
	"unicode/utf8"

	"github.com/otcheredev/therapisttrack-records/internal/apperr"
)

// Input is a field as submitted by a client. Value is kept raw so its JSON shape can be checked.
type Input struct {
	Name  string          `json:"name" validate:"required"`
	Value json.RawMessage `json:"value"`
}

// IsNull reports whether raw carries no value at all.
func IsNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func decodeRaw(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// Check converts raw into the canonical value for d, or fails with the type's error. A CHOICE
// definition without options only checks that the value is a string.
func (d Definition) Check(raw json.RawMessage) (Value, error) {
	if IsNull(raw) {
		return Value{}, d.Type.InvalidValue()
	}
	decoded, err := decodeRaw(raw)
	if err != nil {
		return Value{}, d.Type.InvalidValue()
	}
	return d.CheckValue(decoded)
}

// CheckValue is Check for an already decoded JSON value. Numbers must be json.Number.
func (d Definition) CheckValue(decoded any) (Value, error) {
	invalid := d.Type.InvalidValue()

	switch d.Type {
	case Text, ShortText, Choice:
		s, ok := decoded.(string)
		if !ok {
			return Value{}, invalid
		}
		if d.Type == ShortText && utf8.RuneCountInString(s) > ShortTextMaxLength {
			return Value{}, invalid
		}
		if d.Type == Choice && len(d.Options) > 0 && !slices.Contains(d.Options, s) {
			return Value{}, invalid
		}
		return TextValue(d.Type, s), nil

	case Number:
		n, ok := decoded.(json.Number)
		if !ok {
			return Value{}, invalid
		}
		if i, err := n.Int64(); err == nil {
			return NumberValue(i), nil
		}
		f, err := n.Float64()
		if err != nil || f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
			return Value{}, invalid
		}
		return NumberValue(int64(f)), nil

	case Float:
		n, ok := decoded.(json.Number)
		if !ok {
			return Value{}, invalid
		}
		f, err := n.Float64()
		if err != nil || math.IsInf(f, 0) {
			return Value{}, invalid
		}
		return FloatValue(f), nil

	case Date:
		s, ok := decoded.(string)
		if !ok {
			return Value{}, invalid
		}
		t, ok := ParseDate(s)
		if !ok {
			return Value{}, invalid
		}
		return DateValue(t), nil
	}

	return Value{}, apperr.New(apperr.InvalidType)
}

// Validate checks submitted against the template definitions and returns the canonical entries in
// template order. Required fields are checked first, then unknown or repeated names, then each value
// in submission order. Nothing is returned unless every field passes.
func Validate(defs []Definition, submitted []Input) ([]Entry, error) {
	index := make(map[string]Definition, len(defs))
	for _, d := range defs {
		index[d.Name] = d
	}

	present := make(map[string]bool, len(submitted))
	for _, in := range submitted {
		if !IsNull(in.Value) {
			present[in.Name] = true
		}
	}

	for _, d := range defs {
		if d.Required && !present[d.Name] {
			return nil, apperr.New(apperr.MissingFieldsInTemplate)
		}
	}

	seen := make(map[string]bool, len(submitted))
	for _, in := range submitted {
		if _, known := index[in.Name]; !known || seen[in.Name] {
			return nil, apperr.New(apperr.MissingFields)
		}
		seen[in.Name] = true
	}

	values := make(map[string]Value, len(submitted))
	for _, in := range submitted {
		if IsNull(in.Value) {
			continue
		}
		v, err := index[in.Name].Check(in.Value)
		if err != nil {
			return nil, err
		}
		values[in.Name] = v
	}

	entries := make([]Entry, 0, len(values))
	for _, d := range defs {
		if v, ok := values[d.Name]; ok {
			entries = append(entries, Entry{Name: d.Name, Value: v})
		}
	}
	return entries, nil
}
