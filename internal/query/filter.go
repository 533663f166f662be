package query

import (
	"strings"

	"github.com/otcheredev/therapisttrack-records/internal/apperr"
	"github.com/otcheredev/therapisttrack-records/internal/fields"
)

// Filter is a checked predicate over one field.
type Filter struct {
	Name      string
	Type      fields.Type
	Operation Operation
	Values    []fields.Value
	Gate      Gate
}

var operations = map[fields.Type][]Operation{
	fields.Text:      {Contains, StartsWith, EndsWith},
	fields.ShortText: {Contains, StartsWith, EndsWith},
	fields.Number:    {LessThan, GreaterThan, EqualThan},
	fields.Float:     {LessThan, GreaterThan, EqualThan},
	fields.Date:      {Before, After, Between},
	fields.Choice:    {Is, IsNot, IsNotEmpty},
}

// Supports reports whether op can be applied to fields of type t.
func Supports(t fields.Type, op Operation) bool {
	for _, candidate := range operations[t] {
		if candidate == op {
			return true
		}
	}
	return false
}

func requiredValues(op Operation) int {
	switch op {
	case IsNotEmpty:
		return 0
	case Between:
		return 2
	}
	return 1
}

// Compile checks spec against def, the definition the filtered field is expected to have, and
// converts its values to canonical form. Values are held to the same rules as writes.
func Compile(spec FilterSpec, def fields.Definition) (Filter, error) {
	if !spec.Type.Valid() {
		return Filter{}, apperr.New(apperr.InvalidType)
	}
	if !Supports(spec.Type, spec.Operation) {
		return Filter{}, apperr.New(apperr.MissingFields)
	}

	def.Name = spec.Name
	def.Type = spec.Type

	// a malformed value is a type error even when values are also missing
	values := make([]fields.Value, 0, len(spec.Values))
	for _, raw := range spec.Values {
		v, err := def.Check(raw)
		if err != nil {
			return Filter{}, err
		}
		values = append(values, v)
	}
	if len(values) < requiredValues(spec.Operation) {
		return Filter{}, apperr.New(apperr.MissingFields)
	}

	if spec.Operation == Between {
		if c, _ := fields.Compare(values[0], values[1]); c > 0 {
			return Filter{}, apperr.New(apperr.InvalidDateRange)
		}
	}

	gate := spec.LogicGate
	if gate == "" {
		gate = And
	}

	return Filter{
		Name:      spec.Name,
		Type:      spec.Type,
		Operation: spec.Operation,
		Values:    values,
		Gate:      gate,
	}, nil
}

// Match reports whether d satisfies f. Documents without the field never match.
func (f Filter) Match(d Document) bool {
	v, ok := d.Field(f.Name)
	if !ok {
		return false
	}

	switch f.Operation {
	case Contains, StartsWith, EndsWith:
		if !v.Type.IsTextual() {
			return false
		}
		text := strings.ToLower(v.Text)
		for _, want := range f.Values {
			needle := strings.ToLower(want.Text)
			if (f.Operation == Contains && strings.Contains(text, needle)) ||
				(f.Operation == StartsWith && strings.HasPrefix(text, needle)) ||
				(f.Operation == EndsWith && strings.HasSuffix(text, needle)) {
				return true
			}
		}
		return false

	case LessThan, Before:
		c, ok := compareTyped(v, f.Values[0], f.Type)
		return ok && c < 0

	case GreaterThan, After:
		c, ok := compareTyped(v, f.Values[0], f.Type)
		return ok && c > 0

	case EqualThan:
		for _, want := range f.Values {
			if c, ok := compareTyped(v, want, f.Type); ok && c == 0 {
				return true
			}
		}
		return false

	case Between:
		lo, okLo := compareTyped(v, f.Values[0], f.Type)
		hi, okHi := compareTyped(v, f.Values[1], f.Type)
		return okLo && okHi && lo >= 0 && hi <= 0

	case Is:
		for _, want := range f.Values {
			if v.Type.IsTextual() && v.Text == want.Text {
				return true
			}
		}
		return false

	case IsNot:
		if !v.Type.IsTextual() {
			return false
		}
		for _, unwanted := range f.Values {
			if v.Text == unwanted.Text {
				return false
			}
		}
		return true

	case IsNotEmpty:
		return v.Type.IsTextual() && !v.IsEmpty()
	}

	return false
}

// compareTyped compares only values whose stored type belongs to the same family as the filter.
func compareTyped(stored, want fields.Value, t fields.Type) (int, bool) {
	switch {
	case t.IsNumeric() && !stored.Type.IsNumeric():
		return 0, false
	case t == fields.Date && stored.Type != fields.Date:
		return 0, false
	}
	return fields.Compare(stored, want)
}

// Matches folds filters left to right. Each filter's gate joins it to the result so far; the gate
// of the first filter is ignored. No filters match everything.
func Matches(filters []Filter, d Document) bool {
	if len(filters) == 0 {
		return true
	}
	result := filters[0].Match(d)
	for _, f := range filters[1:] {
		if f.Gate == Or {
			result = result || f.Match(d)
		} else {
			result = result && f.Match(d)
		}
	}
	return result
}
