package query

import (
	"strings"

	"github.com/otcheredev/therapisttrack-records/internal/fields"
)

// less orders a before b by the sort keys in turn. Missing values go last whatever the mode, and
// ties fall back to creation time and then key.
func less(a, b Document, sorts []SortSpec) bool {
	for _, s := range sorts {
		va, okA := sortValue(a, s)
		vb, okB := sortValue(b, s)
		switch {
		case !okA && !okB:
			continue
		case !okA:
			return false
		case !okB:
			return true
		}

		c, ok := fields.Compare(va, vb)
		if !ok || c == 0 {
			continue
		}
		if s.Mode == Desc {
			c = -c
		}
		return c < 0
	}

	if c := a.Created().Compare(b.Created()); c != 0 {
		return c < 0
	}
	return strings.Compare(a.Key(), b.Key()) < 0
}

// sortValue returns the value a sort key reads, if the stored type fits the requested one.
func sortValue(d Document, s SortSpec) (fields.Value, bool) {
	v, ok := d.Field(s.Name)
	if !ok {
		return fields.Value{}, false
	}
	switch {
	case s.Type.IsTextual():
		return v, v.Type.IsTextual()
	case s.Type.IsNumeric():
		return v, v.Type.IsNumeric()
	}
	return v, v.Type == s.Type
}
