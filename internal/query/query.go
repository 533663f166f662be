package query

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/otcheredev/therapisttrack-records/internal/fields"
)

// Operation is a filter predicate. Which operations apply depends on the field type.
type Operation string

const (
	Contains    Operation = "contains"
	StartsWith  Operation = "starts_with"
	EndsWith    Operation = "ends_with"
	LessThan    Operation = "less_than"
	GreaterThan Operation = "greater_than"
	EqualThan   Operation = "equal_than"
	Before      Operation = "before"
	After       Operation = "after"
	Between     Operation = "between"
	Is          Operation = "is"
	IsNot       Operation = "is_not"
	IsNotEmpty  Operation = "is_not_empty"
)

// Gate joins a filter to the filters before it.
type Gate string

const (
	And Gate = "and"
	Or  Gate = "or"
)

// Mode is a sort direction.
type Mode string

const (
	Asc  Mode = "asc"
	Desc Mode = "desc"
)

// FieldRef names a field to project into results.
type FieldRef struct {
	Name string      `json:"name" validate:"required"`
	Type fields.Type `json:"type" validate:"required"`
}

// SortSpec is a sort as sent by clients.
type SortSpec struct {
	Name string      `json:"name" validate:"required"`
	Type fields.Type `json:"type" validate:"required"`
	Mode Mode        `json:"mode" validate:"required,oneof=asc desc"`
}

// FilterSpec is a filter as sent by clients. Values stay raw until Compile checks them.
type FilterSpec struct {
	Name      string            `json:"name" validate:"required"`
	Type      fields.Type       `json:"type" validate:"required"`
	Operation Operation         `json:"operation" validate:"required"`
	Values    []json.RawMessage `json:"values" validate:"required"`
	LogicGate Gate              `json:"logicGate" validate:"omitempty,oneof=and or"`
}

// Request is the paging, projection, filtering and sorting part of a search.
type Request struct {
	Limit   int
	Page    int
	Fields  []FieldRef
	Filters []FilterSpec
	Sorts   []SortSpec
}

// Document is anything the engine can filter and sort.
type Document interface {
	// Field returns the value stored under name.
	Field(name string) (fields.Value, bool)
	Created() time.Time
	Key() string
}

// Query is a compiled search.
type Query struct {
	Limit   int
	Page    int
	Filters []Filter
	Sorts   []SortSpec
}

// Run filters docs, sorts them and cuts out the requested page. total counts every match.
func Run[D Document](docs []D, q Query) (total int, page []D) {
	matched := make([]D, 0, len(docs))
	for _, d := range docs {
		if Matches(q.Filters, d) {
			matched = append(matched, d)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return less(matched[i], matched[j], q.Sorts)
	})

	total = len(matched)
	if q.Limit <= 0 || q.Page < 0 || q.Page > total/q.Limit {
		return total, []D{}
	}
	start := q.Page * q.Limit
	end := min(start+q.Limit, total)
	return total, matched[start:end]
}
