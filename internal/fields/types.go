package fields

import (
	"strings"

	"github.com/otcheredev/therapisttrack-records/internal/apperr"
)

// Type is the declared type of a template field.
type Type string

const (
	Text      Type = "TEXT"
	ShortText Type = "SHORT_TEXT"
	Number    Type = "NUMBER"
	Float     Type = "FLOAT"
	Choice    Type = "CHOICE"
	Date      Type = "DATE"
)

// ShortTextMaxLength bounds SHORT_TEXT values, counted in runes.
var ShortTextMaxLength = 256

// Types lists every supported field type.
var Types = []Type{Text, ShortText, Number, Float, Choice, Date}

// Reserved names cannot be declared by patient templates; records carry them as names and last names.
const (
	ReservedNames     = "Nombres"
	ReservedLastNames = "Apellidos"
)

// Valid reports whether t is one of the supported types.
func (t Type) Valid() bool {
	switch t {
	case Text, ShortText, Number, Float, Choice, Date:
		return true
	}
	return false
}

// IsTextual reports whether values of t compare as strings.
func (t Type) IsTextual() bool {
	return t == Text || t == ShortText || t == Choice
}

// IsNumeric reports whether values of t compare as numbers.
func (t Type) IsNumeric() bool {
	return t == Number || t == Float
}

// InvalidValue is the error returned when a value does not satisfy t.
func (t Type) InvalidValue() *apperr.Error {
	switch t {
	case Text:
		return apperr.New(apperr.InvalidFieldTypeText)
	case ShortText:
		return apperr.New(apperr.InvalidFieldTypeShortText)
	case Number:
		return apperr.New(apperr.InvalidFieldTypeNumber)
	case Float:
		return apperr.New(apperr.InvalidFieldTypeFloat)
	case Choice:
		return apperr.New(apperr.InvalidFieldTypeChoice)
	case Date:
		return apperr.New(apperr.InvalidFieldTypeDate)
	}
	return apperr.New(apperr.InvalidType)
}

// Definition is one named slot of a template.
type Definition struct {
	Name        string   `json:"name"`
	Type        Type     `json:"type"`
	Required    bool     `json:"required"`
	Description string   `json:"description"`
	Options     []string `json:"options"`
}

// Normalize trims the name and keeps options only for CHOICE fields.
func (d Definition) Normalize() Definition {
	d.Name = strings.TrimSpace(d.Name)
	if d.Type != Choice {
		d.Options = []string{}
	}
	return d
}

// Validate checks the definition on its own, without looking at its siblings.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" || d.Type == "" {
		return apperr.New(apperr.MissingFields)
	}
	if !d.Type.Valid() {
		return apperr.New(apperr.InvalidType)
	}
	if d.Type == Choice {
		if len(d.Options) == 0 {
			return apperr.New(apperr.MissingFields)
		}
		for _, opt := range d.Options {
			if opt == "" {
				return apperr.New(apperr.MissingFields)
			}
		}
	}
	return nil
}

// IsReserved reports whether name is taken by the record itself, in any case.
func IsReserved(name string) bool {
	name = strings.TrimSpace(name)
	return strings.EqualFold(name, ReservedNames) || strings.EqualFold(name, ReservedLastNames)
}

// ValidateDefinitions checks a whole field list. When reserved is set the record-level names are rejected.
func ValidateDefinitions(defs []Definition, reserved bool) error {
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return err
		}
	}

	seen := make(map[string]struct{}, len(defs))
	for _, d := range defs {
		name := strings.TrimSpace(d.Name)
		if _, dup := seen[name]; dup {
			return apperr.New(apperr.DuplicateFieldNames)
		}
		seen[name] = struct{}{}
	}

	if reserved {
		for _, d := range defs {
			if IsReserved(d.Name) {
				return apperr.New(apperr.ReservedFieldNames)
			}
		}
	}
	return nil
}

// Find returns the definition called name.
func Find(defs []Definition, name string) (Definition, int, bool) {
	for i, d := range defs {
		if d.Name == name {
			return d, i, true
		}
	}
	return Definition{}, -1, false
}
