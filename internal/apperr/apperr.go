package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the closed set of failures a request can end with.
type Kind int

const (
	Internal Kind = iota
	MissingFields
	DuplicateFieldNames
	ReservedFieldNames
	DoctorIsNotOwner
	DoctorNotFound
	TemplateNotFound
	FieldNotFound
	RecordNotFound
	FileNotFound
	UserNotFound
	MissingFieldsInTemplate
	InvalidType
	InvalidFieldTypeText
	InvalidFieldTypeShortText
	InvalidFieldTypeNumber
	InvalidFieldTypeFloat
	InvalidFieldTypeChoice
	InvalidFieldTypeDate
	InvalidDateRange
	RecordsUsing
	OperationRejected
	Unauthorized
	TooManyRequests
)

type entry struct {
	code    string
	status  int
	message string
}

var catalog = map[Kind]entry{
	Internal:                  {"INTERNAL", http.StatusInternalServerError, "Failed to execute DB operations."},
	MissingFields:             {"MISSING_FIELDS", http.StatusBadRequest, "Missing Fields."},
	DuplicateFieldNames:       {"DUPLICATE_FIELD_NAMES", http.StatusBadRequest, "Field names must be unique"},
	ReservedFieldNames:        {"RESERVED_FIELD_NAMES", http.StatusBadRequest, "Names as Apellidos and Nombres are reserved"},
	DoctorIsNotOwner:          {"DOCTOR_IS_NOT_OWNER", http.StatusForbidden, "Doctor is not the owner of template."},
	DoctorNotFound:            {"DOCTOR_NOT_FOUND", http.StatusNotFound, "Doctor not found."},
	TemplateNotFound:          {"TEMPLATE_NOT_FOUND", http.StatusNotFound, "Template not found."},
	FieldNotFound:             {"FIELD_NOT_FOUND", http.StatusNotFound, "Field not found."},
	RecordNotFound:            {"RECORD_NOT_FOUND", http.StatusNotFound, "Record not found."},
	FileNotFound:              {"FILE_NOT_FOUND", http.StatusNotFound, "File not found."},
	UserNotFound:              {"USER_NOT_FOUND", http.StatusNotFound, "User not found."},
	MissingFieldsInTemplate:   {"MISSING_FIELDS_IN_TEMPLATE", http.StatusNotFound, "Missing required fields defined by the template."},
	InvalidType:               {"INVALID_TYPE", http.StatusMethodNotAllowed, "Specified type does not exist."},
	InvalidFieldTypeText:      {"INVALID_FIELD_TYPE_TEXT", http.StatusMethodNotAllowed, "Invalid value for TEXT field."},
	InvalidFieldTypeShortText: {"INVALID_FIELD_TYPE_SHORT_TEXT", http.StatusMethodNotAllowed, "Invalid value for SHORT_TEXT field."},
	InvalidFieldTypeNumber:    {"INVALID_FIELD_TYPE_NUMBER", http.StatusMethodNotAllowed, "Invalid value for NUMBER field."},
	InvalidFieldTypeFloat:     {"INVALID_FIELD_TYPE_FLOAT", http.StatusMethodNotAllowed, "Invalid value for FLOAT field."},
	InvalidFieldTypeChoice:    {"INVALID_FIELD_TYPE_CHOICE", http.StatusMethodNotAllowed, "Invalid value for CHOICE field."},
	InvalidFieldTypeDate:      {"INVALID_FIELD_TYPE_DATE", http.StatusMethodNotAllowed, "Invalid value for DATE field."},
	InvalidDateRange:          {"INVALID_DATE_RANGE", http.StatusMethodNotAllowed, "Invalid date range."},
	RecordsUsing:              {"RECORDS_USING", http.StatusNotAcceptable, "Item with that id/name already exists"},
	OperationRejected:         {"OPERATION_REJECTED", http.StatusConflict, "Could not modify item since other resources depend on it"},
	Unauthorized:              {"UNAUTHORIZED", http.StatusUnauthorized, "Unauthorized."},
	TooManyRequests:           {"TOO_MANY_REQUESTS", http.StatusTooManyRequests, "Too many requests."},
}

// Code returns the stable identifier used in logs and metrics.
func (k Kind) Code() string {
	return catalog[k].code
}

// Status returns the HTTP status for the kind.
func (k Kind) Status() int {
	return catalog[k].status
}

// Message returns the exact message sent to callers.
func (k Kind) Message() string {
	return catalog[k].message
}

func (k Kind) String() string {
	return k.Code()
}

// Error carries a Kind and, optionally, the underlying cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind.Code(), e.Err)
	}
	return e.Kind.Code()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Kind, so sentinels can be compared with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Err == nil
}

// New returns an error of the given kind.
func New(kind Kind) *Error {
	return &Error{Kind: kind}
}

// Wrap attaches a cause to a kind.
func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf reports the kind of err. Errors that carry no kind are Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
