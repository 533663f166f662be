package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/therapisttrack-records/internal/fields"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TemplateKind tells patient templates, which govern records, apart from file templates.
type TemplateKind string

const (
	PatientTemplate TemplateKind = "patient"
	FileTemplate    TemplateKind = "file"
)

// Template is a doctor-owned schema. Categories only apply to patient templates.
type Template struct {
	ID         uuid.UUID                              `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"templateId"`
	DoctorID   uuid.UUID                              `gorm:"type:uuid;not null;uniqueIndex:idx_templates_doctor_kind_name,priority:1" json:"doctorId"`
	Kind       TemplateKind                           `gorm:"type:varchar(16);not null;uniqueIndex:idx_templates_doctor_kind_name,priority:2" json:"kind"`
	Name       string                                 `gorm:"type:varchar(255);not null;uniqueIndex:idx_templates_doctor_kind_name,priority:3" json:"name"`
	Categories datatypes.JSONSlice[string]            `gorm:"type:jsonb" json:"categories"`
	Fields     datatypes.JSONSlice[fields.Definition] `gorm:"type:jsonb" json:"fields"`
	LastUpdate time.Time                              `json:"lastUpdate"`
	CreatedAt  time.Time                              `json:"createdAt"`
}

// TableName overrides the table name
func (Template) TableName() string {
	return "templates"
}

// BeforeCreate hook
func (t *Template) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// Clone returns a copy that shares no slices with t.
func (t *Template) Clone() *Template {
	c := *t
	c.Categories = append(datatypes.JSONSlice[string]{}, t.Categories...)
	c.Fields = make(datatypes.JSONSlice[fields.Definition], len(t.Fields))
	for i, d := range t.Fields {
		d.Options = append([]string{}, d.Options...)
		c.Fields[i] = d
	}
	return &c
}

// FieldDefinitionRequest is the wire shape of a single template field.
type FieldDefinitionRequest struct {
	Name        string   `json:"name" validate:"required"`
	Type        string   `json:"type" validate:"required"`
	Required    bool     `json:"required"`
	Description string   `json:"description"`
	Options     []string `json:"options"`
}

// Definition converts the request into a field definition.
func (r FieldDefinitionRequest) Definition() fields.Definition {
	return fields.Definition{
		Name:        r.Name,
		Type:        fields.Type(r.Type),
		Required:    r.Required,
		Description: r.Description,
		Options:     r.Options,
	}
}

// CreateTemplateRequest creates a patient or file template.
type CreateTemplateRequest struct {
	DoctorID   string                   `json:"doctorId" validate:"required"`
	Name       string                   `json:"name" validate:"required"`
	Categories []string                 `json:"categories"`
	Fields     []FieldDefinitionRequest `json:"fields" validate:"required,dive"`
}

// RenameTemplateRequest renames a template.
type RenameTemplateRequest struct {
	DoctorID   string `json:"doctorId" validate:"required"`
	TemplateID string `json:"templateId" validate:"required"`
	Name       string `json:"name" validate:"required"`
}

// TemplateRefRequest points at a template, as used by delete.
type TemplateRefRequest struct {
	DoctorID   string `json:"doctorId" validate:"required"`
	TemplateID string `json:"templateId" validate:"required"`
}

// AddFieldRequest appends a field to a template.
type AddFieldRequest struct {
	DoctorID   string                  `json:"doctorId" validate:"required"`
	TemplateID string                  `json:"templateId" validate:"required"`
	Field      *FieldDefinitionRequest `json:"field" validate:"required"`
}

// EditFieldRequest replaces the definition of an existing field.
type EditFieldRequest struct {
	DoctorID     string                  `json:"doctorId" validate:"required"`
	TemplateID   string                  `json:"templateId" validate:"required"`
	OldFieldName string                  `json:"oldFieldName" validate:"required"`
	FieldData    *FieldDefinitionRequest `json:"fieldData" validate:"required"`
}

// DeleteFieldRequest removes a field from a template.
type DeleteFieldRequest struct {
	DoctorID   string `json:"doctorId" validate:"required"`
	TemplateID string `json:"templateId" validate:"required"`
	Name       string `json:"name" validate:"required"`
}
