package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/therapisttrack-records/internal/fields"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Record is a patient encounter governed by a patient template.
type Record struct {
	ID         uuid.UUID                         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"recordId"`
	DoctorID   uuid.UUID                         `gorm:"type:uuid;not null;index" json:"doctorId"`
	TemplateID uuid.UUID                         `gorm:"type:uuid;not null;index" json:"templateId"`
	Names      string                            `gorm:"type:varchar(255);not null" json:"names"`
	LastNames  string                            `gorm:"type:varchar(255);not null" json:"lastnames"`
	Fields     datatypes.JSONSlice[fields.Entry] `gorm:"type:jsonb" json:"fields"`
	CreatedAt  time.Time                         `gorm:"index" json:"createdAt"`
	UpdatedAt  time.Time                         `json:"updatedAt"`
}

// TableName overrides the table name
func (Record) TableName() string {
	return "records"
}

// BeforeCreate hook
func (r *Record) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Clone returns a copy that shares no slices with r.
func (r *Record) Clone() *Record {
	c := *r
	c.Fields = append(datatypes.JSONSlice[fields.Entry]{}, r.Fields...)
	return &c
}

// PatientRequest is the patient block of record writes.
type PatientRequest struct {
	Names     *string        `json:"names" validate:"required"`
	LastNames *string        `json:"lastnames" validate:"required"`
	Fields    []fields.Input `json:"fields" validate:"required,dive"`
}

// CreateRecordRequest creates a record.
type CreateRecordRequest struct {
	DoctorID   string          `json:"doctorId" validate:"required"`
	TemplateID string          `json:"templateId" validate:"required"`
	Patient    *PatientRequest `json:"patient" validate:"required"`
}

// EditRecordRequest replaces the patient data of a record.
type EditRecordRequest struct {
	DoctorID string          `json:"doctorId" validate:"required"`
	RecordID string          `json:"recordId" validate:"required"`
	Patient  *PatientRequest `json:"patient" validate:"required"`
}

// RecordRefRequest points at a record, as used by delete.
type RecordRefRequest struct {
	DoctorID string `json:"doctorId" validate:"required"`
	RecordID string `json:"recordId" validate:"required"`
}
