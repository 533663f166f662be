package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/therapisttrack-records/internal/fields"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// File is a document attached to a record and governed by a file template.
type File struct {
	ID          uuid.UUID                         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"fileId"`
	DoctorID    uuid.UUID                         `gorm:"type:uuid;not null;index" json:"doctorId"`
	RecordID    uuid.UUID                         `gorm:"type:uuid;not null;index" json:"recordId"`
	TemplateID  uuid.UUID                         `gorm:"type:uuid;not null;index" json:"templateId"`
	Name        string                            `gorm:"type:varchar(255);not null" json:"name"`
	Category    string                            `gorm:"type:varchar(255);not null;index" json:"category"`
	Pages       int                               `gorm:"not null;default:0" json:"pages"`
	BlobKey     string                            `gorm:"type:varchar(500);not null" json:"-"`
	ContentType string                            `gorm:"type:varchar(255)" json:"contentType"`
	Size        int64                             `json:"size"`
	Fields      datatypes.JSONSlice[fields.Entry] `gorm:"type:jsonb" json:"fields"`
	CreatedAt   time.Time                         `gorm:"index" json:"createdAt"`
	UpdatedAt   time.Time                         `json:"updatedAt"`
}

// TableName overrides the table name
func (File) TableName() string {
	return "files"
}

// BeforeCreate hook
func (f *File) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// Clone returns a copy that shares no slices with f.
func (f *File) Clone() *File {
	c := *f
	c.Fields = append(datatypes.JSONSlice[fields.Entry]{}, f.Fields...)
	return &c
}

// FileMetadata is the JSON part of a multipart upload.
type FileMetadata struct {
	DoctorID   string         `json:"doctorId" validate:"required"`
	RecordID   string         `json:"recordId" validate:"required"`
	TemplateID string         `json:"templateId" validate:"required"`
	Name       string         `json:"name" validate:"required"`
	Category   string         `json:"category" validate:"required"`
	Fields     []fields.Input `json:"fields" validate:"required,dive"`
}

// EditFileRequest replaces the metadata of a file. The stored bytes are untouched.
type EditFileRequest struct {
	DoctorID string         `json:"doctorId" validate:"required"`
	FileID   string         `json:"fileId" validate:"required"`
	Name     string         `json:"name" validate:"required"`
	Category string         `json:"category" validate:"required"`
	Fields   []fields.Input `json:"fields" validate:"required,dive"`
}

// FileRefRequest points at a file, as used by delete.
type FileRefRequest struct {
	DoctorID string `json:"doctorId" validate:"required"`
	FileID   string `json:"fileId" validate:"required"`
}
