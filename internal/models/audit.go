package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Audit actions
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Audited resource types
const (
	ResourcePatientTemplate = "patient_template"
	ResourceFileTemplate    = "file_template"
	ResourceRecord          = "record"
	ResourceFile            = "file"
)

// AuditLog represents an audit log entry
type AuditLog struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	DoctorID     uuid.UUID `gorm:"type:uuid;not null;index" json:"doctorId"`
	Action       string    `gorm:"type:varchar(100);not null;index" json:"action"`
	ResourceType string    `gorm:"type:varchar(50);index" json:"resourceType"`
	ResourceID   uuid.UUID `gorm:"type:uuid;index" json:"resourceId"`
	RequestID    string    `gorm:"type:varchar(100)" json:"requestId,omitempty"`
	Status       string    `gorm:"type:varchar(20);index" json:"status"` // success, failure
	CreatedAt    time.Time `gorm:"index" json:"timestamp"`
}

// TableName overrides the table name
func (AuditLog) TableName() string {
	return "audit_logs"
}

// BeforeCreate hook
func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
