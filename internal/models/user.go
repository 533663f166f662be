package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Role is the account type chosen at registration.
type Role string

const (
	RoleAdmin     Role = "Admin"
	RoleDoctor    Role = "Doctor"
	RoleAssistant Role = "Assistant"
)

// User is an account. Its ID is the subject issued by the identity provider.
type User struct {
	ID        string                      `gorm:"type:varchar(255);primaryKey" json:"id"`
	Names     string                      `gorm:"type:varchar(255);not null" json:"names"`
	LastNames string                      `gorm:"type:varchar(255);not null" json:"lastNames"`
	Phones    datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"phones"`
	Mails     datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"mails"`
	Role      Role                        `gorm:"type:varchar(20);not null;index" json:"rol"`
	IsActive  bool                        `gorm:"not null;default:true;index" json:"isActive"`
	Doctor    *Doctor                     `gorm:"foreignKey:UserID" json:"-"`
	Assistant *Assistant                  `gorm:"foreignKey:UserID" json:"-"`
	CreatedAt time.Time                   `json:"createdAt"`
	UpdatedAt time.Time                   `json:"updatedAt"`
}

// TableName overrides the table name
func (User) TableName() string {
	return "users"
}

// RoleID returns the id of the role-dependent row, if any.
func (u *User) RoleID() string {
	switch {
	case u.Doctor != nil:
		return u.Doctor.ID.String()
	case u.Assistant != nil:
		return u.Assistant.ID.String()
	}
	return ""
}

// Doctor is the role-dependent data of a doctor. Its ID is the doctorId every clinical operation acts as.
type Doctor struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID           string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"userId"`
	CollegiateNumber string    `gorm:"type:varchar(100)" json:"collegiateNumber"`
	Specialty        string    `gorm:"type:varchar(255)" json:"specialty"`
}

// TableName overrides the table name
func (Doctor) TableName() string {
	return "doctors"
}

// BeforeCreate hook
func (d *Doctor) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// Assistant is the role-dependent data of an assistant.
type Assistant struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID    string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"userId"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	DPI       string    `gorm:"type:varchar(50)" json:"DPI"`
}

// TableName overrides the table name
func (Assistant) TableName() string {
	return "assistants"
}

// BeforeCreate hook
func (a *Assistant) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// RoleDependentInfo carries the fields that only some roles use.
type RoleDependentInfo struct {
	CollegiateNumber string `json:"collegiateNumber"`
	Specialty        string `json:"specialty"`
	StartDate        string `json:"startDate"`
	EndDate          string `json:"endDate"`
	DPI              string `json:"DPI"`
}

// RegisterUserRequest registers an account.
type RegisterUserRequest struct {
	ID                string            `json:"id" validate:"required"`
	Names             string            `json:"names" validate:"required"`
	LastNames         string            `json:"lastNames" validate:"required"`
	Phones            []string          `json:"phones"`
	Mails             []string          `json:"mails" validate:"required,min=1,dive,email"`
	Role              Role              `json:"rol" validate:"required,oneof=Admin Doctor Assistant"`
	RoleDependentInfo RoleDependentInfo `json:"roleDependentInfo"`
}

// UpdateUserRequest replaces the editable data of an account.
type UpdateUserRequest struct {
	ID                string            `json:"id" validate:"required"`
	Names             string            `json:"names" validate:"required"`
	LastNames         string            `json:"lastNames" validate:"required"`
	Phones            []string          `json:"phones"`
	Mails             []string          `json:"mails" validate:"required,min=1,dive,email"`
	RoleDependentInfo RoleDependentInfo `json:"roleDependentInfo"`
}

// UserRefRequest points at an account, as used by delete.
type UserRefRequest struct {
	ID string `json:"id" validate:"required"`
}
