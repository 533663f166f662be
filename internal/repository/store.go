package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/otcheredev/therapisttrack-records/internal/models"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a write collides with a unique constraint.
	ErrDuplicate = errors.New("duplicate")
)

// FileScope narrows a file listing. Zero values mean "any".
type FileScope struct {
	DoctorID uuid.UUID
	RecordID uuid.UUID
	Category string
}

// Store is the persistence boundary of the service. GormStore backs it with postgres and MemoryStore
// keeps everything in process.
type Store interface {
	// Transaction runs fn against a store bound to a single transaction. Calls must not nest.
	Transaction(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	GetActiveDoctor(ctx context.Context, id uuid.UUID) (*models.Doctor, error)

	CreateTemplate(ctx context.Context, template *models.Template) error
	GetTemplate(ctx context.Context, id uuid.UUID) (*models.Template, error)
	// LockTemplate loads a template for a read-modify-write inside a transaction.
	LockTemplate(ctx context.Context, id uuid.UUID) (*models.Template, error)
	// LockTemplateShared loads a template that must not change before the transaction commits.
	LockTemplateShared(ctx context.Context, id uuid.UUID) (*models.Template, error)
	FindTemplateByName(ctx context.Context, doctorID uuid.UUID, kind models.TemplateKind, name string) (*models.Template, error)
	ListTemplates(ctx context.Context, doctorID uuid.UUID, kind models.TemplateKind) ([]models.Template, error)
	UpdateTemplate(ctx context.Context, template *models.Template) error
	DeleteTemplate(ctx context.Context, id uuid.UUID) error
	CountRecordsByTemplate(ctx context.Context, templateID uuid.UUID) (int64, error)
	CountFilesByTemplate(ctx context.Context, templateID uuid.UUID) (int64, error)

	CreateRecord(ctx context.Context, record *models.Record) error
	GetRecord(ctx context.Context, id uuid.UUID) (*models.Record, error)
	ListRecords(ctx context.Context, doctorID uuid.UUID) ([]models.Record, error)
	UpdateRecord(ctx context.Context, record *models.Record) error
	DeleteRecord(ctx context.Context, id uuid.UUID) error
	CountFilesByRecord(ctx context.Context, recordID uuid.UUID) (int64, error)

	CreateFile(ctx context.Context, file *models.File) error
	GetFile(ctx context.Context, id uuid.UUID) (*models.File, error)
	ListFiles(ctx context.Context, scope FileScope) ([]models.File, error)
	UpdateFile(ctx context.Context, file *models.File) error
	DeleteFile(ctx context.Context, id uuid.UUID) error

	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
	ListAuditLogs(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]models.AuditLog, error)
}
