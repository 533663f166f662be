package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/otcheredev/therapisttrack-records/internal/models"
	"gorm.io/gorm/clause"
)

// CreateTemplate creates a new template
func (s *GormStore) CreateTemplate(ctx context.Context, template *models.Template) error {
	if err := s.db.WithContext(ctx).Create(template).Error; err != nil {
		return fmt.Errorf("failed to create template: %w", translate(err))
	}
	return nil
}

// GetTemplate retrieves a template by ID
func (s *GormStore) GetTemplate(ctx context.Context, id uuid.UUID) (*models.Template, error) {
	var template models.Template
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&template).Error; err != nil {
		return nil, fmt.Errorf("failed to get template: %w", translate(err))
	}
	return &template, nil
}

// LockTemplate retrieves a template and holds a row lock on it until the transaction ends
func (s *GormStore) LockTemplate(ctx context.Context, id uuid.UUID) (*models.Template, error) {
	var template models.Template
	if err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&template).Error; err != nil {
		return nil, fmt.Errorf("failed to lock template: %w", translate(err))
	}
	return &template, nil
}

// LockTemplateShared retrieves a template and holds a share lock on it until the transaction ends.
// Writers of the template wait, other readers do not.
func (s *GormStore) LockTemplateShared(ctx context.Context, id uuid.UUID) (*models.Template, error) {
	var template models.Template
	if err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "SHARE"}).
		Where("id = ?", id).
		First(&template).Error; err != nil {
		return nil, fmt.Errorf("failed to lock template: %w", translate(err))
	}
	return &template, nil
}

// FindTemplateByName retrieves the doctor's template of the given kind called name
func (s *GormStore) FindTemplateByName(ctx context.Context, doctorID uuid.UUID, kind models.TemplateKind, name string) (*models.Template, error) {
	var template models.Template
	if err := s.db.WithContext(ctx).
		Where("doctor_id = ? AND kind = ? AND name = ?", doctorID, kind, name).
		First(&template).Error; err != nil {
		return nil, fmt.Errorf("failed to find template: %w", translate(err))
	}
	return &template, nil
}

// ListTemplates retrieves all templates of a kind owned by a doctor
func (s *GormStore) ListTemplates(ctx context.Context, doctorID uuid.UUID, kind models.TemplateKind) ([]models.Template, error) {
	var templates []models.Template
	if err := s.db.WithContext(ctx).
		Where("doctor_id = ? AND kind = ?", doctorID, kind).
		Order("created_at ASC, id ASC").
		Find(&templates).Error; err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return templates, nil
}

// UpdateTemplate updates a template
func (s *GormStore) UpdateTemplate(ctx context.Context, template *models.Template) error {
	if err := s.db.WithContext(ctx).Save(template).Error; err != nil {
		return fmt.Errorf("failed to update template: %w", translate(err))
	}
	return nil
}

// DeleteTemplate deletes a template
func (s *GormStore) DeleteTemplate(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Delete(&models.Template{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete template: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("failed to delete template: %w", ErrNotFound)
	}
	return nil
}

// CountRecordsByTemplate counts the records governed by a template
func (s *GormStore) CountRecordsByTemplate(ctx context.Context, templateID uuid.UUID) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Record{}).
		Where("template_id = ?", templateID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

// CountFilesByTemplate counts the files governed by a template
func (s *GormStore) CountFilesByTemplate(ctx context.Context, templateID uuid.UUID) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.File{}).
		Where("template_id = ?", templateID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}
	return count, nil
}
