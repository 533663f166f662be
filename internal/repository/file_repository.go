package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/otcheredev/therapisttrack-records/internal/models"
)

// CreateFile creates a new file
func (s *GormStore) CreateFile(ctx context.Context, file *models.File) error {
	if err := s.db.WithContext(ctx).Create(file).Error; err != nil {
		return fmt.Errorf("failed to create file: %w", translate(err))
	}
	return nil
}

// GetFile retrieves a file by ID
func (s *GormStore) GetFile(ctx context.Context, id uuid.UUID) (*models.File, error) {
	var file models.File
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&file).Error; err != nil {
		return nil, fmt.Errorf("failed to get file: %w", translate(err))
	}
	return &file, nil
}

// ListFiles retrieves the files matching scope
func (s *GormStore) ListFiles(ctx context.Context, scope FileScope) ([]models.File, error) {
	query := s.db.WithContext(ctx).Model(&models.File{})
	if scope.DoctorID != uuid.Nil {
		query = query.Where("doctor_id = ?", scope.DoctorID)
	}
	if scope.RecordID != uuid.Nil {
		query = query.Where("record_id = ?", scope.RecordID)
	}
	if scope.Category != "" {
		query = query.Where("category = ?", scope.Category)
	}

	var files []models.File
	if err := query.Order("created_at ASC, id ASC").Find(&files).Error; err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return files, nil
}

// UpdateFile updates a file
func (s *GormStore) UpdateFile(ctx context.Context, file *models.File) error {
	if err := s.db.WithContext(ctx).Save(file).Error; err != nil {
		return fmt.Errorf("failed to update file: %w", translate(err))
	}
	return nil
}

// DeleteFile deletes a file
func (s *GormStore) DeleteFile(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Delete(&models.File{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete file: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("failed to delete file: %w", ErrNotFound)
	}
	return nil
}
