package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/otcheredev/therapisttrack-records/internal/models"
)

// CreateRecord creates a new record
func (s *GormStore) CreateRecord(ctx context.Context, record *models.Record) error {
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create record: %w", translate(err))
	}
	return nil
}

// GetRecord retrieves a record by ID
func (s *GormStore) GetRecord(ctx context.Context, id uuid.UUID) (*models.Record, error) {
	var record models.Record
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		return nil, fmt.Errorf("failed to get record: %w", translate(err))
	}
	return &record, nil
}

// ListRecords retrieves every record owned by a doctor
func (s *GormStore) ListRecords(ctx context.Context, doctorID uuid.UUID) ([]models.Record, error) {
	var records []models.Record
	if err := s.db.WithContext(ctx).
		Where("doctor_id = ?", doctorID).
		Order("created_at ASC, id ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return records, nil
}

// UpdateRecord updates a record
func (s *GormStore) UpdateRecord(ctx context.Context, record *models.Record) error {
	if err := s.db.WithContext(ctx).Save(record).Error; err != nil {
		return fmt.Errorf("failed to update record: %w", translate(err))
	}
	return nil
}

// DeleteRecord deletes a record
func (s *GormStore) DeleteRecord(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Delete(&models.Record{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("failed to delete record: %w", ErrNotFound)
	}
	return nil
}

// CountFilesByRecord counts the files attached to a record
func (s *GormStore) CountFilesByRecord(ctx context.Context, recordID uuid.UUID) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.File{}).
		Where("record_id = ?", recordID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}
	return count, nil
}
