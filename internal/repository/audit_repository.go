package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/otcheredev/therapisttrack-records/internal/models"
)

// CreateAuditLog creates a new audit log entry
func (s *GormStore) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if err := s.db.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

// ListAuditLogs retrieves audit logs for a doctor, newest first
func (s *GormStore) ListAuditLogs(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]models.AuditLog, error) {
	var logs []models.AuditLog
	query := s.db.WithContext(ctx).
		Where("doctor_id = ?", doctorID).
		Order("created_at DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to get audit logs: %w", err)
	}

	return logs, nil
}
