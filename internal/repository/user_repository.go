package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/otcheredev/therapisttrack-records/internal/models"
	"gorm.io/gorm"
)

// CreateUser creates a user together with its role-dependent row
func (s *GormStore) CreateUser(ctx context.Context, user *models.User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", translate(err))
	}
	return nil
}

// GetUser retrieves a user by ID
func (s *GormStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).
		Preload("Doctor").
		Preload("Assistant").
		Where("id = ?", id).
		First(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to get user: %w", translate(err))
	}
	return &user, nil
}

// ListUsers retrieves all active users
func (s *GormStore) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).
		Preload("Doctor").
		Preload("Assistant").
		Where("is_active = ?", true).
		Order("created_at ASC").
		Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// UpdateUser updates a user and its role-dependent row
func (s *GormStore) UpdateUser(ctx context.Context, user *models.User) error {
	if err := s.db.WithContext(ctx).Session(&gorm.Session{FullSaveAssociations: true}).Save(user).Error; err != nil {
		return fmt.Errorf("failed to update user: %w", translate(err))
	}
	return nil
}

// GetActiveDoctor retrieves a doctor whose user account is still active
func (s *GormStore) GetActiveDoctor(ctx context.Context, id uuid.UUID) (*models.Doctor, error) {
	var doctor models.Doctor
	if err := s.db.WithContext(ctx).
		Joins("JOIN users ON users.id = doctors.user_id").
		Where("doctors.id = ? AND users.is_active = ?", id, true).
		First(&doctor).Error; err != nil {
		return nil, fmt.Errorf("failed to get doctor: %w", translate(err))
	}
	return &doctor, nil
}
