package services

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/otcheredev/therapisttrack-records/internal/apperr"
	"github.com/otcheredev/therapisttrack-records/internal/fields"
	"github.com/otcheredev/therapisttrack-records/internal/models"
	"github.com/otcheredev/therapisttrack-records/internal/repository"
	"github.com/rs/zerolog/log"
)

// assistant contract dates arrive either as MM/DD/YYYY or as ISO dates
const usDateLayout = "01/02/2006"

// UserService manages accounts and their role-dependent rows.
type UserService struct {
	*Core
}

// NewUserService creates a user service
func NewUserService(core *Core) *UserService {
	return &UserService{Core: core}
}

// Registration is what Register hands back to the client.
type Registration struct {
	ID     string
	RoleID string
}

func parseContractDate(s string) (time.Time, bool) {
	if t, err := time.Parse(usDateLayout, strings.TrimSpace(s)); err == nil {
		return t, true
	}
	return fields.ParseDate(s)
}

func contractDates(info models.RoleDependentInfo) (time.Time, time.Time, error) {
	start, ok := parseContractDate(info.StartDate)
	if !ok {
		return time.Time{}, time.Time{}, apperr.New(apperr.MissingFields)
	}
	end, ok := parseContractDate(info.EndDate)
	if !ok {
		return time.Time{}, time.Time{}, apperr.New(apperr.MissingFields)
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, apperr.New(apperr.MissingFields)
	}
	return start, end, nil
}

// mailTaken reports whether another active account already uses one of mails.
func mailTaken(users []models.User, id string, mails []string) bool {
	for _, u := range users {
		if u.ID == id {
			continue
		}
		for _, m := range mails {
			if slices.ContainsFunc(u.Mails, func(other string) bool { return strings.EqualFold(other, m) }) {
				return true
			}
		}
	}
	return false
}

// Register creates an account and the row its role needs.
func (s *UserService) Register(ctx context.Context, req *models.RegisterUserRequest) (*Registration, error) {
	user := &models.User{
		ID:        strings.TrimSpace(req.ID),
		Names:     req.Names,
		LastNames: req.LastNames,
		Phones:    req.Phones,
		Mails:     req.Mails,
		Role:      req.Role,
		IsActive:  true,
	}

	switch req.Role {
	case models.RoleDoctor:
		user.Doctor = &models.Doctor{
			CollegiateNumber: req.RoleDependentInfo.CollegiateNumber,
			Specialty:        req.RoleDependentInfo.Specialty,
		}
	case models.RoleAssistant:
		start, end, err := contractDates(req.RoleDependentInfo)
		if err != nil {
			return nil, err
		}
		user.Assistant = &models.Assistant{StartDate: start, EndDate: end, DPI: req.RoleDependentInfo.DPI}
	case models.RoleAdmin:
	default:
		return nil, apperr.New(apperr.MissingFields)
	}

	err := s.Store.Transaction(ctx, func(tx repository.Store) error {
		if _, err := tx.GetUser(ctx, user.ID); err == nil {
			return apperr.New(apperr.RecordsUsing)
		} else if !errors.Is(err, repository.ErrNotFound) {
			return internal(err, "get user")
		}
		users, err := tx.ListUsers(ctx)
		if err != nil {
			return internal(err, "list users")
		}
		if mailTaken(users, user.ID, user.Mails) {
			return apperr.New(apperr.RecordsUsing)
		}

		if err := tx.CreateUser(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperr.New(apperr.RecordsUsing)
			}
			return internal(err, "create user")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("User registered")
	return &Registration{ID: user.ID, RoleID: user.RoleID()}, nil
}

// Update replaces names, contact data and the role-dependent info. The role itself is fixed.
func (s *UserService) Update(ctx context.Context, req *models.UpdateUserRequest) error {
	return s.Store.Transaction(ctx, func(tx repository.Store) error {
		user, err := tx.GetUser(ctx, req.ID)
		if err != nil {
			return lookup(err, apperr.UserNotFound, "get user")
		}
		if !user.IsActive {
			return apperr.New(apperr.UserNotFound)
		}
		users, err := tx.ListUsers(ctx)
		if err != nil {
			return internal(err, "list users")
		}
		if mailTaken(users, user.ID, req.Mails) {
			return apperr.New(apperr.RecordsUsing)
		}

		user.Names = req.Names
		user.LastNames = req.LastNames
		user.Phones = req.Phones
		user.Mails = req.Mails
		switch {
		case user.Doctor != nil:
			user.Doctor.CollegiateNumber = req.RoleDependentInfo.CollegiateNumber
			user.Doctor.Specialty = req.RoleDependentInfo.Specialty
		case user.Assistant != nil:
			start, end, err := contractDates(req.RoleDependentInfo)
			if err != nil {
				return err
			}
			user.Assistant.StartDate = start
			user.Assistant.EndDate = end
			user.Assistant.DPI = req.RoleDependentInfo.DPI
		}

		if err := tx.UpdateUser(ctx, user); err != nil {
			return lookup(err, apperr.UserNotFound, "update user")
		}
		return nil
	})
}

// Get returns an active account.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.Store.GetUser(ctx, id)
	if err != nil {
		return nil, lookup(err, apperr.UserNotFound, "get user")
	}
	if !user.IsActive {
		return nil, apperr.New(apperr.UserNotFound)
	}
	return user, nil
}

// List returns every active account.
func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	users, err := s.Store.ListUsers(ctx)
	if err != nil {
		return nil, internal(err, "list users")
	}
	return users, nil
}

// Deactivate marks an account inactive. Its rows stay, but a deactivated doctor no longer resolves.
func (s *UserService) Deactivate(ctx context.Context, id string) error {
	err := s.Store.Transaction(ctx, func(tx repository.Store) error {
		user, err := tx.GetUser(ctx, id)
		if err != nil {
			return lookup(err, apperr.UserNotFound, "get user")
		}
		if !user.IsActive {
			return apperr.New(apperr.UserNotFound)
		}
		user.IsActive = false
		if err := tx.UpdateUser(ctx, user); err != nil {
			return lookup(err, apperr.UserNotFound, "update user")
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Str("user_id", id).Msg("User deactivated")
	return nil
}

// AuditLogs returns a page of the doctor's audit trail, newest first.
func (s *UserService) AuditLogs(ctx context.Context, doctorRef string, limit, offset int) ([]models.AuditLog, error) {
	doctorID, err := s.resolveDoctor(ctx, s.Store, doctorRef)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || offset < 0 {
		return nil, apperr.New(apperr.MissingFields)
	}
	logs, err := s.Store.ListAuditLogs(ctx, doctorID, limit, offset)
	if err != nil {
		return nil, internal(err, "list audit logs")
	}
	return logs, nil
}
