package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/otcheredev/therapisttrack-records/internal/apperr"
	"github.com/otcheredev/therapisttrack-records/internal/fields"
	"github.com/otcheredev/therapisttrack-records/internal/lock"
	"github.com/otcheredev/therapisttrack-records/internal/models"
	"github.com/otcheredev/therapisttrack-records/internal/repository"
)

// RecordService handles patient records.
type RecordService struct {
	*Core
	templates *TemplateService
}

// NewRecordService creates a record service
func NewRecordService(core *Core, templates *TemplateService) *RecordService {
	return &RecordService{Core: core, templates: templates}
}

// ownedRecord loads a record and checks who owns it.
func ownedRecord(ctx context.Context, store repository.Store, doctorID, recordID uuid.UUID) (*models.Record, error) {
	r, err := store.GetRecord(ctx, recordID)
	if err != nil {
		return nil, lookup(err, apperr.RecordNotFound, "get record")
	}
	if r.DoctorID != doctorID {
		return nil, apperr.New(apperr.DoctorIsNotOwner)
	}
	return r, nil
}

// Create validates the patient against the template and stores a new record.
func (s *RecordService) Create(ctx context.Context, req *models.CreateRecordRequest) (*models.Record, error) {
	doctorID, err := s.resolveDoctor(ctx, s.Store, req.DoctorID)
	if err != nil {
		return nil, err
	}
	templateID, ok := parseID(req.TemplateID)
	if !ok {
		return nil, apperr.New(apperr.TemplateNotFound)
	}

	unlock := s.Locks.RLock(lock.TemplateKey(templateID.String()))
	defer unlock()

	record := &models.Record{
		ID:         uuid.New(),
		DoctorID:   doctorID,
		TemplateID: templateID,
		Names:      *req.Patient.Names,
		LastNames:  *req.Patient.LastNames,
	}

	err = s.Store.Transaction(ctx, func(tx repository.Store) error {
		t, err := loadTemplate(ctx, tx, models.PatientTemplate, doctorID, templateID, lockShared)
		if err != nil {
			return err
		}
		entries, err := fields.Validate(t.Fields, req.Patient.Fields)
		if err != nil {
			return err
		}
		record.Fields = entries

		if err := tx.CreateRecord(ctx, record); err != nil {
			return internal(err, "create record")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.written(ctx, models.ActionCreate, models.ResourceRecord, doctorID, record.ID)
	return record, nil
}

// Edit replaces the patient data, validated against the template as it is now.
func (s *RecordService) Edit(ctx context.Context, req *models.EditRecordRequest) error {
	doctorID, err := s.resolveDoctor(ctx, s.Store, req.DoctorID)
	if err != nil {
		return err
	}
	recordID, ok := parseID(req.RecordID)
	if !ok {
		return apperr.New(apperr.RecordNotFound)
	}
	current, err := ownedRecord(ctx, s.Store, doctorID, recordID)
	if err != nil {
		return err
	}

	unlockTemplate := s.Locks.RLock(lock.TemplateKey(current.TemplateID.String()))
	defer unlockTemplate()
	unlockRecord := s.Locks.RLock(lock.RecordKey(recordID.String()))
	defer unlockRecord()

	err = s.Store.Transaction(ctx, func(tx repository.Store) error {
		r, err := ownedRecord(ctx, tx, doctorID, recordID)
		if err != nil {
			return err
		}
		t, err := loadTemplate(ctx, tx, models.PatientTemplate, doctorID, r.TemplateID, lockShared)
		if err != nil {
			return err
		}
		entries, err := fields.Validate(t.Fields, req.Patient.Fields)
		if err != nil {
			return err
		}

		r.Names = *req.Patient.Names
		r.LastNames = *req.Patient.LastNames
		r.Fields = entries
		if err := tx.UpdateRecord(ctx, r); err != nil {
			return lookup(err, apperr.RecordNotFound, "update record")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.written(ctx, models.ActionUpdate, models.ResourceRecord, doctorID, recordID)
	return nil
}

// Delete removes a record that has no files.
func (s *RecordService) Delete(ctx context.Context, req *models.RecordRefRequest) error {
	doctorID, err := s.resolveDoctor(ctx, s.Store, req.DoctorID)
	if err != nil {
		return err
	}
	recordID, ok := parseID(req.RecordID)
	if !ok {
		return apperr.New(apperr.RecordNotFound)
	}

	unlock := s.Locks.Lock(lock.RecordKey(recordID.String()))
	defer unlock()

	err = s.Store.Transaction(ctx, func(tx repository.Store) error {
		if _, err := ownedRecord(ctx, tx, doctorID, recordID); err != nil {
			return err
		}
		files, err := tx.CountFilesByRecord(ctx, recordID)
		if err != nil {
			return internal(err, "count record files")
		}
		if files > 0 {
			return apperr.New(apperr.OperationRejected)
		}
		if err := tx.DeleteRecord(ctx, recordID); err != nil {
			return lookup(err, apperr.RecordNotFound, "delete record")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.written(ctx, models.ActionDelete, models.ResourceRecord, doctorID, recordID)
	return nil
}

// Get returns the record with every current template field, filled in where a value is stored.
func (s *RecordService) Get(ctx context.Context, doctorRef, recordRef string) (*RecordView, error) {
	doctorID, err := s.resolveDoctor(ctx, s.Store, doctorRef)
	if err != nil {
		return nil, err
	}
	recordID, ok := parseID(recordRef)
	if !ok {
		return nil, apperr.New(apperr.RecordNotFound)
	}
	r, err := ownedRecord(ctx, s.Store, doctorID, recordID)
	if err != nil {
		return nil, err
	}
	t, err := s.templates.cached(ctx, r.TemplateID)
	if err != nil {
		return nil, err
	}

	categories := []string(t.Categories)
	if categories == nil {
		categories = []string{}
	}
	return &RecordView{
		RecordID:   r.ID,
		TemplateID: r.TemplateID,
		Categories: categories,
		CreatedAt:  r.CreatedAt,
		Names:      r.Names,
		LastNames:  r.LastNames,
		Fields:     enrich(t.Fields, r.Fields),
	}, nil
}
