package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/google/uuid"
	"github.com/otcheredev/therapisttrack-records/internal/apperr"
	"github.com/otcheredev/therapisttrack-records/internal/fields"
	"github.com/otcheredev/therapisttrack-records/internal/lock"
	"github.com/otcheredev/therapisttrack-records/internal/models"
	"github.com/otcheredev/therapisttrack-records/internal/repository"
	"github.com/otcheredev/therapisttrack-records/internal/storage"
	"github.com/rs/zerolog/log"
)

// FileService handles documents attached to records.
type FileService struct {
	*Core
	templates *TemplateService
	blobs     storage.BlobStore
}

// NewFileService creates a file service
func NewFileService(core *Core, templates *TemplateService, blobs storage.BlobStore) *FileService {
	return &FileService{Core: core, templates: templates, blobs: blobs}
}

// Upload is the binary part of a file creation.
type Upload struct {
	ContentType string
	Content     io.Reader
}

func blobKey(doctorID, fileID uuid.UUID) string {
	return fmt.Sprintf("files/%s/%s", doctorID, fileID)
}

// checkFile resolves the file template and the record, then checks ownership, category and fields,
// in that order. It returns the canonical field values. Both templates stay share locked until the
// surrounding transaction ends.
func checkFile(ctx context.Context, store repository.Store, doctorID, templateID, recordID uuid.UUID, category string, submitted []fields.Input) ([]fields.Entry, error) {
	t, err := lockedTemplate(ctx, store, templateID, lockShared)
	if err != nil {
		return nil, lookup(err, apperr.TemplateNotFound, "get template")
	}
	if t.Kind != models.FileTemplate {
		return nil, apperr.New(apperr.TemplateNotFound)
	}
	r, err := store.GetRecord(ctx, recordID)
	if err != nil {
		return nil, lookup(err, apperr.RecordNotFound, "get record")
	}
	if t.DoctorID != doctorID || r.DoctorID != doctorID {
		return nil, apperr.New(apperr.DoctorIsNotOwner)
	}

	patientTemplate, err := lockedTemplate(ctx, store, r.TemplateID, lockShared)
	if err != nil {
		return nil, lookup(err, apperr.TemplateNotFound, "get record template")
	}
	if !slices.Contains(patientTemplate.Categories, category) {
		return nil, apperr.New(apperr.InvalidFieldTypeText)
	}

	return fields.Validate(t.Fields, submitted)
}

// Create checks the metadata, stores the bytes and then the file row in one transaction. The blob is
// removed again if the row cannot be written.
func (s *FileService) Create(ctx context.Context, meta *models.FileMetadata, upload Upload) (*models.File, error) {
	doctorID, err := s.resolveDoctor(ctx, s.Store, meta.DoctorID)
	if err != nil {
		return nil, err
	}
	templateID, ok := parseID(meta.TemplateID)
	if !ok {
		return nil, apperr.New(apperr.TemplateNotFound)
	}
	recordID, ok := parseID(meta.RecordID)
	if !ok {
		return nil, apperr.New(apperr.RecordNotFound)
	}

	unlockTemplate := s.Locks.RLock(lock.TemplateKey(templateID.String()))
	defer unlockTemplate()
	unlockRecord := s.Locks.RLock(lock.RecordKey(recordID.String()))
	defer unlockRecord()

	file := &models.File{
		ID:          uuid.New(),
		DoctorID:    doctorID,
		RecordID:    recordID,
		TemplateID:  templateID,
		Name:        meta.Name,
		Category:    meta.Category,
		ContentType: upload.ContentType,
	}
	file.BlobKey = blobKey(doctorID, file.ID)

	stored := false
	err = s.Store.Transaction(ctx, func(tx repository.Store) error {
		entries, err := checkFile(ctx, tx, doctorID, templateID, recordID, meta.Category, meta.Fields)
		if err != nil {
			return err
		}
		file.Fields = entries

		obj, err := s.blobs.Put(ctx, file.BlobKey, upload.ContentType, upload.Content)
		if err != nil {
			if errors.Is(err, storage.ErrEmpty) || errors.Is(err, storage.ErrTooLarge) {
				return apperr.Wrap(apperr.MissingFields, err)
			}
			return internal(err, "store file content")
		}
		stored = true
		file.Pages = obj.Pages
		file.Size = obj.Size

		if err := tx.CreateFile(ctx, file); err != nil {
			return internal(err, "create file")
		}
		return nil
	})
	if err != nil {
		if stored {
			if delErr := s.blobs.Delete(ctx, file.BlobKey); delErr != nil {
				log.Error().Err(delErr).Str("blob_key", file.BlobKey).Msg("Failed to remove orphaned blob")
			}
		}
		return nil, err
	}

	s.written(ctx, models.ActionCreate, models.ResourceFile, doctorID, file.ID)
	return file, nil
}

// ownedFile loads a file and checks who owns it.
func ownedFile(ctx context.Context, store repository.Store, doctorID, fileID uuid.UUID) (*models.File, error) {
	f, err := store.GetFile(ctx, fileID)
	if err != nil {
		return nil, lookup(err, apperr.FileNotFound, "get file")
	}
	if f.DoctorID != doctorID {
		return nil, apperr.New(apperr.DoctorIsNotOwner)
	}
	return f, nil
}

// Edit replaces name, category and fields. The stored bytes are untouched.
func (s *FileService) Edit(ctx context.Context, req *models.EditFileRequest) error {
	doctorID, err := s.resolveDoctor(ctx, s.Store, req.DoctorID)
	if err != nil {
		return err
	}
	fileID, ok := parseID(req.FileID)
	if !ok {
		return apperr.New(apperr.FileNotFound)
	}
	current, err := ownedFile(ctx, s.Store, doctorID, fileID)
	if err != nil {
		return err
	}

	unlockTemplate := s.Locks.RLock(lock.TemplateKey(current.TemplateID.String()))
	defer unlockTemplate()
	unlockRecord := s.Locks.RLock(lock.RecordKey(current.RecordID.String()))
	defer unlockRecord()

	err = s.Store.Transaction(ctx, func(tx repository.Store) error {
		f, err := ownedFile(ctx, tx, doctorID, fileID)
		if err != nil {
			return err
		}
		entries, err := checkFile(ctx, tx, doctorID, f.TemplateID, f.RecordID, req.Category, req.Fields)
		if err != nil {
			return err
		}

		f.Name = req.Name
		f.Category = req.Category
		f.Fields = entries
		if err := tx.UpdateFile(ctx, f); err != nil {
			return lookup(err, apperr.FileNotFound, "update file")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.written(ctx, models.ActionUpdate, models.ResourceFile, doctorID, fileID)
	return nil
}

// Delete removes the file row and then its bytes.
func (s *FileService) Delete(ctx context.Context, req *models.FileRefRequest) error {
	doctorID, err := s.resolveDoctor(ctx, s.Store, req.DoctorID)
	if err != nil {
		return err
	}
	fileID, ok := parseID(req.FileID)
	if !ok {
		return apperr.New(apperr.FileNotFound)
	}

	var deleted *models.File
	err = s.Store.Transaction(ctx, func(tx repository.Store) error {
		f, err := ownedFile(ctx, tx, doctorID, fileID)
		if err != nil {
			return err
		}
		if err := tx.DeleteFile(ctx, fileID); err != nil {
			return lookup(err, apperr.FileNotFound, "delete file")
		}
		deleted = f
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.blobs.Delete(ctx, deleted.BlobKey); err != nil {
		log.Error().Err(err).Str("blob_key", deleted.BlobKey).Msg("Failed to delete file content")
	}

	s.written(ctx, models.ActionDelete, models.ResourceFile, doctorID, fileID)
	return nil
}

// Get returns the file with every current template field, filled in where a value is stored.
func (s *FileService) Get(ctx context.Context, doctorRef, fileRef string) (*FileView, error) {
	doctorID, err := s.resolveDoctor(ctx, s.Store, doctorRef)
	if err != nil {
		return nil, err
	}
	fileID, ok := parseID(fileRef)
	if !ok {
		return nil, apperr.New(apperr.FileNotFound)
	}
	f, err := ownedFile(ctx, s.Store, doctorID, fileID)
	if err != nil {
		return nil, err
	}
	t, err := s.templates.cached(ctx, f.TemplateID)
	if err != nil {
		return nil, err
	}

	view := newFileView(f, enrich(t.Fields, f.Fields))
	return &view, nil
}

// Content streams the stored bytes of a file.
func (s *FileService) Content(ctx context.Context, doctorRef, fileRef string) (io.ReadCloser, *models.File, error) {
	doctorID, err := s.resolveDoctor(ctx, s.Store, doctorRef)
	if err != nil {
		return nil, nil, err
	}
	fileID, ok := parseID(fileRef)
	if !ok {
		return nil, nil, apperr.New(apperr.FileNotFound)
	}
	f, err := ownedFile(ctx, s.Store, doctorID, fileID)
	if err != nil {
		return nil, nil, err
	}

	rc, _, err := s.blobs.Get(ctx, f.BlobKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, apperr.Wrap(apperr.FileNotFound, err)
		}
		return nil, nil, internal(err, "read file content")
	}
	return rc, f, nil
}
