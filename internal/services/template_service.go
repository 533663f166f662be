package services

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/therapisttrack-records/internal/apperr"
	"github.com/otcheredev/therapisttrack-records/internal/cache"
	"github.com/otcheredev/therapisttrack-records/internal/fields"
	"github.com/otcheredev/therapisttrack-records/internal/lock"
	"github.com/otcheredev/therapisttrack-records/internal/models"
	"github.com/otcheredev/therapisttrack-records/internal/repository"
	"github.com/rs/zerolog/log"
)

// errUnchanged tells mutate that fn left the template as it was.
var errUnchanged = errors.New("template unchanged")

// TemplateService owns patient and file templates. Every method takes the kind it acts on.
type TemplateService struct {
	*Core
	cache cache.Cache
	ttl   time.Duration
}

// NewTemplateService creates a template service. A nil cache disables caching.
func NewTemplateService(core *Core, c cache.Cache, ttl time.Duration) *TemplateService {
	if c == nil {
		c = cache.Nop{}
	}
	return &TemplateService{Core: core, cache: c, ttl: ttl}
}

func resourceType(kind models.TemplateKind) string {
	if kind == models.FileTemplate {
		return models.ResourceFileTemplate
	}
	return models.ResourcePatientTemplate
}

// normalizeDefinitions trims and checks a full field list.
func normalizeDefinitions(kind models.TemplateKind, reqs []models.FieldDefinitionRequest) ([]fields.Definition, error) {
	defs := make([]fields.Definition, 0, len(reqs))
	for _, r := range reqs {
		defs = append(defs, r.Definition().Normalize())
	}
	if err := fields.ValidateDefinitions(defs, kind == models.PatientTemplate); err != nil {
		return nil, err
	}
	return defs, nil
}

// normalizeDefinition trims and checks a single field.
func normalizeDefinition(kind models.TemplateKind, req *models.FieldDefinitionRequest) (fields.Definition, error) {
	def := req.Definition().Normalize()
	if err := def.Validate(); err != nil {
		return fields.Definition{}, err
	}
	if kind == models.PatientTemplate && fields.IsReserved(def.Name) {
		return fields.Definition{}, apperr.New(apperr.ReservedFieldNames)
	}
	return def, nil
}

func normalizeCategories(categories []string) []string {
	out := make([]string, 0, len(categories))
	for _, c := range categories {
		c = strings.TrimSpace(c)
		if c != "" && !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

// Create registers a new template for the doctor.
func (s *TemplateService) Create(ctx context.Context, kind models.TemplateKind, req *models.CreateTemplateRequest) (*models.Template, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.New(apperr.MissingFields)
	}
	defs, err := normalizeDefinitions(kind, req.Fields)
	if err != nil {
		return nil, err
	}

	doctorID, err := s.resolveDoctor(ctx, s.Store, req.DoctorID)
	if err != nil {
		return nil, err
	}

	categories := []string{}
	if kind == models.PatientTemplate {
		categories = normalizeCategories(req.Categories)
	}

	now := time.Now().UTC()
	template := &models.Template{
		ID:         uuid.New(),
		DoctorID:   doctorID,
		Kind:       kind,
		Name:       name,
		Categories: categories,
		Fields:     defs,
		LastUpdate: now,
		CreatedAt:  now,
	}

	unlock := s.Locks.Lock(lock.DoctorKey(doctorID.String()))
	defer unlock()

	err = s.Store.Transaction(ctx, func(tx repository.Store) error {
		if _, err := tx.FindTemplateByName(ctx, doctorID, kind, name); err == nil {
			return apperr.New(apperr.RecordsUsing)
		} else if !errors.Is(err, repository.ErrNotFound) {
			return internal(err, "find template by name")
		}
		if err := tx.CreateTemplate(ctx, template); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperr.New(apperr.RecordsUsing)
			}
			return internal(err, "create template")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.written(ctx, models.ActionCreate, resourceType(kind), doctorID, template.ID)
	log.Info().Str("template_id", template.ID.String()).Str("kind", string(kind)).Msg("Template created")
	return template, nil
}

// mutate runs fn on the locked template and saves the result. Returning errUnchanged from fn
// skips the write.
func (s *TemplateService) mutate(ctx context.Context, kind models.TemplateKind, doctorID uuid.UUID, templateRef string, fn func(tx repository.Store, t *models.Template) error) error {
	templateID, ok := parseID(templateRef)
	if !ok {
		return apperr.New(apperr.TemplateNotFound)
	}

	unlock := s.Locks.Lock(lock.TemplateKey(templateID.String()))
	defer unlock()

	changed := true
	err := s.Store.Transaction(ctx, func(tx repository.Store) error {
		t, err := loadTemplate(ctx, tx, kind, doctorID, templateID, lockExclusive)
		if err != nil {
			return err
		}
		if err := fn(tx, t); err != nil {
			if errors.Is(err, errUnchanged) {
				changed = false
				return nil
			}
			return err
		}
		t.LastUpdate = time.Now().UTC()
		if err := tx.UpdateTemplate(ctx, t); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperr.New(apperr.RecordsUsing)
			}
			return internal(err, "update template")
		}
		return nil
	})
	if err != nil {
		return err
	}

	if changed {
		s.invalidate(ctx, templateID)
		s.written(ctx, models.ActionUpdate, resourceType(kind), doctorID, templateID)
	}
	return nil
}

// Rename gives the template a new name, unique among the doctor's templates of the same kind.
func (s *TemplateService) Rename(ctx context.Context, kind models.TemplateKind, req *models.RenameTemplateRequest) error {
	doctorID, err := s.resolveDoctor(ctx, s.Store, req.DoctorID)
	if err != nil {
		return err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return apperr.New(apperr.MissingFields)
	}

	unlock := s.Locks.Lock(lock.DoctorKey(doctorID.String()))
	defer unlock()

	return s.mutate(ctx, kind, doctorID, req.TemplateID, func(tx repository.Store, t *models.Template) error {
		other, err := tx.FindTemplateByName(ctx, doctorID, kind, name)
		switch {
		case err == nil && other.ID != t.ID:
			return apperr.New(apperr.RecordsUsing)
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return internal(err, "find template by name")
		}
		if t.Name == name {
			return errUnchanged
		}
		t.Name = name
		return nil
	})
}

// AddField appends a field to the template.
func (s *TemplateService) AddField(ctx context.Context, kind models.TemplateKind, req *models.AddFieldRequest) error {
	doctorID, err := s.resolveDoctor(ctx, s.Store, req.DoctorID)
	if err != nil {
		return err
	}
	return s.mutate(ctx, kind, doctorID, req.TemplateID, func(tx repository.Store, t *models.Template) error {
		def, err := normalizeDefinition(kind, req.Field)
		if err != nil {
			return err
		}
		if _, _, exists := fields.Find(t.Fields, def.Name); exists {
			return apperr.New(apperr.RecordsUsing)
		}
		t.Fields = append(t.Fields, def)
		return nil
	})
}

// EditField replaces the definition of oldFieldName in place.
func (s *TemplateService) EditField(ctx context.Context, kind models.TemplateKind, req *models.EditFieldRequest) error {
	doctorID, err := s.resolveDoctor(ctx, s.Store, req.DoctorID)
	if err != nil {
		return err
	}
	return s.mutate(ctx, kind, doctorID, req.TemplateID, func(tx repository.Store, t *models.Template) error {
		_, idx, found := fields.Find(t.Fields, strings.TrimSpace(req.OldFieldName))
		if !found {
			return apperr.New(apperr.FieldNotFound)
		}
		def, err := normalizeDefinition(kind, req.FieldData)
		if err != nil {
			return err
		}
		if _, other, exists := fields.Find(t.Fields, def.Name); exists && other != idx {
			return apperr.New(apperr.RecordsUsing)
		}
		t.Fields[idx] = def
		return nil
	})
}

// DeleteField removes a field. Stored values for it stay on existing entities and are ignored on read.
func (s *TemplateService) DeleteField(ctx context.Context, kind models.TemplateKind, req *models.DeleteFieldRequest) error {
	doctorID, err := s.resolveDoctor(ctx, s.Store, req.DoctorID)
	if err != nil {
		return err
	}
	return s.mutate(ctx, kind, doctorID, req.TemplateID, func(tx repository.Store, t *models.Template) error {
		_, idx, found := fields.Find(t.Fields, strings.TrimSpace(req.Name))
		if !found {
			return apperr.New(apperr.FieldNotFound)
		}
		t.Fields = slices.Delete(t.Fields, idx, idx+1)
		return nil
	})
}

// Delete removes a template nothing refers to.
func (s *TemplateService) Delete(ctx context.Context, kind models.TemplateKind, req *models.TemplateRefRequest) error {
	doctorID, err := s.resolveDoctor(ctx, s.Store, req.DoctorID)
	if err != nil {
		return err
	}
	templateID, ok := parseID(req.TemplateID)
	if !ok {
		return apperr.New(apperr.TemplateNotFound)
	}

	unlock := s.Locks.Lock(lock.TemplateKey(templateID.String()))
	defer unlock()

	err = s.Store.Transaction(ctx, func(tx repository.Store) error {
		if _, err := loadTemplate(ctx, tx, kind, doctorID, templateID, lockExclusive); err != nil {
			return err
		}

		count := tx.CountFilesByTemplate
		if kind == models.PatientTemplate {
			count = tx.CountRecordsByTemplate
		}
		dependants, err := count(ctx, templateID)
		if err != nil {
			return internal(err, "count template dependants")
		}
		if dependants > 0 {
			return apperr.New(apperr.OperationRejected)
		}

		if err := tx.DeleteTemplate(ctx, templateID); err != nil {
			return lookup(err, apperr.TemplateNotFound, "delete template")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, templateID)
	s.written(ctx, models.ActionDelete, resourceType(kind), doctorID, templateID)
	return nil
}

// Get returns one of the doctor's templates.
func (s *TemplateService) Get(ctx context.Context, kind models.TemplateKind, doctorRef, templateRef string) (*models.Template, error) {
	doctorID, err := s.resolveDoctor(ctx, s.Store, doctorRef)
	if err != nil {
		return nil, err
	}
	templateID, ok := parseID(templateRef)
	if !ok {
		return nil, apperr.New(apperr.TemplateNotFound)
	}

	t, err := s.cached(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if err := checkTemplate(t, kind, doctorID); err != nil {
		return nil, err
	}
	return t, nil
}

// List returns the doctor's templates of kind in creation order.
func (s *TemplateService) List(ctx context.Context, kind models.TemplateKind, doctorRef string) ([]models.Template, error) {
	doctorID, err := s.resolveDoctor(ctx, s.Store, doctorRef)
	if err != nil {
		return nil, err
	}
	templates, err := s.Store.ListTemplates(ctx, doctorID, kind)
	if err != nil {
		return nil, internal(err, "list templates")
	}
	if templates == nil {
		templates = []models.Template{}
	}
	return templates, nil
}

// cached reads a template through the cache. Cache failures fall back to the store.
// A miss is filled under the template's read lock, so a writer cannot commit and invalidate between
// the store read and the cache write.
func (s *TemplateService) cached(ctx context.Context, templateID uuid.UUID) (*models.Template, error) {
	key := cache.TemplateKey(templateID.String())

	if data, err := s.cache.Get(ctx, key); err == nil {
		var t models.Template
		if err := json.Unmarshal(data, &t); err == nil {
			s.Metrics.CacheLookup(true)
			return &t, nil
		}
		log.Warn().Str("key", key).Msg("Dropping undecodable cache entry")
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		log.Warn().Err(err).Str("key", key).Msg("Cache read failed")
	}
	s.Metrics.CacheLookup(false)

	unlock := s.Locks.RLock(lock.TemplateKey(templateID.String()))
	defer unlock()

	t, err := s.Store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, lookup(err, apperr.TemplateNotFound, "get template")
	}

	if data, err := json.Marshal(t); err == nil {
		if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
		}
	}
	return t, nil
}

// invalidate drops the cached copy. Callers hold the template's write lock and have committed.
func (s *TemplateService) invalidate(ctx context.Context, templateID uuid.UUID) {
	if err := s.cache.Delete(ctx, cache.TemplateKey(templateID.String())); err != nil {
		log.Warn().Err(err).Str("template_id", templateID.String()).Msg("Cache invalidation failed")
	}
}
