package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/therapisttrack-records/internal/apperr"
	"github.com/otcheredev/therapisttrack-records/internal/cache"
	"github.com/otcheredev/therapisttrack-records/internal/fields"
	"github.com/otcheredev/therapisttrack-records/internal/metrics"
	"github.com/otcheredev/therapisttrack-records/internal/models"
	"github.com/otcheredev/therapisttrack-records/internal/repository"
	"github.com/otcheredev/therapisttrack-records/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	ctx       context.Context
	store     *repository.MemoryStore
	blobs     *storage.MemoryStore
	cache     *cache.MemoryCache
	templates *TemplateService
	records   *RecordService
	files     *FileService
	search    *SearchService
	users     *UserService
	doctorID  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, nil)
}

// newFixtureWith lets a test put its own Store in front of the memory store the services use.
func newFixtureWith(t *testing.T, wrap func(*repository.MemoryStore) repository.Store) *fixture {
	t.Helper()

	store := repository.NewMemoryStore()
	blobs := storage.NewMemoryStore(1 << 20)
	memCache := cache.NewMemoryCache(time.Minute)
	t.Cleanup(func() { memCache.Close() })

	var backing repository.Store = store
	if wrap != nil {
		backing = wrap(store)
	}
	core := NewCore(backing, nil, metrics.NewCollector("test", prometheus.NewRegistry()))
	templates := NewTemplateService(core, memCache, time.Minute)

	f := &fixture{
		ctx:       context.Background(),
		store:     store,
		blobs:     blobs,
		cache:     memCache,
		templates: templates,
		records:   NewRecordService(core, templates),
		files:     NewFileService(core, templates, blobs),
		search:    NewSearchService(core),
		users:     NewUserService(core),
	}
	f.doctorID = f.registerDoctor(t, "auth0|doctor-1", "doctor1@example.com")
	return f
}

func (f *fixture) registerDoctor(t *testing.T, id, mail string) string {
	t.Helper()
	reg, err := f.users.Register(f.ctx, &models.RegisterUserRequest{
		ID:        id,
		Names:     "Ana",
		LastNames: "Lopez",
		Mails:     []string{mail},
		Role:      models.RoleDoctor,
		RoleDependentInfo: models.RoleDependentInfo{
			CollegiateNumber: "12345",
			Specialty:        "Psicologia",
		},
	})
	require.NoError(t, err)
	return reg.RoleID
}

func def(name string, typ fields.Type, required bool, options ...string) models.FieldDefinitionRequest {
	return models.FieldDefinitionRequest{Name: name, Type: string(typ), Required: required, Options: options}
}

func input(name string, v any) fields.Input {
	raw, _ := json.Marshal(v)
	return fields.Input{Name: name, Value: raw}
}

func ptr(s string) *string { return &s }

func assertKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, apperr.KindOf(err), "got %v", err)
}

func (f *fixture) createTemplate(t *testing.T, kind models.TemplateKind, name string, categories []string, defs ...models.FieldDefinitionRequest) *models.Template {
	t.Helper()
	tmpl, err := f.templates.Create(f.ctx, kind, &models.CreateTemplateRequest{
		DoctorID:   f.doctorID,
		Name:       name,
		Categories: categories,
		Fields:     defs,
	})
	require.NoError(t, err)
	return tmpl
}

func (f *fixture) createRecord(t *testing.T, templateID uuid.UUID, names, lastNames string, in ...fields.Input) *models.Record {
	t.Helper()
	if in == nil {
		in = []fields.Input{}
	}
	r, err := f.records.Create(f.ctx, &models.CreateRecordRequest{
		DoctorID:   f.doctorID,
		TemplateID: templateID.String(),
		Patient:    &models.PatientRequest{Names: ptr(names), LastNames: ptr(lastNames), Fields: in},
	})
	require.NoError(t, err)
	return r
}

func (f *fixture) uploadFile(t *testing.T, recordID, templateID uuid.UUID, name, category string, in ...fields.Input) *models.File {
	t.Helper()
	if in == nil {
		in = []fields.Input{}
	}
	file, err := f.files.Create(f.ctx, &models.FileMetadata{
		DoctorID:   f.doctorID,
		RecordID:   recordID.String(),
		TemplateID: templateID.String(),
		Name:       name,
		Category:   category,
		Fields:     in,
	}, Upload{ContentType: "text/plain", Content: strings.NewReader("contents of " + name)})
	require.NoError(t, err)
	return file
}
