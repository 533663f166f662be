package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/otcheredev/therapisttrack-records/internal/fields"
	"github.com/otcheredev/therapisttrack-records/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreTemplateNameIsUniquePerDoctorAndKind(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	doctorID := uuid.New()

	first := &models.Template{DoctorID: doctorID, Kind: models.PatientTemplate, Name: "General"}
	require.NoError(t, store.CreateTemplate(ctx, first))

	dup := &models.Template{DoctorID: doctorID, Kind: models.PatientTemplate, Name: "General"}
	err := store.CreateTemplate(ctx, dup)
	assert.True(t, errors.Is(err, ErrDuplicate))

	otherKind := &models.Template{DoctorID: doctorID, Kind: models.FileTemplate, Name: "General"}
	assert.NoError(t, store.CreateTemplate(ctx, otherKind))

	otherDoctor := &models.Template{DoctorID: uuid.New(), Kind: models.PatientTemplate, Name: "General"}
	assert.NoError(t, store.CreateTemplate(ctx, otherDoctor))

	second := &models.Template{DoctorID: doctorID, Kind: models.PatientTemplate, Name: "Pediatria"}
	require.NoError(t, store.CreateTemplate(ctx, second))
	second.Name = "General"
	err = store.UpdateTemplate(ctx, second)
	assert.True(t, errors.Is(err, ErrDuplicate))
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	tmpl := &models.Template{
		DoctorID: uuid.New(),
		Kind:     models.PatientTemplate,
		Name:     "General",
		Fields:   []fields.Definition{{Name: "Edad", Type: fields.Number}},
	}
	require.NoError(t, store.CreateTemplate(ctx, tmpl))

	got, err := store.GetTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	got.Fields[0].Name = "changed"

	again, err := store.GetTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "Edad", again.Fields[0].Name)
}

func TestMemoryStoreTemplateLocks(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	tmpl := &models.Template{DoctorID: uuid.New(), Kind: models.FileTemplate, Name: "Examen"}
	require.NoError(t, store.CreateTemplate(ctx, tmpl))

	err := store.Transaction(ctx, func(tx Store) error {
		shared, err := tx.LockTemplateShared(ctx, tmpl.ID)
		require.NoError(t, err)
		assert.Equal(t, "Examen", shared.Name)

		exclusive, err := tx.LockTemplate(ctx, tmpl.ID)
		require.NoError(t, err)
		assert.Equal(t, tmpl.ID, exclusive.ID)
		return nil
	})
	require.NoError(t, err)

	_, err = store.LockTemplateShared(ctx, uuid.New())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStoreActiveDoctor(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	user := &models.User{ID: "auth0|1", Names: "Ana", LastNames: "Lopez", Role: models.RoleDoctor, IsActive: true, Doctor: &models.Doctor{}}
	require.NoError(t, store.CreateUser(ctx, user))
	doctorID := user.Doctor.ID

	_, err := store.GetActiveDoctor(ctx, doctorID)
	require.NoError(t, err)

	user.IsActive = false
	require.NoError(t, store.UpdateUser(ctx, user))
	_, err = store.GetActiveDoctor(ctx, doctorID)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = store.GetActiveDoctor(ctx, uuid.New())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStoreListFilesByScope(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	doctorID, recordA, recordB := uuid.New(), uuid.New(), uuid.New()

	for _, f := range []*models.File{
		{DoctorID: doctorID, RecordID: recordA, Category: "Consulta", Name: "a1"},
		{DoctorID: doctorID, RecordID: recordA, Category: "Laboratorio", Name: "a2"},
		{DoctorID: doctorID, RecordID: recordB, Category: "Consulta", Name: "b1"},
	} {
		require.NoError(t, store.CreateFile(ctx, f))
	}

	files, err := store.ListFiles(ctx, FileScope{DoctorID: doctorID, RecordID: recordA})
	require.NoError(t, err)
	assert.Len(t, files, 2)
	assert.Equal(t, "a1", files[0].Name)

	files, err = store.ListFiles(ctx, FileScope{DoctorID: doctorID, Category: "Consulta"})
	require.NoError(t, err)
	assert.Len(t, files, 2)

	count, err := store.CountFilesByRecord(ctx, recordB)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMemoryStoreAuditLogsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	doctorID := uuid.New()

	for _, action := range []string{models.ActionCreate, models.ActionUpdate, models.ActionDelete} {
		require.NoError(t, store.CreateAuditLog(ctx, &models.AuditLog{DoctorID: doctorID, Action: action}))
	}

	logs, err := store.ListAuditLogs(ctx, doctorID, 2, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, models.ActionDelete, logs[0].Action)
	assert.Equal(t, models.ActionUpdate, logs[1].Action)
}
