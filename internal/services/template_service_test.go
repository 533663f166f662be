package services

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/otcheredev/therapisttrack-records/internal/apperr"
	"github.com/otcheredev/therapisttrack-records/internal/cache"
	"github.com/otcheredev/therapisttrack-records/internal/fields"
	"github.com/otcheredev/therapisttrack-records/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileTemplateFields() []models.FieldDefinitionRequest {
	return []models.FieldDefinitionRequest{
		def("Edad", fields.Number, true),
		def("Hijos", fields.Text, true),
		def("Estado Civil", fields.Choice, true, "Soltero", "Casado"),
		def("Fecha de Nacimiento", fields.Date, false),
	}
}

func TestCreateFileTemplateRejectsDuplicateName(t *testing.T) {
	f := newFixture(t)

	tmpl := f.createTemplate(t, models.FileTemplate, "testTemplate", nil, fileTemplateFields()...)
	assert.Equal(t, models.FileTemplate, tmpl.Kind)
	assert.Len(t, tmpl.Fields, 4)
	assert.Empty(t, tmpl.Categories)

	_, err := f.templates.Create(f.ctx, models.FileTemplate, &models.CreateTemplateRequest{
		DoctorID: f.doctorID,
		Name:     "testTemplate",
		Fields:   fileTemplateFields(),
	})
	assertKind(t, err, apperr.RecordsUsing)

	// the same name is free for the other kind
	f.createTemplate(t, models.PatientTemplate, "testTemplate", nil, def("Edad", fields.Number, true))
}

func TestCreateTemplateChecksFieldsBeforeDoctor(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		kind   models.TemplateKind
		doctor string
		fields []models.FieldDefinitionRequest
		want   apperr.Kind
	}{
		{"unknown type", models.PatientTemplate, uuid.NewString(), []models.FieldDefinitionRequest{def("Edad", "INTEGER", true)}, apperr.InvalidType},
		{"choice without options", models.PatientTemplate, f.doctorID, []models.FieldDefinitionRequest{def("Sexo", fields.Choice, true)}, apperr.MissingFields},
		{"duplicate names", models.FileTemplate, f.doctorID, []models.FieldDefinitionRequest{def("Edad", fields.Number, true), def(" Edad ", fields.Text, false)}, apperr.DuplicateFieldNames},
		{"reserved names", models.PatientTemplate, f.doctorID, []models.FieldDefinitionRequest{def("Nombres", fields.Text, true)}, apperr.ReservedFieldNames},
		{"unknown doctor", models.PatientTemplate, uuid.NewString(), []models.FieldDefinitionRequest{def("Edad", fields.Number, true)}, apperr.DoctorNotFound},
		{"malformed doctor", models.PatientTemplate, "not-a-uuid", []models.FieldDefinitionRequest{def("Edad", fields.Number, true)}, apperr.DoctorNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.templates.Create(f.ctx, tt.kind, &models.CreateTemplateRequest{
				DoctorID: tt.doctor,
				Name:     "General",
				Fields:   tt.fields,
			})
			assertKind(t, err, tt.want)
		})
	}
}

func TestReservedNamesOnlyApplyToPatientTemplates(t *testing.T) {
	f := newFixture(t)
	tmpl := f.createTemplate(t, models.FileTemplate, "Informe", nil, def("Nombres", fields.Text, true))
	assert.Equal(t, "Nombres", tmpl.Fields[0].Name)
}

func TestEditFieldToReservedName(t *testing.T) {
	f := newFixture(t)
	tmpl := f.createTemplate(t, models.PatientTemplate, "General", nil, def("Edad", fields.Number, true))

	field := def("Apellidos", fields.Text, true)
	err := f.templates.EditField(f.ctx, models.PatientTemplate, &models.EditFieldRequest{
		DoctorID:     f.doctorID,
		TemplateID:   tmpl.ID.String(),
		OldFieldName: "Edad",
		FieldData:    &field,
	})
	assertKind(t, err, apperr.ReservedFieldNames)
}

func TestFieldMutations(t *testing.T) {
	f := newFixture(t)
	tmpl := f.createTemplate(t, models.PatientTemplate, "General", []string{"Examenes"},
		def("Edad", fields.Number, true),
		def("Sexo", fields.Choice, false, "F", "M"),
	)
	ref := tmpl.ID.String()

	peso := def("Peso", fields.Float, false)
	require.NoError(t, f.templates.AddField(f.ctx, models.PatientTemplate, &models.AddFieldRequest{DoctorID: f.doctorID, TemplateID: ref, Field: &peso}))

	dup := def("Edad", fields.Text, false)
	err := f.templates.AddField(f.ctx, models.PatientTemplate, &models.AddFieldRequest{DoctorID: f.doctorID, TemplateID: ref, Field: &dup})
	assertKind(t, err, apperr.RecordsUsing)

	err = f.templates.EditField(f.ctx, models.PatientTemplate, &models.EditFieldRequest{DoctorID: f.doctorID, TemplateID: ref, OldFieldName: "Altura", FieldData: &dup})
	assertKind(t, err, apperr.FieldNotFound)

	clash := def("Sexo", fields.Text, false)
	err = f.templates.EditField(f.ctx, models.PatientTemplate, &models.EditFieldRequest{DoctorID: f.doctorID, TemplateID: ref, OldFieldName: "Edad", FieldData: &clash})
	assertKind(t, err, apperr.RecordsUsing)

	years := def("Edad en anos", fields.Number, true)
	require.NoError(t, f.templates.EditField(f.ctx, models.PatientTemplate, &models.EditFieldRequest{DoctorID: f.doctorID, TemplateID: ref, OldFieldName: "Edad", FieldData: &years}))

	err = f.templates.DeleteField(f.ctx, models.PatientTemplate, &models.DeleteFieldRequest{DoctorID: f.doctorID, TemplateID: ref, Name: "Altura"})
	assertKind(t, err, apperr.FieldNotFound)
	require.NoError(t, f.templates.DeleteField(f.ctx, models.PatientTemplate, &models.DeleteFieldRequest{DoctorID: f.doctorID, TemplateID: ref, Name: "Sexo"}))

	got, err := f.templates.Get(f.ctx, models.PatientTemplate, f.doctorID, ref)
	require.NoError(t, err)
	names := make([]string, 0, len(got.Fields))
	for _, d := range got.Fields {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"Edad en anos", "Peso"}, names)
	assert.True(t, got.LastUpdate.After(tmpl.LastUpdate) || got.LastUpdate.Equal(tmpl.LastUpdate))
}

func TestRenameTemplate(t *testing.T) {
	f := newFixture(t)
	general := f.createTemplate(t, models.PatientTemplate, "General", nil, def("Edad", fields.Number, true))
	f.createTemplate(t, models.PatientTemplate, "Pediatria", nil, def("Edad", fields.Number, true))

	rename := func(templateID, name string) error {
		return f.templates.Rename(f.ctx, models.PatientTemplate, &models.RenameTemplateRequest{
			DoctorID:   f.doctorID,
			TemplateID: templateID,
			Name:       name,
		})
	}

	assertKind(t, rename(general.ID.String(), "Pediatria"), apperr.RecordsUsing)
	assert.NoError(t, rename(general.ID.String(), "General"))
	assert.NoError(t, rename(general.ID.String(), "Adultos"))
	assertKind(t, rename(uuid.NewString(), "Otro"), apperr.TemplateNotFound)

	got, err := f.templates.Get(f.ctx, models.PatientTemplate, f.doctorID, general.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "Adultos", got.Name)
}

func TestOwnershipPriority(t *testing.T) {
	f := newFixture(t)
	tmpl := f.createTemplate(t, models.PatientTemplate, "General", nil, def("Edad", fields.Number, true))
	other := f.registerDoctor(t, "auth0|doctor-2", "doctor2@example.com")

	_, err := f.templates.Get(f.ctx, models.PatientTemplate, uuid.NewString(), uuid.NewString())
	assertKind(t, err, apperr.DoctorNotFound)

	_, err = f.templates.Get(f.ctx, models.PatientTemplate, other, uuid.NewString())
	assertKind(t, err, apperr.TemplateNotFound)

	_, err = f.templates.Get(f.ctx, models.PatientTemplate, other, tmpl.ID.String())
	assertKind(t, err, apperr.DoctorIsNotOwner)

	_, err = f.templates.Get(f.ctx, models.FileTemplate, f.doctorID, tmpl.ID.String())
	assertKind(t, err, apperr.TemplateNotFound)

	field := def("Peso", fields.Float, false)
	err = f.templates.AddField(f.ctx, models.PatientTemplate, &models.AddFieldRequest{DoctorID: other, TemplateID: tmpl.ID.String(), Field: &field})
	assertKind(t, err, apperr.DoctorIsNotOwner)
}

func TestDeleteTemplateWithDependants(t *testing.T) {
	f := newFixture(t)
	patient := f.createTemplate(t, models.PatientTemplate, "General", []string{"Examenes"}, def("Edad", fields.Number, true))
	file := f.createTemplate(t, models.FileTemplate, "Examen", nil, def("Resultado", fields.Text, false))
	unused := f.createTemplate(t, models.FileTemplate, "Sin uso", nil, def("Resultado", fields.Text, false))

	record := f.createRecord(t, patient.ID, "Maria", "Perez", input("Edad", 30))
	f.uploadFile(t, record.ID, file.ID, "hemograma.txt", "Examenes")

	del := func(kind models.TemplateKind, id uuid.UUID) error {
		return f.templates.Delete(f.ctx, kind, &models.TemplateRefRequest{DoctorID: f.doctorID, TemplateID: id.String()})
	}

	assertKind(t, del(models.PatientTemplate, patient.ID), apperr.OperationRejected)
	assertKind(t, del(models.FileTemplate, file.ID), apperr.OperationRejected)
	require.NoError(t, del(models.FileTemplate, unused.ID))

	_, err := f.templates.Get(f.ctx, models.FileTemplate, f.doctorID, unused.ID.String())
	assertKind(t, err, apperr.TemplateNotFound)
}

func TestListTemplatesByKind(t *testing.T) {
	f := newFixture(t)
	f.createTemplate(t, models.PatientTemplate, "General", nil, def("Edad", fields.Number, true))
	f.createTemplate(t, models.PatientTemplate, "Pediatria", nil, def("Edad", fields.Number, true))
	f.createTemplate(t, models.FileTemplate, "Examen", nil, def("Resultado", fields.Text, false))

	patients, err := f.templates.List(f.ctx, models.PatientTemplate, f.doctorID)
	require.NoError(t, err)
	require.Len(t, patients, 2)
	assert.Equal(t, "General", patients[0].Name)
	assert.Equal(t, "Pediatria", patients[1].Name)

	other := f.registerDoctor(t, "auth0|doctor-2", "doctor2@example.com")
	none, err := f.templates.List(f.ctx, models.FileTemplate, other)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestTemplateCacheIsInvalidatedOnWrite(t *testing.T) {
	f := newFixture(t)
	tmpl := f.createTemplate(t, models.PatientTemplate, "General", nil, def("Edad", fields.Number, true))

	_, err := f.templates.Get(f.ctx, models.PatientTemplate, f.doctorID, tmpl.ID.String())
	require.NoError(t, err)
	_, err = f.cache.Get(f.ctx, cache.TemplateKey(tmpl.ID.String()))
	require.NoError(t, err)

	require.NoError(t, f.templates.Rename(f.ctx, models.PatientTemplate, &models.RenameTemplateRequest{
		DoctorID: f.doctorID, TemplateID: tmpl.ID.String(), Name: "Adultos",
	}))
	_, err = f.cache.Get(f.ctx, cache.TemplateKey(tmpl.ID.String()))
	assert.True(t, errors.Is(err, cache.ErrCacheMiss))

	first, err := f.templates.Get(f.ctx, models.PatientTemplate, f.doctorID, tmpl.ID.String())
	require.NoError(t, err)
	second, err := f.templates.Get(f.ctx, models.PatientTemplate, f.doctorID, tmpl.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "Adultos", first.Name)
	assert.Equal(t, first.Name, second.Name)
	assert.Equal(t, first.Fields, second.Fields)
}

func TestMutationsAreAudited(t *testing.T) {
	f := newFixture(t)
	tmpl := f.createTemplate(t, models.PatientTemplate, "General", nil, def("Edad", fields.Number, true))
	require.NoError(t, f.templates.Rename(f.ctx, models.PatientTemplate, &models.RenameTemplateRequest{
		DoctorID: f.doctorID, TemplateID: tmpl.ID.String(), Name: "Adultos",
	}))

	logs, err := f.users.AuditLogs(f.ctx, f.doctorID, 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, models.ActionUpdate, logs[0].Action)
	assert.Equal(t, models.ActionCreate, logs[1].Action)
	assert.Equal(t, models.ResourcePatientTemplate, logs[1].ResourceType)
	assert.Equal(t, tmpl.ID, logs[1].ResourceID)
}
