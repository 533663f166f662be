package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/otcheredev/therapisttrack-records/internal/apperr"
	"github.com/otcheredev/therapisttrack-records/internal/fields"
	"github.com/otcheredev/therapisttrack-records/internal/models"
	"github.com/otcheredev/therapisttrack-records/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentRenameToSameName(t *testing.T) {
	f := newFixture(t)

	const n = 8
	ids := make([]string, n)
	for i := range ids {
		ids[i] = f.createTemplate(t, models.PatientTemplate, fmt.Sprintf("Plantilla %d", i), nil).ID.String()
	}

	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.templates.Rename(f.ctx, models.PatientTemplate, &models.RenameTemplateRequest{
				DoctorID: f.doctorID, TemplateID: ids[i], Name: "Comun",
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, apperr.RecordsUsing, apperr.KindOf(err), "got %v", err)
	}
	assert.Equal(t, 1, succeeded)

	list, err := f.templates.List(f.ctx, models.PatientTemplate, f.doctorID)
	require.NoError(t, err)
	named := 0
	for _, tmpl := range list {
		if tmpl.Name == "Comun" {
			named++
		}
	}
	assert.Equal(t, 1, named)
}

// writeOrder numbers template and record writes in the order they reach the store.
type writeOrder struct {
	*repository.MemoryStore

	seq           atomic.Int64
	mu            sync.Mutex
	templateWrite int64
	recordWrites  map[uuid.UUID]int64
}

func (s *writeOrder) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	return s.MemoryStore.Transaction(ctx, func(repository.Store) error { return fn(s) })
}

func (s *writeOrder) UpdateTemplate(ctx context.Context, t *models.Template) error {
	if err := s.MemoryStore.UpdateTemplate(ctx, t); err != nil {
		return err
	}
	s.mu.Lock()
	s.templateWrite = s.seq.Add(1)
	s.mu.Unlock()
	return nil
}

func (s *writeOrder) note(id uuid.UUID) {
	s.mu.Lock()
	s.recordWrites[id] = s.seq.Add(1)
	s.mu.Unlock()
}

func (s *writeOrder) CreateRecord(ctx context.Context, r *models.Record) error {
	if err := s.MemoryStore.CreateRecord(ctx, r); err != nil {
		return err
	}
	s.note(r.ID)
	return nil
}

func (s *writeOrder) UpdateRecord(ctx context.Context, r *models.Record) error {
	if err := s.MemoryStore.UpdateRecord(ctx, r); err != nil {
		return err
	}
	s.note(r.ID)
	return nil
}

func holdsField(r *models.Record, name string) bool {
	for _, e := range r.Fields {
		if e.Name == name {
			return true
		}
	}
	return false
}

func TestDeleteFieldRacingRecordWrites(t *testing.T) {
	order := &writeOrder{recordWrites: map[uuid.UUID]int64{}}
	f := newFixtureWith(t, func(m *repository.MemoryStore) repository.Store {
		order.MemoryStore = m
		return order
	})

	tmpl := f.createTemplate(t, models.PatientTemplate, "General", nil,
		def("Edad", fields.Number, true),
		def("Nota", fields.Text, false),
	)
	existing := make([]*models.Record, 4)
	for i := range existing {
		existing[i] = f.createRecord(t, tmpl.ID, "Ana", fmt.Sprintf("Perez %d", i), input("Edad", 30+i))
	}

	withNote := func(age int) *models.PatientRequest {
		return &models.PatientRequest{
			Names:     ptr("Ana"),
			LastNames: ptr("Perez"),
			Fields:    []fields.Input{input("Edad", age), input("Nota", "seguimiento")},
		}
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []error
	)
	fail := func(err error) {
		mu.Lock()
		failed = append(failed, err)
		mu.Unlock()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		err := f.templates.DeleteField(f.ctx, models.PatientTemplate, &models.DeleteFieldRequest{
			DoctorID: f.doctorID, TemplateID: tmpl.ID.String(), Name: "Nota",
		})
		assert.NoError(t, err)
	}()
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.records.Create(f.ctx, &models.CreateRecordRequest{
				DoctorID: f.doctorID, TemplateID: tmpl.ID.String(), Patient: withNote(40 + i),
			})
			if err != nil {
				fail(err)
			}
		}(i)
	}
	for _, r := range existing {
		wg.Add(1)
		go func(r *models.Record) {
			defer wg.Done()
			err := f.records.Edit(f.ctx, &models.EditRecordRequest{
				DoctorID: f.doctorID, RecordID: r.ID.String(), Patient: withNote(50),
			})
			if err != nil {
				fail(err)
			}
		}(r)
	}
	wg.Wait()

	for _, err := range failed {
		assert.Equal(t, apperr.MissingFields, apperr.KindOf(err), "got %v", err)
	}

	order.mu.Lock()
	deletedAt := order.templateWrite
	writes := make(map[uuid.UUID]int64, len(order.recordWrites))
	for id, at := range order.recordWrites {
		writes[id] = at
	}
	order.mu.Unlock()
	require.NotZero(t, deletedAt)

	records, err := f.store.ListRecords(f.ctx, uuid.MustParse(f.doctorID))
	require.NoError(t, err)
	for i := range records {
		r := &records[i]
		if holdsField(r, "Nota") {
			assert.Less(t, writes[r.ID], deletedAt, "record %s was written with a deleted field", r.ID)
		}
		view, err := f.records.Get(f.ctx, f.doctorID, r.ID.String())
		require.NoError(t, err)
		for _, field := range view.Fields {
			assert.NotEqual(t, "Nota", field.Name)
		}
	}
}

// gatedStore blocks the first template read after arm until release is closed.
type gatedStore struct {
	*repository.MemoryStore

	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (s *gatedStore) GetTemplate(ctx context.Context, id uuid.UUID) (*models.Template, error) {
	t, err := s.MemoryStore.GetTemplate(ctx, id)
	if s.armed.CompareAndSwap(true, false) {
		close(s.entered)
		<-s.release
	}
	return t, err
}

func TestCacheFillDoesNotOutliveConcurrentWrite(t *testing.T) {
	gate := &gatedStore{entered: make(chan struct{}), release: make(chan struct{})}
	f := newFixtureWith(t, func(m *repository.MemoryStore) repository.Store {
		gate.MemoryStore = m
		return gate
	})
	tmpl := f.createTemplate(t, models.PatientTemplate, "General", nil)
	ref := tmpl.ID.String()

	gate.armed.Store(true)
	readDone := make(chan error, 1)
	go func() {
		_, err := f.templates.Get(f.ctx, models.PatientTemplate, f.doctorID, ref)
		readDone <- err
	}()
	<-gate.entered

	renameDone := make(chan error, 1)
	go func() {
		renameDone <- f.templates.Rename(f.ctx, models.PatientTemplate, &models.RenameTemplateRequest{
			DoctorID: f.doctorID, TemplateID: ref, Name: "Adultos",
		})
	}()

	close(gate.release)
	require.NoError(t, <-readDone)
	require.NoError(t, <-renameDone)

	got, err := f.templates.Get(f.ctx, models.PatientTemplate, f.doctorID, ref)
	require.NoError(t, err)
	assert.Equal(t, "Adultos", got.Name)
}
