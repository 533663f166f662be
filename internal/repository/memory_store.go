package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/therapisttrack-records/internal/models"
	"gorm.io/datatypes"
)

var (
	_ Store = (*GormStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

// MemoryStore implements Store in process. It mirrors the postgres constraints the services rely
// on: the (doctor, kind, name) uniqueness of templates and the primary keys.
type MemoryStore struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	users   map[string]*models.User
	doctors map[uuid.UUID]*models.Doctor

	templates     map[uuid.UUID]*models.Template
	templateOrder []uuid.UUID
	records       map[uuid.UUID]*models.Record
	recordOrder   []uuid.UUID
	files         map[uuid.UUID]*models.File
	fileOrder     []uuid.UUID
	audit         []models.AuditLog

	now func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]*models.User),
		doctors:   make(map[uuid.UUID]*models.Doctor),
		templates: make(map[uuid.UUID]*models.Template),
		records:   make(map[uuid.UUID]*models.Record),
		files:     make(map[uuid.UUID]*models.File),
		now:       monotonicClock(),
	}
}

// monotonicClock never repeats a reading, so creation order is total. Callers hold mu.
func monotonicClock() func() time.Time {
	var last time.Time
	return func() time.Time {
		t := time.Now().UTC().Truncate(time.Microsecond)
		if !t.After(last) {
			t = last.Add(time.Microsecond)
		}
		last = t
		return t
	}
}

// Transaction serializes fn against other transactions. Writes are not rolled back on error, so
// callers finish every check before their first write.
func (m *MemoryStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(m)
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func notFound(what string) error {
	return fmt.Errorf("failed to get %s: %w", what, ErrNotFound)
}

func cloneUser(u *models.User) *models.User {
	c := *u
	c.Phones = append(datatypes.JSONSlice[string]{}, u.Phones...)
	c.Mails = append(datatypes.JSONSlice[string]{}, u.Mails...)
	if u.Doctor != nil {
		d := *u.Doctor
		c.Doctor = &d
	}
	if u.Assistant != nil {
		a := *u.Assistant
		c.Assistant = &a
	}
	return &c
}

func (m *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[user.ID]; exists {
		return fmt.Errorf("failed to create user: %w", ErrDuplicate)
	}

	now := m.now()
	user.CreatedAt, user.UpdatedAt = now, now
	if user.Doctor != nil {
		if user.Doctor.ID == uuid.Nil {
			user.Doctor.ID = uuid.New()
		}
		user.Doctor.UserID = user.ID
		d := *user.Doctor
		m.doctors[d.ID] = &d
	}
	if user.Assistant != nil {
		if user.Assistant.ID == uuid.Nil {
			user.Assistant.ID = uuid.New()
		}
		user.Assistant.UserID = user.ID
	}
	m.users[user.ID] = cloneUser(user)
	return nil
}

func (m *MemoryStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, notFound("user")
	}
	return cloneUser(u), nil
}

func (m *MemoryStore) ListUsers(ctx context.Context) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		if u.IsActive {
			users = append(users, *cloneUser(u))
		}
	}
	slices.SortFunc(users, func(a, b models.User) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return users, nil
}

func (m *MemoryStore) UpdateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.ID]; !ok {
		return fmt.Errorf("failed to update user: %w", ErrNotFound)
	}
	user.UpdatedAt = m.now()
	if user.Doctor != nil {
		d := *user.Doctor
		m.doctors[d.ID] = &d
	}
	m.users[user.ID] = cloneUser(user)
	return nil
}

func (m *MemoryStore) GetActiveDoctor(ctx context.Context, id uuid.UUID) (*models.Doctor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.doctors[id]
	if !ok {
		return nil, notFound("doctor")
	}
	if u, ok := m.users[d.UserID]; !ok || !u.IsActive {
		return nil, notFound("doctor")
	}
	c := *d
	return &c, nil
}

func (m *MemoryStore) nameTaken(t *models.Template) bool {
	for _, other := range m.templates {
		if other.ID != t.ID && other.DoctorID == t.DoctorID && other.Kind == t.Kind && other.Name == t.Name {
			return true
		}
	}
	return false
}

func (m *MemoryStore) CreateTemplate(ctx context.Context, template *models.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if template.ID == uuid.Nil {
		template.ID = uuid.New()
	}
	if _, exists := m.templates[template.ID]; exists || m.nameTaken(template) {
		return fmt.Errorf("failed to create template: %w", ErrDuplicate)
	}
	if template.CreatedAt.IsZero() {
		template.CreatedAt = m.now()
	}
	m.templates[template.ID] = template.Clone()
	m.templateOrder = append(m.templateOrder, template.ID)
	return nil
}

func (m *MemoryStore) GetTemplate(ctx context.Context, id uuid.UUID) (*models.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.templates[id]
	if !ok {
		return nil, notFound("template")
	}
	return t.Clone(), nil
}

// Transaction already serializes writers, so both lock flavours are plain reads.
func (m *MemoryStore) LockTemplate(ctx context.Context, id uuid.UUID) (*models.Template, error) {
	return m.GetTemplate(ctx, id)
}

func (m *MemoryStore) LockTemplateShared(ctx context.Context, id uuid.UUID) (*models.Template, error) {
	return m.GetTemplate(ctx, id)
}

func (m *MemoryStore) FindTemplateByName(ctx context.Context, doctorID uuid.UUID, kind models.TemplateKind, name string) (*models.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, id := range m.templateOrder {
		t := m.templates[id]
		if t.DoctorID == doctorID && t.Kind == kind && t.Name == name {
			return t.Clone(), nil
		}
	}
	return nil, notFound("template")
}

func (m *MemoryStore) ListTemplates(ctx context.Context, doctorID uuid.UUID, kind models.TemplateKind) ([]models.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var templates []models.Template
	for _, id := range m.templateOrder {
		t := m.templates[id]
		if t.DoctorID == doctorID && t.Kind == kind {
			templates = append(templates, *t.Clone())
		}
	}
	return templates, nil
}

func (m *MemoryStore) UpdateTemplate(ctx context.Context, template *models.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.templates[template.ID]; !ok {
		return fmt.Errorf("failed to update template: %w", ErrNotFound)
	}
	if m.nameTaken(template) {
		return fmt.Errorf("failed to update template: %w", ErrDuplicate)
	}
	m.templates[template.ID] = template.Clone()
	return nil
}

func (m *MemoryStore) DeleteTemplate(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.templates[id]; !ok {
		return fmt.Errorf("failed to delete template: %w", ErrNotFound)
	}
	delete(m.templates, id)
	m.templateOrder = removeID(m.templateOrder, id)
	return nil
}

func (m *MemoryStore) CountRecordsByTemplate(ctx context.Context, templateID uuid.UUID) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, r := range m.records {
		if r.TemplateID == templateID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) CountFilesByTemplate(ctx context.Context, templateID uuid.UUID) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, f := range m.files {
		if f.TemplateID == templateID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) CreateRecord(ctx context.Context, record *models.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if _, exists := m.records[record.ID]; exists {
		return fmt.Errorf("failed to create record: %w", ErrDuplicate)
	}
	now := m.now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	m.records[record.ID] = record.Clone()
	m.recordOrder = append(m.recordOrder, record.ID)
	return nil
}

func (m *MemoryStore) GetRecord(ctx context.Context, id uuid.UUID) (*models.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[id]
	if !ok {
		return nil, notFound("record")
	}
	return r.Clone(), nil
}

func (m *MemoryStore) ListRecords(ctx context.Context, doctorID uuid.UUID) ([]models.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var records []models.Record
	for _, id := range m.recordOrder {
		if r := m.records[id]; r.DoctorID == doctorID {
			records = append(records, *r.Clone())
		}
	}
	return records, nil
}

func (m *MemoryStore) UpdateRecord(ctx context.Context, record *models.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[record.ID]; !ok {
		return fmt.Errorf("failed to update record: %w", ErrNotFound)
	}
	record.UpdatedAt = m.now()
	m.records[record.ID] = record.Clone()
	return nil
}

func (m *MemoryStore) DeleteRecord(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[id]; !ok {
		return fmt.Errorf("failed to delete record: %w", ErrNotFound)
	}
	delete(m.records, id)
	m.recordOrder = removeID(m.recordOrder, id)
	return nil
}

func (m *MemoryStore) CountFilesByRecord(ctx context.Context, recordID uuid.UUID) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, f := range m.files {
		if f.RecordID == recordID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) CreateFile(ctx context.Context, file *models.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if file.ID == uuid.Nil {
		file.ID = uuid.New()
	}
	if _, exists := m.files[file.ID]; exists {
		return fmt.Errorf("failed to create file: %w", ErrDuplicate)
	}
	now := m.now()
	if file.CreatedAt.IsZero() {
		file.CreatedAt = now
	}
	file.UpdatedAt = now
	m.files[file.ID] = file.Clone()
	m.fileOrder = append(m.fileOrder, file.ID)
	return nil
}

func (m *MemoryStore) GetFile(ctx context.Context, id uuid.UUID) (*models.File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.files[id]
	if !ok {
		return nil, notFound("file")
	}
	return f.Clone(), nil
}

func (m *MemoryStore) ListFiles(ctx context.Context, scope FileScope) ([]models.File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var files []models.File
	for _, id := range m.fileOrder {
		f := m.files[id]
		if scope.DoctorID != uuid.Nil && f.DoctorID != scope.DoctorID {
			continue
		}
		if scope.RecordID != uuid.Nil && f.RecordID != scope.RecordID {
			continue
		}
		if scope.Category != "" && f.Category != scope.Category {
			continue
		}
		files = append(files, *f.Clone())
	}
	return files, nil
}

func (m *MemoryStore) UpdateFile(ctx context.Context, file *models.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.files[file.ID]; !ok {
		return fmt.Errorf("failed to update file: %w", ErrNotFound)
	}
	file.UpdatedAt = m.now()
	m.files[file.ID] = file.Clone()
	return nil
}

func (m *MemoryStore) DeleteFile(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.files[id]; !ok {
		return fmt.Errorf("failed to delete file: %w", ErrNotFound)
	}
	delete(m.files, id)
	m.fileOrder = removeID(m.fileOrder, id)
	return nil
}

func (m *MemoryStore) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = m.now()
	}
	m.audit = append(m.audit, *log)
	return nil
}

func (m *MemoryStore) ListAuditLogs(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]models.AuditLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var logs []models.AuditLog
	for i := len(m.audit) - 1; i >= 0; i-- {
		if m.audit[i].DoctorID == doctorID {
			logs = append(logs, m.audit[i])
		}
	}
	if offset > 0 {
		if offset >= len(logs) {
			return nil, nil
		}
		logs = logs[offset:]
	}
	if limit > 0 && limit < len(logs) {
		logs = logs[:limit]
	}
	return logs, nil
}

func removeID(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	return slices.DeleteFunc(ids, func(x uuid.UUID) bool { return x == id })
}
