package services

import (
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/therapisttrack-records/internal/fields"
	"github.com/otcheredev/therapisttrack-records/internal/models"
	"github.com/otcheredev/therapisttrack-records/internal/query"
)

// FieldView is a stored value annotated with its current definition. Value is nil when the entity
// holds nothing for the field.
type FieldView struct {
	Name        string      `json:"name"`
	Type        fields.Type `json:"type"`
	Options     []string    `json:"options"`
	Required    bool        `json:"required"`
	Description string      `json:"description"`
	Value       any         `json:"value"`
}

func fieldView(def fields.Definition, entries []fields.Entry) FieldView {
	view := FieldView{
		Name:        def.Name,
		Type:        def.Type,
		Options:     def.Options,
		Required:    def.Required,
		Description: def.Description,
	}
	if view.Options == nil {
		view.Options = []string{}
	}
	if v, ok := fields.Lookup(entries, def.Name); ok {
		view.Value = v.Interface()
	}
	return view
}

// enrich returns one view per current definition, in template order.
func enrich(defs []fields.Definition, entries []fields.Entry) []FieldView {
	views := make([]FieldView, 0, len(defs))
	for _, d := range defs {
		views = append(views, fieldView(d, entries))
	}
	return views
}

// project returns a view for each requested field the template declares. The declared type wins
// over the requested one.
func project(defs []fields.Definition, entries []fields.Entry, refs []query.FieldRef) []FieldView {
	views := make([]FieldView, 0, len(refs))
	for _, ref := range refs {
		if def, _, ok := fields.Find(defs, ref.Name); ok {
			views = append(views, fieldView(def, entries))
		}
	}
	return views
}

// RecordView is a record as returned by GetRecord.
type RecordView struct {
	RecordID   uuid.UUID
	TemplateID uuid.UUID
	Categories []string
	CreatedAt  time.Time
	Names      string
	LastNames  string
	Fields     []FieldView
}

// FileView is a file as returned by GetFile and SearchFiles.
type FileView struct {
	FileID     uuid.UUID
	RecordID   uuid.UUID
	TemplateID uuid.UUID
	Name       string
	Category   string
	CreatedAt  time.Time
	Pages      int
	Fields     []FieldView
}

func newFileView(f *models.File, fieldViews []FieldView) FileView {
	return FileView{
		FileID:     f.ID,
		RecordID:   f.RecordID,
		TemplateID: f.TemplateID,
		Name:       f.Name,
		Category:   f.Category,
		CreatedAt:  f.CreatedAt,
		Pages:      f.Pages,
		Fields:     fieldViews,
	}
}
