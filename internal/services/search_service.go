package services

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/therapisttrack-records/internal/apperr"
	"github.com/otcheredev/therapisttrack-records/internal/fields"
	"github.com/otcheredev/therapisttrack-records/internal/models"
	"github.com/otcheredev/therapisttrack-records/internal/query"
	"github.com/otcheredev/therapisttrack-records/internal/repository"
)

// SearchService runs filtered, sorted and paginated searches over a doctor's records and files.
type SearchService struct {
	*Core
}

// NewSearchService creates a search service
func NewSearchService(core *Core) *SearchService {
	return &SearchService{Core: core}
}

type recordDoc struct{ *models.Record }

// Field exposes the patient names as SHORT_TEXT pseudo-fields next to the template fields.
// The pseudo-field names match in any case.
func (d recordDoc) Field(name string) (fields.Value, bool) {
	switch {
	case strings.EqualFold(name, fields.ReservedNames):
		return fields.TextValue(fields.ShortText, d.Names), true
	case strings.EqualFold(name, fields.ReservedLastNames):
		return fields.TextValue(fields.ShortText, d.LastNames), true
	}
	return fields.Lookup(d.Fields, name)
}
func (d recordDoc) Created() time.Time { return d.CreatedAt }
func (d recordDoc) Key() string        { return d.ID.String() }

type fileDoc struct{ *models.File }

func (d fileDoc) Field(name string) (fields.Value, bool) { return fields.Lookup(d.Fields, name) }
func (d fileDoc) Created() time.Time                     { return d.CreatedAt }
func (d fileDoc) Key() string                            { return d.ID.String() }

// RecordItem is one search hit over records.
type RecordItem struct {
	RecordID   uuid.UUID
	TemplateID uuid.UUID
	CreatedAt  time.Time
	Names      string
	LastNames  string
	Fields     []FieldView
}

// filterDefinition is the definition a filter value is checked against. CHOICE values may be any
// option the field has in any of the templates.
func filterDefinition(templates []models.Template, spec query.FilterSpec) fields.Definition {
	def := fields.Definition{Name: spec.Name, Type: spec.Type}
	if spec.Type != fields.Choice {
		return def
	}
	for _, t := range templates {
		if d, _, ok := fields.Find(t.Fields, spec.Name); ok && d.Type == fields.Choice {
			for _, opt := range d.Options {
				if !slices.Contains(def.Options, opt) {
					def.Options = append(def.Options, opt)
				}
			}
		}
	}
	return def
}

// compile checks paging, filters and sorts against the doctor's templates.
func compile(templates []models.Template, req query.Request) (query.Query, error) {
	if req.Limit <= 0 || req.Page < 0 {
		return query.Query{}, apperr.New(apperr.MissingFields)
	}

	q := query.Query{Limit: req.Limit, Page: req.Page, Sorts: req.Sorts}
	for _, spec := range req.Filters {
		f, err := query.Compile(spec, filterDefinition(templates, spec))
		if err != nil {
			return query.Query{}, err
		}
		q.Filters = append(q.Filters, f)
	}
	for _, s := range req.Sorts {
		if !s.Type.Valid() {
			return query.Query{}, apperr.New(apperr.InvalidType)
		}
		if s.Mode != query.Asc && s.Mode != query.Desc {
			return query.Query{}, apperr.New(apperr.MissingFields)
		}
	}
	return q, nil
}

func templateIndex(templates []models.Template) map[uuid.UUID]*models.Template {
	index := make(map[uuid.UUID]*models.Template, len(templates))
	for i := range templates {
		index[templates[i].ID] = &templates[i]
	}
	return index
}

func definitionsOf(index map[uuid.UUID]*models.Template, id uuid.UUID) []fields.Definition {
	if t, ok := index[id]; ok {
		return t.Fields
	}
	return nil
}

// SearchRecords returns the requested page of the doctor's records and the number of matches.
func (s *SearchService) SearchRecords(ctx context.Context, doctorRef string, req query.Request) (int, []RecordItem, error) {
	doctorID, err := s.resolveDoctor(ctx, s.Store, doctorRef)
	if err != nil {
		return 0, nil, err
	}
	templates, err := s.Store.ListTemplates(ctx, doctorID, models.PatientTemplate)
	if err != nil {
		return 0, nil, internal(err, "list templates")
	}
	q, err := compile(templates, req)
	if err != nil {
		return 0, nil, err
	}

	records, err := s.Store.ListRecords(ctx, doctorID)
	if err != nil {
		return 0, nil, internal(err, "list records")
	}
	docs := make([]recordDoc, len(records))
	for i := range records {
		docs[i] = recordDoc{&records[i]}
	}

	total, page := query.Run(docs, q)
	s.Metrics.Searched("records", total)

	index := templateIndex(templates)
	items := make([]RecordItem, 0, len(page))
	for _, d := range page {
		items = append(items, RecordItem{
			RecordID:   d.ID,
			TemplateID: d.TemplateID,
			CreatedAt:  d.CreatedAt,
			Names:      d.Names,
			LastNames:  d.LastNames,
			Fields:     project(definitionsOf(index, d.TemplateID), d.Fields, req.Fields),
		})
	}
	return total, items, nil
}

// SearchFiles searches the files of one record. An empty category searches every category.
func (s *SearchService) SearchFiles(ctx context.Context, doctorRef, recordRef, category string, req query.Request) (int, []FileView, error) {
	doctorID, err := s.resolveDoctor(ctx, s.Store, doctorRef)
	if err != nil {
		return 0, nil, err
	}
	recordID, ok := parseID(recordRef)
	if !ok {
		return 0, nil, apperr.New(apperr.RecordNotFound)
	}
	if _, err := ownedRecord(ctx, s.Store, doctorID, recordID); err != nil {
		return 0, nil, err
	}

	templates, err := s.Store.ListTemplates(ctx, doctorID, models.FileTemplate)
	if err != nil {
		return 0, nil, internal(err, "list templates")
	}
	q, err := compile(templates, req)
	if err != nil {
		return 0, nil, err
	}

	files, err := s.Store.ListFiles(ctx, repository.FileScope{DoctorID: doctorID, RecordID: recordID, Category: category})
	if err != nil {
		return 0, nil, internal(err, "list files")
	}
	docs := make([]fileDoc, len(files))
	for i := range files {
		docs[i] = fileDoc{&files[i]}
	}

	total, page := query.Run(docs, q)
	s.Metrics.Searched("files", total)

	index := templateIndex(templates)
	items := make([]FileView, 0, len(page))
	for _, d := range page {
		items = append(items, newFileView(d.File, project(definitionsOf(index, d.TemplateID), d.Fields, req.Fields)))
	}
	return total, items, nil
}

// ListAvailableFields returns every distinct {name, type} declared by the doctor's templates of
// kind, in the order they are first seen.
func (s *SearchService) ListAvailableFields(ctx context.Context, kind models.TemplateKind, doctorRef string) ([]query.FieldRef, error) {
	doctorID, err := s.resolveDoctor(ctx, s.Store, doctorRef)
	if err != nil {
		return nil, err
	}
	templates, err := s.Store.ListTemplates(ctx, doctorID, kind)
	if err != nil {
		return nil, internal(err, "list templates")
	}

	refs := []query.FieldRef{}
	for _, t := range templates {
		for _, d := range t.Fields {
			ref := query.FieldRef{Name: d.Name, Type: d.Type}
			if !slices.Contains(refs, ref) {
				refs = append(refs, ref)
			}
		}
	}
	return refs, nil
}
