package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/otcheredev/therapisttrack-records/internal/fields"
	"github.com/otcheredev/therapisttrack-records/internal/metrics"
	"github.com/otcheredev/therapisttrack-records/internal/models"
	"github.com/otcheredev/therapisttrack-records/internal/query"
	"github.com/otcheredev/therapisttrack-records/internal/services"
)

// RecordHandler serves patient records and their search.
type RecordHandler struct {
	responder
	records *services.RecordService
	search  *services.SearchService
}

// NewRecordHandler creates a record handler
func NewRecordHandler(records *services.RecordService, search *services.SearchService, m *metrics.Collector) *RecordHandler {
	return &RecordHandler{responder: responder{metrics: m}, records: records, search: search}
}

// Routes mounts the record endpoints
func (h *RecordHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/", h.Get)
	r.Put("/", h.Edit)
	r.Delete("/", h.Delete)
	r.Post("/search", h.Search)
	r.Get("/search", h.Fields)
	return r
}

// searchRequest is the body of both search endpoints. limit, page and the three lists must be
// present, even if zero or empty. File search also needs recordId and category.
type searchRequest struct {
	DoctorID string             `json:"doctorId" validate:"required"`
	RecordID string             `json:"recordId"`
	Category *string            `json:"category"`
	Limit    *int               `json:"limit" validate:"required"`
	Page     *int               `json:"page" validate:"required"`
	Fields   []query.FieldRef   `json:"fields" validate:"required,dive"`
	Sorts    []query.SortSpec   `json:"sorts" validate:"required,dive"`
	Filters  []query.FilterSpec `json:"filters" validate:"required,dive"`
}

func (s searchRequest) query() query.Request {
	return query.Request{
		Limit:   *s.Limit,
		Page:    *s.Page,
		Fields:  s.Fields,
		Filters: s.Filters,
		Sorts:   s.Sorts,
	}
}

// Create stores a new record
func (h *RecordHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRecordRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	record, err := h.records.Create(r.Context(), &req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"recordId": record.ID})
}

// Get returns a record with its template-annotated fields
func (h *RecordHandler) Get(w http.ResponseWriter, r *http.Request) {
	params, err := queryParams(r, "doctorId", "recordId")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	view, err := h.records.Get(r.Context(), params[0], params[1])
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"recordId":   view.RecordID,
		"templateId": view.TemplateID,
		"categories": view.Categories,
		"createdAt":  fields.FormatDate(view.CreatedAt),
		"patient": map[string]any{
			"names":     view.Names,
			"lastnames": view.LastNames,
			"fields":    view.Fields,
		},
	})
}

// Edit replaces the patient data
func (h *RecordHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var req models.EditRecordRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.records.Edit(r.Context(), &req); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// Delete removes a record
func (h *RecordHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req models.RecordRefRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.records.Delete(r.Context(), &req); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// Search filters, sorts and pages the doctor's records
func (h *RecordHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	total, items, err := h.search.SearchRecords(r.Context(), req.DoctorID, req.query())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	records := make([]map[string]any, 0, len(items))
	for _, item := range items {
		records = append(records, map[string]any{
			"recordId":   item.RecordID,
			"templateId": item.TemplateID,
			"createdAt":  fields.FormatDate(item.CreatedAt),
			"patient": map[string]any{
				"names":     item.Names,
				"lastNames": item.LastNames,
				"fields":    item.Fields,
			},
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": total, "records": records})
}

// Fields lists the fields that can be searched
func (h *RecordHandler) Fields(w http.ResponseWriter, r *http.Request) {
	params, err := queryParams(r, "doctorId")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	refs, err := h.search.ListAvailableFields(r.Context(), models.PatientTemplate, params[0])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fields": refs})
}
