package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/otcheredev/therapisttrack-records/internal/fields"
	"github.com/otcheredev/therapisttrack-records/internal/metrics"
	"github.com/otcheredev/therapisttrack-records/internal/models"
	"github.com/otcheredev/therapisttrack-records/internal/services"
)

// TemplateHandler serves one template kind. Patient and file templates share every route.
type TemplateHandler struct {
	responder
	templates *services.TemplateService
	kind      models.TemplateKind
	idKey     string
}

// NewTemplateHandler creates a handler for kind
func NewTemplateHandler(templates *services.TemplateService, kind models.TemplateKind, m *metrics.Collector) *TemplateHandler {
	idKey := "patientTemplateId"
	if kind == models.FileTemplate {
		idKey = "fileTemplateId"
	}
	return &TemplateHandler{
		responder: responder{metrics: m},
		templates: templates,
		kind:      kind,
		idKey:     idKey,
	}
}

// Routes mounts the template endpoints
func (h *TemplateHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/", h.Get)
	r.Patch("/", h.Rename)
	r.Delete("/", h.Delete)
	r.Get("/list", h.List)
	r.Post("/fields", h.AddField)
	r.Put("/fields", h.EditField)
	r.Delete("/fields", h.DeleteField)
	return r
}

func templateView(t *models.Template) map[string]any {
	categories := []string(t.Categories)
	if categories == nil {
		categories = []string{}
	}
	defs := []fields.Definition(t.Fields)
	if defs == nil {
		defs = []fields.Definition{}
	}
	return map[string]any{
		"templateId": t.ID,
		"doctorId":   t.DoctorID,
		"name":       t.Name,
		"categories": categories,
		"lastUpdate": fields.FormatDate(t.LastUpdate),
		"fields":     defs,
	}
}

// Create registers a template
func (h *TemplateHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateTemplateRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	t, err := h.templates.Create(r.Context(), h.kind, &req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"data": map[string]any{h.idKey: t.ID, "doctorId": t.DoctorID},
	})
}

// Get returns a single template
func (h *TemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	params, err := queryParams(r, "doctorId", "templateId")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	t, err := h.templates.Get(r.Context(), h.kind, params[0], params[1])
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": templateView(t)})
}

// List returns every template of the doctor
func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	params, err := queryParams(r, "doctorId")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	templates, err := h.templates.List(r.Context(), h.kind, params[0])
	if err != nil {
		h.fail(w, r, err)
		return
	}

	views := make([]map[string]any, 0, len(templates))
	for i := range templates {
		views = append(views, templateView(&templates[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": views})
}

// Rename changes the template name
func (h *TemplateHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var req models.RenameTemplateRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.templates.Rename(r.Context(), h.kind, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// Delete removes a template
func (h *TemplateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req models.TemplateRefRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.templates.Delete(r.Context(), h.kind, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// AddField appends a field
func (h *TemplateHandler) AddField(w http.ResponseWriter, r *http.Request) {
	var req models.AddFieldRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.templates.AddField(r.Context(), h.kind, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// EditField replaces a field
func (h *TemplateHandler) EditField(w http.ResponseWriter, r *http.Request) {
	var req models.EditFieldRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.templates.EditField(r.Context(), h.kind, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// DeleteField removes a field
func (h *TemplateHandler) DeleteField(w http.ResponseWriter, r *http.Request) {
	var req models.DeleteFieldRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.templates.DeleteField(r.Context(), h.kind, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}
