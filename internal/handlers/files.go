package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/otcheredev/therapisttrack-records/internal/apperr"
	"github.com/otcheredev/therapisttrack-records/internal/fields"
	"github.com/otcheredev/therapisttrack-records/internal/metrics"
	"github.com/otcheredev/therapisttrack-records/internal/models"
	"github.com/otcheredev/therapisttrack-records/internal/services"
	"github.com/rs/zerolog/log"
)

// multipart parts beyond this stay on disk while the request is parsed
const multipartMemory = 32 << 20

// FileHandler serves files attached to records.
type FileHandler struct {
	responder
	files     *services.FileService
	search    *services.SearchService
	maxUpload int64
}

// NewFileHandler creates a file handler. maxUpload bounds the whole multipart body.
func NewFileHandler(files *services.FileService, search *services.SearchService, maxUpload int64, m *metrics.Collector) *FileHandler {
	return &FileHandler{responder: responder{metrics: m}, files: files, search: search, maxUpload: maxUpload}
}

// Routes mounts the file endpoints
func (h *FileHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/", h.Get)
	r.Put("/", h.Edit)
	r.Delete("/", h.Delete)
	r.Get("/content", h.Content)
	r.Post("/search", h.Search)
	r.Get("/search", h.Fields)
	return r
}

func fileView(v *services.FileView) map[string]any {
	return map[string]any{
		"fileId":     v.FileID,
		"recordId":   v.RecordID,
		"templateId": v.TemplateID,
		"name":       v.Name,
		"category":   v.Category,
		"createdAt":  fields.FormatDate(v.CreatedAt),
		"pages":      v.Pages,
		"fields":     v.Fields,
	}
}

// Create takes a multipart upload with a JSON "metadata" part and a "file" part
func (h *FileHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartMemory)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		h.fail(w, r, apperr.Wrap(apperr.MissingFields, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	var meta models.FileMetadata
	if err := json.Unmarshal([]byte(r.FormValue("metadata")), &meta); err != nil {
		h.fail(w, r, apperr.Wrap(apperr.MissingFields, err))
		return
	}
	if err := check(&meta); err != nil {
		h.fail(w, r, err)
		return
	}

	part, header, err := r.FormFile("file")
	if err != nil {
		h.fail(w, r, apperr.Wrap(apperr.MissingFields, err))
		return
	}
	defer part.Close()

	file, err := h.files.Create(r.Context(), &meta, services.Upload{
		ContentType: header.Header.Get("Content-Type"),
		Content:     part,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"fileId": file.ID, "pages": file.Pages})
}

// Get returns a file with its template-annotated fields
func (h *FileHandler) Get(w http.ResponseWriter, r *http.Request) {
	params, err := queryParams(r, "doctorId", "fileId")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	view, err := h.files.Get(r.Context(), params[0], params[1])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fileView(view))
}

// Content streams the stored bytes
func (h *FileHandler) Content(w http.ResponseWriter, r *http.Request) {
	params, err := queryParams(r, "doctorId", "fileId")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	rc, file, err := h.files.Content(r.Context(), params[0], params[1])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer rc.Close()

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(file.Size, 10))
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(file.Name))
	if _, err := io.Copy(w, rc); err != nil {
		log.Error().Err(err).Str("file_id", file.ID.String()).Msg("Failed to stream file content")
	}
}

// Edit replaces the file metadata
func (h *FileHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var req models.EditFileRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.files.Edit(r.Context(), &req); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// Delete removes a file and its content
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req models.FileRefRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.files.Delete(r.Context(), &req); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// Search filters, sorts and pages the files of a record
func (h *FileHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.RecordID == "" || req.Category == nil {
		h.fail(w, r, apperr.New(apperr.MissingFields))
		return
	}

	total, items, err := h.search.SearchFiles(r.Context(), req.DoctorID, req.RecordID, *req.Category, req.query())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	files := make([]map[string]any, 0, len(items))
	for i := range items {
		files = append(files, fileView(&items[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": total, "files": files})
}

// Fields lists the fields that can be searched
func (h *FileHandler) Fields(w http.ResponseWriter, r *http.Request) {
	params, err := queryParams(r, "doctorId")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	refs, err := h.search.ListAvailableFields(r.Context(), models.FileTemplate, params[0])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fields": refs})
}
