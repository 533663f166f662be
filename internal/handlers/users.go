package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/otcheredev/therapisttrack-records/internal/apperr"
	"github.com/otcheredev/therapisttrack-records/internal/metrics"
	"github.com/otcheredev/therapisttrack-records/internal/models"
	"github.com/otcheredev/therapisttrack-records/internal/services"
)

const defaultAuditPage = 50

// UserHandler serves accounts and the audit trail.
type UserHandler struct {
	responder
	users *services.UserService
}

// NewUserHandler creates a user handler
func NewUserHandler(users *services.UserService, m *metrics.Collector) *UserHandler {
	return &UserHandler{responder: responder{metrics: m}, users: users}
}

// Routes mounts the user endpoints
func (h *UserHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/register", h.Register)
	r.Put("/update", h.Update)
	r.Get("/list", h.List)
	r.Delete("/delete", h.Delete)
	r.Get("/{id}", h.Get)
	return r
}

// Register creates an account
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterUserRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	reg, err := h.users.Register(r.Context(), &req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": reg.ID, "roleId": reg.RoleID})
}

// Update replaces the editable account data
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateUserRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.users.Update(r.Context(), &req); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// Get returns one account
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "roleId": user.RoleID()})
}

// List returns every active account
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

// Delete deactivates an account
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req models.UserRefRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.users.Deactivate(r.Context(), req.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// AuditLogs returns a page of the doctor's audit trail, newest first
func (h *UserHandler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	params, err := queryParams(r, "doctorId")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	limit, offset := defaultAuditPage, 0
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			h.fail(w, r, apperr.Wrap(apperr.MissingFields, err))
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil {
			h.fail(w, r, apperr.Wrap(apperr.MissingFields, err))
			return
		}
	}

	logs, err := h.users.AuditLogs(r.Context(), params[0], limit, offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}
