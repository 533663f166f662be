package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/otcheredev/therapisttrack-records/internal/apperr"
	"github.com/otcheredev/therapisttrack-records/internal/metrics"
	"github.com/rs/zerolog/log"
)

const successMessage = "Request successful."

var validate = validator.New()

// responder writes the {status, message, ...} envelope every endpoint answers with.
type responder struct {
	metrics *metrics.Collector
}

// writeJSON writes payload merged into a success envelope.
func writeJSON(w http.ResponseWriter, status int, payload map[string]any) {
	body := map[string]any{
		"status":  status,
		"message": successMessage,
	}
	for k, v := range payload {
		body[k] = v
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError answers with the catalog status and message of err.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := kind.Status()

	event := log.Debug()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("code", kind.Code()).
		Str("path", r.URL.Path).
		Msg("Request failed")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"status":  status,
		"message": kind.Message(),
	})
}

func (rs responder) fail(w http.ResponseWriter, r *http.Request, err error) {
	if kind := apperr.KindOf(err); kind.Status() < http.StatusInternalServerError {
		rs.metrics.ValidationFailed(kind.Code())
	}
	writeError(w, r, err)
}

// check runs the struct tags of v. Any violation is a malformed request.
func check(v any) error {
	if err := validate.Struct(v); err != nil {
		return apperr.Wrap(apperr.MissingFields, err)
	}
	return nil
}

// decode reads a JSON body into v and checks it.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.New(apperr.MissingFields)
		}
		return apperr.Wrap(apperr.MissingFields, err)
	}
	return check(v)
}

// queryParams reads the named query parameters, all of which must be present.
func queryParams(r *http.Request, names ...string) ([]string, error) {
	q := r.URL.Query()
	out := make([]string, 0, len(names))
	for _, name := range names {
		v := q.Get(name)
		if v == "" {
			return nil, apperr.New(apperr.MissingFields)
		}
		out = append(out, v)
	}
	return out, nil
}
