package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/otcheredev/therapisttrack-records/internal/apperr"
)

func writeError(w http.ResponseWriter, kind apperr.Kind) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(kind.Status())
	json.NewEncoder(w).Encode(map[string]any{
		"status":  kind.Status(),
		"message": kind.Message(),
	})
}
