package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/otcheredev/therapisttrack-records/internal/cache"
	"github.com/otcheredev/therapisttrack-records/internal/repository"
	"github.com/otcheredev/therapisttrack-records/internal/storage"
)

const pingTimeout = 2 * time.Second

type HealthHandler struct {
	store repository.Store
	cache cache.Cache
	blobs storage.BlobStore
}

func NewHealthHandler(store repository.Store, c cache.Cache, blobs storage.BlobStore) *HealthHandler {
	if c == nil {
		c = cache.Nop{}
	}
	return &HealthHandler{store: store, cache: c, blobs: blobs}
}

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	response := healthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Services:  make(map[string]string),
	}

	// Check database
	if err := h.store.Ping(ctx); err != nil {
		response.Services["database"] = "unhealthy"
		response.Status = "degraded"
	} else {
		response.Services["database"] = "healthy"
	}

	// Without storage no file can be written or read
	if err := h.blobs.Ping(ctx); err != nil {
		response.Services["storage"] = "unhealthy"
		response.Status = "degraded"
	} else {
		response.Services["storage"] = "healthy"
	}

	// Cache failures only slow reads down
	if err := h.cache.Ping(ctx); err != nil {
		response.Services["cache"] = "unhealthy"
	} else {
		response.Services["cache"] = "healthy"
	}

	w.Header().Set("Content-Type", "application/json")
	if response.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(response)
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		http.Error(w, "Service not ready", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
