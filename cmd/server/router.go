package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/otcheredev/therapisttrack-records/internal/cache"
	"github.com/otcheredev/therapisttrack-records/internal/config"
	"github.com/otcheredev/therapisttrack-records/internal/handlers"
	"github.com/otcheredev/therapisttrack-records/internal/metrics"
	"github.com/otcheredev/therapisttrack-records/internal/middleware"
	"github.com/otcheredev/therapisttrack-records/internal/models"
	"github.com/otcheredev/therapisttrack-records/internal/repository"
	"github.com/otcheredev/therapisttrack-records/internal/services"
	"github.com/otcheredev/therapisttrack-records/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// app is everything the router needs
type app struct {
	cfg      *config.Config
	store    repository.Store
	cache    cache.Cache
	blobs    storage.BlobStore
	core     *services.Core
	metrics  *metrics.Collector
	gatherer prometheus.Gatherer
}

func newRouter(a *app) http.Handler {
	templates := services.NewTemplateService(a.core, a.cache, a.cfg.Cache.TTL)
	records := services.NewRecordService(a.core, templates)
	files := services.NewFileService(a.core, templates, a.blobs)
	search := services.NewSearchService(a.core)
	users := services.NewUserService(a.core)

	healthHandler := handlers.NewHealthHandler(a.store, a.cache, a.blobs)
	patientTemplates := handlers.NewTemplateHandler(templates, models.PatientTemplate, a.metrics)
	fileTemplates := handlers.NewTemplateHandler(templates, models.FileTemplate, a.metrics)
	recordHandler := handlers.NewRecordHandler(records, search, a.metrics)
	fileHandler := handlers.NewFileHandler(files, search, a.cfg.Storage.MaxSize, a.metrics)
	userHandler := handlers.NewUserHandler(users, a.metrics)

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.Metrics(a.metrics))
	r.Use(chimiddleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.cfg.CORS.AllowedOrigins,
		AllowedMethods:   a.cfg.CORS.AllowedMethods,
		AllowedHeaders:   a.cfg.CORS.AllowedHeaders,
		ExposedHeaders:   []string{"Content-Length", "Content-Type", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health endpoints (no authentication required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	if a.cfg.Metrics.Enabled && a.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: a.cfg.RateLimit.RequestsPerSecond,
			Burst:             a.cfg.RateLimit.Burst,
		}))
		if a.cfg.Auth.Enabled {
			r.Use(middleware.Auth(middleware.AuthConfig{Secret: a.cfg.Auth.Secret, Issuer: a.cfg.Auth.Issuer}))
		}

		r.Mount("/doctor/PatientTemplate", patientTemplates.Routes())
		r.Mount("/doctor/FileTemplate", fileTemplates.Routes())
		r.Mount("/records", recordHandler.Routes())
		r.Mount("/files", fileHandler.Routes())
		r.Mount("/users", userHandler.Routes())
		r.Get("/audit", userHandler.AuditLogs)
	})

	return r
}
