package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/otcheredev/therapisttrack-records/internal/cache"
	"github.com/otcheredev/therapisttrack-records/internal/config"
	"github.com/otcheredev/therapisttrack-records/internal/database"
	"github.com/otcheredev/therapisttrack-records/internal/events"
	"github.com/otcheredev/therapisttrack-records/internal/fields"
	"github.com/otcheredev/therapisttrack-records/internal/metrics"
	"github.com/otcheredev/therapisttrack-records/internal/repository"
	"github.com/otcheredev/therapisttrack-records/internal/services"
	"github.com/otcheredev/therapisttrack-records/internal/storage"
	"github.com/otcheredev/therapisttrack-records/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const memoryCacheSweep = time.Minute

func main() {
	rootCmd := &cobra.Command{
		Use:          "records-server",
		Short:        "Clinical records API server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the records API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the postgres schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Store.Type != "postgres" {
				return fmt.Errorf("migrate needs STORE_TYPE=postgres, got %q", cfg.Store.Type)
			}

			dbConfig := databaseConfig(cfg)
			dbConfig.Migrate = true
			if _, err := database.Connect(dbConfig); err != nil {
				return err
			}
			defer database.Close()
			log.Info().Msg("Schema migrated")

			c, err := openCache(cfg)
			if err != nil {
				return err
			}
			defer c.Close()
			flushTemplateCache(cmd.Context(), c)
			return nil
		},
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.FilePath); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	fields.ShortTextMaxLength = cfg.Fields.ShortTextMaxLength
	return cfg, nil
}

func databaseConfig(cfg *config.Config) database.Config {
	return database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
		LogLevel: cfg.Database.LogLevel,
	}
}

func openStore(cfg *config.Config) (repository.Store, error) {
	if cfg.Store.Type == "memory" {
		log.Warn().Msg("Using in-memory store, data is lost on restart")
		return repository.NewMemoryStore(), nil
	}

	dbConfig := databaseConfig(cfg)
	dbConfig.Migrate = true
	db, err := database.Connect(dbConfig)
	if err != nil {
		return nil, err
	}
	return repository.NewGormStore(db), nil
}

func openCache(cfg *config.Config) (cache.Cache, error) {
	if !cfg.Cache.Enabled {
		log.Info().Msg("Cache disabled")
		return cache.Nop{}, nil
	}
	if cfg.Cache.Type == "redis" {
		c, err := cache.NewRedisCache(cache.RedisOptions{
			Addr:     cfg.Redis.Address(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		log.Info().Str("addr", cfg.Redis.Address()).Msg("Redis cache initialized")
		return c, nil
	}
	log.Info().Msg("Memory cache initialized")
	return cache.NewMemoryCache(memoryCacheSweep), nil
}

// flushTemplateCache drops every cached template. A failure only costs stale reads until the TTL.
func flushTemplateCache(ctx context.Context, c cache.Cache) {
	if err := c.Clear(ctx, cache.TemplatesPattern); err != nil {
		log.Warn().Err(err).Msg("Failed to flush template cache")
		return
	}
	log.Debug().Msg("Template cache flushed")
}

func openPublisher(cfg *config.Config) (events.Publisher, error) {
	if !cfg.Events.Enabled {
		return events.Nop{}, nil
	}
	p, err := events.NewRabbitPublisher(cfg.Events.RabbitMQURL, cfg.Events.Exchange)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	log.Info().Str("exchange", cfg.Events.Exchange).Msg("Event publisher initialized")
	return p, nil
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log.Info().Str("store", cfg.Store.Type).Str("storage", cfg.Storage.Type).Msg("Starting records API")

	ctx := context.Background()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	cacheImpl, err := openCache(cfg)
	if err != nil {
		return err
	}
	defer cacheImpl.Close()
	// the schema was just migrated, so cached template documents may be out of date
	flushTemplateCache(ctx, cacheImpl)

	blobs, err := storage.New(ctx, storage.Config{
		Type:    cfg.Storage.Type,
		MaxSize: cfg.Storage.MaxSize,
		S3: storage.S3Config{
			Bucket:   cfg.Storage.Bucket,
			Region:   cfg.Storage.Region,
			Endpoint: cfg.Storage.Endpoint,
			Prefix:   cfg.Storage.Prefix,
			MaxSize:  cfg.Storage.MaxSize,
			Timeout:  cfg.Storage.S3Timeout,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize file storage: %w", err)
	}

	publisher, err := openPublisher(cfg)
	if err != nil {
		return err
	}
	defer publisher.Close()

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace, prometheus.DefaultRegisterer)
	}

	router := newRouter(&app{
		cfg:      cfg,
		store:    store,
		cache:    cacheImpl,
		blobs:    blobs,
		core:     services.NewCore(store, publisher, collector),
		metrics:  collector,
		gatherer: prometheus.DefaultGatherer,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("address", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("Server exited")
	return nil
}
