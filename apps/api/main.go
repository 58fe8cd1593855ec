package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	sqlassets "github.com/steeplehq/tenant-provisioner/database"
	batcheshandler "github.com/steeplehq/tenant-provisioner/domains/batches/be/handler"
	batchesservice "github.com/steeplehq/tenant-provisioner/domains/batches/be/service"
	tenantshandler "github.com/steeplehq/tenant-provisioner/domains/tenants/be/handler"
	tenantsprov "github.com/steeplehq/tenant-provisioner/domains/tenants/be/provisioning"
	tenantsrepo "github.com/steeplehq/tenant-provisioner/domains/tenants/be/repo"
	tenantsservice "github.com/steeplehq/tenant-provisioner/domains/tenants/be/service"
	platformlogging "github.com/steeplehq/tenant-provisioner/platform/go/logging"
	"github.com/steeplehq/tenant-provisioner/platform/go/migrate"
	"github.com/steeplehq/tenant-provisioner/platform/go/persistence"
)

type config struct {
	Port             string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL      string        `env:"DATABASE_URL,required"`
	RegistrySchema   string        `env:"REGISTRY_SCHEMA" envDefault:"public"`
	StepTimeout      time.Duration `env:"STEP_TIMEOUT" envDefault:"2m"`
	ProvisionRetries int           `env:"PROVISION_RETRIES" envDefault:"0"`
	MaxBatchSize     int           `env:"MAX_BATCH_SIZE" envDefault:"50"`
	MaxConcurrency   int           `env:"MAX_CONCURRENCY" envDefault:"20"`
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "provisioner-api",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	// Every in-flight provisioning holds a connection during DDL, so the
	// pool must accommodate the full batch fan-out plus request traffic.
	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{
		ConnString: cfg.DatabaseURL,
		MaxConns:   int32(cfg.MaxConcurrency) + 5,
	})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	registryTrack, err := migrate.Load("registry", sqlassets.RegistryMigrations, sqlassets.RegistryTrackDir)
	if err != nil {
		logger.Fatal("load registry migration track", zap.Error(err))
	}
	tenantTrack, err := migrate.Load("tenant", sqlassets.TenantMigrations, sqlassets.TenantTrackDir)
	if err != nil {
		logger.Fatal("load tenant migration track", zap.Error(err))
	}

	registryStore := tenantsprov.NewSchemaStore(pool, registryTrack, logger)
	if _, err := registryStore.CreateSchema(ctx, cfg.RegistrySchema); err != nil {
		logger.Fatal("bootstrap registry schema", zap.Error(err))
	}
	if _, err := registryStore.ApplyMigrations(ctx, cfg.RegistrySchema, migrate.Unversioned, migrate.ToLatest); err != nil {
		logger.Fatal("bootstrap registry migrations", zap.Error(err))
	}

	registry := tenantsrepo.NewPostgresRegistry(pool, cfg.RegistrySchema)
	validator, err := tenantsservice.NewValidator(registry)
	if err != nil {
		logger.Fatal("init tenant validator", zap.Error(err))
	}

	tenantStore := tenantsprov.NewSchemaStore(pool, tenantTrack, logger)
	tenantService := tenantsservice.New(registry, tenantStore, validator, logger, tenantsservice.Config{
		StepTimeout: cfg.StepTimeout,
		Retries:     cfg.ProvisionRetries,
	})
	tenantHTTPHandler := tenantshandler.New(tenantService, logger)

	orchestrator := batchesservice.New(tenantService, batchesservice.NewMemoryStore(), logger, batchesservice.Config{
		MaxBatchSize:   cfg.MaxBatchSize,
		MaxConcurrency: cfg.MaxConcurrency,
	})
	batchHTTPHandler := batcheshandler.New(orchestrator, logger)

	router := chi.NewRouter()
	router.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
	)
	router.Use(platformlogging.RequestLogger(logger))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	tenantHTTPHandler.Mount(router)
	batchHTTPHandler.Mount(router)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting provisioner api", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	// In-flight batches keep their own detached context; let them drain so
	// no tenant is left half provisioned by the restart.
	logger.Info("waiting for in-flight batches")
	orchestrator.Wait()
}
