package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	auditdomain "github.com/spaceboi21/ai-professor-backend-sub006/domains/audit"
	simulationhandler "github.com/spaceboi21/ai-professor-backend-sub006/domains/simulation/handler"
	simulationrepo "github.com/spaceboi21/ai-professor-backend-sub006/domains/simulation/repo"
	simulationservice "github.com/spaceboi21/ai-professor-backend-sub006/domains/simulation/service"
	studentsrepo "github.com/spaceboi21/ai-professor-backend-sub006/domains/students/repo"
	tenantsrepo "github.com/spaceboi21/ai-professor-backend-sub006/domains/tenants/repo"
	"github.com/spaceboi21/ai-professor-backend-sub006/platform/auth"
	"github.com/spaceboi21/ai-professor-backend-sub006/platform/config"
	"github.com/spaceboi21/ai-professor-backend-sub006/platform/i18n"
	"github.com/spaceboi21/ai-professor-backend-sub006/platform/logging"
	"github.com/spaceboi21/ai-professor-backend-sub006/platform/metrics"
	platformmiddleware "github.com/spaceboi21/ai-professor-backend-sub006/platform/middleware"
	"github.com/spaceboi21/ai-professor-backend-sub006/platform/persistence"
	"github.com/spaceboi21/ai-professor-backend-sub006/platform/task"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewLogger(logging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	m := metrics.New()

	centralPool, err := persistence.NewPool(ctx, persistence.PoolConfig{
		ConnString: cfg.DatabaseURL + "/" + cfg.CentralDBName,
	})
	if err != nil {
		logger.Fatal("init central postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(centralPool)

	tenantPools, err := persistence.NewTenantPools(persistence.TenantPoolsConfig{
		BaseURI:  cfg.DatabaseURL,
		Observer: m,
	}, logger)
	if err != nil {
		logger.Fatal("init tenant pool cache", zap.Error(err))
	}
	defer tenantPools.Close()

	issuer, err := auth.NewIssuer(auth.IssuerConfig{
		Secret:     cfg.JWTSecret,
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	})
	if err != nil {
		logger.Fatal("init credential issuer", zap.Error(err))
	}

	utrans, err := i18n.NewTranslator()
	if err != nil {
		logger.Fatal("init translator", zap.Error(err))
	}

	tasks := task.NewRunner(logger, 15*time.Second)
	auditor := auditdomain.NewRecorder(centralPool, tasks)

	sessionRepo := simulationrepo.NewPostgresRepository(centralPool)
	tenantRegistry := tenantsrepo.NewPostgresRegistry(centralPool)
	studentStore := studentsrepo.NewPostgresStore(tenantPools)

	simulationSvc := simulationservice.New(simulationservice.Config{
		Sessions: sessionRepo,
		Tenants:  tenantRegistry,
		Students: studentStore,
		Issuer:   issuer,
		Auditor:  auditor,
		Logger:   logger,
		Observer: m,
	})
	simulationHTTPHandler := simulationhandler.New(simulationSvc, utrans, logger)

	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)

	rootRouter.Use(logging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := centralPool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Method(http.MethodGet, "/metrics", m.Handler())

	apiRouter := chi.NewRouter()
	apiRouter.Use(auth.Authenticate(issuer))
	apiRouter.Use(auth.RequireAuthenticated)
	apiRouter.Use(platformmiddleware.SimulationWriteGuard(utrans, platformmiddleware.GuardConfig{
		AllowedPaths: platformmiddleware.DefaultAllowedPaths,
		OnReject:     m.GuardRejected,
	}))

	registerAuthRoutes(apiRouter, issuer, utrans, logger)
	apiRouter.Mount("/simulation", simulationHTTPHandler.Routes())

	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := tasks.Wait(shutdownCtx); err != nil {
		logger.Warn("detached tasks did not drain", zap.Error(err))
	}
}
