package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"collabdoc/config"
	"collabdoc/config/database"
	"collabdoc/internal/access"
	docrepo "collabdoc/internal/document/repository"
	"collabdoc/internal/document/service"
	"collabdoc/internal/metrics"
	"collabdoc/internal/moderation"
	flagrepo "collabdoc/internal/moderation/repository"
	"collabdoc/internal/review"
	"collabdoc/internal/version"
	"collabdoc/middleware"
	"collabdoc/pkg/logger"
	"collabdoc/router"
	"collabdoc/socket"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// storage bundles the repositories chosen at startup.
type storage struct {
	docs interface {
		version.Repository
		review.DocumentStore
	}
	flags moderation.Repository
	db    *sql.DB
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables from OS")
	}
	cfg := config.Load()
	logger.Init(cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg)
	if err != nil {
		logger.Sugar.Fatalf("Failed to initialise storage: %v", err)
	}
	if store.db != nil {
		defer store.db.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	versions := version.NewStore(store.docs)
	policy := access.NewClassificationPolicy(cfg.MinEditLevel)
	auth := middleware.NewAuthenticator(cfg.JWTSecret)
	if cfg.JWTSecret == "" {
		logger.Sugar.Warn("JWT_SECRET is empty; every authenticated request will be rejected")
	}

	hub := socket.NewHub(versions, auth, policy, m)
	go hub.Run(ctx)

	svc := service.NewDocumentService(
		versions,
		moderation.NewRegistry(store.flags),
		moderation.NewAggregator(store.flags, m),
		review.NewWorkflow(store.docs, store.flags, m),
		policy,
		hub,
	)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: router.Setup(svc, hub, auth, reg, cfg.CORSOrigin),
	}

	go func() {
		logger.Sugar.Infof("Go Backend listening on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Sugar.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Sugar.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	hub.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Sugar.Errorf("HTTP server shutdown: %v", err)
	}
}

func openStorage(ctx context.Context, cfg config.Config) (storage, error) {
	if cfg.DatabaseURL == "" {
		logger.Sugar.Warn("DATABASE_URL is empty; using in-memory storage")
		return storage{docs: docrepo.NewMemoryRepository(), flags: flagrepo.NewMemoryRepository()}, nil
	}

	db, err := database.Connect(ctx, cfg.DatabaseURL, cfg.DBConnectRetries)
	if err != nil {
		return storage{}, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return storage{}, err
	}
	return storage{
		docs:  docrepo.NewDocumentRepository(db),
		flags: flagrepo.NewFlagRepository(db),
		db:    db,
	}, nil
}
