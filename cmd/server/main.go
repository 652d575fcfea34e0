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

	"github.com/HanTheDev/scan-gateway/internal/admin"
	"github.com/HanTheDev/scan-gateway/internal/analysis"
	"github.com/HanTheDev/scan-gateway/internal/api"
	"github.com/HanTheDev/scan-gateway/internal/auth"
	"github.com/HanTheDev/scan-gateway/internal/billing"
	"github.com/HanTheDev/scan-gateway/internal/config"
	"github.com/HanTheDev/scan-gateway/internal/db"
	"github.com/HanTheDev/scan-gateway/internal/engine"
	"github.com/HanTheDev/scan-gateway/internal/logging"
	"github.com/HanTheDev/scan-gateway/internal/metrics"
	"github.com/HanTheDev/scan-gateway/internal/store"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 20 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.Get().Fatal("Failed to load config", zap.Error(err))
	}

	logger := logging.Init(cfg.Log.Environment, cfg.Log.Level, cfg.Log.Format)
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// Database is optional unless it backs the document store.
	var database *db.DB
	if cfg.Store.DatabaseURL != "" {
		var err error
		database, err = db.NewDB(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer database.Close()

		if err := database.Migrate(ctx); err != nil {
			return err
		}
	}

	docStore, err := openStore(ctx, cfg.Store, database)
	if err != nil {
		return err
	}
	repo := store.NewRepository(docStore)
	defer repo.Close()

	client := analysis.NewClient(cfg.Analysis.BaseURL, cfg.Analysis.SharedSecret,
		analysis.WithTimeout(cfg.Analysis.Timeout),
		analysis.WithPaths(cfg.Analysis.AnalyzePath, cfg.Analysis.HealthPath),
		analysis.WithSecretHeader(cfg.Analysis.SecretHeader),
	)

	var recorder engine.Recorder = engine.NewLogRecorder(logger)
	var stats admin.StatsSource
	if database != nil {
		recorder = database
		stats = database
	}

	opts := []engine.Option{engine.WithRecorder(recorder)}
	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
		opts = append(opts, engine.WithObserver(m))
	}

	eng := engine.New(repo, client, engine.Policy{
		FreeScanLimit:               cfg.Limits.FreeScanLimit,
		RateWindow:                  cfg.Limits.RateWindow,
		RateMaxRequests:             cfg.Limits.RateMaxRequests,
		PrivilegedAccountID:         cfg.Limits.PrivilegedAccountID,
		PrivilegedBypassesRateLimit: cfg.Limits.PrivilegedBypassesRateLimit,
		PaidBypassesRateLimit:       cfg.Limits.PaidBypassesRateLimit,
	}, opts...)

	bill := billing.NewService(repo, billing.Terms{
		Price:    cfg.Billing.Price,
		Currency: cfg.Billing.Currency,
		PayTo:    cfg.Billing.PayTo,
	})

	// Initialize router
	router := mux.NewRouter()
	router.Use(api.RequestContext)

	authMiddleware := auth.NewMiddleware(cfg.Auth.JWTSecret)
	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TransportAPIKey, cfg.Auth.AdminAPIKey)

	api.NewHandler(eng, bill, issuer).RegisterRoutes(router, authMiddleware)
	if m != nil {
		router.Handle("/metrics", m.Handler()).Methods("GET")
	}
	admin.NewAdminHandler(eng, bill, stats, cfg.Limits.PrivilegedAccountID).RegisterRoutes(router, authMiddleware)

	if cfg.Limits.PrivilegedAccountID == "" {
		logger.Warn("PRIVILEGED_ACCOUNT_ID not set, admin grants are disabled")
	}
	if cfg.Auth.TransportAPIKey == "" && cfg.Auth.AdminAPIKey == "" {
		logger.Warn("No API keys configured, /auth/token will reject every request")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Analysis.Timeout + 15*time.Second,
		IdleTimeout:       90 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server starting",
			zap.String("port", cfg.ServerPort),
			zap.String("store", cfg.Store.Backend),
			zap.String("analysis", cfg.Analysis.BaseURL),
			zap.Int("free_scan_limit", cfg.Limits.FreeScanLimit))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStore(ctx context.Context, cfg config.StoreConfig, database *db.DB) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return store.NewMemoryStore(), nil
	case config.BackendPostgres:
		return store.NewPostgresStore(database), nil
	case config.BackendRedis:
		return store.NewRedisStore(ctx, cfg.RedisURL, cfg.RedisDocumentKey)
	default:
		return store.NewFileStore(cfg.Path)
	}
}
