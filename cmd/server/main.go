package main

import (
	// Standard library
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	// External dependencies
	"github.com/joho/godotenv"

	// Internal packages
	"github.com/promptdeck/promptdeck/cmd/server/internal/access"
	"github.com/promptdeck/promptdeck/cmd/server/internal/announcements"
	"github.com/promptdeck/promptdeck/cmd/server/internal/api"
	"github.com/promptdeck/promptdeck/cmd/server/internal/audit"
	"github.com/promptdeck/promptdeck/cmd/server/internal/books"
	"github.com/promptdeck/promptdeck/cmd/server/internal/config"
	"github.com/promptdeck/promptdeck/cmd/server/internal/groups"
	"github.com/promptdeck/promptdeck/cmd/server/internal/llm"
	"github.com/promptdeck/promptdeck/cmd/server/internal/prompts"
	"github.com/promptdeck/promptdeck/cmd/server/internal/reports"
	"github.com/promptdeck/promptdeck/cmd/server/internal/store"
	"github.com/promptdeck/promptdeck/cmd/server/internal/users"
	"github.com/promptdeck/promptdeck/pkg/logger"
)

const tokenTTL = 24 * time.Hour

// generateRandomPassword generates a cryptographically secure random password
func generateRandomPassword(length int) string {
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		panic(fmt.Sprintf("failed to generate random password: %v", err))
	}
	return base64.URLEncoding.EncodeToString(raw)[:length]
}

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logInstance, err := logger.Init(logger.Config{
		Level:       os.Getenv("LOG_LEVEL"),
		Environment: os.Getenv("ENV"),
		WithSource:  !strings.EqualFold(os.Getenv("ENV"), "production"),
		FilePath:    os.Getenv("LOG_FILE"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	appLogger := logInstance.With("component", "web-server")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		appLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := config.ValidateConfig(cfg); err != nil {
		appLogger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	appLogger.Info("configuration loaded", "env", cfg.Server.Env, "port", cfg.Server.Port)
	if cfg.IsDevelopment() {
		fmt.Println(cfg.PrintConfig())
	}

	// Open storage
	db, err := store.Open(cfg.Data.DBPath)
	if err != nil {
		appLogger.Error("database init failed", "error", err, "path", cfg.Data.DBPath)
		os.Exit(1)
	}
	defer db.Close()
	appLogger.Info("database ready", "path", cfg.Data.DBPath)

	// Initialize user manager
	jwtSecret := cfg.Security.JWTSecret
	userManager := users.NewManager(db, jwtSecret, tokenTTL)

	// Ensure default admin with config-based password
	adminPassword := cfg.Security.AdminDefaultPassword
	if adminPassword == "" {
		if cfg.IsDevelopment() {
			adminPassword = generateRandomPassword(16)
			appLogger.Warn("generated random admin password", "password", adminPassword)
		} else {
			appLogger.Error("admin default password not set in production/staging")
			os.Exit(1)
		}
	}
	ctx := context.Background()
	if err := userManager.EnsureDefaultAdmin(ctx, adminPassword); err != nil {
		appLogger.Warn("failed to ensure default admin", "error", err)
	}

	// Initialize audit sink
	auditSink := audit.NewSink(db)
	defer auditSink.Close()
	appLogger.Info("audit sink ready")

	// Initialize domain services
	promptRepo := prompts.NewRepository(db)
	accessRepo := access.NewRepository(db)
	promptSvc := prompts.NewService(promptRepo, access.NewChecker(accessRepo))
	accessSvc := access.NewService(accessRepo, promptRepo)

	groupRepo := groups.NewRepository(db)
	groupSvc := groups.NewService(groupRepo, promptRepo)

	var provider llm.Provider
	if cfg.Generation.APIKey == "" && cfg.IsDevelopment() {
		appLogger.Warn("no generation API key set, using canned responses")
		provider = &llm.MockProvider{GenerateFunc: func(ctx context.Context, msgs []llm.Message) (string, error) {
			return "generation is not configured; set GEN_API_KEY", nil
		}}
	} else {
		provider = llm.NewOpenAIClient(cfg.Generation.BaseURL, cfg.Generation.APIKey, cfg.Generation.Model)
	}
	bookSvc := books.NewService(books.NewRepository(db), groupSvc, provider, cfg.Generation.BatchSize)
	appLogger.Info("generation services ready", "model", cfg.Generation.Model, "batch_size", cfg.Generation.BatchSize)

	// Seed the default book pipeline when a definition file is configured
	if cfg.Data.PipelineFile != "" {
		admin, err := userManager.GetByUsername(ctx, "admin")
		if err != nil {
			appLogger.Error("pipeline seed needs the admin account", "error", err)
			os.Exit(1)
		}
		if err := groups.SeedFromFile(ctx, cfg.Data.PipelineFile, admin.ID, groupRepo, promptRepo); err != nil {
			appLogger.Error("pipeline seed failed", "error", err, "path", cfg.Data.PipelineFile)
			os.Exit(1)
		}
		appLogger.Info("pipeline seed applied", "path", cfg.Data.PipelineFile)
	}

	router := api.NewRouter(api.Deps{
		Config:        cfg,
		Users:         userManager,
		Prompts:       promptSvc,
		Access:        accessSvc,
		Groups:        groupSvc,
		Books:         bookSvc,
		Announcements: announcements.NewService(db),
		Reports:       reports.NewService(db, promptRepo),
		Audit:         auditSink,
	})

	// Create HTTP server with graceful shutdown
	srv := &http.Server{
		Addr:    cfg.GetServerAddr(),
		Handler: router,
	}

	go func() {
		appLogger.Info("server starting", "addr", srv.Addr, "env", cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-quit
	appLogger.Info("shutdown signal received, shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	appLogger.Info("server shutdown complete")
}
