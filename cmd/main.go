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

	"github.com/gin-gonic/gin"

	"pdf-rag-chat/internal/ai"
	"pdf-rag-chat/internal/config"
	"pdf-rag-chat/internal/logger"
	"pdf-rag-chat/internal/telemetry"
	"pdf-rag-chat/internal/vectorstore"
	"pdf-rag-chat/middleware"
	"pdf-rag-chat/routes"
	"pdf-rag-chat/services"
	"pdf-rag-chat/utils"
)

const serviceName = "pdf-rag-chat"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	if err := run(cfg); err != nil {
		logger.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx := context.Background()

	shutdownTracer, err := telemetry.InitTracer(ctx, serviceName, cfg.OTLPEndpoint, cfg.OTelSampleRate)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownTracer(ctx)
	}()

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		return err
	}

	provider, err := ai.NewProvider(ctx, cfg, metrics)
	if err != nil {
		return err
	}
	defer provider.Close()

	store, err := vectorstore.New(cfg, metrics)
	if err != nil {
		return err
	}
	logger.Info("Vector store configured", "backend", store.Backend(), "vector_size", cfg.VectorSize, "distance", cfg.VectorDistance)

	rag, err := services.NewRAGService(cfg, provider, store, services.NewPDFExtractor(), metrics)
	if err != nil {
		return err
	}
	if err := rag.Start(); err != nil {
		return err
	}

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware(serviceName))
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.MetricsMiddleware(metrics))
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))

	// Rate limiting is optional and fails open
	if cfg.RedisURL != "" {
		rdb, err := config.NewRedisClient(ctx, cfg)
		if err != nil {
			logger.Warn("Redis unavailable, rate limiting disabled", "error", err)
		} else {
			defer rdb.Close()
			router.Use(middleware.RateLimitMiddleware(middleware.NewRedisCounter(rdb), cfg.RateLimitReqs, cfg.RateLimitWindow))
			logger.Info("Rate limiting enabled", "requests", cfg.RateLimitReqs, "window", cfg.RateLimitWindow)
		}
	}

	routes.SetupRAGRoutes(router, cfg, rag, provider, store.Backend())

	// Create HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "port", cfg.Port, "provider", provider.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-quit:
		logger.Info("Shutting down server...")
	case runErr = <-serverErr:
		logger.Error("Server failed", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), utils.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	rag.Shutdown(shutdownCtx)

	logger.Info("Server exited")
	return runErr
}
