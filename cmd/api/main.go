package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/mulsewm/rossmann-sales-forecasting/config"
	"github.com/mulsewm/rossmann-sales-forecasting/handlers"
	"github.com/mulsewm/rossmann-sales-forecasting/services"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// A server without a model has nothing to serve.
	registry := services.NewModelRegistry(cfg.Paths.ModelDir, logger)
	if _, err := registry.Reload(); err != nil {
		log.Fatalf("Failed to load model from %s: %v", cfg.Paths.ModelDir, err)
	}

	// Connect to database (run history only)
	var db *gorm.DB
	if cfg.Database.Enabled {
		db, err = gorm.Open(postgres.Open(cfg.Database.GetDSN()), &gorm.Config{})
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			log.Fatalf("Failed to get sql db handle: %v", err)
		}
		if err := sqlDB.Ping(); err != nil {
			log.Fatalf("Failed to ping database: %v", err)
		}
		defer sqlDB.Close()
		log.Printf("db connected: %s:%d/%s", cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)
	}

	// Redis: prediction cache and model events
	cache := services.NewCacheServiceWithClient(nil)
	if cfg.Redis.Enabled {
		cache, err = services.NewCacheService(cfg.Redis)
		if err != nil {
			log.Printf("redis unavailable, continuing without cache: %v", err)
		} else {
			log.Printf("redis connected: %s:%d", cfg.Redis.Host, cfg.Redis.Port)
		}
	}
	defer cache.Close()

	if pubsub := cache.Subscribe(ctx, services.ModelsChannel); pubsub != nil {
		defer pubsub.Close()
		go registry.Watch(ctx, pubsub.Channel(), handlers.ObserveReload)
	}
	if cfg.Server.ModelPoll > 0 {
		go registry.Poll(ctx, cfg.Server.ModelPoll, handlers.ObserveReload)
	}

	if cfg.Server.MetricsAddr != "" {
		go serveMetrics(cfg.Server.MetricsAddr)
	}

	router := handlers.SetupRouter(handlers.Deps{
		Registry: registry,
		Cache:    cache,
		CacheTTL: cfg.Redis.CacheTTL,
		DB:       db,
		Auth:     services.NewAuthService(cfg.JWT),
		CORS:     cfg.CORS,
		ModelDir: cfg.Paths.ModelDir,

		RateLimit: cfg.Server.RateLimit,
		RateBurst: cfg.Server.RateBurst,
		Logger:    logger,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("api shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}

// serveMetrics exposes /metrics and /health on a separate listener so
// scrapers can stay off the public port.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("metrics server listening on %s", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("metrics server failed: %v", err)
	}
}
