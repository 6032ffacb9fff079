// Control API entry point: a thin HTTP front over the C8 IPC channel
// and the C6 repository, exposing the surface named in §6. This binary
// runs independently of cmd/processor and communicates with it only
// through the shared communication directory and the shared database.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/deltran/swift-processor/internal/config"
	"github.com/deltran/swift-processor/internal/controlapi"
	"github.com/deltran/swift-processor/internal/ipc"
	"github.com/deltran/swift-processor/internal/repository"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", zap.Error(err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		os.Exit(1)
	}

	channel, err := ipc.New(cfg.Communication.CommunicationDirectory)
	if err != nil {
		logger.Error("failed to open communication channel", zap.Error(err))
		os.Exit(2)
	}

	repo, err := repository.NewPostgresRepository(repository.PostgresConfig{
		ConnectionString: cfg.Database.ConnectionString,
		MaxOpenConns:     cfg.Database.MaxOpenConns,
		MaxIdleConns:     cfg.Database.MaxIdleConns,
		ConnMaxLifetime:  cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime:  cfg.Database.ConnMaxIdleTime,
	}, nil)
	if err != nil {
		logger.Error("failed to connect to database", zap.Error(err))
		os.Exit(2)
	}
	defer repo.Close()

	api := controlapi.New(channel, repo, cfg.Communication.StatusUpdateIntervalSeconds)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api/v1", func(r chi.Router) {
		api.RegisterRoutes(r)
	})

	httpServer := &http.Server{
		Addr:         cfg.ControlAPI.HTTPAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("control API listening", zap.String("addr", cfg.ControlAPI.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("control API server failed", zap.Error(err))
			os.Exit(2)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down control API")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("control API shutdown error", zap.Error(err))
	}
}
