// Package main initializes and starts the storage cluster server,
// setting up configuration, logging, persistence, the audit archive,
// the cluster coordinator and the HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"go.uber.org/zap"

	"github.com/filecluster/filecluster/internal/audit"
	"github.com/filecluster/filecluster/internal/auth"
	"github.com/filecluster/filecluster/internal/balancer"
	"github.com/filecluster/filecluster/internal/cluster"
	"github.com/filecluster/filecluster/internal/config"
	"github.com/filecluster/filecluster/internal/logger"
	"github.com/filecluster/filecluster/internal/persistence"
	"github.com/filecluster/filecluster/internal/registry"
	"github.com/filecluster/filecluster/internal/repository"
	"github.com/filecluster/filecluster/internal/server/handler/http"
	"github.com/filecluster/filecluster/internal/store"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line and environment configuration.
	options := config.Parse()

	// Print build metadata (or "N/A" if unset).
	if version == "" {
		version = "N/A"
	}
	if buildDate == "" {
		buildDate = "N/A"
	}
	fmt.Printf("Build version: %s\n", version)
	fmt.Printf("Build date: %s\n", buildDate)

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	// Initialize snapshot persistence.
	snaps, err := persistence.New(options.DataDir)
	if err != nil {
		zapLogger.Fatal("cannot init snapshot store", zap.Error(err))
	}

	// The audit log always flushes to the snapshot store; a configured
	// DSN adds the PostgreSQL archive as a second sink.
	sinks := []audit.Sink{snaps}
	if options.AuditDSN != "" {
		db, err := repository.Open(options.AuditDSN)
		if err != nil {
			zapLogger.Fatal("cannot init audit archive", zap.Error(err))
		}
		defer db.Close()
		sinks = append(sinks, repository.NewPostgresAuditArchive(db))
	}

	// Assemble the cluster coordinator.
	coordinator := cluster.New(
		registry.New(),
		store.New(),
		auth.NewController(options.BcryptCost, zapLogger),
		balancer.New(balancer.Policy(options.Policy)),
		audit.New(zapLogger, sinks...),
		snaps,
		zapLogger,
	)
	if err := coordinator.LoadOrBootstrap(); err != nil {
		zapLogger.Fatal("cannot load cluster state", zap.Error(err))
	}

	// Create HTTP handlers for the API endpoints.
	authHandler := &http.AuthHandler{AuthService: coordinator}
	fileHandler := &http.FileHandler{FileService: coordinator}
	nodeHandler := &http.NodeHandler{NodeService: coordinator}
	statusHandler := &http.StatusHandler{StatusService: coordinator}

	// Build the router with middleware and routes.
	router := http.NewRouter(authHandler, fileHandler, nodeHandler, statusHandler, zapLogger)

	server := &nethttp.Server{
		Addr:    options.Addr,
		Handler: router,
	}

	// Save snapshots and flush the audit log on SIGINT/SIGTERM.
	done := make(chan struct{})
	go func() {
		defer close(done)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		zapLogger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			zapLogger.Error("shutdown failed", zap.Error(err))
		}
		coordinator.SaveAll()
	}()

	zapLogger.Info("starting HTTP server", zap.String("addr", options.Addr))
	if err := server.ListenAndServe(); err != nil && err != nethttp.ErrServerClosed {
		zapLogger.Fatal("failed to start HTTP server", zap.Error(err))
	}
	<-done
}
