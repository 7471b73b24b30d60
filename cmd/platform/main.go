package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/discovery"
	"github.com/example/storefront/pkg/errs"
	"github.com/example/storefront/pkg/grpc"
	"github.com/example/storefront/pkg/logger"
	"github.com/example/storefront/pkg/procedures"
	"github.com/example/storefront/pkg/repository"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func main() {
	// Load config
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log, err := logger.New(&cfg.Log, cfg.Server.Name)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting platform service",
		zap.String("name", cfg.Server.Name),
		zap.Int("port", cfg.Server.Port))

	repo, err := repository.NewGormRepository(&cfg.Database, log.Named("repository"))
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	ctx := context.Background()
	if err := repo.Migrate(ctx); err != nil && !errs.Is(err, errs.ENotConfigured) {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}

	registry := procedures.NewRegistry(repo, cfg.Platform.DefaultPlan, log.Named("procedures"))
	server := grpc.NewPlatformServer(registry, log)

	// Register in etcd when endpoints are configured
	var sd *discovery.ServiceDiscovery
	instance := &discovery.ServiceInstance{Name: cfg.Server.Name, Host: cfg.Server.Host, Port: cfg.Server.Port}
	if len(cfg.Etcd.Endpoints) > 0 {
		sd, err = discovery.NewServiceDiscovery(&cfg.Etcd, log.Named("discovery"))
		if err != nil {
			log.Fatal("Failed to connect to etcd", zap.Error(err))
		}
		if err := sd.Register(ctx, instance); err != nil {
			log.Fatal("Failed to register service", zap.Error(err))
		}
		log.Info("Service registered in etcd",
			zap.String("name", instance.Name),
			zap.String("address", instance.Addr()))
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.Server.Addr()); err != nil {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("Received shutdown signal")
	case err := <-serverErr:
		log.Error("Server error", zap.Error(err))
	}

	var closeErr error
	if sd != nil {
		if err := sd.Deregister(ctx, instance); err != nil {
			log.Error("Failed to deregister service", zap.Error(err))
		}
		closeErr = multierr.Append(closeErr, sd.Close())
	}
	server.Stop()
	closeErr = multierr.Append(closeErr, repo.Close())
	if closeErr != nil {
		log.Error("Shutdown finished with errors", zap.Error(closeErr))
	}

	log.Info("Service stopped")
}
