package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/storefront/gateway"
	"github.com/example/storefront/pkg/audit"
	"github.com/example/storefront/pkg/billing"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/discovery"
	"github.com/example/storefront/pkg/errs"
	"github.com/example/storefront/pkg/grpc"
	"github.com/example/storefront/pkg/identity"
	"github.com/example/storefront/pkg/logger"
	"github.com/example/storefront/pkg/platform"
	"github.com/example/storefront/pkg/procedures"
	"github.com/example/storefront/pkg/repository"
	"github.com/example/storefront/pkg/tenancy"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func main() {
	// Load config
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log, err := logger.New(&cfg.Log, "gateway")
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting API Gateway",
		zap.Int("port", cfg.Gateway.Port),
		zap.String("host", cfg.Gateway.Host))

	ctx := context.Background()

	repo, err := repository.NewGormRepository(&cfg.Database, log.Named("repository"))
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	if err := repo.Migrate(ctx); err != nil && !errs.Is(err, errs.ENotConfigured) {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}

	redisRepo := repository.NewRedisRepository(&cfg.Redis)
	if err := redisRepo.Ping(ctx); err != nil {
		log.Warn("Redis unavailable, running without token revocation and webhook de-duplication", zap.Error(err))
	}

	mongoRepo, err := repository.NewMongoRepository(&cfg.MongoDB)
	if err != nil {
		log.Warn("Audit store unavailable", zap.Error(err))
		mongoRepo = repository.NewMongoRepositoryFromCollection(nil)
	}
	pipeline, err := audit.NewPipeline(mongoRepo, log.Named("audit"))
	if err != nil {
		log.Fatal("Failed to start audit pipeline", zap.Error(err))
	}

	// Setup service discovery
	var sd *discovery.ServiceDiscovery
	if len(cfg.Etcd.Endpoints) > 0 {
		sd, err = discovery.NewServiceDiscovery(&cfg.Etcd, log.Named("discovery"))
		if err != nil {
			log.Warn("Failed to connect to etcd, continuing without service discovery", zap.Error(err))
		}
	}

	// Remote procedures when the platform service can be found, local otherwise
	var remote procedures.Caller
	var clients *grpc.ClientManager
	if cfg.RPC.Address != "" || sd != nil {
		var disc grpc.Discoverer
		if sd != nil {
			disc = sd
		}
		clients = grpc.NewClientManager(&cfg.RPC, disc, log.Named("rpc"))
		if err := clients.Connect(ctx); err != nil {
			log.Warn("Platform service unreachable, running procedures in-process", zap.Error(err))
		} else {
			remote = clients
		}
	}

	admin := platform.NewService(platform.Options{
		Remote:      remote,
		Repo:        repo,
		Audits:      mongoRepo,
		Cache:       redisRepo,
		Recorder:    pipeline,
		DefaultPlan: cfg.Platform.DefaultPlan,
		Logger:      log.Named("admin"),
	})

	idClient := identity.NewClient(&cfg.Identity)
	if !idClient.Configured() {
		log.Warn("Identity service not configured, sign-in is disabled")
	}
	verifier := identity.NewVerifier(idClient, cfg.Identity.JWTSecret, redisRepo, log.Named("identity"))

	var sessions billing.SessionCreator
	if s := billing.NewStripeSessions(cfg.Stripe.SecretKey, nil); s != nil {
		sessions = s
	}
	billingSvc := billing.NewService(&cfg.Stripe, sessions, repo, redisRepo, pipeline, log.Named("billing"))

	gw := gateway.NewGateway(gateway.Options{
		Config:   cfg,
		Logger:   log,
		Repo:     repo,
		Accounts: idClient,
		Tokens:   verifier,
		Resolver: tenancy.NewResolver(procedures.AdminCheck{Caller: admin.Caller()}, repo, log.Named("tenancy")),
		Admin:    admin,
		Billing:  billingSvc,
		Recorder: pipeline,
	})

	// Start gateway in goroutine
	gwErr := make(chan error, 1)
	go func() {
		if err := gw.Start(); err != nil {
			gwErr <- err
		}
	}()

	log.Info("Gateway started successfully")

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("Received shutdown signal")
	case err := <-gwErr:
		log.Error("Gateway error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	closeErr := gw.Shutdown(shutdownCtx)
	if err := pipeline.Flush(5 * time.Second); err != nil {
		log.Warn("Audit events may be lost", zap.Error(err))
	}
	closeErr = multierr.Append(closeErr, pipeline.Stop())
	if clients != nil {
		closeErr = multierr.Append(closeErr, clients.Close())
	}
	if sd != nil {
		closeErr = multierr.Append(closeErr, sd.Close())
	}
	closeErr = multierr.Combine(closeErr, redisRepo.Close(), mongoRepo.Close(shutdownCtx), repo.Close())
	if closeErr != nil {
		log.Error("Shutdown finished with errors", zap.Error(closeErr))
	}

	log.Info("Gateway stopped")
}
