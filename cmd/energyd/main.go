package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/YorickdeJong/energy-contracts/internal/async"
	"github.com/YorickdeJong/energy-contracts/internal/auth"
	"github.com/YorickdeJong/energy-contracts/internal/common"
	"github.com/YorickdeJong/energy-contracts/internal/convert"
	"github.com/YorickdeJong/energy-contracts/internal/export"
	"github.com/YorickdeJong/energy-contracts/internal/llm"
	"github.com/YorickdeJong/energy-contracts/internal/llm/openai"
	"github.com/YorickdeJong/energy-contracts/internal/logging"
	"github.com/YorickdeJong/energy-contracts/internal/notify"
	"github.com/YorickdeJong/energy-contracts/internal/pipeline"
	"github.com/YorickdeJong/energy-contracts/internal/repository"
	"github.com/YorickdeJong/energy-contracts/internal/repository/memory"
	"github.com/YorickdeJong/energy-contracts/internal/scheduler"
	"github.com/YorickdeJong/energy-contracts/internal/server"
	"github.com/YorickdeJong/energy-contracts/internal/services/onboarding"
	"github.com/YorickdeJong/energy-contracts/internal/services/tenancy"
	"github.com/YorickdeJong/energy-contracts/internal/storage"
)

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("open store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	docs, err := storage.New(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Error("open document storage", "error", err)
		os.Exit(1)
	}

	validator, err := llm.NewValidator(cfg.Pipeline.LenientDates, logger)
	if err != nil {
		logger.Error("compile extraction schema", "error", err)
		os.Exit(1)
	}
	proc := pipeline.NewProcessor(
		store,
		docs,
		openai.NewExtractor(cfg.LLM, logger),
		validator,
		convert.ConfigFrom(cfg.Convert),
		convert.NewExecRunner(logger),
		logger,
	)

	var queue async.Queue
	if cfg.Pipeline.Async {
		queue = async.NewProcessorQueue(proc, logger,
			async.WithWorkers(cfg.Pipeline.Workers),
			async.WithQueueSize(cfg.Pipeline.QueueSize),
			async.WithProcessTimeout(cfg.Pipeline.ProcessTimeout),
		)
	}

	mailer, err := notify.New(cfg.Mail, logger)
	if err != nil {
		logger.Error("configure mailer", "error", err)
		os.Exit(1)
	}
	inviter := notify.NewInviter(store, mailer, cfg.Mail.FrontendURL, logger)

	onboardingSvc := onboarding.NewService(store, docs, proc, queue, inviter, onboarding.Config{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		InvitationTTL:  cfg.Invitation.TTL,
	}, logger)
	tenancySvc := tenancy.NewService(store, export.NewService(store, logger), logger)

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(scheduler.ConfigFrom(cfg), proc, inviter, logger)
		if err := sched.Start(ctx); err != nil {
			logger.Error("start scheduler", "error", err)
			os.Exit(1)
		}
	}

	switch cfg.Server.Mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		gin.SetMode(cfg.Server.Mode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}
	router := server.NewRouter(server.Deps{
		Onboarding:     onboardingSvc,
		Tenancies:      tenancySvc,
		Store:          store,
		Auth:           auth.ConfigFrom(cfg.Server),
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Logger:         logger,
	})
	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	grpcServer, hs := server.NewGRPCServer()
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("grpc listen", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	go server.WatchStore(ctx, hs, store, 10*time.Second, logger)
	go func() {
		logger.Info("grpc health serving", "addr", cfg.Server.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc serve", "error", err)
		}
	}()

	go func() {
		logger.Info("http serving", "addr", cfg.Server.HTTPAddr, "async", cfg.Pipeline.Async)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	grpcServer.GracefulStop()
	if sched != nil {
		sched.Stop(shutdownCtx)
	}
	if queue != nil {
		queue.Shutdown(shutdownCtx)
	}
	logger.Info("stopped")
}

// openStore connects to Postgres, or falls back to the in-memory store when
// DB_URL is empty (local development only: nothing survives a restart).
func openStore(ctx context.Context, cfg *common.Config, logger *slog.Logger) (repository.Store, func(), error) {
	if cfg.Database.DSN == "" {
		logger.Warn("store.memory", "reason", "DB_URL is not set; data is kept in memory")
		return memory.NewStore(logger), func() {}, nil
	}

	pool, err := repository.Open(ctx, repository.ConfigFrom(cfg.Database), logger)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() { repository.Close(pool, logger) }
	if err := repository.HealthCheck(ctx, pool, cfg.Database.DialTimeout, logger); err != nil {
		closeFn()
		return nil, nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := repository.Migrate(ctx, pool, logger); err != nil {
			closeFn()
			return nil, nil, err
		}
	}
	return repository.NewPostgresStore(pool, logger), closeFn, nil
}
