package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	cacheadapter "github.com/tradeforge/escrow-release-service/internal/adapters/cache"
	"github.com/tradeforge/escrow-release-service/internal/adapters/clients"
	eventadapter "github.com/tradeforge/escrow-release-service/internal/adapters/events"
	grpcadapter "github.com/tradeforge/escrow-release-service/internal/adapters/grpc"
	httpadapter "github.com/tradeforge/escrow-release-service/internal/adapters/http"
	"github.com/tradeforge/escrow-release-service/internal/adapters/postgres"
	"github.com/tradeforge/escrow-release-service/internal/application"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcLis    net.Listener
	outbox     *eventadapter.OutboxWorker
	sweep      *eventadapter.SweepWorker
	cleanupFn  func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("bootstrapping escrow release service", "http_port", cfg.HTTPPort, "grpc_port", cfg.GRPCPort)

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}

	if err := postgres.RunMigrations(ctx, db); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	redisClient, err := cacheadapter.Connect(ctx, cfg.RedisURL)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	repos := postgres.NewRepositories(db)

	gateway := clients.NewPaymentGatewayClient(clients.PaymentGatewayConfig{
		BaseURL:    cfg.PaymentGatewayURL,
		APIKey:     cfg.PaymentGatewayAPIKey,
		HTTPClient: &http.Client{Timeout: cfg.GatewayTimeout},
	})
	analyzer := clients.NewPhotoAnalyzerClient(clients.PhotoAnalyzerConfig{
		BaseURL:    cfg.PhotoAnalyzerURL,
		HTTPClient: &http.Client{Timeout: cfg.AnalyzerTimeout},
	})
	predictor := clients.NewDisputePredictorClient(clients.DisputePredictorConfig{
		BaseURL:    cfg.DisputePredictorURL,
		HTTPClient: &http.Client{Timeout: cfg.PredictorTimeout},
	})

	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			ServiceName:          cfg.ServiceID,
			DisputeRiskThreshold: cfg.DisputeRiskThreshold,
			HighValueThreshold:   cfg.HighValueThreshold,
			HighRiskCategories:   cfg.HighRiskCategories,
			DefaultCurrency:      cfg.DefaultCurrency,
			SweepBatchSize:       cfg.SweepBatchSize,
			SweepConcurrency:     cfg.SweepConcurrency,
			ClaimTTL:             cfg.SweepClaimTTL,
			ReleaseMaxAttempts:   cfg.ReleaseMaxAttempts,
			RetryBackoff:         cfg.RetryBackoff,
			AnalyzerTimeout:      cfg.AnalyzerTimeout,
			PredictorTimeout:     cfg.PredictorTimeout,
			GatewayTimeout:       cfg.GatewayTimeout,
			IdempotencyTTL:       cfg.IdempotencyTTL,
			RuleCacheTTL:         cfg.RuleCacheTTL,
		},
		Escrows:       repos.Escrows,
		Rules:         repos.Rules,
		Verifications: repos.Verifications,
		AuditLog:      repos.ReleaseEvents,
		Idempotency:   repos.Idempotency,
		Outbox:        repos.Outbox,
		Gateway:       gateway,
		Analyzer:      analyzer,
		Predictor:     predictor,
		RuleCache:     cacheadapter.NewRedisRuleCache(redisClient),
		SweepLock:     cacheadapter.NewRedisSweepLock(redisClient),
		Logger:        logger,
	})

	handler := httpadapter.NewHandler(svc)
	router := httpadapter.NewRouter(handler)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	grpcadapter.Register(grpcServer, grpcadapter.NewEscrowInternalServer(svc))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		_ = sqlDB.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("listen gRPC: %w", err)
	}

	outbox := eventadapter.NewOutboxWorker(
		logger,
		repos.Outbox,
		eventadapter.NewLoggingPublisher(logger),
		cfg.OutboxPollInterval,
		cfg.OutboxBatchSize,
		cfg.OutboxClaimTTL,
		cfg.OutboxMaxRetries,
	)
	sweep := eventadapter.NewSweepWorker(logger, svc, cfg.SweepInterval)

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		grpcLis:    lis,
		outbox:     outbox,
		sweep:      sweep,
		cleanupFn: func(ctx context.Context) {
			_ = redisClient.Close()
			_ = sqlDB.Close()
		},
	}, nil
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", r.grpcLis.Addr().String())
		if err := r.grpcServer.Serve(r.grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case err := <-errCh:
		r.logger.Error("server failure", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.cleanupFn(shutdownCtx)
	return nil
}

// RunWorker runs the outbox publisher and the auto-release sweep in one
// process. A failure in either stops both.
func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("outbox worker started")
		errCh <- r.outbox.Run(workerCtx)
	}()
	go func() {
		r.logger.Info("sweep worker started", "interval", r.cfg.SweepInterval.String())
		errCh <- r.sweep.Run(workerCtx)
	}()

	err := <-errCh
	cancel()
	<-errCh
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.cleanupFn(shutdownCtx)
	return nil
}
