package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"

	"github.com/vodworks/pipeline/internal/config"
	"github.com/vodworks/pipeline/internal/launcher"
	"github.com/vodworks/pipeline/internal/ledger"
	"github.com/vodworks/pipeline/internal/logger"
	"github.com/vodworks/pipeline/internal/observability"
	"github.com/vodworks/pipeline/internal/reconcile"
	"github.com/vodworks/pipeline/internal/storage"
	"github.com/vodworks/pipeline/internal/worker"
)

const (
	AWSConfigTimeout = 10 * time.Second
	StartupTimeout   = 30 * time.Second
	ShutdownTimeout  = 5 * time.Second
)

func main() {
	log := logger.New()
	slog.SetDefault(log)

	if err := godotenv.Load(); err != nil {
		logger.Info(context.Background(), log, "No .env file found, relying on system ENV variables")
	}

	cfg, err := config.LoadWorker()
	if err != nil {
		logger.Error(context.Background(), log, "Invalid configuration", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := observability.InitTracer(context.Background(), "vod-worker",
		cfg.Observability.OTLPEndpoint, cfg.Environment)
	if err != nil {
		logger.Error(context.Background(), log, "Failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error(context.Background(), log, "Failed to shutdown tracer", "error", err)
		}
	}()

	awsCtx, awsCancel := context.WithTimeout(context.Background(), AWSConfigTimeout)
	defer awsCancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(awsCtx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Error(context.Background(), log, "Failed to load AWS config", "error", err)
		os.Exit(1)
	}
	otelaws.AppendMiddlewares(&awsCfg.APIOptions)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), StartupTimeout)
	defer startupCancel()

	pool, err := ledger.NewPool(startupCtx, cfg.Database.URL)
	if err != nil {
		logger.Error(context.Background(), log, "Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := ledger.Migrate(startupCtx, pool); err != nil {
		logger.Error(context.Background(), log, "Failed to run migrations", "error", err)
		os.Exit(1)
	}
	repo := ledger.NewRepository(pool)

	ecsLauncher := launcher.NewECSLauncher(ecs.NewFromConfig(awsCfg), launcher.Config{
		Cluster:         cfg.Launcher.Cluster,
		TaskDefinition:  cfg.Launcher.TaskDefinition,
		ContainerName:   cfg.Launcher.ContainerName,
		Subnets:         cfg.Launcher.Subnets,
		SecurityGroups:  cfg.Launcher.SecurityGroups,
		AssignPublicIP:  cfg.Launcher.AssignPublicIP,
		Region:          cfg.AWS.Region,
		RawBucket:       cfg.AWS.RawBucket,
		ProcessedBucket: cfg.AWS.ProcessedBucket,
		LaunchTimeout:   cfg.Launcher.LaunchTimeout,
	})

	// Redis dedup is optional. Without it the ledger upsert alone keeps
	// redeliveries idempotent, though duplicate launches become possible.
	var dedup worker.Deduper
	if cfg.Worker.RedisAddr != "" {
		redisDedup, err := worker.NewRedisDeduper(startupCtx, cfg.Worker.RedisAddr, cfg.Worker.DedupTTL)
		if err != nil {
			logger.Error(context.Background(), log, "Failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisDedup.Close()
		dedup = redisDedup
	}

	w := worker.New(
		sqs.NewFromConfig(awsCfg),
		ecsLauncher,
		repo,
		dedup,
		cfg.AWS.SQSQueueURL,
		log,
	)

	gateway := storage.NewGateway(awsCfg)
	reconciler := reconcile.New(repo, gateway, cfg.AWS.ProcessedBucket, cfg.Reconcile.Interval, log)

	metricsServer := startMetricsServer(log, cfg.Worker.MetricsPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info(context.Background(), log, "Shutting down worker...")
		cancel()
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		reconciler.Run(ctx)
	}()

	w.Run(ctx)
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(context.Background(), log, "Failed to shutdown metrics server", "error", err)
	}
}

func startMetricsServer(log *slog.Logger, port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		if _, err := rw.Write([]byte(`{"status":"healthy"}`)); err != nil {
			logger.Error(r.Context(), log, "Failed to write health response", "error", err)
		}
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info(context.Background(), log, "Starting metrics server", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), log, "Metrics server error", "error", err)
		}
	}()

	return srv
}
