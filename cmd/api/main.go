package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"

	"github.com/vodworks/pipeline/internal/api"
	"github.com/vodworks/pipeline/internal/auth"
	"github.com/vodworks/pipeline/internal/config"
	"github.com/vodworks/pipeline/internal/health"
	"github.com/vodworks/pipeline/internal/ledger"
	"github.com/vodworks/pipeline/internal/logger"
	"github.com/vodworks/pipeline/internal/observability"
	"github.com/vodworks/pipeline/internal/playback"
	"github.com/vodworks/pipeline/internal/storage"
)

const (
	ShutdownTimeout       = 30 * time.Second
	TracerShutdownTimeout = 5 * time.Second
	AWSConfigTimeout      = 10 * time.Second
	StartupTimeout        = 30 * time.Second
)

func main() {
	log := logger.New()
	slog.SetDefault(log)

	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, using system environment variables")
	}

	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := observability.InitTracer(context.Background(), "vod-api",
		cfg.Observability.OTLPEndpoint, cfg.Environment)
	if err != nil {
		log.Error("Failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), TracerShutdownTimeout)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			log.Error("Failed to shutdown tracer", "error", err)
		}
	}()

	awsCtx, awsCancel := context.WithTimeout(context.Background(), AWSConfigTimeout)
	defer awsCancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(awsCtx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		log.Error("Failed to load AWS config", "error", err)
		os.Exit(1)
	}
	otelaws.AppendMiddlewares(&awsCfg.APIOptions)

	sqsClient := sqs.NewFromConfig(awsCfg)
	gateway := storage.NewGateway(awsCfg)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), StartupTimeout)
	defer startupCancel()

	pool, err := ledger.NewPool(startupCtx, cfg.Database.URL)
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	repo := ledger.NewRepository(pool)

	jwtSecret, err := cfg.GetJWTSecret()
	if err != nil {
		log.Error("Failed to get JWT secret", "error", err)
		os.Exit(1)
	}
	jwtService, err := auth.NewJWTService(jwtSecret)
	if err != nil {
		log.Error("Failed to create JWT service", "error", err)
		os.Exit(1)
	}

	throttle := auth.NewLoginThrottle(auth.DefaultMaxLoginFailures, auth.DefaultLockoutWindow)

	signer, err := playback.NewSigner(
		cfg.Playback.CloudFrontDomain,
		cfg.Playback.KeyPairID,
		cfg.Playback.PrivateKeyPath,
		cfg.Playback.CookieTTL,
	)
	if err != nil {
		log.Error("Failed to create playback signer", "error", err)
		os.Exit(1)
	}

	healthConfig := health.DefaultConfig("vod-api", log)
	healthConfig.S3Client = gateway
	healthConfig.SQSClient = sqsClient
	healthConfig.DB = pool
	healthConfig.RawBucket = cfg.AWS.RawBucket
	healthConfig.ProcessedBucket = cfg.AWS.ProcessedBucket
	healthConfig.SQSQueueURL = cfg.AWS.SQSQueueURL
	healthChecker := health.NewChecker(healthConfig)

	server, err := api.NewServer(&api.ServerConfig{
		Config:        cfg,
		Logger:        log,
		Store:         gateway,
		Ledger:        repo,
		JWTService:    jwtService,
		Throttle:      throttle,
		Signer:        signer,
		HealthChecker: healthChecker,
	})
	if err != nil {
		log.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := server.Start(); err != nil {
			log.Error("Server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Server shutdown complete")
}
