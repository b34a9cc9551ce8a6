package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Environment   string
	AWS           AWSConfig
	Database      DatabaseConfig
	API           APIConfig
	Worker        WorkerConfig
	Launcher      LauncherConfig
	Reconcile     ReconcileConfig
	Playback      PlaybackConfig
	Observability ObservabilityConfig
	CORS          CORSConfig
}

// AWSConfig holds AWS-specific configuration.
type AWSConfig struct {
	Region          string
	RawBucket       string
	ProcessedBucket string
	SQSQueueURL     string
}

// DatabaseConfig holds ledger database configuration.
type DatabaseConfig struct {
	URL string
}

// APIConfig holds API server configuration.
type APIConfig struct {
	Port      string
	Username  string
	Password  string
	JWTSecret string
}

// WorkerConfig holds worker-specific configuration.
type WorkerConfig struct {
	MetricsPort int
	RedisAddr   string
	DedupTTL    time.Duration
}

// LauncherConfig holds transcoding job launcher configuration.
type LauncherConfig struct {
	Cluster        string
	TaskDefinition string
	ContainerName  string
	Subnets        []string
	SecurityGroups []string
	AssignPublicIP bool
	LaunchTimeout  time.Duration
}

// ReconcileConfig holds status reconciliation configuration.
type ReconcileConfig struct {
	Interval time.Duration
}

// PlaybackConfig holds signed-playback configuration.
type PlaybackConfig struct {
	CloudFrontDomain string
	KeyPairID        string
	PrivateKeyPath   string
	CookieTTL        time.Duration
}

// ObservabilityConfig holds observability configuration.
type ObservabilityConfig struct {
	OTLPEndpoint string
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string
}

// Default values
const (
	DefaultPort                     = "8080"
	DefaultMetricsPort              = 2112
	DefaultOTLPEndpoint             = "localhost:4317"
	DefaultRegion                   = "us-east-1"
	DefaultReconcileIntervalMinutes = 5
	DefaultLaunchTimeoutSeconds     = 30
	DefaultDedupTTLMinutes          = 60
	DefaultCookieTTLMinutes         = 10
)

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENV", "dev"),
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", DefaultRegion),
			RawBucket:       os.Getenv("RAW_BUCKET"),
			ProcessedBucket: os.Getenv("PROCESSED_BUCKET"),
			SQSQueueURL:     os.Getenv("SQS_QUEUE_URL"),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		API: APIConfig{
			Port:      getEnv("PORT", DefaultPort),
			Username:  os.Getenv("API_USERNAME"),
			Password:  os.Getenv("API_PASSWORD"),
			JWTSecret: os.Getenv("JWT_SECRET"),
		},
		Worker: WorkerConfig{
			MetricsPort: getEnvInt("METRICS_PORT", DefaultMetricsPort),
			RedisAddr:   os.Getenv("REDIS_ADDR"),
			DedupTTL:    time.Duration(getEnvInt("DEDUP_TTL_MINUTES", DefaultDedupTTLMinutes)) * time.Minute,
		},
		Launcher: LauncherConfig{
			Cluster:        os.Getenv("ECS_CLUSTER"),
			TaskDefinition: os.Getenv("ECS_TASK_DEFINITION"),
			ContainerName:  os.Getenv("ECS_CONTAINER_NAME"),
			Subnets:        getEnvSlice("ECS_SUBNETS", nil),
			SecurityGroups: getEnvSlice("ECS_SECURITY_GROUPS", nil),
			AssignPublicIP: getEnv("ECS_ASSIGN_PUBLIC_IP", "false") == "true",
			LaunchTimeout:  time.Duration(getEnvInt("LAUNCH_TIMEOUT_SECONDS", DefaultLaunchTimeoutSeconds)) * time.Second,
		},
		Reconcile: ReconcileConfig{
			Interval: time.Duration(getEnvInt("RECONCILE_INTERVAL_MINUTES", DefaultReconcileIntervalMinutes)) * time.Minute,
		},
		Playback: PlaybackConfig{
			CloudFrontDomain: os.Getenv("CLOUDFRONT_DOMAIN"),
			KeyPairID:        os.Getenv("CLOUDFRONT_KEY_PAIR_ID"),
			PrivateKeyPath:   os.Getenv("CLOUDFRONT_PRIVATE_KEY_PATH"),
			CookieTTL:        time.Duration(getEnvInt("PLAYBACK_COOKIE_TTL_MINUTES", DefaultCookieTTLMinutes)) * time.Minute,
		},
		Observability: ObservabilityConfig{
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", DefaultOTLPEndpoint),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{
				"http://localhost:5173",
			}),
		},
	}

	return cfg, nil
}

// LoadAPI loads configuration required for the API service.
func LoadAPI() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	if err := cfg.ValidateAPI(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadWorker loads configuration required for the worker service.
func LoadWorker() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	if err := cfg.ValidateWorker(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ValidateAPI validates configuration required for the API service.
func (c *Config) ValidateAPI() error {
	var errs []string

	if c.AWS.RawBucket == "" {
		errs = append(errs, "RAW_BUCKET is required")
	}
	if c.AWS.ProcessedBucket == "" {
		errs = append(errs, "PROCESSED_BUCKET is required")
	}
	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.Playback.CloudFrontDomain == "" {
		errs = append(errs, "CLOUDFRONT_DOMAIN is required")
	}
	if c.Playback.KeyPairID == "" {
		errs = append(errs, "CLOUDFRONT_KEY_PAIR_ID is required")
	}
	if c.Playback.PrivateKeyPath == "" {
		errs = append(errs, "CLOUDFRONT_PRIVATE_KEY_PATH is required")
	}

	if c.IsProduction() {
		if c.API.Username == "" {
			errs = append(errs, "API_USERNAME is required in production")
		}
		if c.API.Password == "" {
			errs = append(errs, "API_PASSWORD is required in production")
		}
		if c.API.JWTSecret == "" {
			errs = append(errs, "JWT_SECRET is required in production")
		}
		if len(c.API.JWTSecret) < 32 {
			errs = append(errs, "JWT_SECRET must be at least 32 characters in production")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ValidateWorker validates configuration required for the worker service.
func (c *Config) ValidateWorker() error {
	var errs []string

	if c.AWS.RawBucket == "" {
		errs = append(errs, "RAW_BUCKET is required")
	}
	if c.AWS.ProcessedBucket == "" {
		errs = append(errs, "PROCESSED_BUCKET is required")
	}
	if c.AWS.SQSQueueURL == "" {
		errs = append(errs, "SQS_QUEUE_URL is required")
	}
	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.Launcher.Cluster == "" {
		errs = append(errs, "ECS_CLUSTER is required")
	}
	if c.Launcher.TaskDefinition == "" {
		errs = append(errs, "ECS_TASK_DEFINITION is required")
	}
	if c.Launcher.ContainerName == "" {
		errs = append(errs, "ECS_CONTAINER_NAME is required")
	}
	if len(c.Launcher.Subnets) == 0 {
		errs = append(errs, "ECS_SUBNETS is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Environment)
	return env == "prod" || env == "production"
}

// GetAPICredentials returns API credentials with fallback for development.
func (c *Config) GetAPICredentials() (username, password string, err error) {
	username = c.API.Username
	password = c.API.Password

	if username == "" || password == "" {
		if c.IsProduction() {
			return "", "", errors.New("API credentials not configured")
		}
		// Development fallback
		return "admin", "secret", nil
	}

	return username, password, nil
}

// GetJWTSecret returns the JWT secret.
func (c *Config) GetJWTSecret() ([]byte, error) {
	secret := c.API.JWTSecret

	if secret == "" {
		return nil, errors.New("JWT_SECRET is required (set it even for development)")
	}

	if len(secret) < 32 && c.IsProduction() {
		return nil, errors.New("JWT_SECRET must be at least 32 characters")
	}

	return []byte(secret), nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil && intVal > 0 {
			return intVal
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
