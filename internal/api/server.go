// Package api provides the HTTP surface of the upload pipeline.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vodworks/pipeline/internal/auth"
	"github.com/vodworks/pipeline/internal/config"
	"github.com/vodworks/pipeline/internal/health"
)

// Server configuration constants
const (
	ReadTimeout       = 30 * time.Second
	ReadHeaderTimeout = 10 * time.Second
	WriteTimeout      = 60 * time.Second
	IdleTimeout       = 120 * time.Second
	MaxHeaderBytes    = 1 << 20 // 1 MB
)

// Server represents the HTTP server for the API.
type Server struct {
	httpServer *http.Server
	cfg        *config.Config
	log        *slog.Logger
	throttle   *auth.LoginThrottle
}

// ServerConfig holds dependencies for the server.
type ServerConfig struct {
	Config        *config.Config
	Logger        *slog.Logger
	Store         ObjectStore
	Ledger        Ledger
	JWTService    *auth.JWTService
	Throttle      *auth.LoginThrottle
	Signer        PlaybackSigner
	HealthChecker *health.Checker
}

// NewServer creates a new API server.
func NewServer(cfg *ServerConfig) (*Server, error) {
	handlers := NewHandlers(&HandlersConfig{
		Config:     cfg.Config,
		Logger:     cfg.Logger,
		Store:      cfg.Store,
		Ledger:     cfg.Ledger,
		JWTService: cfg.JWTService,
		Throttle:   cfg.Throttle,
		Signer:     cfg.Signer,
	})

	mux := http.NewServeMux()

	// Public endpoints
	mux.HandleFunc("GET /health", cfg.HealthChecker.Handler())
	mux.HandleFunc("GET /health/deep", cfg.HealthChecker.DeepHandler())
	mux.HandleFunc("POST /login", handlers.LoginHandler)

	// Playback does its own token check so embed tokens work too.
	mux.HandleFunc("GET /api/videos/{videoId}/playback", handlers.PlaybackHandler)

	// Protected endpoints
	authRequired := cfg.JWTService.Middleware
	mux.HandleFunc("POST /api/videos/upload-url", authRequired(handlers.UploadURLHandler))
	mux.HandleFunc("GET /api/videos", authRequired(handlers.ListVideosHandler))
	mux.HandleFunc("GET /api/videos/{videoId}", authRequired(handlers.GetVideoHandler))
	mux.HandleFunc("POST /api/videos/{videoId}/embed", authRequired(handlers.EmbedHandler))

	// Metrics endpoint (internal only)
	mux.Handle("GET /metrics", internalOnlyMiddleware(promhttp.Handler()))

	handler := CORSMiddleware(cfg.Config.CORS.AllowedOrigins)(MetricsMiddleware(mux))

	httpServer := &http.Server{
		Addr:              ":" + cfg.Config.API.Port,
		Handler:           handler,
		ReadTimeout:       ReadTimeout,
		ReadHeaderTimeout: ReadHeaderTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
		MaxHeaderBytes:    MaxHeaderBytes,
	}

	return &Server{
		httpServer: httpServer,
		cfg:        cfg.Config,
		log:        cfg.Logger,
		throttle:   cfg.Throttle,
	}, nil
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info("Starting API server", "port", s.cfg.API.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down API server...")

	if s.throttle != nil {
		s.throttle.Close()
	}

	return s.httpServer.Shutdown(ctx)
}

// Private networks for internal-only middleware
var privateNetworks = []net.IPNet{
	{IP: net.ParseIP("10.0.0.0"), Mask: net.CIDRMask(8, 32)},
	{IP: net.ParseIP("172.16.0.0"), Mask: net.CIDRMask(12, 32)},
	{IP: net.ParseIP("192.168.0.0"), Mask: net.CIDRMask(16, 32)},
	{IP: net.ParseIP("127.0.0.0"), Mask: net.CIDRMask(8, 32)},
}

// internalOnlyMiddleware restricts access to internal networks.
func internalOnlyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Deny if X-Forwarded-For is present (came through load balancer)
		if r.Header.Get("X-Forwarded-For") != "" {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		if isInternalRequest(r.RemoteAddr) {
			next.ServeHTTP(w, r)
			return
		}

		http.Error(w, "Forbidden", http.StatusForbidden)
	})
}

// isInternalRequest checks if the request is from an internal network.
func isInternalRequest(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return false
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}

	for _, network := range privateNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return ip.IsLoopback()
}
