package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vodworks/pipeline/internal/auth"
	"github.com/vodworks/pipeline/internal/config"
	"github.com/vodworks/pipeline/internal/metrics"
	"github.com/vodworks/pipeline/internal/playback"
	"github.com/vodworks/pipeline/internal/storage"
	"github.com/vodworks/pipeline/pkg/models"
)

var tracer = otel.Tracer("vod-api")

// Configuration constants
const (
	PresignedURLExpiration = 5 * time.Minute
	MaxFilenameLength      = 255
	MaxRequestBodySize     = 1 << 20 // 1 MB
)

// Allowed video extensions and content types
var (
	AllowedExtensions = map[string]bool{
		".mp4":  true,
		".mov":  true,
		".avi":  true,
		".mkv":  true,
		".webm": true,
	}

	AllowedContentTypes = map[string]bool{
		"video/mp4":        true,
		"video/quicktime":  true,
		"video/x-msvideo":  true,
		"video/x-matroska": true,
		"video/webm":       true,
	}
)

// ObjectStore defines the object storage operations handlers need.
type ObjectStore interface {
	PresignUpload(ctx context.Context, bucket, key, contentType string, lifetime time.Duration) (string, error)
	ListKeys(ctx context.Context, bucket, prefix string) ([]string, error)
}

// Ledger defines the ledger operations handlers need.
type Ledger interface {
	ListByUser(ctx context.Context, userID string) ([]models.VideoRecord, error)
	GetByVideoID(ctx context.Context, videoID string) (*models.VideoRecord, error)
}

// PlaybackSigner signs playback grants for completed renditions.
type PlaybackSigner interface {
	SignPlayback(videoID, resolution string) (*playback.PlaybackGrant, error)
}

// Handlers contains all HTTP handlers for the API.
type Handlers struct {
	cfg        *config.Config
	log        *slog.Logger
	store      ObjectStore
	ledger     Ledger
	jwtService *auth.JWTService
	throttle   *auth.LoginThrottle
	signer     PlaybackSigner
}

// HandlersConfig holds dependencies for handlers.
type HandlersConfig struct {
	Config     *config.Config
	Logger     *slog.Logger
	Store      ObjectStore
	Ledger     Ledger
	JWTService *auth.JWTService
	Throttle   *auth.LoginThrottle
	Signer     PlaybackSigner
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(cfg *HandlersConfig) *Handlers {
	return &Handlers{
		cfg:        cfg.Config,
		log:        cfg.Logger,
		store:      cfg.Store,
		ledger:     cfg.Ledger,
		jwtService: cfg.JWTService,
		throttle:   cfg.Throttle,
		signer:     cfg.Signer,
	}
}

// writeJSON writes a JSON response.
func (h *Handlers) writeJSON(ctx context.Context, w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.ErrorContext(ctx, "Failed to encode JSON response", "error", err)
	}
}

// writeError writes an error response.
func (h *Handlers) writeError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	h.writeJSON(ctx, w, status, map[string]string{"error": message})
}

// limitRequestBody wraps the request body with a size limit.
func (h *Handlers) limitRequestBody(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
}

// LoginHandler handles user authentication and returns a JWT token.
func (h *Handlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	clientIP := auth.ClientIP(r)

	if h.throttle != nil && !h.throttle.Allow(clientIP) {
		metrics.AuthFailures.WithLabelValues("throttled").Inc()
		h.writeError(ctx, w, http.StatusTooManyRequests, "Too many failed attempts")
		return
	}

	username, password, ok := r.BasicAuth()
	if !ok {
		h.writeError(ctx, w, http.StatusUnauthorized, "Missing credentials")
		return
	}

	expectedUsername, expectedPassword, err := h.cfg.GetAPICredentials()
	if err != nil {
		h.log.ErrorContext(ctx, "Failed to get API credentials", "error", err)
		h.writeError(ctx, w, http.StatusInternalServerError, "Server configuration error")
		return
	}

	if username != expectedUsername || password != expectedPassword {
		if h.throttle != nil {
			h.throttle.Fail(clientIP)
		}
		metrics.AuthFailures.WithLabelValues("bad_credentials").Inc()
		h.log.WarnContext(ctx, "Failed login attempt", "username", username, "ip", clientIP)
		h.writeError(ctx, w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := h.jwtService.GenerateToken(username)
	if err != nil {
		h.log.ErrorContext(ctx, "Failed to generate token", "error", err)
		h.writeError(ctx, w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	if h.throttle != nil {
		h.throttle.Succeed(clientIP)
	}
	h.log.InfoContext(ctx, "Successful login", "username", username, "ip", clientIP)
	h.writeJSON(ctx, w, http.StatusOK, map[string]string{"token": token})
}

// UploadURLRequest is the request payload for requesting an upload URL.
type UploadURLRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
}

// UploadURLResponse is the response payload carrying the presigned upload URL.
type UploadURLResponse struct {
	UploadURL string `json:"uploadUrl"`
	VideoID   string `json:"videoId"`
	Key       string `json:"key"`
	ExpiresIn int    `json:"expiresIn"`
}

// UploadURLHandler issues a presigned PUT URL for a raw video upload. The key
// embeds the caller's user ID as its first path segment so downstream
// processing can attribute the upload.
func (h *Handlers) UploadURLHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims, ok := auth.ClaimsFromContext(ctx)
	if !ok {
		h.writeError(ctx, w, http.StatusUnauthorized, "Authentication required")
		return
	}

	ctx, span := tracer.Start(ctx, "upload-url-handler",
		trace.WithAttributes(
			attribute.String("user.id", claims.UserID),
		))
	defer span.End()

	h.limitRequestBody(w, r)

	var req UploadURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		span.RecordError(err)
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.writeError(ctx, w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		h.writeError(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validateFilename(req.Filename); err != nil {
		span.RecordError(err)
		h.writeError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	if err := validateContentType(req.ContentType); err != nil {
		span.RecordError(err)
		h.writeError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	videoID := uuid.New().String()
	ext := strings.ToLower(filepath.Ext(req.Filename))
	key := fmt.Sprintf("%s/%s%s", claims.UserID, videoID, ext)

	span.SetAttributes(
		attribute.String("video.id", videoID),
		attribute.String("video.key", key),
		attribute.String("video.content_type", req.ContentType),
	)

	uploadURL, err := h.store.PresignUpload(ctx, h.cfg.AWS.RawBucket, key, req.ContentType, PresignedURLExpiration)
	if err != nil {
		span.RecordError(err)
		h.log.ErrorContext(ctx, "Failed to generate presigned URL",
			"error", err,
			"videoId", videoID,
		)
		h.writeError(ctx, w, http.StatusInternalServerError, "Internal server error")
		return
	}

	metrics.UploadsInitiated.Inc()
	h.log.InfoContext(ctx, "Generated presigned URL",
		"videoId", videoID,
		"key", key,
		"userId", claims.UserID,
	)

	h.writeJSON(ctx, w, http.StatusOK, UploadURLResponse{
		UploadURL: uploadURL,
		VideoID:   videoID,
		Key:       key,
		ExpiresIn: int(PresignedURLExpiration.Seconds()),
	})
}

// ListVideosHandler returns the caller's ledger rows with derived rendition
// URLs for completed videos.
func (h *Handlers) ListVideosHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims, ok := auth.ClaimsFromContext(ctx)
	if !ok {
		h.writeError(ctx, w, http.StatusUnauthorized, "Authentication required")
		return
	}

	ctx, span := tracer.Start(ctx, "list-videos-handler",
		trace.WithAttributes(attribute.String("user.id", claims.UserID)))
	defer span.End()

	videos, err := h.ledger.ListByUser(ctx, claims.UserID)
	if err != nil {
		span.RecordError(err)
		h.log.ErrorContext(ctx, "Failed to list videos", "error", err, "userId", claims.UserID)
		h.writeError(ctx, w, http.StatusInternalServerError, "Failed to retrieve videos")
		return
	}

	for i := range videos {
		h.attachRenditions(ctx, &videos[i])
	}

	h.writeJSON(ctx, w, http.StatusOK, map[string]any{"videos": videos})
}

// GetVideoHandler returns a single ledger row, enforcing ownership.
func (h *Handlers) GetVideoHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims, ok := auth.ClaimsFromContext(ctx)
	if !ok {
		h.writeError(ctx, w, http.StatusUnauthorized, "Authentication required")
		return
	}

	videoID := r.PathValue("videoId")
	ctx, span := tracer.Start(ctx, "get-video-handler",
		trace.WithAttributes(attribute.String("video.id", videoID)))
	defer span.End()

	video, err := h.fetchOwnedVideo(ctx, w, videoID, claims.UserID)
	if err != nil {
		return
	}

	h.attachRenditions(ctx, video)
	h.writeJSON(ctx, w, http.StatusOK, video)
}

// PlaybackResponse carries a signed playback grant.
type PlaybackResponse struct {
	PlaylistURL string    `json:"playlistUrl"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// PlaybackHandler returns CloudFront signed cookies and the playlist URL for
// one rendition of a completed video. It accepts either a session token that
// owns the video or an embed token pinned to it.
func (h *Handlers) PlaybackHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	videoID := r.PathValue("videoId")
	ctx, span := tracer.Start(ctx, "playback-handler",
		trace.WithAttributes(attribute.String("video.id", videoID)))
	defer span.End()

	claims, err := h.playbackClaims(r, videoID)
	if err != nil {
		metrics.AuthFailures.WithLabelValues("playback").Inc()
		h.writeError(ctx, w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}

	quality := r.URL.Query().Get("quality")
	resolution, ok := storage.ResolutionForQuality(quality)
	if !ok {
		h.writeError(ctx, w, http.StatusBadRequest, fmt.Sprintf("unknown quality: %q", quality))
		return
	}

	video, err := h.ledger.GetByVideoID(ctx, videoID)
	if err != nil {
		if errors.Is(err, models.ErrVideoNotFound) {
			h.writeError(ctx, w, http.StatusNotFound, "Video not found")
			return
		}
		span.RecordError(err)
		h.log.ErrorContext(ctx, "Failed to look up video", "error", err, "videoId", videoID)
		h.writeError(ctx, w, http.StatusInternalServerError, "Failed to retrieve video")
		return
	}

	// Session tokens must own the video; embed tokens were already pinned.
	if claims.Scope == auth.ScopeSession && video.UserID != claims.UserID {
		h.writeError(ctx, w, http.StatusNotFound, "Video not found")
		return
	}

	if video.Status != models.StatusCompleted {
		h.writeError(ctx, w, http.StatusConflict, "Video is not ready for playback")
		return
	}

	grant, err := h.signer.SignPlayback(videoID, resolution)
	if err != nil {
		span.RecordError(err)
		h.log.ErrorContext(ctx, "Failed to sign playback grant", "error", err, "videoId", videoID)
		h.writeError(ctx, w, http.StatusInternalServerError, "Failed to sign playback")
		return
	}

	for _, cookie := range grant.Cookies {
		http.SetCookie(w, cookie)
	}

	h.log.InfoContext(ctx, "Signed playback grant",
		"videoId", videoID,
		"quality", quality,
		"expiresAt", grant.ExpiresAt,
	)

	h.writeJSON(ctx, w, http.StatusOK, PlaybackResponse{
		PlaylistURL: grant.PlaylistURL,
		ExpiresAt:   grant.ExpiresAt,
	})
}

// EmbedResponse carries a short-lived embed token.
type EmbedResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expiresIn"`
}

// EmbedHandler issues an embed-scoped token for one of the caller's videos.
func (h *Handlers) EmbedHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims, ok := auth.ClaimsFromContext(ctx)
	if !ok {
		h.writeError(ctx, w, http.StatusUnauthorized, "Authentication required")
		return
	}

	videoID := r.PathValue("videoId")
	ctx, span := tracer.Start(ctx, "embed-handler",
		trace.WithAttributes(attribute.String("video.id", videoID)))
	defer span.End()

	if _, err := h.fetchOwnedVideo(ctx, w, videoID, claims.UserID); err != nil {
		return
	}

	token, err := h.jwtService.GenerateEmbedToken(claims.UserID, videoID)
	if err != nil {
		span.RecordError(err)
		h.log.ErrorContext(ctx, "Failed to generate embed token", "error", err, "videoId", videoID)
		h.writeError(ctx, w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, EmbedResponse{
		Token:     token,
		ExpiresIn: int(auth.EmbedTokenTTL.Seconds()),
	})
}

// fetchOwnedVideo loads a video and enforces ownership, writing the error
// response itself. Unowned videos read as not found.
func (h *Handlers) fetchOwnedVideo(ctx context.Context, w http.ResponseWriter, videoID, userID string) (*models.VideoRecord, error) {
	video, err := h.ledger.GetByVideoID(ctx, videoID)
	if err != nil {
		if errors.Is(err, models.ErrVideoNotFound) {
			h.writeError(ctx, w, http.StatusNotFound, "Video not found")
			return nil, err
		}
		h.log.ErrorContext(ctx, "Failed to look up video", "error", err, "videoId", videoID)
		h.writeError(ctx, w, http.StatusInternalServerError, "Failed to retrieve video")
		return nil, err
	}
	if video.UserID != userID {
		h.writeError(ctx, w, http.StatusNotFound, "Video not found")
		return nil, models.ErrVideoNotFound
	}
	return video, nil
}

// attachRenditions fills ProcessedURLs for completed videos from a listing of
// the processed bucket. Listing failures leave the field empty; the row itself
// is still returned.
func (h *Handlers) attachRenditions(ctx context.Context, video *models.VideoRecord) {
	if video.Status != models.StatusCompleted {
		return
	}
	keys, err := h.store.ListKeys(ctx, h.cfg.AWS.ProcessedBucket, video.VideoID+"/")
	if err != nil {
		h.log.WarnContext(ctx, "Failed to list renditions", "error", err, "videoId", video.VideoID)
		return
	}
	video.ProcessedURLs = storage.RenditionsFromKeys(video.VideoID, keys)
}

// playbackClaims validates the bearer token on a playback request. Embed
// tokens must be pinned to the requested video.
func (h *Handlers) playbackClaims(r *http.Request, videoID string) (*auth.Claims, error) {
	authHeader := r.Header.Get("Authorization")
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, auth.ErrInvalidToken
	}
	claims, err := h.jwtService.ValidateToken(parts[1])
	if err != nil {
		return nil, err
	}
	if claims.Scope == auth.ScopeEmbed && claims.VideoID != videoID {
		return nil, auth.ErrInvalidToken
	}
	return claims, nil
}

// Validation functions

func validateFilename(filename string) error {
	if filename == "" {
		return errors.New("filename is required")
	}
	if len(filename) > MaxFilenameLength {
		return models.ErrFilenameTooLong
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !AllowedExtensions[ext] {
		return fmt.Errorf("%w: allowed extensions are mp4, mov, avi, mkv, webm", models.ErrInvalidFileType)
	}

	return nil
}

func validateContentType(contentType string) error {
	if contentType == "" {
		return errors.New("content type is required")
	}
	if !AllowedContentTypes[contentType] {
		return fmt.Errorf("%w: %s", models.ErrInvalidContentType, contentType)
	}
	return nil
}
