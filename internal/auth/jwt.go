// Package auth provides JWT issuance and verification for the API surface.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token lifetimes
const (
	SessionTokenTTL = 24 * time.Hour
	EmbedTokenTTL   = 10 * time.Minute

	Issuer = "vod-pipeline"
)

// Scopes
const (
	ScopeSession = "session"
	ScopeEmbed   = "embed"
)

var (
	ErrMissingSecret = errors.New("jwt secret is required")
	ErrInvalidToken  = errors.New("invalid or expired token")
)

// Claims carried by pipeline tokens. Embed tokens pin VideoID and may only
// be used for playback of that single video.
type Claims struct {
	UserID  string `json:"userId"`
	Scope   string `json:"scope"`
	VideoID string `json:"videoId,omitempty"`
	jwt.RegisteredClaims
}

// JWTService signs and verifies pipeline tokens.
type JWTService struct {
	secret []byte
}

// NewJWTService creates a JWTService.
func NewJWTService(secret []byte) (*JWTService, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}
	return &JWTService{secret: secret}, nil
}

// GenerateToken issues a session token for the given user.
func (s *JWTService) GenerateToken(userID string) (string, error) {
	return s.sign(&Claims{
		UserID: userID,
		Scope:  ScopeSession,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(SessionTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    Issuer,
		},
	})
}

// GenerateEmbedToken issues a short-lived token scoped to a single video,
// suitable for embedding players on third-party pages.
func (s *JWTService) GenerateEmbedToken(userID, videoID string) (string, error) {
	return s.sign(&Claims{
		UserID:  userID,
		Scope:   ScopeEmbed,
		VideoID: videoID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(EmbedTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    Issuer,
		},
	})
}

func (s *JWTService) sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken parses a token string and returns its claims.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

type contextKey string

const claimsKey contextKey = "claims"

// ClaimsFromContext returns the claims stored by the middleware.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok
}

// Middleware authenticates requests with "Authorization: Bearer <token>" and
// stores the claims on the request context. Only session-scoped tokens pass;
// embed tokens are accepted solely by the playback path, which checks scope
// itself.
func (s *JWTService) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header missing", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization format", http.StatusUnauthorized)
			return
		}

		claims, err := s.ValidateToken(parts[1])
		if err != nil {
			http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}
		if claims.Scope != ScopeSession {
			http.Error(w, "Token scope not permitted", http.StatusForbidden)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}
