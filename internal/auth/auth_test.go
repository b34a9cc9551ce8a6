package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewJWTService(t *testing.T) {
	tests := []struct {
		name    string
		secret  []byte
		wantErr error
	}{
		{"valid secret", []byte("a-very-long-secret-that-is-at-least-32-chars"), nil},
		{"empty secret", []byte{}, ErrMissingSecret},
		{"nil secret", nil, ErrMissingSecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewJWTService(tt.secret)
			if err != tt.wantErr {
				t.Errorf("NewJWTService() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestJWTService_GenerateAndValidate(t *testing.T) {
	svc, err := NewJWTService([]byte("test-secret-that-is-long-enough-for-testing"))
	if err != nil {
		t.Fatalf("NewJWTService() error = %v", err)
	}

	token, err := svc.GenerateToken("u1")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if token == "" {
		t.Fatal("GenerateToken() returned empty token")
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.UserID != "u1" {
		t.Errorf("claims.UserID = %s, want u1", claims.UserID)
	}
	if claims.Scope != ScopeSession {
		t.Errorf("claims.Scope = %s, want %s", claims.Scope, ScopeSession)
	}
}

func TestJWTService_EmbedToken(t *testing.T) {
	svc, _ := NewJWTService([]byte("test-secret-that-is-long-enough-for-testing"))

	token, err := svc.GenerateEmbedToken("u1", "abc123")
	if err != nil {
		t.Fatalf("GenerateEmbedToken() error = %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.Scope != ScopeEmbed {
		t.Errorf("claims.Scope = %s, want %s", claims.Scope, ScopeEmbed)
	}
	if claims.VideoID != "abc123" {
		t.Errorf("claims.VideoID = %s, want abc123", claims.VideoID)
	}
}

func TestJWTService_ValidateToken_Invalid(t *testing.T) {
	svc, _ := NewJWTService([]byte("test-secret-that-is-long-enough-for-testing"))

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"invalid format", "not-a-jwt"},
		{"wrong signature", "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.eyJ1c2VySWQiOiJ0ZXN0In0.wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateToken(tt.token)
			if err == nil {
				t.Error("ValidateToken() expected error for invalid token")
			}
		})
	}
}

func TestJWTService_ValidateToken_WrongSecret(t *testing.T) {
	svc1, _ := NewJWTService([]byte("secret-one-that-is-long-enough"))
	svc2, _ := NewJWTService([]byte("secret-two-that-is-different"))

	token, _ := svc1.GenerateToken("u1")

	if _, err := svc2.ValidateToken(token); err == nil {
		t.Error("ValidateToken() should fail with wrong secret")
	}
}

func TestLoginThrottle(t *testing.T) {
	throttle := NewLoginThrottle(3, time.Minute)
	defer throttle.Close()

	ip := "192.168.1.1"

	if !throttle.Allow(ip) {
		t.Error("Allow() = false before any failures")
	}

	throttle.Fail(ip)
	throttle.Fail(ip)
	if !throttle.Allow(ip) {
		t.Error("Allow() = false after 2 failures (max is 3)")
	}

	throttle.Fail(ip)
	if throttle.Allow(ip) {
		t.Error("Allow() = true after 3 failures")
	}

	throttle.Succeed(ip)
	if !throttle.Allow(ip) {
		t.Error("Allow() = false after Succeed()")
	}
}

func TestLoginThrottle_WindowExpiry(t *testing.T) {
	throttle := NewLoginThrottle(1, 50*time.Millisecond)
	defer throttle.Close()

	ip := "192.168.1.1"

	throttle.Fail(ip)
	if throttle.Allow(ip) {
		t.Error("Allow() = true immediately after lockout")
	}

	time.Sleep(60 * time.Millisecond)

	if !throttle.Allow(ip) {
		t.Error("Allow() = false after window expired")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		xri        string
		remoteAddr string
		want       string
	}{
		{"X-Forwarded-For single", "192.168.1.1", "", "127.0.0.1:8080", "192.168.1.1"},
		{"X-Forwarded-For multiple", "192.168.1.1, 10.0.0.1, 172.16.0.1", "", "127.0.0.1:8080", "192.168.1.1"},
		{"X-Real-IP", "", "192.168.1.1", "127.0.0.1:8080", "192.168.1.1"},
		{"RemoteAddr with port", "", "", "192.168.1.1:12345", "192.168.1.1"},
		{"RemoteAddr without port", "", "", "192.168.1.1", "192.168.1.1"},
		{"X-Forwarded-For takes precedence", "10.0.0.1", "192.168.1.1", "127.0.0.1:8080", "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}

			got := ClientIP(req)
			if got != tt.want {
				t.Errorf("ClientIP() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestJWTService_Middleware(t *testing.T) {
	svc, _ := NewJWTService([]byte("test-secret-that-is-long-enough-for-testing"))

	handler := svc.Middleware(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			t.Error("claims not found in context")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(claims.UserID))
	})

	token, _ := svc.GenerateToken("u1")

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("handler returned %d, want %d", rr.Code, http.StatusOK)
		}
		if rr.Body.String() != "u1" {
			t.Errorf("handler returned %s, want u1", rr.Body.String())
		}
	})

	t.Run("missing token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("handler returned %d, want %d", rr.Code, http.StatusUnauthorized)
		}
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("Authorization", "Bearer invalid-token")
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("handler returned %d, want %d", rr.Code, http.StatusUnauthorized)
		}
	})

	t.Run("embed token rejected for session routes", func(t *testing.T) {
		embedToken, _ := svc.GenerateEmbedToken("u1", "abc123")
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("Authorization", "Bearer "+embedToken)
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusForbidden {
			t.Errorf("handler returned %d, want %d", rr.Code, http.StatusForbidden)
		}
	})
}
