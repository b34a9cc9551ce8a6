package auth

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	DefaultMaxLoginFailures = 5
	DefaultLockoutWindow    = 15 * time.Minute
	throttleSweepInterval   = 5 * time.Minute
)

type failureWindow struct {
	failures int
	start    time.Time
}

// LoginThrottle locks out client IPs that accumulate too many failed login
// attempts within a sliding window.
type LoginThrottle struct {
	mu      sync.Mutex
	byIP    map[string]*failureWindow
	max     int
	window  time.Duration
	done    chan struct{}
	closeMu sync.Once
}

// NewLoginThrottle creates a LoginThrottle and starts its background sweep.
// A max of 0 uses DefaultMaxLoginFailures; a zero window uses
// DefaultLockoutWindow.
func NewLoginThrottle(max int, window time.Duration) *LoginThrottle {
	if max <= 0 {
		max = DefaultMaxLoginFailures
	}
	if window <= 0 {
		window = DefaultLockoutWindow
	}
	t := &LoginThrottle{
		byIP:   make(map[string]*failureWindow),
		max:    max,
		window: window,
		done:   make(chan struct{}),
	}
	go t.sweep()
	return t
}

func (t *LoginThrottle) sweep() {
	ticker := time.NewTicker(throttleSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.mu.Lock()
			now := time.Now()
			for ip, w := range t.byIP {
				if now.Sub(w.start) > t.window {
					delete(t.byIP, ip)
				}
			}
			t.mu.Unlock()
		}
	}
}

// Close stops the background sweep.
func (t *LoginThrottle) Close() {
	t.closeMu.Do(func() { close(t.done) })
}

// Allow reports whether the IP may attempt a login.
func (t *LoginThrottle) Allow(ip string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	w, ok := t.byIP[ip]
	if !ok || time.Since(w.start) > t.window {
		return true
	}
	return w.failures < t.max
}

// Fail records a failed login attempt for the IP.
func (t *LoginThrottle) Fail(ip string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	w, ok := t.byIP[ip]
	if !ok || time.Since(w.start) > t.window {
		t.byIP[ip] = &failureWindow{failures: 1, start: time.Now()}
		return
	}
	w.failures++
}

// Succeed clears the failure record for the IP after a successful login.
func (t *LoginThrottle) Succeed(ip string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byIP, ip)
}

// ClientIP extracts the originating client IP, honoring proxy headers.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
