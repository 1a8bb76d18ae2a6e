package httpapi

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

type authError struct {
	status  int
	code    string
	message string
}

func (e *authError) Error() string {
	return e.message
}

const pinHeader = "X-Teacher-Pin"

// pinLimiter throttles failed PIN attempts per client so the four-digit
// PIN cannot be brute forced. Successful requests are never counted.
type pinLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	entries map[string]limiterEntry
}

type limiterEntry struct {
	failures int
	resetAt  time.Time
}

func newPinLimiter(max int, window time.Duration) *pinLimiter {
	return &pinLimiter{
		window:  window,
		max:     max,
		entries: map[string]limiterEntry{},
	}
}

func (l *pinLimiter) blocked(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[key]
	if !ok || now.After(entry.resetAt) {
		return false
	}
	return entry.failures >= l.max
}

func (l *pinLimiter) fail(key string, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[key]
	if !ok || now.After(entry.resetAt) {
		l.entries[key] = limiterEntry{failures: 1, resetAt: now.Add(l.window)}
		return
	}
	entry.failures++
	l.entries[key] = entry
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// authorizePIN validates the teacher PIN taken from the request header or,
// when absent, from the decoded body. The comparison is constant time.
func (s *Server) authorizePIN(r *http.Request, bodyPIN string, now time.Time) *authError {
	if s.cfg.PIN == "" {
		return &authError{status: http.StatusUnauthorized, code: "unauthorized", message: "editing is not enabled"}
	}
	key := clientKey(r)
	if s.pinLimiter.blocked(key, now) {
		return &authError{status: http.StatusTooManyRequests, code: "rate_limited", message: "too many failed attempts"}
	}
	pin := strings.TrimSpace(r.Header.Get(pinHeader))
	if pin == "" {
		pin = strings.TrimSpace(bodyPIN)
	}
	if subtle.ConstantTimeCompare([]byte(pin), []byte(s.cfg.PIN)) != 1 {
		s.pinLimiter.fail(key, now)
		return &authError{status: http.StatusUnauthorized, code: "bad_pin", message: "invalid pin"}
	}
	return nil
}
