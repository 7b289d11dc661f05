package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"spis/m/internal/apperr"
)

// RateLimitStore counts hits per key within a window.
type RateLimitStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

type rateLimitPolicy struct {
	name       string
	window     time.Duration
	ipLimit    int
	emailLimit int
}

func (p rateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.emailLimit > 0)
}

func (p rateLimitPolicy) ipKey(ip string) string {
	return fmt.Sprintf("rl:ip:%s:%s", p.name, ip)
}

func (p rateLimitPolicy) emailKey(hash string) string {
	return fmt.Sprintf("rl:email:%s:%s", p.name, hash)
}

// rateLimit throttles a credential endpoint per client IP and per submitted email.
// Without a store it is a pass-through.
func (h *Handler) rateLimit(p rateLimitPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if h.limiter == nil || !p.enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if p.ipLimit > 0 {
				if ip := clientIP(r); ip != "" {
					if !h.allow(ctx, w, p, "ip", p.ipKey(ip), p.ipLimit) {
						return
					}
				}
			}

			if p.emailLimit > 0 {
				body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
				if err != nil {
					respondError(ctx, h.log, w, apperr.Wrap(apperr.CodeValidation, err, "read request body"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))

				if email := extractEmail(body); email != "" {
					if !h.allow(ctx, w, p, "email", p.emailKey(hashValue(email)), p.emailLimit) {
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (h *Handler) allow(ctx context.Context, w http.ResponseWriter, p rateLimitPolicy, scope, key string, limit int) bool {
	count, err := h.limiter.IncrWithTTL(ctx, key, p.window)
	if err != nil {
		respondError(ctx, h.log, w, apperr.Wrap(apperr.CodeDependency, err, "rate limiting"))
		return false
	}
	if count <= int64(limit) {
		return true
	}
	h.log.Warn(h.log.WithFields(ctx, map[string]any{
		"scope":          scope,
		"policy":         p.name,
		"attempts":       count,
		"limit":          limit,
		"window_seconds": int(p.window.Seconds()),
	}), "auth.rate_limit.blocked")
	w.Header().Set("Retry-After", fmt.Sprint(int(p.window.Seconds())))
	respondError(ctx, h.log, w, apperr.New(apperr.CodeRateLimit, "too many attempts, try again later"))
	return false
}

func clientIP(r *http.Request) string {
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func extractEmail(payload []byte) string {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(body.Email))
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
