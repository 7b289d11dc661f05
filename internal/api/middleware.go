package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"spis/m/domain"
	"spis/m/internal/apperr"
	"spis/m/internal/auth"
)

type ctxKey string

const ctxIdentity ctxKey = "identity"

const requestIDHeader = "X-Request-Id"

func identityFrom(ctx context.Context) *auth.Identity {
	id, _ := ctx.Value(ctxIdentity).(*auth.Identity)
	return id
}

func (h *Handler) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, reqID)
		next.ServeHTTP(w, r.WithContext(h.log.WithRequestID(r.Context(), reqID)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// observe logs each request and records it against its route pattern, not the raw path.
func (h *Handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := h.log.WithFields(r.Context(), map[string]any{
			"method": r.Method,
			"path":   r.URL.Path,
		})
		rec := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		h.log.Debug(ctx, "request.start")

		next.ServeHTTP(rec, r.WithContext(ctx))

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(start)
		h.metrics.ObserveRequest(route, r.Method, rec.status, elapsed)
		h.log.Info(h.log.WithFields(ctx, map[string]any{
			"status":      rec.status,
			"duration_ms": elapsed.Milliseconds(),
		}), "request.complete")
	})
}

func (h *Handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				err := fmt.Errorf("panic: %v", rec)
				respondError(r.Context(), h.log, w, apperr.Wrap(apperr.CodeInternal, err, "panic"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) cors() func(http.Handler) http.Handler {
	origins := h.cfg.App.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}).Handler
}

func bearerToken(r *http.Request) (string, error) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" || !strings.HasPrefix(strings.ToLower(raw), "bearer ") {
		return "", apperr.New(apperr.CodeUnauthorized, "missing bearer token")
	}
	token := strings.TrimSpace(raw[len("bearer "):])
	if token == "" {
		return "", apperr.New(apperr.CodeUnauthorized, "missing bearer token")
	}
	return token, nil
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			respondError(r.Context(), h.log, w, err)
			return
		}
		id, err := h.auth.Authenticate(r.Context(), token)
		if err != nil {
			respondError(r.Context(), h.log, w, err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxIdentity, id)
		ctx = h.log.WithUserID(ctx, id.UserID)
		ctx = h.log.WithActorRole(ctx, string(id.Role))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole admits only the listed roles. It must run after authMiddleware.
func (h *Handler) requireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := identityFrom(r.Context())
			if id == nil {
				respondError(r.Context(), h.log, w, apperr.New(apperr.CodeUnauthorized, "authentication required"))
				return
			}
			for _, role := range roles {
				if id.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			respondError(r.Context(), h.log, w, apperr.New(apperr.CodeForbidden, "insufficient permissions"))
		})
	}
}
