// Package api exposes the pharmacy services over REST under /api.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"spis/m/domain"
	"spis/m/internal/analytics"
	"spis/m/internal/apperr"
	"spis/m/internal/auth"
	"spis/m/internal/config"
	"spis/m/internal/inventory"
	"spis/m/internal/logger"
	"spis/m/internal/metrics"
	"spis/m/internal/sales"
	"spis/m/internal/suppliers"
	"spis/m/internal/users"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the HTTP layer is built from. Limiter and MetricsHandler are optional.
type Deps struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             Pinger
	Auth           *auth.Service
	Users          *users.Repository
	Inventory      *inventory.Repository
	Suppliers      *suppliers.Repository
	Sales          *sales.Service
	Analytics      *analytics.Service
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
	Limiter        RateLimitStore
}

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	cfg            *config.Config
	log            *logger.Logger
	db             Pinger
	auth           *auth.Service
	users          *users.Repository
	inventory      *inventory.Repository
	suppliers      *suppliers.Repository
	sales          *sales.Service
	analytics      *analytics.Service
	metrics        *metrics.Metrics
	metricsHandler http.Handler
	limiter        RateLimitStore
}

func New(d Deps) (*Handler, error) {
	if d.Config == nil || d.DB == nil || d.Auth == nil || d.Users == nil || d.Inventory == nil ||
		d.Suppliers == nil || d.Sales == nil || d.Analytics == nil {
		return nil, errors.New("api: missing dependency")
	}
	log := d.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		cfg:            d.Config,
		log:            log,
		db:             d.DB,
		auth:           d.Auth,
		users:          d.Users,
		inventory:      d.Inventory,
		suppliers:      d.Suppliers,
		sales:          d.Sales,
		analytics:      d.Analytics,
		metrics:        d.Metrics,
		metricsHandler: d.MetricsHandler,
		limiter:        d.Limiter,
	}, nil
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(h.requestID)
	r.Use(h.observe)
	r.Use(h.recoverer)
	r.Use(h.cors())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(r.Context(), h.log, w, apperr.New(apperr.CodeNotFound, "route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusMethodNotAllowed, errorEnvelope{Message: "method not allowed", Code: "METHOD_NOT_ALLOWED"})
	})

	r.Get("/health", h.health)
	if h.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", h.metricsHandler)
	}

	limits := h.cfg.RateLimit
	loginPolicy := rateLimitPolicy{name: "login", window: limits.LoginWindow, ipLimit: limits.LoginIPLimit, emailLimit: limits.LoginEmailLimit}
	registerPolicy := rateLimitPolicy{name: "register", window: limits.RegisterWindow, ipLimit: limits.RegisterIPLimit, emailLimit: limits.RegisterEmailLimit}

	staff := []domain.Role{domain.RoleAdmin, domain.RoleManager}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(h.rateLimit(registerPolicy)).Post("/register", h.register)
			r.With(h.rateLimit(loginPolicy)).Post("/login", h.login)
			r.Post("/refresh", h.refresh)
			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware)
				r.Get("/profile", h.profile)
				r.Post("/logout", h.logout)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware)

			r.Route("/inventory", func(r chi.Router) {
				r.Get("/", h.listMedicines)
				r.Get("/low-stock", h.lowStock)
				r.Get("/expiring-soon", h.expiringSoon)
				r.Get("/{id}", h.getMedicine)
				r.Get("/{id}/logs", h.medicineLogs)
				r.With(h.requireRole(staff...)).Post("/", h.createMedicine)
				r.With(h.requireRole(staff...)).Put("/{id}", h.updateMedicine)
				r.With(h.requireRole(staff...)).Post("/{id}/restock", h.restockMedicine)
				r.With(h.requireRole(domain.RoleAdmin)).Delete("/{id}", h.deleteMedicine)
			})

			r.Route("/sales", func(r chi.Router) {
				r.Post("/", h.createSale)
				r.Get("/", h.listSales)
				r.With(h.requireRole(staff...)).Get("/export", h.exportSales)
				r.Get("/{id}", h.getSale)
			})

			r.Route("/suppliers", func(r chi.Router) {
				r.Get("/", h.listSuppliers)
				r.Get("/{id}", h.getSupplier)
				r.With(h.requireRole(staff...)).Post("/", h.createSupplier)
				r.With(h.requireRole(staff...)).Put("/{id}", h.updateSupplier)
				r.With(h.requireRole(domain.RoleAdmin)).Delete("/{id}", h.deleteSupplier)
			})

			r.Route("/users", func(r chi.Router) {
				r.With(h.requireRole(domain.RoleAdmin)).Get("/", h.listUsers)
				r.With(h.requireRole(domain.RoleAdmin)).Post("/", h.createUser)
				r.Get("/{id}", h.getUser)
				r.Put("/{id}", h.updateUser)
				r.With(h.requireRole(domain.RoleAdmin)).Patch("/{id}/toggle-status", h.toggleUserStatus)
				r.Patch("/{id}/reset-password", h.resetPassword)
			})

			r.Route("/analytics", func(r chi.Router) {
				r.Get("/daily-sales", h.dailySales)
				r.Get("/top-medicines", h.topMedicines)
				r.Get("/category-stock", h.categoryStock)
				r.Get("/recent-sales", h.recentSales)
				r.Get("/summary", h.summary)
				r.Get("/expiry-risk", h.expiryRisk)
			})
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		respondError(r.Context(), h.log, w, apperr.Wrap(apperr.CodeDependency, err, "database unreachable"))
		return
	}
	respondData(w, http.StatusOK, map[string]string{"status": "ok"}, "")
}
