package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jalgreatworks0/clientforge-auth/internal/app"
	"github.com/jalgreatworks0/clientforge-auth/internal/config"
	"github.com/jalgreatworks0/clientforge-auth/internal/http/handlers"
	"github.com/jalgreatworks0/clientforge-auth/internal/http/middlewares"
)

// NewRouter monta la API completa:
//
//	/api/v1/auth/sso/*      flujo SSO
//	/api/v1/auth/mfa/*      segundo factor
//	/api/v1/auth/token/*    refresh de sesión
//	/api/v1/admin/*         administración (X-Admin-Key)
//	/healthz /readyz /metrics
func NewRouter(c *app.Container) http.Handler {
	h := handlers.New(c)
	cfg := c.Cfg

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middlewares.WithRequestID())
	r.Use(middlewares.WithCORS(cfg.Server.CORSAllowedOrigins))
	r.Use(middlewares.WithLogging(routePattern))

	rl := func(endpoint string, rule config.RateRule, defWindow time.Duration) func(http.Handler) http.Handler {
		return middlewares.WithRateLimit(c.Limiter, endpoint, rule.Limit, rule.WindowDur(defWindow))
	}
	auth := middlewares.RequireAuth(c.Issuer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Route("/sso", func(r chi.Router) {
				r.With(rl("sso_initiate", cfg.Rate.Initiate, time.Minute)).
					Post("/initiate", h.SSOInitiate)
				r.Get("/providers", h.SSOProviders)
				r.With(rl("sso_callback", cfg.Rate.Callback, time.Minute)).
					Post("/callback", h.SSOCallback)
				r.With(auth).Post("/logout", h.SSOLogout)
			})

			r.Route("/mfa", func(r chi.Router) {
				r.With(auth).Get("/status", h.MFAStatus)
				r.With(auth).Post("/setup/totp", h.MFASetupTOTP)
				// verify acepta mfa_token O sesión; el rate limit cubre ambos
				r.With(rl("mfa_verify", cfg.Rate.Verify, time.Minute)).
					Post("/verify", h.MFAVerify)
				r.With(auth, rl("backup_codes", cfg.Rate.BackupCodes, 10*time.Minute)).
					Post("/backup-codes/generate", h.MFABackupCodes)
				r.With(auth).Post("/disable", h.MFADisable)
			})

			r.Post("/token/refresh", h.TokenRefresh)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middlewares.RequireAdminKey(cfg.Server.AdminAPIKey))
			r.Post("/tenants", h.AdminCreateTenant)
			r.Get("/sso/providers", h.AdminListProviders)
			r.Put("/sso/providers", h.AdminUpsertProvider)
		})
	})

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

// routePattern usa el patrón de chi para el label del histograma.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
