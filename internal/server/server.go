package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hongminglow/storefront-be/internal/account"
	"github.com/hongminglow/storefront-be/internal/config"
	"github.com/hongminglow/storefront-be/internal/http/handlers"
	"github.com/hongminglow/storefront-be/internal/metrics"
	"github.com/hongminglow/storefront-be/internal/middleware"
)

// Deps are the services the HTTP layer is built on.
type Deps struct {
	Tokens       middleware.TokenParser
	Verification handlers.Verifier
	Onboarding   handlers.Onboarder
	Accounts     *account.Service
	Gate         *middleware.Gate
	Stores       handlers.StoreTemplates
	Metrics      *metrics.Metrics
	Health       map[string]handlers.Pinger
	Log          *zap.Logger
}

// Server wraps an http.Server with configured routes.
type Server struct {
	inner *http.Server
}

// New wires up middleware, routes, and returns a ready server.
func New(cfg config.Config, deps Deps) *Server {
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           Router(cfg, deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return &Server{inner: httpServer}
}

// Router builds the full route table; exposed for tests.
func Router(cfg config.Config, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logging(deps.Log))
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins()))

	cookies := handlers.Cookies{
		Secure:     cfg.IsProduction(),
		Domain:     cfg.CookieDomain,
		AccessTTL:  cfg.AccessTTL(),
		RefreshTTL: cfg.RefreshTTL(),
	}
	authn := middleware.Authenticate(deps.Tokens)

	handlers.NewHealthHandler(time.Now(), deps.Health).Register(r)
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	handlers.NewVerificationHandler(deps.Verification, cookies, cfg.OTPDigits, deps.Log).Register(r)
	handlers.NewAuthHandler(deps.Accounts, cookies, deps.Log).Register(r)
	handlers.NewUserHandler(deps.Onboarding, deps.Accounts, cookies, deps.Log).Register(r, authn)
	handlers.NewStoreHandler(deps.Stores, deps.Log).Register(r, authn, deps.Gate)

	return r
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
