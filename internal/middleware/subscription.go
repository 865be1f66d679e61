package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hongminglow/storefront-be/internal/clock"
	"github.com/hongminglow/storefront-be/internal/http/respond"
	"github.com/hongminglow/storefront-be/internal/metrics"
	"github.com/hongminglow/storefront-be/internal/models"
	"github.com/hongminglow/storefront-be/internal/storage"
	"github.com/hongminglow/storefront-be/internal/subscription"
)

// StoreLookup finds the store a gated request is about.
type StoreLookup interface {
	FindStoreByOwner(ctx context.Context, userID int64) (models.Store, error)
	FindStoreByName(ctx context.Context, name string) (models.Store, error)
}

type storeKey struct{}

// StoreFrom returns the store admitted by one of the gates.
func StoreFrom(ctx context.Context) (models.Store, bool) {
	store, ok := ctx.Value(storeKey{}).(models.Store)
	return store, ok
}

// Gate runs the subscription validity check before store-scoped handlers.
type Gate struct {
	stores  StoreLookup
	clock   clock.Clock
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewGate(stores StoreLookup, clk clock.Clock, log *zap.Logger, m *metrics.Metrics) *Gate {
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{stores: stores, clock: clk, log: log, metrics: m}
}

// Owner gates on the authenticated user's own store. It must run after Authenticate.
func (g *Gate) Owner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFrom(r.Context())
		if !ok {
			respond.Error(w, http.StatusUnauthorized, "missing access token")
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			respond.Error(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		store, err := g.stores.FindStoreByOwner(r.Context(), userID)
		g.serve(w, r, next, store, err, subscription.ModeOwner)
	})
}

// Public gates on the store named by the {param} URL parameter.
func (g *Gate) Public(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			store, err := g.stores.FindStoreByName(r.Context(), chi.URLParam(r, param))
			g.serve(w, r, next, store, err, subscription.ModePublic)
		})
	}
}

func (g *Gate) serve(w http.ResponseWriter, r *http.Request, next http.Handler, store models.Store, err error, mode subscription.Mode) {
	var found *models.Store
	switch {
	case err == nil:
		found = &store
	case !errors.Is(err, storage.ErrNotFound):
		g.log.Error("subscription gate lookup failed", zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, "unable to check subscription")
		return
	}

	decision := subscription.Evaluate(found, g.clock.Now(), mode)
	if !decision.Allowed() {
		g.metrics.GateDecision(gateLabel(decision))
		respond.ErrorWithCode(w, decision.Status, string(decision.Code), decision.Message)
		return
	}
	g.metrics.GateDecision(metrics.ResultOK)
	next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), storeKey{}, store)))
}

func gateLabel(d subscription.Decision) string {
	if d.Code != "" {
		return string(d.Code)
	}
	return d.Outcome.String()
}
