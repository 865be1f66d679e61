package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hongminglow/storefront-be/internal/auth"
	"github.com/hongminglow/storefront-be/internal/clock"
	"github.com/hongminglow/storefront-be/internal/http/respond"
	"github.com/hongminglow/storefront-be/internal/models"
	"github.com/hongminglow/storefront-be/internal/storage"
	"github.com/hongminglow/storefront-be/internal/storage/memory"
)

var now = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

func newIssuer(t *testing.T, clk clock.Clock) *auth.TokenIssuer {
	t.Helper()
	issuer, err := auth.NewTokenIssuer(auth.Config{
		AccessSecret:  "access",
		RefreshSecret: "refresh",
		AccessTTL:     time.Hour,
		RefreshTTL:    24 * time.Hour,
	}, clk)
	require.NoError(t, err)
	return issuer
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) respond.Envelope {
	t.Helper()
	var env respond.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestAuthenticate(t *testing.T) {
	clk := clock.NewFake(now)
	issuer := newIssuer(t, clk)
	pair, err := issuer.Issue(auth.Principal{UserID: 7, Identity: models.EmailIdentity{Address: "a@example.com"}}, false)
	require.NoError(t, err)

	var seen *auth.Claims
	h := Authenticate(issuer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ClaimsFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("bearer", func(t *testing.T) {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, "7", seen.Subject)
	})

	t.Run("cookie", func(t *testing.T) {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: pair.AccessToken})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, seen)
	})

	t.Run("refresh token is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, http.StatusUnauthorized, decode(t, rec).Code)
	})

	t.Run("expired", func(t *testing.T) {
		clk.Advance(time.Hour + time.Second)
		t.Cleanup(func() { clk.Set(now) })
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestLoggingAssignsRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := chi.NewRouter()
	r.Use(Logging(zap.New(core)))
	var ctxID string
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		ctxID = RequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/3", nil))
	id := rec.Header().Get(RequestIDHeader)
	require.NotEmpty(t, id)
	assert.Equal(t, id, ctxID)

	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/items/{id}", fields["route"])
	assert.EqualValues(t, http.StatusTeapot, fields["status"])
	assert.Equal(t, id, fields["request_id"])

	req := httptest.NewRequest(http.MethodGet, "/items/4", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestCORSPreflight(t *testing.T) {
	h := CORS([]string{"https://shop.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/users/onboard", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://shop.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSWildcardEchoesOrigin(t *testing.T) {
	h := CORS([]string{"*"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://anywhere.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://anywhere.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func seedStore(t *testing.T, s *memory.Store, owner models.Identity, name string, sub *models.Subscription) models.User {
	t.Helper()
	ctx := context.Background()
	u, err := s.CreateUser(ctx, models.User{Identity: owner, Name: "Owner"})
	require.NoError(t, err)
	err = s.WithinTx(ctx, func(ctx context.Context, tx storage.OnboardingTx) error {
		store, err := tx.CreateStore(ctx, models.Store{UserID: u.ID, Name: name, Type: "retail"})
		if err != nil || sub == nil {
			return err
		}
		sub.StoreID = store.ID
		_, err = tx.CreateSubscription(ctx, *sub)
		return err
	})
	require.NoError(t, err)
	return u
}

func TestPublicGate(t *testing.T) {
	clk := clock.NewFake(now)
	s := memory.New(memory.WithClock(clk))
	trial := models.NewTrialSubscription(0, now.Add(-24*time.Hour))
	expired := models.NewTrialSubscription(0, now.AddDate(0, 0, -8))
	seedStore(t, s, models.EmailIdentity{Address: "a@example.com"}, "open", &trial)
	seedStore(t, s, models.EmailIdentity{Address: "b@example.com"}, "lapsed", &expired)
	seedStore(t, s, models.EmailIdentity{Address: "c@example.com"}, "bare", nil)

	gate := NewGate(s, clk, nil, nil)
	r := chi.NewRouter()
	r.With(gate.Public("storeName")).Get("/stores/{storeName}", func(w http.ResponseWriter, r *http.Request) {
		store, ok := StoreFrom(r.Context())
		require.True(t, ok)
		respond.JSON(w, http.StatusOK, "ok", store.Name)
	})

	cases := []struct {
		store   string
		status  int
		code    string
		message string
	}{
		{"open", http.StatusOK, "", "ok"},
		{"lapsed", http.StatusForbidden, "TRIAL_EXPIRED", "Store is temporarily unavailable."},
		{"bare", http.StatusForbidden, "SUBSCRIPTION_REQUIRED", "Store subscription not found."},
		{"missing", http.StatusNotFound, "", "Store not found"},
	}
	for _, tc := range cases {
		t.Run(tc.store, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stores/"+tc.store, nil))
			assert.Equal(t, tc.status, rec.Code)
			env := decode(t, rec)
			assert.Equal(t, tc.code, env.ErrorCode)
			assert.Equal(t, tc.message, env.Message)
		})
	}
}

func TestOwnerGate(t *testing.T) {
	clk := clock.NewFake(now)
	s := memory.New(memory.WithClock(clk))
	issuer := newIssuer(t, clk)

	active := models.Subscription{Status: models.StatusActive, StartDate: now.AddDate(0, -1, 0), EndDate: now.Add(-time.Second)}
	owner := seedStore(t, s, models.PhoneIdentity{Number: "+15550101"}, "shop", &active)
	storeless, err := s.CreateUser(context.Background(), models.User{Identity: models.PhoneIdentity{Number: "+15550102"}})
	require.NoError(t, err)

	gate := NewGate(s, clk, nil, nil)
	h := Authenticate(issuer)(gate.Owner(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	call := func(u models.User) *httptest.ResponseRecorder {
		pair, err := issuer.Issue(auth.Principal{UserID: u.ID, Identity: u.Identity}, true)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/stores/me", nil)
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := call(owner)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, "SUBSCRIPTION_EXPIRED", env.ErrorCode)
	assert.Equal(t, "Subscription expired. Please renew to continue.", env.Message)

	rec = call(storeless)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "No store found", decode(t, rec).Message)
}
