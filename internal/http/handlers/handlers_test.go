package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hongminglow/storefront-be/internal/account"
	"github.com/hongminglow/storefront-be/internal/auth"
	"github.com/hongminglow/storefront-be/internal/middleware"
	"github.com/hongminglow/storefront-be/internal/onboarding"
	"github.com/hongminglow/storefront-be/internal/verification"
)

type stubVerifier struct {
	requestErr error
	confirmErr error
}

func (s stubVerifier) RequestEmailCode(context.Context, string, string, string) error {
	return s.requestErr
}

func (s stubVerifier) ConfirmEmailCode(context.Context, string, string) (verification.Confirmation, error) {
	if s.confirmErr != nil {
		return verification.Confirmation{}, s.confirmErr
	}
	return verification.Confirmation{Tokens: auth.TokenPair{AccessToken: "a", RefreshToken: "r"}}, nil
}

func (s stubVerifier) RequestSMSCode(context.Context, string, string, string) error {
	return s.requestErr
}

func (s stubVerifier) ConfirmSMSCode(ctx context.Context, phone, code string) (verification.Confirmation, error) {
	return s.ConfirmEmailCode(ctx, phone, code)
}

// codeRecorder keeps the code the handler passed on.
type codeRecorder struct {
	stubVerifier
	got string
}

func (c *codeRecorder) ConfirmEmailCode(ctx context.Context, email, code string) (verification.Confirmation, error) {
	c.got = code
	return c.stubVerifier.ConfirmEmailCode(ctx, email, code)
}

func (c *codeRecorder) ConfirmSMSCode(ctx context.Context, phone, code string) (verification.Confirmation, error) {
	c.got = code
	return c.stubVerifier.ConfirmEmailCode(ctx, phone, code)
}

func serve(t *testing.T, h *VerificationHandler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	h.Register(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
	return rec
}

func TestVerificationErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		stub   stubVerifier
		path   string
		body   string
		status int
	}{
		{"email sent", stubVerifier{}, "/users/mail/send", `{"email":"a@b.c","name":"A","password":"p"}`, http.StatusOK},
		{"sms accepted", stubVerifier{}, "/users/sms/send", `{"phoneNumber":"1","name":"A","password":"p"}`, http.StatusAccepted},
		{"already exists", stubVerifier{requestErr: verification.ErrAlreadyExists}, "/users/mail/send", `{}`, http.StatusConflict},
		{"delivery failure", stubVerifier{requestErr: fmt.Errorf("%w: timeout", verification.ErrDelivery)}, "/users/sms/send", `{}`, http.StatusBadGateway},
		{"bad input", stubVerifier{requestErr: verification.ErrInvalidInput}, "/users/sms/send", `{}`, http.StatusBadRequest},
		{"unexpected", stubVerifier{requestErr: errors.New("db down")}, "/users/mail/send", `{}`, http.StatusInternalServerError},
		{"malformed json", stubVerifier{}, "/users/mail/send", `{`, http.StatusBadRequest},
		{"empty body", stubVerifier{}, "/users/mail/verify", ``, http.StatusBadRequest},
		{"invalid code", stubVerifier{confirmErr: verification.ErrInvalidOrExpired}, "/users/mail/verify", `{"email":"a@b.c","otp":"1"}`, http.StatusBadRequest},
		{"verified", stubVerifier{}, "/users/sms/verify", `{"phoneNumber":"1","otp":"1"}`, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(t, NewVerificationHandler(tc.stub, Cookies{}, 6, nil), tc.path, tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}

func TestVerifyAcceptsStringOrNumericCode(t *testing.T) {
	cases := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"string", "/users/sms/verify", `{"phoneNumber":"+8801700000000","otp":"123456"}`, http.StatusOK, "123456"},
		{"number", "/users/sms/verify", `{"phoneNumber":"+8801700000000","otp":123456}`, http.StatusOK, "123456"},
		{"number loses leading zero", "/users/mail/verify", `{"email":"a@b.c","otp":12345}`, http.StatusOK, "012345"},
		{"string keeps leading zero", "/users/mail/verify", `{"email":"a@b.c","otp":"012345"}`, http.StatusOK, "012345"},
		{"fraction", "/users/sms/verify", `{"phoneNumber":"1","otp":1234.5}`, http.StatusBadRequest, ""},
		{"negative", "/users/sms/verify", `{"phoneNumber":"1","otp":-123456}`, http.StatusBadRequest, ""},
		{"boolean", "/users/sms/verify", `{"phoneNumber":"1","otp":true}`, http.StatusBadRequest, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &codeRecorder{}
			res := serve(t, NewVerificationHandler(rec, Cookies{}, 6, nil), tc.path, tc.body)
			assert.Equal(t, tc.status, res.Code, res.Body.String())
			assert.Equal(t, tc.code, rec.got)
		})
	}
}

type stubOnboarder struct{ err error }

func (s stubOnboarder) Onboard(context.Context, onboarding.Request) (onboarding.Result, error) {
	return onboarding.Result{}, s.err
}

type stubProfiles struct{}

func (stubProfiles) Profile(context.Context, int64) (account.Profile, error) {
	return account.Profile{}, nil
}

func TestOnboardErrorMapping(t *testing.T) {
	withUser := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "42"}}
			next.ServeHTTP(w, r.WithContext(middleware.WithClaims(r.Context(), claims)))
		})
	}
	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"conflict", fmt.Errorf("%w: \"acme\"", onboarding.ErrConflict), http.StatusConflict, "This business name already exist"},
		{"validation", fmt.Errorf("%w: storeType is required", onboarding.ErrValidation), http.StatusUnprocessableEntity, "storeType is required"},
		{"storage failure", errors.New(`onboard user 42: ERROR: relation "stores" does not exist (SQLSTATE 42P01)`), http.StatusInternalServerError, "failed to create store"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			NewUserHandler(stubOnboarder{err: tc.err}, stubProfiles{}, Cookies{}, nil).Register(r, withUser)
			rec := httptest.NewRecorder()
			body := `{"roles":[1],"storeName":"acme","storeType":"retail"}`
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/users/onboard", strings.NewReader(body)))

			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.message)
			assert.NotContains(t, rec.Body.String(), "SQLSTATE")
		})
	}
}

func TestCookiesFollowEnvironment(t *testing.T) {
	pair := auth.TokenPair{AccessToken: "access", RefreshToken: "refresh"}

	rec := httptest.NewRecorder()
	Cookies{AccessTTL: time.Hour, RefreshTTL: 24 * time.Hour}.setTokens(rec, pair)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)
	for _, c := range cookies {
		assert.True(t, c.HttpOnly)
		assert.False(t, c.Secure)
		assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	}
	assert.Equal(t, 3600, cookies[0].MaxAge)

	rec = httptest.NewRecorder()
	Cookies{Secure: true, Domain: "example.com"}.setTokens(rec, pair)
	for _, c := range rec.Result().Cookies() {
		assert.True(t, c.Secure)
		assert.Equal(t, http.SameSiteNoneMode, c.SameSite)
		assert.Equal(t, "example.com", c.Domain)
	}
}
