package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/hongminglow/storefront-be/internal/account"
	"github.com/hongminglow/storefront-be/internal/auth"
	"github.com/hongminglow/storefront-be/internal/clock"
	"github.com/hongminglow/storefront-be/internal/delivery"
	"github.com/hongminglow/storefront-be/internal/middleware"
	"github.com/hongminglow/storefront-be/internal/models"
	"github.com/hongminglow/storefront-be/internal/onboarding"
	"github.com/hongminglow/storefront-be/internal/otp"
	"github.com/hongminglow/storefront-be/internal/storage/postgres"
	"github.com/hongminglow/storefront-be/internal/verification"
)

// TestStorefrontIntegration runs signup, onboarding and login against a live Postgres database.
func TestStorefrontIntegration(t *testing.T) {
	if os.Getenv("RUN_STOREFRONT_INTEGRATION") != "true" {
		t.Skip("set RUN_STOREFRONT_INTEGRATION=true to run this integration test")
	}

	loadDotEnv()
	dbURL := mustGetEnv(t, "DATABASE_URL")

	ctx := context.Background()
	store, err := postgres.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	defer store.Close()

	roles, err := store.ListRoles(ctx)
	if err != nil {
		t.Fatalf("list roles: %v", err)
	}
	catalog, err := models.NewRoleCatalog(roles)
	if err != nil {
		t.Fatalf("role catalog: %v", err)
	}
	tokens, err := auth.NewTokenIssuer(auth.Config{
		AccessSecret:  mustGetEnv(t, "JWT_SECRET"),
		RefreshSecret: mustGetEnv(t, "JWT_REFRESH_SECRET"),
		Issuer:        "storefront-integration",
		AccessTTL:     time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
	}, clock.System{})
	if err != nil {
		t.Fatalf("token issuer: %v", err)
	}

	outbox := &outboxSender{sent: map[string]string{}}
	verifier := verification.New(verification.Params{
		Users:  store,
		Codes:  otp.NewMemoryStore(clock.System{}),
		Tokens: tokens,
		Email:  outbox,
		SMS:    outbox,
	})
	onboarder := onboarding.New(onboarding.Params{
		Tx:           store,
		Roles:        catalog,
		Tokens:       tokens,
		StoreBaseURL: "http://localhost:3000",
	})
	accounts := account.New(store, tokens)

	r := chi.NewRouter()
	authn := middleware.Authenticate(tokens)
	NewVerificationHandler(verifier, Cookies{}, otp.DefaultDigits, nil).Register(r)
	NewAuthHandler(accounts, Cookies{}, nil).Register(r)
	NewUserHandler(onboarder, accounts, Cookies{}, nil).Register(r, authn)
	NewStoreHandler(store, nil).Register(r, authn, middleware.NewGate(store, nil, nil, nil))

	ts := httptest.NewServer(r)
	defer ts.Close()

	suffix := time.Now().UnixNano()
	email := fmt.Sprintf("it_%d@example.com", suffix)
	storeName := fmt.Sprintf("it-store-%d", suffix)
	password := fmt.Sprintf("Pass!%d", suffix)

	postJSON(t, ts.URL+"/users/mail/send", "", map[string]string{"email": email, "name": "Integration", "password": password}, http.StatusOK, nil)
	code, ok := outbox.code(email)
	if !ok {
		t.Fatalf("no verification code delivered to %s", email)
	}

	var verified tokensPayload
	postJSON(t, ts.URL+"/users/mail/verify", "", map[string]string{"identifier": email, "otp": code}, http.StatusOK, &verified)
	if verified.Onboarded {
		t.Fatal("freshly verified user must not be onboarded")
	}

	var onboardedPayload tokensPayload
	postJSON(t, ts.URL+"/users/onboard", verified.Tokens.AccessToken, map[string]any{
		"roles":        []int64{1},
		"storeName":    storeName,
		"storeAddress": "1 Integration Way",
		"storeType":    "retail",
	}, http.StatusCreated, &onboardedPayload)
	if !onboardedPayload.Onboarded {
		t.Fatal("admin onboarding must mark the user onboarded")
	}

	var session tokensPayload
	postJSON(t, ts.URL+"/auth/login", "", map[string]string{"identifier": email, "password": password}, http.StatusOK, &session)
	claims, err := tokens.ParseAccess(session.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("parse login token: %v", err)
	}
	if !strings.Contains(claims.StoreURL, "/store/") {
		t.Fatalf("login token store url = %q", claims.StoreURL)
	}

	resp, err := http.Get(ts.URL + "/stores/" + storeName)
	if err != nil {
		t.Fatalf("public store request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("public store status = %d", resp.StatusCode)
	}

	var updated struct {
		Store struct {
			TemplateName string `json:"template_name"`
		} `json:"store"`
	}
	sendJSON(t, http.MethodPatch, ts.URL+"/stores/"+storeName+"/template", session.Tokens.AccessToken,
		map[string]string{"templateName": "modern"}, http.StatusOK, &updated)
	if updated.Store.TemplateName != "modern" {
		t.Fatalf("template after update = %q", updated.Store.TemplateName)
	}

	t.Logf("verified %s, onboarded store %s and logged in", email, storeName)
}

type tokensPayload struct {
	Tokens    auth.TokenPair `json:"tokens"`
	Onboarded bool           `json:"onboarded"`
}

// outboxSender keeps the last code delivered to each recipient.
type outboxSender struct {
	sent map[string]string
}

func (o *outboxSender) Send(_ context.Context, to string, msg delivery.Message) error {
	o.sent[to] = msg.Body
	return nil
}

func (o *outboxSender) code(to string) (string, bool) {
	body, ok := o.sent[to]
	if !ok {
		return "", false
	}
	start := strings.Index(body, "<b>")
	end := strings.Index(body, "</b>")
	if start < 0 || end <= start {
		return "", false
	}
	return body[start+3 : end], true
}

func postJSON(t *testing.T, url, token string, payload any, wantStatus int, out any) {
	t.Helper()
	sendJSON(t, http.MethodPost, url, token, payload, wantStatus, out)
}

func sendJSON(t *testing.T, method, url, token string, payload any, wantStatus int, out any) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	var env struct {
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode %s response: %v", url, err)
	}
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s status = %d (%s)", url, resp.StatusCode, env.Message)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			t.Fatalf("decode %s data: %v", url, err)
		}
	}
}

func mustGetEnv(t *testing.T, key string) string {
	t.Helper()
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		t.Fatalf("%s is required", key)
	}
	return val
}

func loadDotEnv() {
	paths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
		"../../../../.env",
	}
	for _, path := range paths {
		_ = godotenv.Overload(path)
	}
}
