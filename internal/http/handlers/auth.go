package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hongminglow/storefront-be/internal/account"
	"github.com/hongminglow/storefront-be/internal/http/respond"
	"github.com/hongminglow/storefront-be/internal/models/dto"
)

// Sessions is implemented by account.Service.
type Sessions interface {
	Login(ctx context.Context, identifier, password string) (account.Session, error)
	Refresh(refreshToken string) (string, error)
}

// AuthHandler owns login, refresh and logout.
type AuthHandler struct {
	sessions Sessions
	cookies  Cookies
	log      *zap.Logger
}

func NewAuthHandler(sessions Sessions, cookies Cookies, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{sessions: sessions, cookies: cookies, log: log}
}

func (h *AuthHandler) Register(r chi.Router) {
	r.Post("/auth/login", h.handleLogin)
	r.Post("/auth/refresh", h.handleRefresh)
	r.Get("/auth/logout", h.handleLogout)
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := h.sessions.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		if errors.Is(err, account.ErrInvalidCredentials) {
			respond.Error(w, http.StatusUnauthorized, "Invalid user")
			return
		}
		h.log.Error("login failed", zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, "failed to login")
		return
	}
	h.cookies.setTokens(w, session.Tokens)
	respond.JSON(w, http.StatusOK, "login successful", dto.TokensResponse{
		Tokens:    session.Tokens,
		Onboarded: session.Onboarded,
	})
}

// handleRefresh reads the token from the body, falling back to the refresh cookie.
func (h *AuthHandler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req dto.RefreshRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			respond.Error(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.RefreshToken == "" {
		if c, err := r.Cookie(refreshTokenCookie); err == nil {
			req.RefreshToken = c.Value
		}
	}
	access, err := h.sessions.Refresh(req.RefreshToken)
	if err != nil {
		respond.Error(w, http.StatusUnauthorized, "invalid or expired refresh token")
		return
	}
	h.cookies.setAccess(w, access)
	respond.JSON(w, http.StatusOK, "token refreshed", dto.RefreshResponse{AccessToken: access})
}

func (h *AuthHandler) handleLogout(w http.ResponseWriter, _ *http.Request) {
	h.cookies.clear(w)
	respond.JSON(w, http.StatusOK, "logged out", map[string]bool{"isLoggedOut": true})
}
