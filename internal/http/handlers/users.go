package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hongminglow/storefront-be/internal/account"
	"github.com/hongminglow/storefront-be/internal/http/respond"
	"github.com/hongminglow/storefront-be/internal/middleware"
	"github.com/hongminglow/storefront-be/internal/models/dto"
	"github.com/hongminglow/storefront-be/internal/onboarding"
	"github.com/hongminglow/storefront-be/internal/storage"
)

// Onboarder is implemented by onboarding.Service.
type Onboarder interface {
	Onboard(ctx context.Context, req onboarding.Request) (onboarding.Result, error)
}

// Profiles is implemented by account.Service.
type Profiles interface {
	Profile(ctx context.Context, userID int64) (account.Profile, error)
}

// UserHandler serves the authenticated user endpoints.
type UserHandler struct {
	onboarding Onboarder
	profiles   Profiles
	cookies    Cookies
	log        *zap.Logger
}

func NewUserHandler(onboarder Onboarder, profiles Profiles, cookies Cookies, log *zap.Logger) *UserHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserHandler{onboarding: onboarder, profiles: profiles, cookies: cookies, log: log}
}

// Register mounts the routes behind authn.
func (h *UserHandler) Register(r chi.Router, authn func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(authn)
		r.Post("/users/onboard", h.onboard)
		r.Get("/users/me", h.me)
	})
}

func (h *UserHandler) onboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}
	var req dto.OnboardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.onboarding.Onboard(r.Context(), onboarding.Request{
		UserID:       userID,
		RoleIDs:      req.Roles,
		StoreName:    req.StoreName,
		StoreAddress: req.StoreAddress,
		StoreType:    req.StoreType,
		StoreURL:     req.StoreURL,
	})
	if err != nil {
		switch {
		case errors.Is(err, onboarding.ErrConflict):
			respond.Error(w, http.StatusConflict, "This business name already exist")
		case errors.Is(err, onboarding.ErrValidation):
			respond.Error(w, http.StatusUnprocessableEntity, err.Error())
		default:
			h.log.Error("onboarding failed", zap.Int64("user_id", userID), zap.Error(err))
			respond.Error(w, http.StatusInternalServerError, "failed to create store")
		}
		return
	}

	h.cookies.setTokens(w, res.Tokens)
	respond.JSON(w, http.StatusCreated, "Store created successfully", dto.TokensResponse{
		Tokens:    res.Tokens,
		Onboarded: res.Onboarded,
	})
}

func (h *UserHandler) me(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}
	profile, err := h.profiles.Profile(r.Context(), userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respond.Error(w, http.StatusNotFound, "user not found")
			return
		}
		h.log.Error("load profile failed", zap.Int64("user_id", userID), zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	respond.JSON(w, http.StatusOK, "ok", dto.ProfileResponse{
		Name:        profile.Name,
		Email:       profile.Email,
		PhoneNumber: profile.PhoneNumber,
		Onboarded:   profile.Onboarded,
		Role:        profile.Role,
	})
}

func subject(w http.ResponseWriter, r *http.Request) (int64, bool) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "missing access token")
		return 0, false
	}
	id, err := claims.UserID()
	if err != nil {
		respond.Error(w, http.StatusUnauthorized, "invalid or expired token")
		return 0, false
	}
	return id, true
}
