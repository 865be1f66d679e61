package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hongminglow/storefront-be/internal/http/respond"
	"github.com/hongminglow/storefront-be/internal/middleware"
	"github.com/hongminglow/storefront-be/internal/models"
	"github.com/hongminglow/storefront-be/internal/models/dto"
	"github.com/hongminglow/storefront-be/internal/storage"
)

// StoreTemplates is implemented by storage.StoreWriter.
type StoreTemplates interface {
	SetStoreTemplate(ctx context.Context, ownerID int64, storeName, template string) (models.Store, error)
}

// StoreHandler serves store views that sit behind the subscription gate.
type StoreHandler struct {
	templates StoreTemplates
	log       *zap.Logger
}

func NewStoreHandler(templates StoreTemplates, log *zap.Logger) *StoreHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &StoreHandler{templates: templates, log: log}
}

// Register mounts /stores/me and the template update (owner gate, after authn) and
// /stores/{storeName} (public gate).
func (h *StoreHandler) Register(r chi.Router, authn func(http.Handler) http.Handler, gate *middleware.Gate) {
	r.With(authn, gate.Owner).Get("/stores/me", h.show)
	r.With(authn, gate.Owner).Patch("/stores/{storeName}/template", h.updateTemplate)
	r.With(gate.Public("storeName")).Get("/stores/{storeName}", h.show)
}

func (h *StoreHandler) show(w http.ResponseWriter, r *http.Request) {
	store, ok := middleware.StoreFrom(r.Context())
	if !ok {
		respond.Error(w, http.StatusNotFound, "Store not found")
		return
	}
	respond.JSON(w, http.StatusOK, "ok", dto.StoreResponse{Store: store})
}

func (h *StoreHandler) updateTemplate(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}
	storeName := chi.URLParam(r, "storeName")
	if owned, ok := middleware.StoreFrom(r.Context()); !ok || owned.Name != storeName {
		respond.Error(w, http.StatusForbidden, "You can only update your own store")
		return
	}

	var req dto.UpdateTemplateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	template := strings.TrimSpace(req.TemplateName)
	if template == "" {
		respond.Error(w, http.StatusBadRequest, "Template name is required")
		return
	}

	store, err := h.templates.SetStoreTemplate(r.Context(), userID, storeName, template)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		respond.Error(w, http.StatusForbidden, "You can only update your own store")
		return
	case err != nil:
		h.log.Error("update store template failed", zap.String("store", storeName), zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, "failed to update store template")
		return
	}
	respond.JSON(w, http.StatusOK, "Store template updated", dto.StoreResponse{Store: store})
}
