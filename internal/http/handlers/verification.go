package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hongminglow/storefront-be/internal/http/respond"
	"github.com/hongminglow/storefront-be/internal/models/dto"
	"github.com/hongminglow/storefront-be/internal/otp"
	"github.com/hongminglow/storefront-be/internal/verification"
)

// Verifier is implemented by verification.Service.
type Verifier interface {
	RequestEmailCode(ctx context.Context, email, name, password string) error
	ConfirmEmailCode(ctx context.Context, email, code string) (verification.Confirmation, error)
	RequestSMSCode(ctx context.Context, phone, name, password string) error
	ConfirmSMSCode(ctx context.Context, phone, code string) (verification.Confirmation, error)
}

// VerificationHandler serves the code request/confirm endpoints of both channels.
type VerificationHandler struct {
	svc     Verifier
	cookies Cookies
	digits  int
	log     *zap.Logger
}

// NewVerificationHandler takes the width of issued codes so numeric codes can be
// restored to it; zero means otp.DefaultDigits.
func NewVerificationHandler(svc Verifier, cookies Cookies, codeDigits int, log *zap.Logger) *VerificationHandler {
	if log == nil {
		log = zap.NewNop()
	}
	if codeDigits <= 0 {
		codeDigits = otp.DefaultDigits
	}
	return &VerificationHandler{svc: svc, cookies: cookies, digits: codeDigits, log: log}
}

func (h *VerificationHandler) Register(r chi.Router) {
	r.Post("/users/mail/send", h.sendEmail)
	r.Post("/users/mail/verify", h.verifyEmail)
	r.Post("/users/sms/send", h.sendSMS)
	r.Post("/users/sms/verify", h.verifySMS)
}

func (h *VerificationHandler) sendEmail(w http.ResponseWriter, r *http.Request) {
	var req dto.SendEmailCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.RequestEmailCode(r.Context(), req.Email, req.Name, req.Password); err != nil {
		h.requestFailed(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, "Email sent successfully", nil)
}

func (h *VerificationHandler) sendSMS(w http.ResponseWriter, r *http.Request) {
	var req dto.SendSMSCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.RequestSMSCode(r.Context(), req.PhoneNumber, req.Name, req.Password); err != nil {
		h.requestFailed(w, err)
		return
	}
	respond.JSON(w, http.StatusAccepted, "OTP sent successfully", nil)
}

func (h *VerificationHandler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	conf, err := h.svc.ConfirmEmailCode(r.Context(), firstNonEmpty(req.Identifier, req.Email), req.OTP.Padded(h.digits))
	h.confirmed(w, conf, err)
}

func (h *VerificationHandler) verifySMS(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	conf, err := h.svc.ConfirmSMSCode(r.Context(), firstNonEmpty(req.Identifier, req.PhoneNumber), req.OTP.Padded(h.digits))
	h.confirmed(w, conf, err)
}

func (h *VerificationHandler) requestFailed(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, verification.ErrInvalidInput):
		respond.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, verification.ErrAlreadyExists):
		respond.Error(w, http.StatusConflict, "User already exist")
	case errors.Is(err, verification.ErrDelivery):
		respond.Error(w, http.StatusBadGateway, "failed to deliver verification code, please retry")
	default:
		h.log.Error("request verification code failed", zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, "failed to request verification code")
	}
}

func (h *VerificationHandler) confirmed(w http.ResponseWriter, conf verification.Confirmation, err error) {
	if err != nil {
		switch {
		case errors.Is(err, verification.ErrInvalidOrExpired):
			respond.Error(w, http.StatusBadRequest, "Invalid or expired OTP")
		case errors.Is(err, verification.ErrAlreadyExists):
			respond.Error(w, http.StatusConflict, "User already exist")
		default:
			h.log.Error("confirm verification code failed", zap.Error(err))
			respond.Error(w, http.StatusInternalServerError, "failed to verify code")
		}
		return
	}
	h.cookies.setTokens(w, conf.Tokens)
	respond.JSON(w, http.StatusOK, "OTP verified successfully", dto.TokensResponse{
		Tokens:    conf.Tokens,
		Onboarded: conf.Onboarded,
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
