// Package verification proves control of an email address or phone number with a one-time
// code before the account row is created.
package verification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hongminglow/storefront-be/internal/auth"
	"github.com/hongminglow/storefront-be/internal/delivery"
	"github.com/hongminglow/storefront-be/internal/metrics"
	"github.com/hongminglow/storefront-be/internal/models"
	"github.com/hongminglow/storefront-be/internal/otp"
	"github.com/hongminglow/storefront-be/internal/storage"
)

var (
	// ErrAlreadyExists means a confirmed user already owns the identifier.
	ErrAlreadyExists = errors.New("user already exists")
	// ErrInvalidOrExpired covers a wrong code, a reused code and a timed out one alike.
	ErrInvalidOrExpired = errors.New("invalid or expired verification code")
	// ErrDelivery means the code was stored but could not be sent.
	ErrDelivery = errors.New("verification code delivery failed")
	// ErrInvalidInput is returned for a blank identifier, name or password.
	ErrInvalidInput = errors.New("invalid verification request")
)

const DefaultCodeTTL = 5 * time.Minute

// TokenIssuer signs the provisional tokens handed out after confirmation.
type TokenIssuer interface {
	Issue(p auth.Principal, onboarded bool) (auth.TokenPair, error)
}

// CodeGenerator produces fixed-width numeric codes.
type CodeGenerator interface {
	Generate() (string, error)
}

// Params groups the collaborators of the Service.
type Params struct {
	Users     storage.UserStore
	Codes     otp.Store
	Generator CodeGenerator
	Tokens    TokenIssuer
	Email     delivery.Sender
	SMS       delivery.Sender
	// Brand appears in the delivered messages.
	Brand   string
	CodeTTL time.Duration
	Log     *zap.Logger
	Metrics *metrics.Metrics
}

// Service runs the request/confirm flow for both channels.
type Service struct {
	users   storage.UserStore
	codes   otp.Store
	gen     CodeGenerator
	tokens  TokenIssuer
	email   delivery.Sender
	sms     delivery.Sender
	brand   string
	ttl     time.Duration
	log     *zap.Logger
	metrics *metrics.Metrics
}

// New fills unset Params with defaults: five minute codes, log-only senders.
func New(p Params) *Service {
	if p.CodeTTL <= 0 {
		p.CodeTTL = DefaultCodeTTL
	}
	if p.Generator == nil {
		p.Generator = otp.NewCodeGenerator(otp.DefaultDigits, nil)
	}
	if p.Log == nil {
		p.Log = zap.NewNop()
	}
	if p.Email == nil {
		p.Email = delivery.LogSender{Channel: string(models.ChannelEmail), Log: p.Log}
	}
	if p.SMS == nil {
		p.SMS = delivery.LogSender{Channel: string(models.ChannelPhone), Log: p.Log}
	}
	if p.Brand == "" {
		p.Brand = "Storefront"
	}
	return &Service{
		users:   p.Users,
		codes:   p.Codes,
		gen:     p.Generator,
		tokens:  p.Tokens,
		email:   p.Email,
		sms:     p.SMS,
		brand:   p.Brand,
		ttl:     p.CodeTTL,
		log:     p.Log,
		metrics: p.Metrics,
	}
}

// Confirmation is returned once a code has been consumed and the user created.
// Onboarded is always false at this point.
type Confirmation struct {
	User      models.User
	Tokens    auth.TokenPair
	Onboarded bool
}

func (s *Service) RequestEmailCode(ctx context.Context, email, name, password string) error {
	return s.requestCode(ctx, models.EmailIdentity{Address: strings.ToLower(strings.TrimSpace(email))}, name, password)
}

func (s *Service) ConfirmEmailCode(ctx context.Context, email, code string) (Confirmation, error) {
	return s.confirmCode(ctx, models.EmailIdentity{Address: strings.ToLower(strings.TrimSpace(email))}, code)
}

func (s *Service) RequestSMSCode(ctx context.Context, phone, name, password string) error {
	return s.requestCode(ctx, models.PhoneIdentity{Number: strings.TrimSpace(phone)}, name, password)
}

func (s *Service) ConfirmSMSCode(ctx context.Context, phone, code string) (Confirmation, error) {
	return s.confirmCode(ctx, models.PhoneIdentity{Number: strings.TrimSpace(phone)}, code)
}

func (s *Service) requestCode(ctx context.Context, identity models.Identity, name, password string) error {
	channel := string(identity.Channel())
	name = strings.TrimSpace(name)
	if identity.Value() == "" || name == "" || password == "" {
		s.metrics.OTPRequested(channel, metrics.ResultRejected)
		return fmt.Errorf("%w: %s, name and password are required", ErrInvalidInput, channel)
	}

	_, err := s.users.FindUserByIdentity(ctx, identity)
	switch {
	case err == nil:
		s.metrics.OTPRequested(channel, metrics.ResultRejected)
		return ErrAlreadyExists
	case !errors.Is(err, storage.ErrNotFound):
		s.metrics.OTPRequested(channel, metrics.ResultFailed)
		return fmt.Errorf("lookup user: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		s.metrics.OTPRequested(channel, metrics.ResultFailed)
		return err
	}
	code, err := s.gen.Generate()
	if err != nil {
		s.metrics.OTPRequested(channel, metrics.ResultFailed)
		return err
	}
	payload := otp.Payload{Name: name, PasswordHash: hash}
	if err := s.codes.Save(ctx, identity.Value(), payload, code, s.ttl); err != nil {
		s.metrics.OTPRequested(channel, metrics.ResultFailed)
		return fmt.Errorf("store verification code: %w", err)
	}

	// The pending record stays valid even when the send below fails.
	if err := s.deliver(ctx, identity, name, code); err != nil {
		s.metrics.OTPRequested(channel, metrics.ResultFailed)
		s.log.Warn("verification code not delivered", zap.String("channel", channel), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	s.metrics.OTPRequested(channel, metrics.ResultOK)
	return nil
}

func (s *Service) deliver(ctx context.Context, identity models.Identity, name, code string) error {
	switch id := identity.(type) {
	case models.EmailIdentity:
		msg, err := delivery.VerificationEmail(s.brand, name, code)
		if err != nil {
			return err
		}
		return s.email.Send(ctx, id.Address, msg)
	case models.PhoneIdentity:
		return s.sms.Send(ctx, id.Number, delivery.VerificationSMS(s.brand, code))
	default:
		return models.ErrInvalidIdentity
	}
}

func (s *Service) confirmCode(ctx context.Context, identity models.Identity, code string) (Confirmation, error) {
	channel := string(identity.Channel())
	code = strings.TrimSpace(code)
	if identity.Value() == "" || code == "" {
		s.metrics.OTPConfirmed(channel, metrics.ResultRejected)
		return Confirmation{}, ErrInvalidOrExpired
	}

	payload, err := s.codes.Verify(ctx, identity.Value(), code)
	if err != nil {
		if errors.Is(err, otp.ErrNotFound) {
			s.metrics.OTPConfirmed(channel, metrics.ResultRejected)
			return Confirmation{}, ErrInvalidOrExpired
		}
		s.metrics.OTPConfirmed(channel, metrics.ResultFailed)
		return Confirmation{}, fmt.Errorf("verify code: %w", err)
	}

	user, err := s.users.CreateUser(ctx, models.User{
		Identity:     identity,
		Name:         payload.Name,
		PasswordHash: payload.PasswordHash,
	})
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			s.metrics.OTPConfirmed(channel, metrics.ResultRejected)
			return Confirmation{}, ErrAlreadyExists
		}
		s.metrics.OTPConfirmed(channel, metrics.ResultFailed)
		return Confirmation{}, fmt.Errorf("create user: %w", err)
	}

	tokens, err := s.tokens.Issue(auth.Principal{UserID: user.ID, Identity: user.Identity}, false)
	if err != nil {
		s.metrics.OTPConfirmed(channel, metrics.ResultFailed)
		return Confirmation{}, fmt.Errorf("issue tokens: %w", err)
	}

	s.metrics.OTPConfirmed(channel, metrics.ResultOK)
	s.log.Info("user verified", zap.Int64("user_id", user.ID), zap.String("channel", channel))
	return Confirmation{User: user, Tokens: tokens}, nil
}
