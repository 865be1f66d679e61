package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hongminglow/storefront-be/internal/clock"
	"github.com/hongminglow/storefront-be/internal/models"
)

// ErrConfiguration means the signing secrets are missing. It is fatal at startup.
var ErrConfiguration = errors.New("token signing secrets are not configured")

// ErrInvalidToken covers malformed, tampered and expired tokens alike.
var ErrInvalidToken = errors.New("invalid or expired token")

// Config holds the signing parameters for both token kinds.
type Config struct {
	AccessSecret  string
	RefreshSecret string
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Principal is the logical content of a token before it is signed.
type Principal struct {
	UserID   int64
	Identity models.Identity
	Roles    []int64
	StoreURL string
}

// Claims is the signed payload. Exactly one of Email and PhoneNumber is set.
type Claims struct {
	Onboarded   bool    `json:"onboarded"`
	Roles       []int64 `json:"roles"`
	StoreURL    string  `json:"storeUrl,omitempty"`
	Email       string  `json:"email,omitempty"`
	PhoneNumber string  `json:"phoneNumber,omitempty"`
	jwt.RegisteredClaims
}

// UserID parses the numeric subject.
func (c Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return id, nil
}

// Principal rebuilds the unsigned content, including the identity variant.
func (c Claims) Principal() (Principal, error) {
	id, err := c.UserID()
	if err != nil {
		return Principal{}, err
	}
	var email, phone *string
	if c.Email != "" {
		email = &c.Email
	}
	if c.PhoneNumber != "" {
		phone = &c.PhoneNumber
	}
	identity, err := models.IdentityFromColumns(email, phone)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return Principal{UserID: id, Identity: identity, Roles: c.Roles, StoreURL: c.StoreURL}, nil
}

// TokenPair is what every successful authentication returns.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenIssuer signs and verifies access and refresh tokens with independent secrets.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	clock         clock.Clock
}

// NewTokenIssuer validates the configuration. Missing secrets yield ErrConfiguration.
func NewTokenIssuer(cfg Config, clk clock.Clock) (*TokenIssuer, error) {
	if strings.TrimSpace(cfg.AccessSecret) == "" || strings.TrimSpace(cfg.RefreshSecret) == "" {
		return nil, ErrConfiguration
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, fmt.Errorf("%w: token lifetimes must be positive", ErrConfiguration)
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &TokenIssuer{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		issuer:        cfg.Issuer,
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		clock:         clk,
	}, nil
}

// Issue signs an access and a refresh token for the same principal.
func (t *TokenIssuer) Issue(p Principal, onboarded bool) (TokenPair, error) {
	claims, err := t.claimsFor(p, onboarded)
	if err != nil {
		return TokenPair{}, err
	}
	access, err := t.sign(claims, t.accessSecret, t.accessTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := t.sign(claims, t.refreshSecret, t.refreshTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// ParseAccess verifies an access token.
func (t *TokenIssuer) ParseAccess(token string) (*Claims, error) {
	return t.parse(token, t.accessSecret)
}

// ParseRefresh verifies a refresh token.
func (t *TokenIssuer) ParseRefresh(token string) (*Claims, error) {
	return t.parse(token, t.refreshSecret)
}

// Refresh exchanges a valid refresh token for a new access token with the same claims.
func (t *TokenIssuer) Refresh(refreshToken string) (string, error) {
	claims, err := t.ParseRefresh(refreshToken)
	if err != nil {
		return "", err
	}
	return t.sign(*claims, t.accessSecret, t.accessTTL)
}

func (t *TokenIssuer) claimsFor(p Principal, onboarded bool) (Claims, error) {
	roles := p.Roles
	if roles == nil {
		roles = []int64{}
	}
	claims := Claims{
		Onboarded: onboarded,
		Roles:     roles,
		StoreURL:  p.StoreURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:  t.issuer,
			Subject: strconv.FormatInt(p.UserID, 10),
		},
	}
	switch id := p.Identity.(type) {
	case models.EmailIdentity:
		claims.Email = id.Address
	case models.PhoneIdentity:
		claims.PhoneNumber = id.Number
	default:
		return Claims{}, models.ErrInvalidIdentity
	}
	return claims, nil
}

func (t *TokenIssuer) sign(claims Claims, secret []byte, ttl time.Duration) (string, error) {
	now := t.clock.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.NotBefore = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func (t *TokenIssuer) parse(raw string, secret []byte) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return &claims, nil
}
