// Package account covers returning users: password login, token refresh and the profile view.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hongminglow/storefront-be/internal/auth"
	"github.com/hongminglow/storefront-be/internal/models"
	"github.com/hongminglow/storefront-be/internal/storage"
)

// ErrInvalidCredentials is deliberately the same for an unknown identifier and a wrong password.
var ErrInvalidCredentials = errors.New("invalid user")

// Users is the storage the account service reads from.
type Users interface {
	storage.UserStore
	storage.AccessStore
}

// Tokens is the part of auth.TokenIssuer this package needs.
type Tokens interface {
	Issue(p auth.Principal, onboarded bool) (auth.TokenPair, error)
	Refresh(refreshToken string) (string, error)
}

type Service struct {
	users  Users
	tokens Tokens
}

func New(users Users, tokens Tokens) *Service {
	return &Service{users: users, tokens: tokens}
}

// Session is what a successful login returns.
type Session struct {
	Tokens    auth.TokenPair
	Onboarded bool
}

// Profile is the authenticated user's own view of their account.
type Profile struct {
	Name        string
	Email       string
	PhoneNumber string
	Onboarded   bool
	// Role is the first associated role, nil before onboarding.
	Role  *int64
	Store *models.Store
}

// Login accepts an email address or phone number as identifier.
func (s *Service) Login(ctx context.Context, identifier, password string) (Session, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}

	user, err := s.users.FindUserByIdentity(ctx, models.ParseIdentifier(identifier))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("lookup user: %w", err)
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return Session{}, ErrInvalidCredentials
	}

	access, err := s.users.FindAccess(ctx, user.ID)
	if err != nil {
		return Session{}, fmt.Errorf("load access: %w", err)
	}
	tokens, err := s.tokens.Issue(principalOf(access), access.Onboarded())
	if err != nil {
		return Session{}, fmt.Errorf("issue tokens: %w", err)
	}
	return Session{Tokens: tokens, Onboarded: access.Onboarded()}, nil
}

// Refresh trades a refresh token for a new access token.
func (s *Service) Refresh(refreshToken string) (string, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return "", auth.ErrInvalidToken
	}
	return s.tokens.Refresh(refreshToken)
}

func (s *Service) Profile(ctx context.Context, userID int64) (Profile, error) {
	access, err := s.users.FindAccess(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	p := Profile{
		Name:        access.User.Name,
		Email:       access.User.Email(),
		PhoneNumber: access.User.PhoneNumber(),
		Onboarded:   access.Onboarded(),
		Store:       access.Store,
	}
	if ids := access.RoleIDs(); len(ids) > 0 {
		role := ids[0]
		p.Role = &role
	}
	return p, nil
}

func principalOf(a models.Access) auth.Principal {
	return auth.Principal{
		UserID:   a.User.ID,
		Identity: a.User.Identity,
		Roles:    a.RoleIDs(),
		StoreURL: a.StoreURL(),
	}
}
