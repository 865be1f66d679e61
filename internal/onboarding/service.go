// Package onboarding binds a verified user to a role set and a freshly provisioned store
// with its trial subscription, all inside one transaction.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hongminglow/storefront-be/internal/auth"
	"github.com/hongminglow/storefront-be/internal/clock"
	"github.com/hongminglow/storefront-be/internal/events"
	"github.com/hongminglow/storefront-be/internal/metrics"
	"github.com/hongminglow/storefront-be/internal/models"
	"github.com/hongminglow/storefront-be/internal/storage"
)

var (
	// ErrValidation covers a missing user, unknown roles and malformed input.
	ErrValidation = errors.New("invalid onboarding request")
	// ErrConflict means the requested store name is taken.
	ErrConflict = errors.New("store name already exists")
)

const publishTimeout = 5 * time.Second

// TokenIssuer signs the final tokens once the transaction has committed.
type TokenIssuer interface {
	Issue(p auth.Principal, onboarded bool) (auth.TokenPair, error)
}

// Request is one onboarding call. StoreURL is optional.
type Request struct {
	UserID       int64
	RoleIDs      []int64
	StoreName    string
	StoreAddress string
	StoreType    string
	StoreURL     string
}

// Result is returned only after a successful commit.
type Result struct {
	Tokens    auth.TokenPair
	Onboarded bool
	Store     models.Store
}

// Params groups the collaborators of the Service.
type Params struct {
	Tx             storage.Transactor
	Roles          *models.RoleCatalog
	Tokens         TokenIssuer
	Clock          clock.Clock
	Publisher      events.Publisher
	EventsExchange string
	StoreBaseURL   string
	Log            *zap.Logger
	Metrics        *metrics.Metrics
}

// Service is the onboarding orchestrator.
type Service struct {
	tx           storage.Transactor
	roles        *models.RoleCatalog
	tokens       TokenIssuer
	clock        clock.Clock
	publisher    events.Publisher
	exchange     string
	storeBaseURL string
	log          *zap.Logger
	metrics      *metrics.Metrics
}

// New builds the orchestrator from p. A nil Publisher only logs events.
func New(p Params) *Service {
	if p.Clock == nil {
		p.Clock = clock.System{}
	}
	if p.Log == nil {
		p.Log = zap.NewNop()
	}
	if p.Publisher == nil {
		p.Publisher = events.LogPublisher{Log: p.Log}
	}
	return &Service{
		tx:           p.Tx,
		roles:        p.Roles,
		tokens:       p.Tokens,
		clock:        p.Clock,
		publisher:    p.Publisher,
		exchange:     p.EventsExchange,
		storeBaseURL: strings.TrimRight(p.StoreBaseURL, "/"),
		log:          p.Log,
		metrics:      p.Metrics,
	}
}

// Onboard replaces the user's roles and store with the requested ones and starts a trial.
// Either every write commits or none does.
func (s *Service) Onboard(ctx context.Context, req Request) (Result, error) {
	req = normalize(req)
	if err := validate(req); err != nil {
		s.metrics.Onboarding(metrics.ResultRejected)
		return Result{}, err
	}

	// Only an admin-led store creation is onboarded straight away; every role
	// assigned by this call carries the same flag.
	onboarded := s.roles.ContainsAdmin(req.RoleIDs)

	var (
		user  models.User
		store models.Store
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx storage.OnboardingTx) error {
		exists, err := tx.StoreNameExists(ctx, req.StoreName)
		if err != nil {
			return fmt.Errorf("check store name: %w", err)
		}
		if exists {
			return fmt.Errorf("%w: %q", ErrConflict, req.StoreName)
		}

		user, err = s.validateUserAndRoles(ctx, tx, req)
		if err != nil {
			return err
		}

		if err := tx.DeleteUserRoles(ctx, user.ID); err != nil {
			return fmt.Errorf("clear previous roles: %w", err)
		}
		if err := tx.DeleteStoresByOwner(ctx, user.ID); err != nil {
			return fmt.Errorf("clear previous store: %w", err)
		}

		assignments := make([]models.UserRole, 0, len(req.RoleIDs))
		for _, roleID := range req.RoleIDs {
			assignments = append(assignments, models.UserRole{UserID: user.ID, RoleID: roleID, Onboarded: onboarded})
		}
		if err := tx.CreateUserRoles(ctx, assignments); err != nil {
			return fmt.Errorf("assign roles: %w", err)
		}

		store, err = s.provisionStore(ctx, tx, user.ID, req)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrValidation) || errors.Is(err, ErrConflict) {
			s.metrics.Onboarding(metrics.ResultRejected)
			return Result{}, err
		}
		s.metrics.Onboarding(metrics.ResultFailed)
		s.log.Error("onboarding rolled back", zap.Int64("user_id", req.UserID), zap.Error(err))
		return Result{}, fmt.Errorf("onboard user %d: %w", req.UserID, err)
	}

	tokens, err := s.tokens.Issue(auth.Principal{
		UserID:   user.ID,
		Identity: user.Identity,
		Roles:    req.RoleIDs,
		StoreURL: store.URL,
	}, onboarded)
	if err != nil {
		s.metrics.Onboarding(metrics.ResultFailed)
		return Result{}, fmt.Errorf("issue tokens: %w", err)
	}

	s.metrics.Onboarding(metrics.ResultOK)
	s.log.Info("user onboarded",
		zap.Int64("user_id", user.ID),
		zap.Int64("store_id", store.ID),
		zap.Int64s("roles", req.RoleIDs),
		zap.Bool("onboarded", onboarded),
	)
	s.publishOnboarded(ctx, user.ID, req.RoleIDs, onboarded, store)

	return Result{Tokens: tokens, Onboarded: onboarded, Store: store}, nil
}

func (s *Service) validateUserAndRoles(ctx context.Context, tx storage.OnboardingTx, req Request) (models.User, error) {
	user, err := tx.FindUserByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.User{}, fmt.Errorf("%w: user is invalid", ErrValidation)
		}
		return models.User{}, fmt.Errorf("load user: %w", err)
	}
	roles, err := tx.FindRolesByIDs(ctx, req.RoleIDs)
	if err != nil {
		return models.User{}, fmt.Errorf("load roles: %w", err)
	}
	if len(roles) != len(req.RoleIDs) {
		return models.User{}, fmt.Errorf("%w: some roles are invalid", ErrValidation)
	}
	return user, nil
}

func (s *Service) provisionStore(ctx context.Context, tx storage.OnboardingTx, userID int64, req Request) (models.Store, error) {
	store, err := tx.CreateStore(ctx, models.Store{
		UserID:  userID,
		Name:    req.StoreName,
		Address: req.StoreAddress,
		Type:    req.StoreType,
		URL:     req.StoreURL,
	})
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return models.Store{}, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return models.Store{}, fmt.Errorf("create store: %w", err)
	}

	if store.URL == "" {
		url := s.defaultStoreURL(store.ID)
		if err := tx.SetStoreURL(ctx, store.ID, url); err != nil {
			return models.Store{}, fmt.Errorf("set store url: %w", err)
		}
		store.URL = url
	}

	sub, err := tx.CreateSubscription(ctx, models.NewTrialSubscription(store.ID, s.clock.Now()))
	if err != nil {
		return models.Store{}, fmt.Errorf("create trial subscription: %w", err)
	}
	store.Subscription = &sub
	return store, nil
}

func (s *Service) defaultStoreURL(storeID int64) string {
	return fmt.Sprintf("%s/store/%d", s.storeBaseURL, storeID)
}

func (s *Service) publishOnboarded(ctx context.Context, userID int64, roles []int64, onboarded bool, store models.Store) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	event := events.StoreOnboarded{
		UserID:    userID,
		StoreID:   store.ID,
		StoreName: store.Name,
		StoreURL:  store.URL,
		Roles:     roles,
		Onboarded: onboarded,
	}
	if store.Subscription != nil {
		event.TrialEndsAt = store.Subscription.TrialEndsAt
	}
	if err := s.publisher.Publish(ctx, s.exchange, events.RoutingKeyStoreOnboarded, event); err != nil {
		s.log.Warn("publish store.onboarded failed", zap.Int64("store_id", store.ID), zap.Error(err))
	}
}

func normalize(req Request) Request {
	req.StoreName = strings.TrimSpace(req.StoreName)
	req.StoreAddress = strings.TrimSpace(req.StoreAddress)
	req.StoreType = strings.TrimSpace(req.StoreType)
	req.StoreURL = strings.TrimSpace(req.StoreURL)
	return req
}

func validate(req Request) error {
	switch {
	case req.UserID <= 0:
		return fmt.Errorf("%w: user id must be a positive integer", ErrValidation)
	case len(req.RoleIDs) == 0:
		return fmt.Errorf("%w: at least one role is required", ErrValidation)
	case req.StoreName == "":
		return fmt.Errorf("%w: store name is required", ErrValidation)
	case req.StoreType == "":
		return fmt.Errorf("%w: store type is required", ErrValidation)
	}
	for _, id := range req.RoleIDs {
		if id <= 0 {
			return fmt.Errorf("%w: role id must be a positive integer", ErrValidation)
		}
	}
	return nil
}
