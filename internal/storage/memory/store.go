// Package memory is an in-process storage.Store. Transactions run against a copy of the
// state which replaces the live state only when the callback succeeds.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hongminglow/storefront-be/internal/clock"
	"github.com/hongminglow/storefront-be/internal/models"
	"github.com/hongminglow/storefront-be/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// DefaultRoles mirrors the seed data applied by the Postgres migrations.
var DefaultRoles = []models.Role{
	{ID: 1, Name: models.RoleAdmin},
	{ID: 2, Name: models.RoleEmployee},
}

type state struct {
	users      map[int64]models.User
	userRoles  map[int64][]models.UserRole
	stores     map[int64]models.Store
	subs       map[int64]models.Subscription
	roles      map[int64]models.Role
	nextUserID int64
	nextStore  int64
	nextSub    int64
}

func (st *state) clone() *state {
	c := &state{
		users:      make(map[int64]models.User, len(st.users)),
		userRoles:  make(map[int64][]models.UserRole, len(st.userRoles)),
		stores:     make(map[int64]models.Store, len(st.stores)),
		subs:       make(map[int64]models.Subscription, len(st.subs)),
		roles:      st.roles,
		nextUserID: st.nextUserID,
		nextStore:  st.nextStore,
		nextSub:    st.nextSub,
	}
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.userRoles {
		c.userRoles[k] = append([]models.UserRole(nil), v...)
	}
	for k, v := range st.stores {
		c.stores[k] = v
	}
	for k, v := range st.subs {
		c.subs[k] = v
	}
	return c
}

// Option customises a new Store.
type Option func(*Store)

// WithClock sets the clock used for created_at columns.
func WithClock(clk clock.Clock) Option {
	return func(s *Store) { s.clock = clk }
}

// WithRoles replaces the seeded roles.
func WithRoles(roles []models.Role) Option {
	return func(s *Store) {
		s.st.roles = make(map[int64]models.Role, len(roles))
		for _, r := range roles {
			s.st.roles[r.ID] = r
		}
	}
}

// WithFirstUserID makes user ids start at id.
func WithFirstUserID(id int64) Option {
	return func(s *Store) { s.st.nextUserID = id }
}

// Store is safe for concurrent use. Transactions are serialised.
type Store struct {
	mu    sync.RWMutex
	st    *state
	clock clock.Clock
}

// New returns an empty store seeded with DefaultRoles.
func New(opts ...Option) *Store {
	s := &Store{
		st: &state{
			users:      map[int64]models.User{},
			userRoles:  map[int64][]models.UserRole{},
			stores:     map[int64]models.Store{},
			subs:       map[int64]models.Subscription{},
			nextUserID: 1,
			nextStore:  1,
			nextSub:    1,
		},
		clock: clock.System{},
	}
	WithRoles(DefaultRoles)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() {}

func (s *Store) now() time.Time { return s.clock.Now() }

// WithinTx holds the write lock for the whole callback.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.OnboardingTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, &tx{st: work, now: s.now}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) CreateUser(_ context.Context, user models.User) (models.User, error) {
	if user.Identity == nil {
		return models.User{}, models.ErrInvalidIdentity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.findUser(user.Identity); ok {
		return models.User{}, fmt.Errorf("%w: %s", storage.ErrAlreadyExists, user.Identity.Channel())
	}
	user.ID = s.st.nextUserID
	s.st.nextUserID++
	user.CreatedAt = s.now()
	s.st.users[user.ID] = user
	return user, nil
}

func (s *Store) FindUserByID(_ context.Context, id int64) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.st.users[id]
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) FindUserByIdentity(_ context.Context, identity models.Identity) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.st.findUser(identity)
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) FindAccess(_ context.Context, userID int64) (models.Access, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.st.users[userID]
	if !ok {
		return models.Access{}, storage.ErrNotFound
	}
	access := models.Access{User: u, Roles: append([]models.UserRole(nil), s.st.userRoles[userID]...)}
	if store, ok := s.st.storeByOwner(userID); ok {
		access.Store = &store
	}
	return access, nil
}

func (s *Store) FindStoreByOwner(_ context.Context, userID int64) (models.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	store, ok := s.st.storeByOwner(userID)
	if !ok {
		return models.Store{}, storage.ErrNotFound
	}
	return store, nil
}

func (s *Store) FindStoreByName(_ context.Context, name string) (models.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, store := range s.st.stores {
		if store.Name == name {
			return s.st.withSubscription(store), nil
		}
	}
	return models.Store{}, storage.ErrNotFound
}

func (s *Store) SetStoreTemplate(_ context.Context, ownerID int64, storeName, template string) (models.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, store := range s.st.stores {
		if store.UserID == ownerID && store.Name == storeName {
			store.TemplateName = template
			s.st.stores[id] = store
			return s.st.withSubscription(store), nil
		}
	}
	return models.Store{}, storage.ErrNotFound
}

func (s *Store) ListRoles(_ context.Context) ([]models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roles := make([]models.Role, 0, len(s.st.roles))
	for _, r := range s.st.roles {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].ID < roles[j].ID })
	return roles, nil
}

func (st *state) findUser(identity models.Identity) (models.User, bool) {
	for _, u := range st.users {
		if u.Identity != nil && u.Identity.Channel() == identity.Channel() && u.Identity.Value() == identity.Value() {
			return u, true
		}
	}
	return models.User{}, false
}

func (st *state) storeByOwner(userID int64) (models.Store, bool) {
	var found models.Store
	ok := false
	for _, store := range st.stores {
		if store.UserID == userID && (!ok || store.ID > found.ID) {
			found, ok = store, true
		}
	}
	if !ok {
		return models.Store{}, false
	}
	return st.withSubscription(found), true
}

func (st *state) withSubscription(store models.Store) models.Store {
	for _, sub := range st.subs {
		if sub.StoreID == store.ID {
			sub := sub
			store.Subscription = &sub
			break
		}
	}
	return store
}
