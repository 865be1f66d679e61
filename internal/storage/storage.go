package storage

import (
	"context"
	"errors"

	"github.com/hongminglow/storefront-be/internal/models"
)

// ErrNotFound indicates a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates a uniqueness conflict.
var ErrAlreadyExists = errors.New("record already exists")

// UserStore captures user persistence used by verification and login.
type UserStore interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	FindUserByID(ctx context.Context, id int64) (models.User, error)
	FindUserByIdentity(ctx context.Context, identity models.Identity) (models.User, error)
}

// AccessStore loads what a user currently holds.
type AccessStore interface {
	FindAccess(ctx context.Context, userID int64) (models.Access, error)
}

// StoreReader loads stores together with their subscription, if any.
type StoreReader interface {
	FindStoreByOwner(ctx context.Context, userID int64) (models.Store, error)
	FindStoreByName(ctx context.Context, name string) (models.Store, error)
}

// StoreWriter changes stores outside onboarding.
type StoreWriter interface {
	// SetStoreTemplate updates the template of the store named storeName owned by ownerID.
	// It returns ErrNotFound when the user owns no store by that name.
	SetStoreTemplate(ctx context.Context, ownerID int64, storeName, template string) (models.Store, error)
}

// RoleStore reads the seeded role reference data.
type RoleStore interface {
	ListRoles(ctx context.Context) ([]models.Role, error)
}

// OnboardingTx is the view of the database available inside one onboarding transaction.
// Every method runs on the same transaction handle.
type OnboardingTx interface {
	StoreNameExists(ctx context.Context, name string) (bool, error)
	FindUserByID(ctx context.Context, id int64) (models.User, error)
	FindRolesByIDs(ctx context.Context, ids []int64) ([]models.Role, error)
	DeleteUserRoles(ctx context.Context, userID int64) error
	DeleteStoresByOwner(ctx context.Context, userID int64) error
	CreateUserRoles(ctx context.Context, roles []models.UserRole) error
	CreateStore(ctx context.Context, store models.Store) (models.Store, error)
	SetStoreURL(ctx context.Context, storeID int64, url string) error
	CreateSubscription(ctx context.Context, sub models.Subscription) (models.Subscription, error)
}

// Transactor runs fn inside a transaction. A nil return commits; any error rolls back
// everything fn wrote and is returned unchanged.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx OnboardingTx) error) error
}

// Store is the full persistence boundary wired by the composition root.
type Store interface {
	UserStore
	AccessStore
	StoreReader
	StoreWriter
	RoleStore
	Transactor
	Close()
}
