package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hongminglow/storefront-be/internal/models"
	"github.com/hongminglow/storefront-be/internal/storage"
)

// Ensure Store satisfies the storage.Store interface at compile time.
var _ storage.Store = (*Store)(nil)

const uniqueViolation = "23505"

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides Postgres-backed persistence.
type Store struct {
	pool *pgxpool.Pool
}

// New connects, runs migrations and seeds the role reference data.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

// Close releases database resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks that the pool can reach the database.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT UNIQUE,
			phone_number TEXT UNIQUE,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT users_single_identity_chk CHECK ((email IS NULL) <> (phone_number IS NULL))
		);`,
		`CREATE TABLE IF NOT EXISTS roles (id BIGINT PRIMARY KEY, role_name TEXT UNIQUE NOT NULL);`,
		`INSERT INTO roles (id, role_name) VALUES (1, 'admin'), (2, 'employee') ON CONFLICT (id) DO UPDATE SET role_name = EXCLUDED.role_name;`,
		`CREATE TABLE IF NOT EXISTS user_roles (
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			role_id BIGINT NOT NULL REFERENCES roles(id),
			onboarded BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, role_id)
		);`,
		`CREATE TABLE IF NOT EXISTS stores (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			store_name TEXT NOT NULL UNIQUE,
			store_address TEXT,
			store_type TEXT NOT NULL,
			store_url TEXT UNIQUE,
			template_name TEXT NOT NULL DEFAULT 'classic',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS stores_user_id_idx ON stores (user_id);`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id BIGSERIAL PRIMARY KEY,
			store_id BIGINT NOT NULL UNIQUE REFERENCES stores(id) ON DELETE CASCADE,
			status TEXT NOT NULL,
			start_date TIMESTAMPTZ NOT NULL,
			trial_ends_at TIMESTAMPTZ,
			end_date TIMESTAMPTZ NOT NULL,
			is_auto_renew BOOLEAN NOT NULL DEFAULT FALSE,
			plan_id BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}
	return nil
}

// WithinTx runs fn in a read-committed transaction. The unique constraint on store_name
// is the final arbiter when two onboardings race for the same name.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.OnboardingTx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &onboardingTx{q: tx, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

// CreateUser inserts a new user row.
func (s *Store) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	email, phone := models.IdentityColumns(user.Identity)
	if email == nil && phone == nil {
		return models.User{}, models.ErrInvalidIdentity
	}
	const query = `
		INSERT INTO users (name, email, phone_number, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING id, email, phone_number, name, password_hash, created_at;
	`
	row := s.pool.QueryRow(ctx, query, user.Name, email, phone, user.PasswordHash)
	return scanUser(row)
}

// FindUserByID fetches a user by primary key.
func (s *Store) FindUserByID(ctx context.Context, id int64) (models.User, error) {
	return findUserByID(ctx, s.pool, id)
}

// FindUserByIdentity fetches a user by email or phone number depending on the variant.
func (s *Store) FindUserByIdentity(ctx context.Context, identity models.Identity) (models.User, error) {
	var query string
	switch identity.(type) {
	case models.EmailIdentity:
		query = selectUser + ` WHERE email = $1;`
	case models.PhoneIdentity:
		query = selectUser + ` WHERE phone_number = $1;`
	default:
		return models.User{}, models.ErrInvalidIdentity
	}
	return scanUser(s.pool.QueryRow(ctx, query, identity.Value()))
}

// FindAccess loads the user's role associations and store.
func (s *Store) FindAccess(ctx context.Context, userID int64) (models.Access, error) {
	user, err := findUserByID(ctx, s.pool, userID)
	if err != nil {
		return models.Access{}, err
	}

	rows, err := s.pool.Query(ctx, `SELECT user_id, role_id, onboarded FROM user_roles WHERE user_id = $1 ORDER BY created_at, role_id;`, userID)
	if err != nil {
		return models.Access{}, err
	}
	roles, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.UserRole, error) {
		var ur models.UserRole
		err := row.Scan(&ur.UserID, &ur.RoleID, &ur.Onboarded)
		return ur, err
	})
	if err != nil {
		return models.Access{}, err
	}

	access := models.Access{User: user, Roles: roles}
	store, err := s.FindStoreByOwner(ctx, userID)
	switch {
	case err == nil:
		access.Store = &store
	case !errors.Is(err, storage.ErrNotFound):
		return models.Access{}, err
	}
	return access, nil
}

// FindStoreByOwner fetches the user's store with its subscription.
func (s *Store) FindStoreByOwner(ctx context.Context, userID int64) (models.Store, error) {
	return scanStore(s.pool.QueryRow(ctx, selectStore+` WHERE s.user_id = $1 ORDER BY s.id DESC LIMIT 1;`, userID))
}

// FindStoreByName fetches a store by its unique name with its subscription.
func (s *Store) FindStoreByName(ctx context.Context, name string) (models.Store, error) {
	return scanStore(s.pool.QueryRow(ctx, selectStore+` WHERE s.store_name = $1;`, name))
}

// SetStoreTemplate updates the template of a store owned by ownerID.
func (s *Store) SetStoreTemplate(ctx context.Context, ownerID int64, storeName, template string) (models.Store, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE stores SET template_name = $3 WHERE user_id = $1 AND store_name = $2;`,
		ownerID, storeName, template)
	if err != nil {
		return models.Store{}, fmt.Errorf("set store template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.Store{}, storage.ErrNotFound
	}
	return s.FindStoreByName(ctx, storeName)
}

// ListRoles returns the seeded roles.
func (s *Store) ListRoles(ctx context.Context) ([]models.Role, error) {
	return queryRoles(ctx, s.pool, `SELECT id, role_name FROM roles ORDER BY id;`)
}

const selectUser = `SELECT id, email, phone_number, name, password_hash, created_at FROM users`

const selectStore = `
	SELECT s.id, s.user_id, s.store_name, COALESCE(s.store_address, ''), s.store_type, COALESCE(s.store_url, ''),
		s.template_name, s.created_at,
		sub.id, sub.status, sub.start_date, sub.trial_ends_at, sub.end_date, sub.is_auto_renew, sub.plan_id
	FROM stores s
	LEFT JOIN subscriptions sub ON sub.store_id = s.id`

func findUserByID(ctx context.Context, q querier, id int64) (models.User, error) {
	return scanUser(q.QueryRow(ctx, selectUser+` WHERE id = $1;`, id))
}

func queryRoles(ctx context.Context, q querier, query string, args ...any) ([]models.Role, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Role, error) {
		var r models.Role
		err := row.Scan(&r.ID, &r.Name)
		return r, err
	})
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	var email, phone *string
	if err := row.Scan(&user.ID, &email, &phone, &user.Name, &user.PasswordHash, &user.CreatedAt); err != nil {
		return models.User{}, mapError(err)
	}
	identity, err := models.IdentityFromColumns(email, phone)
	if err != nil {
		return models.User{}, fmt.Errorf("user %d: %w", user.ID, err)
	}
	user.Identity = identity
	return user, nil
}

func scanStore(row pgx.Row) (models.Store, error) {
	var (
		store       models.Store
		subID       *int64
		status      *string
		startDate   *time.Time
		trialEndsAt *time.Time
		endDate     *time.Time
		autoRenew   *bool
		planID      *int64
	)
	err := row.Scan(
		&store.ID, &store.UserID, &store.Name, &store.Address, &store.Type, &store.URL,
		&store.TemplateName, &store.CreatedAt,
		&subID, &status, &startDate, &trialEndsAt, &endDate, &autoRenew, &planID,
	)
	if err != nil {
		return models.Store{}, mapError(err)
	}
	if subID != nil {
		sub := &models.Subscription{
			ID:      *subID,
			StoreID: store.ID,
			Status:  models.SubscriptionStatus(deref(status)),
			PlanID:  planID,
		}
		if startDate != nil {
			sub.StartDate = *startDate
		}
		if trialEndsAt != nil {
			sub.TrialEndsAt = *trialEndsAt
		}
		if endDate != nil {
			sub.EndDate = *endDate
		}
		if autoRenew != nil {
			sub.AutoRenew = *autoRenew
		}
		store.Subscription = sub
	}
	return store, nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", storage.ErrAlreadyExists, pgErr.ConstraintName)
	}
	return err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
