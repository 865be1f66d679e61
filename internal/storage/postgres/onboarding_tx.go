package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/hongminglow/storefront-be/internal/models"
	"github.com/hongminglow/storefront-be/internal/storage"
)

var _ storage.OnboardingTx = (*onboardingTx)(nil)

// onboardingTx runs every statement on one pgx transaction. pgx transactions are not safe
// for concurrent use, so callers issue statements sequentially.
type onboardingTx struct {
	q  querier
	tx pgx.Tx
}

func (t *onboardingTx) StoreNameExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM stores WHERE store_name = $1);`, name).Scan(&exists)
	return exists, err
}

func (t *onboardingTx) FindUserByID(ctx context.Context, id int64) (models.User, error) {
	return findUserByID(ctx, t.q, id)
}

func (t *onboardingTx) FindRolesByIDs(ctx context.Context, ids []int64) ([]models.Role, error) {
	return queryRoles(ctx, t.q, `SELECT id, role_name FROM roles WHERE id = ANY($1) ORDER BY id;`, ids)
}

func (t *onboardingTx) DeleteUserRoles(ctx context.Context, userID int64) error {
	_, err := t.q.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1;`, userID)
	return err
}

// DeleteStoresByOwner also removes the subscriptions through ON DELETE CASCADE.
func (t *onboardingTx) DeleteStoresByOwner(ctx context.Context, userID int64) error {
	_, err := t.q.Exec(ctx, `DELETE FROM stores WHERE user_id = $1;`, userID)
	return err
}

func (t *onboardingTx) CreateUserRoles(ctx context.Context, roles []models.UserRole) error {
	_, err := t.tx.CopyFrom(ctx,
		pgx.Identifier{"user_roles"},
		[]string{"user_id", "role_id", "onboarded"},
		pgx.CopyFromSlice(len(roles), func(i int) ([]any, error) {
			return []any{roles[i].UserID, roles[i].RoleID, roles[i].Onboarded}, nil
		}),
	)
	return mapError(err)
}

func (t *onboardingTx) CreateStore(ctx context.Context, store models.Store) (models.Store, error) {
	template := store.TemplateName
	if template == "" {
		template = models.DefaultTemplate
	}
	const query = `
		INSERT INTO stores (user_id, store_name, store_address, store_type, store_url, template_name)
		VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), $6)
		RETURNING id, created_at;
	`
	err := t.q.QueryRow(ctx, query, store.UserID, store.Name, store.Address, store.Type, store.URL, template).
		Scan(&store.ID, &store.CreatedAt)
	if err != nil {
		return models.Store{}, mapError(err)
	}
	store.TemplateName = template
	return store, nil
}

func (t *onboardingTx) SetStoreURL(ctx context.Context, storeID int64, url string) error {
	tag, err := t.q.Exec(ctx, `UPDATE stores SET store_url = $2 WHERE id = $1;`, storeID, url)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *onboardingTx) CreateSubscription(ctx context.Context, sub models.Subscription) (models.Subscription, error) {
	const query = `
		INSERT INTO subscriptions (store_id, status, start_date, trial_ends_at, end_date, is_auto_renew, plan_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id;
	`
	err := t.q.QueryRow(ctx, query,
		sub.StoreID, string(sub.Status), sub.StartDate, sub.TrialEndsAt, sub.EndDate, sub.AutoRenew, sub.PlanID,
	).Scan(&sub.ID)
	if err != nil {
		return models.Subscription{}, mapError(err)
	}
	return sub, nil
}
