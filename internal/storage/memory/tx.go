package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/hongminglow/storefront-be/internal/models"
	"github.com/hongminglow/storefront-be/internal/storage"
)

var _ storage.OnboardingTx = (*tx)(nil)

type tx struct {
	st  *state
	now func() time.Time
}

func (t *tx) StoreNameExists(_ context.Context, name string) (bool, error) {
	for _, store := range t.st.stores {
		if store.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) FindUserByID(_ context.Context, id int64) (models.User, error) {
	u, ok := t.st.users[id]
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (t *tx) FindRolesByIDs(_ context.Context, ids []int64) ([]models.Role, error) {
	seen := make(map[int64]bool, len(ids))
	var roles []models.Role
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if r, ok := t.st.roles[id]; ok {
			roles = append(roles, r)
		}
	}
	return roles, nil
}

func (t *tx) DeleteUserRoles(_ context.Context, userID int64) error {
	delete(t.st.userRoles, userID)
	return nil
}

func (t *tx) DeleteStoresByOwner(_ context.Context, userID int64) error {
	for id, store := range t.st.stores {
		if store.UserID != userID {
			continue
		}
		delete(t.st.stores, id)
		for subID, sub := range t.st.subs {
			if sub.StoreID == id {
				delete(t.st.subs, subID)
			}
		}
	}
	return nil
}

func (t *tx) CreateUserRoles(_ context.Context, roles []models.UserRole) error {
	for _, r := range roles {
		if _, ok := t.st.users[r.UserID]; !ok {
			return fmt.Errorf("user_roles: unknown user %d", r.UserID)
		}
		if _, ok := t.st.roles[r.RoleID]; !ok {
			return fmt.Errorf("user_roles: unknown role %d", r.RoleID)
		}
		for _, existing := range t.st.userRoles[r.UserID] {
			if existing.RoleID == r.RoleID {
				return fmt.Errorf("%w: user_roles_pkey", storage.ErrAlreadyExists)
			}
		}
		t.st.userRoles[r.UserID] = append(t.st.userRoles[r.UserID], r)
	}
	return nil
}

func (t *tx) CreateStore(_ context.Context, store models.Store) (models.Store, error) {
	for _, existing := range t.st.stores {
		if existing.Name == store.Name {
			return models.Store{}, fmt.Errorf("%w: stores_store_name_key", storage.ErrAlreadyExists)
		}
		if store.URL != "" && existing.URL == store.URL {
			return models.Store{}, fmt.Errorf("%w: stores_store_url_key", storage.ErrAlreadyExists)
		}
	}
	if store.TemplateName == "" {
		store.TemplateName = models.DefaultTemplate
	}
	store.ID = t.st.nextStore
	t.st.nextStore++
	store.CreatedAt = t.now()
	store.Subscription = nil
	t.st.stores[store.ID] = store
	return store, nil
}

func (t *tx) SetStoreURL(_ context.Context, storeID int64, url string) error {
	store, ok := t.st.stores[storeID]
	if !ok {
		return storage.ErrNotFound
	}
	for id, existing := range t.st.stores {
		if id != storeID && existing.URL == url {
			return fmt.Errorf("%w: stores_store_url_key", storage.ErrAlreadyExists)
		}
	}
	store.URL = url
	t.st.stores[storeID] = store
	return nil
}

func (t *tx) CreateSubscription(_ context.Context, sub models.Subscription) (models.Subscription, error) {
	if _, ok := t.st.stores[sub.StoreID]; !ok {
		return models.Subscription{}, fmt.Errorf("subscriptions: unknown store %d", sub.StoreID)
	}
	for _, existing := range t.st.subs {
		if existing.StoreID == sub.StoreID {
			return models.Subscription{}, fmt.Errorf("%w: subscriptions_store_id_key", storage.ErrAlreadyExists)
		}
	}
	sub.ID = t.st.nextSub
	t.st.nextSub++
	t.st.subs[sub.ID] = sub
	return sub, nil
}
