package models

import "time"

// DefaultTemplate is assigned to stores created without an explicit template.
const DefaultTemplate = "classic"

// TrialDays is the length of the trial window every new store receives.
const TrialDays = 7

// Store is a tenant storefront owned by exactly one user.
type Store struct {
	ID           int64         `json:"id"`
	UserID       int64         `json:"user_id"`
	Name         string        `json:"store_name"`
	Address      string        `json:"store_address"`
	Type         string        `json:"store_type"`
	URL          string        `json:"store_url"`
	TemplateName string        `json:"template_name"`
	CreatedAt    time.Time     `json:"created_at"`
	Subscription *Subscription `json:"subscription,omitempty"`
}

// SubscriptionStatus is the billing state of a store. Anything other than trialing or
// active is treated as expired.
type SubscriptionStatus string

const (
	StatusTrialing SubscriptionStatus = "trialing"
	StatusActive   SubscriptionStatus = "active"
	StatusExpired  SubscriptionStatus = "expired"
)

// Subscription is the one-to-one billing record of a store.
type Subscription struct {
	ID          int64              `json:"id"`
	StoreID     int64              `json:"store_id"`
	Status      SubscriptionStatus `json:"status"`
	StartDate   time.Time          `json:"start_date"`
	TrialEndsAt time.Time          `json:"trial_ends_at"`
	EndDate     time.Time          `json:"end_date"`
	AutoRenew   bool               `json:"is_auto_renew"`
	PlanID      *int64             `json:"plan_id"`
}

// NewTrialSubscription builds the subscription every onboarded store starts with:
// trialing, no plan, trial and end date both TrialDays after now.
func NewTrialSubscription(storeID int64, now time.Time) Subscription {
	start := now.UTC()
	trialEnds := start.AddDate(0, 0, TrialDays)
	return Subscription{
		StoreID:     storeID,
		Status:      StatusTrialing,
		StartDate:   start,
		TrialEndsAt: trialEnds,
		EndDate:     trialEnds,
		AutoRenew:   false,
	}
}

// Access is what a user currently holds: role associations and their store, if any.
type Access struct {
	User  User
	Roles []UserRole
	Store *Store
}

// RoleIDs lists the associated role ids in storage order.
func (a Access) RoleIDs() []int64 {
	ids := make([]int64, 0, len(a.Roles))
	for _, r := range a.Roles {
		ids = append(ids, r.RoleID)
	}
	return ids
}

// Onboarded reports the onboarded flag of the first association; false without any.
func (a Access) Onboarded() bool {
	if len(a.Roles) == 0 {
		return false
	}
	return a.Roles[0].Onboarded
}

// StoreURL returns the store URL or "" when the user has no store.
func (a Access) StoreURL() string {
	if a.Store == nil {
		return ""
	}
	return a.Store.URL
}
