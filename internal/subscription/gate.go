// Package subscription decides whether a store's subscription currently lets requests through.
package subscription

import (
	"net/http"
	"time"

	"github.com/hongminglow/storefront-be/internal/models"
)

// Code is the stable identifier clients branch on.
type Code string

const (
	CodeSubscriptionRequired Code = "SUBSCRIPTION_REQUIRED"
	CodeTrialExpired         Code = "TRIAL_EXPIRED"
	CodeSubscriptionExpired  Code = "SUBSCRIPTION_EXPIRED"
)

// Outcome classifies a gate decision.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeNoStore
	OutcomeNoSubscription
	OutcomeExpired
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNoStore:
		return "no_store"
	case OutcomeNoSubscription:
		return "no_subscription"
	case OutcomeExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Mode selects the wording and status used for the owner dashboard versus the public storefront.
type Mode int

const (
	ModeOwner Mode = iota
	ModePublic
)

// Decision is the gate's answer. Status and Message are only meaningful when Allowed is false.
type Decision struct {
	Outcome Outcome
	Code    Code
	Status  int
	Message string
}

// Allowed reports whether the request may proceed.
func (d Decision) Allowed() bool { return d.Outcome == OutcomeOK }

// IsValid is the validity predicate: trialing until trial_ends_at, active until end_date,
// anything else (including nil) invalid.
func IsValid(sub *models.Subscription, now time.Time) bool {
	if sub == nil {
		return false
	}
	switch sub.Status {
	case models.StatusTrialing:
		return now.Before(sub.TrialEndsAt)
	case models.StatusActive:
		return now.Before(sub.EndDate)
	default:
		return false
	}
}

// Evaluate applies the gate to a store (nil when none was found) and its subscription.
// It never panics and has no side effects.
func Evaluate(store *models.Store, now time.Time, mode Mode) Decision {
	public := mode == ModePublic
	if store == nil {
		if public {
			return Decision{Outcome: OutcomeNoStore, Status: http.StatusNotFound, Message: "Store not found"}
		}
		return Decision{Outcome: OutcomeNoStore, Status: http.StatusForbidden, Message: "No store found"}
	}

	sub := store.Subscription
	if sub == nil {
		msg := "No subscription found. Please subscribe to continue."
		if public {
			msg = "Store subscription not found."
		}
		return Decision{
			Outcome: OutcomeNoSubscription,
			Code:    CodeSubscriptionRequired,
			Status:  http.StatusForbidden,
			Message: msg,
		}
	}

	if IsValid(sub, now) {
		return Decision{Outcome: OutcomeOK}
	}

	trialing := sub.Status == models.StatusTrialing
	d := Decision{Outcome: OutcomeExpired, Status: http.StatusForbidden}
	switch {
	case trialing:
		d.Code = CodeTrialExpired
		d.Message = "Free trial expired. Please subscribe to continue."
	default:
		d.Code = CodeSubscriptionExpired
		d.Message = "Subscription expired. Please renew to continue."
	}
	if public {
		d.Message = "Store is temporarily unavailable."
	}
	return d
}
