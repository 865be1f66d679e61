package events

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RoutingKeyStoreOnboarded is published after an onboarding transaction commits.
const RoutingKeyStoreOnboarded = "store.onboarded"

// StoreOnboarded describes a freshly provisioned store.
type StoreOnboarded struct {
	UserID      int64     `json:"user_id"`
	StoreID     int64     `json:"store_id"`
	StoreName   string    `json:"store_name"`
	StoreURL    string    `json:"store_url"`
	Roles       []int64   `json:"roles"`
	Onboarded   bool      `json:"onboarded"`
	TrialEndsAt time.Time `json:"trial_ends_at"`
}

// Publisher is implemented by types that can publish events.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body any) error
	Close()
}

// LogPublisher stands in when no broker is configured; it only logs.
type LogPublisher struct {
	Log *zap.Logger
}

func (p LogPublisher) Publish(_ context.Context, exchange, routingKey string, body any) error {
	if p.Log != nil {
		p.Log.Info("event not published: no broker configured",
			zap.String("exchange", exchange),
			zap.String("routing_key", routingKey),
			zap.Any("body", body),
		)
	}
	return nil
}

func (LogPublisher) Close() {}
