// Package otp holds pending registrations until their one-time code is confirmed.
package otp

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned for an absent, expired, already consumed or mismatched code.
// Callers cannot tell these apart.
var ErrNotFound = errors.New("no pending verification matches")

// Payload is what a pending registration carries until confirmation.
type Payload struct {
	Name         string
	PasswordHash string
}

// Record is a pending registration keyed by email address or phone number.
type Record struct {
	Identifier string
	Payload    Payload
	Code       string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

func (r Record) expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Store keeps pending registrations. Save overwrites any previous record for the identifier
// and resets its expiry. Verify consumes a matching record exactly once.
type Store interface {
	Save(ctx context.Context, identifier string, payload Payload, code string, ttl time.Duration) error
	Verify(ctx context.Context, identifier, code string) (Payload, error)
}
