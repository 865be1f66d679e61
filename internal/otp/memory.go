package otp

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hongminglow/storefront-be/internal/clock"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a process-local Store. A single mutex makes check-and-delete atomic,
// so concurrent Verify calls for one identifier cannot both succeed.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	clock   clock.Clock
}

// NewMemoryStore returns an empty store; a nil clock means the system clock.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.System{}
	}
	return &MemoryStore{records: make(map[string]Record), clock: clk}
}

// Save never fails.
func (s *MemoryStore) Save(_ context.Context, identifier string, payload Payload, code string, ttl time.Duration) error {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[identifier] = Record{
		Identifier: identifier,
		Payload:    payload,
		Code:       code,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	return nil
}

// Verify returns the payload and deletes the record when code matches a live record.
// A wrong code leaves the record in place.
func (s *MemoryStore) Verify(_ context.Context, identifier, code string) (Payload, error) {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[identifier]
	if !ok {
		return Payload{}, ErrNotFound
	}
	if rec.expired(now) {
		delete(s.records, identifier)
		return Payload{}, ErrNotFound
	}
	if subtle.ConstantTimeCompare([]byte(rec.Code), []byte(code)) != 1 {
		return Payload{}, ErrNotFound
	}
	delete(s.records, identifier)
	return rec.Payload, nil
}

// Sweep evicts every expired record and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, rec := range s.records {
		if rec.expired(now) {
			delete(s.records, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of records currently held, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Run sweeps on every tick until ctx is done.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration, log *zap.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 && log != nil {
				log.Debug("evicted expired verification codes", zap.Int("count", n))
			}
		}
	}
}
