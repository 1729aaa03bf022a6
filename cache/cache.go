// Package cache is the idempotency store of the payment flow: one record
// per paymentId, so a charge is settled at most once per session.
package cache

import (
	"sync"

	"github.com/DeegaLabs/cronos-shield-x402/types"
)

// Store maps a paymentId to its settlement outcome. Implementations must be
// safe for concurrent use. The store is session-scoped and injectable so
// tests can supply an isolated instance; records are never deleted within a
// session.
type Store interface {
	// Lookup returns the record for a paymentId, or nil.
	Lookup(paymentID string) *types.PaymentRecord

	// Record inserts or replaces the record for a paymentId.
	Record(paymentID string, rec types.PaymentRecord)
}

// MemoryStore is the in-memory session store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]types.PaymentRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]types.PaymentRecord)}
}

func (s *MemoryStore) Lookup(paymentID string) *types.PaymentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[paymentID]
	if !ok {
		return nil
	}
	return &rec
}

func (s *MemoryStore) Record(paymentID string, rec types.PaymentRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[paymentID] = rec
}

// snapshot returns a copy of all records, for persistence.
func (s *MemoryStore) snapshot() map[string]types.PaymentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]types.PaymentRecord, len(s.records))
	for k, v := range s.records {
		out[k] = v
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
