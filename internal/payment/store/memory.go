// Package store persists payment records.
package store

import (
	"context"
	"sync"

	"fxsettle/internal/payment/models"
	id "fxsettle/pkg/domain"
	"fxsettle/pkg/platform/sentinel"
)

// InMemoryStore keeps committed payments. Readers always receive clones.
type InMemoryStore struct {
	mu       sync.RWMutex
	payments map[id.PaymentID]*models.Payment
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{payments: make(map[id.PaymentID]*models.Payment)}
}

func (s *InMemoryStore) FindByID(_ context.Context, paymentID id.PaymentID) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[paymentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return p.Clone(), nil
}

// Save replaces the record for p.ID.
func (s *InMemoryStore) Save(_ context.Context, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[p.ID] = p.Clone()
	return nil
}

func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.payments)
}

// Begin opens a copy-on-write view. Writes stay in the view until Commit.
func (s *InMemoryStore) Begin() *Staged {
	return &Staged{base: s, writes: make(map[id.PaymentID]*models.Payment)}
}

// Staged is a unit-of-work view over an InMemoryStore.
type Staged struct {
	base   *InMemoryStore
	writes map[id.PaymentID]*models.Payment
}

func (s *Staged) FindByID(ctx context.Context, paymentID id.PaymentID) (*models.Payment, error) {
	if p, ok := s.writes[paymentID]; ok {
		return p.Clone(), nil
	}
	return s.base.FindByID(ctx, paymentID)
}

func (s *Staged) Save(_ context.Context, p *models.Payment) error {
	s.writes[p.ID] = p.Clone()
	return nil
}

// Commit publishes every staged write at once.
func (s *Staged) Commit() {
	s.base.mu.Lock()
	defer s.base.mu.Unlock()
	for k, p := range s.writes {
		s.base.payments[k] = p
	}
	s.writes = make(map[id.PaymentID]*models.Payment)
}
