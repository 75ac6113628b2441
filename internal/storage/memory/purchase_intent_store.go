package memory

import (
	"context"
	"math/big"
	"sync"

	"chefcoin-bridge/internal/domain"
	"chefcoin-bridge/internal/storage"
)

// PurchaseIntentStore is an in-memory implementation of
// storage.PurchaseIntentStore.
type PurchaseIntentStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PurchaseIntent
}

// NewPurchaseIntentStore creates a new in-memory purchase intent store.
func NewPurchaseIntentStore() *PurchaseIntentStore {
	return &PurchaseIntentStore{
		data: make(map[string]*domain.PurchaseIntent),
	}
}

// Compile-time interface check.
var _ storage.PurchaseIntentStore = (*PurchaseIntentStore)(nil)

// Put stores an intent keyed by its ID. Returns ErrDuplicateKey if the ID
// is already live.
func (s *PurchaseIntentStore) Put(_ context.Context, intent *domain.PurchaseIntent) error {
	if intent == nil || intent.ID == "" || intent.Wallet == "" || intent.ItemID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[intent.ID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[intent.ID] = copyPurchaseIntent(intent)
	return nil
}

// Get retrieves an intent by ID. Returns ErrNotFound if absent.
func (s *PurchaseIntentStore) Get(_ context.Context, id string) (*domain.PurchaseIntent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	intent, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyPurchaseIntent(intent), nil
}

// Delete consumes an intent. Returns ErrNotFound if absent.
func (s *PurchaseIntentStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.data, id)
	return nil
}

func copyPurchaseIntent(in *domain.PurchaseIntent) *domain.PurchaseIntent {
	out := *in
	if in.RawAmount != nil {
		out.RawAmount = new(big.Int).Set(in.RawAmount)
	}
	return &out
}
