package memory

import (
	"context"
	"math/big"
	"sync"

	"chefcoin-bridge/internal/domain"
	"chefcoin-bridge/internal/storage"
)

// SwapIntentStore is an in-memory implementation of storage.SwapIntentStore.
// Scoped to a single engine instance; intents live only as long as the
// process.
type SwapIntentStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SwapIntent
}

// NewSwapIntentStore creates a new in-memory swap intent store.
func NewSwapIntentStore() *SwapIntentStore {
	return &SwapIntentStore{
		data: make(map[string]*domain.SwapIntent),
	}
}

// Compile-time interface check.
var _ storage.SwapIntentStore = (*SwapIntentStore)(nil)

// Put stores an intent keyed by its ID. Returns ErrDuplicateKey if the ID
// is already live.
func (s *SwapIntentStore) Put(_ context.Context, intent *domain.SwapIntent) error {
	if intent == nil || intent.ID == "" || intent.Wallet == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[intent.ID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[intent.ID] = copySwapIntent(intent)
	return nil
}

// Get retrieves an intent by ID. Returns ErrNotFound if absent.
func (s *SwapIntentStore) Get(_ context.Context, id string) (*domain.SwapIntent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	intent, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copySwapIntent(intent), nil
}

// Delete consumes an intent. Returns ErrNotFound if absent.
func (s *SwapIntentStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.data, id)
	return nil
}

// copySwapIntent returns a deep copy so callers cannot mutate stored state.
func copySwapIntent(in *domain.SwapIntent) *domain.SwapIntent {
	out := *in
	if in.RawAmount != nil {
		out.RawAmount = new(big.Int).Set(in.RawAmount)
	}
	return &out
}
