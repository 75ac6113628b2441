package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"chefcoin-bridge/internal/domain"
	"chefcoin-bridge/internal/storage"
)

// SwapRequestStore is an in-memory implementation of
// storage.SwapRequestStore.
type SwapRequestStore struct {
	mu         sync.Mutex
	data       map[string]*domain.SwapRequest
	signatures map[string]string // tx signature -> request id
}

// NewSwapRequestStore creates a new in-memory swap request store.
func NewSwapRequestStore() *SwapRequestStore {
	return &SwapRequestStore{
		data:       make(map[string]*domain.SwapRequest),
		signatures: make(map[string]string),
	}
}

// Compile-time interface check.
var _ storage.SwapRequestStore = (*SwapRequestStore)(nil)

// Insert adds a new request in pending status. Returns ErrDuplicateKey if
// the id or the transaction signature already exists.
func (s *SwapRequestStore) Insert(_ context.Context, req *domain.SwapRequest) error {
	if req == nil || req.ID == "" || req.WalletAddress == "" || !req.SwapType.Valid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[req.ID]; exists {
		return storage.ErrDuplicateKey
	}
	if req.TransactionSignature != "" {
		if _, exists := s.signatures[req.TransactionSignature]; exists {
			return storage.ErrDuplicateKey
		}
	}

	cp := *req
	if cp.Status == "" {
		cp.Status = domain.SwapRequestPending
	}
	s.data[cp.ID] = &cp
	if cp.TransactionSignature != "" {
		s.signatures[cp.TransactionSignature] = cp.ID
	}
	return nil
}

// GetByID retrieves a request. Returns ErrNotFound if absent.
func (s *SwapRequestStore) GetByID(_ context.Context, id string) (*domain.SwapRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

// ListPending retrieves up to limit pending requests, oldest first.
func (s *SwapRequestStore) ListPending(_ context.Context, limit int) ([]*domain.SwapRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*domain.SwapRequest
	for _, req := range s.data {
		if req.Status == domain.SwapRequestPending {
			cp := *req
			pending = append(pending, &cp)
		}
	}

	sort.Slice(pending, func(i, j int) bool {
		if pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].ID < pending[j].ID
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// Claim atomically transitions a request from pending to processing.
func (s *SwapRequestStore) Claim(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.data[id]
	if !ok {
		return false, storage.ErrNotFound
	}
	if req.Status != domain.SwapRequestPending {
		return false, nil
	}
	req.Status = domain.SwapRequestProcessing
	return true, nil
}

// MarkCompleted terminates a processing request.
func (s *SwapRequestStore) MarkCompleted(_ context.Context, id, signature string, processedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.data[id]
	if !ok {
		return storage.ErrNotFound
	}
	if signature != "" && signature != req.TransactionSignature {
		if owner, exists := s.signatures[signature]; exists && owner != id {
			return storage.ErrDuplicateKey
		}
		s.signatures[signature] = id
		req.TransactionSignature = signature
	}
	req.Status = domain.SwapRequestCompleted
	t := processedAt
	req.ProcessedAt = &t
	return nil
}

// MarkFailed terminates a processing request with an error message.
func (s *SwapRequestStore) MarkFailed(_ context.Context, id, errMsg string, processedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.data[id]
	if !ok {
		return storage.ErrNotFound
	}
	req.Status = domain.SwapRequestFailed
	req.ErrorMessage = errMsg
	t := processedAt
	req.ProcessedAt = &t
	return nil
}
