package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"chefcoin-bridge/internal/domain"
	"chefcoin-bridge/internal/storage"
)

// SwapRequestStore implements storage.SwapRequestStore using PostgreSQL.
type SwapRequestStore struct {
	pool *Pool
}

// NewSwapRequestStore creates a new SwapRequestStore.
func NewSwapRequestStore(pool *Pool) *SwapRequestStore {
	return &SwapRequestStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SwapRequestStore = (*SwapRequestStore)(nil)

// Insert adds a new request in pending status. Returns ErrDuplicateKey if
// the transaction signature is already attached to another request.
func (s *SwapRequestStore) Insert(ctx context.Context, req *domain.SwapRequest) error {
	query := `
		INSERT INTO swap_requests (
			id, wallet_address, swap_type, amount, status, transaction_signature, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		req.ID,
		req.WalletAddress,
		string(req.SwapType),
		req.Amount,
		string(domain.SwapRequestPending),
		req.TransactionSignature,
		req.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert swap request: %w", err)
	}
	return nil
}

// GetByID retrieves a request. Returns ErrNotFound if absent.
func (s *SwapRequestStore) GetByID(ctx context.Context, id string) (*domain.SwapRequest, error) {
	query := `
		SELECT id, wallet_address, swap_type, amount, status, transaction_signature, error_message, created_at, processed_at
		FROM swap_requests
		WHERE id = $1
	`

	req, err := scanSwapRequest(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get swap request: %w", err)
	}
	return req, nil
}

// ListPending retrieves up to limit pending requests, oldest first.
func (s *SwapRequestStore) ListPending(ctx context.Context, limit int) ([]*domain.SwapRequest, error) {
	query := `
		SELECT id, wallet_address, swap_type, amount, status, transaction_signature, error_message, created_at, processed_at
		FROM swap_requests
		WHERE status = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, string(domain.SwapRequestPending), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending swap requests: %w", err)
	}
	defer rows.Close()

	var requests []*domain.SwapRequest
	for rows.Next() {
		req, err := scanSwapRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan swap request row: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate swap request rows: %w", err)
	}
	return requests, nil
}

// Claim atomically transitions a request from pending to processing. The
// status guard in the WHERE clause is what keeps two overlapping batch
// passes off the same row.
func (s *SwapRequestStore) Claim(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE swap_requests
		SET status = $2
		WHERE id = $1 AND status = $3
	`

	tag, err := s.pool.Exec(ctx, query, id, string(domain.SwapRequestProcessing), string(domain.SwapRequestPending))
	if err != nil {
		return false, fmt.Errorf("claim swap request: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkCompleted terminates a processing request with its settlement
// signature. Returns ErrDuplicateKey if the signature already settles
// another request, ErrNotFound if the row is not processing.
func (s *SwapRequestStore) MarkCompleted(ctx context.Context, id, signature string, processedAt time.Time) error {
	query := `
		UPDATE swap_requests
		SET status = $2, transaction_signature = $3, processed_at = $4, error_message = ''
		WHERE id = $1 AND status = $5
	`

	tag, err := s.pool.Exec(ctx, query, id, string(domain.SwapRequestCompleted), signature, processedAt, string(domain.SwapRequestProcessing))
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("mark swap request completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MarkFailed terminates a processing request with an error message.
func (s *SwapRequestStore) MarkFailed(ctx context.Context, id, errMsg string, processedAt time.Time) error {
	query := `
		UPDATE swap_requests
		SET status = $2, error_message = $3, processed_at = $4
		WHERE id = $1 AND status = $5
	`

	tag, err := s.pool.Exec(ctx, query, id, string(domain.SwapRequestFailed), errMsg, processedAt, string(domain.SwapRequestProcessing))
	if err != nil {
		return fmt.Errorf("mark swap request failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanSwapRequest scans one row into a SwapRequest.
func scanSwapRequest(row pgx.Row) (*domain.SwapRequest, error) {
	var req domain.SwapRequest
	var swapType, status string

	err := row.Scan(
		&req.ID,
		&req.WalletAddress,
		&swapType,
		&req.Amount,
		&status,
		&req.TransactionSignature,
		&req.ErrorMessage,
		&req.CreatedAt,
		&req.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}

	req.SwapType = domain.SwapDirection(swapType)
	req.Status = domain.SwapRequestStatus(status)
	return &req, nil
}
