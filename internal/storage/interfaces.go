package storage

import (
	"context"
	"time"

	"chefcoin-bridge/internal/domain"
)

// SwapIntentStore holds outstanding synchronous swap intents. The shipped
// implementation is in-memory and per-process; an intent created by one
// engine instance is invisible to another, so deployments either pin a
// wallet's create/confirm pair to one instance or swap in a shared store.
type SwapIntentStore interface {
	// Put stores an intent keyed by its ID. Returns ErrDuplicateKey if the
	// ID is already live.
	Put(ctx context.Context, intent *domain.SwapIntent) error

	// Get retrieves an intent by ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*domain.SwapIntent, error)

	// Delete consumes an intent. Returns ErrNotFound if absent, so a
	// double-settlement attempt is visible to the caller.
	Delete(ctx context.Context, id string) error
}

// PurchaseIntentStore holds outstanding purchase intents.
type PurchaseIntentStore interface {
	Put(ctx context.Context, intent *domain.PurchaseIntent) error
	Get(ctx context.Context, id string) (*domain.PurchaseIntent, error)
	Delete(ctx context.Context, id string) error
}

// SwapRequestStore provides access to the durable asynchronous swap queue.
type SwapRequestStore interface {
	// Insert adds a new request in pending status. Returns ErrDuplicateKey
	// if the transaction signature is already attached to another request.
	Insert(ctx context.Context, req *domain.SwapRequest) error

	// GetByID retrieves a request. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id string) (*domain.SwapRequest, error)

	// ListPending retrieves up to limit pending requests, oldest first.
	ListPending(ctx context.Context, limit int) ([]*domain.SwapRequest, error)

	// Claim atomically transitions a request from pending to processing.
	// Returns false if the request is no longer pending, so two
	// overlapping batch passes cannot both process the same row.
	Claim(ctx context.Context, id string) (bool, error)

	// MarkCompleted terminates a processing request with its settlement
	// signature and processed time.
	MarkCompleted(ctx context.Context, id, signature string, processedAt time.Time) error

	// MarkFailed terminates a processing request with an error message.
	MarkFailed(ctx context.Context, id, errMsg string, processedAt time.Time) error
}

// MutationResult reports the outcome of a balance mutation.
type MutationResult struct {
	NewBalance int64
}

// RefundResult reports the outcome of a compensating refund.
type RefundResult struct {
	RefundedAmount int64
	NewBalance     int64
}

// BalanceLedger is the authoritative chefcoin balance store. All mutations
// are serialized per wallet (no lost updates under concurrent calls for the
// same wallet) and append an immutable audit record.
type BalanceLedger interface {
	// Get retrieves a wallet's balance entry. Unknown wallets read as a
	// zero entry, not ErrNotFound.
	Get(ctx context.Context, wallet string) (*domain.BalanceEntry, error)

	// AtomicCredit adds amount chefcoins. dailyLimit > 0 caps the total
	// credited to the wallet within the current UTC day; exceeding it
	// returns ErrLimitExceeded without mutating.
	AtomicCredit(ctx context.Context, wallet string, amount int64, reason, requestID string, dailyLimit int64) (*MutationResult, error)

	// AtomicDebit removes amount chefcoins. Returns ErrInsufficientFunds
	// without mutating when the balance is too low.
	AtomicDebit(ctx context.Context, wallet string, amount int64, reason, requestID string) (*MutationResult, error)

	// AtomicRefund returns the amount debited under requestID to its
	// wallet. Idempotent per requestID: a second call refunds nothing
	// extra and reports the original refunded amount.
	AtomicRefund(ctx context.Context, requestID string) (*RefundResult, error)

	// GrantItem appends itemID to the wallet's owned set. Granting an
	// already-owned item is a no-op.
	GrantItem(ctx context.Context, wallet, itemID string) (*domain.BalanceEntry, error)
}

// AuditSink receives immutable copies of ledger audit records, mirroring
// the settlement trail into an analytics store. Sink failures are logged
// by callers, never propagated into the settlement path.
type AuditSink interface {
	Append(ctx context.Context, rec *domain.LedgerRecord) error
}
