package domain

import "time"

// SwapRequestStatus is the lifecycle state of a queued swap request.
type SwapRequestStatus string

const (
	SwapRequestPending    SwapRequestStatus = "pending"
	SwapRequestProcessing SwapRequestStatus = "processing"
	SwapRequestCompleted  SwapRequestStatus = "completed"
	SwapRequestFailed     SwapRequestStatus = "failed"
)

// SwapRequest is a durable, status-tracked row on the asynchronous
// settlement path. Rows are created pending, claimed processing by exactly
// one batch pass, and terminate completed or failed. A failed row does not
// self-retry; recovery goes through the idempotent refund operation.
type SwapRequest struct {
	ID            string
	WalletAddress string
	SwapType      SwapDirection

	// Amount is the gross amount in chefcoin display units.
	Amount int64

	Status SwapRequestStatus

	// TransactionSignature is the on-chain proof. Required at enqueue time
	// for token_to_currency; populated by the processor for
	// currency_to_token. When present it is unique across all requests;
	// that uniqueness prevents settling the same on-chain proof twice.
	TransactionSignature string

	ErrorMessage string
	CreatedAt    time.Time
	ProcessedAt  *time.Time
}
