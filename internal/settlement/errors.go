// Package settlement implements the intent lifecycle for GRMC<->chefcoin
// swaps and item purchases: synchronous create/confirm settlement,
// treasury-funded redemption, and the asynchronous queued-settlement
// processor.
package settlement

import "errors"

// Settlement error taxonomy. Handlers map these to transport-level
// responses; everything else wraps one of these or is an internal fault.
var (
	// ErrValidation is returned for bad input. No side effects.
	ErrValidation = errors.New("validation failed")

	// ErrConfiguration is returned when the token mint, treasury, or
	// minimum swap amount is unset. Fatal to the operation, not the
	// process.
	ErrConfiguration = errors.New("settlement engine not configured")

	// ErrNotFound is returned when an intent or transaction is absent.
	ErrNotFound = errors.New("not found")

	// ErrOwnership is returned when a wallet confirms an intent it does
	// not own.
	ErrOwnership = errors.New("intent belongs to a different wallet")

	// ErrOnChainFailure is returned when the transaction executed but
	// reverted on-chain.
	ErrOnChainFailure = errors.New("transaction failed on-chain")

	// ErrAmountMismatch is returned when verified balance deltas do not
	// equal the intent amount exactly. Treated as a potential integrity
	// violation and logged distinctly from ordinary user error; never
	// mutates the balance ledger.
	ErrAmountMismatch = errors.New("on-chain transfer amount does not match intent")

	// ErrInsufficientBalance is returned when a debit exceeds the
	// wallet's chefcoin balance.
	ErrInsufficientBalance = errors.New("insufficient chefcoin balance")

	// ErrSubmission is returned when an on-chain send or confirmation
	// fails. On the treasury-funded path the pre-debit is always
	// compensated before this propagates.
	ErrSubmission = errors.New("on-chain submission failed")

	// ErrStaleProof is returned by the queue processor when a submitted
	// proof transaction is older than the accepted staleness window.
	ErrStaleProof = errors.New("transaction proof too old")
)
