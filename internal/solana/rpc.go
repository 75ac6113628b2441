package solana

import "context"

// RPCClient defines the Solana RPC HTTP interface the settlement engine
// consumes. The ledger network is a black box behind this contract.
type RPCClient interface {
	// GetParsedTransaction retrieves a finalized transaction with token
	// balance snapshots at confirmed commitment. Returns nil (no error)
	// if the transaction is not yet visible.
	GetParsedTransaction(ctx context.Context, signature string) (*ParsedTransaction, error)

	// GetLatestBlockhash retrieves the current blockhash and the last
	// block height at which a transaction built on it stays valid.
	GetLatestBlockhash(ctx context.Context) (*LatestBlockhash, error)

	// GetAccountInfo retrieves account info by public key. Returns nil if
	// the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// SendTransaction submits a fully signed transaction and returns its
	// signature.
	SendTransaction(ctx context.Context, signedTx []byte) (string, error)

	// ConfirmTransaction blocks until the signature reaches confirmed
	// commitment or ctx expires.
	ConfirmTransaction(ctx context.Context, signature string) error
}
