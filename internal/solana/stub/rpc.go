// Package stub provides controllable in-memory implementations of the
// solana interfaces for testing.
package stub

import (
	"context"
	"errors"

	"chefcoin-bridge/internal/solana"
)

// RPCClient implements solana.RPCClient for testing. Fields are plain maps
// so tests can seed exactly the on-chain state a scenario needs.
type RPCClient struct {
	Transactions map[string]*solana.ParsedTransaction
	Accounts     map[string]*solana.AccountInfo
	Blockhash    *solana.LatestBlockhash

	// SendResult is the signature returned by SendTransaction when
	// SendErr is nil.
	SendResult string
	SendErr    error

	// ConfirmErr fails ConfirmTransaction.
	ConfirmErr error

	// GetTransactionHook, when set, runs before each transaction lookup.
	// Tests use it to coordinate concurrent callers.
	GetTransactionHook func()

	// SentTransactions records every wire payload submitted.
	SentTransactions [][]byte
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions: make(map[string]*solana.ParsedTransaction),
		Accounts:     make(map[string]*solana.AccountInfo),
		Blockhash: &solana.LatestBlockhash{
			Blockhash:            "EETubP5AKHgjPAhzPAFcb8BAY1hMH639CWCFTqi3hq1k",
			LastValidBlockHeight: 1000,
		},
	}
}

// Compile-time interface check.
var _ solana.RPCClient = (*RPCClient)(nil)

// GetParsedTransaction returns the seeded transaction, or nil when the
// signature is unknown (not yet visible).
func (c *RPCClient) GetParsedTransaction(_ context.Context, signature string) (*solana.ParsedTransaction, error) {
	if c.GetTransactionHook != nil {
		c.GetTransactionHook()
	}
	tx, ok := c.Transactions[signature]
	if !ok {
		return nil, nil
	}
	return tx, nil
}

// GetLatestBlockhash returns the seeded blockhash context.
func (c *RPCClient) GetLatestBlockhash(_ context.Context) (*solana.LatestBlockhash, error) {
	if c.Blockhash == nil {
		return nil, errors.New("no blockhash seeded")
	}
	return c.Blockhash, nil
}

// GetAccountInfo returns the seeded account, or nil when absent.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	return c.Accounts[pubkey], nil
}

// SendTransaction records the payload and returns the configured result.
func (c *RPCClient) SendTransaction(_ context.Context, signedTx []byte) (string, error) {
	if c.SendErr != nil {
		return "", c.SendErr
	}
	c.SentTransactions = append(c.SentTransactions, signedTx)
	return c.SendResult, nil
}

// ConfirmTransaction returns the configured confirmation outcome.
func (c *RPCClient) ConfirmTransaction(_ context.Context, _ string) error {
	return c.ConfirmErr
}
