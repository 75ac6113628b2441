package solana

import "math/big"

// Well-known program IDs.
const (
	SystemProgramID          = "11111111111111111111111111111111"
	TokenProgramID           = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	AssociatedTokenProgramID = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
)

// ParsedTransaction is a confirmed transaction with the token balance
// snapshots the settlement verification needs.
type ParsedTransaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)

	// Err is non-nil when the transaction executed but reverted on-chain.
	Err interface{}

	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
}

// TokenBalance is one token-account balance snapshot from transaction
// metadata.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Owner        string

	// Amount is in the token's smallest indivisible unit. Arbitrary
	// precision: mint decimals vary and the raw amount must not be
	// truncated through a float.
	Amount *big.Int

	Decimals int
}

// LatestBlockhash is the blockhash context used to bound a transaction's
// validity window.
type LatestBlockhash struct {
	Blockhash            string
	LastValidBlockHeight uint64
}

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64
	Owner      string
	Data       string // base64 encoded
	Executable bool
	RentEpoch  uint64
}

// balanceForOwner returns the snapshot amount owned by owner for mint, and
// whether a matching token account appears in the snapshot at all.
func balanceForOwner(balances []TokenBalance, owner, mint string) (*big.Int, bool) {
	for _, b := range balances {
		if b.Owner == owner && b.Mint == mint {
			return new(big.Int).Set(b.Amount), true
		}
	}
	return nil, false
}

// OwnerDelta computes post - pre for the owner's token account of mint.
// Accounts absent from a snapshot (created or closed within the
// transaction) count as zero.
func (t *ParsedTransaction) OwnerDelta(owner, mint string) *big.Int {
	pre, ok := balanceForOwner(t.PreTokenBalances, owner, mint)
	if !ok {
		pre = new(big.Int)
	}
	post, ok := balanceForOwner(t.PostTokenBalances, owner, mint)
	if !ok {
		post = new(big.Int)
	}
	return post.Sub(post, pre)
}
