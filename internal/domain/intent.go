package domain

import (
	"math/big"
	"time"
)

// SwapDirection identifies which way value moves between the GRMC token
// and chefcoins.
type SwapDirection string

const (
	// DirectionTokenToCurrency converts on-chain GRMC into chefcoins.
	DirectionTokenToCurrency SwapDirection = "token_to_currency"

	// DirectionCurrencyToToken redeems chefcoins for on-chain GRMC.
	DirectionCurrencyToToken SwapDirection = "currency_to_token"
)

// Valid reports whether d is a known direction.
func (d SwapDirection) Valid() bool {
	return d == DirectionTokenToCurrency || d == DirectionCurrencyToToken
}

// SwapIntent is an in-flight token<->currency swap awaiting on-chain
// confirmation. Intents live in a per-process store and are consumed
// exactly once: deleted on successful settlement or confirmed rejection,
// left in place on verification mismatch so the caller can retry with a
// corrected signature.
type SwapIntent struct {
	ID        string
	Wallet    string
	Direction SwapDirection

	// Amounts in chefcoin display units.
	GrossAmount int64
	TaxAmount   int64
	NetAmount   int64

	// RawAmount is the gross amount in the token's smallest indivisible
	// unit. Mint decimals vary, so this must not lose precision.
	RawAmount *big.Int

	// Blockhash context used to build the unsigned transfer
	// (token_to_currency direction only).
	Blockhash            string
	LastValidBlockHeight uint64

	CreatedAt time.Time
}

// PurchaseIntent is an in-flight catalog item purchase awaiting on-chain
// payment confirmation. Settlement grants ownership of ItemID instead of
// crediting currency.
type PurchaseIntent struct {
	ID     string
	Wallet string
	ItemID string

	// Price in chefcoin display units and in the token's smallest unit.
	Price     int64
	RawAmount *big.Int

	Blockhash            string
	LastValidBlockHeight uint64

	CreatedAt time.Time
}
