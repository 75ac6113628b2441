package settlement

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/google/uuid"

	"chefcoin-bridge/internal/domain"
	"chefcoin-bridge/internal/observability"
	"chefcoin-bridge/internal/solana"
	"chefcoin-bridge/internal/storage"
	"chefcoin-bridge/internal/tax"
)

// Purpose distinguishes why a swap transaction is being built.
type Purpose string

const (
	// PurposeSwap settles through the swap intent path and credits
	// chefcoins on confirmation.
	PurposeSwap Purpose = "swap"

	// PurposePurchase builds the same on-chain payment but stores no
	// swap intent and returns no intent id: the flow settles through the
	// purchase intent path instead. This guards against a client reusing
	// a generic swap confirmation to trigger a currency credit when the
	// transfer was really a purchase payment.
	PurposePurchase Purpose = "purchase"
)

// Config holds settlement engine configuration.
type Config struct {
	// Mint is the GRMC token mint address.
	Mint string

	// Treasury signs outbound transfers and holds the token pool backing
	// redemptions.
	Treasury *solana.Keypair

	// FeeWallet receives inbound token payments (swap deposits and
	// purchase payments).
	FeeWallet string

	// SwapTaxBps is the basis-point tax on token->currency swaps.
	SwapTaxBps int64

	// ExchangeTaxBps is the basis-point tax on currency->token
	// redemptions.
	ExchangeTaxBps int64

	// MinimumSwapAmount is the smallest accepted gross amount, in
	// chefcoin display units.
	MinimumSwapAmount int64

	// CreditDailyLimit caps chefcoins credited per wallet per UTC day.
	// Zero disables the cap.
	CreditDailyLimit int64

	// ProofStalenessWindow bounds how old a queued token->currency proof
	// transaction may be.
	ProofStalenessWindow time.Duration
}

// DefaultMinimumSwapAmount is used when the configured floor is unset.
const DefaultMinimumSwapAmount = 1

// DefaultProofStalenessWindow bounds exposure to stale or replayed
// proofs on the asynchronous path.
const DefaultProofStalenessWindow = 1 * time.Hour

// Engine is the synchronous settlement engine: intent create/confirm for
// swaps and purchases, plus treasury-funded redemption.
type Engine struct {
	cfg Config

	rpc       solana.RPCClient
	confirmer solana.SignatureConfirmer
	decimals  *solana.MintDecimalsCache

	swapIntents     storage.SwapIntentStore
	purchaseIntents storage.PurchaseIntentStore
	ledger          storage.BalanceLedger

	metrics *observability.Metrics
	logger  *log.Logger
	clock   func() time.Time
}

// New creates a settlement engine. The confirmer defaults to the RPC
// client's polling confirmation when nil.
func New(
	cfg Config,
	rpc solana.RPCClient,
	swapIntents storage.SwapIntentStore,
	purchaseIntents storage.PurchaseIntentStore,
	ledger storage.BalanceLedger,
	logger *log.Logger,
) *Engine {
	if cfg.MinimumSwapAmount <= 0 {
		cfg.MinimumSwapAmount = DefaultMinimumSwapAmount
	}
	if cfg.ProofStalenessWindow <= 0 {
		cfg.ProofStalenessWindow = DefaultProofStalenessWindow
	}

	return &Engine{
		cfg:             cfg,
		rpc:             rpc,
		confirmer:       rpc,
		decimals:        solana.NewMintDecimalsCache(rpc, solana.DefaultDecimalsTTL),
		swapIntents:     swapIntents,
		purchaseIntents: purchaseIntents,
		ledger:          ledger,
		logger:          logger,
		clock:           func() time.Time { return time.Now().UTC() },
	}
}

// WithConfirmer sets the signature confirmer (e.g. the WebSocket one).
func (e *Engine) WithConfirmer(c solana.SignatureConfirmer) *Engine {
	e.confirmer = c
	return e
}

// WithMetrics attaches Prometheus metrics.
func (e *Engine) WithMetrics(m *observability.Metrics) *Engine {
	e.metrics = m
	return e
}

// WithClock sets a custom clock for deterministic tests.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// CreateSwapResult is the output of CreateSwapIntent.
type CreateSwapResult struct {
	// IntentID is empty for purchase-purpose calls, which store no
	// intent.
	IntentID string

	// Transaction is the base64-encoded unsigned transfer for the client
	// to sign and submit out-of-band. Fee payer is the player's wallet.
	Transaction string

	Breakdown tax.Breakdown
}

// CreateSwapIntent validates the request, computes the tax breakdown,
// builds the unsigned token->currency deposit transfer, and stores a swap
// intent (unless the call is purchase-purpose).
func (e *Engine) CreateSwapIntent(ctx context.Context, wallet string, amount float64, purpose Purpose) (*CreateSwapResult, error) {
	if e.cfg.Mint == "" || e.cfg.FeeWallet == "" {
		return nil, fmt.Errorf("%w: token mint or fee wallet unset", ErrConfiguration)
	}
	if wallet == "" {
		return nil, fmt.Errorf("%w: wallet required", ErrValidation)
	}
	if purpose == "" {
		purpose = PurposeSwap
	}

	breakdown := tax.ComputeBreakdown(amount, e.cfg.SwapTaxBps)
	if breakdown.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if breakdown.Amount < e.cfg.MinimumSwapAmount {
		return nil, fmt.Errorf("%w: amount %d below minimum %d", ErrValidation, breakdown.Amount, e.cfg.MinimumSwapAmount)
	}

	rawAmount, err := e.rawUnits(ctx, breakdown.Amount)
	if err != nil {
		return nil, err
	}

	instructions, err := e.transferInstructions(ctx, wallet, e.cfg.FeeWallet, wallet, rawAmount)
	if err != nil {
		return nil, err
	}

	blockhash, err := e.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch blockhash: %w", err)
	}

	unsigned, err := solana.BuildTransaction(wallet, blockhash.Blockhash, instructions)
	if err != nil {
		return nil, fmt.Errorf("build transfer: %w", err)
	}
	wire, err := unsigned.Serialize()
	if err != nil {
		return nil, fmt.Errorf("serialize transfer: %w", err)
	}

	result := &CreateSwapResult{
		Transaction: base64.StdEncoding.EncodeToString(wire),
		Breakdown:   breakdown,
	}

	if purpose == PurposePurchase {
		e.countCreated("purchase_payment")
		return result, nil
	}

	intent := &domain.SwapIntent{
		ID:                   uuid.NewString(),
		Wallet:               wallet,
		Direction:            domain.DirectionTokenToCurrency,
		GrossAmount:          breakdown.Amount,
		TaxAmount:            breakdown.Tax,
		NetAmount:            breakdown.Net,
		RawAmount:            rawAmount,
		Blockhash:            blockhash.Blockhash,
		LastValidBlockHeight: blockhash.LastValidBlockHeight,
		CreatedAt:            e.clock(),
	}
	if err := e.swapIntents.Put(ctx, intent); err != nil {
		return nil, fmt.Errorf("store swap intent: %w", err)
	}

	result.IntentID = intent.ID
	e.countCreated("swap")
	return result, nil
}

// ConfirmSwapResult is the output of ConfirmSwapIntent.
type ConfirmSwapResult struct {
	Balance   int64
	Breakdown tax.Breakdown
}

// ConfirmSwapIntent verifies the client-submitted transaction against the
// intent and credits the net chefcoins. The intent is consumed exactly
// once: on success or confirmed on-chain rejection. A verification
// mismatch leaves the intent in place so the caller can retry with a
// corrected signature.
func (e *Engine) ConfirmSwapIntent(ctx context.Context, wallet, intentID, signature string) (*ConfirmSwapResult, error) {
	intent, err := e.swapIntents.Get(ctx, intentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			e.countRejected("not_found")
			return nil, fmt.Errorf("%w: intent %s", ErrNotFound, intentID)
		}
		return nil, fmt.Errorf("load intent: %w", err)
	}
	if intent.Wallet != wallet {
		e.countRejected("ownership")
		return nil, fmt.Errorf("%w: intent %s", ErrOwnership, intentID)
	}

	tx, err := e.fetchSettledTransaction(ctx, signature)
	if err != nil {
		if errors.Is(err, ErrOnChainFailure) {
			// Confirmed rejection consumes the intent: the transfer can
			// never succeed, so a retry needs a fresh intent.
			if delErr := e.swapIntents.Delete(ctx, intentID); delErr != nil {
				e.logger.Printf("delete intent %s after on-chain failure: %v", intentID, delErr)
			}
			e.countRejected("on_chain")
		}
		return nil, err
	}

	if err := verifyExactTransfer(tx, wallet, e.cfg.FeeWallet, e.cfg.Mint, intent.RawAmount); err != nil {
		// Intent stays for a retried confirmation.
		e.countRejected("amount_mismatch")
		e.logger.Printf("INTEGRITY: swap intent %s wallet %s signature %s: %v", intentID, wallet, signature, err)
		return nil, err
	}

	credit, err := e.ledger.AtomicCredit(ctx, wallet, intent.NetAmount, "swap:"+intentID, intentID, e.cfg.CreditDailyLimit)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// A concurrent confirmation of the same intent won the
			// credit. Consume the intent and report it gone.
			if delErr := e.swapIntents.Delete(ctx, intentID); delErr != nil && !errors.Is(delErr, storage.ErrNotFound) {
				e.logger.Printf("delete settled intent %s: %v", intentID, delErr)
			}
			e.countRejected("not_found")
			return nil, fmt.Errorf("%w: intent %s already settled", ErrNotFound, intentID)
		}
		// Verification is idempotent against the same confirmed
		// transaction, so the intent must survive for a retried credit.
		return nil, fmt.Errorf("credit chefcoins: %w", err)
	}
	if delErr := e.swapIntents.Delete(ctx, intentID); delErr != nil {
		e.logger.Printf("delete settled intent %s: %v", intentID, delErr)
	}

	if e.metrics != nil {
		e.metrics.IntentsConfirmed.WithLabelValues("swap").Inc()
		e.metrics.ChefcoinsCredited.Add(float64(intent.NetAmount))
	}

	return &ConfirmSwapResult{
		Balance: credit.NewBalance,
		Breakdown: tax.Breakdown{
			Amount: intent.GrossAmount,
			Tax:    intent.TaxAmount,
			Net:    intent.NetAmount,
		},
	}, nil
}

// CreatePurchaseResult is the output of CreatePurchaseIntent.
type CreatePurchaseResult struct {
	IntentID string
	Message  string
}

// CreatePurchaseIntent stores a purchase intent for itemID at the given
// price. The payment transaction itself is built by CreateSwapIntent with
// PurposePurchase.
func (e *Engine) CreatePurchaseIntent(ctx context.Context, wallet, itemID string, price float64) (*CreatePurchaseResult, error) {
	if e.cfg.Mint == "" || e.cfg.FeeWallet == "" {
		return nil, fmt.Errorf("%w: token mint or fee wallet unset", ErrConfiguration)
	}
	if wallet == "" || itemID == "" {
		return nil, fmt.Errorf("%w: wallet and item required", ErrValidation)
	}

	breakdown := tax.ComputeBreakdown(price, 0)
	if breakdown.Amount <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", ErrValidation)
	}

	entry, err := e.ledger.Get(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("load balance: %w", err)
	}
	if entry.Owns(itemID) {
		return nil, fmt.Errorf("%w: item %s already owned", ErrValidation, itemID)
	}

	rawAmount, err := e.rawUnits(ctx, breakdown.Amount)
	if err != nil {
		return nil, err
	}

	blockhash, err := e.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch blockhash: %w", err)
	}

	intent := &domain.PurchaseIntent{
		ID:                   uuid.NewString(),
		Wallet:               wallet,
		ItemID:               itemID,
		Price:                breakdown.Amount,
		RawAmount:            rawAmount,
		Blockhash:            blockhash.Blockhash,
		LastValidBlockHeight: blockhash.LastValidBlockHeight,
		CreatedAt:            e.clock(),
	}
	if err := e.purchaseIntents.Put(ctx, intent); err != nil {
		return nil, fmt.Errorf("store purchase intent: %w", err)
	}

	e.countCreated("purchase")
	return &CreatePurchaseResult{
		IntentID: intent.ID,
		Message:  fmt.Sprintf("pay %d GRMC to complete the purchase of %s", breakdown.Amount, itemID),
	}, nil
}

// ConfirmPurchaseIntent verifies the payment transaction and grants
// ownership of the item.
func (e *Engine) ConfirmPurchaseIntent(ctx context.Context, wallet, intentID, signature string) ([]string, error) {
	intent, err := e.purchaseIntents.Get(ctx, intentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			e.countRejected("not_found")
			return nil, fmt.Errorf("%w: intent %s", ErrNotFound, intentID)
		}
		return nil, fmt.Errorf("load intent: %w", err)
	}
	if intent.Wallet != wallet {
		e.countRejected("ownership")
		return nil, fmt.Errorf("%w: intent %s", ErrOwnership, intentID)
	}

	tx, err := e.fetchSettledTransaction(ctx, signature)
	if err != nil {
		if errors.Is(err, ErrOnChainFailure) {
			if delErr := e.purchaseIntents.Delete(ctx, intentID); delErr != nil {
				e.logger.Printf("delete intent %s after on-chain failure: %v", intentID, delErr)
			}
			e.countRejected("on_chain")
		}
		return nil, err
	}

	if err := verifyExactTransfer(tx, wallet, e.cfg.FeeWallet, e.cfg.Mint, intent.RawAmount); err != nil {
		e.countRejected("amount_mismatch")
		e.logger.Printf("INTEGRITY: purchase intent %s wallet %s signature %s: %v", intentID, wallet, signature, err)
		return nil, err
	}

	entry, err := e.ledger.GrantItem(ctx, wallet, intent.ItemID)
	if err != nil {
		return nil, fmt.Errorf("grant item: %w", err)
	}
	if delErr := e.purchaseIntents.Delete(ctx, intentID); delErr != nil {
		e.logger.Printf("delete settled intent %s: %v", intentID, delErr)
	}

	if e.metrics != nil {
		e.metrics.IntentsConfirmed.WithLabelValues("purchase").Inc()
	}
	return entry.OwnedItems, nil
}

// Balance reads the wallet's current ledger entry.
func (e *Engine) Balance(ctx context.Context, wallet string) (*domain.BalanceEntry, error) {
	if wallet == "" {
		return nil, fmt.Errorf("%w: wallet required", ErrValidation)
	}
	entry, err := e.ledger.Get(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("load balance: %w", err)
	}
	return entry, nil
}

// fetchSettledTransaction loads a transaction at confirmed commitment and
// classifies absence and on-chain reversion.
func (e *Engine) fetchSettledTransaction(ctx context.Context, signature string) (*solana.ParsedTransaction, error) {
	tx, err := e.rpc.GetParsedTransaction(ctx, signature)
	if err != nil {
		return nil, fmt.Errorf("fetch transaction %s: %w", signature, err)
	}
	if tx == nil {
		return nil, fmt.Errorf("%w: transaction %s not yet confirmed", ErrNotFound, signature)
	}
	if tx.Err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOnChainFailure, tx.Err)
	}
	return tx, nil
}

// rawUnits converts a display-unit amount to the mint's smallest unit.
func (e *Engine) rawUnits(ctx context.Context, amount int64) (*big.Int, error) {
	decimals, err := e.decimals.Get(ctx, e.cfg.Mint)
	if err != nil {
		return nil, fmt.Errorf("mint decimals: %w", err)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return scale.Mul(scale, big.NewInt(amount)), nil
}

// transferInstructions builds the instruction list for a transfer of
// rawAmount from sender's to recipient's token-holding account, funded by
// payer, prepending account creation when the destination does not exist
// yet.
func (e *Engine) transferInstructions(ctx context.Context, sender, recipient, payer string, rawAmount *big.Int) ([]solana.Instruction, error) {
	if !rawAmount.IsUint64() {
		return nil, fmt.Errorf("%w: amount %s exceeds transferable range", ErrValidation, rawAmount)
	}

	sourceAccount, err := solana.DeriveAssociatedTokenAccount(sender, e.cfg.Mint)
	if err != nil {
		return nil, fmt.Errorf("derive source account: %w", err)
	}
	destAccount, err := solana.DeriveAssociatedTokenAccount(recipient, e.cfg.Mint)
	if err != nil {
		return nil, fmt.Errorf("derive destination account: %w", err)
	}

	var instructions []solana.Instruction
	info, err := e.rpc.GetAccountInfo(ctx, destAccount)
	if err != nil {
		return nil, fmt.Errorf("check destination account: %w", err)
	}
	if info == nil {
		instructions = append(instructions,
			solana.NewCreateAssociatedTokenAccountInstruction(payer, destAccount, recipient, e.cfg.Mint))
	}

	instructions = append(instructions,
		solana.NewTokenTransferInstruction(sourceAccount, destAccount, sender, rawAmount.Uint64()))
	return instructions, nil
}

// metric helpers tolerate a nil metrics handle.
func (e *Engine) countCreated(kind string) {
	if e.metrics != nil {
		e.metrics.IntentsCreated.WithLabelValues(kind).Inc()
	}
}

func (e *Engine) countRejected(reason string) {
	if e.metrics != nil {
		e.metrics.IntentsRejected.WithLabelValues(reason).Inc()
	}
}
