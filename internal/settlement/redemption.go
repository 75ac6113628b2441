package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"chefcoin-bridge/internal/solana"
	"chefcoin-bridge/internal/storage"
	"chefcoin-bridge/internal/tax"
)

// RedeemResult is the output of a successful redemption.
type RedeemResult struct {
	Balance   int64
	Signature string
	Breakdown tax.Breakdown
}

// Redeem converts chefcoins back into GRMC: it debits the gross amount
// from the wallet's ledger balance, then sends a treasury-signed transfer
// of the net amount to the wallet's token account. Any failure after the
// debit triggers a compensating refund before the error is returned, so
// a wallet never loses chefcoins to a transfer that did not land.
func (e *Engine) Redeem(ctx context.Context, wallet string, amount float64, destination string) (*RedeemResult, error) {
	if e.cfg.Mint == "" || e.cfg.Treasury == nil {
		return nil, fmt.Errorf("%w: token mint or treasury keypair unset", ErrConfiguration)
	}
	if wallet == "" {
		return nil, fmt.Errorf("%w: wallet required", ErrValidation)
	}
	if destination != "" && destination != wallet {
		// Redemptions pay out only to the authenticated wallet. Paying a
		// third party would turn a ledger debit into an unattributable
		// on-chain transfer.
		return nil, fmt.Errorf("%w: destination must match the requesting wallet", ErrValidation)
	}

	breakdown := tax.ComputeBreakdown(amount, e.cfg.ExchangeTaxBps)
	if breakdown.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if breakdown.Amount < e.cfg.MinimumSwapAmount {
		return nil, fmt.Errorf("%w: amount %d below minimum %d", ErrValidation, breakdown.Amount, e.cfg.MinimumSwapAmount)
	}

	requestID := uuid.NewString()

	debit, err := e.ledger.AtomicDebit(ctx, wallet, breakdown.Amount, "redeem", requestID)
	if err != nil {
		if errors.Is(err, storage.ErrInsufficientFunds) {
			e.countRedemption("insufficient_balance")
			return nil, fmt.Errorf("%w: need %d chefcoins", ErrInsufficientBalance, breakdown.Amount)
		}
		return nil, fmt.Errorf("debit chefcoins: %w", err)
	}

	signature, err := e.sendTreasuryTransfer(ctx, wallet, breakdown.Net)
	if err != nil {
		refund, refundErr := e.ledger.AtomicRefund(ctx, requestID)
		if refundErr != nil {
			// The debit is still attributable by requestID, so a later
			// replayed refund remains possible.
			e.logger.Printf("CRITICAL: refund %s for wallet %s failed after transfer error: %v (transfer error: %v)", requestID, wallet, refundErr, err)
			e.ledgerMutationError("refund")
		} else {
			e.logger.Printf("refunded %d chefcoins to %s after failed redemption %s", refund.RefundedAmount, wallet, requestID)
			if e.metrics != nil {
				e.metrics.RefundsTotal.Inc()
			}
		}
		e.countRedemption("failed")
		return nil, fmt.Errorf("%w: %v", ErrSubmission, err)
	}

	e.countRedemption("completed")
	if e.metrics != nil {
		e.metrics.ChefcoinsDebited.Add(float64(breakdown.Amount))
	}
	return &RedeemResult{
		Balance:   debit.NewBalance,
		Signature: signature,
		Breakdown: breakdown,
	}, nil
}

// sendTreasuryTransfer builds, signs, submits, and confirms a transfer of
// net display units from the treasury to the wallet's token account.
func (e *Engine) sendTreasuryTransfer(ctx context.Context, wallet string, net int64) (string, error) {
	rawNet, err := e.rawUnits(ctx, net)
	if err != nil {
		return "", err
	}

	instructions, err := e.transferInstructions(ctx, e.cfg.Treasury.Address, wallet, e.cfg.Treasury.Address, rawNet)
	if err != nil {
		return "", err
	}

	blockhash, err := e.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch blockhash: %w", err)
	}

	tx, err := solana.BuildTransaction(e.cfg.Treasury.Address, blockhash.Blockhash, instructions)
	if err != nil {
		return "", fmt.Errorf("build transfer: %w", err)
	}
	wire, signature, err := tx.SignedBy(e.cfg.Treasury)
	if err != nil {
		return "", fmt.Errorf("sign transfer: %w", err)
	}

	if _, err := e.rpc.SendTransaction(ctx, wire); err != nil {
		return "", fmt.Errorf("submit transfer: %w", err)
	}
	if err := e.confirmer.ConfirmTransaction(ctx, signature); err != nil {
		return "", fmt.Errorf("confirm transfer %s: %w", signature, err)
	}
	return signature, nil
}

func (e *Engine) countRedemption(outcome string) {
	if e.metrics != nil {
		e.metrics.RedemptionsTotal.WithLabelValues(outcome).Inc()
	}
}

func (e *Engine) ledgerMutationError(op string) {
	if e.metrics != nil {
		e.metrics.LedgerMutationErrors.WithLabelValues(op).Inc()
	}
}
