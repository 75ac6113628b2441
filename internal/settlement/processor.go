package settlement

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"chefcoin-bridge/internal/domain"
	"chefcoin-bridge/internal/observability"
	"chefcoin-bridge/internal/storage"
	"chefcoin-bridge/internal/tax"
)

// DefaultBatchLimit caps how many pending requests a single pass claims.
const DefaultBatchLimit = 50

// Processor settles queued swap requests in batch passes. It shares the
// engine's verification, transfer building, and ledger semantics but
// works off the durable request queue instead of in-memory intents.
type Processor struct {
	engine   *Engine
	requests storage.SwapRequestStore
	audit    storage.AuditSink

	batchLimit int
	metrics    *observability.Metrics
	logger     *log.Logger
}

// NewProcessor creates a batch processor on top of the settlement engine.
func NewProcessor(engine *Engine, requests storage.SwapRequestStore, logger *log.Logger) *Processor {
	return &Processor{
		engine:     engine,
		requests:   requests,
		batchLimit: DefaultBatchLimit,
		metrics:    engine.metrics,
		logger:     logger,
	}
}

// WithBatchLimit sets the per-pass claim limit.
func (p *Processor) WithBatchLimit(limit int) *Processor {
	if limit > 0 {
		p.batchLimit = limit
	}
	return p
}

// WithAuditSink mirrors settlement outcomes into an analytics store.
func (p *Processor) WithAuditSink(sink storage.AuditSink) *Processor {
	p.audit = sink
	return p
}

// EnqueueSwap validates and stores a new pending swap request.
// token_to_currency requests must carry the on-chain proof signature;
// currency_to_token requests must not, since the processor produces the
// signature when it sends the treasury transfer.
func (p *Processor) EnqueueSwap(ctx context.Context, wallet string, direction domain.SwapDirection, amount float64, signature string) (*domain.SwapRequest, error) {
	if wallet == "" {
		return nil, fmt.Errorf("%w: wallet required", ErrValidation)
	}
	if !direction.Valid() {
		return nil, fmt.Errorf("%w: unknown swap type %q", ErrValidation, direction)
	}

	breakdown := tax.ComputeBreakdown(amount, 0)
	if breakdown.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if breakdown.Amount < p.engine.cfg.MinimumSwapAmount {
		return nil, fmt.Errorf("%w: amount %d below minimum %d", ErrValidation, breakdown.Amount, p.engine.cfg.MinimumSwapAmount)
	}

	switch direction {
	case domain.DirectionTokenToCurrency:
		if signature == "" {
			return nil, fmt.Errorf("%w: transaction signature required for %s", ErrValidation, direction)
		}
	case domain.DirectionCurrencyToToken:
		if signature != "" {
			return nil, fmt.Errorf("%w: transaction signature is set by settlement for %s", ErrValidation, direction)
		}
	}

	req := &domain.SwapRequest{
		ID:                   uuid.NewString(),
		WalletAddress:        wallet,
		SwapType:             direction,
		Amount:               breakdown.Amount,
		Status:               domain.SwapRequestPending,
		TransactionSignature: signature,
		CreatedAt:            p.engine.clock(),
	}
	if err := p.requests.Insert(ctx, req); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: transaction signature already queued", ErrValidation)
		}
		return nil, fmt.Errorf("enqueue swap request: %w", err)
	}
	return req, nil
}

// GetSwapRequest retrieves a queued request by id.
func (p *Processor) GetSwapRequest(ctx context.Context, id string) (*domain.SwapRequest, error) {
	req, err := p.requests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: swap request %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("load swap request: %w", err)
	}
	return req, nil
}

// Refund compensates a failed currency_to_token request by returning its
// debited chefcoins. Idempotent per request.
func (p *Processor) Refund(ctx context.Context, id string) (*storage.RefundResult, error) {
	req, err := p.GetSwapRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.SwapRequestFailed {
		return nil, fmt.Errorf("%w: request %s is %s, only failed requests are refundable", ErrValidation, id, req.Status)
	}
	result, err := p.engine.ledger.AtomicRefund(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: no debit recorded for request %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("refund request %s: %w", id, err)
	}
	if p.metrics != nil && result.RefundedAmount > 0 {
		p.metrics.RefundsTotal.Inc()
	}
	return result, nil
}

// BatchResult summarizes one batch pass.
type BatchResult struct {
	Processed int
	Failed    int
}

// RunBatchPass claims pending requests oldest-first and settles each one.
// A failing request is marked failed and never aborts the pass; the row's
// error message records why for the refund path.
func (p *Processor) RunBatchPass(ctx context.Context) (*BatchResult, error) {
	start := p.engine.clock()

	pending, err := p.requests.ListPending(ctx, p.batchLimit)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}

	result := &BatchResult{}
	for _, req := range pending {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		claimed, err := p.requests.Claim(ctx, req.ID)
		if err != nil {
			p.logger.Printf("claim request %s: %v", req.ID, err)
			continue
		}
		if !claimed {
			// Another pass got there first.
			continue
		}

		if err := p.settleRequest(ctx, req); err != nil {
			p.logger.Printf("request %s (%s, wallet %s): %v", req.ID, req.SwapType, req.WalletAddress, err)
			if markErr := p.requests.MarkFailed(ctx, req.ID, err.Error(), p.engine.clock()); markErr != nil {
				p.logger.Printf("mark request %s failed: %v", req.ID, markErr)
			}
			result.Failed++
			continue
		}
		result.Processed++
	}

	p.recordPass(ctx, start, result)
	p.logger.Printf("batch pass: %d processed, %d failed, %d claimed of %d pending",
		result.Processed, result.Failed, result.Processed+result.Failed, len(pending))
	return result, nil
}

// settleRequest settles one claimed request and marks it completed.
func (p *Processor) settleRequest(ctx context.Context, req *domain.SwapRequest) error {
	// Rows may have been enqueued under an older configuration, so bounds
	// are re-checked at settlement time.
	if req.Amount <= 0 || req.Amount < p.engine.cfg.MinimumSwapAmount {
		return fmt.Errorf("%w: amount %d out of bounds", ErrValidation, req.Amount)
	}

	switch req.SwapType {
	case domain.DirectionTokenToCurrency:
		return p.settleTokenToCurrency(ctx, req)
	case domain.DirectionCurrencyToToken:
		return p.settleCurrencyToToken(ctx, req)
	default:
		return fmt.Errorf("%w: unknown swap type %q", ErrValidation, req.SwapType)
	}
}

// settleTokenToCurrency verifies the enqueued on-chain proof and credits
// the net chefcoins.
func (p *Processor) settleTokenToCurrency(ctx context.Context, req *domain.SwapRequest) error {
	if req.TransactionSignature == "" {
		return fmt.Errorf("%w: missing proof signature", ErrValidation)
	}

	tx, err := p.engine.fetchSettledTransaction(ctx, req.TransactionSignature)
	if err != nil {
		return err
	}
	if tx.BlockTime > 0 {
		age := p.engine.clock().Sub(time.Unix(tx.BlockTime, 0))
		if age > p.engine.cfg.ProofStalenessWindow {
			return fmt.Errorf("%w: proof is %s old, window is %s", ErrStaleProof, age.Truncate(time.Second), p.engine.cfg.ProofStalenessWindow)
		}
	}

	breakdown := tax.ComputeBreakdown(float64(req.Amount), p.engine.cfg.SwapTaxBps)

	rawAmount, err := p.engine.rawUnits(ctx, req.Amount)
	if err != nil {
		return err
	}
	if err := verifyExactTransfer(tx, req.WalletAddress, p.engine.cfg.FeeWallet, p.engine.cfg.Mint, rawAmount); err != nil {
		return err
	}

	credit, err := p.engine.ledger.AtomicCredit(ctx, req.WalletAddress, breakdown.Net, "queued_swap:"+req.ID, req.ID, p.engine.cfg.CreditDailyLimit)
	if err != nil {
		return fmt.Errorf("credit chefcoins: %w", err)
	}

	if err := p.requests.MarkCompleted(ctx, req.ID, req.TransactionSignature, p.engine.clock()); err != nil {
		// The credit landed; the row will be retried into a duplicate
		// credit unless flagged loudly.
		p.logger.Printf("CRITICAL: request %s credited %d (balance %d) but completion not recorded: %v", req.ID, breakdown.Net, credit.NewBalance, err)
		return fmt.Errorf("mark completed: %w", err)
	}

	if p.metrics != nil {
		p.metrics.ChefcoinsCredited.Add(float64(breakdown.Net))
	}
	p.mirrorAudit(ctx, req, domain.LedgerRecordCredit, breakdown.Net)
	return nil
}

// settleCurrencyToToken debits the gross chefcoins and sends the net
// amount on-chain from the treasury, refunding the debit if the transfer
// fails.
func (p *Processor) settleCurrencyToToken(ctx context.Context, req *domain.SwapRequest) error {
	if p.engine.cfg.Treasury == nil {
		return fmt.Errorf("%w: treasury keypair unset", ErrConfiguration)
	}

	breakdown := tax.ComputeBreakdown(float64(req.Amount), p.engine.cfg.SwapTaxBps)

	if _, err := p.engine.ledger.AtomicDebit(ctx, req.WalletAddress, breakdown.Amount, "queued_swap:"+req.ID, req.ID); err != nil {
		if errors.Is(err, storage.ErrInsufficientFunds) {
			return fmt.Errorf("%w: need %d chefcoins", ErrInsufficientBalance, breakdown.Amount)
		}
		return fmt.Errorf("debit chefcoins: %w", err)
	}

	signature, err := p.engine.sendTreasuryTransfer(ctx, req.WalletAddress, breakdown.Net)
	if err != nil {
		if refund, refundErr := p.engine.ledger.AtomicRefund(ctx, req.ID); refundErr != nil {
			p.logger.Printf("CRITICAL: refund %s for wallet %s failed after transfer error: %v (transfer error: %v)", req.ID, req.WalletAddress, refundErr, err)
			p.engine.ledgerMutationError("refund")
		} else {
			p.logger.Printf("refunded %d chefcoins to %s after failed settlement %s", refund.RefundedAmount, req.WalletAddress, req.ID)
			if p.metrics != nil {
				p.metrics.RefundsTotal.Inc()
			}
		}
		return fmt.Errorf("%w: %v", ErrSubmission, err)
	}

	if err := p.requests.MarkCompleted(ctx, req.ID, signature, p.engine.clock()); err != nil {
		p.logger.Printf("CRITICAL: request %s settled on-chain as %s but completion not recorded: %v", req.ID, signature, err)
		return fmt.Errorf("mark completed: %w", err)
	}

	if p.metrics != nil {
		p.metrics.ChefcoinsDebited.Add(float64(breakdown.Amount))
	}
	p.mirrorAudit(ctx, req, domain.LedgerRecordDebit, breakdown.Amount)
	return nil
}

// mirrorAudit copies a settlement outcome into the analytics sink. Sink
// failures are logged only; the settlement already committed.
func (p *Processor) mirrorAudit(ctx context.Context, req *domain.SwapRequest, kind domain.LedgerRecordKind, amount int64) {
	if p.audit == nil {
		return
	}
	rec := &domain.LedgerRecord{
		Wallet:    req.WalletAddress,
		Kind:      kind,
		Amount:    amount,
		Reason:    "queued_swap:" + string(req.SwapType),
		RequestID: req.ID,
		CreatedAt: p.engine.clock(),
	}
	if err := p.audit.Append(ctx, rec); err != nil {
		p.logger.Printf("audit append for request %s: %v", req.ID, err)
	}
}

func (p *Processor) recordPass(ctx context.Context, start time.Time, result *BatchResult) {
	if p.metrics == nil {
		return
	}
	p.metrics.BatchPassesTotal.Inc()
	p.metrics.RequestsProcessed.Add(float64(result.Processed))
	p.metrics.RequestsFailed.Add(float64(result.Failed))
	p.metrics.BatchPassDuration.Observe(p.engine.clock().Sub(start).Seconds())
	p.metrics.LastSuccessfulPass.SetToCurrentTime()

	if remaining, err := p.requests.ListPending(ctx, p.batchLimit); err == nil {
		p.metrics.PendingQueueDepth.Set(float64(len(remaining)))
	}
}
