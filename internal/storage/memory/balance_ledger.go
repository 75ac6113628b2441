package memory

import (
	"context"
	"sync"
	"time"

	"chefcoin-bridge/internal/domain"
	"chefcoin-bridge/internal/storage"
)

// BalanceLedger is an in-memory implementation of storage.BalanceLedger.
// One mutex serializes all mutations, which trivially satisfies the
// per-wallet serialization contract.
type BalanceLedger struct {
	mu       sync.Mutex
	balances map[string]*domain.BalanceEntry
	records  []*domain.LedgerRecord
	nextID   int64

	// credits, debits and refunds index records by request id: at most
	// one record per (request id, kind), matching the postgres partial
	// unique index, so AtomicRefund is idempotent and a settled request
	// can never credit or debit twice.
	credits map[string]*domain.LedgerRecord
	debits  map[string]*domain.LedgerRecord
	refunds map[string]*domain.LedgerRecord

	clock func() time.Time
}

// NewBalanceLedger creates a new in-memory balance ledger.
func NewBalanceLedger() *BalanceLedger {
	return &BalanceLedger{
		balances: make(map[string]*domain.BalanceEntry),
		credits:  make(map[string]*domain.LedgerRecord),
		debits:   make(map[string]*domain.LedgerRecord),
		refunds:  make(map[string]*domain.LedgerRecord),
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock for deterministic tests.
func (l *BalanceLedger) WithClock(clock func() time.Time) *BalanceLedger {
	l.clock = clock
	return l
}

// Compile-time interface check.
var _ storage.BalanceLedger = (*BalanceLedger)(nil)

// Get retrieves a wallet's balance entry. Unknown wallets read as a zero
// entry.
func (l *BalanceLedger) Get(_ context.Context, wallet string) (*domain.BalanceEntry, error) {
	if wallet == "" {
		return nil, storage.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.copyEntry(wallet), nil
}

// AtomicCredit adds amount chefcoins to the wallet. A non-empty requestID
// may credit at most once; a repeat returns ErrDuplicateKey without
// mutating.
func (l *BalanceLedger) AtomicCredit(_ context.Context, wallet string, amount int64, reason, requestID string, dailyLimit int64) (*storage.MutationResult, error) {
	if wallet == "" || amount <= 0 {
		return nil, storage.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if requestID != "" {
		if _, dup := l.credits[requestID]; dup {
			return nil, storage.ErrDuplicateKey
		}
	}

	now := l.clock()
	if dailyLimit > 0 {
		credited := l.creditedSince(wallet, now.Truncate(24*time.Hour))
		if credited+amount > dailyLimit {
			return nil, storage.ErrLimitExceeded
		}
	}

	entry := l.entry(wallet)
	entry.Chefcoins += amount
	entry.UpdatedAt = now
	rec := l.append(domain.LedgerRecordCredit, wallet, amount, reason, requestID, now)
	if requestID != "" {
		l.credits[requestID] = rec
	}

	return &storage.MutationResult{NewBalance: entry.Chefcoins}, nil
}

// AtomicDebit removes amount chefcoins from the wallet. Returns
// ErrInsufficientFunds without mutating when the balance is too low, and
// ErrDuplicateKey when a non-empty requestID already debited.
func (l *BalanceLedger) AtomicDebit(_ context.Context, wallet string, amount int64, reason, requestID string) (*storage.MutationResult, error) {
	if wallet == "" || amount <= 0 {
		return nil, storage.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if requestID != "" {
		if _, dup := l.debits[requestID]; dup {
			return nil, storage.ErrDuplicateKey
		}
	}

	entry := l.entry(wallet)
	if entry.Chefcoins < amount {
		return nil, storage.ErrInsufficientFunds
	}

	now := l.clock()
	entry.Chefcoins -= amount
	entry.UpdatedAt = now
	rec := l.append(domain.LedgerRecordDebit, wallet, amount, reason, requestID, now)
	if requestID != "" {
		l.debits[requestID] = rec
	}

	return &storage.MutationResult{NewBalance: entry.Chefcoins}, nil
}

// AtomicRefund returns the amount debited under requestID to its wallet.
// Idempotent: a repeated call refunds nothing extra.
func (l *BalanceLedger) AtomicRefund(_ context.Context, requestID string) (*storage.RefundResult, error) {
	if requestID == "" {
		return nil, storage.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	debit, ok := l.debits[requestID]
	if !ok {
		return nil, storage.ErrNotFound
	}

	if prior, done := l.refunds[requestID]; done {
		entry := l.entry(prior.Wallet)
		return &storage.RefundResult{RefundedAmount: prior.Amount, NewBalance: entry.Chefcoins}, nil
	}

	now := l.clock()
	entry := l.entry(debit.Wallet)
	entry.Chefcoins += debit.Amount
	entry.UpdatedAt = now
	rec := l.append(domain.LedgerRecordRefund, debit.Wallet, debit.Amount, "refund:"+debit.Reason, requestID, now)
	l.refunds[requestID] = rec

	return &storage.RefundResult{RefundedAmount: debit.Amount, NewBalance: entry.Chefcoins}, nil
}

// GrantItem appends itemID to the wallet's owned set.
func (l *BalanceLedger) GrantItem(_ context.Context, wallet, itemID string) (*domain.BalanceEntry, error) {
	if wallet == "" || itemID == "" {
		return nil, storage.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.entry(wallet)
	if !entry.Owns(itemID) {
		now := l.clock()
		entry.OwnedItems = append(entry.OwnedItems, itemID)
		entry.UpdatedAt = now
		l.append(domain.LedgerRecordGrant, wallet, 0, "grant:"+itemID, "", now)
	}

	return l.copyEntry(wallet), nil
}

// Records returns a copy of all audit records, oldest first.
func (l *BalanceLedger) Records() []*domain.LedgerRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*domain.LedgerRecord, len(l.records))
	for i, rec := range l.records {
		cp := *rec
		out[i] = &cp
	}
	return out
}

// entry returns the live entry for wallet, creating it if needed.
// Caller must hold l.mu.
func (l *BalanceLedger) entry(wallet string) *domain.BalanceEntry {
	entry, ok := l.balances[wallet]
	if !ok {
		entry = &domain.BalanceEntry{Wallet: wallet}
		l.balances[wallet] = entry
	}
	return entry
}

// copyEntry returns a copy of the wallet's entry so callers never hold a
// reference into the map. Caller must hold l.mu.
func (l *BalanceLedger) copyEntry(wallet string) *domain.BalanceEntry {
	entry, ok := l.balances[wallet]
	if !ok {
		return &domain.BalanceEntry{Wallet: wallet, OwnedItems: []string{}}
	}
	cp := *entry
	cp.OwnedItems = append([]string{}, entry.OwnedItems...)
	return &cp
}

// append records an audit entry. Caller must hold l.mu.
func (l *BalanceLedger) append(kind domain.LedgerRecordKind, wallet string, amount int64, reason, requestID string, now time.Time) *domain.LedgerRecord {
	l.nextID++
	rec := &domain.LedgerRecord{
		ID:        l.nextID,
		Wallet:    wallet,
		Kind:      kind,
		Amount:    amount,
		Reason:    reason,
		RequestID: requestID,
		CreatedAt: now,
	}
	l.records = append(l.records, rec)
	return rec
}

// creditedSince sums credit amounts for wallet at or after cutoff.
// Caller must hold l.mu.
func (l *BalanceLedger) creditedSince(wallet string, cutoff time.Time) int64 {
	var total int64
	for _, rec := range l.records {
		if rec.Wallet == wallet && rec.Kind == domain.LedgerRecordCredit && !rec.CreatedAt.Before(cutoff) {
			total += rec.Amount
		}
	}
	return total
}
