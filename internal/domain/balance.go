package domain

import "time"

// BalanceEntry is a wallet's chefcoin balance and owned catalog items.
// The settlement engine never read-modifies-writes these fields directly;
// all mutations go through the atomic ledger operations.
type BalanceEntry struct {
	Wallet     string
	Chefcoins  int64
	OwnedItems []string
	UpdatedAt  time.Time
}

// Owns reports whether the entry already contains itemID.
func (b *BalanceEntry) Owns(itemID string) bool {
	for _, id := range b.OwnedItems {
		if id == itemID {
			return true
		}
	}
	return false
}

// LedgerRecordKind classifies an audit record.
type LedgerRecordKind string

const (
	LedgerRecordCredit LedgerRecordKind = "credit"
	LedgerRecordDebit  LedgerRecordKind = "debit"
	LedgerRecordRefund LedgerRecordKind = "refund"
	LedgerRecordGrant  LedgerRecordKind = "grant"
)

// LedgerRecord is one immutable audit entry appended by every balance
// mutation.
type LedgerRecord struct {
	ID        int64
	Wallet    string
	Kind      LedgerRecordKind
	Amount    int64
	Reason    string
	RequestID string // idempotency/audit tag, empty when not request-scoped
	CreatedAt time.Time
}
