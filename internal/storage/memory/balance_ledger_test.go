package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"chefcoin-bridge/internal/domain"
	"chefcoin-bridge/internal/storage"
)

func TestBalanceLedger_CreditDebit(t *testing.T) {
	ledger := NewBalanceLedger()
	ctx := context.Background()

	res, err := ledger.AtomicCredit(ctx, "wallet1", 1000, "swap", "req1", 0)
	if err != nil {
		t.Fatalf("AtomicCredit failed: %v", err)
	}
	if res.NewBalance != 1000 {
		t.Errorf("NewBalance = %d, want 1000", res.NewBalance)
	}

	res, err = ledger.AtomicDebit(ctx, "wallet1", 400, "redeem", "req2")
	if err != nil {
		t.Fatalf("AtomicDebit failed: %v", err)
	}
	if res.NewBalance != 600 {
		t.Errorf("NewBalance = %d, want 600", res.NewBalance)
	}

	entry, _ := ledger.Get(ctx, "wallet1")
	if entry.Chefcoins != 600 {
		t.Errorf("Get balance = %d, want 600", entry.Chefcoins)
	}
}

func TestBalanceLedger_InsufficientFunds(t *testing.T) {
	ledger := NewBalanceLedger()
	ctx := context.Background()

	ledger.AtomicCredit(ctx, "wallet1", 100, "swap", "", 0)
	_, err := ledger.AtomicDebit(ctx, "wallet1", 101, "redeem", "req1")
	if !errors.Is(err, storage.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	entry, _ := ledger.Get(ctx, "wallet1")
	if entry.Chefcoins != 100 {
		t.Errorf("failed debit mutated balance: %d", entry.Chefcoins)
	}
}

func TestBalanceLedger_RefundIdempotent(t *testing.T) {
	ledger := NewBalanceLedger()
	ctx := context.Background()

	ledger.AtomicCredit(ctx, "wallet1", 1000, "swap", "", 0)
	ledger.AtomicDebit(ctx, "wallet1", 500, "redeem", "req1")

	res, err := ledger.AtomicRefund(ctx, "req1")
	if err != nil {
		t.Fatalf("AtomicRefund failed: %v", err)
	}
	if res.RefundedAmount != 500 || res.NewBalance != 1000 {
		t.Errorf("first refund = %+v, want {500 1000}", res)
	}

	// Second refund must not double-credit.
	res, err = ledger.AtomicRefund(ctx, "req1")
	if err != nil {
		t.Fatalf("second AtomicRefund failed: %v", err)
	}
	if res.RefundedAmount != 500 || res.NewBalance != 1000 {
		t.Errorf("second refund = %+v, want {500 1000}", res)
	}

	entry, _ := ledger.Get(ctx, "wallet1")
	if entry.Chefcoins != 1000 {
		t.Errorf("balance after double refund = %d, want 1000", entry.Chefcoins)
	}
}

func TestBalanceLedger_DuplicateRequestID(t *testing.T) {
	ledger := NewBalanceLedger()
	ctx := context.Background()

	if _, err := ledger.AtomicCredit(ctx, "wallet1", 1000, "swap", "req1", 0); err != nil {
		t.Fatalf("first credit failed: %v", err)
	}
	if _, err := ledger.AtomicCredit(ctx, "wallet1", 1000, "swap", "req1", 0); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey on repeated credit, got %v", err)
	}

	if _, err := ledger.AtomicDebit(ctx, "wallet1", 100, "redeem", "req2"); err != nil {
		t.Fatalf("first debit failed: %v", err)
	}
	if _, err := ledger.AtomicDebit(ctx, "wallet1", 100, "redeem", "req2"); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey on repeated debit, got %v", err)
	}

	entry, _ := ledger.Get(ctx, "wallet1")
	if entry.Chefcoins != 900 {
		t.Errorf("rejected duplicates mutated balance: %d, want 900", entry.Chefcoins)
	}

	// Blank request ids are exempt from the uniqueness rule.
	if _, err := ledger.AtomicCredit(ctx, "wallet1", 50, "swap", "", 0); err != nil {
		t.Errorf("blank request id credit failed: %v", err)
	}
	if _, err := ledger.AtomicCredit(ctx, "wallet1", 50, "swap", "", 0); err != nil {
		t.Errorf("second blank request id credit failed: %v", err)
	}
}

func TestBalanceLedger_RefundUnknownRequest(t *testing.T) {
	ledger := NewBalanceLedger()
	_, err := ledger.AtomicRefund(context.Background(), "no-such-request")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestBalanceLedger_DailyLimit(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ledger := NewBalanceLedger().WithClock(func() time.Time { return now })
	ctx := context.Background()

	if _, err := ledger.AtomicCredit(ctx, "wallet1", 800, "swap", "", 1000); err != nil {
		t.Fatalf("credit under limit failed: %v", err)
	}
	if _, err := ledger.AtomicCredit(ctx, "wallet1", 300, "swap", "", 1000); !errors.Is(err, storage.ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}

	entry, _ := ledger.Get(ctx, "wallet1")
	if entry.Chefcoins != 800 {
		t.Errorf("rejected credit mutated balance: %d", entry.Chefcoins)
	}

	// Next day the limit window resets.
	now = now.Add(24 * time.Hour)
	if _, err := ledger.AtomicCredit(ctx, "wallet1", 300, "swap", "", 1000); err != nil {
		t.Errorf("credit after window reset failed: %v", err)
	}
}

func TestBalanceLedger_GrantItem(t *testing.T) {
	ledger := NewBalanceLedger()
	ctx := context.Background()

	entry, err := ledger.GrantItem(ctx, "wallet1", "golden-spatula")
	if err != nil {
		t.Fatalf("GrantItem failed: %v", err)
	}
	if !entry.Owns("golden-spatula") {
		t.Error("item not granted")
	}

	// Granting twice is a no-op.
	entry, _ = ledger.GrantItem(ctx, "wallet1", "golden-spatula")
	if len(entry.OwnedItems) != 1 {
		t.Errorf("duplicate grant grew owned set: %v", entry.OwnedItems)
	}
}

func TestBalanceLedger_AuditTrail(t *testing.T) {
	ledger := NewBalanceLedger()
	ctx := context.Background()

	ledger.AtomicCredit(ctx, "wallet1", 1000, "swap", "reqA", 0)
	ledger.AtomicDebit(ctx, "wallet1", 200, "redeem", "reqB")
	ledger.AtomicRefund(ctx, "reqB")

	records := ledger.Records()
	if len(records) != 3 {
		t.Fatalf("expected 3 audit records, got %d", len(records))
	}
	kinds := []domain.LedgerRecordKind{records[0].Kind, records[1].Kind, records[2].Kind}
	want := []domain.LedgerRecordKind{domain.LedgerRecordCredit, domain.LedgerRecordDebit, domain.LedgerRecordRefund}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("record %d kind = %s, want %s", i, kinds[i], want[i])
		}
	}
}
