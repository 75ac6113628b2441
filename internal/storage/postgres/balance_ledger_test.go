package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chefcoin-bridge/internal/domain"
	"chefcoin-bridge/internal/storage"
)

func TestBalanceLedger_GetUnknownWallet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ledger := NewBalanceLedger(pool)

	entry, err := ledger.Get(context.Background(), "wallet-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), entry.Chefcoins)
	assert.Empty(t, entry.OwnedItems)
}

func TestBalanceLedger_CreditAndDebit(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ledger := NewBalanceLedger(pool)
	ctx := context.Background()

	credit, err := ledger.AtomicCredit(ctx, "wallet-1", 970, "swap:intent-1", "intent-1", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(970), credit.NewBalance)

	debit, err := ledger.AtomicDebit(ctx, "wallet-1", 600, "redeem", "req-1")
	require.NoError(t, err)
	assert.Equal(t, int64(370), debit.NewBalance)

	records, err := ledger.Records(ctx, "wallet-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, domain.LedgerRecordCredit, records[0].Kind)
	assert.Equal(t, domain.LedgerRecordDebit, records[1].Kind)
	assert.Equal(t, "req-1", records[1].RequestID)
}

func TestBalanceLedger_DebitInsufficientFunds(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ledger := NewBalanceLedger(pool)
	ctx := context.Background()

	_, err := ledger.AtomicDebit(ctx, "wallet-1", 100, "redeem", "req-1")
	assert.ErrorIs(t, err, storage.ErrInsufficientFunds)

	// Failed debit must not touch the balance or leave records.
	entry, err := ledger.Get(ctx, "wallet-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), entry.Chefcoins)

	records, err := ledger.Records(ctx, "wallet-1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestBalanceLedger_DuplicateRequestID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ledger := NewBalanceLedger(pool)
	ctx := context.Background()

	_, err := ledger.AtomicCredit(ctx, "wallet-1", 970, "swap:intent-1", "intent-1", 0)
	require.NoError(t, err)

	// The same request id can never credit twice, even for another wallet.
	_, err = ledger.AtomicCredit(ctx, "wallet-1", 970, "swap:intent-1", "intent-1", 0)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	_, err = ledger.AtomicCredit(ctx, "wallet-2", 970, "swap:intent-1", "intent-1", 0)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	_, err = ledger.AtomicDebit(ctx, "wallet-1", 100, "redeem", "req-1")
	require.NoError(t, err)
	_, err = ledger.AtomicDebit(ctx, "wallet-1", 100, "redeem", "req-1")
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// Rejected duplicates roll back: balance and audit trail are intact.
	entry, err := ledger.Get(ctx, "wallet-1")
	require.NoError(t, err)
	assert.Equal(t, int64(870), entry.Chefcoins)

	records, err := ledger.Records(ctx, "wallet-1")
	require.NoError(t, err)
	assert.Len(t, records, 2)

	// Blank request ids are exempt from the uniqueness rule.
	_, err = ledger.AtomicCredit(ctx, "wallet-1", 10, "grant", "", 0)
	require.NoError(t, err)
	_, err = ledger.AtomicCredit(ctx, "wallet-1", 10, "grant", "", 0)
	require.NoError(t, err)
}

func TestBalanceLedger_DailyCreditLimit(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ledger := NewBalanceLedger(pool)
	ctx := context.Background()

	_, err := ledger.AtomicCredit(ctx, "wallet-1", 800, "swap:a", "a", 1000)
	require.NoError(t, err)

	_, err = ledger.AtomicCredit(ctx, "wallet-1", 300, "swap:b", "b", 1000)
	assert.ErrorIs(t, err, storage.ErrLimitExceeded)

	// A smaller credit still fits under the cap.
	credit, err := ledger.AtomicCredit(ctx, "wallet-1", 200, "swap:c", "c", 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), credit.NewBalance)
}

func TestBalanceLedger_RefundIsIdempotent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ledger := NewBalanceLedger(pool)
	ctx := context.Background()

	_, err := ledger.AtomicCredit(ctx, "wallet-1", 1000, "seed", "seed-1", 0)
	require.NoError(t, err)
	_, err = ledger.AtomicDebit(ctx, "wallet-1", 600, "redeem", "req-1")
	require.NoError(t, err)

	refund, err := ledger.AtomicRefund(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, int64(600), refund.RefundedAmount)
	assert.Equal(t, int64(1000), refund.NewBalance)

	// Second refund reports the original outcome without moving funds.
	again, err := ledger.AtomicRefund(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, int64(600), again.RefundedAmount)
	assert.Equal(t, int64(1000), again.NewBalance)

	entry, err := ledger.Get(ctx, "wallet-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), entry.Chefcoins)
}

func TestBalanceLedger_RefundUnknownRequest(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ledger := NewBalanceLedger(pool)

	_, err := ledger.AtomicRefund(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBalanceLedger_GrantItem(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ledger := NewBalanceLedger(pool)
	ctx := context.Background()

	entry, err := ledger.GrantItem(ctx, "wallet-1", "golden-spatula")
	require.NoError(t, err)
	assert.Equal(t, []string{"golden-spatula"}, entry.OwnedItems)

	// Re-granting is a no-op.
	entry, err = ledger.GrantItem(ctx, "wallet-1", "golden-spatula")
	require.NoError(t, err)
	assert.Equal(t, []string{"golden-spatula"}, entry.OwnedItems)

	entry, err = ledger.GrantItem(ctx, "wallet-1", "chef-hat")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"golden-spatula", "chef-hat"}, entry.OwnedItems)

	records, err := ledger.Records(ctx, "wallet-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, domain.LedgerRecordGrant, records[0].Kind)
}
