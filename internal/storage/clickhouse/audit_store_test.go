package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chefcoin-bridge/internal/domain"
)

func auditRecord(wallet string, kind domain.LedgerRecordKind, amount int64, createdAt time.Time) *domain.LedgerRecord {
	return &domain.LedgerRecord{
		Wallet:    wallet,
		Kind:      kind,
		Amount:    amount,
		Reason:    "queued_swap:token_to_currency",
		RequestID: "req-1",
		CreatedAt: createdAt,
	}
}

func TestAuditStore_AppendAndGetByWallet(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAuditStore(conn)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, store.Append(ctx, auditRecord("wallet-1", domain.LedgerRecordCredit, 970, now)))
	require.NoError(t, store.Append(ctx, auditRecord("wallet-1", domain.LedgerRecordDebit, 600, now.Add(time.Second))))
	require.NoError(t, store.Append(ctx, auditRecord("wallet-2", domain.LedgerRecordCredit, 100, now)))

	records, err := store.GetByWallet(ctx, "wallet-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, domain.LedgerRecordCredit, records[0].Kind)
	assert.Equal(t, int64(970), records[0].Amount)
	assert.Equal(t, domain.LedgerRecordDebit, records[1].Kind)
	assert.Equal(t, "req-1", records[1].RequestID)
}

func TestAuditStore_AppendBulk(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAuditStore(conn)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	recs := []*domain.LedgerRecord{
		auditRecord("wallet-1", domain.LedgerRecordCredit, 100, now),
		auditRecord("wallet-1", domain.LedgerRecordCredit, 200, now.Add(time.Second)),
		auditRecord("wallet-1", domain.LedgerRecordRefund, 50, now.Add(2*time.Second)),
	}
	require.NoError(t, store.AppendBulk(ctx, recs))
	require.NoError(t, store.AppendBulk(ctx, nil))

	records, err := store.GetByWallet(ctx, "wallet-1")
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestAuditStore_TotalByKind(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAuditStore(conn)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, store.Append(ctx, auditRecord("wallet-1", domain.LedgerRecordCredit, 970, now)))
	require.NoError(t, store.Append(ctx, auditRecord("wallet-2", domain.LedgerRecordCredit, 500, now.Add(time.Minute))))
	require.NoError(t, store.Append(ctx, auditRecord("wallet-1", domain.LedgerRecordDebit, 600, now)))

	total, err := store.TotalByKind(ctx, domain.LedgerRecordCredit, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1470), total)

	// Window excludes the later credit.
	total, err = store.TotalByKind(ctx, domain.LedgerRecordCredit, now.Add(-time.Hour), now.Add(30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(970), total)
}
