package clickhouse

import (
	"context"
	"fmt"
	"time"

	"chefcoin-bridge/internal/domain"
	"chefcoin-bridge/internal/storage"
)

// AuditStore implements storage.AuditSink using ClickHouse. It mirrors
// ledger records into an append-only MergeTree table for analytics; the
// Postgres ledger stays the authoritative store.
type AuditStore struct {
	conn *Conn
}

// NewAuditStore creates a new AuditStore.
func NewAuditStore(conn *Conn) *AuditStore {
	return &AuditStore{conn: conn}
}

// Compile-time interface check.
var _ storage.AuditSink = (*AuditStore)(nil)

// Append writes one audit record.
func (s *AuditStore) Append(ctx context.Context, rec *domain.LedgerRecord) error {
	query := `
		INSERT INTO ledger_audit (
			wallet_address, kind, amount, reason, request_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	err := s.conn.Exec(ctx, query,
		rec.Wallet,
		string(rec.Kind),
		rec.Amount,
		rec.Reason,
		rec.RequestID,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}

// AppendBulk writes multiple audit records in one batch.
func (s *AuditStore) AppendBulk(ctx context.Context, recs []*domain.LedgerRecord) error {
	if len(recs) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO ledger_audit (
			wallet_address, kind, amount, reason, request_id, created_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, rec := range recs {
		err = batch.Append(
			rec.Wallet,
			string(rec.Kind),
			rec.Amount,
			rec.Reason,
			rec.RequestID,
			rec.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByWallet retrieves all audit records for a wallet, oldest first.
func (s *AuditStore) GetByWallet(ctx context.Context, wallet string) ([]*domain.LedgerRecord, error) {
	query := `
		SELECT wallet_address, kind, amount, reason, request_id, created_at
		FROM ledger_audit
		WHERE wallet_address = ?
		ORDER BY created_at ASC
	`

	rows, err := s.conn.Query(ctx, query, wallet)
	if err != nil {
		return nil, fmt.Errorf("query audit by wallet: %w", err)
	}
	defer rows.Close()

	var records []*domain.LedgerRecord
	for rows.Next() {
		var rec domain.LedgerRecord
		var kind string
		var createdAt time.Time

		if err := rows.Scan(&rec.Wallet, &kind, &rec.Amount, &rec.Reason, &rec.RequestID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		rec.Kind = domain.LedgerRecordKind(kind)
		rec.CreatedAt = createdAt
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}
	return records, nil
}

// TotalByKind sums amounts per record kind within [start, end], a
// reporting query the Postgres ledger is not indexed for.
func (s *AuditStore) TotalByKind(ctx context.Context, kind domain.LedgerRecordKind, start, end time.Time) (int64, error) {
	query := `
		SELECT COALESCE(sum(amount), 0)
		FROM ledger_audit
		WHERE kind = ? AND created_at >= ? AND created_at <= ?
	`

	var total int64
	err := s.conn.QueryRow(ctx, query, string(kind), start, end).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum audit by kind: %w", err)
	}
	return total, nil
}
