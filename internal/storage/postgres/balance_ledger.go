package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"chefcoin-bridge/internal/domain"
	"chefcoin-bridge/internal/storage"
)

// BalanceLedger implements storage.BalanceLedger using PostgreSQL. Every
// mutation runs in a transaction that locks the wallet's balance row, so
// concurrent mutations for the same wallet serialize on the row lock.
type BalanceLedger struct {
	pool *Pool
}

// NewBalanceLedger creates a new BalanceLedger.
func NewBalanceLedger(pool *Pool) *BalanceLedger {
	return &BalanceLedger{pool: pool}
}

// Compile-time interface check.
var _ storage.BalanceLedger = (*BalanceLedger)(nil)

// Get retrieves a wallet's balance entry. Unknown wallets read as a zero
// entry.
func (l *BalanceLedger) Get(ctx context.Context, wallet string) (*domain.BalanceEntry, error) {
	if wallet == "" {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT wallet_address, chefcoins, owned_items, updated_at
		FROM balances
		WHERE wallet_address = $1
	`

	var entry domain.BalanceEntry
	err := l.pool.QueryRow(ctx, query, wallet).Scan(
		&entry.Wallet,
		&entry.Chefcoins,
		&entry.OwnedItems,
		&entry.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return &domain.BalanceEntry{Wallet: wallet, OwnedItems: []string{}}, nil
		}
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return &entry, nil
}

// AtomicCredit adds amount chefcoins to the wallet. A non-empty requestID
// may credit at most once: the (request_id, kind) unique index rejects a
// repeat, surfaced as ErrDuplicateKey with the transaction rolled back.
func (l *BalanceLedger) AtomicCredit(ctx context.Context, wallet string, amount int64, reason, requestID string, dailyLimit int64) (*storage.MutationResult, error) {
	if wallet == "" || amount <= 0 {
		return nil, storage.ErrInvalidInput
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := l.lockEntry(ctx, tx, wallet); err != nil {
		return nil, err
	}

	if dailyLimit > 0 {
		var credited int64
		err := tx.QueryRow(ctx, `
			SELECT COALESCE(SUM(amount), 0)
			FROM ledger_records
			WHERE wallet_address = $1 AND kind = $2 AND created_at >= date_trunc('day', now() AT TIME ZONE 'UTC')
		`, wallet, string(domain.LedgerRecordCredit)).Scan(&credited)
		if err != nil {
			return nil, fmt.Errorf("sum credits: %w", err)
		}
		if credited+amount > dailyLimit {
			return nil, storage.ErrLimitExceeded
		}
	}

	var newBalance int64
	err = tx.QueryRow(ctx, `
		UPDATE balances
		SET chefcoins = chefcoins + $2, updated_at = now()
		WHERE wallet_address = $1
		RETURNING chefcoins
	`, wallet, amount).Scan(&newBalance)
	if err != nil {
		return nil, fmt.Errorf("apply credit: %w", err)
	}

	if err := appendRecord(ctx, tx, domain.LedgerRecordCredit, wallet, amount, reason, requestID); err != nil {
		if isDuplicateKeyError(err) {
			return nil, storage.ErrDuplicateKey
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &storage.MutationResult{NewBalance: newBalance}, nil
}

// AtomicDebit removes amount chefcoins from the wallet. Returns
// ErrInsufficientFunds without mutating when the balance is too low, and
// ErrDuplicateKey when a non-empty requestID already debited.
func (l *BalanceLedger) AtomicDebit(ctx context.Context, wallet string, amount int64, reason, requestID string) (*storage.MutationResult, error) {
	if wallet == "" || amount <= 0 {
		return nil, storage.ErrInvalidInput
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	balance, err := l.lockEntry(ctx, tx, wallet)
	if err != nil {
		return nil, err
	}
	if balance < amount {
		return nil, storage.ErrInsufficientFunds
	}

	var newBalance int64
	err = tx.QueryRow(ctx, `
		UPDATE balances
		SET chefcoins = chefcoins - $2, updated_at = now()
		WHERE wallet_address = $1
		RETURNING chefcoins
	`, wallet, amount).Scan(&newBalance)
	if err != nil {
		return nil, fmt.Errorf("apply debit: %w", err)
	}

	if err := appendRecord(ctx, tx, domain.LedgerRecordDebit, wallet, amount, reason, requestID); err != nil {
		if isDuplicateKeyError(err) {
			return nil, storage.ErrDuplicateKey
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &storage.MutationResult{NewBalance: newBalance}, nil
}

// AtomicRefund returns the amount debited under requestID to its wallet.
// Idempotent per requestID: the unique (request_id, kind) index turns a
// concurrent second refund into a no-op insert, and the original result
// is reported back.
func (l *BalanceLedger) AtomicRefund(ctx context.Context, requestID string) (*storage.RefundResult, error) {
	if requestID == "" {
		return nil, storage.ErrInvalidInput
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var wallet, reason string
	var amount int64
	err = tx.QueryRow(ctx, `
		SELECT wallet_address, amount, reason
		FROM ledger_records
		WHERE request_id = $1 AND kind = $2
	`, requestID, string(domain.LedgerRecordDebit)).Scan(&wallet, &amount, &reason)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("find debit: %w", err)
	}

	if _, err := l.lockEntry(ctx, tx, wallet); err != nil {
		return nil, err
	}

	var recordID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO ledger_records (wallet_address, kind, amount, reason, request_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (request_id, kind) WHERE request_id <> '' DO NOTHING
		RETURNING id
	`, wallet, string(domain.LedgerRecordRefund), amount, "refund:"+reason, requestID).Scan(&recordID)
	if err != nil {
		if isNotFoundError(err) {
			// Already refunded. Report the original outcome.
			var balance int64
			if err := tx.QueryRow(ctx, `SELECT chefcoins FROM balances WHERE wallet_address = $1`, wallet).Scan(&balance); err != nil {
				return nil, fmt.Errorf("read balance: %w", err)
			}
			if err := tx.Commit(ctx); err != nil {
				return nil, fmt.Errorf("commit tx: %w", err)
			}
			return &storage.RefundResult{RefundedAmount: amount, NewBalance: balance}, nil
		}
		return nil, fmt.Errorf("append refund record: %w", err)
	}

	var newBalance int64
	err = tx.QueryRow(ctx, `
		UPDATE balances
		SET chefcoins = chefcoins + $2, updated_at = now()
		WHERE wallet_address = $1
		RETURNING chefcoins
	`, wallet, amount).Scan(&newBalance)
	if err != nil {
		return nil, fmt.Errorf("apply refund: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &storage.RefundResult{RefundedAmount: amount, NewBalance: newBalance}, nil
}

// GrantItem appends itemID to the wallet's owned set. Granting an
// already-owned item is a no-op.
func (l *BalanceLedger) GrantItem(ctx context.Context, wallet, itemID string) (*domain.BalanceEntry, error) {
	if wallet == "" || itemID == "" {
		return nil, storage.ErrInvalidInput
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := l.lockEntry(ctx, tx, wallet); err != nil {
		return nil, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE balances
		SET owned_items = array_append(owned_items, $2), updated_at = now()
		WHERE wallet_address = $1 AND NOT ($2 = ANY(owned_items))
	`, wallet, itemID)
	if err != nil {
		return nil, fmt.Errorf("grant item: %w", err)
	}
	if tag.RowsAffected() == 1 {
		if err := appendRecord(ctx, tx, domain.LedgerRecordGrant, wallet, 0, "grant:"+itemID, ""); err != nil {
			return nil, err
		}
	}

	var entry domain.BalanceEntry
	err = tx.QueryRow(ctx, `
		SELECT wallet_address, chefcoins, owned_items, updated_at
		FROM balances
		WHERE wallet_address = $1
	`, wallet).Scan(&entry.Wallet, &entry.Chefcoins, &entry.OwnedItems, &entry.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("read balance entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &entry, nil
}

// lockEntry ensures the wallet's balance row exists and takes a row lock
// on it, returning the current balance.
func (l *BalanceLedger) lockEntry(ctx context.Context, tx pgx.Tx, wallet string) (int64, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO balances (wallet_address) VALUES ($1)
		ON CONFLICT (wallet_address) DO NOTHING
	`, wallet)
	if err != nil {
		return 0, fmt.Errorf("ensure balance row: %w", err)
	}

	var balance int64
	err = tx.QueryRow(ctx, `
		SELECT chefcoins FROM balances WHERE wallet_address = $1 FOR UPDATE
	`, wallet).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("lock balance row: %w", err)
	}
	return balance, nil
}

// appendRecord writes one immutable audit record inside the mutation's
// transaction.
func appendRecord(ctx context.Context, tx pgx.Tx, kind domain.LedgerRecordKind, wallet string, amount int64, reason, requestID string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO ledger_records (wallet_address, kind, amount, reason, request_id)
		VALUES ($1, $2, $3, $4, $5)
	`, wallet, string(kind), amount, reason, requestID)
	if err != nil {
		return fmt.Errorf("append %s record: %w", kind, err)
	}
	return nil
}

// Records returns all audit records for a wallet, oldest first.
func (l *BalanceLedger) Records(ctx context.Context, wallet string) ([]*domain.LedgerRecord, error) {
	query := `
		SELECT id, wallet_address, kind, amount, reason, request_id, created_at
		FROM ledger_records
		WHERE wallet_address = $1
		ORDER BY id ASC
	`

	rows, err := l.pool.Query(ctx, query, wallet)
	if err != nil {
		return nil, fmt.Errorf("list ledger records: %w", err)
	}
	defer rows.Close()

	var records []*domain.LedgerRecord
	for rows.Next() {
		var rec domain.LedgerRecord
		var kind string
		if err := rows.Scan(&rec.ID, &rec.Wallet, &kind, &rec.Amount, &rec.Reason, &rec.RequestID, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger record: %w", err)
		}
		rec.Kind = domain.LedgerRecordKind(kind)
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger records: %w", err)
	}
	return records, nil
}
