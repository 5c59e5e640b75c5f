package postgres

import (
	"context"
	"fmt"

	"github.com/and161185/arcadia/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
)

// LedgerRepo implements LedgerRepository using PostgreSQL.
type LedgerRepo struct{ db *DB }

// NewLedgerRepo constructs a ledger repository.
func NewLedgerRepo(db *DB) *LedgerRepo { return &LedgerRepo{db: db} }

// Append inserts a transaction.
func (r *LedgerRepo) Append(ctx context.Context, t *model.Transaction) error {
	const q = `
INSERT INTO transactions (id, account_id, kind, amount, token_delta, reference_id, description, created_at)
VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8)`
	_, err := r.db.conn(ctx).Exec(ctx, q,
		t.ID, t.AccountID, string(t.Kind), t.Amount.StringFixed(2), t.TokenDelta, t.ReferenceID, t.Description, t.CreatedAt)
	return err
}

// ListByAccount returns the newest transactions first.
func (r *LedgerRepo) ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]model.Transaction, error) {
	const q = `
SELECT id, account_id, kind, amount::text, token_delta, reference_id, description, created_at
FROM transactions WHERE account_id=$1
ORDER BY created_at DESC, id
LIMIT $2`
	rows, err := r.db.conn(ctx).Query(ctx, q, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var kind, amount string
		if err := rows.Scan(&t.ID, &t.AccountID, &kind, &amount, &t.TokenDelta, &t.ReferenceID, &t.Description, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Kind = model.TransactionKind(kind)
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SumTokenDelta returns the ledger balance of an account.
func (r *LedgerRepo) SumTokenDelta(ctx context.Context, accountID uuid.UUID) (int64, error) {
	const q = `SELECT COALESCE(sum(token_delta), 0) FROM transactions WHERE account_id=$1`
	var n int64
	err := r.db.conn(ctx).QueryRow(ctx, q, accountID).Scan(&n)
	return n, err
}
