package postgres

import (
	"context"
	"encoding/json"

	"github.com/and161185/arcadia/internal/model"
	"github.com/gofrs/uuid/v5"
)

// AchievementRepo implements AchievementRepository using PostgreSQL.
type AchievementRepo struct{ db *DB }

// NewAchievementRepo constructs an achievement repository.
func NewAchievementRepo(db *DB) *AchievementRepo { return &AchievementRepo{db: db} }

// Grant inserts unless (account_id, kind) already exists.
func (r *AchievementRepo) Grant(ctx context.Context, a *model.Achievement) (bool, error) {
	const q = `
INSERT INTO achievements (id, account_id, kind, name, metadata, earned_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (account_id, kind) DO NOTHING`
	meta, err := marshalJSON(a.Metadata)
	if err != nil {
		return false, err
	}
	tag, err := r.db.conn(ctx).Exec(ctx, q, a.ID, a.AccountID, string(a.Kind), a.Name, meta, a.EarnedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListByAccount returns an account's achievements, oldest first.
func (r *AchievementRepo) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]model.Achievement, error) {
	const q = `
SELECT id, account_id, kind, name, metadata, earned_at
FROM achievements WHERE account_id=$1 ORDER BY earned_at, id`
	rows, err := r.db.conn(ctx).Query(ctx, q, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Achievement
	for rows.Next() {
		var a model.Achievement
		var kind string
		var meta []byte
		if err := rows.Scan(&a.ID, &a.AccountID, &kind, &a.Name, &meta, &a.EarnedAt); err != nil {
			return nil, err
		}
		a.Kind = model.AchievementKind(kind)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &a.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// marshalJSON encodes a nil map as an empty object.
func marshalJSON(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}
