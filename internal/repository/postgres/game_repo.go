package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/and161185/arcadia/internal/errs"
	"github.com/and161185/arcadia/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// GameRepo implements GameRepository using PostgreSQL.
type GameRepo struct{ db *DB }

// NewGameRepo constructs a game repository.
func NewGameRepo(db *DB) *GameRepo { return &GameRepo{db: db} }

const gameColumns = `id, title, description, policy, token_price, difficulty, creator_id, play_count, high_score, creator_revenue::text, active, created_at`

// Create inserts a catalog entry.
func (r *GameRepo) Create(ctx context.Context, g *model.Game) error {
	const q = `
INSERT INTO games (id, title, description, policy, token_price, difficulty, creator_id, active, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.conn(ctx).Exec(ctx, q,
		g.ID, g.Title, g.Description, string(g.Policy), g.TokenPrice, g.Difficulty, g.CreatorID, g.Active, g.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects a game by ID.
func (r *GameRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Game, error) {
	const q = `SELECT ` + gameColumns + ` FROM games WHERE id=$1`
	return scanGame(r.db.conn(ctx).QueryRow(ctx, q, id))
}

// GetForUpdate selects a game and locks its row.
func (r *GameRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Game, error) {
	const q = `SELECT ` + gameColumns + ` FROM games WHERE id=$1 FOR UPDATE`
	return scanGame(r.db.conn(ctx).QueryRow(ctx, q, id))
}

// ListActive returns active games ordered by title.
func (r *GameRepo) ListActive(ctx context.Context) ([]model.Game, error) {
	const q = `SELECT ` + gameColumns + ` FROM games WHERE active ORDER BY title, id`
	rows, err := r.db.conn(ctx).Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

// IncrementPlayCount adds one play.
func (r *GameRepo) IncrementPlayCount(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE games SET play_count = play_count + 1 WHERE id=$1`
	_, err := r.db.conn(ctx).Exec(ctx, q, id)
	return err
}

// AddCreatorRevenue adds amount to the cumulative creator revenue.
func (r *GameRepo) AddCreatorRevenue(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	const q = `UPDATE games SET creator_revenue = creator_revenue + $2::numeric WHERE id=$1`
	_, err := r.db.conn(ctx).Exec(ctx, q, id, amount.String())
	return err
}

// RaiseHighScore updates the high score only when score is strictly greater.
func (r *GameRepo) RaiseHighScore(ctx context.Context, id uuid.UUID, score int64) (bool, error) {
	const q = `UPDATE games SET high_score=$2 WHERE id=$1 AND high_score < $2`
	tag, err := r.db.conn(ctx).Exec(ctx, q, id, score)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CreatorTotals counts games created by an account and sums their revenue.
func (r *GameRepo) CreatorTotals(ctx context.Context, creatorID uuid.UUID) (model.CreatorTotals, error) {
	const q = `SELECT count(*), COALESCE(sum(creator_revenue), 0)::text FROM games WHERE creator_id=$1`
	var out model.CreatorTotals
	var revenue string
	if err := r.db.conn(ctx).QueryRow(ctx, q, creatorID).Scan(&out.GamesCreated, &revenue); err != nil {
		return model.CreatorTotals{}, err
	}
	d, err := decimal.NewFromString(revenue)
	if err != nil {
		return model.CreatorTotals{}, fmt.Errorf("parse revenue: %w", err)
	}
	out.Revenue = d
	return out, nil
}

func scanGame(row pgx.Row) (*model.Game, error) {
	var g model.Game
	var policy, revenue string
	err := row.Scan(&g.ID, &g.Title, &g.Description, &policy, &g.TokenPrice, &g.Difficulty,
		&g.CreatorID, &g.PlayCount, &g.HighScore, &revenue, &g.Active, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrGameNotFound
		}
		return nil, err
	}
	g.Policy = model.GamePolicy(policy)
	if g.CreatorRevenue, err = decimal.NewFromString(revenue); err != nil {
		return nil, fmt.Errorf("parse revenue: %w", err)
	}
	return &g, nil
}
