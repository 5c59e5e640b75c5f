// Package memory is an in-process implementation of the repositories.
// A unit of work holds a store-wide lock and rolls back by restoring a snapshot.
package memory

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/and161185/arcadia/internal/model"
	"github.com/and161185/arcadia/internal/repository"
	"github.com/gofrs/uuid/v5"
)

type state struct {
	accounts     map[uuid.UUID]model.Account
	games        map[uuid.UUID]model.Game
	sessions     []model.GameSession
	ledger       []model.Transaction
	achievements []model.Achievement
	audit        []model.AuditEvent
}

func (s *state) clone() *state {
	return &state{
		accounts:     maps.Clone(s.accounts),
		games:        maps.Clone(s.games),
		sessions:     slices.Clone(s.sessions),
		ledger:       slices.Clone(s.ledger),
		achievements: slices.Clone(s.achievements),
		audit:        slices.Clone(s.audit),
	}
}

// DB holds all in-memory tables.
type DB struct {
	mu sync.Mutex
	st *state
}

type txKey struct{}

var errNegativeBalance = errors.New("tokens would become negative")

// New returns an empty in-memory database.
func New() *DB {
	return &DB{st: &state{
		accounts: map[uuid.UUID]model.Account{},
		games:    map[uuid.UUID]model.Game{},
	}}
}

// NewStore wires all in-memory repositories over db.
func NewStore(db *DB) repository.Store {
	return repository.Store{
		Tx:           db,
		Accounts:     &AccountRepo{db: db},
		Games:        &GameRepo{db: db},
		Sessions:     &SessionRepo{db: db},
		Ledger:       &LedgerRepo{db: db},
		Achievements: &AchievementRepo{db: db},
		Audit:        &AuditRepo{db: db},
	}
}

// InTransaction serializes fn against every other caller and restores the
// previous state when fn fails.
func (db *DB) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	snapshot := db.st.clone()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		db.st = snapshot
		return err
	}
	return nil
}

// lock takes the store lock unless ctx already runs inside a unit of work.
func (db *DB) lock(ctx context.Context) func() {
	if ctx.Value(txKey{}) != nil {
		return func() {}
	}
	db.mu.Lock()
	return db.mu.Unlock
}
