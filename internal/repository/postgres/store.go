package postgres

import "github.com/and161185/arcadia/internal/repository"

// NewStore wires all PostgreSQL repositories over db.
func NewStore(db *DB) repository.Store {
	return repository.Store{
		Tx:           db,
		Accounts:     NewAccountRepo(db),
		Games:        NewGameRepo(db),
		Sessions:     NewSessionRepo(db),
		Ledger:       NewLedgerRepo(db),
		Achievements: NewAchievementRepo(db),
		Audit:        NewAuditRepo(db),
	}
}
