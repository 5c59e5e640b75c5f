package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/and161185/arcadia/internal/model"
)

// AuditRepo implements AuditRepository using PostgreSQL.
type AuditRepo struct{ db *DB }

// NewAuditRepo constructs an audit repository.
func NewAuditRepo(db *DB) *AuditRepo { return &AuditRepo{db: db} }

// Append inserts an audit event.
func (r *AuditRepo) Append(ctx context.Context, e *model.AuditEvent) error {
	const q = `
INSERT INTO audit_events (id, account_id, action, resource, details, severity, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	details, err := marshalJSON(e.Details)
	if err != nil {
		return err
	}
	_, err = r.db.conn(ctx).Exec(ctx, q, e.ID, e.AccountID, e.Action, e.Resource, details, string(e.Severity), e.CreatedAt)
	return err
}

// ListRecent returns the newest events first.
func (r *AuditRepo) ListRecent(ctx context.Context, limit int) ([]model.AuditEvent, error) {
	const q = `
SELECT id, account_id, action, resource, details, severity, created_at
FROM audit_events ORDER BY created_at DESC, id LIMIT $1`
	rows, err := r.db.conn(ctx).Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AuditEvent
	for rows.Next() {
		var e model.AuditEvent
		var severity string
		var details []byte
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Action, &e.Resource, &details, &severity, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Severity = model.Severity(severity)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PurgeInfoBefore deletes INFO events older than before.
func (r *AuditRepo) PurgeInfoBefore(ctx context.Context, before time.Time) (int64, error) {
	const q = `DELETE FROM audit_events WHERE severity='INFO' AND created_at < $1`
	tag, err := r.db.conn(ctx).Exec(ctx, q, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountBySeverity counts events created at or after since.
func (r *AuditRepo) CountBySeverity(ctx context.Context, since time.Time) (map[model.Severity]int64, error) {
	const q = `SELECT severity, count(*) FROM audit_events WHERE created_at >= $1 GROUP BY severity`
	rows, err := r.db.conn(ctx).Query(ctx, q, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[model.Severity]int64{}
	for rows.Next() {
		var severity string
		var n int64
		if err := rows.Scan(&severity, &n); err != nil {
			return nil, err
		}
		out[model.Severity(severity)] = n
	}
	return out, rows.Err()
}
