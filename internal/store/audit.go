package store

import (
	"context"
	"fmt"

	"stride/api/internal/audit"
)

// InsertAuditEntry is the only write path into audit_log. The table rejects
// UPDATE and DELETE at the database level.
func (s *PostgresStore) InsertAuditEntry(ctx context.Context, entry audit.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, actor_id, action, entity, entity_id, detail, ip, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, entry.ID, entry.ActorID, string(entry.Action), string(entry.Entity), entry.EntityID,
		entry.Detail, entry.IP, entry.RequestID, entry.CreatedAt)
	return classify("insert audit entry", err)
}

func (s *PostgresStore) ListAuditEntries(ctx context.Context, filter audit.Filter) ([]audit.Entry, error) {
	var w where
	if filter.ActorID != "" {
		w.add("actor_id=?", filter.ActorID)
	}
	if filter.Entity != "" {
		w.add("entity=?", string(filter.Entity))
	}
	if filter.Action != "" {
		w.add("action=?", string(filter.Action))
	}
	if !filter.From.IsZero() {
		w.add("created_at>=?", filter.From)
	}
	if !filter.To.IsZero() {
		w.add("created_at<?", filter.To)
	}
	order := ` ORDER BY created_at DESC, id DESC`
	if filter.Ascending {
		order = ` ORDER BY created_at ASC, id ASC`
	}
	query := `SELECT id, actor_id, action, entity, entity_id, detail, ip, request_id, created_at FROM audit_log` +
		w.clause() + order + w.limit(filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]audit.Entry, 0)
	for rows.Next() {
		var entry audit.Entry
		var action, entity string
		if err := rows.Scan(&entry.ID, &entry.ActorID, &action, &entity, &entry.EntityID,
			&entry.Detail, &entry.IP, &entry.RequestID, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.Action = audit.Action(action)
		entry.Entity = audit.Entity(entity)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
