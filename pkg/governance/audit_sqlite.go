// SPDX-License-Identifier: Apache-2.0

package governance

import (
	"context"
	"database/sql"
	"errors"

	_ "modernc.org/sqlite"
)

// SQLiteAuditStore persists audit events in SQLite.
type SQLiteAuditStore struct {
	db *sql.DB
}

// NewSQLiteAuditStore creates a SQLite-backed audit store and ensures schema.
func NewSQLiteAuditStore(db *sql.DB) (*SQLiteAuditStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensureAuditSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteAuditStore{db: db}, nil
}

// Record stores a single audit event.
func (s *SQLiteAuditStore) Record(ctx context.Context, event AuditEvent) error {
	meta, err := encodeMetadata(event.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO governance_audit_events (
			agent_id, action, details, status, metadata_json, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`,
		event.AgentID,
		event.Action,
		event.Details,
		string(event.Status),
		meta,
		event.Timestamp,
	)
	return err
}

// List returns audit events matching the filter, oldest first.
func (s *SQLiteAuditStore) List(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	query := `
		SELECT agent_id, action, details, status, metadata_json, recorded_at
		FROM governance_audit_events
	`
	var args []any
	where := ""
	addFilter := func(clause string, value any) {
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
		args = append(args, value)
	}
	if filter.AgentID != "" {
		addFilter("agent_id = ?", filter.AgentID)
	}
	if filter.Action != "" {
		addFilter("action = ?", filter.Action)
	}
	if filter.Status != "" {
		addFilter("status = ?", string(filter.Status))
	}
	query += where + " ORDER BY recorded_at ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var (
			event  AuditEvent
			status string
			meta   sql.NullString
		)
		if err := rows.Scan(
			&event.AgentID,
			&event.Action,
			&event.Details,
			&status,
			&meta,
			&event.Timestamp,
		); err != nil {
			return nil, err
		}
		event.Status = AuditStatus(status)
		event.Metadata = decodeMetadata(meta.String)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func ensureAuditSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS governance_audit_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id TEXT NOT NULL,
			action TEXT NOT NULL,
			details TEXT,
			status TEXT NOT NULL,
			metadata_json TEXT,
			recorded_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_governance_audit_agent ON governance_audit_events(agent_id);
		CREATE INDEX IF NOT EXISTS idx_governance_audit_status ON governance_audit_events(status);
	`)
	return err
}
