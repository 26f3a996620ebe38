// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"

	_ "modernc.org/sqlite"
)

// SQLiteTaskStore persists A2A tasks in SQLite, one JSON column per task
// section. Saves are serialized so the transition check and the upsert see
// the same row.
type SQLiteTaskStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteTaskStore creates a SQLite-backed task store and ensures schema.
func NewSQLiteTaskStore(db *sql.DB) (*SQLiteTaskStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS a2a_tasks (
			id TEXT PRIMARY KEY,
			context_id TEXT NOT NULL,
			state TEXT NOT NULL,
			status_json TEXT NOT NULL,
			history_json TEXT NOT NULL,
			artifacts_json TEXT NOT NULL,
			metadata_json TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_a2a_tasks_context ON a2a_tasks(context_id)`,
		`CREATE INDEX IF NOT EXISTS idx_a2a_tasks_state ON a2a_tasks(state)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("task store schema: %w", err)
		}
	}
	return &SQLiteTaskStore{db: db}, nil
}

// Save upserts task, refusing non-monotonic transitions.
func (s *SQLiteTaskStore) Save(ctx context.Context, task *a2a.Task) error {
	if task == nil {
		return fmt.Errorf("task is required")
	}
	status, err := json.Marshal(task.Status)
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	history, err := json.Marshal(orEmpty(task.History))
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	artifacts, err := json.Marshal(orEmpty(task.Artifacts))
	if err != nil {
		return fmt.Errorf("encode artifacts: %w", err)
	}
	metadata, err := json.Marshal(task.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var current string
	err = s.db.QueryRowContext(ctx, `SELECT state FROM a2a_tasks WHERE id = ?`, string(task.ID)).Scan(&current)
	switch {
	case err == nil:
		if err := checkTransition(task.ID, a2a.TaskState(current), task.Status.State); err != nil {
			return err
		}
	case !stderrors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("load task %q: %w", task.ID, err)
	}

	now := time.Now().UTC().UnixMilli()
	_, err = s.db.ExecContext(ctx, `
INSERT INTO a2a_tasks (id, context_id, state, status_json, history_json, artifacts_json, metadata_json, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    context_id = excluded.context_id,
    state = excluded.state,
    status_json = excluded.status_json,
    history_json = excluded.history_json,
    artifacts_json = excluded.artifacts_json,
    metadata_json = excluded.metadata_json,
    updated_at = excluded.updated_at`,
		string(task.ID), task.ContextID, string(task.Status.State),
		string(status), string(history), string(artifacts), string(metadata),
		now, now)
	if err != nil {
		return fmt.Errorf("save task %q: %w", task.ID, err)
	}
	return nil
}

// Get loads a task or returns a2a.ErrTaskNotFound.
func (s *SQLiteTaskStore) Get(ctx context.Context, taskID a2a.TaskID) (*a2a.Task, error) {
	var contextID, status, history, artifacts, metadata string
	err := s.db.QueryRowContext(ctx, `
SELECT context_id, status_json, history_json, artifacts_json, metadata_json
FROM a2a_tasks WHERE id = ?`, string(taskID)).Scan(&contextID, &status, &history, &artifacts, &metadata)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, a2a.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load task %q: %w", taskID, err)
	}

	task := &a2a.Task{ID: taskID, ContextID: contextID}
	if err := json.Unmarshal([]byte(status), &task.Status); err != nil {
		return nil, fmt.Errorf("decode status of %q: %w", taskID, err)
	}
	if err := json.Unmarshal([]byte(history), &task.History); err != nil {
		return nil, fmt.Errorf("decode history of %q: %w", taskID, err)
	}
	if err := json.Unmarshal([]byte(artifacts), &task.Artifacts); err != nil {
		return nil, fmt.Errorf("decode artifacts of %q: %w", taskID, err)
	}
	if err := json.Unmarshal([]byte(metadata), &task.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata of %q: %w", taskID, err)
	}
	return task, nil
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

var _ a2asrv.TaskStore = (*SQLiteTaskStore)(nil)
