package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/draftworks/agentsmith/internal/thread"
)

// ErrNotFound is returned when a thread has no persisted snapshot.
var ErrNotFound = errors.New("thread snapshot not found")

// SaveThread upserts a thread snapshot.
func (s *Store) SaveThread(ctx context.Context, snap thread.Snapshot) error {
	config, err := json.Marshal(snap.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	mock, err := json.Marshal(snap.Mock)
	if err != nil {
		return fmt.Errorf("marshal mock: %w", err)
	}
	messages, err := json.Marshal(snap.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	todos, err := json.Marshal(snap.Todos)
	if err != nil {
		return fmt.Errorf("marshal todos: %w", err)
	}
	var pending []byte
	if snap.Pending != nil {
		pending, err = json.Marshal(snap.Pending)
		if err != nil {
			return fmt.Errorf("marshal pending: %w", err)
		}
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO threads (id, config, config_valid, mock, messages, todos, pending, last_built, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			config = EXCLUDED.config,
			config_valid = EXCLUDED.config_valid,
			mock = EXCLUDED.mock,
			messages = EXCLUDED.messages,
			todos = EXCLUDED.todos,
			pending = EXCLUDED.pending,
			last_built = EXCLUDED.last_built,
			updated_at = EXCLUDED.updated_at`,
		snap.ThreadID, config, snap.ConfigValid, mock, messages, todos,
		pending, []byte(snap.LastBuilt), snap.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save thread %s: %w", snap.ThreadID, err)
	}
	return nil
}

// LoadThread retrieves a thread snapshot by id.
func (s *Store) LoadThread(ctx context.Context, id string) (thread.Snapshot, error) {
	var (
		snap                                          thread.Snapshot
		config, mock, messages, todos, pending, built []byte
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, config, config_valid, mock, messages, todos, pending, last_built, updated_at
		FROM threads WHERE id = $1`, id,
	).Scan(&snap.ThreadID, &config, &snap.ConfigValid, &mock, &messages,
		&todos, &pending, &built, &snap.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return thread.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return thread.Snapshot{}, fmt.Errorf("load thread %s: %w", id, err)
	}

	if len(config) > 0 {
		if err := json.Unmarshal(config, &snap.Config); err != nil {
			return thread.Snapshot{}, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	if len(mock) > 0 {
		if err := json.Unmarshal(mock, &snap.Mock); err != nil {
			return thread.Snapshot{}, fmt.Errorf("unmarshal mock: %w", err)
		}
	}
	if len(messages) > 0 {
		if err := json.Unmarshal(messages, &snap.Messages); err != nil {
			return thread.Snapshot{}, fmt.Errorf("unmarshal messages: %w", err)
		}
	}
	if len(todos) > 0 {
		if err := json.Unmarshal(todos, &snap.Todos); err != nil {
			return thread.Snapshot{}, fmt.Errorf("unmarshal todos: %w", err)
		}
	}
	if len(pending) > 0 {
		if err := json.Unmarshal(pending, &snap.Pending); err != nil {
			return thread.Snapshot{}, fmt.Errorf("unmarshal pending: %w", err)
		}
	}
	snap.LastBuilt = built
	return snap, nil
}

// ListThreadIDs returns the ids of all persisted threads, newest first.
func (s *Store) ListThreadIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM threads ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan thread id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteThread removes a thread snapshot and its chat history.
func (s *Store) DeleteThread(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM chat_messages WHERE thread_id = $1`, id); err != nil {
		return fmt.Errorf("delete chat history %s: %w", id, err)
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM threads WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete thread %s: %w", id, err)
	}
	return nil
}
