package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/draftworks/agentsmith/internal/provider"
)

// AppendChatMessage stores one built-agent chat message for a
// (thread, session) pair.
func (s *Store) AppendChatMessage(ctx context.Context, threadID, sessionID string, msg provider.Message) error {
	var toolCalls []byte
	if len(msg.ToolCalls) > 0 {
		var err error
		toolCalls, err = json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("marshal tool_calls: %w", err)
		}
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO chat_messages (id, thread_id, session_id, role, content, tool_calls)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5)`,
		threadID, sessionID, msg.Role, msg.Content, toolCalls,
	)
	if err != nil {
		return fmt.Errorf("append chat message: %w", err)
	}
	return nil
}

// ChatHistory retrieves a session's chat messages in order.
func (s *Store) ChatHistory(ctx context.Context, threadID, sessionID string, limit int) ([]provider.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(ctx, `
		SELECT role, content, tool_calls
		FROM chat_messages
		WHERE thread_id = $1 AND session_id = $2
		ORDER BY created_at ASC
		LIMIT $3`, threadID, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("chat history: %w", err)
	}
	defer rows.Close()

	var msgs []provider.Message
	for rows.Next() {
		var msg provider.Message
		var toolCalls []byte
		if err := rows.Scan(&msg.Role, &msg.Content, &toolCalls); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		if len(toolCalls) > 0 {
			json.Unmarshal(toolCalls, &msg.ToolCalls)
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}
