// ABOUTME: SQLite persistence for per-user agents and the messages between them.
// ABOUTME: Agent metadata is an opaque JSON document owned by the agent package.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GetAgentByUserID returns the agent that belongs to userID.
// Returns ErrNotFound if the user has no agent yet.
func (s *SQLiteStore) GetAgentByUserID(ctx context.Context, userID string) (*Agent, error) {
	var a Agent
	var canSend, canReceive int
	var metadata, createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, agent_name, can_send, can_receive, metadata, created_at, updated_at
		FROM agents WHERE user_id = ?
	`, userID).Scan(&a.ID, &a.UserID, &a.Name, &canSend, &canReceive, &metadata, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent: %w", err)
	}

	a.CanSend = canSend != 0
	a.CanReceive = canReceive != 0
	a.Metadata = json.RawMessage(metadata)
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}

// CreateAgent inserts a new agent. ID, timestamps, and empty metadata are filled in.
// Returns ErrDuplicateAgent if the user already has one.
func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *Agent) error {
	if agent.UserID == "" {
		return errors.New("agent user id is required")
	}
	if agent.ID == "" {
		agent.ID = uuid.New().String()
	}
	if len(agent.Metadata) == 0 {
		agent.Metadata = json.RawMessage("{}")
	}
	now := time.Now()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now
	}
	agent.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (id, user_id, agent_name, can_send, can_receive, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, agent.ID, agent.UserID, agent.Name, boolToInt(agent.CanSend), boolToInt(agent.CanReceive),
		string(agent.Metadata), formatTime(agent.CreatedAt), formatTime(agent.UpdatedAt))
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateAgent
		}
		return fmt.Errorf("inserting agent: %w", err)
	}
	return nil
}

// SaveAgentState replaces the metadata document of an agent.
// Returns ErrNotFound if the agent doesn't exist.
func (s *SQLiteStore) SaveAgentState(ctx context.Context, agentID string, metadata json.RawMessage) error {
	if !json.Valid(metadata) {
		return errors.New("agent metadata must be valid JSON")
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE agents SET metadata = ?, updated_at = ? WHERE id = ?
	`, string(metadata), formatTime(time.Now()), agentID)
	if err != nil {
		return fmt.Errorf("saving agent state: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateAgentMessage records a message between two agents.
func (s *SQLiteStore) CreateAgentMessage(ctx context.Context, msg *AgentMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if msg.Status == "" {
		msg.Status = AgentMessageSent
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_messages (id, sender_agent_id, receiver_agent_id, content, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.SenderAgentID, msg.ReceiverAgentID, msg.Content, msg.Status, formatTime(msg.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting agent message: %w", err)
	}
	return nil
}

// ListAgentMessages returns up to limit of the most recent messages sent or
// received by agentID, oldest first.
func (s *SQLiteStore) ListAgentMessages(ctx context.Context, agentID string, limit int) ([]*AgentMessage, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_agent_id, receiver_agent_id, content, status, created_at
		FROM (
			SELECT id, sender_agent_id, receiver_agent_id, content, status, created_at, rowid AS seq
			FROM agent_messages
			WHERE sender_agent_id = ? OR receiver_agent_id = ?
			ORDER BY created_at DESC, seq DESC
			LIMIT ?
		)
		ORDER BY created_at ASC, seq ASC
	`, agentID, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying agent messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := []*AgentMessage{}
	for rows.Next() {
		var m AgentMessage
		var createdAt string
		if err := rows.Scan(&m.ID, &m.SenderAgentID, &m.ReceiverAgentID, &m.Content, &m.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning agent message: %w", err)
		}
		m.CreatedAt = parseTime(createdAt)
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}
