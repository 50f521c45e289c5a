// ABOUTME: SQLite persistence for user profiles and chat messages.
// ABOUTME: Serves conversation history lookups between two phone numbers.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UpsertProfile creates or replaces the profile for p.Phone.
func (s *SQLiteStore) UpsertProfile(ctx context.Context, p *Profile) error {
	if p.Phone == "" {
		return errors.New("profile phone is required")
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (phone_number, name, email, about, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(phone_number) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			about = excluded.about,
			updated_at = excluded.updated_at
	`, p.Phone, p.Name, nullString(p.Email), nullString(p.About), formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upserting profile: %w", err)
	}
	return nil
}

// GetProfile returns the profile for phone.
// Returns ErrNotFound if no profile exists.
func (s *SQLiteStore) GetProfile(ctx context.Context, phone string) (*Profile, error) {
	var p Profile
	var email, about sql.NullString
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT phone_number, name, email, about, created_at, updated_at
		FROM profiles WHERE phone_number = ?
	`, phone).Scan(&p.Phone, &p.Name, &email, &about, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying profile: %w", err)
	}

	p.Email = email.String
	p.About = about.String
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

// CreateMessage stores a chat message. ID and CreatedAt are filled in when empty.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *Message) error {
	if msg.SenderPhone == "" || msg.ReceiverPhone == "" {
		return errors.New("sender and receiver phone are required")
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, sender_phone, receiver_phone, message, is_ai, is_read, reply_to_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.SenderPhone, msg.ReceiverPhone, msg.Message,
		boolToInt(msg.IsAI), boolToInt(msg.IsRead), nullString(msg.ReplyTo), formatTime(msg.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// GetLatestMessages returns up to limit of the most recent messages exchanged
// between phoneA and phoneB in either direction, oldest first.
func (s *SQLiteStore) GetLatestMessages(ctx context.Context, phoneA, phoneB string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 10
	}

	// Subquery selects the newest rows, outer query restores chronological order
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_phone, receiver_phone, message, is_ai, is_read, reply_to_message, created_at
		FROM (
			SELECT id, sender_phone, receiver_phone, message, is_ai, is_read, reply_to_message, created_at, rowid AS seq
			FROM messages
			WHERE (sender_phone = ? AND receiver_phone = ?)
			   OR (sender_phone = ? AND receiver_phone = ?)
			ORDER BY created_at DESC, seq DESC
			LIMIT ?
		)
		ORDER BY created_at ASC, seq ASC
	`, phoneA, phoneB, phoneB, phoneA, limit)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := []*Message{}
	for rows.Next() {
		var m Message
		var isAI, isRead int
		var replyTo sql.NullString
		var createdAt string
		if err := rows.Scan(&m.ID, &m.SenderPhone, &m.ReceiverPhone, &m.Message, &isAI, &isRead, &replyTo, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.IsAI = isAI != 0
		m.IsRead = isRead != 0
		m.ReplyTo = replyTo.String
		m.CreatedAt = parseTime(createdAt)
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}
