// ABOUTME: SQLite persistence for the data behind the builtin tools.
// ABOUTME: Handles user availability modes and todo reminders.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GetUserMode returns the stored mode for phone.
// Returns ErrNotFound if the user has never set a mode.
func (s *SQLiteStore) GetUserMode(ctx context.Context, phone string) (*UserMode, error) {
	var um UserMode
	var mode, updatedAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT phone, mode, updated_at FROM usersmodes WHERE phone = ?
	`, phone).Scan(&um.Phone, &mode, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user mode: %w", err)
	}

	um.Mode = Mode(mode)
	um.UpdatedAt = parseTime(updatedAt)
	return &um, nil
}

// SetUserMode creates or updates the mode for phone.
func (s *SQLiteStore) SetUserMode(ctx context.Context, phone string, mode Mode) error {
	if _, err := ParseMode(string(mode)); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usersmodes (phone, mode, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(phone) DO UPDATE SET
			mode = excluded.mode,
			updated_at = excluded.updated_at
	`, phone, string(mode), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("setting user mode: %w", err)
	}
	return nil
}

// CreateTodo creates a new todo.
func (s *SQLiteStore) CreateTodo(ctx context.Context, todo *Todo) error {
	if todo.SenderPhone == "" {
		return errors.New("todo sender phone is required")
	}
	if todo.ID == "" {
		todo.ID = uuid.New().String()
	}
	now := time.Now()
	if todo.CreatedAt.IsZero() {
		todo.CreatedAt = now
	}
	todo.UpdatedAt = now
	if todo.Status == "" {
		todo.Status = TodoStatusPending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO todos (id, sender_phone, title, status, repeat, reminder_time, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, todo.ID, todo.SenderPhone, todo.Title, todo.Status, nullString(todo.Repeat),
		formatOptionalTime(todo.ReminderTime), formatTime(todo.CreatedAt), formatTime(todo.UpdatedAt))
	if err != nil {
		return fmt.Errorf("inserting todo: %w", err)
	}
	return nil
}

// ListTodosBySender returns every todo owned by phone in creation order.
func (s *SQLiteStore) ListTodosBySender(ctx context.Context, phone string) ([]*Todo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_phone, title, status, repeat, reminder_time, created_at, updated_at
		FROM todos
		WHERE sender_phone = ?
		ORDER BY created_at ASC, rowid ASC
	`, phone)
	if err != nil {
		return nil, fmt.Errorf("querying todos: %w", err)
	}
	defer func() { _ = rows.Close() }()

	todos := []*Todo{}
	for rows.Next() {
		var t Todo
		var repeat, reminder sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(&t.ID, &t.SenderPhone, &t.Title, &t.Status, &repeat, &reminder, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning todo: %w", err)
		}
		t.Repeat = repeat.String
		t.ReminderTime = parseOptionalTime(reminder)
		t.CreatedAt = parseTime(createdAt)
		t.UpdatedAt = parseTime(updatedAt)
		todos = append(todos, &t)
	}
	return todos, rows.Err()
}

// UpdateTodo writes the status and reminder time of an existing todo.
// Returns ErrNotFound if the todo doesn't exist.
func (s *SQLiteStore) UpdateTodo(ctx context.Context, todo *Todo) error {
	todo.UpdatedAt = time.Now()

	result, err := s.db.ExecContext(ctx, `
		UPDATE todos SET title = ?, status = ?, repeat = ?, reminder_time = ?, updated_at = ?
		WHERE id = ?
	`, todo.Title, todo.Status, nullString(todo.Repeat), formatOptionalTime(todo.ReminderTime),
		formatTime(todo.UpdatedAt), todo.ID)
	if err != nil {
		return fmt.Errorf("updating todo: %w", err)
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
