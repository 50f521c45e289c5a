// ABOUTME: Todos pack rolls over a user's due reminders.
// ABOUTME: One-time todos complete; repeating todos move to their next occurrence.

package builtins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/2389/adjunct-gateway/internal/orchestrator"
	"github.com/2389/adjunct-gateway/internal/packs"
	"github.com/2389/adjunct-gateway/internal/store"
)

// TodosPack creates the todos pack. now is injectable for tests; nil uses time.Now.
func TodosPack(s store.TodoStore, now func() time.Time) *packs.BuiltinPack {
	if now == nil {
		now = time.Now
	}
	h := &todoHandlers{store: s, now: now}
	return &packs.BuiltinPack{
		ID: "builtin:todos",
		Tools: []*packs.BuiltinTool{
			{
				Definition: &packs.ToolDefinition{
					Name:        "check_and_update_todos",
					Description: "Check a user's todos: overdue one-time todos are marked completed and overdue repeating todos move to their next reminder time. Returns all of the user's todos.",
					InputSchema: packs.GenerateSchema[checkTodosInput](),
				},
				Handler: h.CheckAndUpdate,
			},
		},
	}
}

type todoHandlers struct {
	store store.TodoStore
	now   func() time.Time
}

type checkTodosInput struct {
	SenderPhone string `json:"sender_phone,omitempty" jsonschema_description:"Phone number whose todos to check. Defaults to the sender."`
}

type checkTodosOutput struct {
	Todos   []*store.Todo `json:"todos"`
	Updated int           `json:"updated"`
}

// nextReminder returns the following occurrence for a repeat rule and
// whether the rule is known.
func nextReminder(t time.Time, repeat string) (time.Time, bool) {
	switch strings.ToLower(repeat) {
	case "daily":
		return t.Add(24 * time.Hour), true
	case "weekly":
		return t.Add(7 * 24 * time.Hour), true
	case "monthly":
		return t.Add(30 * 24 * time.Hour), true
	default:
		return t, false
	}
}

func (h *todoHandlers) CheckAndUpdate(ctx context.Context, session orchestrator.Session, input json.RawMessage) (json.RawMessage, error) {
	var in checkTodosInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	phone := strings.TrimSpace(in.SenderPhone)
	if phone == "" {
		phone = session.SenderPhone
	}
	if phone == "" {
		return nil, errors.New("sender_phone is required")
	}

	todos, err := h.store.ListTodosBySender(ctx, phone)
	if err != nil {
		return nil, err
	}

	now := h.now()
	updated := 0
	for _, todo := range todos {
		if todo.ReminderTime == nil || !todo.ReminderTime.Before(now) {
			continue
		}

		if todo.Repeat == "" {
			if todo.Status == store.TodoStatusCompleted {
				continue
			}
			todo.Status = store.TodoStatusCompleted
		} else {
			next, ok := nextReminder(*todo.ReminderTime, todo.Repeat)
			if !ok {
				continue
			}
			todo.ReminderTime = &next
		}

		if err := h.store.UpdateTodo(ctx, todo); err != nil {
			return nil, fmt.Errorf("updating todo %s: %w", todo.ID, err)
		}
		updated++
	}

	return json.Marshal(checkTodosOutput{Todos: todos, Updated: updated})
}
