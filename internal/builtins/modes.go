// ABOUTME: Modes pack reads and changes a user's availability mode.
// ABOUTME: The mode decides whether the assistant replies on the user's behalf.

package builtins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/2389/adjunct-gateway/internal/orchestrator"
	"github.com/2389/adjunct-gateway/internal/packs"
	"github.com/2389/adjunct-gateway/internal/store"
)

// ModesPack creates the modes pack.
func ModesPack(s store.ModeStore) *packs.BuiltinPack {
	m := &modeHandlers{store: s}
	return &packs.BuiltinPack{
		ID: "builtin:modes",
		Tools: []*packs.BuiltinTool{
			{
				Definition: &packs.ToolDefinition{
					Name:        "set_or_update_user_mode",
					Description: "Set a user's availability mode (offline, semiactive, active), creating the user's mode record if needed. Reports the previous mode.",
					InputSchema: packs.GenerateSchema[setModeInput](),
				},
				Handler: m.SetOrUpdate,
			},
		},
	}
}

type modeHandlers struct {
	store store.ModeStore
}

type setModeInput struct {
	UserPhone   string `json:"user_phone,omitempty" jsonschema_description:"Phone number of the user. Defaults to the sender."`
	DesiredMode string `json:"desired_mode" jsonschema:"enum=offline,enum=semiactive,enum=active" jsonschema_description:"The mode to switch to."`
}

type setModeOutput struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	NewMode      string `json:"new_mode"`
	PreviousMode string `json:"previous_mode,omitempty"`
}

func (m *modeHandlers) SetOrUpdate(ctx context.Context, session orchestrator.Session, input json.RawMessage) (json.RawMessage, error) {
	var in setModeInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	phone := strings.TrimSpace(in.UserPhone)
	if phone == "" {
		phone = session.SenderPhone
	}
	if phone == "" {
		return nil, errors.New("user_phone is required")
	}

	mode, err := store.ParseMode(in.DesiredMode)
	if err != nil {
		return nil, fmt.Errorf("Invalid mode: %s", in.DesiredMode)
	}

	current, err := m.store.GetUserMode(ctx, phone)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if err := m.store.SetUserMode(ctx, phone, mode); err != nil {
			return nil, err
		}
		return json.Marshal(setModeOutput{
			Success: true,
			Message: fmt.Sprintf("New user created with mode '%s'", mode),
			NewMode: string(mode),
		})
	case err != nil:
		return nil, err
	}

	if current.Mode == mode {
		return json.Marshal(setModeOutput{
			Success:      true,
			Message:      fmt.Sprintf("User is already in '%s' mode (no change).", mode),
			NewMode:      string(mode),
			PreviousMode: string(current.Mode),
		})
	}

	if err := m.store.SetUserMode(ctx, phone, mode); err != nil {
		return nil, err
	}
	return json.Marshal(setModeOutput{
		Success:      true,
		Message:      fmt.Sprintf("Mode changed from '%s' to '%s'", current.Mode, mode),
		NewMode:      string(mode),
		PreviousMode: string(current.Mode),
	})
}
