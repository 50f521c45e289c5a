// ABOUTME: Chat pack reads conversation history and relays messages between users.
// ABOUTME: Both tools act for the session's sender and receiver.

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

// DefaultChatLimit is the number of messages get_chat_with_profiles returns by default.
const DefaultChatLimit = 10

// maxChatLimit caps how much history a single call may pull into the model context.
const maxChatLimit = 100

// ChatStore is the persistence the chat pack needs.
type ChatStore interface {
	store.ProfileStore
	store.MessageStore
}

// ChatPack creates the chat pack with history and messaging tools.
func ChatPack(s ChatStore) *packs.BuiltinPack {
	c := &chatHandlers{store: s}
	return &packs.BuiltinPack{
		ID: "builtin:chat",
		Tools: []*packs.BuiltinTool{
			{
				Definition: &packs.ToolDefinition{
					Name:        "get_chat_with_profiles",
					Description: "Retrieve recent messages between the sender and receiver along with both users' profile info.",
					InputSchema: packs.GenerateSchema[chatHistoryInput](),
				},
				Handler: c.GetChatWithProfiles,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:        "send_message_to_user",
					Description: "Send a chat message from the sender to another user, marked as written by the assistant unless is_ai is false.",
					InputSchema: packs.GenerateSchema[sendMessageInput](),
				},
				Handler: c.SendMessage,
			},
		},
	}
}

type chatHandlers struct {
	store ChatStore
}

type chatHistoryInput struct {
	Limit int `json:"limit,omitempty" jsonschema_description:"Maximum number of recent messages to retrieve (default 10)."`
}

type chatHistoryOutput struct {
	Messages        []*store.Message `json:"messages"`
	SenderProfile   *store.Profile   `json:"sender_profile"`
	ReceiverProfile *store.Profile   `json:"receiver_profile"`
}

func (c *chatHandlers) GetChatWithProfiles(ctx context.Context, session orchestrator.Session, input json.RawMessage) (json.RawMessage, error) {
	var in chatHistoryInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	if session.SenderPhone == "" || session.ReceiverPhone == "" {
		return nil, errors.New("missing sender_phone or receiver_phone")
	}

	limit := in.Limit
	if limit <= 0 {
		limit = DefaultChatLimit
	}
	if limit > maxChatLimit {
		limit = maxChatLimit
	}

	messages, err := c.store.GetLatestMessages(ctx, session.SenderPhone, session.ReceiverPhone, limit)
	if err != nil {
		return nil, err
	}

	out := chatHistoryOutput{Messages: messages}
	if out.SenderProfile, err = c.optionalProfile(ctx, session.SenderPhone); err != nil {
		return nil, err
	}
	if out.ReceiverProfile, err = c.optionalProfile(ctx, session.ReceiverPhone); err != nil {
		return nil, err
	}

	return json.Marshal(out)
}

// optionalProfile returns nil without error when the user has no profile.
func (c *chatHandlers) optionalProfile(ctx context.Context, phone string) (*store.Profile, error) {
	p, err := c.store.GetProfile(ctx, phone)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

type sendMessageInput struct {
	ReceiverPhone  string `json:"receiver_phone,omitempty" jsonschema_description:"Phone number of the recipient. Defaults to the user the sender is chatting with."`
	Message        string `json:"message" jsonschema_description:"Text of the message to send."`
	IsAI           *bool  `json:"is_ai,omitempty" jsonschema_description:"Whether the message is marked as written by the assistant (default true)."`
	ReplyToMessage string `json:"reply_to_message,omitempty" jsonschema_description:"Optional ID of the message being replied to."`
}

func (c *chatHandlers) SendMessage(ctx context.Context, session orchestrator.Session, input json.RawMessage) (json.RawMessage, error) {
	var in sendMessageInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	receiver := strings.TrimSpace(in.ReceiverPhone)
	if receiver == "" {
		receiver = session.ReceiverPhone
	}
	if session.SenderPhone == "" {
		return nil, errors.New("sender_phone is required")
	}
	if receiver == "" {
		return nil, errors.New("receiver_phone is required")
	}
	if strings.TrimSpace(in.Message) == "" {
		return nil, errors.New("message is required")
	}

	isAI := true
	if in.IsAI != nil {
		isAI = *in.IsAI
	}

	msg := &store.Message{
		SenderPhone:   session.SenderPhone,
		ReceiverPhone: receiver,
		Message:       in.Message,
		IsAI:          isAI,
		ReplyTo:       in.ReplyToMessage,
	}
	if err := c.store.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}

	return json.Marshal(map[string]any{"success": true, "message": msg})
}
