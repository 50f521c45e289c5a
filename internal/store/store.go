// ABOUTME: Store interfaces and data types for adjunct-gateway persistence
// ABOUTME: Defines profiles, chat messages, user modes, todos, agent records, and run usage

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateAgent is returned when an agent already exists for a user
var ErrDuplicateAgent = errors.New("agent already exists")

// ErrInvalidMode is returned for availability modes outside the known set
var ErrInvalidMode = errors.New("invalid mode")

// Profile is the public card of a user, keyed by phone number
type Profile struct {
	Phone     string    `json:"phone_number"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	About     string    `json:"about,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is a chat message exchanged between two users
type Message struct {
	ID            string    `json:"id"`
	SenderPhone   string    `json:"sender_phone"`
	ReceiverPhone string    `json:"receiver_phone"`
	Message       string    `json:"message"`
	IsAI          bool      `json:"is_ai"`
	IsRead        bool      `json:"is_read"`
	ReplyTo       string    `json:"reply_to_message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Mode is a user's availability state
type Mode string

const (
	ModeOffline    Mode = "offline"
	ModeSemiActive Mode = "semiactive"
	ModeActive     Mode = "active"
)

// ParseMode normalizes s and validates it against the known modes.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case ModeOffline, ModeSemiActive, ModeActive:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrInvalidMode, s)
	}
}

// UserMode records the current mode of a user
type UserMode struct {
	Phone     string
	Mode      Mode
	UpdatedAt time.Time
}

// Todo status values
const (
	TodoStatusPending   = "pending"
	TodoStatusCompleted = "completed"
)

// Todo is a reminder owned by a user. Repeat is "", "daily", "weekly" or "monthly".
type Todo struct {
	ID           string     `json:"id"`
	SenderPhone  string     `json:"sender_phone"`
	Title        string     `json:"title"`
	Status       string     `json:"status"`
	Repeat       string     `json:"repeat,omitempty"`
	ReminderTime *time.Time `json:"reminder_time,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Agent is the persisted record of a user's assistant
type Agent struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Name       string          `json:"agent_name"`
	CanSend    bool            `json:"can_send"`
	CanReceive bool            `json:"can_receive"`
	Metadata   json.RawMessage `json:"metadata"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// AgentMessage status values
const (
	AgentMessageSent = "sent"
)

// AgentMessage is a message delivered from one agent to another
type AgentMessage struct {
	ID              string    `json:"id"`
	SenderAgentID   string    `json:"sender_agent_id"`
	ReceiverAgentID string    `json:"receiver_agent_id"`
	Content         string    `json:"content"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// RunUsage records the cost of one orchestrator run
type RunUsage struct {
	ID             string    `json:"id"`
	SenderPhone    string    `json:"sender_phone"`
	ReceiverPhone  string    `json:"receiver_phone,omitempty"`
	FinalState     string    `json:"final_state"`
	ModelCalls     int       `json:"model_calls"`
	ToolDispatches int       `json:"tool_dispatches"`
	InputTokens    int64     `json:"input_tokens"`
	OutputTokens   int64     `json:"output_tokens"`
	CreatedAt      time.Time `json:"created_at"`
}

// UsageFilter narrows GetUsageStats. Nil fields match everything.
type UsageFilter struct {
	SenderPhone *string
	Since       *time.Time
	Until       *time.Time
}

// UsageStats aggregates run usage
type UsageStats struct {
	RunCount       int64 `json:"run_count"`
	ModelCalls     int64 `json:"model_calls"`
	ToolDispatches int64 `json:"tool_dispatches"`
	InputTokens    int64 `json:"input_tokens"`
	OutputTokens   int64 `json:"output_tokens"`
	TotalTokens    int64 `json:"total_tokens"`
}

// ProfileStore reads and writes user profiles
type ProfileStore interface {
	UpsertProfile(ctx context.Context, p *Profile) error
	GetProfile(ctx context.Context, phone string) (*Profile, error)
}

// MessageStore reads and writes chat messages
type MessageStore interface {
	CreateMessage(ctx context.Context, msg *Message) error
	GetLatestMessages(ctx context.Context, phoneA, phoneB string, limit int) ([]*Message, error)
}

// ModeStore reads and writes user availability modes
type ModeStore interface {
	GetUserMode(ctx context.Context, phone string) (*UserMode, error)
	SetUserMode(ctx context.Context, phone string, mode Mode) error
}

// TodoStore reads and writes user todos
type TodoStore interface {
	CreateTodo(ctx context.Context, todo *Todo) error
	ListTodosBySender(ctx context.Context, phone string) ([]*Todo, error)
	UpdateTodo(ctx context.Context, todo *Todo) error
}

// AgentStore reads and writes agent records and inter-agent messages
type AgentStore interface {
	GetAgentByUserID(ctx context.Context, userID string) (*Agent, error)
	CreateAgent(ctx context.Context, agent *Agent) error
	SaveAgentState(ctx context.Context, agentID string, metadata json.RawMessage) error
	CreateAgentMessage(ctx context.Context, msg *AgentMessage) error
	ListAgentMessages(ctx context.Context, agentID string, limit int) ([]*AgentMessage, error)
}

// UsageStore records and aggregates run usage
type UsageStore interface {
	SaveRunUsage(ctx context.Context, usage *RunUsage) error
	GetUsageStats(ctx context.Context, filter UsageFilter) (*UsageStats, error)
}

// Store is everything the gateway persists
type Store interface {
	ProfileStore
	MessageStore
	ModeStore
	TodoStore
	AgentStore
	UsageStore

	Ping(ctx context.Context) error
	Close() error
}
