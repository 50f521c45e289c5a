// ABOUTME: Manages per-user agents, their persisted state, and messages between them.
// ABOUTME: Agents are cached for the life of the process and never evicted.

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/2389/adjunct-gateway/internal/orchestrator"
	"github.com/2389/adjunct-gateway/internal/store"
)

// ErrAgentNotFound indicates the specified agent was not found.
var ErrAgentNotFound = errors.New("agent not found")

// ErrPermissionDenied matches errors from agents that may not send or receive.
var ErrPermissionDenied = errors.New("permission denied")

// permissionError carries the user-facing reason a message was refused.
type permissionError struct {
	msg string
}

func (e *permissionError) Error() string { return e.msg }

func (e *permissionError) Is(target error) bool { return target == ErrPermissionDenied }

// maxHistory bounds the chat history kept in an agent's metadata.
const maxHistory = 50

// historyKey is the metadata field holding the chat history.
const historyKey = "chat_history"

// Replier answers a query on behalf of a session.
type Replier interface {
	Reply(ctx context.Context, query string, session orchestrator.Session) (string, error)
}

// HistoryEntry is one line of an agent's chat history.
type HistoryEntry struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Agent is a cached user agent with its in-memory chat history.
type Agent struct {
	mu       sync.Mutex
	record   store.Agent
	metadata map[string]json.RawMessage
	history  []HistoryEntry
}

// UserID returns the user the agent acts for.
func (a *Agent) UserID() string { return a.record.UserID }

// Name returns the agent's display name.
func (a *Agent) Name() string { return a.record.Name }

// Record returns a copy of the agent's stored record.
func (a *Agent) Record() store.Agent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.record
}

// History returns a copy of the agent's chat history.
func (a *Agent) History() []HistoryEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]HistoryEntry, len(a.history))
	copy(out, a.history)
	return out
}

func (a *Agent) appendHistory(entries ...HistoryEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, entries...)
	if over := len(a.history) - maxHistory; over > 0 {
		a.history = append([]HistoryEntry(nil), a.history[over:]...)
	}
}

// Options customize a newly created agent. Existing agents ignore them.
type Options struct {
	Name       string
	CanSend    *bool
	CanReceive *bool
}

// ManagerConfig holds a Manager's collaborators.
type ManagerConfig struct {
	Store   store.AgentStore
	Replier Replier
	Logger  *slog.Logger
}

// Manager coordinates user agents and routes messages between them.
type Manager struct {
	store   store.AgentStore
	replier Replier
	agents  map[string]*Agent
	mu      sync.Mutex
	logger  *slog.Logger
}

// NewManager creates a new Manager instance.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:   cfg.Store,
		replier: cfg.Replier,
		agents:  make(map[string]*Agent),
		logger:  logger.With("component", "agent"),
	}
}

// DefaultName is the name given to an agent created without one.
func DefaultName(userID string) string {
	prefix := userID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return "Agent_" + prefix
}

// GetOrCreate returns the cached agent for userID, loading it from the store
// or creating it on first use.
func (m *Manager) GetOrCreate(ctx context.Context, userID string, opts Options) (*Agent, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("user_id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if a, ok := m.agents[userID]; ok {
		return a, nil
	}

	rec, err := m.store.GetAgentByUserID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		rec, err = m.create(ctx, userID, opts)
	}
	if err != nil {
		return nil, err
	}
	return m.cacheLocked(userID, rec)
}

// Get returns the agent for userID without creating it.
func (m *Manager) Get(ctx context.Context, userID string) (*Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a, ok := m.agents[userID]; ok {
		return a, nil
	}

	rec, err := m.store.GetAgentByUserID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, userID)
	}
	if err != nil {
		return nil, err
	}
	return m.cacheLocked(userID, rec)
}

// Must be called with mu held.
func (m *Manager) cacheLocked(userID string, rec *store.Agent) (*Agent, error) {
	a, err := newAgent(rec)
	if err != nil {
		return nil, err
	}
	m.agents[userID] = a
	return a, nil
}

func (m *Manager) create(ctx context.Context, userID string, opts Options) (*store.Agent, error) {
	rec := &store.Agent{
		UserID:     userID,
		Name:       strings.TrimSpace(opts.Name),
		CanSend:    true,
		CanReceive: true,
	}
	if rec.Name == "" {
		rec.Name = DefaultName(userID)
	}
	if opts.CanSend != nil {
		rec.CanSend = *opts.CanSend
	}
	if opts.CanReceive != nil {
		rec.CanReceive = *opts.CanReceive
	}

	if err := m.store.CreateAgent(ctx, rec); err != nil {
		if errors.Is(err, store.ErrDuplicateAgent) {
			return m.store.GetAgentByUserID(ctx, userID)
		}
		return nil, fmt.Errorf("creating agent: %w", err)
	}

	m.logger.Info("=== AGENT CREATED ===",
		"agent_id", rec.ID,
		"user_id", userID,
		"name", rec.Name,
		"can_send", rec.CanSend,
		"can_receive", rec.CanReceive,
	)
	return rec, nil
}

func newAgent(rec *store.Agent) (*Agent, error) {
	a := &Agent{record: *rec, metadata: map[string]json.RawMessage{}}
	if len(rec.Metadata) > 0 {
		if err := json.Unmarshal(rec.Metadata, &a.metadata); err != nil {
			return nil, fmt.Errorf("agent %s: invalid metadata: %w", rec.ID, err)
		}
	}
	if raw, ok := a.metadata[historyKey]; ok {
		if err := json.Unmarshal(raw, &a.history); err != nil {
			return nil, fmt.Errorf("agent %s: invalid chat history: %w", rec.ID, err)
		}
	}
	return a, nil
}

// Cached returns the agent for userID if it is already loaded.
func (m *Manager) Cached(userID string) (*Agent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[userID]
	return a, ok
}

// SaveState persists the agent's metadata, chat history included.
func (m *Manager) SaveState(ctx context.Context, a *Agent) error {
	a.mu.Lock()
	history, err := json.Marshal(a.history)
	if err != nil {
		a.mu.Unlock()
		return fmt.Errorf("encoding chat history: %w", err)
	}
	if a.history == nil {
		history = json.RawMessage(`[]`)
	}
	a.metadata[historyKey] = history
	metadata, err := json.Marshal(a.metadata)
	if err == nil {
		a.record.Metadata = metadata
	}
	agentID := a.record.ID
	a.mu.Unlock()

	if err != nil {
		return fmt.Errorf("encoding agent metadata: %w", err)
	}
	if err := m.store.SaveAgentState(ctx, agentID, metadata); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrAgentNotFound
		}
		return err
	}
	return nil
}

// ProcessTask answers task as the agent's user and records the exchange.
func (m *Manager) ProcessTask(ctx context.Context, a *Agent, task string) (string, error) {
	return m.process(ctx, a, task, orchestrator.Session{SenderPhone: a.UserID()})
}

func (m *Manager) process(ctx context.Context, a *Agent, task string, session orchestrator.Session) (string, error) {
	if m.replier == nil {
		return "", errors.New("agent manager has no replier")
	}

	started := time.Now()
	reply, err := m.replier.Reply(ctx, task, session)
	if err != nil {
		return "", err
	}

	a.appendHistory(
		HistoryEntry{Role: "user", Content: task, At: started},
		HistoryEntry{Role: "assistant", Content: reply, At: time.Now()},
	)
	if err := m.SaveState(ctx, a); err != nil {
		m.logger.Warn("failed to save agent state",
			"user_id", a.UserID(),
			"error", err,
		)
	}
	return reply, nil
}

// SendMessage delivers text from one user's agent to another's, records it,
// and returns the receiving agent's reply.
func (m *Manager) SendMessage(ctx context.Context, fromUser, toUser, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("message is required")
	}

	sender, err := m.lookup(ctx, fromUser)
	if err != nil {
		return "", err
	}
	receiver, err := m.lookup(ctx, toUser)
	if err != nil {
		return "", err
	}

	if !sender.CanSend {
		return "", &permissionError{msg: fmt.Sprintf("Agent '%s' is not allowed to send messages.", sender.Name)}
	}
	if !receiver.CanReceive {
		return "", &permissionError{msg: fmt.Sprintf("Agent '%s' cannot receive messages.", receiver.Name)}
	}

	msg := &store.AgentMessage{
		SenderAgentID:   sender.ID,
		ReceiverAgentID: receiver.ID,
		Content:         text,
		Status:          store.AgentMessageSent,
	}
	if err := m.store.CreateAgentMessage(ctx, msg); err != nil {
		return "", fmt.Errorf("recording agent message: %w", err)
	}

	m.logger.Info("agent message sent",
		"message_id", msg.ID,
		"from", fromUser,
		"to", toUser,
	)

	target, err := m.GetOrCreate(ctx, toUser, Options{})
	if err != nil {
		return "", err
	}
	task := fmt.Sprintf("Message from %s: %s", fromUser, text)
	return m.process(ctx, target, task, orchestrator.Session{SenderPhone: toUser, ReceiverPhone: fromUser})
}

// Messages returns the most recent messages sent or received by a user's agent.
func (m *Manager) Messages(ctx context.Context, userID string, limit int) ([]*store.AgentMessage, error) {
	rec, err := m.lookup(ctx, userID)
	if err != nil {
		return nil, err
	}
	return m.store.ListAgentMessages(ctx, rec.ID, limit)
}

// lookup reads the current stored record so permission changes apply immediately.
func (m *Manager) lookup(ctx context.Context, userID string) (*store.Agent, error) {
	rec, err := m.store.GetAgentByUserID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, userID)
	}
	return rec, err
}
