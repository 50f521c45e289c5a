// ABOUTME: Routes tool invocations from the orchestrator to builtin handlers.
// ABOUTME: Converts unknown tools, bad input, panics, and timeouts into ToolErrors.

package packs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/adjunct-gateway/internal/orchestrator"
)

// ErrToolNotFound indicates the requested tool is not registered.
var ErrToolNotFound = errors.New("tool not found")

// ErrInvalidArguments indicates the tool input was not a JSON object.
var ErrInvalidArguments = errors.New("invalid arguments")

// ErrToolTimeout indicates the handler did not finish in time.
var ErrToolTimeout = errors.New("tool timed out")

// DefaultTimeout is the default timeout for tool execution.
const DefaultTimeout = 30 * time.Second

// ToolError is a failed dispatch. Message is what the model is shown.
type ToolError struct {
	Tool    string
	Message string
	Err     error
}

func (e *ToolError) Error() string {
	return e.Message
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Ensure Router satisfies the orchestrator's dispatcher contract.
var _ orchestrator.ToolDispatcher = (*Router)(nil)

// Router routes tool calls to the registered builtin handlers.
type Router struct {
	registry *Registry
	logger   *slog.Logger
	timeout  time.Duration
}

// RouterConfig contains configuration options for the Router.
type RouterConfig struct {
	Registry *Registry
	Logger   *slog.Logger
	Timeout  time.Duration
}

// NewRouter creates a new Router with the given configuration.
func NewRouter(cfg RouterConfig) *Router {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Router{
		registry: cfg.Registry,
		logger:   logger.With("component", "router"),
		timeout:  timeout,
	}
}

// Tools returns the schemas of every registered tool, sorted by name.
func (r *Router) Tools() []orchestrator.ToolSchema {
	defs := r.registry.Definitions()
	out := make([]orchestrator.ToolSchema, 0, len(defs))
	for _, def := range defs {
		out = append(out, orchestrator.ToolSchema{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
		})
	}
	return out
}

// HasTool checks if a tool with the given name is registered.
func (r *Router) HasTool(toolName string) bool {
	return r.registry.IsBuiltin(toolName)
}

// GetToolDefinition returns the tool definition for a given tool name.
// Returns nil if the tool is not found.
func (r *Router) GetToolDefinition(toolName string) *ToolDefinition {
	if builtin := r.registry.GetBuiltinTool(toolName); builtin != nil {
		return builtin.Definition
	}
	return nil
}

type handlerResult struct {
	output json.RawMessage
	err    error
}

// Dispatch runs the named tool with the invocation's arguments.
// Every failure is returned as a *ToolError.
func (r *Router) Dispatch(ctx context.Context, inv orchestrator.ToolInvocation, session orchestrator.Session) (json.RawMessage, error) {
	builtin := r.registry.GetBuiltinTool(inv.Name)
	if builtin == nil {
		r.logger.Debug("tool not found in registry",
			"tool_name", inv.Name,
			"call_id", inv.ID,
		)
		return nil, &ToolError{
			Tool:    inv.Name,
			Message: fmt.Sprintf("tool not found: %s", inv.Name),
			Err:     ErrToolNotFound,
		}
	}

	input, err := normalizeInput(inv.Arguments)
	if err != nil {
		return nil, &ToolError{Tool: inv.Name, Message: err.Error(), Err: ErrInvalidArguments}
	}

	timeout := r.timeout
	if builtin.Definition.Timeout > 0 {
		timeout = builtin.Definition.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r.logger.Info("→ dispatching to builtin",
		"tool_name", inv.Name,
		"call_id", inv.ID,
		"sender", session.SenderPhone,
	)

	// Buffered so an abandoned handler can still finish and exit.
	done := make(chan handlerResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- handlerResult{err: fmt.Errorf("tool panicked: %v", p)}
			}
		}()
		out, err := builtin.Handler(ctx, session, input)
		done <- handlerResult{output: out, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			r.logger.Warn("builtin tool error",
				"tool_name", inv.Name,
				"call_id", inv.ID,
				"error", res.err,
			)
			if errors.Is(res.err, context.DeadlineExceeded) {
				return nil, &ToolError{Tool: inv.Name, Message: ErrToolTimeout.Error(), Err: ErrToolTimeout}
			}
			return nil, &ToolError{Tool: inv.Name, Message: res.err.Error(), Err: res.err}
		}
		r.logger.Info("← builtin responded",
			"tool_name", inv.Name,
			"call_id", inv.ID,
		)
		return res.output, nil
	case <-ctx.Done():
		r.logger.Warn("tool call timed out or cancelled",
			"tool_name", inv.Name,
			"call_id", inv.ID,
			"timeout", timeout,
			"error", ctx.Err(),
		)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &ToolError{Tool: inv.Name, Message: ErrToolTimeout.Error(), Err: ErrToolTimeout}
		}
		return nil, &ToolError{Tool: inv.Name, Message: "tool call cancelled", Err: ctx.Err()}
	}
}

// normalizeInput accepts an empty input as {} and rejects anything but a JSON object.
func normalizeInput(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("{}"), nil
	}
	if trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrInvalidArguments)
	}
	return json.RawMessage(trimmed), nil
}
