// ABOUTME: Built-in tool support for tools that execute in-process.
// ABOUTME: Defines tool definitions, handlers, and the packs that group them.

package packs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/2389/adjunct-gateway/internal/orchestrator"
)

// ToolDefinition describes a tool to the model.
type ToolDefinition struct {
	Name        string
	Description string
	// InputSchema is a JSON Schema object describing the arguments.
	InputSchema json.RawMessage
	// Timeout overrides the router default when positive.
	Timeout time.Duration
}

// ToolHandler is a function that executes a built-in tool.
// It receives the session the run acts for and the tool input as JSON.
// Returns the result as JSON or an error.
type ToolHandler func(ctx context.Context, session orchestrator.Session, input json.RawMessage) (json.RawMessage, error)

// BuiltinTool represents a tool that executes in the gateway process.
type BuiltinTool struct {
	Definition *ToolDefinition
	Handler    ToolHandler
}

// BuiltinPack is a collection of built-in tools with a pack ID.
type BuiltinPack struct {
	ID    string
	Tools []*BuiltinTool
}

// builtinEntry stores a builtin tool with its pack ID for registry lookup.
type builtinEntry struct {
	Tool   *BuiltinTool
	PackID string
}
