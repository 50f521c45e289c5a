// ABOUTME: Tests for routing tool invocations to builtin handlers.
// ABOUTME: Covers success, unknown tools, bad input, handler errors, panics, and timeouts.

package packs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/adjunct-gateway/internal/orchestrator"
)

func newTestRouter(t *testing.T, timeout time.Duration, tools ...*BuiltinTool) *Router {
	t.Helper()
	registry := NewRegistry(slog.Default())
	require.NoError(t, registry.RegisterBuiltinPack(&BuiltinPack{ID: "builtin:test", Tools: tools}))
	return NewRouter(RouterConfig{Registry: registry, Logger: slog.Default(), Timeout: timeout})
}

func toolWith(name string, h ToolHandler) *BuiltinTool {
	tool := newTool(name)
	tool.Handler = h
	return tool
}

var session = orchestrator.Session{SenderPhone: "+1", ReceiverPhone: "+2"}

func TestRouter_DispatchSuccess(t *testing.T) {
	var gotSession orchestrator.Session
	var gotInput json.RawMessage
	router := newTestRouter(t, 0, toolWith("echo", func(ctx context.Context, s orchestrator.Session, input json.RawMessage) (json.RawMessage, error) {
		gotSession = s
		gotInput = input
		return input, nil
	}))

	out, err := router.Dispatch(context.Background(), orchestrator.ToolInvocation{ID: "c1", Name: "echo", Arguments: json.RawMessage(` {"a":1} `)}, session)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(out))
	assert.Equal(t, session, gotSession)
	assert.JSONEq(t, `{"a":1}`, string(gotInput))
}

func TestRouter_EmptyArgumentsBecomeObject(t *testing.T) {
	var gotInput json.RawMessage
	router := newTestRouter(t, 0, toolWith("echo", func(ctx context.Context, s orchestrator.Session, input json.RawMessage) (json.RawMessage, error) {
		gotInput = input
		return nil, nil
	}))

	for _, args := range []string{"", "null", "  "} {
		_, err := router.Dispatch(context.Background(), orchestrator.ToolInvocation{Name: "echo", Arguments: json.RawMessage(args)}, session)
		require.NoError(t, err)
		assert.Equal(t, "{}", string(gotInput))
	}
}

func TestRouter_UnknownTool(t *testing.T) {
	router := newTestRouter(t, 0, newTool("known"))

	_, err := router.Dispatch(context.Background(), orchestrator.ToolInvocation{Name: "unknown"}, session)
	require.Error(t, err)

	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, "unknown", toolErr.Tool)
	assert.ErrorIs(t, err, ErrToolNotFound)
	assert.Contains(t, err.Error(), "tool not found")
}

func TestRouter_InvalidArguments(t *testing.T) {
	called := false
	router := newTestRouter(t, 0, toolWith("strict", func(ctx context.Context, s orchestrator.Session, input json.RawMessage) (json.RawMessage, error) {
		called = true
		return nil, nil
	}))

	for _, args := range []string{`[1,2]`, `"text"`, `{"broken":`} {
		_, err := router.Dispatch(context.Background(), orchestrator.ToolInvocation{Name: "strict", Arguments: json.RawMessage(args)}, session)
		assert.ErrorIs(t, err, ErrInvalidArguments, "args %s", args)
	}
	assert.False(t, called)
}

func TestRouter_HandlerError(t *testing.T) {
	router := newTestRouter(t, 0, toolWith("fails", func(ctx context.Context, s orchestrator.Session, input json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("Invalid mode: busy")
	}))

	_, err := router.Dispatch(context.Background(), orchestrator.ToolInvocation{Name: "fails"}, session)
	require.Error(t, err)
	assert.Equal(t, "Invalid mode: busy", err.Error())
}

func TestRouter_HandlerPanic(t *testing.T) {
	router := newTestRouter(t, 0, toolWith("panics", func(ctx context.Context, s orchestrator.Session, input json.RawMessage) (json.RawMessage, error) {
		panic("boom")
	}))

	_, err := router.Dispatch(context.Background(), orchestrator.ToolInvocation{Name: "panics"}, session)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool panicked: boom")
}

func TestRouter_Timeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	router := newTestRouter(t, 20*time.Millisecond, toolWith("stuck", func(ctx context.Context, s orchestrator.Session, input json.RawMessage) (json.RawMessage, error) {
		<-release // ignores ctx on purpose
		return nil, nil
	}))

	start := time.Now()
	_, err := router.Dispatch(context.Background(), orchestrator.ToolInvocation{Name: "stuck"}, session)
	assert.ErrorIs(t, err, ErrToolTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRouter_PerToolTimeoutOverride(t *testing.T) {
	tool := toolWith("slow", func(ctx context.Context, s orchestrator.Session, input json.RawMessage) (json.RawMessage, error) {
		select {
		case <-time.After(50 * time.Millisecond):
			return json.RawMessage(`"done"`), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	tool.Definition.Timeout = time.Second
	router := newTestRouter(t, 10*time.Millisecond, tool)

	out, err := router.Dispatch(context.Background(), orchestrator.ToolInvocation{Name: "slow"}, session)
	require.NoError(t, err)
	assert.Equal(t, `"done"`, string(out))
}

func TestRouter_ToolsAndLookup(t *testing.T) {
	router := newTestRouter(t, 0, newTool("b_tool"), newTool("a_tool"))

	schemas := router.Tools()
	require.Len(t, schemas, 2)
	assert.Equal(t, "a_tool", schemas[0].Name)
	assert.Equal(t, "b_tool", schemas[1].Name)
	assert.JSONEq(t, `{"type":"object","properties":{}}`, string(schemas[0].InputSchema))

	assert.True(t, router.HasTool("a_tool"))
	assert.False(t, router.HasTool("c_tool"))
	assert.NotNil(t, router.GetToolDefinition("b_tool"))
	assert.Nil(t, router.GetToolDefinition("c_tool"))
}
