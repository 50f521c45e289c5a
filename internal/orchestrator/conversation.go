// ABOUTME: Conversation turns accumulated during a single orchestration run.
// ABOUTME: Append-only; tool invocations are always paired with their result turn.

package orchestrator

import (
	"encoding/json"
	"fmt"
)

// TurnKind identifies which side of the conversation produced a turn.
type TurnKind int

const (
	// TurnUser carries the query that started the run.
	TurnUser TurnKind = iota
	// TurnModel carries a model output: a tool invocation or final text.
	TurnModel
	// TurnToolResult carries the outcome of dispatching a tool invocation.
	TurnToolResult
)

func (k TurnKind) String() string {
	switch k {
	case TurnUser:
		return "user"
	case TurnModel:
		return "model"
	case TurnToolResult:
		return "tool_result"
	default:
		return fmt.Sprintf("TurnKind(%d)", int(k))
	}
}

// ToolInvocation is a model's request to run a named tool.
type ToolInvocation struct {
	// ID correlates the invocation with its result for backends that need it.
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolResult is the outcome of a dispatch. Exactly one of Payload or Error is set.
type ToolResult struct {
	ToolName string
	CallID   string
	Payload  json.RawMessage
	Error    string
}

// IsError reports whether the dispatch failed.
func (r ToolResult) IsError() bool {
	return r.Error != ""
}

// Content renders the result the way it is shown to the model.
func (r ToolResult) Content() string {
	if r.IsError() {
		return r.Error
	}
	return string(r.Payload)
}

// Turn is one recorded step of the conversation.
type Turn struct {
	Kind TurnKind

	// Text is the user query for TurnUser or the final answer for a text TurnModel.
	Text string

	// Invocation is set on a TurnModel that requested a tool.
	Invocation *ToolInvocation

	// Result is set on a TurnToolResult.
	Result *ToolResult
}

// Conversation is the ordered, append-only context for one run.
type Conversation struct {
	turns []Turn
}

// NewConversation starts a conversation with the user's query.
func NewConversation(query string) *Conversation {
	return &Conversation{turns: []Turn{{Kind: TurnUser, Text: query}}}
}

// Turns returns a deep copy of the accumulated turns. Callers may modify it
// without affecting the conversation.
func (c *Conversation) Turns() []Turn {
	out := make([]Turn, len(c.turns))
	for i, t := range c.turns {
		out[i] = t.clone()
	}
	return out
}

func (t Turn) clone() Turn {
	if t.Invocation != nil {
		inv := *t.Invocation
		inv.Arguments = cloneRaw(inv.Arguments)
		t.Invocation = &inv
	}
	if t.Result != nil {
		res := *t.Result
		res.Payload = cloneRaw(res.Payload)
		t.Result = &res
	}
	return t
}

func cloneRaw(b json.RawMessage) json.RawMessage {
	if b == nil {
		return nil
	}
	return append(json.RawMessage(nil), b...)
}

// Len returns the number of turns recorded so far.
func (c *Conversation) Len() int {
	return len(c.turns)
}

// appendText records a final textual model answer.
func (c *Conversation) appendText(text string) {
	c.turns = append(c.turns, Turn{Kind: TurnModel, Text: text})
}

// appendExchange records a tool invocation immediately followed by its result.
// The pair is appended together so no model call can observe one without the other.
func (c *Conversation) appendExchange(inv ToolInvocation, res ToolResult) {
	invCopy := inv
	resCopy := res
	c.turns = append(c.turns,
		Turn{Kind: TurnModel, Invocation: &invCopy},
		Turn{Kind: TurnToolResult, Result: &resCopy},
	)
}
