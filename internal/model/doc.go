// Package model adapts language model backends to the orchestrator.
//
// AnthropicInvoker sends the accumulated conversation, the tool schemas, and
// the system prompt to the Anthropic Messages API with parallel tool use
// disabled, so each completion yields at most one tool call. A response whose
// content holds a tool_use block becomes a tool call; otherwise its text
// blocks are joined into the final answer.
//
// The invoker never receives the session. Tools that need the sender or
// receiver phone read it from the session at dispatch time.
package model
