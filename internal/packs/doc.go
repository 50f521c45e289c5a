// Package packs provides the tool pack system the assistant calls into.
//
// # Overview
//
// Tool packs are collections of related tools the model can request. All
// packs are built in: their handlers run inside the gateway process.
//
// # Architecture
//
// The pack system has three main components:
//
//   - Registry: Tracks registered packs and rejects duplicate tool names
//   - Router: Implements orchestrator.ToolDispatcher over the registry
//   - Built-in packs: Gateway-provided tools (see internal/builtins)
//
// # Built-in Packs
//
//	builtin:chat  - get_chat_with_profiles, send_message_to_user
//	builtin:mail  - send_email_with_attachments
//	builtin:modes - set_or_update_user_mode
//	builtin:todos - check_and_update_todos
//
// # Tool Routing
//
// When the model calls a tool, the router:
//
//  1. Looks up the tool by name in the registry
//  2. Validates that the arguments are a JSON object
//  3. Runs the handler with the caller's session under a timeout
//  4. Returns the handler output, or a *ToolError the model can read
//
// # Usage
//
//	registry := packs.NewRegistry(logger)
//	builtins.RegisterAll(registry, deps)
//	router := packs.NewRouter(packs.RouterConfig{Registry: registry, Logger: logger})
//
//	out, err := router.Dispatch(ctx, invocation, session)
package packs
