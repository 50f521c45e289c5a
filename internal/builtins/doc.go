// Package builtins provides the assistant's built-in tool packs.
//
// # Tool Packs
//
// The package provides 4 packs with 5 tools:
//
// Chat Pack (builtin:chat):
//
//   - get_chat_with_profiles: Recent messages between sender and receiver plus both profiles
//   - send_message_to_user: Store a chat message, marked as AI-written by default
//
// Modes Pack (builtin:modes):
//
//   - set_or_update_user_mode: Switch a user between offline, semiactive, and active
//
// Todos Pack (builtin:todos):
//
//   - check_and_update_todos: Complete or roll over overdue reminders
//
// Mail Pack (builtin:mail), registered only when a mailer is configured:
//
//   - send_email_with_attachments: Send an email with optional CC, BCC, and attachments
//
// # Registration
//
//	builtins.RegisterAll(registry, builtins.Deps{Store: s, Mailer: m})
//
// # Session Defaults
//
// Handlers receive the orchestrator.Session of the request being answered.
// Phone arguments the model leaves empty fall back to the session's sender
// or receiver, so the model never has to repeat them.
package builtins
