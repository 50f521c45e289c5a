// Package mcp exposes the assistant's builtin tools over the Model Context Protocol.
//
// # Overview
//
// External MCP clients can call the same tools the orchestrator offers the
// model: chat history lookups, messaging, email, modes, and todos. Every MCP
// session is bound to the phone pair its tool calls act for.
//
// # Protocol
//
// JSON-RPC 2.0 over the Streamable HTTP transport, on a single endpoint:
//
//   - POST /mcp - initialize, ping, tools/list, tools/call, notifications
//   - DELETE /mcp - end the session named by Mcp-Session-Id
//
// Server-initiated SSE streams are not offered.
//
// # Sessions
//
// initialize must carry X-Sender-Phone and may carry X-Receiver-Phone. The
// response sets Mcp-Session-Id, which every later request repeats. Sessions
// expire after an idle hour.
//
// # Authentication
//
// When the gateway has a jwt_secret, every request needs
//
//	Authorization: Bearer <token>
//
// and a session may only be used by the token that created it.
//
// # Tool Errors
//
// Unknown tools and malformed params are JSON-RPC errors. A tool that runs
// and fails returns a normal result with isError set, so the calling model
// sees the message.
package mcp
