// Package gateway serves the adjunct-gateway HTTP API.
//
// # Overview
//
// The gateway owns the HTTP server and, when built with New, every component
// behind it: the SQLite store, the builtin tool packs and their router, the
// Anthropic model invoker, the orchestrator, and the agent manager. NewServices
// builds those components alone for callers that do not serve HTTP, such as
// the interactive chat command.
//
// # HTTP API
//
//   - GET /health - Liveness check, always "OK"
//   - GET /health/ready - Readiness check, pings the database
//   - POST /ask-ai - Answer a query for a sender/receiver pair
//   - POST /api/agents - Get or create a user's agent
//   - GET /api/agents/{user_id} - Show an agent
//   - GET /api/agents/{user_id}/messages - Messages sent or received by an agent
//   - POST /api/agents/messages - Send a message from one agent to another
//   - GET /api/usage - Model calls and tokens spent, filtered by sender_phone, since, until
//   - GET /metrics - Prometheus metrics, when metrics.enabled is set
//   - POST, DELETE /mcp - builtin tools over MCP, when mcp.enabled is set (see package mcp)
//
// # Ask
//
//	POST /ask-ai
//	{"query": "...", "sender_phone": "+1...", "receiver_phone": "+1..."}
//
//	200 {"reply": "..."}
//	400 {"error": "Missing JSON body"} | {"error": "Missing required fields"}
//	429 {"error": "rate limit exceeded"}
//
// The reply is also stored as an AI message from receiver to sender unless
// the request sets "store_reply": false. Model failures still answer 200 with
// the fixed apology text. A request carrying an Idempotency-Key header that
// the same sender already used within ten minutes gets the earlier reply.
//
// # Auth
//
// When auth.jwt_secret is set, /ask-ai and /api/* require an
// "Authorization: Bearer <token>" header (see package auth). Health and
// metrics endpoints stay open.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//	err = gw.Run(ctx) // returns after graceful shutdown
//
// # Key Files
//
//   - gateway.go: Gateway struct, routes, Run/Shutdown, health checks
//   - services.go: component wiring from config
//   - api.go: /ask-ai and /api/agents handlers
//   - ratelimit.go: per-sender token buckets
//   - middleware.go: request metrics and access logs
//   - usage.go: per-run usage recording and the usage endpoint
package gateway
