// Package agent manages the per-user agents of the messaging assistant.
//
// # Manager
//
// The Manager keeps every agent it has loaded in an in-memory cache keyed by
// user ID. Entries live for the life of the process and are never evicted:
//
//	mgr := agent.NewManager(agent.ManagerConfig{Store: s, Replier: orch})
//
// Key operations:
//
//   - GetOrCreate(ctx, userID, opts): Load or create a user's agent
//   - SaveState(ctx, agent): Persist metadata and chat history
//   - ProcessTask(ctx, agent, task): Answer a task as the agent's user
//   - SendMessage(ctx, from, to, text): Deliver a message between agents
//   - Messages(ctx, userID, limit): Recent messages of a user's agent
//
// # Permissions
//
// An agent with can_send disabled cannot originate messages and an agent with
// can_receive disabled cannot be messaged. Refusals match ErrPermissionDenied
// and carry a readable reason. Permissions are read from the store on every
// send, so changes take effect without restarting.
//
// # Chat History
//
// Each processed task appends a user and an assistant entry to the agent's
// history, which is stored under the "chat_history" key of the agent's
// metadata. Only the most recent entries are kept.
package agent
