// Package store provides persistent storage for the gateway using SQLite.
//
// # Architecture
//
// The store package uses small interfaces grouped by concern:
//
//   - ProfileStore: public user profiles keyed by phone number
//   - MessageStore: chat messages between two users
//   - ModeStore: per-user availability mode (offline, semiactive, active)
//   - TodoStore: reminders with optional daily/weekly/monthly repeat
//   - AgentStore: per-user agents and the messages they exchange
//   - UsageStore: model calls and tokens spent by each assistant run
//
// SQLiteStore implements all of them (the Store interface) in a single struct.
//
// # Conventions
//
// IDs are UUIDv4 strings generated on insert when empty. Timestamps are stored
// as fixed-width UTC text so ordering by column matches chronological order.
// Lookups of missing rows return ErrNotFound.
//
// # Usage
//
//	s, err := store.NewSQLiteStore("/var/lib/adjunct/gateway.db")
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	msgs, err := s.GetLatestMessages(ctx, sender, receiver, 10)
package store
