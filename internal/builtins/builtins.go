// ABOUTME: Registers the built-in tool packs with a pack registry.
// ABOUTME: The mail pack is skipped when no mailer is configured.

package builtins

import (
	"fmt"
	"time"

	"github.com/2389/adjunct-gateway/internal/mailer"
	"github.com/2389/adjunct-gateway/internal/packs"
	"github.com/2389/adjunct-gateway/internal/store"
)

// ToolStore is the persistence every built-in pack needs together.
type ToolStore interface {
	store.ProfileStore
	store.MessageStore
	store.ModeStore
	store.TodoStore
}

// Deps holds what the built-in packs run against.
type Deps struct {
	Store    ToolStore
	Mailer   mailer.Mailer
	MailFrom string
	// Now overrides the clock used by the todos pack.
	Now func() time.Time
}

// RegisterAll registers every built-in pack whose dependencies are present.
func RegisterAll(registry *packs.Registry, deps Deps) error {
	if deps.Store == nil {
		return fmt.Errorf("builtins: store is required")
	}

	all := []*packs.BuiltinPack{
		ChatPack(deps.Store),
		ModesPack(deps.Store),
		TodosPack(deps.Store, deps.Now),
	}
	if deps.Mailer != nil {
		all = append(all, MailPack(deps.Mailer, deps.MailFrom))
	}

	for _, pack := range all {
		if err := registry.RegisterBuiltinPack(pack); err != nil {
			return fmt.Errorf("registering %s: %w", pack.ID, err)
		}
	}
	return nil
}
