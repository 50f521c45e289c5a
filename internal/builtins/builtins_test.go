// ABOUTME: Shared helpers and registration tests for the built-in packs.
// ABOUTME: Uses real SQLite store for integration testing.

package builtins

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/2389/adjunct-gateway/internal/mailer"
	"github.com/2389/adjunct-gateway/internal/orchestrator"
	"github.com/2389/adjunct-gateway/internal/packs"
	"github.com/2389/adjunct-gateway/internal/store"
)

var testSession = orchestrator.Session{SenderPhone: "+15550001", ReceiverPhone: "+15550002"}

func findHandler(pack *packs.BuiltinPack, name string) packs.ToolHandler {
	for _, tool := range pack.Tools {
		if tool.Definition.Name == name {
			return tool.Handler
		}
	}
	return nil
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "builtins.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fakeMailer records every email it is asked to send.
type fakeMailer struct {
	mu   sync.Mutex
	sent []*mailer.Email
	err  error
}

func (f *fakeMailer) Send(_ context.Context, email *mailer.Email) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, email)
	return "<fake-1@example.com>", nil
}

func TestRegisterAll(t *testing.T) {
	s := newTestStore(t)
	registry := packs.NewRegistry(nil)

	if err := RegisterAll(registry, Deps{Store: s, Mailer: &fakeMailer{}}); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}

	var names []string
	for _, def := range registry.Definitions() {
		names = append(names, def.Name)
	}
	sort.Strings(names)
	want := []string{
		"check_and_update_todos",
		"get_chat_with_profiles",
		"send_email_with_attachments",
		"send_message_to_user",
		"set_or_update_user_mode",
	}
	if len(names) != len(want) {
		t.Fatalf("expected %d tools, got %v", len(want), names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("tool %d: expected %s, got %s", i, want[i], names[i])
		}
	}
}

func TestRegisterAll_WithoutMailer(t *testing.T) {
	registry := packs.NewRegistry(nil)
	if err := RegisterAll(registry, Deps{Store: newTestStore(t)}); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}
	if registry.IsBuiltin("send_email_with_attachments") {
		t.Error("mail tool should not be registered without a mailer")
	}
	if !registry.IsBuiltin("get_chat_with_profiles") {
		t.Error("chat tool should be registered")
	}
}

func TestRegisterAll_RequiresStore(t *testing.T) {
	if err := RegisterAll(packs.NewRegistry(nil), Deps{}); err == nil {
		t.Error("expected error without a store")
	}
}

func TestRegisterAll_Twice(t *testing.T) {
	registry := packs.NewRegistry(nil)
	deps := Deps{Store: newTestStore(t)}
	if err := RegisterAll(registry, deps); err != nil {
		t.Fatalf("first RegisterAll: %v", err)
	}
	if err := RegisterAll(registry, deps); err == nil {
		t.Error("expected error registering the packs twice")
	}
}

func TestPackSchemasAreObjects(t *testing.T) {
	all := []*packs.BuiltinPack{
		ChatPack(newTestStore(t)),
		ModesPack(newTestStore(t)),
		TodosPack(newTestStore(t), nil),
		MailPack(&fakeMailer{}, ""),
	}
	for _, pack := range all {
		for _, tool := range pack.Tools {
			var schema map[string]any
			if err := json.Unmarshal(tool.Definition.InputSchema, &schema); err != nil {
				t.Fatalf("%s: invalid schema: %v", tool.Definition.Name, err)
			}
			if schema["type"] != "object" {
				t.Errorf("%s: expected object schema, got %v", tool.Definition.Name, schema["type"])
			}
			if tool.Handler == nil {
				t.Errorf("%s: missing handler", tool.Definition.Name)
			}
		}
	}
}
