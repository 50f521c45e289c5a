// ABOUTME: Tests for the adjunct-gateway command line helpers
// ABOUTME: Covers config init, token minting, logging, the HTTP client, and the chat loop

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/adjunct-gateway/internal/agent"
	"github.com/2389/adjunct-gateway/internal/auth"
	"github.com/2389/adjunct-gateway/internal/config"
	"github.com/2389/adjunct-gateway/internal/gateway"
	"github.com/2389/adjunct-gateway/internal/orchestrator"
	"github.com/2389/adjunct-gateway/internal/store"
)

func init() {
	color.NoColor = true
}

func TestInit_WritesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "gateway.yaml")

	require.NoError(t, runInit(path, nil))
	_, err := config.Load(path)
	require.NoError(t, err)

	err = runInit(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	require.NoError(t, runInit(path, []string{"-force"}))
}

func TestPrintToken(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printToken(&buf, "s3cret", "sms-bridge", time.Hour))

	sub, err := auth.NewJWTVerifier([]byte("s3cret")).Verify(strings.TrimSpace(buf.String()))
	require.NoError(t, err)
	assert.Equal(t, "sms-bridge", sub)

	assert.Error(t, printToken(&buf, "", "sms-bridge", time.Hour))
	assert.Error(t, printToken(&buf, "s3cret", "", time.Hour))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}

func TestSetupLogger_JSON(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "info", Format: "json"}, &buf)
	logger.Debug("hidden")
	logger.Info("hello", "user_id", "u1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "u1", entry["user_id"])
}

func TestColorHandler_AttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	h := &colorHandler{out: &buf, level: slog.LevelInfo}
	logger := slog.New(h).With("component", "agent").WithGroup("req")

	logger.Warn("slow", "ms", 1200)
	logger.Debug("dropped")

	out := buf.String()
	assert.Contains(t, out, "WRN slow")
	assert.Contains(t, out, " req.component=agent")
	assert.Contains(t, out, " req.ms=1200")
	assert.NotContains(t, out, "dropped")
}

func TestBaseURL(t *testing.T) {
	t.Setenv("ADJUNCT_GATEWAY_URL", "")
	cfg := &config.Config{Server: config.ServerConfig{HTTPAddr: "0.0.0.0:8080"}}
	assert.Equal(t, "http://localhost:8080", baseURL(cfg))

	t.Setenv("ADJUNCT_GATEWAY_URL", "https://gw.example.com/")
	assert.Equal(t, "https://gw.example.com", baseURL(cfg))
}

func TestCheckHealth(t *testing.T) {
	ready := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			_, _ = w.Write([]byte("OK"))
		case "/health/ready":
			w.WriteHeader(ready)
		}
	}))
	defer srv.Close()

	require.NoError(t, checkHealth(context.Background(), newClient(srv.URL)))

	ready = http.StatusServiceUnavailable
	require.NoError(t, checkHealth(context.Background(), newClient(srv.URL)))
}

func TestCheckHealth_Unhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	assert.Error(t, checkHealth(context.Background(), newClient(srv.URL)))
}

func TestAsk(t *testing.T) {
	t.Setenv("ADJUNCT_TOKEN", "tok")

	var got gateway.AskRequest
	var authHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		if got.Query == "fail" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"Missing required fields"}`))
			return
		}
		_, _ = w.Write([]byte(`{"reply":"It is sunny."}`))
	}))
	defer srv.Close()

	c := newClient(srv.URL)
	reply, err := ask(context.Background(), c, gateway.AskRequest{
		Query:         "weather?",
		SenderPhone:   "+15550001",
		ReceiverPhone: "+15550002",
		StoreReply:    boolPtr(false),
	})
	require.NoError(t, err)
	assert.Equal(t, "It is sunny.", reply)
	assert.Equal(t, "Bearer tok", authHeader)
	assert.Equal(t, "+15550001", got.SenderPhone)
	require.NotNil(t, got.StoreReply)
	assert.False(t, *got.StoreReply)

	_, err = ask(context.Background(), c, gateway.AskRequest{Query: "fail"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Missing required fields")
}

type echoReplier struct{}

func (echoReplier) Reply(_ context.Context, query string, _ orchestrator.Session) (string, error) {
	return "echo: " + query, nil
}

func newChatManager(t *testing.T) *agent.Manager {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return agent.NewManager(agent.ManagerConfig{Store: s, Replier: echoReplier{}})
}

func TestChatLoop(t *testing.T) {
	ctx := context.Background()
	mgr := newChatManager(t)

	self, err := mgr.GetOrCreate(ctx, "alice", agent.Options{})
	require.NoError(t, err)
	_, err = mgr.GetOrCreate(ctx, "bob", agent.Options{Name: "Bob"})
	require.NoError(t, err)

	in := strings.NewReader("hello\n\n@bob are you there?\n@bob\n/history\n/quit\nnever read\n")
	var out bytes.Buffer
	require.NoError(t, chatLoop(ctx, mgr, self, in, &out))

	transcript := out.String()
	assert.Contains(t, transcript, "Agent_alice: echo: hello")
	assert.Contains(t, transcript, "bob: echo: Message from alice: are you there?")
	assert.Contains(t, transcript, "error: usage: @USER TEXT")
	assert.Contains(t, transcript, "user: hello")
	assert.NotContains(t, transcript, "never read")
	assert.Len(t, self.History(), 2)
}

func TestChatLoop_EOF(t *testing.T) {
	ctx := context.Background()
	mgr := newChatManager(t)
	self, err := mgr.GetOrCreate(ctx, "alice", agent.Options{})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, chatLoop(ctx, mgr, self, strings.NewReader("@nobody hi\n"), &out))
	assert.Contains(t, out.String(), "error: ")
}
