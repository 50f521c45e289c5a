// ABOUTME: Tests for the /ask-ai and /api/agents HTTP handlers.
// ABOUTME: Verifies request validation, reply storage, replay, rate limiting, and agent errors.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/adjunct-gateway/internal/agent"
	"github.com/2389/adjunct-gateway/internal/config"
	"github.com/2389/adjunct-gateway/internal/metrics"
	"github.com/2389/adjunct-gateway/internal/orchestrator"
	"github.com/2389/adjunct-gateway/internal/store"
)

const (
	alice = "+15550001"
	bob   = "+15550002"
)

func decodeError(t *testing.T, body []byte) string {
	t.Helper()
	var resp map[string]string
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp["error"]
}

func TestAskAI_Validation(t *testing.T) {
	tg := newTestGateway(t)

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"empty body", "", "Missing JSON body"},
		{"not JSON", "query=hi", "Missing JSON body"},
		{"missing query", `{"sender_phone":"+1","receiver_phone":"+2"}`, "Missing required fields"},
		{"blank query", `{"query":"  ","sender_phone":"+1","receiver_phone":"+2"}`, "Missing required fields"},
		{"missing sender", `{"query":"hi","receiver_phone":"+2"}`, "Missing required fields"},
		{"missing receiver", `{"query":"hi","sender_phone":"+1"}`, "Missing required fields"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tg.do(t, http.MethodPost, "/ask-ai", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantErr, decodeError(t, rec.Body.Bytes()))
		})
	}
	assert.Empty(t, tg.replier.Calls(), "invalid requests must not reach the model")
}

func TestAskAI_RepliesAndStores(t *testing.T) {
	tg := newTestGateway(t)
	tg.replier.reply = "It's sunny in Paris."

	rec := tg.do(t, http.MethodPost, "/ask-ai",
		`{"query":"What's the weather in Paris?","sender_phone":"+15550001","receiver_phone":"+15550002"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "It's sunny in Paris.", resp.Reply)

	calls := tg.replier.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "What's the weather in Paris?", calls[0].query)
	assert.Equal(t, orchestrator.Session{SenderPhone: alice, ReceiverPhone: bob}, calls[0].session)

	msgs, err := tg.store.GetLatestMessages(context.Background(), alice, bob, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, bob, msgs[0].SenderPhone)
	assert.Equal(t, alice, msgs[0].ReceiverPhone)
	assert.Equal(t, "It's sunny in Paris.", msgs[0].Message)
	assert.True(t, msgs[0].IsAI)
}

func TestAskAI_StoreReplyFalse(t *testing.T) {
	tg := newTestGateway(t)

	rec := tg.do(t, http.MethodPost, "/ask-ai",
		`{"query":"hi","sender_phone":"+15550001","receiver_phone":"+15550002","store_reply":false}`)
	require.Equal(t, http.StatusOK, rec.Code)

	msgs, err := tg.store.GetLatestMessages(context.Background(), alice, bob, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestAskAI_FixedFailureTextIsAReply(t *testing.T) {
	tg := newTestGateway(t)
	tg.replier.reply = orchestrator.ErrorMessage

	rec := tg.do(t, http.MethodPost, "/ask-ai",
		`{"query":"hi","sender_phone":"+15550001","receiver_phone":"+15550002"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, orchestrator.ErrorMessage, resp.Reply)
}

func TestAskAI_ReplierError(t *testing.T) {
	tg := newTestGateway(t)
	tg.replier.err = errors.New("boom")

	rec := tg.do(t, http.MethodPost, "/ask-ai",
		`{"query":"hi","sender_phone":"+15550001","receiver_phone":"+15550002"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decodeError(t, rec.Body.Bytes()))
}

func TestAskAI_IdempotencyKeyReplaysReply(t *testing.T) {
	tg := newTestGateway(t)
	body := `{"query":"hi","sender_phone":"+15550001","receiver_phone":"+15550002"}`

	first := tg.do(t, http.MethodPost, "/ask-ai", body, "Idempotency-Key", "req-1")
	require.Equal(t, http.StatusOK, first.Code)

	tg.replier.reply = "a different answer"
	second := tg.do(t, http.MethodPost, "/ask-ai", body, "Idempotency-Key", "req-1")
	require.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Len(t, tg.replier.Calls(), 1)

	msgs, err := tg.store.GetLatestMessages(context.Background(), alice, bob, 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 1, "a replayed reply is not stored again")

	third := tg.do(t, http.MethodPost, "/ask-ai", body, "Idempotency-Key", "req-2")
	require.Equal(t, http.StatusOK, third.Code)
	assert.Contains(t, third.Body.String(), "a different answer")
}

// gatedReplier blocks every Reply until release is closed.
type gatedReplier struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (g *gatedReplier) Reply(ctx context.Context, query string, session orchestrator.Session) (string, error) {
	if g.calls.Add(1) == 1 {
		close(g.started)
	}
	select {
	case <-g.release:
		return "only once", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestAskAI_ConcurrentIdempotencyKeyRunsOnce(t *testing.T) {
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "gateway.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	r := &gatedReplier{started: make(chan struct{}), release: make(chan struct{})}
	mgr := agent.NewManager(agent.ManagerConfig{Store: s, Replier: r})
	gw, err := NewWithDeps(testConfig(), Deps{Store: s, Replier: r, Agents: mgr, Metrics: metrics.New()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { gw.replies.Close() })
	tg := &testGateway{gw: gw, store: s}

	body := `{"query":"hi","sender_phone":"+15550001","receiver_phone":"+15550002"}`
	results := make(chan string, 2)
	var wg sync.WaitGroup
	send := func() {
		defer wg.Done()
		rec := tg.do(t, http.MethodPost, "/ask-ai", body, "Idempotency-Key", "same")
		results <- rec.Body.String()
	}

	wg.Add(2)
	go send()
	<-r.started
	go send()
	time.Sleep(50 * time.Millisecond)
	close(r.release)
	wg.Wait()
	close(results)

	for res := range results {
		assert.JSONEq(t, `{"reply":"only once"}`, res)
	}
	assert.Equal(t, int32(1), r.calls.Load())

	msgs, err := s.GetLatestMessages(context.Background(), alice, bob, 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestAskAI_FailedIdempotentRequestCanRetry(t *testing.T) {
	tg := newTestGateway(t)
	body := `{"query":"hi","sender_phone":"+15550001","receiver_phone":"+15550002"}`

	tg.replier.err = errors.New("boom")
	first := tg.do(t, http.MethodPost, "/ask-ai", body, "Idempotency-Key", "retry-me")
	require.Equal(t, http.StatusInternalServerError, first.Code)

	tg.replier.err = nil
	second := tg.do(t, http.MethodPost, "/ask-ai", body, "Idempotency-Key", "retry-me")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Contains(t, second.Body.String(), "Sure, done.")
	assert.Len(t, tg.replier.Calls(), 2)
}

func TestAskAI_RateLimited(t *testing.T) {
	tg := newTestGateway(t, func(c *config.Config) {
		c.RateLimit = config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2}
	})
	body := `{"query":"hi","sender_phone":"+15550001","receiver_phone":"+15550002"}`

	assert.Equal(t, http.StatusOK, tg.do(t, http.MethodPost, "/ask-ai", body).Code)
	assert.Equal(t, http.StatusOK, tg.do(t, http.MethodPost, "/ask-ai", body).Code)

	rec := tg.do(t, http.MethodPost, "/ask-ai", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Len(t, tg.replier.Calls(), 2)

	// Other senders have their own bucket
	other := `{"query":"hi","sender_phone":"+15550003","receiver_phone":"+15550002"}`
	assert.Equal(t, http.StatusOK, tg.do(t, http.MethodPost, "/ask-ai", other).Code)
}

func TestCreateAgent(t *testing.T) {
	tg := newTestGateway(t)

	rec := tg.do(t, http.MethodPost, "/api/agents", `{"user_id":"user-123456789","can_receive":false}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AgentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "user-123456789", resp.UserID)
	assert.Equal(t, "Agent_user-123", resp.AgentName)
	assert.True(t, resp.CanSend)
	assert.False(t, resp.CanReceive)

	// Creating again returns the same agent
	again := tg.do(t, http.MethodPost, "/api/agents", `{"user_id":"user-123456789","agent_name":"Other"}`)
	require.Equal(t, http.StatusOK, again.Code)
	var second AgentResponse
	require.NoError(t, json.Unmarshal(again.Body.Bytes(), &second))
	assert.Equal(t, resp.ID, second.ID)
	assert.Equal(t, "Agent_user-123", second.AgentName)
}

func TestCreateAgent_Validation(t *testing.T) {
	tg := newTestGateway(t)

	rec := tg.do(t, http.MethodPost, "/api/agents", `{"agent_name":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "user_id is required", decodeError(t, rec.Body.Bytes()))

	rec = tg.do(t, http.MethodPost, "/api/agents", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAgent(t *testing.T) {
	tg := newTestGateway(t)

	rec := tg.do(t, http.MethodGet, "/api/agents/u1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "agent not found", decodeError(t, rec.Body.Bytes()))

	_, err := tg.agents.GetOrCreate(context.Background(), "u1", agent.Options{Name: "Helper"})
	require.NoError(t, err)

	rec = tg.do(t, http.MethodGet, "/api/agents/u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp AgentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Helper", resp.AgentName)
}

func TestAgentMessage_Delivered(t *testing.T) {
	tg := newTestGateway(t)
	ctx := context.Background()
	tg.replier.reply = "Thanks, noted."

	for _, id := range []string{"alice", "bob"} {
		_, err := tg.agents.GetOrCreate(ctx, id, agent.Options{})
		require.NoError(t, err)
	}

	rec := tg.do(t, http.MethodPost, "/api/agents/messages", `{"from":"alice","to":"bob","message":"lunch at noon?"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AgentMessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "delivered", resp.Status)
	assert.Equal(t, "Thanks, noted.", resp.Reply)

	calls := tg.replier.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Message from alice: lunch at noon?", calls[0].query)

	list := tg.do(t, http.MethodGet, "/api/agents/bob/messages?limit=5", "")
	require.Equal(t, http.StatusOK, list.Code)
	var msgs AgentMessagesResponse
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &msgs))
	require.Len(t, msgs.Messages, 1)
	assert.Equal(t, "lunch at noon?", msgs.Messages[0].Content)
	assert.Equal(t, store.AgentMessageSent, msgs.Messages[0].Status)
}

func TestAgentMessage_Errors(t *testing.T) {
	tg := newTestGateway(t)
	ctx := context.Background()

	_, err := tg.agents.GetOrCreate(ctx, "alice", agent.Options{})
	require.NoError(t, err)
	_, err = tg.agents.GetOrCreate(ctx, "mute", agent.Options{Name: "Mute", CanReceive: boolPtr(false)})
	require.NoError(t, err)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantErr    string
	}{
		{"missing fields", `{"from":"alice","to":"mute"}`, http.StatusBadRequest, "from, to, and message are required"},
		{"unknown receiver", `{"from":"alice","to":"ghost","message":"hi"}`, http.StatusNotFound, "agent not found"},
		{"receiver refuses", `{"from":"alice","to":"mute","message":"hi"}`, http.StatusForbidden, "Agent 'Mute' cannot receive messages."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tg.do(t, http.MethodPost, "/api/agents/messages", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantErr, decodeError(t, rec.Body.Bytes()))
		})
	}
	assert.Empty(t, tg.replier.Calls())
}

func TestAgentMessages_BadLimit(t *testing.T) {
	tg := newTestGateway(t)

	rec := tg.do(t, http.MethodGet, "/api/agents/alice/messages?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = tg.do(t, http.MethodGet, "/api/agents/alice/messages", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func boolPtr(b bool) *bool { return &b }
