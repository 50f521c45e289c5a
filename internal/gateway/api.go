// ABOUTME: HTTP API handlers for asking the assistant and for agent-to-agent messaging.
// ABOUTME: Provides POST /ask-ai and the /api/agents endpoints.

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/2389/adjunct-gateway/internal/agent"
	"github.com/2389/adjunct-gateway/internal/orchestrator"
	"github.com/2389/adjunct-gateway/internal/store"
)

// maxBodyBytes bounds request bodies on the JSON endpoints.
const maxBodyBytes = 1 << 20

// AskRequest is the JSON request body for POST /ask-ai.
type AskRequest struct {
	Query         string `json:"query"`
	SenderPhone   string `json:"sender_phone"`
	ReceiverPhone string `json:"receiver_phone"`
	// StoreReply saves the reply as an AI message to the sender. Defaults to true.
	StoreReply *bool `json:"store_reply,omitempty"`
}

// AskResponse is the JSON response for POST /ask-ai.
type AskResponse struct {
	Reply string `json:"reply"`
}

// CreateAgentRequest is the JSON request body for POST /api/agents.
type CreateAgentRequest struct {
	UserID     string `json:"user_id"`
	AgentName  string `json:"agent_name,omitempty"`
	CanSend    *bool  `json:"can_send,omitempty"`
	CanReceive *bool  `json:"can_receive,omitempty"`
}

// AgentResponse is the JSON representation of an agent.
type AgentResponse struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	AgentName    string `json:"agent_name"`
	CanSend      bool   `json:"can_send"`
	CanReceive   bool   `json:"can_receive"`
	HistoryCount int    `json:"history_count"`
	CreatedAt    string `json:"created_at"`
}

// AgentMessageRequest is the JSON request body for POST /api/agents/messages.
type AgentMessageRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Message string `json:"message"`
}

// AgentMessageResponse is the JSON response for POST /api/agents/messages.
type AgentMessageResponse struct {
	Status string `json:"status"`
	Reply  string `json:"reply"`
}

// AgentMessagesResponse is the JSON response for GET /api/agents/{user_id}/messages.
type AgentMessagesResponse struct {
	Messages []*store.AgentMessage `json:"messages"`
}

// sendJSON writes v as a JSON response with the given status.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("failed to write response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, map[string]string{"error": message})
}

// decodeBody decodes a JSON body into v. It reports false for an empty or
// malformed body.
func decodeBody(r *http.Request, v any) bool {
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return false
	}
	return true
}

// handleAskAI handles POST /ask-ai. It runs the model/tool loop for the
// sender and returns the reply text. Model failures are reported inside the
// reply, never as an HTTP error.
func (g *Gateway) handleAskAI(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if !decodeBody(r, &req) {
		g.sendJSONError(w, http.StatusBadRequest, "Missing JSON body")
		return
	}

	req.Query = strings.TrimSpace(req.Query)
	req.SenderPhone = strings.TrimSpace(req.SenderPhone)
	req.ReceiverPhone = strings.TrimSpace(req.ReceiverPhone)
	if req.Query == "" || req.SenderPhone == "" || req.ReceiverPhone == "" {
		g.sendJSONError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	if !g.limiter.Allow(req.SenderPhone) {
		w.Header().Set("Retry-After", "1")
		g.sendJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	// A retried request with the same key gets the reply already produced.
	if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
		replayKey := "ask:" + req.SenderPhone + ":" + key
		reply, found, err := g.claimReply(r.Context(), replayKey)
		if err != nil {
			g.sendJSONError(w, http.StatusServiceUnavailable, "request canceled")
			return
		}
		if found {
			g.logger.Debug("replaying cached reply", "sender", req.SenderPhone)
			g.sendJSON(w, http.StatusOK, AskResponse{Reply: reply})
			return
		}
		var ok bool
		defer func() { g.releaseReply(replayKey, reply, ok) }()
		reply, ok = g.answer(w, r, req)
		return
	}
	g.answer(w, r, req)
}

// answer runs the loop for req and writes the response. It reports whether
// a reply was produced.
func (g *Gateway) answer(w http.ResponseWriter, r *http.Request, req AskRequest) (string, bool) {
	session := orchestrator.Session{
		SenderPhone:   req.SenderPhone,
		ReceiverPhone: req.ReceiverPhone,
	}
	reply, err := g.replier.Reply(r.Context(), req.Query, session)
	if err != nil {
		if errors.Is(err, orchestrator.ErrEmptyQuery) {
			g.sendJSONError(w, http.StatusBadRequest, "Missing required fields")
			return "", false
		}
		g.logger.Error("reply failed", "sender", req.SenderPhone, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return "", false
	}

	if req.StoreReply == nil || *req.StoreReply {
		msg := &store.Message{
			SenderPhone:   req.ReceiverPhone,
			ReceiverPhone: req.SenderPhone,
			Message:       reply,
			IsAI:          true,
		}
		if err := g.store.CreateMessage(r.Context(), msg); err != nil {
			g.logger.Warn("failed to store reply",
				"sender", req.SenderPhone,
				"error", err,
			)
		}
	}

	g.sendJSON(w, http.StatusOK, AskResponse{Reply: reply})
	return reply, true
}

func toAgentResponse(a *agent.Agent) AgentResponse {
	rec := a.Record()
	return AgentResponse{
		ID:           rec.ID,
		UserID:       rec.UserID,
		AgentName:    rec.Name,
		CanSend:      rec.CanSend,
		CanReceive:   rec.CanReceive,
		HistoryCount: len(a.History()),
		CreatedAt:    rec.CreatedAt.Format(time.RFC3339),
	}
}

// handleCreateAgent handles POST /api/agents. It returns the user's agent,
// creating it with the requested settings if it does not exist yet.
func (g *Gateway) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req CreateAgentRequest
	if !decodeBody(r, &req) {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		g.sendJSONError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	a, err := g.agents.GetOrCreate(r.Context(), req.UserID, agent.Options{
		Name:       req.AgentName,
		CanSend:    req.CanSend,
		CanReceive: req.CanReceive,
	})
	if err != nil {
		g.logger.Error("failed to get or create agent", "user_id", req.UserID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	g.sendJSON(w, http.StatusOK, toAgentResponse(a))
}

// handleGetAgent handles GET /api/agents/{user_id}.
func (g *Gateway) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")

	a, err := g.agents.Get(r.Context(), userID)
	if err != nil {
		g.sendAgentError(w, userID, err)
		return
	}
	g.sendJSON(w, http.StatusOK, toAgentResponse(a))
}

// handleAgentMessages handles GET /api/agents/{user_id}/messages?limit=N.
func (g *Gateway) handleAgentMessages(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			g.sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	msgs, err := g.agents.Messages(r.Context(), userID, limit)
	if err != nil {
		g.sendAgentError(w, userID, err)
		return
	}
	if msgs == nil {
		msgs = []*store.AgentMessage{}
	}
	g.sendJSON(w, http.StatusOK, AgentMessagesResponse{Messages: msgs})
}

// handleAgentMessage handles POST /api/agents/messages. The receiving agent
// answers the message and its reply is returned.
func (g *Gateway) handleAgentMessage(w http.ResponseWriter, r *http.Request) {
	var req AgentMessageRequest
	if !decodeBody(r, &req) {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.From) == "" || strings.TrimSpace(req.To) == "" || strings.TrimSpace(req.Message) == "" {
		g.sendJSONError(w, http.StatusBadRequest, "from, to, and message are required")
		return
	}

	reply, err := g.agents.SendMessage(r.Context(), req.From, req.To, req.Message)
	if err != nil {
		g.sendAgentError(w, req.From+" -> "+req.To, err)
		return
	}
	g.sendJSON(w, http.StatusOK, AgentMessageResponse{Status: "delivered", Reply: reply})
}

// sendAgentError maps agent manager errors to HTTP responses.
func (g *Gateway) sendAgentError(w http.ResponseWriter, subject string, err error) {
	switch {
	case errors.Is(err, agent.ErrAgentNotFound):
		g.sendJSONError(w, http.StatusNotFound, "agent not found")
	case errors.Is(err, agent.ErrPermissionDenied):
		g.sendJSONError(w, http.StatusForbidden, err.Error())
	default:
		g.logger.Error("agent request failed", "subject", subject, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}
