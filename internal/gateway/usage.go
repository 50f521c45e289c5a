// ABOUTME: Persists per-run model usage and serves aggregated usage over HTTP
// ABOUTME: Bridges orchestrator run results onto the store's run_usage table

package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/2389/adjunct-gateway/internal/orchestrator"
	"github.com/2389/adjunct-gateway/internal/store"
)

// usageRecorder implements orchestrator.UsageSink over a store.UsageStore.
type usageRecorder struct {
	store store.UsageStore
}

func (u usageRecorder) RecordRun(ctx context.Context, session orchestrator.Session, res *orchestrator.Result) error {
	return u.store.SaveRunUsage(ctx, &store.RunUsage{
		SenderPhone:    session.SenderPhone,
		ReceiverPhone:  session.ReceiverPhone,
		FinalState:     finalState(res.State),
		ModelCalls:     res.ModelCalls,
		ToolDispatches: res.ToolDispatches,
		InputTokens:    res.Usage.InputTokens,
		OutputTokens:   res.Usage.OutputTokens,
	})
}

func finalState(s orchestrator.State) string {
	switch s {
	case orchestrator.StateDoneText:
		return "text"
	case orchestrator.StateDoneFallback:
		return "fallback"
	case orchestrator.StateDoneError:
		return "error"
	default:
		return s.String()
	}
}

// handleUsage handles GET /api/usage?sender_phone=...&since=RFC3339&until=RFC3339
func (g *Gateway) handleUsage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var filter store.UsageFilter
	if sender := q.Get("sender_phone"); sender != "" {
		filter.SenderPhone = &sender
	}
	for _, bound := range []struct {
		name string
		dst  **time.Time
	}{
		{"since", &filter.Since},
		{"until", &filter.Until},
	} {
		raw := q.Get(bound.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			g.sendJSONError(w, http.StatusBadRequest, "invalid "+bound.name+": expected RFC3339 time")
			return
		}
		*bound.dst = &t
	}

	stats, err := g.store.GetUsageStats(r.Context(), filter)
	if err != nil {
		g.logger.Error("failed to load usage stats", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	g.sendJSON(w, http.StatusOK, stats)
}
