// ABOUTME: Idempotency-Key replay for /ask-ai.
// ABOUTME: Concurrent requests sharing a key wait for the first one instead of running twice.

package gateway

import "context"

// claimReply returns the reply remembered for key. When none exists and no
// other request holds the key, the caller takes ownership and must call
// releaseReply. Requests arriving while the owner runs wait for it.
func (g *Gateway) claimReply(ctx context.Context, key string) (reply string, found bool, err error) {
	for {
		g.inflightMu.Lock()
		if reply, ok := g.replies.Get(key); ok {
			g.inflightMu.Unlock()
			return reply, true, nil
		}
		done, busy := g.inflight[key]
		if !busy {
			g.inflight[key] = make(chan struct{})
			g.inflightMu.Unlock()
			return "", false, nil
		}
		g.inflightMu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}
}

// releaseReply remembers reply when ok and wakes any waiting requests.
// A failed owner leaves nothing behind, so the next waiter runs the query.
func (g *Gateway) releaseReply(key, reply string, ok bool) {
	g.inflightMu.Lock()
	defer g.inflightMu.Unlock()
	if ok {
		g.replies.Put(key, reply)
	}
	if done, busy := g.inflight[key]; busy {
		close(done)
		delete(g.inflight, key)
	}
}
