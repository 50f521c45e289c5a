// ABOUTME: HTTP middleware for request metrics and access logging.
// ABOUTME: Routes are labelled by their mux pattern so label cardinality stays fixed.

package gateway

import (
	"net/http"
	"time"
)

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// instrument counts and logs every request served by h under route.
func (g *Gateway) instrument(route string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		h.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		if g.metrics != nil {
			g.metrics.ObserveHTTPRequest(route, rec.status)
		}
		g.logger.Debug("http request",
			"route", route,
			"method", r.Method,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
