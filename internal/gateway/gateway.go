// ABOUTME: Gateway that serves the ADJUNCT HTTP API
// ABOUTME: Wires routes, auth, rate limiting, metrics, and the server lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/2389/adjunct-gateway/internal/agent"
	"github.com/2389/adjunct-gateway/internal/auth"
	"github.com/2389/adjunct-gateway/internal/config"
	"github.com/2389/adjunct-gateway/internal/dedupe"
	"github.com/2389/adjunct-gateway/internal/mcp"
	"github.com/2389/adjunct-gateway/internal/metrics"
	"github.com/2389/adjunct-gateway/internal/orchestrator"
	"github.com/2389/adjunct-gateway/internal/store"
)

// replyCacheTTL is how long a reply is replayed for a repeated Idempotency-Key.
const replyCacheTTL = 10 * time.Minute

// replyCacheSize bounds the number of remembered replies.
const replyCacheSize = 10_000

// Replier answers a user query for a session.
type Replier interface {
	Reply(ctx context.Context, query string, session orchestrator.Session) (string, error)
}

// Store is the persistence the HTTP handlers use directly.
type Store interface {
	store.MessageStore
	store.UsageStore
	Ping(ctx context.Context) error
}

// Deps are the collaborators a Gateway serves requests with.
type Deps struct {
	Store   Store
	Replier Replier
	Agents  *agent.Manager
	Metrics *metrics.Metrics
	// Tools backs the MCP endpoint. It is required only when mcp.enabled is set.
	Tools orchestrator.ToolDispatcher
}

// Gateway serves the HTTP API.
type Gateway struct {
	config     *config.Config
	store      Store
	replier    Replier
	agents     *agent.Manager
	metrics    *metrics.Metrics
	limiter    *senderLimiter
	replies    *dedupe.Cache[string]
	inflightMu sync.Mutex
	inflight   map[string]chan struct{}
	mcp        *mcp.Server
	handler    http.Handler
	httpServer *http.Server
	logger     *slog.Logger

	// services is set when the gateway built its own components
	services *Services
}

// New builds every component from cfg and returns a ready Gateway.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	services, err := NewServices(cfg, nil, logger)
	if err != nil {
		return nil, err
	}

	gw, err := NewWithDeps(cfg, Deps{
		Store:   services.Store,
		Replier: services.Orchestrator,
		Agents:  services.Agents,
		Metrics: services.Metrics,
		Tools:   services.Router,
	}, logger)
	if err != nil {
		_ = services.Close()
		return nil, err
	}
	gw.services = services
	return gw, nil
}

// NewWithDeps creates a Gateway over caller-supplied components.
func NewWithDeps(cfg *config.Config, deps Deps, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Store == nil || deps.Replier == nil || deps.Agents == nil {
		return nil, errors.New("gateway: store, replier, and agent manager are required")
	}

	gw := &Gateway{
		config:  cfg,
		store:   deps.Store,
		replier: deps.Replier,
		agents:  deps.Agents,
		metrics: deps.Metrics,
		limiter: newSenderLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		replies:  dedupe.New[string](replyCacheTTL, replyCacheSize),
		inflight: make(map[string]chan struct{}),
		logger:   logger.With("component", "gateway"),
	}

	if cfg.MCP.Enabled {
		mcpCfg := mcp.Config{
			Dispatcher: deps.Tools,
			Logger:     logger,
			SessionTTL: cfg.MCP.SessionTTL,
		}
		if cfg.Auth.JWTSecret != "" {
			mcpCfg.TokenVerifier = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		}
		server, err := mcp.NewServer(mcpCfg)
		if err != nil {
			gw.replies.Close()
			return nil, fmt.Errorf("gateway: mcp: %w", err)
		}
		gw.mcp = server
	}

	mux := http.NewServeMux()
	gw.registerRoutes(mux)
	gw.handler = mux

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return gw, nil
}

// Handler returns the gateway's HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// registerRoutes adds every endpoint to mux. The API routes require a bearer
// token when a JWT secret is configured.
func (g *Gateway) registerRoutes(mux *http.ServeMux) {
	protect := func(h http.Handler) http.Handler { return h }
	if g.config.Auth.JWTSecret != "" {
		verifier := auth.NewJWTVerifier([]byte(g.config.Auth.JWTSecret))
		protect = auth.HTTPAuthMiddleware(verifier, g.logger)
		g.logger.Info("HTTP auth middleware enabled")
	} else {
		g.logger.Warn("HTTP auth disabled - no jwt_secret configured")
	}

	route := func(pattern string, h http.Handler) {
		mux.Handle(pattern, g.instrument(pattern, h))
	}

	// Health endpoints - no auth required
	route("GET /health", http.HandlerFunc(g.handleHealth))
	route("GET /health/ready", http.HandlerFunc(g.handleReady))

	route("POST /ask-ai", protect(http.HandlerFunc(g.handleAskAI)))
	route("POST /api/agents", protect(http.HandlerFunc(g.handleCreateAgent)))
	route("POST /api/agents/messages", protect(http.HandlerFunc(g.handleAgentMessage)))
	route("GET /api/agents/{user_id}", protect(http.HandlerFunc(g.handleGetAgent)))
	route("GET /api/agents/{user_id}/messages", protect(http.HandlerFunc(g.handleAgentMessages)))
	route("GET /api/usage", protect(http.HandlerFunc(g.handleUsage)))

	// MCP authenticates its own requests
	if g.mcp != nil {
		route("POST /mcp", g.mcp)
		route("DELETE /mcp", g.mcp)
		g.logger.Info("MCP endpoint enabled", "path", "/mcp")
	}

	if g.config.Metrics.Enabled && g.metrics != nil {
		mux.Handle("GET "+g.config.Metrics.Path, g.metrics.Handler())
		g.logger.Info("metrics endpoint enabled", "path", g.config.Metrics.Path)
	}
}

// Run serves HTTP until ctx is canceled, then shuts down gracefully.
// Returns nil on graceful shutdown, or the error that stopped the server.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	return g.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown uses a fresh context since the caller's is already canceled.
func (g *Gateway) gracefulShutdown() error {
	timeout := g.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server and releases owned components.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	g.replies.Close()
	if g.services != nil {
		errs = appendCloseError(errs, "services close", g.services.Close())
	}
	return errors.Join(errs...)
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the database answers.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := g.store.Ping(ctx); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("database unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
