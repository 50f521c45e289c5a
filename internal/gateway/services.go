// ABOUTME: Builds the store, tool packs, model invoker, orchestrator, and agent manager from config.
// ABOUTME: Shared by the HTTP server and the interactive chat command.

package gateway

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/2389/adjunct-gateway/internal/agent"
	"github.com/2389/adjunct-gateway/internal/builtins"
	"github.com/2389/adjunct-gateway/internal/config"
	"github.com/2389/adjunct-gateway/internal/mailer"
	"github.com/2389/adjunct-gateway/internal/metrics"
	"github.com/2389/adjunct-gateway/internal/model"
	"github.com/2389/adjunct-gateway/internal/orchestrator"
	"github.com/2389/adjunct-gateway/internal/packs"
	"github.com/2389/adjunct-gateway/internal/store"
)

// Services are the long-lived components behind the gateway.
type Services struct {
	Store        *store.SQLiteStore
	Registry     *packs.Registry
	Router       *packs.Router
	Orchestrator *orchestrator.Orchestrator
	Agents       *agent.Manager
	Metrics      *metrics.Metrics
}

// initStore opens the SQLite database named by config or ADJUNCT_DB_PATH.
func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("ADJUNCT_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// newMailer returns nil when no SMTP relay is configured.
func newMailer(cfg config.MailConfig, logger *slog.Logger) mailer.Mailer {
	if !cfg.Enabled() {
		logger.Info("mail.host not set - email tool disabled")
		return nil
	}
	return mailer.NewSMTPMailer(mailer.Config{
		Host:           cfg.Host,
		Port:           cfg.Port,
		Username:       cfg.Username,
		Password:       cfg.Password,
		From:           cfg.From,
		RenderMarkdown: cfg.RenderMarkdown,
		DisableTLS:     cfg.DisableTLS,
	}, logger)
}

// NewServices opens the store and wires the model/tool loop with its
// collaborators. invoker may be nil to use the configured model backend.
func NewServices(cfg *config.Config, invoker orchestrator.ModelInvoker, logger *slog.Logger) (*Services, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	registry := packs.NewRegistry(logger.With("component", "pack-registry"))
	if err := builtins.RegisterAll(registry, builtins.Deps{
		Store:    s,
		Mailer:   newMailer(cfg.Mail, logger),
		MailFrom: cfg.Mail.From,
	}); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("registering builtin packs: %w", err)
	}
	router := packs.NewRouter(packs.RouterConfig{
		Registry: registry,
		Logger:   logger.With("component", "pack-router"),
		Timeout:  cfg.Orchestrator.ToolTimeout,
	})

	if invoker == nil {
		retries := config.DefaultMaxRetries
		if cfg.Model.MaxRetries != nil {
			retries = *cfg.Model.MaxRetries
		}
		invoker = model.NewAnthropicInvoker(model.Config{
			APIKey:       cfg.Model.APIKey,
			BaseURL:      cfg.Model.BaseURL,
			Model:        cfg.Model.Name,
			MaxTokens:    cfg.Model.MaxTokens,
			SystemPrompt: cfg.Model.SystemPrompt,
			MaxRetries:   retries,
		}, logger)
	}

	m := metrics.New()
	orch := orchestrator.New(orchestrator.Config{
		Invoker:       invoker,
		Dispatcher:    router,
		Recorder:      m,
		Usage:         usageRecorder{store: s},
		Logger:        logger,
		ModelTimeout:  cfg.Model.Timeout,
		ToolTimeout:   cfg.Orchestrator.ToolTimeout,
		MaxIterations: cfg.Orchestrator.MaxIterations,
	})

	agents := agent.NewManager(agent.ManagerConfig{
		Store:   s,
		Replier: orch,
		Logger:  logger,
	})

	logger.Info("services ready",
		"tools", len(router.Tools()),
		"max_iterations", cfg.Orchestrator.MaxIterations,
	)

	return &Services{
		Store:        s,
		Registry:     registry,
		Router:       router,
		Orchestrator: orch,
		Agents:       agents,
		Metrics:      m,
	}, nil
}

// Close releases the registry and the database.
func (s *Services) Close() error {
	s.Registry.Close()
	return s.Store.Close()
}
