// ABOUTME: Entry point for the adjunct-gateway server and its command line tools
// ABOUTME: Dispatches serve, init, health, ask, token, and chat subcommands

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/adjunct-gateway/internal/auth"
	"github.com/2389/adjunct-gateway/internal/config"
	"github.com/2389/adjunct-gateway/internal/gateway"
)

// Version is set at build time.
var version = "dev"

const banner = `
             _  _                 _
  __ _  __| |(_)_   _ _ __   ___| |_
 / _' |/ _' || | | | | '_ \ / __| __|
| (_| | (_| || | |_| | | | | (__| |_
 \__,_|\__,_|/ |\__,_|_| |_|\___|\__|
           |__/
`

const usage = `Usage: adjunct-gateway [-config PATH] [-version] <command> [flags]

Commands:
  serve                       Start the gateway server (default)
  init [-force]               Write a starter config file
  health                      Check gateway health
  ask -from PHONE -to PHONE   Ask the assistant a question
  token -sub NAME [-ttl 24h]  Mint an API token
  chat -user ID               Chat as a user's agent (/quit to exit)
`

func main() {
	global := flag.NewFlagSet("adjunct-gateway", flag.ExitOnError)
	configPath := global.String("config", "", "config file path (default: $ADJUNCT_CONFIG or ~/.config/adjunct/gateway.yaml)")
	showVersion := global.Bool("version", false, "print version and exit")
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	_ = global.Parse(os.Args[1:])

	if *showVersion {
		fmt.Println("adjunct-gateway", version)
		return
	}

	path := *configPath
	if path == "" {
		path = config.DefaultPath()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := global.Args()
	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	var err error
	switch command {
	case "serve":
		err = runServe(ctx, path)
	case "init":
		err = runInit(path, args)
	case "health":
		err = runHealth(ctx, path)
	case "ask":
		err = runAsk(ctx, path, args)
	case "token":
		err = runToken(path, args)
	case "chat":
		err = runChat(ctx, path, args, os.Stdin, os.Stdout)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n%s", command, usage)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no config at %s (run `adjunct-gateway init` first)", path)
		}
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func runServe(ctx context.Context, configPath string) error {
	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging, os.Stdout)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Model:     %s", cfg.Model.Provider)
	if cfg.Model.Name != "" {
		gray.Printf(" (%s)", cfg.Model.Name)
	}
	fmt.Println()
	green.Print("    ▶ ")
	fmt.Printf("Mail:      ")
	if cfg.Mail.Enabled() {
		cyan.Printf("%s:%d\n", cfg.Mail.Host, cfg.Mail.Port)
	} else {
		yellow.Println("disabled")
	}
	if cfg.Auth.JWTSecret == "" {
		green.Print("    ▶ ")
		fmt.Printf("Auth:      ")
		yellow.Println("disabled (no jwt_secret)")
	}
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:   %s\n", cfg.Metrics.Path)
	}
	fmt.Println()

	logger.Info("starting adjunct-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"max_iterations", cfg.Orchestrator.MaxIterations,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	return gw.Run(ctx)
}

func runInit(configPath string, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	force := fs.Bool("force", false, "overwrite an existing config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := os.Stat(configPath); err == nil && !*force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", configPath)
	}
	if err := writeSampleConfig(configPath); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Created config: %s\n", configPath)
	fmt.Println()
	fmt.Println("  Set ANTHROPIC_API_KEY, then start the server:")
	fmt.Println("    adjunct-gateway serve")
	return nil
}

func writeSampleConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(config.Sample), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func runToken(configPath string, args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("sub", "", "token subject, e.g. the calling app")
	ttl := fs.Duration("ttl", 30*24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	return printToken(os.Stdout, cfg.Auth.JWTSecret, *subject, *ttl)
}

func printToken(w io.Writer, secret, subject string, ttl time.Duration) error {
	if secret == "" {
		return errors.New("auth.jwt_secret is not configured")
	}
	if subject == "" {
		return errors.New("-sub is required")
	}
	token, err := auth.NewJWTVerifier([]byte(secret)).Generate(subject, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	_, err = fmt.Fprintln(w, token)
	return err
}
