// ABOUTME: HTTP client commands that talk to a running gateway
// ABOUTME: health and ask use resty against the configured http_addr

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/go-resty/resty/v2"

	"github.com/2389/adjunct-gateway/internal/config"
	"github.com/2389/adjunct-gateway/internal/gateway"
)

// baseURL returns the gateway URL, preferring ADJUNCT_GATEWAY_URL.
func baseURL(cfg *config.Config) string {
	if u := os.Getenv("ADJUNCT_GATEWAY_URL"); u != "" {
		return strings.TrimSuffix(u, "/")
	}
	addr := cfg.Server.HTTPAddr
	if strings.HasPrefix(addr, "0.0.0.0:") {
		addr = "localhost:" + strings.TrimPrefix(addr, "0.0.0.0:")
	}
	return "http://" + addr
}

func newClient(base string) *resty.Client {
	c := resty.New().
		SetBaseURL(base).
		SetTimeout(2*time.Minute).
		SetHeader("Content-Type", "application/json")
	if token := os.Getenv("ADJUNCT_TOKEN"); token != "" {
		c.SetAuthToken(token)
	}
	return c
}

func runHealth(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	return checkHealth(ctx, newClient(baseURL(cfg)))
}

func checkHealth(ctx context.Context, c *resty.Client) error {
	resp, err := c.R().SetContext(ctx).Get("/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode())
	}

	ready, err := c.R().SetContext(ctx).Get("/health/ready")
	if err != nil {
		return fmt.Errorf("readiness check failed: %w", err)
	}
	if ready.StatusCode() != http.StatusOK {
		color.Yellow("alive but not ready: %s", ready.String())
		return nil
	}
	color.Green("healthy")
	return nil
}

func runAsk(ctx context.Context, configPath string, args []string) error {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	from := fs.String("from", "", "sender phone number")
	to := fs.String("to", "", "receiver phone number")
	noStore := fs.Bool("no-store", false, "do not store the reply as a message")
	if err := fs.Parse(args); err != nil {
		return err
	}
	query := strings.Join(fs.Args(), " ")
	if *from == "" || *to == "" || strings.TrimSpace(query) == "" {
		return errors.New("usage: adjunct-gateway ask -from PHONE -to PHONE QUESTION...")
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	reply, err := ask(ctx, newClient(baseURL(cfg)), gateway.AskRequest{
		Query:         query,
		SenderPhone:   *from,
		ReceiverPhone: *to,
		StoreReply:    boolPtr(!*noStore),
	})
	if err != nil {
		return err
	}
	fmt.Println(reply)
	return nil
}

func ask(ctx context.Context, c *resty.Client, req gateway.AskRequest) (string, error) {
	var out gateway.AskResponse
	var apiErr struct {
		Error string `json:"error"`
	}
	resp, err := c.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&apiErr).
		Post("/ask-ai")
	if err != nil {
		return "", fmt.Errorf("POST /ask-ai: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		if apiErr.Error != "" {
			return "", fmt.Errorf("POST /ask-ai: %s (status %d)", apiErr.Error, resp.StatusCode())
		}
		return "", fmt.Errorf("POST /ask-ai: status %d", resp.StatusCode())
	}
	return out.Reply, nil
}

func boolPtr(b bool) *bool { return &b }
