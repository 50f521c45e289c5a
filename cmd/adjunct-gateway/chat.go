// ABOUTME: Interactive chat with a user's agent, without running the HTTP server
// ABOUTME: Plain lines go to the user's own agent; "@user text" messages another agent

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/adjunct-gateway/internal/agent"
	"github.com/2389/adjunct-gateway/internal/gateway"
)

const chatHelp = `Commands:
  @USER TEXT   send TEXT to USER's agent
  /history     show this agent's recent history
  /help        show this help
  /quit        exit
`

func runChat(ctx context.Context, configPath string, args []string, in io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	userID := fs.String("user", "", "user ID whose agent you chat as")
	name := fs.String("name", "", "agent name when creating a new agent")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" {
		return errors.New("-user is required")
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Keep the chat transcript readable; only warnings and errors are logged.
	logCfg := cfg.Logging
	if parseLevel(logCfg.Level) < parseLevel("warn") {
		logCfg.Level = "warn"
	}
	logger := setupLogger(logCfg, os.Stderr)

	svc, err := gateway.NewServices(cfg, nil, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	self, err := svc.Agents.GetOrCreate(ctx, *userID, agent.Options{Name: *name})
	if err != nil {
		return fmt.Errorf("loading agent: %w", err)
	}

	color.New(color.FgCyan).Fprintf(out, "Chatting as %s (%s). Type /help for commands.\n", self.Name(), self.UserID())
	return chatLoop(ctx, svc.Agents, self, in, out)
}

// chatLoop reads lines from in until EOF, /quit, or ctx is done.
func chatLoop(ctx context.Context, agents *agent.Manager, self *agent.Agent, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	prompt := color.New(color.FgGreen)
	dim := color.New(color.FgHiBlack)
	for {
		prompt.Fprint(out, "> ")

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			fmt.Fprintln(out)
			select {
			case err := <-readErr:
				return err
			default:
				return nil
			}
		}

		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit" || line == "/q":
			return nil
		case line == "/help":
			fmt.Fprint(out, chatHelp)
			continue
		case line == "/history":
			for _, h := range self.History() {
				dim.Fprintf(out, "[%s] ", h.At.Format("15:04"))
				fmt.Fprintf(out, "%s: %s\n", h.Role, h.Content)
			}
			continue
		}

		reply, who, err := dispatchChatLine(ctx, agents, self, line)
		if err != nil {
			color.New(color.FgRed).Fprintf(out, "error: %v\n", err)
			continue
		}
		color.New(color.FgCyan).Fprintf(out, "%s: ", who)
		fmt.Fprintln(out, reply)
	}
}

// dispatchChatLine answers line with self's agent, or forwards it to another
// agent when it starts with "@user". It returns the reply and who gave it.
func dispatchChatLine(ctx context.Context, agents *agent.Manager, self *agent.Agent, line string) (string, string, error) {
	if strings.HasPrefix(line, "@") {
		target, text, _ := strings.Cut(strings.TrimPrefix(line, "@"), " ")
		text = strings.TrimSpace(text)
		if target == "" || text == "" {
			return "", "", errors.New("usage: @USER TEXT")
		}
		reply, err := agents.SendMessage(ctx, self.UserID(), target, text)
		return reply, target, err
	}

	reply, err := agents.ProcessTask(ctx, self, line)
	return reply, self.Name(), err
}
