// ABOUTME: ModelInvoker backed by the Anthropic Messages API.
// ABOUTME: Converts conversation turns to messages and responses back to tool calls or text.

package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/2389/adjunct-gateway/internal/orchestrator"
)

// DefaultModel is used when the config names no model.
const DefaultModel = anthropic.ModelClaude3_7SonnetLatest

// DefaultMaxTokens bounds each completion when the config sets no limit.
const DefaultMaxTokens = 1024

// ErrEmptyResponse indicates a completion with neither text nor a tool call.
var ErrEmptyResponse = errors.New("model returned neither text nor a tool call")

// Config configures an AnthropicInvoker.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int64
	SystemPrompt string
	// MaxRetries overrides the client's retry count when non-negative.
	MaxRetries int
	HTTPClient *http.Client
}

// Ensure AnthropicInvoker implements orchestrator.ModelInvoker.
var _ orchestrator.ModelInvoker = (*AnthropicInvoker)(nil)

// AnthropicInvoker calls the Messages API once per Invoke.
type AnthropicInvoker struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	system    string
	logger    *slog.Logger
}

// NewAnthropicInvoker creates an invoker. An empty APIKey falls back to the
// ANTHROPIC_API_KEY environment variable.
func NewAnthropicInvoker(cfg Config, logger *slog.Logger) *AnthropicInvoker {
	if logger == nil {
		logger = slog.Default()
	}

	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.MaxRetries >= 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}

	model := anthropic.Model(cfg.Model)
	if cfg.Model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	system := cfg.SystemPrompt
	if system == "" {
		system = SystemPrompt
	}

	return &AnthropicInvoker{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
		system:    system,
		logger:    logger.With("component", "model", "model", string(model)),
	}
}

// Invoke sends the conversation so far and returns the model's next step.
// Only the first tool_use block of a response is honored.
func (a *AnthropicInvoker) Invoke(ctx context.Context, turns []orchestrator.Turn, tools []orchestrator.ToolSchema) (orchestrator.ModelResponse, error) {
	messages, err := toMessages(turns)
	if err != nil {
		return orchestrator.ModelResponse{}, err
	}
	toolParams, err := toToolParams(tools)
	if err != nil {
		return orchestrator.ModelResponse{}, err
	}

	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages:  messages,
		System:    []anthropic.TextBlockParam{{Text: a.system}},
	}
	if len(toolParams) > 0 {
		params.Tools = toolParams
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfAuto: &anthropic.ToolChoiceAutoParam{DisableParallelToolUse: anthropic.Bool(true)},
		}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return orchestrator.ModelResponse{}, fmt.Errorf("calling messages api: %w", err)
	}

	a.logger.Debug("model responded",
		"stop_reason", string(msg.StopReason),
		"blocks", len(msg.Content),
		"input_tokens", msg.Usage.InputTokens,
		"output_tokens", msg.Usage.OutputTokens,
	)
	resp, err := fromMessage(msg)
	if err != nil {
		return orchestrator.ModelResponse{}, err
	}
	resp.Usage = orchestrator.Usage{
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}
	return resp, nil
}

// toMessages maps turns onto alternating user/assistant messages. Adjacent
// turns that land on the same role are merged into one message.
func toMessages(turns []orchestrator.Turn) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam
	add := func(role anthropic.MessageParamRole, block anthropic.ContentBlockParamUnion) {
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, block)
			return
		}
		if role == anthropic.MessageParamRoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}

	var lastToolID string
	for i, turn := range turns {
		switch {
		case turn.Kind == orchestrator.TurnUser:
			add(anthropic.MessageParamRoleUser, anthropic.NewTextBlock(turn.Text))

		case turn.Kind == orchestrator.TurnModel && turn.Invocation != nil:
			lastToolID = toolUseID(turn.Invocation.ID, i)
			input := turn.Invocation.Arguments
			if len(input) == 0 {
				input = json.RawMessage(`{}`)
			}
			add(anthropic.MessageParamRoleAssistant, anthropic.ContentBlockParamUnion{
				OfToolUse: &anthropic.ToolUseBlockParam{
					ID:    lastToolID,
					Name:  turn.Invocation.Name,
					Input: input,
				},
			})

		case turn.Kind == orchestrator.TurnModel:
			add(anthropic.MessageParamRoleAssistant, anthropic.NewTextBlock(turn.Text))

		case turn.Kind == orchestrator.TurnToolResult && turn.Result != nil:
			if lastToolID == "" {
				return nil, fmt.Errorf("tool result at turn %d has no preceding tool call", i)
			}
			add(anthropic.MessageParamRoleUser,
				anthropic.NewToolResultBlock(lastToolID, turn.Result.Content(), turn.Result.IsError()))
			lastToolID = ""

		default:
			return nil, fmt.Errorf("unsupported turn %d of kind %s", i, turn.Kind)
		}
	}
	return out, nil
}

// toolUseID keeps the invocation's ID or derives a stable one from its position.
func toolUseID(id string, index int) string {
	if id != "" {
		return id
	}
	return fmt.Sprintf("toolu_%d", index)
}

func toToolParams(tools []orchestrator.ToolSchema) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema struct {
			Properties any      `json:"properties"`
			Required   []string `json:"required"`
		}
		if len(t.InputSchema) > 0 {
			if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
				return nil, fmt.Errorf("tool %s: invalid input schema: %w", t.Name, err)
			}
		}
		if schema.Properties == nil {
			schema.Properties = map[string]any{}
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: schema.Properties,
				Required:   schema.Required,
			},
		}})
	}
	return out, nil
}

func fromMessage(msg *anthropic.Message) (orchestrator.ModelResponse, error) {
	var texts []string
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.ToolUseBlock:
			return orchestrator.ToolCallResponse(orchestrator.ToolInvocation{
				ID:        v.ID,
				Name:      v.Name,
				Arguments: json.RawMessage(v.JSON.Input.Raw()),
			}), nil
		case anthropic.TextBlock:
			if strings.TrimSpace(v.Text) != "" {
				texts = append(texts, v.Text)
			}
		}
	}
	if len(texts) == 0 {
		return orchestrator.ModelResponse{}, ErrEmptyResponse
	}
	return orchestrator.TextResponse(strings.Join(texts, "\n")), nil
}
