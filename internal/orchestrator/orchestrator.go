// ABOUTME: Bounded model/tool loop that turns a user query into a single reply.
// ABOUTME: Tool failures are fed back to the model; model failures abort the run.

package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	// DefaultMaxIterations is the model invocation budget Reply uses unless configured.
	DefaultMaxIterations = 5

	// DefaultModelTimeout bounds a single model invocation.
	DefaultModelTimeout = 60 * time.Second

	// DefaultToolTimeout bounds a single tool dispatch.
	DefaultToolTimeout = 30 * time.Second
)

// FallbackMessage is returned when the budget runs out before the model answers.
const FallbackMessage = "Sorry, I couldn't complete your request after several steps. Please try again."

// ErrorMessage is returned when the model backend fails.
const ErrorMessage = "Sorry, something went wrong while processing your request."

var (
	// ErrEmptyQuery indicates Run was called without a query.
	ErrEmptyQuery = errors.New("query is required")

	// ErrInvalidBudget indicates a non-positive iteration budget.
	ErrInvalidBudget = errors.New("max iterations must be at least 1")
)

// Session identifies the parties a run acts for. It is handed to every
// tool dispatch unchanged and never inspected by the loop.
type Session struct {
	SenderPhone   string
	ReceiverPhone string
}

// ToolSchema describes a tool the model may call. InputSchema is a JSON Schema object.
type ToolSchema struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// ResponseKind distinguishes a final answer from a tool request.
type ResponseKind int

const (
	ResponseText ResponseKind = iota
	ResponseToolCall
)

// Usage counts the tokens consumed by model calls.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// ModelResponse is either final text or exactly one tool invocation.
type ModelResponse struct {
	Kind       ResponseKind
	Text       string
	Invocation ToolInvocation
	Usage      Usage
}

// TextResponse builds a final-answer response.
func TextResponse(text string) ModelResponse {
	return ModelResponse{Kind: ResponseText, Text: text}
}

// ToolCallResponse builds a tool request response.
func ToolCallResponse(inv ToolInvocation) ModelResponse {
	return ModelResponse{Kind: ResponseToolCall, Invocation: inv}
}

// ModelInvoker produces the next model output for a conversation.
type ModelInvoker interface {
	Invoke(ctx context.Context, turns []Turn, tools []ToolSchema) (ModelResponse, error)
}

// ToolDispatcher executes tools by name.
type ToolDispatcher interface {
	Tools() []ToolSchema
	Dispatch(ctx context.Context, inv ToolInvocation, session Session) (json.RawMessage, error)
}

// Recorder observes loop activity. All methods must be safe for concurrent use.
type Recorder interface {
	ObserveModelCall(d time.Duration, err error)
	ObserveToolDispatch(tool string, d time.Duration, err error)
	ObserveRun(state State)
}

// UsageSink persists the outcome of each finished run. Errors are logged
// and never change the reply.
type UsageSink interface {
	RecordRun(ctx context.Context, session Session, res *Result) error
}

// State is a position in the run's state machine.
type State int

const (
	StateAwaitingModel State = iota
	StateDispatchingTool
	StateDoneText
	StateDoneFallback
	StateDoneError
)

func (s State) String() string {
	switch s {
	case StateAwaitingModel:
		return "AWAITING_MODEL"
	case StateDispatchingTool:
		return "DISPATCHING_TOOL"
	case StateDoneText:
		return "DONE(text)"
	case StateDoneFallback:
		return "DONE(fallback)"
	case StateDoneError:
		return "DONE(error)"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s >= StateDoneText
}

// Result describes how a run ended.
type Result struct {
	// Text is the reply shown to the user.
	Text  string
	State State

	ModelCalls     int
	ToolDispatches int
	Usage          Usage

	// Turns is a snapshot of the conversation at the end of the run.
	Turns []Turn

	// Err is the model failure behind StateDoneError.
	Err error
}

// Config holds the collaborators and limits of an Orchestrator.
type Config struct {
	Invoker      ModelInvoker
	Dispatcher   ToolDispatcher
	Recorder     Recorder
	Usage        UsageSink
	Logger       *slog.Logger
	ModelTimeout time.Duration
	ToolTimeout  time.Duration
	// MaxIterations is the budget Reply uses. Zero means DefaultMaxIterations.
	MaxIterations int
}

// Orchestrator drives the model/tool loop. It holds no per-run state and is
// safe for concurrent use.
type Orchestrator struct {
	invoker      ModelInvoker
	dispatcher   ToolDispatcher
	recorder     Recorder
	usage        UsageSink
	logger       *slog.Logger
	modelTimeout time.Duration
	toolTimeout  time.Duration
	budget       int
}

// New creates an Orchestrator. Invoker and Dispatcher are required.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	modelTimeout := cfg.ModelTimeout
	if modelTimeout <= 0 {
		modelTimeout = DefaultModelTimeout
	}
	toolTimeout := cfg.ToolTimeout
	if toolTimeout <= 0 {
		toolTimeout = DefaultToolTimeout
	}
	budget := cfg.MaxIterations
	if budget <= 0 {
		budget = DefaultMaxIterations
	}
	return &Orchestrator{
		invoker:      cfg.Invoker,
		dispatcher:   cfg.Dispatcher,
		recorder:     cfg.Recorder,
		usage:        cfg.Usage,
		logger:       logger.With("component", "orchestrator"),
		modelTimeout: modelTimeout,
		toolTimeout:  toolTimeout,
		budget:       budget,
	}
}

// Reply runs the loop with the configured budget and returns only the reply text.
func (o *Orchestrator) Reply(ctx context.Context, query string, session Session) (string, error) {
	res, err := o.Run(ctx, query, session, o.budget)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// Run answers query, invoking the model at most maxIterations times.
// The returned error is non-nil only when the arguments are invalid; every
// other outcome, including model failure, is described by the Result.
func (o *Orchestrator) Run(ctx context.Context, query string, session Session, maxIterations int) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if maxIterations < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBudget, maxIterations)
	}

	conv := NewConversation(query)
	tools := o.dispatcher.Tools()
	res := &Result{State: StateAwaitingModel}

	for res.ModelCalls < maxIterations {
		resp, err := o.invoke(ctx, conv, tools)
		res.ModelCalls++
		res.Usage.InputTokens += resp.Usage.InputTokens
		res.Usage.OutputTokens += resp.Usage.OutputTokens
		if err != nil {
			o.logger.Error("model invocation failed",
				"iteration", res.ModelCalls,
				"error", err,
			)
			res.Err = err
			return o.finish(ctx, session, res, conv, StateDoneError, ErrorMessage), nil
		}

		if resp.Kind == ResponseText {
			conv.appendText(resp.Text)
			return o.finish(ctx, session, res, conv, StateDoneText, resp.Text), nil
		}

		res.State = StateDispatchingTool
		result := o.dispatch(ctx, resp.Invocation, session)
		res.ToolDispatches++
		conv.appendExchange(resp.Invocation, result)
		res.State = StateAwaitingModel
	}

	o.logger.Warn("iteration budget exhausted",
		"max_iterations", maxIterations,
		"tool_dispatches", res.ToolDispatches,
	)
	return o.finish(ctx, session, res, conv, StateDoneFallback, FallbackMessage), nil
}

func (o *Orchestrator) invoke(ctx context.Context, conv *Conversation, tools []ToolSchema) (ModelResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, o.modelTimeout)
	defer cancel()

	start := time.Now()
	resp, err := o.callInvoker(ctx, conv.Turns(), tools)
	if err == nil && resp.Kind == ResponseToolCall && resp.Invocation.Name == "" {
		err = errors.New("model requested a tool without a name")
	}
	if err == nil && resp.Kind != ResponseText && resp.Kind != ResponseToolCall {
		err = fmt.Errorf("unknown model response kind %d", resp.Kind)
	}
	if o.recorder != nil {
		o.recorder.ObserveModelCall(time.Since(start), err)
	}
	return resp, err
}

// callInvoker converts a panicking invoker into a model error.
func (o *Orchestrator) callInvoker(ctx context.Context, turns []Turn, tools []ToolSchema) (resp ModelResponse, err error) {
	defer func() {
		if p := recover(); p != nil {
			resp = ModelResponse{}
			err = fmt.Errorf("model invoker panicked: %v", p)
		}
	}()
	return o.invoker.Invoke(ctx, turns, tools)
}

// dispatch runs one tool and never fails: errors become an error result.
func (o *Orchestrator) dispatch(ctx context.Context, inv ToolInvocation, session Session) ToolResult {
	ctx, cancel := context.WithTimeout(ctx, o.toolTimeout)
	defer cancel()

	o.logger.Info("→ tool call",
		"tool_name", inv.Name,
		"call_id", inv.ID,
	)

	start := time.Now()
	payload, err := o.dispatcher.Dispatch(ctx, inv, session)
	elapsed := time.Since(start)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if o.recorder != nil {
		o.recorder.ObserveToolDispatch(inv.Name, elapsed, err)
	}

	result := ToolResult{ToolName: inv.Name, CallID: inv.ID}
	if err != nil {
		o.logger.Warn("← tool failed",
			"tool_name", inv.Name,
			"call_id", inv.ID,
			"duration", elapsed,
			"error", err,
		)
		result.Error = toolErrorText(err)
		return result
	}
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	o.logger.Info("← tool result",
		"tool_name", inv.Name,
		"call_id", inv.ID,
		"duration", elapsed,
	)
	result.Payload = payload
	return result
}

func (o *Orchestrator) finish(ctx context.Context, session Session, res *Result, conv *Conversation, state State, text string) *Result {
	res.State = state
	res.Text = text
	res.Turns = conv.Turns()
	if o.recorder != nil {
		o.recorder.ObserveRun(state)
	}
	if o.usage != nil {
		if err := o.usage.RecordRun(context.WithoutCancel(ctx), session, res); err != nil {
			o.logger.Warn("failed to record run usage", "error", err)
		}
	}
	o.logger.Debug("run finished",
		"state", state.String(),
		"model_calls", res.ModelCalls,
		"tool_dispatches", res.ToolDispatches,
		"input_tokens", res.Usage.InputTokens,
		"output_tokens", res.Usage.OutputTokens,
	)
	return res
}

func toolErrorText(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "tool timed out"
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "tool failed"
}
