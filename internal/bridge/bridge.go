package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/malbeclabs/mcp-llm-bridge/internal/llm"
	"github.com/malbeclabs/mcp-llm-bridge/internal/metrics"
)

// Bridge connects an MCP tool client to an LLM and runs the tool-call loop
// for each user message.
type Bridge struct {
	log *slog.Logger
	cfg Config

	mu        sync.Mutex // protects state, err, toolNames and tools
	state     State
	err       error
	toolNames map[string]string // sanitized -> original
	tools     []llm.FunctionDeclaration

	convMu sync.Mutex // serializes conversations

	closeOnce sync.Once
	closeErr  error
}

func New(cfg Config) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate bridge config: %w", err)
	}
	return &Bridge{
		log:   cfg.Logger,
		cfg:   cfg,
		state: StateUninitialized,
	}, nil
}

func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Err returns the cause of a failed initialization.
func (b *Bridge) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Tools returns the declarations handed to the model.
func (b *Bridge) Tools() []llm.FunctionDeclaration {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]llm.FunctionDeclaration, len(b.tools))
	copy(out, b.tools)
	return out
}

// Initialize connects the tool client, lists its tools and configures the
// model with them. Failures are logged and reported as false; the cause is
// available from Err. Only the first call on a fresh bridge does anything.
func (b *Bridge) Initialize(ctx context.Context) bool {
	b.mu.Lock()
	if b.state != StateUninitialized {
		state := b.state
		b.mu.Unlock()
		b.log.Warn("bridge: initialize called in unexpected state", "state", state)
		return false
	}
	b.state = StateInitializing
	b.mu.Unlock()

	b.log.Debug("bridge: initializing")
	mapping, tools, err := b.initialize(ctx)

	b.mu.Lock()
	if b.state == StateClosed {
		b.err = ErrClosed
		b.mu.Unlock()
		// Close ran while connecting; release whatever the connect opened.
		if closeErr := b.cfg.ToolClient.Close(); closeErr != nil {
			b.log.Warn("bridge: failed to close tool client", "error", closeErr)
		}
		b.log.Warn("bridge: closed during initialization")
		return false
	}
	defer b.mu.Unlock()

	if err != nil {
		b.state = StateInitFailed
		b.err = err
		metrics.BridgeInitializationsTotal.WithLabelValues("error").Inc()
		b.log.Error("bridge: initialization failed", "error", err)
		return false
	}

	b.toolNames = mapping
	b.tools = tools
	b.state = StateReady
	metrics.BridgeInitializationsTotal.WithLabelValues("success").Inc()
	b.log.Info("bridge: initialized", "tools", len(tools))
	return true
}

func (b *Bridge) initialize(ctx context.Context) (mapping map[string]string, decls []llm.FunctionDeclaration, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during initialization: %v", r)
		}
	}()

	callCtx, cancel := b.callContext(ctx)
	err = b.cfg.ToolClient.Connect(callCtx)
	cancel()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect tool client: %w", err)
	}

	callCtx, cancel = b.callContext(ctx)
	specs, err := b.cfg.ToolClient.ListTools(callCtx)
	cancel()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list tools: %w", err)
	}

	mapping, err = buildNameMapping(specs)
	if err != nil {
		return nil, nil, err
	}

	sanitized := make([]ToolSpec, len(specs))
	for i, s := range specs {
		s.Name = SanitizeToolName(s.Name)
		sanitized[i] = s
	}
	decls = ConvertTools(sanitized)

	if b.cfg.SystemPrompt != "" {
		b.cfg.LLM.SetSystemPrompt(b.cfg.SystemPrompt)
	}
	b.cfg.LLM.SetTools(decls)

	for _, s := range specs {
		b.log.Debug("bridge: registered tool", "name", s.Name, "sanitized", SanitizeToolName(s.Name))
	}
	return mapping, decls, nil
}

func (b *Bridge) checkReady() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateReady:
		return nil
	case StateClosed:
		return ErrClosed
	default:
		return fmt.Errorf("%w: state is %s", ErrNotReady, b.state)
	}
}

func (b *Bridge) resolve(name string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	original, ok := b.toolNames[name]
	return original, ok
}

// ProcessMessage sends text to the model and executes requested tool calls
// until the model answers with text or the round budget is spent.
// Concurrent callers are served one at a time.
func (b *Bridge) ProcessMessage(ctx context.Context, text string) (string, error) {
	b.convMu.Lock()
	defer b.convMu.Unlock()

	if err := b.checkReady(); err != nil {
		return "", err
	}

	log := b.log.With("conversation", uuid.NewString())
	log.Debug("bridge: processing message", "chars", len(text))

	resp, err := b.invokeLLM(ctx, func(ctx context.Context) (llm.Response, error) {
		return b.cfg.LLM.InvokeWithPrompt(ctx, text)
	})
	if err != nil {
		metrics.BridgeMessagesTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("failed to send prompt: %w", err)
	}

	rounds := 0
	for {
		switch r := resp.(type) {
		case llm.FinalText:
			metrics.BridgeMessagesTotal.WithLabelValues("success").Inc()
			metrics.BridgeRoundsPerMessage.Observe(float64(rounds))
			log.Debug("bridge: final response", "rounds", rounds, "chars", len(r.Text))
			return r.Text, nil

		case llm.ToolCallsRequested:
			if len(r.Calls) == 0 {
				metrics.BridgeMessagesTotal.WithLabelValues("success").Inc()
				metrics.BridgeRoundsPerMessage.Observe(float64(rounds))
				return "", nil
			}
			if rounds >= b.cfg.MaxRounds {
				metrics.BridgeMessagesTotal.WithLabelValues("exhausted").Inc()
				log.Warn("bridge: round budget exhausted", "rounds", rounds)
				err := &ExhaustedError{Rounds: rounds}
				b.abandonRound(log, r.Calls, nil, err)
				return "", err
			}
			rounds++
			log.Debug("bridge: starting round", "round", rounds, "calls", len(r.Calls))

			results, err := b.dispatch(ctx, log, r.Calls)
			if err != nil {
				metrics.BridgeMessagesTotal.WithLabelValues("error").Inc()
				b.abandonRound(log, r.Calls, results, err)
				return "", err
			}

			resp, err = b.invokeLLM(ctx, func(ctx context.Context) (llm.Response, error) {
				return b.cfg.LLM.Invoke(ctx, results)
			})
			if err != nil {
				metrics.BridgeMessagesTotal.WithLabelValues("error").Inc()
				return "", fmt.Errorf("failed to send tool results: %w", err)
			}

		default:
			metrics.BridgeMessagesTotal.WithLabelValues("error").Inc()
			return "", fmt.Errorf("unexpected response type %T", resp)
		}
	}
}

func (b *Bridge) invokeLLM(ctx context.Context, fn func(context.Context) (llm.Response, error)) (llm.Response, error) {
	callCtx, cancel := b.callContext(ctx)
	defer cancel()
	return fn(callCtx)
}

// dispatch executes calls sequentially and returns one result per call in
// the same order. Every name is resolved before any call is made. On error
// the results of the calls that completed are returned with it.
func (b *Bridge) dispatch(ctx context.Context, log *slog.Logger, calls []llm.ToolCall) ([]llm.ToolResult, error) {
	originals := make([]string, len(calls))
	for i, call := range calls {
		original, ok := b.resolve(call.Name)
		if !ok {
			log.Error("bridge: unknown tool requested", "name", call.Name)
			return nil, &NameResolutionError{Name: call.Name}
		}
		originals[i] = original
	}

	results := make([]llm.ToolResult, 0, len(calls))
	for i, call := range calls {
		res, err := b.execute(ctx, log, originals[i], call)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (b *Bridge) execute(ctx context.Context, log *slog.Logger, tool string, call llm.ToolCall) (llm.ToolResult, error) {
	args, err := parseArguments(call.Arguments)
	if err != nil {
		metrics.BridgeToolCallsTotal.WithLabelValues(tool, "invalid_arguments").Inc()
		log.Warn("bridge: invalid tool arguments", "tool", tool, "id", call.ID, "error", err)
		return llm.ToolResult{
			ToolCallID: call.ID,
			Content:    fmt.Sprintf("Error: invalid arguments: %v", err),
			IsError:    true,
		}, nil
	}

	log.Debug("bridge: calling tool", "tool", tool, "id", call.ID)

	startTime := time.Now()
	callCtx, cancel := b.callContext(ctx)
	content, isError, err := b.cfg.ToolClient.CallTool(callCtx, tool, args)
	cancel()
	duration := time.Since(startTime)

	if err != nil {
		metrics.BridgeToolCallsTotal.WithLabelValues(tool, "error").Inc()
		execErr := &ToolExecutionError{Tool: tool, Err: err}
		if b.cfg.PropagateToolErrors {
			return llm.ToolResult{}, execErr
		}
		log.Warn("bridge: tool call failed", "tool", tool, "id", call.ID, "error", err, "duration", duration)
		return llm.ToolResult{
			ToolCallID: call.ID,
			Content:    fmt.Sprintf("Error: %v", err),
			IsError:    true,
		}, nil
	}

	status := "success"
	if isError {
		status = "tool_error"
	}
	metrics.BridgeToolCallsTotal.WithLabelValues(tool, status).Inc()
	log.Debug("bridge: tool call completed", "tool", tool, "id", call.ID, "isError", isError, "duration", duration)

	return llm.ToolResult{
		ToolCallID: call.ID,
		Content:    content,
		IsError:    isError,
	}, nil
}

// abandonRound answers every call of a round that will not be continued.
// done holds the results of the leading calls that already ran; the rest get
// an error result carrying cause. Nothing is sent to the model.
func (b *Bridge) abandonRound(log *slog.Logger, calls []llm.ToolCall, done []llm.ToolResult, cause error) {
	results := make([]llm.ToolResult, 0, len(calls))
	results = append(results, done...)
	for _, call := range calls[len(done):] {
		results = append(results, llm.ToolResult{
			ToolCallID: call.ID,
			Content:    fmt.Sprintf("Error: %v", cause),
			IsError:    true,
		})
	}
	b.cfg.LLM.AppendToolResults(results)
	log.Debug("bridge: abandoned round", "calls", len(calls), "completed", len(done))
}

// parseArguments decodes a JSON object. An empty string is an empty object.
func parseArguments(s string) (map[string]any, error) {
	if s == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(s), &args); err != nil {
		return nil, fmt.Errorf("arguments are not a JSON object: %w", err)
	}
	if args == nil {
		return map[string]any{}, nil
	}
	return args, nil
}

func (b *Bridge) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.cfg.CallTimeout > 0 {
		return context.WithTimeout(ctx, b.cfg.CallTimeout)
	}
	return context.WithCancel(ctx)
}

// Close releases the tool client. It runs once; later calls return the
// first result.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.state = StateClosed
		b.mu.Unlock()

		b.closeErr = b.cfg.ToolClient.Close()
		if b.closeErr != nil {
			b.log.Warn("bridge: failed to close tool client", "error", b.closeErr)
		} else {
			b.log.Debug("bridge: closed")
		}
	})
	return b.closeErr
}
