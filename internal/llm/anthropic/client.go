package anthropic

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/malbeclabs/mcp-llm-bridge/internal/llm"
	"github.com/malbeclabs/mcp-llm-bridge/internal/metrics"
)

const (
	providerName     = "anthropic"
	defaultMaxTokens = 4096
)

type Config struct {
	Logger *slog.Logger

	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int64

	// Options are appended to the request options derived from the fields
	// above.
	Options []option.RequestOption
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = defaultMaxTokens
	}
	return nil
}

type Client struct {
	log    *slog.Logger
	cfg    Config
	client anthropic.Client

	mu      sync.Mutex
	system  string
	tools   []anthropic.ToolUnionParam
	history []anthropic.MessageParam
}

func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate anthropic config: %w", err)
	}

	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, cfg.Options...)

	return &Client{
		log:    cfg.Logger,
		cfg:    cfg,
		client: anthropic.NewClient(opts...),
	}, nil
}

func (c *Client) SetSystemPrompt(prompt string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.system = prompt
}

func (c *Client) SetTools(tools []llm.FunctionDeclaration) {
	out := toAnthropicTools(tools)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools = out
}

func (c *Client) InvokeWithPrompt(ctx context.Context, text string) (llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.appendUser(anthropic.NewTextBlock(text))
	return c.call(ctx)
}

// Invoke sends all results as tool_result blocks of a single user message.
func (c *Client) Invoke(ctx context.Context, results []llm.ToolResult) (llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.appendToolResults(results)
	return c.call(ctx)
}

func (c *Client) AppendToolResults(results []llm.ToolResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.appendToolResults(results)
}

func (c *Client) appendToolResults(results []llm.ToolResult) {
	if len(results) == 0 {
		return
	}
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, anthropic.NewToolResultBlock(r.ToolCallID, r.Content, r.IsError))
	}
	c.appendUser(blocks...)
}

// appendUser adds blocks to the trailing user turn if there is one, so turns
// keep alternating after a round that ended without a model reply.
func (c *Client) appendUser(blocks ...anthropic.ContentBlockParamUnion) {
	if n := len(c.history); n > 0 && c.history[n-1].Role == anthropic.MessageParamRoleUser {
		c.history[n-1].Content = append(c.history[n-1].Content, blocks...)
		return
	}
	c.history = append(c.history, anthropic.NewUserMessage(blocks...))
}

func (c *Client) call(ctx context.Context) (llm.Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: c.cfg.MaxTokens,
		Messages:  c.history,
		Tools:     c.tools,
	}
	if c.system != "" {
		params.System = []anthropic.TextBlockParam{
			{
				Text:         c.system,
				CacheControl: anthropic.NewCacheControlEphemeralParam(),
			},
		}
	}

	c.log.Debug("llm/anthropic: sending request", "model", c.cfg.Model, "messages", len(c.history), "tools", len(c.tools))

	startTime := time.Now()
	resp, err := c.client.Messages.New(ctx, params)
	duration := time.Since(startTime).Seconds()
	if err != nil {
		metrics.LLMCallDuration.WithLabelValues(providerName, "error").Observe(duration)
		return nil, fmt.Errorf("failed to get response: %w", err)
	}
	metrics.LLMCallDuration.WithLabelValues(providerName, "success").Observe(duration)

	c.history = append(c.history, resp.ToParam())

	var texts []string
	var calls []llm.ToolCall
	for _, blk := range resp.Content {
		switch blk.Type {
		case "text":
			if t := blk.AsText().Text; t != "" {
				texts = append(texts, t)
			}
		case "tool_use":
			tu := blk.AsToolUse()
			args := string(tu.Input)
			if args == "" || args == "null" {
				args = "{}"
			}
			calls = append(calls, llm.ToolCall{
				ID:        tu.ID,
				Name:      tu.Name,
				Arguments: args,
			})
		}
	}

	if len(calls) > 0 {
		c.log.Debug("llm/anthropic: received tool calls", "count", len(calls))
		return llm.ToolCallsRequested{Calls: calls}, nil
	}
	c.log.Debug("llm/anthropic: received final text", "stopReason", resp.StopReason)
	return llm.FinalText{Text: strings.Join(texts, "\n")}, nil
}

func toAnthropicTools(tools []llm.FunctionDeclaration) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		props, _ := t.Function.Parameters["properties"].(map[string]any)
		toolParam := anthropic.ToolParam{
			Name:        t.Function.Name,
			Description: anthropic.Opt(t.Function.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Type:       "object",
				Properties: props,
				Required:   requiredFields(t.Function.Parameters["required"]),
			},
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &toolParam})
	}
	return out
}

// requiredFields accepts both []string and the []any produced by decoding
// JSON.
func requiredFields(v any) []string {
	switch r := v.(type) {
	case []string:
		return r
	case []any:
		out := make([]string, 0, len(r))
		for _, item := range r {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
