package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/malbeclabs/mcp-llm-bridge/internal/llm"
	"github.com/malbeclabs/mcp-llm-bridge/internal/metrics"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"

	providerName = "openai"
	maxErrorBody = 4096
)

type Config struct {
	Logger *slog.Logger

	BaseURL    string
	APIKey     string
	Model      string
	MaxTokens  int64
	HTTPClient *http.Client
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	return nil
}

// Client speaks the chat completions API. It works against OpenAI and
// compatible servers such as Ollama's /v1 endpoint.
type Client struct {
	log *slog.Logger
	cfg Config

	mu      sync.Mutex
	system  string
	tools   []chatToolDef
	history []chatMessage
}

func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate openai config: %w", err)
	}
	return &Client{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

func (c *Client) SetSystemPrompt(prompt string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.system = prompt
}

func (c *Client) SetTools(tools []llm.FunctionDeclaration) {
	defs := make([]chatToolDef, 0, len(tools))
	for _, t := range tools {
		params, _ := json.Marshal(t.Function.Parameters)
		if string(params) == "null" {
			params = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		defs = append(defs, chatToolDef{
			Type: "function",
			Function: chatToolDefFn{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  params,
			},
		})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools = defs
}

func (c *Client) InvokeWithPrompt(ctx context.Context, text string) (llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.history = append(c.history, chatMessage{Role: "user", Content: text})
	return c.complete(ctx)
}

func (c *Client) Invoke(ctx context.Context, results []llm.ToolResult) (llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.appendToolResults(results)
	return c.complete(ctx)
}

func (c *Client) AppendToolResults(results []llm.ToolResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.appendToolResults(results)
}

func (c *Client) appendToolResults(results []llm.ToolResult) {
	for _, r := range results {
		c.history = append(c.history, chatMessage{
			Role:       "tool",
			ToolCallID: r.ToolCallID,
			Content:    r.Content,
		})
	}
}

// snapshot returns a copy of the conversation so far, system prompt excluded.
func (c *Client) snapshot() []chatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]chatMessage, len(c.history))
	copy(out, c.history)
	return out
}

func (c *Client) complete(ctx context.Context) (llm.Response, error) {
	msgs := make([]chatMessage, 0, len(c.history)+1)
	if c.system != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: c.system})
	}
	msgs = append(msgs, c.history...)

	req := chatRequest{
		Model:     c.cfg.Model,
		Messages:  msgs,
		Tools:     c.tools,
		MaxTokens: c.cfg.MaxTokens,
	}

	c.log.Debug("llm/openai: sending request", "model", c.cfg.Model, "messages", len(msgs), "tools", len(c.tools))

	startTime := time.Now()
	resp, err := c.chat(ctx, req)
	duration := time.Since(startTime).Seconds()
	if err != nil {
		metrics.LLMCallDuration.WithLabelValues(providerName, "error").Observe(duration)
		return nil, fmt.Errorf("failed to get response: %w", err)
	}
	metrics.LLMCallDuration.WithLabelValues(providerName, "success").Observe(duration)

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("response has no choices")
	}
	msg := resp.Choices[0].Message
	if msg.Role == "" {
		msg.Role = "assistant"
	}
	for i := range msg.ToolCalls {
		if msg.ToolCalls[i].ID == "" {
			msg.ToolCalls[i].ID = fmt.Sprintf("call_%d_%d", len(c.history), i)
		}
		if msg.ToolCalls[i].Type == "" {
			msg.ToolCalls[i].Type = "function"
		}
	}
	c.history = append(c.history, msg)

	if len(msg.ToolCalls) == 0 {
		c.log.Debug("llm/openai: received final text", "chars", len(msg.Content))
		return llm.FinalText{Text: msg.Content}, nil
	}

	calls := make([]llm.ToolCall, 0, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		calls = append(calls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: string(tc.Function.Arguments),
		})
	}
	c.log.Debug("llm/openai: received tool calls", "count", len(calls))
	return llm.ToolCallsRequested{Calls: calls}, nil
}

func (c *Client) chat(ctx context.Context, req chatRequest) (chatResponse, error) {
	var out chatResponse

	b, err := json.Marshal(req)
	if err != nil {
		return out, fmt.Errorf("json marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return out, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return out, fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return out, fmt.Errorf("chat completions http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decode response: %w", err)
	}
	if out.Error != nil {
		return out, fmt.Errorf("chat completions error: %s", out.Error.Message)
	}
	return out, nil
}
