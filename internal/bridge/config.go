package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/malbeclabs/mcp-llm-bridge/internal/llm"
	mcpclient "github.com/malbeclabs/mcp-llm-bridge/internal/mcp/client"
)

const (
	defaultMaxRounds = 10
)

// ToolSpec is a tool as advertised by the MCP server.
type ToolSpec = mcpclient.Tool

// ToolClient is the MCP surface the bridge drives. Close must be safe to call
// more than once.
type ToolClient interface {
	Connect(ctx context.Context) error
	ListTools(ctx context.Context) ([]ToolSpec, error)
	CallTool(ctx context.Context, name string, args map[string]any) (result string, isError bool, err error)
	Close() error
}

type Config struct {
	Logger     *slog.Logger
	ToolClient ToolClient
	LLM        llm.Client

	SystemPrompt string

	// MaxRounds bounds the number of tool-call rounds per message.
	MaxRounds int

	// CallTimeout bounds each connect, list, LLM and tool call when set.
	CallTimeout time.Duration

	// PropagateToolErrors returns a failing tool call from ProcessMessage
	// instead of reporting it to the model as an error result.
	PropagateToolErrors bool
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.ToolClient == nil {
		return fmt.Errorf("tool client is required")
	}
	if c.LLM == nil {
		return fmt.Errorf("llm client is required")
	}
	if c.MaxRounds < 0 {
		return fmt.Errorf("max rounds must be non-negative")
	}
	if c.MaxRounds == 0 {
		c.MaxRounds = defaultMaxRounds
	}
	if c.CallTimeout < 0 {
		return fmt.Errorf("call timeout must be non-negative")
	}
	return nil
}
