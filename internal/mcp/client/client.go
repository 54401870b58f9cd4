package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	defaultRequestTimeout  = 120 * time.Second
	defaultConnectAttempts = 3
)

var (
	ErrNotConnected = errors.New("session not connected")

	mcpClientImplementation = &mcp.Implementation{
		Name:    "mcp-llm-bridge-client",
		Version: "1.0.0",
	}
)

type Config struct {
	Logger *slog.Logger

	// Command launches a server speaking MCP over stdio.
	Command string
	Args    []string
	Env     []string
	Stderr  io.Writer

	// Endpoint connects to a streamable HTTP server instead of Command.
	Endpoint string
	Token    string // Optional Bearer token for authentication

	// Transport overrides Command and Endpoint. It is used for a single
	// connection, so a client built on it does not reconnect.
	Transport mcp.Transport

	// NewTransport overrides Command and Endpoint with a transport built per
	// connection attempt.
	NewTransport func() mcp.Transport

	RequestTimeout  time.Duration
	ConnectAttempts uint
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Transport == nil && c.NewTransport == nil && c.Command == "" && c.Endpoint == "" {
		return fmt.Errorf("command, endpoint or transport is required")
	}
	if c.Command != "" && c.Endpoint != "" {
		return fmt.Errorf("command and endpoint are mutually exclusive")
	}
	if c.Stderr == nil {
		c.Stderr = os.Stderr
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.ConnectAttempts == 0 {
		c.ConnectAttempts = defaultConnectAttempts
	}
	return nil
}

type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

type Client struct {
	log       *slog.Logger
	cfg       *Config
	session   *mcp.ClientSession
	sessionMu sync.RWMutex
	closed    bool
	mcpClient *mcp.Client
}

func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		log:       cfg.Logger,
		cfg:       &cfg,
		mcpClient: mcp.NewClient(mcpClientImplementation, nil),
	}, nil
}

func (c *Client) target() string {
	switch {
	case c.cfg.Transport != nil, c.cfg.NewTransport != nil:
		return "custom"
	case c.cfg.Endpoint != "":
		return c.cfg.Endpoint
	default:
		return c.cfg.Command
	}
}

// newTransport builds a fresh transport per attempt; a command transport can
// only be started once.
func (c *Client) newTransport() mcp.Transport {
	if c.cfg.Transport != nil {
		return c.cfg.Transport
	}
	if c.cfg.NewTransport != nil {
		return c.cfg.NewTransport()
	}
	if c.cfg.Endpoint != "" {
		var rt http.RoundTripper = http.DefaultTransport
		if c.cfg.Token != "" {
			rt = &tokenTransport{base: rt, token: c.cfg.Token}
		}
		return &mcp.StreamableClientTransport{
			Endpoint:   c.cfg.Endpoint,
			HTTPClient: &http.Client{Timeout: c.cfg.RequestTimeout, Transport: rt},
		}
	}
	cmd := exec.Command(c.cfg.Command, c.cfg.Args...)
	cmd.Env = append(os.Environ(), c.cfg.Env...)
	cmd.Stderr = c.cfg.Stderr
	return &mcp.CommandTransport{Command: cmd}
}

// connectAttempts is ConnectAttempts for HTTP endpoints and NewTransport. A
// fixed Transport can only be used once, and each command attempt would
// spawn another server process, so both get a single attempt.
func (c *Client) connectAttempts() uint {
	if c.cfg.Transport != nil {
		return 1
	}
	if c.cfg.NewTransport == nil && c.cfg.Endpoint == "" {
		return 1
	}
	return c.cfg.ConnectAttempts
}

// Connect establishes the session, retrying with exponential backoff up to
// the number of attempts allowed for the transport.
func (c *Client) Connect(ctx context.Context) error {
	attempts := c.connectAttempts()

	session, err := backoff.Retry(ctx, func() (*mcp.ClientSession, error) {
		session, err := c.mcpClient.Connect(ctx, c.newTransport(), nil)
		if err != nil {
			c.log.Warn("mcp/client: connect attempt failed", "target", c.target(), "error", err)
			return nil, err
		}
		return session, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(attempts))
	if err != nil {
		return fmt.Errorf("failed to connect to MCP server: %w", err)
	}

	c.sessionMu.Lock()
	if c.session != nil {
		_ = c.session.Close()
	}
	c.session = session
	c.closed = false
	c.sessionMu.Unlock()

	c.log.Info("mcp/client: connected to server", "target", c.target())
	return nil
}

// reconnect replaces a broken session. It refuses after Close and for a fixed
// Transport, which cannot be dialed again.
func (c *Client) reconnect(ctx context.Context) error {
	c.sessionMu.Lock()
	if c.closed {
		c.sessionMu.Unlock()
		return ErrNotConnected
	}
	if c.cfg.Transport != nil {
		c.sessionMu.Unlock()
		return fmt.Errorf("transport does not support reconnecting")
	}
	if c.session != nil {
		_ = c.session.Close()
		c.session = nil
	}
	c.sessionMu.Unlock()

	c.log.Warn("mcp/client: attempting to reconnect", "target", c.target())
	return c.Connect(ctx)
}

// isConnectionError reports whether err means the session's connection is
// gone and a reconnect may help.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, mcp.ErrConnectionClosed) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "connection closed") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "client is closing") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "closed pipe") ||
		strings.Contains(errStr, "connection reset")
}

func (c *Client) currentSession() (*mcp.ClientSession, error) {
	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()
	if c.session == nil {
		return nil, ErrNotConnected
	}
	return c.session, nil
}

func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	c.log.Debug("mcp/client: listing available tools")

	session, err := c.currentSession()
	if err != nil {
		return nil, err
	}

	result, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	if isConnectionError(err) {
		c.log.Warn("mcp/client: connection error, attempting reconnect", "error", err)
		if reconnectErr := c.reconnect(ctx); reconnectErr != nil {
			return nil, fmt.Errorf("failed to reconnect: %w (original error: %w)", reconnectErr, err)
		}
		if session, err = c.currentSession(); err != nil {
			return nil, err
		}
		result, err = session.ListTools(ctx, &mcp.ListToolsParams{})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	tools := make([]Tool, 0, len(result.Tools))
	for _, t := range result.Tools {
		inputSchema, _ := t.InputSchema.(map[string]any)
		tools = append(tools, Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: inputSchema,
		})
	}

	c.log.Debug("mcp/client: found tools", "count", len(tools))
	return tools, nil
}

// CallTool returns the text content of the result joined by newlines and
// whether the server flagged it as an error.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, bool, error) {
	c.log.Debug("mcp/client: calling tool", "name", name)

	session, err := c.currentSession()
	if err != nil {
		return "", true, err
	}

	params := &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	}
	result, err := session.CallTool(ctx, params)
	if isConnectionError(err) {
		c.log.Warn("mcp/client: connection error, attempting reconnect", "name", name, "error", err)
		if reconnectErr := c.reconnect(ctx); reconnectErr != nil {
			return "", true, fmt.Errorf("failed to reconnect: %w (original error: %w)", reconnectErr, err)
		}
		if session, err = c.currentSession(); err != nil {
			return "", true, err
		}
		result, err = session.CallTool(ctx, params)
	}
	if err != nil {
		return "", true, fmt.Errorf("failed to call tool %q: %w", name, err)
	}

	var textParts []string
	for _, content := range result.Content {
		if textContent, ok := content.(*mcp.TextContent); ok {
			textParts = append(textParts, textContent.Text)
		}
	}
	str := strings.Join(textParts, "\n")

	if result.IsError {
		c.log.Warn("mcp/client: tool returned error result", "name", name, "error", str)
	} else {
		c.log.Debug("mcp/client: called tool", "name", name, "chars", len(str))
	}
	return str, result.IsError, nil
}

func (c *Client) Close() error {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	c.closed = true
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	c.log.Debug("mcp/client: closed session")
	return err
}

type tokenTransport struct {
	base  http.RoundTripper
	token string
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", t.token))
	return t.base.RoundTrip(req)
}
