package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/malbeclabs/mcp-llm-bridge/internal/dataset"
	"github.com/malbeclabs/mcp-llm-bridge/internal/store"
	sqltools "github.com/malbeclabs/mcp-llm-bridge/internal/tools/sql"
)

type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

const (
	defaultProvider       = ProviderOpenAI
	defaultOpenAIModel    = "gpt-4o"
	defaultAnthropicModel = "claude-sonnet-4-5"
	defaultDriver         = string(store.DriverSQLite)
	defaultMaxRounds      = 10
	defaultSystemPrompt   = "You are a helpful assistant that can query a database. Use the available tools to answer questions about the data."
	redacted              = "[redacted]"
)

type Config struct {
	MCP      MCPConfig      `yaml:"mcp"`
	LLM      LLMConfig      `yaml:"llm"`
	Database DatabaseConfig `yaml:"database"`

	SystemPrompt        string            `yaml:"system_prompt"`
	MaxRounds           int               `yaml:"max_rounds"`
	CallTimeout         time.Duration     `yaml:"call_timeout"`
	PropagateToolErrors bool              `yaml:"propagate_tool_errors"`
	Schemas             []sqltools.Schema `yaml:"schemas"`
}

// MCPConfig selects the MCP server. With neither Command nor Endpoint set
// the bridge launches its own bundled server over stdio.
type MCPConfig struct {
	Command  string   `yaml:"command"`
	Args     []string `yaml:"args"`
	Env      []string `yaml:"env"`
	Endpoint string   `yaml:"endpoint"`
	Token    string   `yaml:"token"`
}

type LLMConfig struct {
	Provider  Provider `yaml:"provider"`
	Model     string   `yaml:"model"`
	BaseURL   string   `yaml:"base_url"`
	APIKey    string   `yaml:"api_key"`
	MaxTokens int64    `yaml:"max_tokens"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// Source returns the data source name for the configured driver.
func (d DatabaseConfig) Source() string {
	if d.DSN != "" {
		return d.DSN
	}
	return d.Path
}

// Load reads .env if present, then the YAML file at path if given, then
// applies environment overrides and validates the result.
func Load(log *slog.Logger, path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("config: failed to load .env file", "error", err)
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		log.Debug("config: loaded file", "path", path)
	}

	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("LLM_PROVIDER"); v != "" {
		c.LLM.Provider = Provider(v)
	}
	if v := getenv("LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := getenv("LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case ProviderAnthropic:
			c.LLM.APIKey = getenv("ANTHROPIC_API_KEY")
		case ProviderOpenAI, "":
			c.LLM.APIKey = getenv("OPENAI_API_KEY")
		}
	}
	if v := getenv("MCP_URL"); v != "" {
		c.MCP.Endpoint = v
		c.MCP.Command = ""
		c.MCP.Args = nil
	}
	if v := getenv("MCP_TOKEN"); v != "" {
		c.MCP.Token = v
	}
	if v := getenv("BRIDGE_DB_PATH"); v != "" {
		c.Database.Path = v
	}
}

// Validate fills defaults and rejects inconsistent settings.
func (c *Config) Validate() error {
	if c.LLM.Provider == "" {
		c.LLM.Provider = defaultProvider
	}
	switch c.LLM.Provider {
	case ProviderOpenAI:
		if c.LLM.Model == "" {
			c.LLM.Model = defaultOpenAIModel
		}
	case ProviderAnthropic:
		if c.LLM.Model == "" {
			c.LLM.Model = defaultAnthropicModel
		}
	default:
		return fmt.Errorf("unsupported llm provider %q", c.LLM.Provider)
	}
	if c.LLM.MaxTokens < 0 {
		return fmt.Errorf("llm max_tokens must be non-negative")
	}

	if c.MCP.Command != "" && c.MCP.Endpoint != "" {
		return fmt.Errorf("mcp command and endpoint are mutually exclusive")
	}

	if c.Database.Driver == "" {
		c.Database.Driver = defaultDriver
	}
	if _, err := store.ParseDriver(c.Database.Driver); err != nil {
		return err
	}
	if c.Database.Path == "" && c.Database.DSN == "" {
		c.Database.Path = dataset.DefaultPath
	}

	if c.SystemPrompt == "" {
		c.SystemPrompt = defaultSystemPrompt
	}
	if c.MaxRounds < 0 {
		return fmt.Errorf("max_rounds must be non-negative")
	}
	if c.MaxRounds == 0 {
		c.MaxRounds = defaultMaxRounds
	}
	if c.CallTimeout < 0 {
		return fmt.Errorf("call_timeout must be non-negative")
	}
	if len(c.Schemas) == 0 {
		c.Schemas = dataset.DefaultSchemas()
	}
	for i, s := range c.Schemas {
		if s.Table == "" {
			return fmt.Errorf("schema %d: table is required", i)
		}
	}
	return nil
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	if c.LLM.APIKey != "" {
		c.LLM.APIKey = redacted
	}
	if c.MCP.Token != "" {
		c.MCP.Token = redacted
	}
	return c
}

func (c Config) LogValue() slog.Value {
	r := c.Redacted()
	return slog.GroupValue(
		slog.String("provider", string(r.LLM.Provider)),
		slog.String("model", r.LLM.Model),
		slog.String("baseURL", r.LLM.BaseURL),
		slog.String("apiKey", r.LLM.APIKey),
		slog.String("mcpCommand", r.MCP.Command),
		slog.String("mcpEndpoint", r.MCP.Endpoint),
		slog.String("mcpToken", r.MCP.Token),
		slog.String("dbDriver", r.Database.Driver),
		slog.String("dbSource", r.Database.Source()),
		slog.Int("maxRounds", r.MaxRounds),
		slog.Duration("callTimeout", r.CallTimeout),
		slog.Int("schemas", len(r.Schemas)),
	)
}
