package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	sqltools "github.com/malbeclabs/mcp-llm-bridge/internal/tools/sql"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "LLM_PROVIDER", "LLM_MODEL",
		"LLM_BASE_URL", "MCP_URL", "MCP_TOKEN", "BRIDGE_DB_PATH",
	} {
		t.Setenv(k, "")
	}
}

func TestConfig_Load_File(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mcp:
  command: uvx
  args: [mcp-server-sqlite, --db-path, test.db]
llm:
  provider: anthropic
  model: claude-test
  api_key: sk-file
  max_tokens: 2048
database:
  path: /tmp/demo.db
system_prompt: Test system prompt
max_rounds: 4
call_timeout: 30s
schemas:
  - table: orders
    description: Customer orders
    columns:
      - {name: id, type: INTEGER}
      - {name: total, type: REAL}
`), 0o644))

	cfg, err := Load(testLogger(t), path)
	require.NoError(t, err)

	require.Equal(t, "uvx", cfg.MCP.Command)
	require.Equal(t, []string{"mcp-server-sqlite", "--db-path", "test.db"}, cfg.MCP.Args)
	require.Equal(t, ProviderAnthropic, cfg.LLM.Provider)
	require.Equal(t, "claude-test", cfg.LLM.Model)
	require.Equal(t, "sk-file", cfg.LLM.APIKey)
	require.Equal(t, int64(2048), cfg.LLM.MaxTokens)
	require.Equal(t, "/tmp/demo.db", cfg.Database.Source())
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "Test system prompt", cfg.SystemPrompt)
	require.Equal(t, 4, cfg.MaxRounds)
	require.Equal(t, 30*time.Second, cfg.CallTimeout)
	require.Len(t, cfg.Schemas, 1)
	require.Equal(t, "orders", cfg.Schemas[0].Table)
	require.Equal(t, "total", cfg.Schemas[0].Columns[1].Name)
}

func TestConfig_Load_Errors(t *testing.T) {
	clearEnv(t)

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(testLogger(t), filepath.Join(t.TempDir(), "missing.yaml"))
		require.ErrorContains(t, err, "failed to read config file")
	})

	t.Run("unknown field", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("unknown_key: 1\n"), 0o644))
		_, err := Load(testLogger(t), path)
		require.ErrorContains(t, err, "failed to parse config file")
	})

	t.Run("empty file uses defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.yaml")
		require.NoError(t, os.WriteFile(path, nil, 0o644))
		cfg, err := Load(testLogger(t), path)
		require.NoError(t, err)
		require.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	})
}

func TestConfig_ApplyEnv(t *testing.T) {
	t.Parallel()

	t.Run("overrides", func(t *testing.T) {
		t.Parallel()

		cfg := &Config{MCP: MCPConfig{Command: "uvx", Args: []string{"x"}}}
		cfg.applyEnv(envMap(map[string]string{
			"LLM_PROVIDER":   "openai",
			"LLM_MODEL":      "llama3.2",
			"LLM_BASE_URL":   "http://localhost:11434/v1",
			"OPENAI_API_KEY": "sk-env",
			"MCP_URL":        "http://localhost:8080/mcp",
			"MCP_TOKEN":      "tok",
			"BRIDGE_DB_PATH": "/data/bridge.db",
		}))

		require.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
		require.Equal(t, "llama3.2", cfg.LLM.Model)
		require.Equal(t, "http://localhost:11434/v1", cfg.LLM.BaseURL)
		require.Equal(t, "sk-env", cfg.LLM.APIKey)
		require.Equal(t, "http://localhost:8080/mcp", cfg.MCP.Endpoint)
		require.Empty(t, cfg.MCP.Command)
		require.Nil(t, cfg.MCP.Args)
		require.Equal(t, "tok", cfg.MCP.Token)
		require.Equal(t, "/data/bridge.db", cfg.Database.Path)
	})

	t.Run("picks key for provider", func(t *testing.T) {
		t.Parallel()

		cfg := &Config{LLM: LLMConfig{Provider: ProviderAnthropic}}
		cfg.applyEnv(envMap(map[string]string{
			"OPENAI_API_KEY":    "sk-openai",
			"ANTHROPIC_API_KEY": "sk-ant",
		}))
		require.Equal(t, "sk-ant", cfg.LLM.APIKey)
	})

	t.Run("file key wins", func(t *testing.T) {
		t.Parallel()

		cfg := &Config{LLM: LLMConfig{APIKey: "sk-file"}}
		cfg.applyEnv(envMap(map[string]string{"OPENAI_API_KEY": "sk-env"}))
		require.Equal(t, "sk-file", cfg.LLM.APIKey)
	})
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		cfg := &Config{}
		require.NoError(t, cfg.Validate())
		require.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
		require.Equal(t, defaultOpenAIModel, cfg.LLM.Model)
		require.Equal(t, "sqlite", cfg.Database.Driver)
		require.Equal(t, "test.db", cfg.Database.Path)
		require.Equal(t, defaultMaxRounds, cfg.MaxRounds)
		require.NotEmpty(t, cfg.SystemPrompt)
		require.Len(t, cfg.Schemas, 2)
	})

	t.Run("anthropic default model", func(t *testing.T) {
		t.Parallel()

		cfg := &Config{LLM: LLMConfig{Provider: ProviderAnthropic}}
		require.NoError(t, cfg.Validate())
		require.Equal(t, defaultAnthropicModel, cfg.LLM.Model)
	})

	tests := []struct {
		name string
		cfg  Config
		err  string
	}{
		{name: "unknown provider", cfg: Config{LLM: LLMConfig{Provider: "gemini"}}, err: "unsupported llm provider"},
		{name: "command and endpoint", cfg: Config{MCP: MCPConfig{Command: "x", Endpoint: "http://y"}}, err: "mutually exclusive"},
		{name: "unknown driver", cfg: Config{Database: DatabaseConfig{Driver: "oracle"}}, err: "unsupported driver"},
		{name: "negative rounds", cfg: Config{MaxRounds: -1}, err: "max_rounds"},
		{name: "negative timeout", cfg: Config{CallTimeout: -time.Second}, err: "call_timeout"},
		{name: "schema without table", cfg: Config{Schemas: []sqltools.Schema{{Description: "x"}}}, err: "table is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := tt.cfg
			require.ErrorContains(t, cfg.Validate(), tt.err)
		})
	}
}

func TestConfig_Redacted(t *testing.T) {
	t.Parallel()

	cfg := Config{
		LLM: LLMConfig{APIKey: "sk-secret"},
		MCP: MCPConfig{Token: "tok-secret"},
	}
	r := cfg.Redacted()
	require.Equal(t, "[redacted]", r.LLM.APIKey)
	require.Equal(t, "[redacted]", r.MCP.Token)
	require.Equal(t, "sk-secret", cfg.LLM.APIKey)

	require.NotContains(t, cfg.LogValue().String(), "sk-secret")
	require.NotContains(t, cfg.LogValue().String(), "tok-secret")
}
