package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/malbeclabs/mcp-llm-bridge/internal/bridge"
	"github.com/malbeclabs/mcp-llm-bridge/internal/config"
	"github.com/malbeclabs/mcp-llm-bridge/internal/llm"
	"github.com/malbeclabs/mcp-llm-bridge/internal/llm/anthropic"
	"github.com/malbeclabs/mcp-llm-bridge/internal/llm/openai"
	mcpclient "github.com/malbeclabs/mcp-llm-bridge/internal/mcp/client"
	sqltools "github.com/malbeclabs/mcp-llm-bridge/internal/tools/sql"
)

type ChatCmd struct{}

func NewChatCmd() *ChatCmd {
	return &ChatCmd{}
}

func (c *ChatCmd) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Ask the model a question, or start an interactive session",
		Long: "Ask the model a question using the MCP server's tools. Without a prompt " +
			"argument an interactive session reads one message per line until " +
			"\"quit\" or \"exit\".",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnv(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if err := startMetrics(ctx, cmd, env.log); err != nil {
				return err
			}

			configPath, err := cmd.Root().PersistentFlags().GetString("config")
			if err != nil {
				return fmt.Errorf("failed to get config flag: %w", err)
			}
			toolClient, err := newToolClient(env.log, env.cfg, configPath)
			if err != nil {
				return err
			}
			model, err := newLLM(env.log, env.cfg.LLM)
			if err != nil {
				return err
			}

			bcfg := bridge.Config{
				Logger:              env.log,
				ToolClient:          toolClient,
				LLM:                 model,
				SystemPrompt:        systemPrompt(env.cfg),
				MaxRounds:           env.cfg.MaxRounds,
				CallTimeout:         env.cfg.CallTimeout,
				PropagateToolErrors: env.cfg.PropagateToolErrors,
			}

			return bridge.Use(ctx, bcfg, bridge.ManagerOptions{RequireInitialized: true}, func(b *bridge.Bridge, _ bool) error {
				env.log.Info("bridge ready", "tools", len(b.Tools()), "provider", env.cfg.LLM.Provider, "model", env.cfg.LLM.Model)
				if len(args) > 0 {
					reply, err := b.ProcessMessage(ctx, strings.Join(args, " "))
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), reply)
					return nil
				}
				return chatLoop(ctx, env.log, b, cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}
}

// messageProcessor is the part of the bridge the interactive loop drives.
type messageProcessor interface {
	ProcessMessage(ctx context.Context, text string) (string, error)
}

// chatLoop reads one message per line from in and writes each reply to out.
// A failed message is reported and the session continues; only a cancelled
// context or a closed bridge ends it early.
func chatLoop(ctx context.Context, log *slog.Logger, p messageProcessor, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Fprintln(out, "Type a question, or \"quit\" to exit.")
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch strings.ToLower(line) {
		case "quit", "exit":
			return nil
		}

		reply, err := p.ProcessMessage(ctx, line)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, bridge.ErrClosed) {
				return err
			}
			log.Error("failed to process message", "error", err)
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		fmt.Fprintln(out, reply)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	fmt.Fprintln(out)
	return nil
}

func systemPrompt(cfg *config.Config) string {
	desc := sqltools.NewRegistry(cfg.Schemas...).Describe()
	if desc == "" {
		return cfg.SystemPrompt
	}
	return cfg.SystemPrompt + "\n\n" + desc
}

// newToolClient connects to the configured MCP server. With none configured
// it launches this binary's serve-mcp subcommand over stdio.
func newToolClient(log *slog.Logger, cfg *config.Config, configPath string) (*mcpclient.Client, error) {
	ccfg := mcpclient.Config{
		Logger:   log,
		Endpoint: cfg.MCP.Endpoint,
		Token:    cfg.MCP.Token,
		Command:  cfg.MCP.Command,
		Args:     cfg.MCP.Args,
		Env:      cfg.MCP.Env,
		Stderr:   os.Stderr,
	}
	if ccfg.Endpoint == "" && ccfg.Command == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve executable: %w", err)
		}
		ccfg.Command = exe
		ccfg.Args = bundledServerArgs(cfg.Database, configPath)
	}
	client, err := mcpclient.New(ccfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp client: %w", err)
	}
	return client, nil
}

func bundledServerArgs(db config.DatabaseConfig, configPath string) []string {
	args := []string{"serve-mcp", "--driver", db.Driver}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	if db.DSN != "" {
		args = append(args, "--dsn", db.DSN)
	} else {
		args = append(args, "--db-path", db.Path)
	}
	return args
}

func newLLM(log *slog.Logger, cfg config.LLMConfig) (llm.Client, error) {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		c, err := anthropic.New(anthropic.Config{
			Logger:    log,
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create anthropic client: %w", err)
		}
		return c, nil
	case config.ProviderOpenAI:
		c, err := openai.New(openai.Config{
			Logger:    log,
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create openai client: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
