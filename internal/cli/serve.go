package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	mcpserver "github.com/malbeclabs/mcp-llm-bridge/internal/mcp/server"
	sqltools "github.com/malbeclabs/mcp-llm-bridge/internal/tools/sql"
)

type ServeCmd struct {
	dbPath     string
	dsn        string
	driver     string
	listenAddr string
}

func NewServeCmd() *ServeCmd {
	return &ServeCmd{}
}

func (c *ServeCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve-mcp",
		Short: "Run the MCP server exposing the database query tool",
		Long: "Run the MCP server exposing the database query tool. It speaks MCP over " +
			"stdio unless --listen-addr is set, in which case it serves streamable HTTP.",
		Args: cobra.NoArgs,
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

			db := env.cfg.Database
			if c.driver != "" {
				db.Driver = c.driver
			}
			if c.dbPath != "" {
				db.Path = c.dbPath
				db.DSN = ""
			}
			if c.dsn != "" {
				db.DSN = c.dsn
			}

			s, err := newStore(env, db)
			if err != nil {
				return err
			}

			srv, err := mcpserver.New(mcpserver.Config{
				Logger:     env.log,
				DB:         s,
				Registry:   sqltools.NewRegistry(env.cfg.Schemas...),
				Version:    version,
				ListenAddr: c.listenAddr,
			})
			if err != nil {
				return fmt.Errorf("failed to create mcp server: %w", err)
			}
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&c.dbPath, "db-path", "", "path of the database file")
	cmd.Flags().StringVar(&c.dsn, "dsn", "", "data source name, overrides --db-path")
	cmd.Flags().StringVar(&c.driver, "driver", "", "database driver (sqlite, duckdb, pgx)")
	cmd.Flags().StringVar(&c.listenAddr, "listen-addr", "", "serve streamable HTTP on this address instead of stdio")

	return cmd
}
