package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/malbeclabs/mcp-llm-bridge/internal/config"
	"github.com/malbeclabs/mcp-llm-bridge/internal/store"
	sqltools "github.com/malbeclabs/mcp-llm-bridge/internal/tools/sql"
)

type QueryCmd struct{}

func NewQueryCmd() *QueryCmd {
	return &QueryCmd{}
}

func (c *QueryCmd) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a validated SQL query against the configured database",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnv(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			tool, err := newQueryTool(env, env.cfg.Database)
			if err != nil {
				return err
			}

			rows, err := tool.Execute(ctx, map[string]any{"query": strings.Join(args, " ")})
			if err != nil {
				return err
			}
			renderRows(cmd.OutOrStdout(), rows)
			return nil
		},
	}
}

func newStore(env *env, db config.DatabaseConfig) (*store.Store, error) {
	driver, err := store.ParseDriver(db.Driver)
	if err != nil {
		return nil, err
	}
	s, err := store.New(store.Config{
		Logger: env.log,
		Driver: driver,
		DSN:    db.Source(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	return s, nil
}

func newQueryTool(env *env, db config.DatabaseConfig) (*sqltools.QueryTool, error) {
	s, err := newStore(env, db)
	if err != nil {
		return nil, err
	}
	return sqltools.NewQueryTool(sqltools.QueryToolConfig{
		Logger:   env.log,
		DB:       s,
		Registry: sqltools.NewRegistry(env.cfg.Schemas...),
	})
}

// renderRows writes rows as a table with columns in the order of the first
// row.
func renderRows(w io.Writer, rows []*sqltools.Row) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "(no rows)")
		return
	}

	header := rows[0].Keys()
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(true)
	table.SetHeader(header)

	for _, row := range rows {
		cells := make([]string, len(header))
		for i, key := range header {
			v, ok := row.Get(key)
			if !ok || v == nil {
				cells[i] = "NULL"
				continue
			}
			cells[i] = fmt.Sprint(v)
		}
		table.Append(cells)
	}
	table.Render()
	fmt.Fprintf(w, "(%d rows)\n", len(rows))
}
