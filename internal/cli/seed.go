package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/malbeclabs/mcp-llm-bridge/internal/dataset"
)

type SeedCmd struct {
	path string
}

func NewSeedCmd() *SeedCmd {
	return &SeedCmd{}
}

func (c *SeedCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the demo products database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnv(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			path := c.path
			if path == "" {
				path = env.cfg.Database.Path
			}

			res, err := dataset.Create(ctx, env.log, path)
			if err != nil {
				return fmt.Errorf("failed to create dataset: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s with %d products and %d categories\n", res.Path, res.Products, res.Categories)
			return nil
		},
	}

	cmd.Flags().StringVar(&c.path, "db-path", "", "path of the SQLite file to create (defaults to the configured database path)")

	return cmd
}
