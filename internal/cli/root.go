package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/malbeclabs/mcp-llm-bridge/internal/config"
	"github.com/malbeclabs/mcp-llm-bridge/internal/logger"
	"github.com/malbeclabs/mcp-llm-bridge/internal/metrics"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

// Set by LDFLAGS
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func Run() ExitCode {
	rootCmd := &cobra.Command{
		Use:           "mcp-llm-bridge",
		Short:         "Bridge between an MCP tool server and an LLM.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := cmd.Help()
			if err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}

	var verbose bool
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "set debug logging level")

	var configPath string
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	var metricsAddr string
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve prometheus metrics on")

	rootCmd.AddCommand(
		NewChatCmd().Command(),
		NewSeedCmd().Command(),
		NewQueryCmd().Command(),
		NewServeCmd().Command(),
		NewVersionCmd().Command(),
	)

	if err := rootCmd.Execute(); err != nil {
		log := logger.New(verbose)
		log.Error("command failed", "error", err)
		return exitCodeError
	}

	return exitCodeSuccess
}

// env is the shared setup every subcommand starts from.
type env struct {
	log *slog.Logger
	cfg *config.Config
}

func loadEnv(cmd *cobra.Command) (*env, error) {
	flags := cmd.Root().PersistentFlags()
	verbose, err := flags.GetBool("verbose")
	if err != nil {
		return nil, fmt.Errorf("failed to get verbose flag: %w", err)
	}
	configPath, err := flags.GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}

	log := logger.New(verbose)
	cfg, err := config.Load(log, configPath)
	if err != nil {
		return nil, err
	}
	log.Debug("config loaded", "config", cfg)

	return &env{log: log, cfg: cfg}, nil
}

// startMetrics serves /metrics on the --metrics-addr flag until ctx is done.
// It is a no-op when the flag is empty.
func startMetrics(ctx context.Context, cmd *cobra.Command, log *slog.Logger) error {
	addr, err := cmd.Root().PersistentFlags().GetString("metrics-addr")
	if err != nil {
		return fmt.Errorf("failed to get metrics-addr flag: %w", err)
	}
	if addr == "" {
		return nil
	}
	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start prometheus metrics server listener: %w", err)
	}
	log.Info("prometheus metrics server listening", "address", listener.Addr().String())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("prometheus metrics server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return nil
}

type VersionCmd struct{}

func NewVersionCmd() *VersionCmd {
	return &VersionCmd{}
}

func (c *VersionCmd) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mcp-llm-bridge %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
