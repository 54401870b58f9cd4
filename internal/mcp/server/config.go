package server

import (
	"fmt"
	"log/slog"
	"time"

	sqltools "github.com/malbeclabs/mcp-llm-bridge/internal/tools/sql"
)

const (
	defaultReadHeaderTimeout = 5 * time.Second
	defaultShutdownTimeout   = 5 * time.Second
)

type Config struct {
	Logger   *slog.Logger
	DB       sqltools.DB
	Registry *sqltools.Registry

	Version           string
	ListenAddr        string // serves stdio when empty
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.DB == nil {
		return fmt.Errorf("database is required")
	}
	if c.Registry == nil {
		return fmt.Errorf("registry is required")
	}
	if c.Version == "" {
		c.Version = "dev"
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = defaultReadHeaderTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	return nil
}
