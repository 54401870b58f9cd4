package sqltools

import (
	"context"

	"github.com/malbeclabs/mcp-llm-bridge/internal/store"
)

type DB interface {
	Conn(ctx context.Context) (store.Connection, error)
}
