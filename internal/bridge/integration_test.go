package bridge

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/malbeclabs/mcp-llm-bridge/internal/dataset"
	"github.com/malbeclabs/mcp-llm-bridge/internal/llm"
	mcpclient "github.com/malbeclabs/mcp-llm-bridge/internal/mcp/client"
	mcpserver "github.com/malbeclabs/mcp-llm-bridge/internal/mcp/server"
	"github.com/malbeclabs/mcp-llm-bridge/internal/store"
	sqltools "github.com/malbeclabs/mcp-llm-bridge/internal/tools/sql"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

func TestBridge_Integration_QueryDatabase(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	log := testLogger(t)

	path := filepath.Join(t.TempDir(), "test.db")
	_, err := dataset.Create(ctx, log, path)
	require.NoError(t, err)

	db, err := store.New(store.Config{Logger: log, Driver: store.DriverSQLite, DSN: path})
	require.NoError(t, err)
	srv, err := mcpserver.New(mcpserver.Config{
		Logger:   log,
		DB:       db,
		Registry: sqltools.NewRegistry(dataset.ProductsSchema()),
	})
	require.NoError(t, err)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := srv.MCP().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer serverSession.Close()

	tc, err := mcpclient.New(mcpclient.Config{Logger: log, Transport: clientTransport})
	require.NoError(t, err)

	model := &fakeLLM{script: []llm.Response{
		llm.ToolCallsRequested{Calls: []llm.ToolCall{
			{ID: "q1", Name: "query_database", Arguments: `{"query":"SELECT title, price FROM products WHERE price < 30 ORDER BY price"}`},
			{ID: "q2", Name: "query_database", Arguments: `{"query":"SELECT products.weight FROM products"}`},
		}},
		llm.FinalText{Text: "Five products cost less than $30."},
	}}

	err = Use(ctx, Config{Logger: log, ToolClient: tc, LLM: model}, ManagerOptions{RequireInitialized: true}, func(b *Bridge, ok bool) error {
		require.True(t, ok)
		require.Len(t, b.Tools(), 1)
		require.Contains(t, b.Tools()[0].Function.Description, "Table products")

		out, err := b.ProcessMessage(ctx, "Which products are cheaper than $30?")
		require.NoError(t, err)
		require.Equal(t, "Five products cost less than $30.", out)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, model.results, 1)
	results := model.results[0]
	require.Len(t, results, 2)

	require.Equal(t, "q1", results[0].ToolCallID)
	require.False(t, results[0].IsError)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(results[0].Content), &rows))
	require.Len(t, rows, 5)
	for _, row := range rows {
		require.Len(t, row, 2)
		require.Contains(t, row, "title")
		require.Contains(t, row, "price")
	}
	require.Equal(t, "Notebook", rows[0]["title"])

	require.Equal(t, "q2", results[1].ToolCallID)
	require.True(t, results[1].IsError)
	require.Contains(t, results[1].Content, "query references invalid columns")
}
