package sqltools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/malbeclabs/mcp-llm-bridge/internal/metrics"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const DefaultToolName = "query_database"

var ErrInvalidArgument = errors.New("invalid argument")

type QueryInput struct {
	Query string `json:"query" jsonschema:"SQL query to execute"`
}

type QueryToolConfig struct {
	Logger   *slog.Logger
	DB       DB
	Registry *Registry

	Name string
}

func (cfg *QueryToolConfig) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.DB == nil {
		return fmt.Errorf("database is required")
	}
	if cfg.Registry == nil {
		return fmt.Errorf("registry is required")
	}
	if cfg.Name == "" {
		cfg.Name = DefaultToolName
	}
	return nil
}

type QueryTool struct {
	log      *slog.Logger
	cfg      QueryToolConfig
	db       DB
	registry *Registry
}

func NewQueryTool(cfg QueryToolConfig) (*QueryTool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate query tool config: %w", err)
	}
	return &QueryTool{
		log:      cfg.Logger,
		cfg:      cfg,
		db:       cfg.DB,
		registry: cfg.Registry,
	}, nil
}

func (t *QueryTool) Name() string {
	return t.cfg.Name
}

func (t *QueryTool) Register(server *mcp.Server) error {
	req, err := jsonschema.For[QueryInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create query input schema: %w", err)
	}

	tool := &mcp.Tool{
		Name:        t.cfg.Name,
		Description: t.registry.ToolDescription(),
		InputSchema: req,
	}

	handler := func(ctx context.Context, _ *mcp.CallToolRequest, req QueryInput) (*mcp.CallToolResult, any, error) {
		startTime := time.Now()
		toolName := t.cfg.Name
		rows, err := t.Execute(ctx, map[string]any{"query": req.Query})
		duration := time.Since(startTime).Seconds()

		if err != nil {
			metrics.MCPToolCallsTotal.WithLabelValues(toolName, "error").Inc()
			metrics.MCPToolCallDuration.WithLabelValues(toolName).Observe(duration)
			return nil, nil, err
		}

		if rows == nil {
			rows = []*Row{}
		}
		text, err := json.Marshal(rows)
		if err != nil {
			metrics.MCPToolCallsTotal.WithLabelValues(toolName, "error").Inc()
			metrics.MCPToolCallDuration.WithLabelValues(toolName).Observe(duration)
			return nil, nil, fmt.Errorf("failed to encode rows: %w", err)
		}

		metrics.MCPToolCallsTotal.WithLabelValues(toolName, "success").Inc()
		metrics.MCPToolCallDuration.WithLabelValues(toolName).Observe(duration)
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(text)}},
		}, nil, nil
	}

	mcp.AddTool(server, tool, handler)

	return nil
}

// Execute runs params["query"] after validating it against the registry. A
// connection is opened for the call and closed before returning.
func (t *QueryTool) Execute(ctx context.Context, params map[string]any) ([]*Row, error) {
	raw, ok := params["query"]
	if !ok {
		return nil, fmt.Errorf("%w: query parameter is required", ErrInvalidArgument)
	}
	query, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("%w: query parameter must be a string, got %T", ErrInvalidArgument, raw)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query parameter is required", ErrInvalidArgument)
	}
	if !t.registry.ValidateQuery(query) {
		return nil, fmt.Errorf("%w: query references invalid columns", ErrInvalidArgument)
	}

	t.log.Debug("query: executing query", "query", query)

	startTime := time.Now()
	rows, err := t.runQuery(ctx, query)
	metrics.DatabaseQueryDuration.Observe(time.Since(startTime).Seconds())
	if err != nil {
		metrics.DatabaseQueriesTotal.WithLabelValues("error").Inc()
		t.log.Warn("query: query failed", "query", query, "error", err)
		return nil, err
	}
	metrics.DatabaseQueriesTotal.WithLabelValues("success").Inc()

	t.log.Debug("query: query completed", "rows", len(rows))
	return rows, nil
}

func (t *QueryTool) runQuery(ctx context.Context, query string) ([]*Row, error) {
	conn, err := t.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	var result []*Row
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := NewRow()
		for i, col := range columns {
			switch v := values[i].(type) {
			case []byte:
				row.Set(col, string(v))
			default:
				row.Set(col, v)
			}
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return result, nil
}
