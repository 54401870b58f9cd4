package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mcp_llm_bridge_build_info",
			Help: "Build information of the MCP LLM bridge",
		},
		[]string{"version", "commit", "date"},
	)

	BridgeInitializationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcp_llm_bridge_initializations_total",
			Help: "Total number of bridge initializations",
		},
		[]string{"status"},
	)

	BridgeMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcp_llm_bridge_messages_total",
			Help: "Total number of processed user messages",
		},
		[]string{"status"},
	)

	BridgeRoundsPerMessage = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mcp_llm_bridge_rounds_per_message",
			Help:    "Number of tool-call rounds needed to answer a message",
			Buckets: prometheus.LinearBuckets(0, 1, 11),
		},
	)

	BridgeToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcp_llm_bridge_tool_calls_total",
			Help: "Total number of tool calls dispatched by the bridge",
		},
		[]string{"tool_name", "status"},
	)

	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcp_llm_bridge_llm_call_duration_seconds",
			Help:    "Duration of LLM calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 0.05s to ~102s
		},
		[]string{"provider", "status"},
	)

	MCPHTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcp_llm_bridge_mcp_http_requests_total",
			Help: "Total number of HTTP requests to the MCP server",
		},
		[]string{"method", "endpoint", "status"},
	)

	MCPHTTPRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mcp_llm_bridge_mcp_http_request_duration_seconds",
			Help:    "Duration of HTTP requests to the MCP server",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 0.01s to ~41s
		},
	)

	MCPToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcp_llm_bridge_mcp_tool_calls_total",
			Help: "Total number of tool calls served by the MCP server",
		},
		[]string{"tool_name", "status"},
	)

	MCPToolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcp_llm_bridge_mcp_tool_call_duration_seconds",
			Help:    "Duration of tool calls served by the MCP server",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 0.01s to ~41s
		},
		[]string{"tool_name"},
	)

	DatabaseQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcp_llm_bridge_database_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"status"},
	)

	DatabaseQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mcp_llm_bridge_database_query_duration_seconds",
			Help:    "Duration of database queries",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 0.001s to ~4.1s
		},
	)
)
