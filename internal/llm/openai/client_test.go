package openai

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/malbeclabs/mcp-llm-bridge/internal/llm"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type recordingServer struct {
	mu        sync.Mutex
	requests  []chatRequest
	authz     []string
	responses []string
	status    int
}

func (s *recordingServer) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req chatRequest
		require.NoError(t, json.Unmarshal(body, &req))

		s.mu.Lock()
		defer s.mu.Unlock()
		s.requests = append(s.requests, req)
		s.authz = append(s.authz, r.Header.Get("Authorization"))

		if s.status != 0 {
			http.Error(w, `{"error":{"message":"rate limited"}}`, s.status)
			return
		}
		resp := s.responses[0]
		s.responses = s.responses[1:]
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(resp))
	})
}

func newTestClient(t *testing.T, srv *recordingServer) *Client {
	t.Helper()
	ts := httptest.NewServer(srv.handler(t))
	t.Cleanup(ts.Close)

	c, err := New(Config{
		Logger:  testLogger(t),
		BaseURL: ts.URL + "/v1/",
		APIKey:  "sk-test",
		Model:   "gpt-test",
	})
	require.NoError(t, err)
	return c
}

func TestLLM_OpenAI_Config_Validate(t *testing.T) {
	t.Parallel()

	t.Run("missing logger", func(t *testing.T) {
		t.Parallel()
		cfg := Config{Model: "m"}
		require.ErrorContains(t, cfg.Validate(), "logger is required")
	})

	t.Run("missing model", func(t *testing.T) {
		t.Parallel()
		cfg := Config{Logger: testLogger(t)}
		require.ErrorContains(t, cfg.Validate(), "model is required")
	})

	t.Run("defaults base url", func(t *testing.T) {
		t.Parallel()
		cfg := Config{Logger: testLogger(t), Model: "m"}
		require.NoError(t, cfg.Validate())
		require.Equal(t, DefaultBaseURL, cfg.BaseURL)
		require.NotNil(t, cfg.HTTPClient)
	})
}

func TestLLM_OpenAI_FinalText(t *testing.T) {
	t.Parallel()

	srv := &recordingServer{responses: []string{
		`{"id":"1","choices":[{"index":0,"message":{"role":"assistant","content":"Hello there"},"finish_reason":"stop"}]}`,
	}}
	c := newTestClient(t, srv)
	c.SetSystemPrompt("You are helpful.")
	c.SetTools([]llm.FunctionDeclaration{
		llm.NewFunctionDeclaration("query_database", "Run SQL", map[string]any{"type": "object"}),
	})

	resp, err := c.InvokeWithPrompt(t.Context(), "hi")
	require.NoError(t, err)
	require.Equal(t, llm.FinalText{Text: "Hello there"}, resp)

	require.Len(t, srv.requests, 1)
	req := srv.requests[0]
	require.Equal(t, "gpt-test", req.Model)
	require.Equal(t, "Bearer sk-test", srv.authz[0])
	require.Len(t, req.Messages, 2)
	require.Equal(t, "system", req.Messages[0].Role)
	require.Equal(t, "You are helpful.", req.Messages[0].Content)
	require.Equal(t, "user", req.Messages[1].Role)
	require.Len(t, req.Tools, 1)
	require.Equal(t, "function", req.Tools[0].Type)
	require.Equal(t, "query_database", req.Tools[0].Function.Name)
	require.JSONEq(t, `{"type":"object"}`, string(req.Tools[0].Function.Parameters))
}

func TestLLM_OpenAI_ToolCallRoundTrip(t *testing.T) {
	t.Parallel()

	srv := &recordingServer{responses: []string{
		`{"choices":[{"message":{"role":"assistant","content":"","tool_calls":[
			{"id":"call_a","type":"function","function":{"name":"query_database","arguments":"{\"query\":\"SELECT 1\"}"}},
			{"id":"call_b","type":"function","function":{"name":"query_database","arguments":{"query":"SELECT 2"}}}
		]}}]}`,
		`{"choices":[{"message":{"role":"assistant","content":"Two rows."}}]}`,
	}}
	c := newTestClient(t, srv)

	resp, err := c.InvokeWithPrompt(t.Context(), "count")
	require.NoError(t, err)
	calls, ok := resp.(llm.ToolCallsRequested)
	require.True(t, ok)
	require.Equal(t, []llm.ToolCall{
		{ID: "call_a", Name: "query_database", Arguments: `{"query":"SELECT 1"}`},
		{ID: "call_b", Name: "query_database", Arguments: `{"query":"SELECT 2"}`},
	}, calls.Calls)

	resp, err = c.Invoke(t.Context(), []llm.ToolResult{
		{ToolCallID: "call_a", Content: `[{"1":1}]`},
		{ToolCallID: "call_b", Content: "Error: boom", IsError: true},
	})
	require.NoError(t, err)
	require.Equal(t, llm.FinalText{Text: "Two rows."}, resp)

	require.Len(t, srv.requests, 2)
	second := srv.requests[1].Messages
	require.Len(t, second, 4)
	require.Equal(t, "user", second[0].Role)
	require.Equal(t, "assistant", second[1].Role)
	require.Len(t, second[1].ToolCalls, 2)
	require.Equal(t, "tool", second[2].Role)
	require.Equal(t, "call_a", second[2].ToolCallID)
	require.Equal(t, "tool", second[3].Role)
	require.Equal(t, "call_b", second[3].ToolCallID)
	require.Equal(t, "Error: boom", second[3].Content)

	require.Len(t, c.snapshot(), 5)
}

func TestLLM_OpenAI_MissingToolCallID(t *testing.T) {
	t.Parallel()

	srv := &recordingServer{responses: []string{
		`{"choices":[{"message":{"role":"assistant","tool_calls":[{"function":{"name":"x","arguments":null}}]}}]}`,
	}}
	c := newTestClient(t, srv)

	resp, err := c.InvokeWithPrompt(t.Context(), "go")
	require.NoError(t, err)
	calls := resp.(llm.ToolCallsRequested).Calls
	require.Len(t, calls, 1)
	require.NotEmpty(t, calls[0].ID)
	require.Equal(t, "{}", calls[0].Arguments)
}

func TestLLM_OpenAI_HTTPError(t *testing.T) {
	t.Parallel()

	srv := &recordingServer{status: http.StatusTooManyRequests}
	c := newTestClient(t, srv)

	_, err := c.InvokeWithPrompt(t.Context(), "hi")
	require.ErrorContains(t, err, "http 429")
	require.ErrorContains(t, err, "rate limited")
}

func TestLLM_OpenAI_NoChoices(t *testing.T) {
	t.Parallel()

	srv := &recordingServer{responses: []string{`{"choices":[]}`}}
	c := newTestClient(t, srv)

	_, err := c.InvokeWithPrompt(t.Context(), "hi")
	require.ErrorContains(t, err, "no choices")
}

func TestLLM_OpenAI_AppendToolResultsThenPrompt(t *testing.T) {
	t.Parallel()

	srv := &recordingServer{responses: []string{
		`{"choices":[{"message":{"role":"assistant","tool_calls":[{"id":"call_a","type":"function","function":{"name":"nope","arguments":"{}"}}]}}]}`,
		`{"choices":[{"message":{"role":"assistant","content":"Fine."}}]}`,
	}}
	c := newTestClient(t, srv)

	_, err := c.InvokeWithPrompt(t.Context(), "first")
	require.NoError(t, err)

	c.AppendToolResults([]llm.ToolResult{{ToolCallID: "call_a", Content: "Error: unknown tool", IsError: true}})
	require.Len(t, srv.requests, 1)

	resp, err := c.InvokeWithPrompt(t.Context(), "second")
	require.NoError(t, err)
	require.Equal(t, llm.FinalText{Text: "Fine."}, resp)

	msgs := srv.requests[1].Messages
	require.Len(t, msgs, 4)
	require.Equal(t, "assistant", msgs[1].Role)
	require.Equal(t, "tool", msgs[2].Role)
	require.Equal(t, "call_a", msgs[2].ToolCallID)
	require.Equal(t, "user", msgs[3].Role)
	require.Equal(t, "second", msgs[3].Content)
}
