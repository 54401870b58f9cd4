package bridge

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/malbeclabs/mcp-llm-bridge/internal/llm"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type toolCall struct {
	Name string
	Args map[string]any
}

type fakeToolClient struct {
	mu         sync.Mutex
	connectErr error
	listErr    error
	tools      []ToolSpec
	callFn     func(ctx context.Context, name string, args map[string]any) (string, bool, error)
	calls      []toolCall
	connects   int
	closes     int
	open       bool
	panicOn    string

	// connecting, when set, is closed once Connect starts; Connect then
	// waits for release.
	connecting chan struct{}
	release    chan struct{}
}

func (f *fakeToolClient) Connect(ctx context.Context) error {
	if f.connecting != nil {
		close(f.connecting)
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn == "connect" {
		panic("connect exploded")
	}
	f.connects++
	if f.connectErr == nil {
		f.open = true
	}
	return f.connectErr
}

func (f *fakeToolClient) ListTools(ctx context.Context) ([]ToolSpec, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tools, f.listErr
}

func (f *fakeToolClient) CallTool(ctx context.Context, name string, args map[string]any) (string, bool, error) {
	f.mu.Lock()
	f.calls = append(f.calls, toolCall{Name: name, Args: args})
	fn := f.callFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, name, args)
	}
	return "result:" + name, false, nil
}

func (f *fakeToolClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	f.open = false
	return nil
}

func (f *fakeToolClient) isOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeToolClient) recordedCalls() []toolCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]toolCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeToolClient) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// fakeLLM replays scripted responses. When the script runs out it repeats
// the last response.
type fakeLLM struct {
	mu        sync.Mutex
	script    []llm.Response
	err       error
	system    string
	tools     []llm.FunctionDeclaration
	prompts   []string
	results   [][]llm.ToolResult
	appended  [][]llm.ToolResult
	calls     int
	active    atomic.Int32
	overlaps  atomic.Int32
	blockOnce chan struct{}
}

func (f *fakeLLM) SetSystemPrompt(prompt string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.system = prompt
}

func (f *fakeLLM) SetTools(tools []llm.FunctionDeclaration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tools = tools
}

func (f *fakeLLM) InvokeWithPrompt(ctx context.Context, text string) (llm.Response, error) {
	if f.active.Add(1) > 1 {
		f.overlaps.Add(1)
	}
	defer f.active.Add(-1)

	if f.blockOnce != nil {
		<-f.blockOnce
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, text)
	return f.next()
}

func (f *fakeLLM) Invoke(ctx context.Context, results []llm.ToolResult) (llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, results)
	return f.next()
}

func (f *fakeLLM) AppendToolResults(results []llm.ToolResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, results)
}

func (f *fakeLLM) appendedResults() [][]llm.ToolResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]llm.ToolResult, len(f.appended))
	copy(out, f.appended)
	return out
}

func (f *fakeLLM) next() (llm.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.script) == 0 {
		return nil, errors.New("script exhausted")
	}
	resp := f.script[0]
	if len(f.script) > 1 {
		f.script = f.script[1:]
	}
	return resp, nil
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testConfig(t *testing.T, tc *fakeToolClient, model *fakeLLM) Config {
	t.Helper()
	return Config{
		Logger:     testLogger(t),
		ToolClient: tc,
		LLM:        model,
	}
}

func readyBridge(t *testing.T, cfg Config) *Bridge {
	t.Helper()
	b, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create bridge: %v", err)
	}
	if !b.Initialize(t.Context()) {
		t.Fatalf("failed to initialize bridge: %v", b.Err())
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}
