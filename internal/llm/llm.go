package llm

import (
	"context"
)

// FunctionDeclaration advertises a callable tool to the model. It encodes as
// {"type":"function","function":{"name":...,"description":...,"parameters":...}}.
type FunctionDeclaration struct {
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

type Function struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

func NewFunctionDeclaration(name, description string, parameters map[string]any) FunctionDeclaration {
	return FunctionDeclaration{
		Type: "function",
		Function: Function{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}

// ToolCall is a single tool invocation requested by the model. Arguments is
// the JSON object text produced by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolResult answers the ToolCall with the same ID.
type ToolResult struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// Response is either FinalText or ToolCallsRequested.
type Response interface {
	isResponse()
}

type FinalText struct {
	Text string
}

type ToolCallsRequested struct {
	Calls []ToolCall
}

func (FinalText) isResponse()          {}
func (ToolCallsRequested) isResponse() {}

// Client holds a single conversation with a model, including its history.
type Client interface {
	SetSystemPrompt(prompt string)
	SetTools(tools []FunctionDeclaration)
	// InvokeWithPrompt appends a user turn and returns the model's reply.
	InvokeWithPrompt(ctx context.Context, text string) (Response, error)
	// Invoke appends tool results, in order, and returns the model's reply.
	Invoke(ctx context.Context, results []ToolResult) (Response, error)
	// AppendToolResults records results without calling the model. It closes
	// out a round that will not be continued, so the next prompt follows an
	// answered tool-call turn.
	AppendToolResults(results []ToolResult)
}
