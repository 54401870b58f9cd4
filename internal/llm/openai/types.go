package openai

import (
	"bytes"
	"encoding/json"
)

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
}

type chatToolCall struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Function chatToolCallFn `json:"function"`
}

type chatToolCallFn struct {
	Name      string        `json:"name"`
	Arguments toolArguments `json:"arguments"`
}

// toolArguments accepts arguments either as a JSON-encoded string (OpenAI)
// or as a bare object (Ollama and some compatible servers), and always
// encodes back as a string.
type toolArguments string

func (a *toolArguments) UnmarshalJSON(b []byte) error {
	cur := bytes.TrimSpace(b)
	if len(cur) == 0 || string(cur) == "null" {
		*a = "{}"
		return nil
	}
	if cur[0] == '"' {
		var s string
		if err := json.Unmarshal(cur, &s); err != nil {
			return err
		}
		*a = toolArguments(s)
		return nil
	}
	*a = toolArguments(cur)
	return nil
}

func (a toolArguments) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(a))
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	Tools     []chatToolDef `json:"tools,omitempty"`
	MaxTokens int64         `json:"max_tokens,omitempty"`
}

type chatToolDef struct {
	Type     string        `json:"type"`
	Function chatToolDefFn `json:"function"`
}

type chatToolDefFn struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type chatResponse struct {
	ID      string       `json:"id,omitempty"`
	Model   string       `json:"model,omitempty"`
	Choices []chatChoice `json:"choices"`
	Error   *chatError   `json:"error,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason,omitempty"`
}

type chatError struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}
