package bridge

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/malbeclabs/mcp-llm-bridge/internal/llm"
)

var separatorRun = regexp.MustCompile(`[^a-z0-9]+`)

// SanitizeToolName lower-cases name and collapses every run of
// non-alphanumeric characters into a single underscore.
func SanitizeToolName(name string) string {
	return separatorRun.ReplaceAllString(strings.ToLower(name), "_")
}

// ConvertTools returns one function declaration per tool, in order. A tool
// without an input schema gets an empty object schema.
func ConvertTools(tools []ToolSpec) []llm.FunctionDeclaration {
	out := make([]llm.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		params := t.InputSchema
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, llm.NewFunctionDeclaration(t.Name, t.Description, params))
	}
	return out
}

// buildNameMapping maps sanitized names back to the originals and rejects
// two originals that sanitize to the same name.
func buildNameMapping(tools []ToolSpec) (map[string]string, error) {
	mapping := make(map[string]string, len(tools))
	for _, t := range tools {
		key := SanitizeToolName(t.Name)
		if prev, ok := mapping[key]; ok {
			return nil, fmt.Errorf("%w: %q and %q both map to %q", ErrNameCollision, prev, t.Name, key)
		}
		mapping[key] = t.Name
	}
	return mapping, nil
}
