package bridge

import (
	"errors"
	"fmt"
)

var (
	ErrNotReady      = errors.New("bridge is not ready")
	ErrClosed        = errors.New("bridge is closed")
	ErrExhausted     = errors.New("tool-call rounds exhausted")
	ErrInitFailed    = errors.New("bridge initialization failed")
	ErrNameCollision = errors.New("tool name collision")
)

// NameResolutionError reports a tool call whose name does not map back to
// any tool listed by the MCP server.
type NameResolutionError struct {
	Name string
}

func (e *NameResolutionError) Error() string {
	return fmt.Sprintf("unknown tool %q requested by model", e.Name)
}

type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %q failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}

type ExhaustedError struct {
	Rounds int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%v after %d rounds", ErrExhausted, e.Rounds)
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}
