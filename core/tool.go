package core

import (
	"context"
	"encoding/json"
)

// ToolDefinition describes a tool to the model that calls it.
type ToolDefinition struct {
	ToolName        string                 `json:"name"`
	ToolDescription string                 `json:"description"`
	InputSchema     map[string]interface{} `json:"input_schema"`

	// Destructive marks tools that remove data.
	Destructive bool `json:"destructive,omitempty"`
}

// ToolResult is what a tool hands back to the orchestration layer.
// A failed call that the model can correct (bad input, unknown ID) is a
// result with Success false, not a Go error.
type ToolResult struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Tool is a callable tool.
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]interface{}
	Definition() ToolDefinition

	// Execute runs the tool on raw JSON arguments. A non-nil error means
	// the backend failed and retrying the same input may help.
	Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error)
}

// ToolHandler implements a tool's behaviour.
type ToolHandler func(ctx context.Context, input json.RawMessage) (*ToolResult, error)

// NewTool binds a definition to its handler.
func NewTool(def ToolDefinition, handler ToolHandler) Tool {
	return &handlerTool{def: def, handler: handler}
}

type handlerTool struct {
	def     ToolDefinition
	handler ToolHandler
}

func (t *handlerTool) Name() string { return t.def.ToolName }
func (t *handlerTool) Description() string { return t.def.ToolDescription }
func (t *handlerTool) Schema() map[string]interface{} { return t.def.InputSchema }
func (t *handlerTool) Definition() ToolDefinition { return t.def }

func (t *handlerTool) Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error) {
	return t.handler(ctx, input)
}

// Success wraps data in a successful result.
func Success(data interface{}) *ToolResult {
	return &ToolResult{Success: true, Data: data}
}

// Failure builds an unsuccessful result from err.
func Failure(err error) *ToolResult {
	return &ToolResult{Success: false, Error: err.Error()}
}
