package tools

import (
	"context"
	"encoding/json"

	"sysutils-mcp/internal/schema"
)

// Descriptor is the caller-visible definition of a tool.
type Descriptor struct {
	// Name is the unique, case-sensitive tool identifier.
	Name string `json:"name"`

	// Description is shown to the caller.
	Description string `json:"description"`

	// InputSchema describes the accepted arguments.
	InputSchema *schema.Doc `json:"inputSchema"`
}

// Invocation runs a tool with arguments that were already bound.
type Invocation func(ctx context.Context) (any, error)

// Handler is the interface that all tools must implement.
type Handler interface {
	// Bind decodes validated JSON arguments into the handler's own argument type.
	// A Bind error means the arguments do not fit the declared shape.
	Bind(args json.RawMessage) (Invocation, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(args json.RawMessage) (Invocation, error)

// Bind calls f(args).
func (f HandlerFunc) Bind(args json.RawMessage) (Invocation, error) {
	return f(args)
}
