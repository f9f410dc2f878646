// Package greeting implements the greeting echo tool.
package greeting

import (
	"context"

	"sysutils-mcp/internal/tools"
)

// Name is the tool name.
const Name = "greeting"

// Description is advertised to callers.
const Description = "Reply with a greeting followed by the given message."

// Prefix starts every greeting.
const Prefix = "Hello World MCP! "

// Request is the greeting tool input.
type Request struct {
	Message string `json:"message" jsonschema:"The message to append to the greeting"`
}

// Greet returns the greeting for req.
func Greet(_ context.Context, req Request) (string, error) {
	return Prefix + req.Message, nil
}

// Register adds the greeting tool to r.
func Register(r *tools.Registry) error {
	return tools.Add(r, Name, Description, Greet)
}
