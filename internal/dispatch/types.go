package dispatch

import (
	"encoding/json"
	"fmt"
)

// Request is one tool invocation.
type Request struct {
	ToolName  string          `json:"toolName"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ErrorKind classifies dispatch failures.
type ErrorKind string

const (
	// UnknownTool means no tool is registered under the requested name.
	UnknownTool ErrorKind = "UnknownTool"
	// InvalidArguments means the arguments do not match the tool's input schema.
	InvalidArguments ErrorKind = "InvalidArguments"
	// HandlerError means the tool itself failed.
	HandlerError ErrorKind = "HandlerError"
)

// Result is the successful outcome of a tool call.
type Result struct {
	// Text is the textual rendering of the output.
	Text string `json:"text"`

	// Structured holds the JSON form of non-string outputs.
	Structured json.RawMessage `json:"structured,omitempty"`
}

// Error is the failed outcome of a tool call.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Response carries exactly one of Result or Error.
type Response struct {
	Result *Result `json:"result,omitempty"`
	Error  *Error  `json:"error,omitempty"`
}

// OK reports whether the response is a success.
func (r Response) OK() bool {
	return r.Error == nil
}

func errorResponse(kind ErrorKind, format string, args ...any) Response {
	return Response{Error: &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}}
}
