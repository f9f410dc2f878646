package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"sysutils-mcp/internal/tools"
)

// Dispatcher resolves, validates and runs tool calls against a frozen catalog.
// It holds no per-call state and is safe for concurrent use.
type Dispatcher struct {
	catalog *tools.Catalog
	logger  zerolog.Logger
}

// New creates a dispatcher over catalog.
func New(catalog *tools.Catalog, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		catalog: catalog,
		logger:  logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch runs one request. Failures are reported in the Response, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Response {
	entry, err := d.catalog.Lookup(req.ToolName)
	if err != nil {
		d.logger.Debug().
			Str("tool", req.ToolName).
			Msg("Unknown tool requested")
		return errorResponse(UnknownTool, "unknown tool: %q", req.ToolName)
	}

	if err := entry.Descriptor.InputSchema.Validate(req.Arguments); err != nil {
		d.logger.Debug().
			Err(err).
			Str("tool", req.ToolName).
			Msg("Arguments rejected by input schema")
		return errorResponse(InvalidArguments, "invalid arguments for %q: %v", req.ToolName, err)
	}

	invoke, err := entry.Handler.Bind(req.Arguments)
	if err != nil {
		d.logger.Debug().
			Err(err).
			Str("tool", req.ToolName).
			Msg("Arguments could not be bound")
		return errorResponse(InvalidArguments, "invalid arguments for %q: %v", req.ToolName, err)
	}

	out, err := d.invoke(ctx, req.ToolName, invoke)
	if err != nil {
		d.logger.Warn().
			Err(err).
			Str("tool", req.ToolName).
			Msg("Tool execution failed")
		return errorResponse(HandlerError, "%s", err.Error())
	}

	result, err := newResult(out)
	if err != nil {
		d.logger.Error().
			Err(err).
			Str("tool", req.ToolName).
			Msg("Tool output could not be encoded")
		return errorResponse(HandlerError, "tool %q returned an unencodable result", req.ToolName)
	}
	return Response{Result: result}
}

func (d *Dispatcher) invoke(ctx context.Context, name string, invoke tools.Invocation) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Str("tool", name).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Tool panicked")
			out, err = nil, errors.Newf("tool %q failed unexpectedly", name)
		}
	}()
	return invoke(ctx)
}

func newResult(out any) (*Result, error) {
	switch v := out.(type) {
	case nil:
		return &Result{}, nil
	case string:
		return &Result{Text: v}, nil
	case fmt.Stringer:
		return &Result{Text: v.String()}, nil
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return &Result{Text: string(data), Structured: data}, nil
}
