package telemetry

import (
	"context"
	"time"

	"sysutils-mcp/internal/dispatch"
)

// Dispatcher executes tool calls.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) dispatch.Response
}

// DispatcherWrapper records tool execution metrics around a Dispatcher.
type DispatcherWrapper struct {
	Dispatcher
	metrics *Metrics
}

// NewDispatcherWrapper creates a telemetry-aware dispatcher
func NewDispatcherWrapper(d Dispatcher, metrics *Metrics) *DispatcherWrapper {
	return &DispatcherWrapper{
		Dispatcher: d,
		metrics:    metrics,
	}
}

// Dispatch wraps the inner Dispatch to add telemetry
func (w *DispatcherWrapper) Dispatch(ctx context.Context, req dispatch.Request) dispatch.Response {
	w.metrics.MCPDispatchesInFlight.Inc()
	defer w.metrics.MCPDispatchesInFlight.Dec()

	start := time.Now()
	resp := w.Dispatcher.Dispatch(ctx, req)
	duration := time.Since(start)

	name, status := req.ToolName, "success"
	if resp.Error != nil {
		status = string(resp.Error.Kind)
		// Client-supplied names never become label values.
		if resp.Error.Kind == dispatch.UnknownTool {
			name = "unknown"
		}
	}
	w.metrics.RecordToolExecution(name, status, duration)

	return resp
}
