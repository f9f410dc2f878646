package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"sysutils-mcp/internal/dispatch"
	"sysutils-mcp/internal/jsonrpc"
	"sysutils-mcp/internal/tools"
)

// Method names understood by the handler.
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodPing        = "ping"
	MethodToolsList   = "tools/list"
	MethodToolsCall   = "tools/call"
)

const (
	statusOK            = "ok"
	statusNotification  = "notification"
	statusClientMessage = "client_response"
)

// Dispatcher executes tool calls.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) dispatch.Response
}

// Observer is notified about handled messages.
type Observer interface {
	RequestHandled(method, status string, duration time.Duration)
	SessionInitialized(protocolVersion string)
}

// Info describes the server to clients.
type Info struct {
	Name         string
	Version      string
	Instructions string
}

// Handler routes decoded JSON-RPC messages to protocol operations.
// It is safe for concurrent use.
type Handler struct {
	info       Info
	catalog    *tools.Catalog
	dispatcher Dispatcher
	session    *sessionState
	observer   Observer
	logger     zerolog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithObserver installs an observer for handled messages.
func WithObserver(o Observer) Option {
	return func(h *Handler) {
		h.observer = o
	}
}

// NewHandler creates a handler serving the catalog through dispatcher.
func NewHandler(info Info, catalog *tools.Catalog, dispatcher Dispatcher, logger zerolog.Logger, opts ...Option) *Handler {
	h := &Handler{
		info:       info,
		catalog:    catalog,
		dispatcher: dispatcher,
		session:    newSessionState(),
		logger:     logger.With().Str("component", "mcp").Logger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With().Str("session_id", h.session.get().ID).Logger()
	return h
}

// Session returns a snapshot of the connection state.
func (h *Handler) Session() Session {
	return h.session.get()
}

// HandleMessage processes one inbound line. It returns nil when nothing
// should be written back.
func (h *Handler) HandleMessage(ctx context.Context, data []byte) *jsonrpc.Response {
	start := time.Now()

	msg, err := jsonrpc.ParseMessage(data)
	if err != nil {
		var rpcErr *jsonrpc.Error
		if !errors.As(err, &rpcErr) {
			rpcErr = jsonrpc.NewError(jsonrpc.InternalError, "Internal error", nil)
		}
		h.logger.Warn().Err(err).Int("bytes", len(data)).Msg("Rejected malformed message")
		h.observe("invalid", codeStatus(rpcErr.Code), start)
		return jsonrpc.NewErrorResponse(recoverID(data), rpcErr)
	}

	switch m := msg.(type) {
	case *jsonrpc.Notification:
		h.handleNotification(m)
		h.observe(m.Method, statusNotification, start)
		return nil
	case *jsonrpc.Response:
		h.logger.Debug().Interface("id", m.ID).Msg("Ignoring client response")
		h.observe("response", statusClientMessage, start)
		return nil
	case *jsonrpc.Request:
		resp := h.handleRequest(ctx, m)
		status := statusOK
		if resp.Error != nil {
			status = codeStatus(resp.Error.Code)
		}
		h.observe(m.Method, status, start)
		return resp
	}
	return nil
}

func (h *Handler) handleRequest(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	log := h.logger.With().Interface("id", req.ID).Str("method", req.Method).Logger()
	log.Debug().Msg("Handling request")

	switch req.Method {
	case MethodInitialize:
		return h.initialize(req)
	case MethodPing:
		return jsonrpc.NewResult(req.ID, struct{}{})
	case MethodToolsList:
		return jsonrpc.NewResult(req.ID, ListToolsResult{Tools: h.catalog.List()})
	case MethodToolsCall:
		return h.callTool(ctx, req)
	default:
		log.Warn().Msg("Method not found")
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.MethodNotFound, "Method not found: "+req.Method, nil))
	}
}

func (h *Handler) handleNotification(n *jsonrpc.Notification) {
	switch n.Method {
	case MethodInitialized:
		s := h.session.markInitialized()
		h.logger.Info().
			Str("client", s.ClientInfo.Name).
			Str("protocol_version", s.ProtocolVersion).
			Msg("Session initialized")
	default:
		h.logger.Debug().Str("method", n.Method).Msg("Ignoring notification")
	}
}

func (h *Handler) initialize(req *jsonrpc.Request) *jsonrpc.Response {
	var params InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.InvalidParams, "Invalid initialize params", err.Error()))
		}
	}

	version := negotiateVersion(params.ProtocolVersion)
	s := h.session.negotiate(params.ClientInfo, version)
	if h.observer != nil {
		h.observer.SessionInitialized(version)
	}

	h.logger.Info().
		Str("client", s.ClientInfo.Name).
		Str("client_version", s.ClientInfo.Version).
		Str("requested_version", params.ProtocolVersion).
		Str("protocol_version", version).
		Msg("Client connected")

	return jsonrpc.NewResult(req.ID, InitializeResult{
		ProtocolVersion: version,
		Capabilities: ServerCapabilities{
			Tools: &ToolsCapability{ListChanged: false},
		},
		ServerInfo: Implementation{
			Name:    h.info.Name,
			Version: h.info.Version,
		},
		Instructions: h.info.Instructions,
	})
}

func (h *Handler) callTool(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	var params CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.InvalidParams, "Invalid tools/call params", err.Error()))
	}
	if params.Name == "" {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.InvalidParams, "Missing tool name", nil))
	}

	resp := h.dispatcher.Dispatch(ctx, dispatch.Request{
		ToolName:  params.Name,
		Arguments: params.Arguments,
	})
	if resp.Error != nil {
		return jsonrpc.NewErrorResponse(req.ID, toRPCError(resp.Error))
	}
	return jsonrpc.NewResult(req.ID, toCallResult(resp.Result))
}

// toRPCError maps a dispatch failure onto a JSON-RPC error.
func toRPCError(e *dispatch.Error) *jsonrpc.Error {
	code := jsonrpc.ToolExecutionError
	switch e.Kind {
	case dispatch.UnknownTool, dispatch.InvalidArguments:
		code = jsonrpc.InvalidParams
	}
	return jsonrpc.NewError(code, e.Message, map[string]any{"kind": e.Kind})
}

func toCallResult(r *dispatch.Result) CallToolResult {
	out := CallToolResult{Content: []Content{{Type: "text", Text: r.Text}}}
	// structuredContent must be a JSON object.
	if s := bytes.TrimSpace(r.Structured); len(s) > 0 && s[0] == '{' {
		out.StructuredContent = s
	}
	return out
}

// recoverID extracts a usable id from a message that failed validation.
func recoverID(data []byte) any {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(probe.ID))
	dec.UseNumber()
	var id any
	if err := dec.Decode(&id); err != nil {
		return nil
	}
	switch v := id.(type) {
	case string:
		return v
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return v
		}
	}
	return nil
}

func (h *Handler) observe(method, status string, start time.Time) {
	if h.observer != nil {
		h.observer.RequestHandled(method, status, time.Since(start))
	}
}

func codeStatus(code jsonrpc.ErrorCode) string {
	switch code {
	case jsonrpc.ParseError:
		return "parse_error"
	case jsonrpc.InvalidRequest:
		return "invalid_request"
	case jsonrpc.MethodNotFound:
		return "method_not_found"
	case jsonrpc.InvalidParams:
		return "invalid_params"
	case jsonrpc.ToolExecutionError:
		return "tool_error"
	default:
		return "internal_error"
	}
}
