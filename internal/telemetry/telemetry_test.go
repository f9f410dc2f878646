package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysutils-mcp/internal/dispatch"
)

type stubDispatcher struct {
	resp dispatch.Response
}

func (s stubDispatcher) Dispatch(context.Context, dispatch.Request) dispatch.Response {
	return s.resp
}

func TestNewMetrics_Independent(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.RecordToolExecution("greeting", "success", time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.MCPToolExecutions.WithLabelValues("greeting", "success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.MCPToolExecutions.WithLabelValues("greeting", "success")))
}

func TestDispatcherWrapper(t *testing.T) {
	m := NewMetrics()

	ok := NewDispatcherWrapper(stubDispatcher{resp: dispatch.Response{Result: &dispatch.Result{Text: "hi"}}}, m)
	resp := ok.Dispatch(context.Background(), dispatch.Request{ToolName: "greeting"})
	assert.True(t, resp.OK())

	failing := NewDispatcherWrapper(stubDispatcher{resp: dispatch.Response{Error: &dispatch.Error{Kind: dispatch.HandlerError, Message: "x"}}}, m)
	failing.Dispatch(context.Background(), dispatch.Request{ToolName: "greeting"})

	unknown := NewDispatcherWrapper(stubDispatcher{resp: dispatch.Response{Error: &dispatch.Error{Kind: dispatch.UnknownTool, Message: "x"}}}, m)
	unknown.Dispatch(context.Background(), dispatch.Request{ToolName: "made-up-by-client"})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.MCPToolExecutions.WithLabelValues("greeting", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MCPToolExecutions.WithLabelValues("greeting", "HandlerError")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MCPToolExecutions.WithLabelValues("unknown", "UnknownTool")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.MCPDispatchesInFlight))
}

func TestRequestHandled_FoldsUnknownMethods(t *testing.T) {
	m := NewMetrics()
	m.RequestHandled("tools/call", "ok", time.Millisecond)
	m.RequestHandled("resources/list", "method_not_found", time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.MCPRequestsTotal.WithLabelValues("tools/call", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MCPRequestsTotal.WithLabelValues("other", "method_not_found")))
}

func TestSessionLifecycle(t *testing.T) {
	m := NewMetrics()
	m.RecordSessionOpened()
	m.SessionInitialized("2025-06-18")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MCPSessionsActive))

	m.RecordSessionClosed(time.Second)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.MCPSessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MCPSessionsTotal.WithLabelValues("closed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MCPSessionsTotal.WithLabelValues("initialized")))
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	m := NewMetrics()
	r := chi.NewRouter()
	r.Use(HTTPMetricsMiddleware(m))
	r.Post("/tools/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	})

	req := httptest.NewRequest(http.MethodPost, "/tools/nonexistent", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/tools/{name}", "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HTTPRequestsInFlight))
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.RecordToolExecution("get_system_info", "success", time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `sysutils_mcp_tool_executions_total{status="success",tool_name="get_system_info"} 1`)
}

func TestSystemMetricsCollector(t *testing.T) {
	m := NewMetrics()
	c := NewSystemMetricsCollector(m, zerolog.Nop(), 0)
	assert.Equal(t, DefaultCollectInterval, c.interval)

	c.Collect()
	assert.Greater(t, testutil.ToFloat64(m.GoRoutines), 0.0)
	assert.Greater(t, testutil.ToFloat64(m.MemoryUsage), 0.0)

	done := make(chan struct{})
	go func() {
		c.Start(context.Background())
		close(done)
	}()
	c.Stop()
	c.Stop()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("collector did not stop")
	}
}
