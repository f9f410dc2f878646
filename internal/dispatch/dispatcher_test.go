package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysutils-mcp/internal/schema"
	"sysutils-mcp/internal/tools"
	"sysutils-mcp/internal/tools/greeting"
)

type emptyArgs struct{}

type sumArgs struct {
	A int `json:"a"`
	B int `json:"b"`
}

type sumResult struct {
	Sum int `json:"sum"`
}

func newTestDispatcher(t *testing.T, register ...func(*tools.Registry) error) *Dispatcher {
	t.Helper()
	r := tools.NewRegistry(schema.Options{}, zerolog.Nop())
	require.NoError(t, greeting.Register(r))
	require.NoError(t, tools.Add(r, "ping", "No arguments", func(context.Context, emptyArgs) (string, error) {
		return "pong", nil
	}))
	require.NoError(t, tools.Add(r, "sum", "Add two integers", func(_ context.Context, in sumArgs) (sumResult, error) {
		return sumResult{Sum: in.A + in.B}, nil
	}))
	require.NoError(t, tools.Add(r, "fail", "Always fails", func(context.Context, emptyArgs) (string, error) {
		return "", errors.New("disk on fire")
	}))
	require.NoError(t, tools.Add(r, "panic", "Always panics", func(context.Context, emptyArgs) (string, error) {
		panic("boom")
	}))
	for _, fn := range register {
		require.NoError(t, fn(r))
	}
	return New(r.Freeze(), zerolog.Nop())
}

func TestDispatch_Greeting(t *testing.T) {
	d := newTestDispatcher(t)

	resp := d.Dispatch(context.Background(), Request{
		ToolName:  "greeting",
		Arguments: json.RawMessage(`{"message":"friend"}`),
	})
	require.True(t, resp.OK(), "unexpected error: %v", resp.Error)
	assert.Equal(t, "Hello World MCP! friend", resp.Result.Text)
	assert.Nil(t, resp.Result.Structured)
}

func TestDispatch_UnknownTool(t *testing.T) {
	d := newTestDispatcher(t)

	resp := d.Dispatch(context.Background(), Request{
		ToolName:  "nonexistent",
		Arguments: json.RawMessage(`{}`),
	})
	require.NotNil(t, resp.Error)
	assert.Nil(t, resp.Result)
	assert.Equal(t, UnknownTool, resp.Error.Kind)
	assert.Contains(t, resp.Error.Message, "nonexistent")
}

func TestDispatch_InvalidArguments(t *testing.T) {
	d := newTestDispatcher(t)

	tests := []struct {
		name string
		tool string
		args string
	}{
		{"missing required field", "greeting", `{}`},
		{"null arguments with required field", "greeting", `null`},
		{"wrong primitive type", "greeting", `{"message":42}`},
		{"unexpected field", "greeting", `{"message":"friend","shout":true}`},
		{"not an object", "greeting", `"friend"`},
		{"fractional integer", "sum", `{"a":1.5,"b":2}`},
		{"unexpected field on empty shape", "ping", `{"x":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := d.Dispatch(context.Background(), Request{ToolName: tt.tool, Arguments: json.RawMessage(tt.args)})
			require.NotNil(t, resp.Error)
			assert.Equal(t, InvalidArguments, resp.Error.Kind)
			assert.NotEmpty(t, resp.Error.Message)
		})
	}
}

func TestDispatch_ZeroParameterTool(t *testing.T) {
	d := newTestDispatcher(t)

	for _, args := range []json.RawMessage{nil, json.RawMessage(`{}`), json.RawMessage(`null`)} {
		resp := d.Dispatch(context.Background(), Request{ToolName: "ping", Arguments: args})
		require.True(t, resp.OK(), "args %q: %v", args, resp.Error)
		assert.Equal(t, "pong", resp.Result.Text)
	}
}

func TestDispatch_StructuredResult(t *testing.T) {
	d := newTestDispatcher(t)

	resp := d.Dispatch(context.Background(), Request{ToolName: "sum", Arguments: json.RawMessage(`{"a":2,"b":3}`)})
	require.True(t, resp.OK())
	assert.JSONEq(t, `{"sum":5}`, string(resp.Result.Structured))
	assert.JSONEq(t, `{"sum":5}`, resp.Result.Text)
}

func TestDispatch_HandlerError(t *testing.T) {
	d := newTestDispatcher(t)

	resp := d.Dispatch(context.Background(), Request{ToolName: "fail"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, HandlerError, resp.Error.Kind)
	assert.Equal(t, "disk on fire", resp.Error.Message)
}

func TestDispatch_HandlerPanic(t *testing.T) {
	d := newTestDispatcher(t)

	resp := d.Dispatch(context.Background(), Request{ToolName: "panic"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, HandlerError, resp.Error.Kind)
	assert.NotContains(t, resp.Error.Message, "goroutine")
	assert.NotContains(t, resp.Error.Message, ".go:")
}

func TestDispatch_ConcurrentIndependence(t *testing.T) {
	release := make(chan struct{})
	d := newTestDispatcher(t, func(r *tools.Registry) error {
		return tools.Add(r, "block", "Blocks until released", func(ctx context.Context, _ emptyArgs) (string, error) {
			select {
			case <-release:
				return "released", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		})
	})

	var wg sync.WaitGroup
	blocked := make(chan Response, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		blocked <- d.Dispatch(context.Background(), Request{ToolName: "block"})
	}()

	// A suspended handler must not hold up other dispatches.
	done := make(chan Response, 1)
	go func() {
		done <- d.Dispatch(context.Background(), Request{ToolName: "greeting", Arguments: json.RawMessage(`{"message":"x"}`)})
	}()
	select {
	case resp := <-done:
		assert.True(t, resp.OK())
	case <-time.After(5 * time.Second):
		t.Fatal("greeting dispatch blocked behind a suspended handler")
	}

	close(release)
	wg.Wait()
	resp := <-blocked
	require.True(t, resp.OK())
	assert.Equal(t, "released", resp.Result.Text)
}

func TestResponse_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		resp Response
	}{
		{"text result", Response{Result: &Result{Text: "Hello World MCP! friend"}}},
		{"structured result", Response{Result: &Result{Text: `{"sum":5}`, Structured: json.RawMessage(`{"sum":5}`)}}},
		{"empty result", Response{Result: &Result{}}},
		{"unknown tool", Response{Error: &Error{Kind: UnknownTool, Message: `unknown tool: "nonexistent"`}}},
		{"invalid arguments", Response{Error: &Error{Kind: InvalidArguments, Message: "missing message"}}},
		{"handler error", Response{Error: &Error{Kind: HandlerError, Message: "disk on fire"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.resp)
			require.NoError(t, err)

			var decoded Response
			require.NoError(t, json.Unmarshal(data, &decoded))
			assert.Equal(t, tt.resp, decoded)
		})
	}
}

func TestDispatch_AllowUnknownArgumentsKeepsValidatedValue(t *testing.T) {
	r := tools.NewRegistry(schema.Options{AllowAdditionalProperties: true}, zerolog.Nop())
	require.NoError(t, greeting.Register(r))
	d := New(r.Freeze(), zerolog.Nop())

	tests := []struct {
		name string
		args string
		want string
	}{
		{"differently cased duplicate", `{"message":"friend","MESSAGE":"evil"}`, "Hello World MCP! friend"},
		{"differently cased duplicate first", `{"Message":"evil","message":"friend"}`, "Hello World MCP! friend"},
		{"extra field", `{"message":"friend","shout":true}`, "Hello World MCP! friend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := d.Dispatch(context.Background(), Request{ToolName: greeting.Name, Arguments: json.RawMessage(tt.args)})
			require.True(t, resp.OK(), "unexpected error: %v", resp.Error)
			assert.Equal(t, tt.want, resp.Result.Text)
		})
	}
}
