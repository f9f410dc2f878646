package greeting

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"sysutils-mcp/internal/schema"
	"sysutils-mcp/internal/tools"
)

func TestGreet(t *testing.T) {
	out, err := Greet(context.Background(), Request{Message: "friend"})
	require.NoError(t, err)
	assert.Equal(t, "Hello World MCP! friend", out)

	out, err = Greet(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "Hello World MCP! ", out)
}

func TestRegister(t *testing.T) {
	r := tools.NewRegistry(schema.Options{}, zerolog.Nop())
	require.NoError(t, Register(r))

	entry, err := r.Freeze().Lookup(Name)
	require.NoError(t, err)

	raw := entry.Descriptor.InputSchema.Bytes()
	assert.Equal(t, "string", gjson.GetBytes(raw, "properties.message.type").String())
	assert.Equal(t, "message", gjson.GetBytes(raw, "required.0").String())
}
