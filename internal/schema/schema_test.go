package schema_test

import (
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"sysutils-mcp/internal/schema"
)

type greetArgs struct {
	Message string `json:"message" jsonschema:"The message appended to the greeting"`
	Times   int    `json:"times,omitempty" jsonschema:"How many times to repeat"`
}

type noArgs struct{}

type badArgs struct {
	Events chan int `json:"events"`
}

func TestFor_Fields(t *testing.T) {
	doc, err := schema.For[greetArgs](schema.Options{})
	require.NoError(t, err)

	raw := doc.Bytes()
	assert.False(t, gjson.GetBytes(raw, "$schema").Exists(), "dialect tag must be stripped: %s", raw)
	assert.Equal(t, "object", gjson.GetBytes(raw, "type").String())
	assert.Equal(t, "string", gjson.GetBytes(raw, "properties.message.type").String())
	assert.Equal(t, "The message appended to the greeting", gjson.GetBytes(raw, "properties.message.description").String())
	assert.Equal(t, "integer", gjson.GetBytes(raw, "properties.times.type").String())

	var required []string
	for _, r := range gjson.GetBytes(raw, "required").Array() {
		required = append(required, r.String())
	}
	assert.Equal(t, []string{"message"}, required)
}

func TestFor_ZeroParameters(t *testing.T) {
	doc, err := schema.For[noArgs](schema.Options{})
	require.NoError(t, err)

	raw := doc.Bytes()
	assert.Equal(t, "object", gjson.GetBytes(raw, "type").String())
	assert.True(t, gjson.GetBytes(raw, "properties").IsObject(), "properties must be present: %s", raw)
	assert.Empty(t, gjson.GetBytes(raw, "properties").Map())
	assert.False(t, gjson.GetBytes(raw, "required").Exists())

	assert.NoError(t, doc.Validate(nil))
	assert.NoError(t, doc.Validate(json.RawMessage(`null`)))
	assert.NoError(t, doc.Validate(json.RawMessage(`{}`)))
}

func TestFor_Deterministic(t *testing.T) {
	a, err := schema.For[greetArgs](schema.Options{})
	require.NoError(t, err)
	b, err := schema.For[greetArgs](schema.Options{})
	require.NoError(t, err)

	assert.Equal(t, a.Bytes(), b.Bytes())
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	c, err := schema.For[noArgs](schema.Options{})
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestFor_UnsupportedType(t *testing.T) {
	_, err := schema.For[badArgs](schema.Options{})
	require.Error(t, err)

	var genErr *schema.GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Contains(t, genErr.Type, "badArgs")
}

func TestDoc_Validate(t *testing.T) {
	doc, err := schema.For[greetArgs](schema.Options{})
	require.NoError(t, err)

	tests := []struct {
		name    string
		args    string
		wantErr bool
	}{
		{"valid", `{"message":"friend"}`, false},
		{"valid with optional", `{"message":"friend","times":2}`, false},
		{"missing required", `{}`, true},
		{"wrong type", `{"message":42}`, true},
		{"unknown field", `{"message":"friend","extra":true}`, true},
		{"not an object", `["friend"]`, true},
		{"malformed", `{"message":`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := doc.Validate(json.RawMessage(tt.args))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDoc_AllowAdditionalProperties(t *testing.T) {
	doc, err := schema.For[greetArgs](schema.Options{AllowAdditionalProperties: true})
	require.NoError(t, err)

	assert.False(t, gjson.GetBytes(doc.Bytes(), "additionalProperties").Exists())
	assert.NoError(t, doc.Validate(json.RawMessage(`{"message":"friend","extra":true}`)))
	assert.Error(t, doc.Validate(json.RawMessage(`{"extra":true}`)))
}

func TestDoc_MarshalJSON(t *testing.T) {
	doc, err := schema.For[greetArgs](schema.Options{})
	require.NoError(t, err)

	wrapped, err := json.Marshal(map[string]any{"inputSchema": doc})
	require.NoError(t, err)
	assert.Equal(t, "string", gjson.GetBytes(wrapped, "inputSchema.properties.message.type").String())
}

func TestFromSchema(t *testing.T) {
	doc, err := schema.FromSchema(&jsonschema.Schema{
		Schema: "https://json-schema.org/draft/2020-12/schema",
		Type:   "object",
	}, schema.Options{})
	require.NoError(t, err)

	assert.False(t, gjson.GetBytes(doc.Bytes(), "$schema").Exists())
	assert.True(t, gjson.GetBytes(doc.Bytes(), "properties").Exists())

	_, err = schema.FromSchema(nil, schema.Options{})
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, json.RawMessage(`{}`), schema.Normalize(nil))
	assert.Equal(t, json.RawMessage(`{}`), schema.Normalize(json.RawMessage(" null ")))
	assert.Equal(t, json.RawMessage(`{"a":1}`), schema.Normalize(json.RawMessage(` {"a":1} `)))
}
