package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolDescriptor_MarshalEnvelope(t *testing.T) {
	params := NewParameterSchema()
	params.AddProperty("id", map[string]any{"type": "string"})
	params.MarkRequired("id")
	params.MarkRequired("ghost")

	tool := ToolDescriptor{
		Name:        "get_lead",
		Description: "Get a lead",
		Parameters:  params,
		Endpoint:    Endpoint{Method: "GET", Path: "/leads/{id}"},
		Domain:      "leads",
		Action:      "get",
	}

	data, err := json.Marshal(tool)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "function", raw["type"])

	fn := raw["function"].(map[string]any)
	assert.Equal(t, "get_lead", fn["name"])
	assert.Equal(t, map[string]any{"method": "GET", "path": "/leads/{id}"}, fn["x-endpoint"])
	assert.Equal(t, map[string]any{"action": "get", "domain": "leads"}, fn["x-router"])
	assert.Equal(t, []any{"id"}, fn["parameters"].(map[string]any)["required"])

	var back ToolDescriptor
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, tool.Endpoint, back.Endpoint)
	assert.Equal(t, "leads", back.Domain)
	assert.Equal(t, []string{"id"}, back.Parameters.Required)
}

func TestToolDescriptor_UnmarshalBareFunction(t *testing.T) {
	var tool ToolDescriptor
	require.NoError(t, json.Unmarshal([]byte(`{"name":"list_leads","description":"List"}`), &tool))

	assert.Equal(t, "list_leads", tool.Name)
	assert.Equal(t, "object", tool.Parameters.Type)
	assert.Empty(t, tool.Parameters.Required)
	assert.NotNil(t, tool.Parameters.Properties)
}

func TestToolDescriptor_UnmarshalMissingName(t *testing.T) {
	var tool ToolDescriptor
	assert.Error(t, json.Unmarshal([]byte(`{"type":"function","function":{}}`), &tool))
}

func TestToolCall_Args(t *testing.T) {
	assert.Equal(t, map[string]any{"a": "b"}, ToolCall{Arguments: json.RawMessage(`{"a":"b"}`)}.Args())
	assert.Empty(t, ToolCall{Arguments: json.RawMessage(`not json`)}.Args())
	assert.Empty(t, ToolCall{Arguments: json.RawMessage(`null`)}.Args())
	assert.Empty(t, ToolCall{}.Args())
	assert.Equal(t, map[string]any{"name": "Ann"}, ToolCall{Arguments: json.RawMessage(`"{\"name\":\"Ann\"}"`)}.Args())
}
