package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/crmflow/types"
)

func TestDecodeResponse_FillsDefaults(t *testing.T) {
	before := time.Now()
	resp := DecodeResponse(WireResponse{
		ID: "chatcmpl-9",
		Choices: []WireChoice{{
			FinishReason: "tool_calls",
			Message: WireMessage{
				Role: "assistant",
				ToolCalls: []WireToolCall{{
					ID:       "call_1",
					Type:     "function",
					Function: WireFunctionCall{Name: "list_leads", Arguments: json.RawMessage(`"{}"`)},
				}},
			},
		}},
	}, "google", "gemini-1.5-flash")

	assert.Equal(t, "google", resp.Provider)
	assert.Equal(t, "gemini-1.5-flash", resp.Model)
	assert.False(t, resp.CreatedAt.Before(before))
	assert.Zero(t, resp.Usage.TotalTokens)

	require.Len(t, resp.Choices, 1)
	msg := resp.Choices[0].Message
	assert.Equal(t, types.RoleAssistant, msg.Role)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "list_leads", msg.ToolCalls[0].Name)
}

func TestEncodeTools_Empty(t *testing.T) {
	assert.Nil(t, EncodeTools(nil))

	data, err := json.Marshal(WireRequest{Model: "m"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "tools")
	assert.Contains(t, string(data), `"temperature":0`)
}

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		status    int
		msg       string
		code      types.ErrorCode
		retryable bool
	}{
		{http.StatusUnauthorized, "bad key", types.ErrAuthentication, false},
		{http.StatusTooManyRequests, "slow down", types.ErrRateLimit, true},
		{http.StatusBadRequest, "Quota exceeded", types.ErrRateLimit, false},
		{http.StatusBadRequest, "missing field", types.ErrInvalidRequest, false},
		{http.StatusGatewayTimeout, "", types.ErrUpstreamTimeout, true},
		{529, "overloaded", types.ErrServiceUnavailable, true},
		{http.StatusNotFound, "no model", types.ErrUpstreamError, false},
		{http.StatusInternalServerError, "boom", types.ErrUpstreamError, true},
	}
	for _, tt := range tests {
		err := MapHTTPError(tt.status, tt.msg, "openai")
		assert.Equal(t, tt.code, err.Code, "status %d", tt.status)
		assert.Equal(t, tt.retryable, err.Retryable, "status %d", tt.status)
		assert.Equal(t, tt.status, err.HTTPStatus)
		assert.Equal(t, "openai", err.Provider)
	}
}

func TestTransportError_KeepsCause(t *testing.T) {
	err := TransportError("openai", "chat completion request failed", context.DeadlineExceeded)
	assert.True(t, err.Retryable)
	assert.Equal(t, http.StatusBadGateway, err.HTTPStatus)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Contains(t, err.Error(), "chat completion request failed")
}
