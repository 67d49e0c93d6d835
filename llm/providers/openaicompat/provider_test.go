package openaicompat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/crmflow/llm"
	"github.com/BaSui01/crmflow/llm/providers"
	"github.com/BaSui01/crmflow/types"
)

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

func TestNew_Defaults(t *testing.T) {
	tests := []struct {
		name         string
		build        func() *Provider
		wantEndpoint string
		wantBaseURL  string
		wantName     string
		wantFallback string
	}{
		{
			name:         "generic defaults",
			build:        func() *Provider { return New(Config{ProviderName: "test"}, nil) },
			wantEndpoint: "/v1/chat/completions",
			wantName:     "test",
		},
		{
			name:         "openai variant",
			build:        func() *Provider { return NewOpenAI(Config{}, zap.NewNop()) },
			wantEndpoint: "/v1/chat/completions",
			wantBaseURL:  OpenAIBaseURL,
			wantName:     "openai",
			wantFallback: "gpt-4o-mini",
		},
		{
			name:         "google variant",
			build:        func() *Provider { return NewGoogle(Config{}, zap.NewNop()) },
			wantEndpoint: "/chat/completions",
			wantBaseURL:  GoogleBaseURL,
			wantName:     "google",
			wantFallback: "gemini-1.5-flash",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.build()
			require.NotNil(t, p)
			assert.Equal(t, tt.wantEndpoint, p.Cfg.EndpointPath)
			assert.Equal(t, tt.wantBaseURL, p.Cfg.BaseURL)
			assert.Equal(t, tt.wantName, p.Name())
			assert.Equal(t, tt.wantFallback, p.Cfg.FallbackModel)
			assert.NotNil(t, p.Client)
			assert.NotNil(t, p.Logger)
		})
	}
}

func TestNew_Timeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, New(Config{ProviderName: "t"}, nil).Client.Timeout)
	assert.Equal(t, 10*time.Second, New(Config{ProviderName: "t", Timeout: 10 * time.Second}, nil).Client.Timeout)
}

// ---------------------------------------------------------------------------
// Completion
// ---------------------------------------------------------------------------

func TestProvider_Completion_Success(t *testing.T) {
	var got providers.WireRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_ = json.NewEncoder(w).Encode(providers.WireResponse{
			ID:    "chatcmpl-1",
			Model: "gpt-4o-mini",
			Choices: []providers.WireChoice{{
				Index:        0,
				FinishReason: "stop",
				Message:      providers.WireMessage{Role: "assistant", Content: "Xin chào"},
			}},
			Usage:   &providers.WireUsage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10},
			Created: 1700000000,
		})
	}))
	defer server.Close()

	p := NewOpenAI(Config{APIKey: "test-key", BaseURL: server.URL}, nil)
	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages:    []types.Message{types.NewSystemMessage("sys"), types.NewUserMessage("hi")},
		Temperature: 0,
		TopP:        0.9,
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Nil(t, got.ToolChoice)
	assert.InDelta(t, 0.9, got.TopP, 1e-6)

	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, "chatcmpl-1", resp.ID)
	assert.Equal(t, 10, resp.Usage.TotalTokens)
	assert.Equal(t, time.Unix(1700000000, 0), resp.CreatedAt)
	choice, err := llm.FirstChoice(resp)
	require.NoError(t, err)
	assert.Equal(t, "Xin chào", choice.Message.Content)
}

func TestProvider_Completion_ToolsAndStringArguments(t *testing.T) {
	var raw map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		// arguments arrive as a JSON-encoded string, the way OpenAI sends them
		_, _ = w.Write([]byte(`{
			"id": "x", "model": "gemini-1.5-flash",
			"choices": [{"index": 0, "finish_reason": "tool_calls", "message": {
				"role": "assistant",
				"tool_calls": [{"id": "c1", "type": "function",
					"function": {"name": "create_lead", "arguments": "{\"email\":\"a@b.vn\"}"}}]
			}}]
		}`))
	}))
	defer server.Close()

	p := NewGoogle(Config{APIKey: "g", BaseURL: server.URL}, nil)
	tool := types.ToolDescriptor{Name: "create_lead", Description: "Create", Parameters: types.NewParameterSchema()}
	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages:   []types.Message{types.NewUserMessage("tạo lead")},
		Tools:      []types.ToolSchema{tool.Schema()},
		ToolChoice: "auto",
	})
	require.NoError(t, err)

	tools := raw["tools"].([]any)
	require.Len(t, tools, 1)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "create_lead", fn["name"])
	assert.Equal(t, "object", fn["parameters"].(map[string]any)["type"])
	assert.Equal(t, "auto", raw["tool_choice"])

	calls := resp.Choices[0].Message.ToolCalls
	require.Len(t, calls, 1)
	assert.Equal(t, "create_lead", calls[0].Name)
	assert.Equal(t, "a@b.vn", calls[0].Args()["email"])
}

func TestProvider_Completion_RotatedKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer rotated", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":"x","model":"m","choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer server.Close()

	p := NewOpenAI(Config{APIKey: "static", BaseURL: server.URL}, nil)
	ctx := llm.WithAPIKey(context.Background(), "rotated")
	_, err := p.Completion(ctx, &llm.ChatRequest{Messages: []types.Message{types.NewUserMessage("hi")}})
	require.NoError(t, err)
}

func TestProvider_Completion_HTTPErrors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantCode      types.ErrorCode
		wantRetryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, types.ErrAuthentication, false},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, types.ErrRateLimit, true},
		{"quota", http.StatusBadRequest, `{"error":{"message":"quota exhausted"}}`, types.ErrRateLimit, false},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"invalid"}}`, types.ErrInvalidRequest, false},
		{"unavailable", http.StatusServiceUnavailable, `down`, types.ErrServiceUnavailable, true},
		{"gateway timeout", http.StatusGatewayTimeout, `slow`, types.ErrUpstreamTimeout, true},
		{"internal", http.StatusInternalServerError, `boom`, types.ErrUpstreamError, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			p := NewOpenAI(Config{APIKey: "k", BaseURL: server.URL}, nil)
			_, err := p.Completion(context.Background(), &llm.ChatRequest{})
			require.Error(t, err)
			e, ok := types.AsError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, e.Code)
			assert.Equal(t, tt.wantRetryable, e.Retryable)
			assert.Equal(t, tt.status, e.HTTPStatus)
			assert.Equal(t, "openai", e.Provider)
		})
	}
}

func TestProvider_Completion_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	p := NewOpenAI(Config{APIKey: "k", BaseURL: server.URL}, nil)
	_, err := p.Completion(context.Background(), &llm.ChatRequest{})
	require.Error(t, err)
	assert.True(t, types.IsRetryable(err))
	assert.Equal(t, types.ErrUpstreamError, types.GetErrorCode(err))
}

func TestProvider_Completion_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewOpenAI(Config{APIKey: "k", BaseURL: server.URL}, nil)
	_, err := p.Completion(ctx, &llm.ChatRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

// ---------------------------------------------------------------------------
// Wire conversion
// ---------------------------------------------------------------------------

func TestEncodeMessages_ArgumentsAsString(t *testing.T) {
	msgs := []types.Message{{
		Role: types.RoleAssistant,
		ToolCalls: []types.ToolCall{
			{ID: "1", Name: "a", Arguments: json.RawMessage(`{"x":1}`)},
			{ID: "2", Name: "b", Arguments: json.RawMessage(`"{\"y\":2}"`)},
			{ID: "3", Name: "c"},
		},
	}}
	out := providers.EncodeMessages(msgs)
	require.Len(t, out[0].ToolCalls, 3)
	assert.JSONEq(t, `"{\"x\":1}"`, string(out[0].ToolCalls[0].Function.Arguments))
	assert.JSONEq(t, `"{\"y\":2}"`, string(out[0].ToolCalls[1].Function.Arguments))
	assert.JSONEq(t, `"{}"`, string(out[0].ToolCalls[2].Function.Arguments))
}

func TestReadErrorMessage(t *testing.T) {
	assert.Equal(t, "bad (type: invalid_request_error)",
		providers.ReadErrorMessage(stringsReader(`{"error":{"message":"bad","type":"invalid_request_error"}}`)))
	assert.Equal(t, "gemini says no",
		providers.ReadErrorMessage(stringsReader(`[{"error":{"code":400,"message":"gemini says no"}}]`)))
	assert.Equal(t, "plain text", providers.ReadErrorMessage(stringsReader("plain text\n")))
}

func stringsReader(s string) *strings.Reader { return strings.NewReader(s) }
