package llm_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/crmflow/internal/ctxkeys"
	"github.com/BaSui01/crmflow/internal/metrics"
	"github.com/BaSui01/crmflow/llm"
	"github.com/BaSui01/crmflow/testutil/fixtures"
	"github.com/BaSui01/crmflow/testutil/mocks"
	"github.com/BaSui01/crmflow/types"
)

var namespaceSeq uint64

func history(n int) []types.Message {
	out := make([]types.Message, 0, n)
	for i := 0; i < n; i++ {
		role := types.RoleUser
		if i%2 == 1 {
			role = types.RoleAssistant
		}
		out = append(out, types.Message{Role: role, Content: fmt.Sprintf("turn %d", i)})
	}
	return out
}

func TestBuildMessages(t *testing.T) {
	tests := []struct {
		name       string
		system     string
		history    []types.Message
		window     int
		wantLen    int
		wantFirst  types.Role
		wantSecond string
	}{
		{"no system no history", "", nil, 10, 1, types.RoleUser, ""},
		{"system only", "sys", nil, 10, 2, types.RoleSystem, "hello"},
		{"window keeps last ten", "sys", history(14), 10, 12, types.RoleSystem, "turn 4"},
		{"short history kept", "", history(3), 10, 4, types.RoleUser, "turn 1"},
		{"tool and system history dropped", "", []types.Message{
			{Role: types.RoleTool, Content: "x"},
			{Role: types.RoleSystem, Content: "y"},
			{Role: types.RoleAssistant, Content: "z"},
		}, 10, 2, types.RoleAssistant, "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := llm.BuildMessages("hello", tt.system, tt.history, tt.window)
			require.Len(t, msgs, tt.wantLen)
			assert.Equal(t, tt.wantFirst, msgs[0].Role)
			last := msgs[len(msgs)-1]
			assert.Equal(t, types.RoleUser, last.Role)
			assert.Equal(t, "hello", last.Content)
			if tt.wantSecond != "" && len(msgs) > 1 {
				assert.Equal(t, tt.wantSecond, msgs[1].Content)
			}
		})
	}
}

func TestClient_InvokeDefaults(t *testing.T) {
	provider := mocks.NewSuccessProvider("xin chào")
	client := llm.NewClient(provider, llm.DefaultClientConfig(), zap.NewNop())

	out, err := client.Invoke(context.Background(), "hi", "sys", history(2))
	require.NoError(t, err)
	assert.Equal(t, "xin chào", out)

	req := provider.GetLastCall().Request
	assert.Equal(t, float32(0), req.Temperature)
	assert.InDelta(t, 0.9, req.TopP, 1e-6)
	assert.Empty(t, req.Tools)
	assert.Empty(t, req.ToolChoice)
	assert.Len(t, req.Messages, 4)
}

func TestClient_InvokeWithTools(t *testing.T) {
	provider := mocks.NewScriptedProvider(mocks.Call("create_lead", map[string]any{"email": "a@b.vn"}))
	client := llm.NewClient(provider, llm.DefaultClientConfig(), nil)

	reply, err := client.InvokeWithTools(context.Background(),
		[]types.Message{types.NewUserMessage("tạo lead")}, fixtures.LeadTools())
	require.NoError(t, err)
	require.Len(t, reply.ToolCalls, 1)
	assert.Equal(t, "a@b.vn", reply.ToolCalls[0].Args()["email"])

	req := provider.GetLastCall().Request
	require.Len(t, req.Tools, 3)
	assert.Equal(t, "create_lead", req.Tools[0].Name)
	assert.Equal(t, "auto", req.ToolChoice)
}

func TestClient_ModelOverrideFromContext(t *testing.T) {
	provider := mocks.NewSuccessProvider("ok")
	cfg := llm.DefaultClientConfig()
	cfg.Model = "gemini-2.0-flash"
	client := llm.NewClient(provider, cfg, zap.NewNop())

	_, err := client.Invoke(context.Background(), "hi", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash", provider.GetLastCall().Request.Model)

	ctx := ctxkeys.WithLLMModel(context.Background(), "gemini-2.5-pro")
	_, err = client.Invoke(ctx, "hi", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-pro", provider.GetLastCall().Request.Model)
}

func TestClient_KeyRotation(t *testing.T) {
	provider := mocks.NewSuccessProvider("ok")
	client := llm.NewClient(provider, llm.DefaultClientConfig(), nil,
		llm.WithKeyRing(llm.NewKeyRing("a", " ", "b")))

	for i := 0; i < 4; i++ {
		_, err := client.Invoke(context.Background(), "q", "", nil)
		require.NoError(t, err)
	}
	var keys []string
	for _, c := range provider.GetCalls() {
		keys = append(keys, c.APIKey)
	}
	assert.Equal(t, []string{"a", "b", "a", "b"}, keys)
}

func TestClient_EmptyKeyRing(t *testing.T) {
	provider := mocks.NewSuccessProvider("ok")
	client := llm.NewClient(provider, llm.DefaultClientConfig(), nil, llm.WithKeyRing(llm.NewKeyRing()))
	_, err := client.Invoke(context.Background(), "q", "", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, llm.ErrNoAvailableAPIKey))
	assert.Zero(t, provider.GetCallCount())
}

func TestClient_ProviderErrorAndMetrics(t *testing.T) {
	ns := fmt.Sprintf("llm_client_test_%d", atomic.AddUint64(&namespaceSeq, 1))
	collector := metrics.NewCollector(ns, zap.NewNop())
	boom := types.NewError(types.ErrUpstreamError, "boom")
	provider := mocks.NewScriptedProvider(mocks.Fail(boom), mocks.Text("ok"))
	client := llm.NewClient(provider, llm.ClientConfig{Model: "m", TopP: 0.9}, nil, llm.WithMetrics(collector))

	_, err := client.Invoke(context.Background(), "q", "", nil)
	require.ErrorIs(t, err, boom)
	out, err := client.Invoke(context.Background(), "q", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	count, err := testutil.GatherAndCount(prometheus.DefaultGatherer, ns+"_llm_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestClient_ToolCallResponseRecordsTokens(t *testing.T) {
	ns := fmt.Sprintf("llm_tokens_test_%d", atomic.AddUint64(&namespaceSeq, 1))
	collector := metrics.NewCollector(ns, zap.NewNop())
	call := mocks.NewToolCall("get_lead", map[string]any{"id": "L1"})
	provider := mocks.NewMockProvider().WithCompletionFunc(func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		return fixtures.Reply("", call), nil
	})
	client := llm.NewClient(provider, llm.DefaultClientConfig(), nil, llm.WithMetrics(collector))

	reply, err := client.InvokeWithTools(context.Background(),
		[]types.Message{types.NewUserMessage("lead L1")}, fixtures.LeadTools())
	require.NoError(t, err)
	require.Len(t, reply.ToolCalls, 1)
	assert.Equal(t, "get_lead", reply.ToolCalls[0].Name)

	// prompt 与 completion 各一条序列
	count, err := testutil.GatherAndCount(prometheus.DefaultGatherer, ns+"_llm_tokens_used_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestClient_EmptyChoices(t *testing.T) {
	provider := mocks.NewMockProvider().WithCompletionFunc(func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		return fixtures.NoChoices(), nil
	})
	client := llm.NewClient(provider, llm.DefaultClientConfig(), nil)
	_, err := client.Invoke(context.Background(), "q", "", nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrUpstreamError, types.GetErrorCode(err))
}

type fakeEmbedder struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, q string) ([]float64, error) {
	f.record(ctx)
	return []float64{float64(len(q))}, nil
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, docs []string) ([][]float64, error) {
	f.record(ctx)
	out := make([][]float64, len(docs))
	for i, d := range docs {
		out[i] = []float64{float64(len(d))}
	}
	return out, nil
}

func (f *fakeEmbedder) record(ctx context.Context) {
	key, _ := llm.APIKeyFromContext(ctx)
	f.mu.Lock()
	f.keys = append(f.keys, key)
	f.mu.Unlock()
}

func TestClient_Embeddings(t *testing.T) {
	client := llm.NewClient(mocks.NewMockProvider(), llm.DefaultClientConfig(), nil)
	_, err := client.EmbedQuery(context.Background(), "x")
	assert.Error(t, err)

	emb := &fakeEmbedder{}
	client = llm.NewClient(mocks.NewMockProvider(), llm.DefaultClientConfig(), nil,
		llm.WithEmbedder(emb), llm.WithKeyRing(llm.NewKeyRing("k1", "k2")))
	vec, err := client.EmbedQuery(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []float64{3}, vec)
	vecs, err := client.EmbedDocuments(context.Background(), []string{"a", "bb"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1}, {2}}, vecs)
	assert.Equal(t, []string{"k1", "k2"}, emb.keys)
}
