package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/crmflow/internal/ctxkeys"
	"github.com/BaSui01/crmflow/internal/metrics"
	"github.com/BaSui01/crmflow/types"
)

// =============================================================================
// 🤖 生成调用客户端
// =============================================================================

// ClientConfig 控制单次生成调用的参数
type ClientConfig struct {
	Model         string
	Temperature   float32
	TopP          float32
	MaxTokens     int
	HistoryWindow int
}

// DefaultClientConfig 返回默认配置：temperature 0、top_p 0.9、保留最近 10 条历史
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Temperature:   0,
		TopP:          0.9,
		HistoryWindow: 10,
	}
}

// Embedder 是嵌入后端的最小接口，由 llm/embedding 中的 Provider 实现。
type Embedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float64, error)
	EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error)
}

// Reply 是带工具的生成结果
type Reply struct {
	Content   string
	ToolCalls []types.ToolCall
}

// Client 封装 Provider，负责消息拼装、API Key 轮换与指标记录。
// 可并发使用。
type Client struct {
	provider Provider
	embedder Embedder
	keys     *KeyRing
	cfg      ClientConfig
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// ClientOption 配置 Client
type ClientOption func(*Client)

// WithKeyRing 每次调用从 ring 中取下一把 key 覆盖 Provider 凭据
func WithKeyRing(ring *KeyRing) ClientOption {
	return func(c *Client) { c.keys = ring }
}

// WithEmbedder 设置嵌入后端
func WithEmbedder(e Embedder) ClientOption {
	return func(c *Client) { c.embedder = e }
}

// WithMetrics 设置指标收集器
func WithMetrics(m *metrics.Collector) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// NewClient 创建生成客户端
func NewClient(provider Provider, cfg ClientConfig, logger *zap.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultClientConfig().HistoryWindow
	}
	c := &Client{
		provider: provider,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "llm_client")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provider 返回底层 Provider
func (c *Client) Provider() Provider {
	return c.provider
}

// BuildMessages 拼装消息：可选的 system 消息、最近 window 条 user/assistant
// 历史、最后是 user 消息。其他角色的历史条目被忽略。
func BuildMessages(user, system string, history []types.Message, window int) []types.Message {
	msgs := make([]types.Message, 0, len(history)+2)
	if system != "" {
		msgs = append(msgs, types.NewSystemMessage(system))
	}
	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}
	for _, h := range history {
		if h.Role == types.RoleUser || h.Role == types.RoleAssistant {
			msgs = append(msgs, types.Message{Role: h.Role, Content: h.Content})
		}
	}
	return append(msgs, types.NewUserMessage(user))
}

// Invoke 发起一次不带工具的生成调用，返回文本内容
func (c *Client) Invoke(ctx context.Context, user, system string, history []types.Message) (string, error) {
	reply, err := c.complete(ctx, BuildMessages(user, system, history, c.cfg.HistoryWindow), nil)
	if err != nil {
		return "", err
	}
	return reply.Content, nil
}

// InvokeWithTools 发起一次带工具的生成调用
func (c *Client) InvokeWithTools(ctx context.Context, messages []types.Message, tools []types.ToolDescriptor) (*Reply, error) {
	schemas := make([]types.ToolSchema, 0, len(tools))
	for _, t := range tools {
		schemas = append(schemas, t.Schema())
	}
	return c.complete(ctx, messages, schemas)
}

func (c *Client) complete(ctx context.Context, messages []types.Message, tools []types.ToolSchema) (*Reply, error) {
	if c.keys != nil {
		var err error
		if ctx, err = c.keys.Attach(ctx); err != nil {
			return nil, types.NewError(types.ErrAuthentication, "llm api key").WithCause(err)
		}
	}

	req := &ChatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		TopP:        c.cfg.TopP,
		Tools:       tools,
	}
	if model, ok := ctxkeys.LLMModel(ctx); ok {
		req.Model = model
	}
	if len(tools) > 0 {
		req.ToolChoice = "auto"
	}

	start := time.Now()
	resp, err := c.provider.Completion(ctx, req)
	duration := time.Since(start)
	if err != nil {
		c.metrics.RecordLLMRequest(c.provider.Name(), req.Model, "error", duration, 0, 0)
		c.logger.Warn("completion failed",
			zap.String("provider", c.provider.Name()),
			zap.Int("tools", len(tools)),
			zap.Error(err))
		return nil, err
	}
	c.metrics.RecordLLMRequest(resp.Provider, resp.Model, "success", duration,
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	choice, err := FirstChoice(resp)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "completion").WithCause(err).WithProvider(c.provider.Name())
	}
	c.logger.Debug("completion finished",
		zap.String("model", resp.Model),
		zap.Int("tool_calls", len(choice.Message.ToolCalls)),
		zap.Duration("duration", duration))
	return &Reply{Content: choice.Message.Content, ToolCalls: choice.Message.ToolCalls}, nil
}

// EmbedQuery 嵌入单个查询
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	if c.embedder == nil {
		return nil, fmt.Errorf("no embedder configured")
	}
	return c.embedder.EmbedQuery(c.embedContext(ctx), text)
}

// EmbedDocuments 嵌入多个文档
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	if c.embedder == nil {
		return nil, fmt.Errorf("no embedder configured")
	}
	return c.embedder.EmbedDocuments(c.embedContext(ctx), texts)
}

func (c *Client) embedContext(ctx context.Context) context.Context {
	if c.keys == nil {
		return ctx
	}
	// 空 key ring 时交给嵌入后端使用其静态 key
	keyed, _ := c.keys.Attach(ctx)
	return keyed
}
