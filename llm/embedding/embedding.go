package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/crmflow/internal/tlsutil"
	"github.com/BaSui01/crmflow/llm"
	"github.com/BaSui01/crmflow/llm/providers"
)

// Provider 嵌入后端。*llm.Client 通过 llm.WithEmbedder 持有它。
type Provider interface {
	EmbedQuery(ctx context.Context, query string) ([]float64, error)
	EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error)
	Name() string
	Dimensions() int
}

// Config 嵌入后端配置。零值字段取 DefaultConfig 对应变体的默认值。
type Config struct {
	APIKey     string        `json:"api_key" yaml:"api_key"`
	BaseURL    string        `json:"base_url" yaml:"base_url"`
	Model      string        `json:"model,omitempty" yaml:"model,omitempty"`
	Dimensions int           `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
	MaxBatch   int           `json:"max_batch,omitempty" yaml:"max_batch,omitempty"`
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// DefaultConfig 返回变体的默认端点与模型
func DefaultConfig(kind llm.ProviderKind) Config {
	if kind == llm.KindGoogle {
		return Config{
			BaseURL:    "https://generativelanguage.googleapis.com/v1beta",
			Model:      "gemini-embedding-001",
			Dimensions: 3072,
			MaxBatch:   100,
			Timeout:    30 * time.Second,
		}
	}
	return Config{
		BaseURL:    "https://api.openai.com",
		Model:      "text-embedding-3-large",
		Dimensions: 3072,
		MaxBatch:   2048,
		Timeout:    30 * time.Second,
	}
}

func (c Config) withDefaults(kind llm.ProviderKind) Config {
	def := DefaultConfig(kind)
	if c.BaseURL == "" {
		c.BaseURL = def.BaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Model == "" {
		c.Model = def.Model
		if c.Dimensions == 0 {
			c.Dimensions = def.Dimensions
		}
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = def.MaxBatch
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	return c
}

// task 区分查询与文档，google 变体据此选择 taskType
type task int

const (
	taskQuery task = iota
	taskDocument
)

// backend 变体各自的请求格式
type backend interface {
	embed(ctx context.Context, p *provider, key string, texts []string, t task) ([][]float64, error)
}

// provider 两个变体共享的部分：key 选择、分批、HTTP 与错误映射
type provider struct {
	name    string
	cfg     Config
	client  *http.Client
	backend backend
}

// New 创建 kind 对应的嵌入后端
func New(kind llm.ProviderKind, cfg Config) (Provider, error) {
	var b backend
	switch kind {
	case llm.KindOpenAI:
		b = openAIBackend{}
	case llm.KindGoogle:
		b = geminiBackend{}
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", kind)
	}
	cfg = cfg.withDefaults(kind)
	return &provider{
		name:    string(kind) + "-embedding",
		cfg:     cfg,
		client:  tlsutil.SecureHTTPClient(cfg.Timeout),
		backend: b,
	}, nil
}

func (p *provider) Name() string    { return p.name }
func (p *provider) Dimensions() int { return p.cfg.Dimensions }

// apiKey 优先使用 llm.Client 轮换写入 ctx 的 key
func (p *provider) apiKey(ctx context.Context) string {
	if key, ok := llm.APIKeyFromContext(ctx); ok {
		return key
	}
	return p.cfg.APIKey
}

func (p *provider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	vecs, err := p.backend.embed(ctx, p, p.apiKey(ctx), []string{query}, taskQuery)
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%s: expected 1 embedding, got %d", p.name, len(vecs))
	}
	return vecs[0], nil
}

// EmbedDocuments 按 MaxBatch 分批，结果与输入一一对应
func (p *provider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	key := p.apiKey(ctx)
	out := make([][]float64, 0, len(documents))
	for start := 0; start < len(documents); start += p.cfg.MaxBatch {
		end := min(start+p.cfg.MaxBatch, len(documents))
		vecs, err := p.backend.embed(ctx, p, key, documents[start:end], taskDocument)
		if err != nil {
			return nil, err
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("%s: expected %d embeddings, got %d", p.name, end-start, len(vecs))
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// post 发送 JSON 请求并解码响应。HTTP 错误映射为 types.Error。
func (p *provider) post(ctx context.Context, path string, headers map[string]string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal embedding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return providers.TransportError(p.name, "embedding request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return providers.MapHTTPError(resp.StatusCode, providers.ReadErrorMessage(resp.Body), p.name)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read embedding response: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return providers.TransportError(p.name, "decode embedding response", err)
	}
	return nil
}
