package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/crmflow/types"
)

// ProviderKind 标识生成后端的变体。集合是封闭的。
type ProviderKind string

const (
	KindOpenAI ProviderKind = "openai"
	KindGoogle ProviderKind = "google"
)

// Valid 报告 kind 是否属于已知变体
func (k ProviderKind) Valid() bool {
	return k == KindOpenAI || k == KindGoogle
}

// ParseProviderKind 解析配置中的 provider 名称，大小写不敏感。
func ParseProviderKind(s string) (ProviderKind, error) {
	k := ProviderKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", types.NewError(types.ErrInvalidRequest, "unknown llm provider: "+s)
	}
	return k, nil
}

type ChatRequest struct {
	TraceID     string             `json:"trace_id,omitempty"`
	Model       string             `json:"model"`
	Messages    []types.Message    `json:"messages"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
	Temperature float32            `json:"temperature"`
	TopP        float32            `json:"top_p,omitempty"`
	Tools       []types.ToolSchema `json:"tools,omitempty"`
	ToolChoice  string             `json:"tool_choice,omitempty"` // auto/none/<tool name>
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

type ChatChoice struct {
	Index        int           `json:"index"`
	FinishReason string        `json:"finish_reason,omitempty"`
	Message      types.Message `json:"message"`
}

type ChatResponse struct {
	ID        string       `json:"id,omitempty"`
	Provider  string       `json:"provider,omitempty"`
	Model     string       `json:"model"`
	Choices   []ChatChoice `json:"choices"`
	Usage     ChatUsage    `json:"usage,omitempty"`
	CreatedAt time.Time    `json:"created_at,omitempty"`
}

// FirstChoice 返回响应的第一个 choice
func FirstChoice(resp *ChatResponse) (ChatChoice, error) {
	if resp == nil {
		return ChatChoice{}, errors.New("nil chat response")
	}
	if len(resp.Choices) == 0 {
		return ChatChoice{}, fmt.Errorf("model %q returned no choices", resp.Model)
	}
	return resp.Choices[0], nil
}

// Provider 定义了统一的生成后端接口。
// 工具通过 ChatRequest.Tools 传入，模型在响应中返回 ToolCalls，
// 工具的实际执行由 agent.Executor 负责。
type Provider interface {
	// Completion 发起同步聊天请求，返回完整响应
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Name 返回 Provider 的唯一标识
	Name() string
}
