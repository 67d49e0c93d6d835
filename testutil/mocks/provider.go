// MockProvider 的生成后端测试模拟实现。
//
// 支持固定响应、按顺序脚本化的多轮响应与错误注入场景。
package mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/crmflow/llm"
	"github.com/BaSui01/crmflow/types"
)

// --- MockProvider 结构 ---

// Step 是脚本中的一次响应。Err 非空时该次调用返回错误。
type Step struct {
	Content   string
	ToolCalls []types.ToolCall
	Err       error
}

// Text 返回纯文本响应步骤
func Text(content string) Step {
	return Step{Content: content}
}

// Call 返回单个工具调用的响应步骤，args 编码为 JSON 对象
func Call(name string, args map[string]any) Step {
	return Step{ToolCalls: []types.ToolCall{NewToolCall(name, args)}}
}

// Fail 返回错误步骤
func Fail(err error) Step {
	return Step{Err: err}
}

// NewToolCall 构造工具调用
func NewToolCall(name string, args map[string]any) types.ToolCall {
	raw, err := json.Marshal(args)
	if err != nil {
		panic(err)
	}
	return types.ToolCall{
		ID:        "call_" + name,
		Name:      name,
		Arguments: raw,
	}
}

// MockProvider 是 llm.Provider 的模拟实现
type MockProvider struct {
	mu sync.RWMutex

	// 响应配置
	response string
	err      error
	script   []Step

	// Token 使用统计
	promptTokens     int
	completionTokens int

	// 调用记录
	calls          []MockProviderCall
	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

	callCount int
}

// MockProviderCall 记录单次调用
type MockProviderCall struct {
	Request  *llm.ChatRequest
	APIKey   string
	Response *llm.ChatResponse
	Error    error
}

// --- 构造函数和 Builder 方法 ---

// NewMockProvider 创建新的 MockProvider
func NewMockProvider() *MockProvider {
	return &MockProvider{
		response:         "Mock response",
		promptTokens:     10,
		completionTokens: 20,
	}
}

// WithResponse 设置固定响应内容
func (m *MockProvider) WithResponse(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithError 设置返回错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithScript 设置按顺序消费的响应脚本，脚本耗尽后回到固定响应
func (m *MockProvider) WithScript(steps ...Step) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, steps...)
	return m
}

// WithCompletionFunc 设置自定义 Completion 函数
func (m *MockProvider) WithCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionFunc = fn
	return m
}

// --- Provider 接口实现 ---

// Name 返回 Provider 名称
func (m *MockProvider) Name() string {
	return "mock"
}

// Completion 生成响应
func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.callCount++
	call := MockProviderCall{Request: req}
	if key, ok := llm.APIKeyFromContext(ctx); ok {
		call.APIKey = key
	}

	// 检查是否有预设错误
	if m.err != nil {
		call.Error = m.err
		m.calls = append(m.calls, call)
		return nil, m.err
	}

	// 使用自定义函数
	if m.completionFunc != nil {
		resp, err := m.completionFunc(ctx, req)
		call.Response, call.Error = resp, err
		m.calls = append(m.calls, call)
		return resp, err
	}

	content := m.response
	var toolCalls []types.ToolCall
	if len(m.script) > 0 {
		step := m.script[0]
		m.script = m.script[1:]
		if step.Err != nil {
			call.Error = step.Err
			m.calls = append(m.calls, call)
			return nil, step.Err
		}
		content, toolCalls = step.Content, step.ToolCalls
	}

	resp := &llm.ChatResponse{
		ID:       fmt.Sprintf("mock-response-%d", m.callCount),
		Provider: "mock",
		Model:    req.Model,
		Choices: []llm.ChatChoice{
			{
				Index:        0,
				FinishReason: "stop",
				Message: types.Message{
					Role:      types.RoleAssistant,
					Content:   content,
					ToolCalls: toolCalls,
				},
			},
		},
		Usage: llm.ChatUsage{
			PromptTokens:     m.promptTokens,
			CompletionTokens: m.completionTokens,
			TotalTokens:      m.promptTokens + m.completionTokens,
		},
		CreatedAt: time.Now(),
	}

	if len(toolCalls) > 0 {
		resp.Choices[0].FinishReason = "tool_calls"
	}

	call.Response = resp
	m.calls = append(m.calls, call)
	return resp, nil
}

// --- 查询方法 ---

// GetCalls 获取所有调用记录
func (m *MockProvider) GetCalls() []MockProviderCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MockProviderCall{}, m.calls...)
}

// GetCallCount 获取调用次数
func (m *MockProvider) GetCallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCount
}

// GetLastCall 获取最后一次调用
func (m *MockProvider) GetLastCall() *MockProviderCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.calls) == 0 {
		return nil
	}
	call := m.calls[len(m.calls)-1]
	return &call
}

// --- 预设 Provider 工厂 ---

// NewSuccessProvider 创建总是成功的 Provider
func NewSuccessProvider(response string) *MockProvider {
	return NewMockProvider().WithResponse(response)
}

// NewErrorProvider 创建总是失败的 Provider
func NewErrorProvider(err error) *MockProvider {
	return NewMockProvider().WithError(err)
}

// NewScriptedProvider 创建按脚本依次响应的 Provider
func NewScriptedProvider(steps ...Step) *MockProvider {
	return NewMockProvider().WithScript(steps...)
}
