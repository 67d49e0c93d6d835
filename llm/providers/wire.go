package providers

import (
	"encoding/json"
	"time"

	"github.com/BaSui01/crmflow/llm"
	"github.com/BaSui01/crmflow/types"
)

// =============================================================================
// 📡 OpenAI 兼容的 chat/completions 报文
// =============================================================================
// openai 与 google（Gemini 的 OpenAI 兼容端点）两个变体共用。

type WireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	Name       string         `json:"name,omitempty"`
	ToolCalls  []WireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type WireToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function WireFunctionCall `json:"function"`
}

// WireFunctionCall 的 Arguments 在线上是 JSON 字符串，不是对象
type WireFunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type WireTool struct {
	Type     string       `json:"type"`
	Function WireFunction `json:"function"`
}

type WireFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// WireRequest 中 Temperature 不带 omitempty，0 需要显式发送
type WireRequest struct {
	Model       string        `json:"model"`
	Messages    []WireMessage `json:"messages"`
	Tools       []WireTool    `json:"tools,omitempty"`
	ToolChoice  any           `json:"tool_choice,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature"`
	TopP        float32       `json:"top_p,omitempty"`
}

type WireChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      WireMessage `json:"message"`
}

type WireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type WireResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []WireChoice `json:"choices"`
	Usage   *WireUsage   `json:"usage,omitempty"`
	Created int64        `json:"created,omitempty"`
}

type WireError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
		Param   string `json:"param"`
	} `json:"error"`
}

// =============================================================================
// 🔄 转换
// =============================================================================

// EncodeMessages 转成线上格式，工具调用参数编码为 JSON 字符串
func EncodeMessages(msgs []types.Message) []WireMessage {
	out := make([]WireMessage, len(msgs))
	for i, m := range msgs {
		out[i] = WireMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			out[i].ToolCalls = append(out[i].ToolCalls, WireToolCall{
				ID:       tc.ID,
				Type:     "function",
				Function: WireFunctionCall{Name: tc.Name, Arguments: argumentString(tc.Arguments)},
			})
		}
	}
	return out
}

// argumentString 对象参数包成字符串；已是字符串的原样保留，空参数为 "{}"
func argumentString(raw json.RawMessage) json.RawMessage {
	const empty = `"{}"`
	if len(raw) == 0 {
		return json.RawMessage(empty)
	}
	if raw[0] == '"' {
		return raw
	}
	quoted, err := json.Marshal(string(raw))
	if err != nil {
		return json.RawMessage(empty)
	}
	return quoted
}

// EncodeTools 没有工具时返回 nil，请求里不出现 tools 字段
func EncodeTools(tools []types.ToolSchema) []WireTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]WireTool, len(tools))
	for i, t := range tools {
		out[i] = WireTool{
			Type:     "function",
			Function: WireFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		}
	}
	return out
}

// DecodeResponse 转成 llm.ChatResponse。上游没回 model 时用 requested，没回 created 时取当前时间。
func DecodeResponse(wire WireResponse, provider, requested string) *llm.ChatResponse {
	resp := &llm.ChatResponse{
		ID:        wire.ID,
		Provider:  provider,
		Model:     wire.Model,
		Choices:   make([]llm.ChatChoice, len(wire.Choices)),
		CreatedAt: time.Now(),
	}
	if resp.Model == "" {
		resp.Model = requested
	}
	if wire.Created != 0 {
		resp.CreatedAt = time.Unix(wire.Created, 0)
	}
	if wire.Usage != nil {
		resp.Usage = llm.ChatUsage{
			PromptTokens:     wire.Usage.PromptTokens,
			CompletionTokens: wire.Usage.CompletionTokens,
			TotalTokens:      wire.Usage.TotalTokens,
		}
	}

	for i, c := range wire.Choices {
		msg := types.Message{Role: types.RoleAssistant, Content: c.Message.Content, Name: c.Message.Name}
		for _, tc := range c.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, types.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		resp.Choices[i] = llm.ChatChoice{Index: c.Index, FinishReason: c.FinishReason, Message: msg}
	}
	return resp
}
