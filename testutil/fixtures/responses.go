package fixtures

import (
	"github.com/BaSui01/crmflow/llm"
	"github.com/BaSui01/crmflow/types"
)

// Reply 单个 choice 的 assistant 回复，prompt 12 / completion 8 tokens
func Reply(content string, calls ...types.ToolCall) *llm.ChatResponse {
	finish := "stop"
	if len(calls) > 0 {
		finish = "tool_calls"
	}
	msg := types.NewAssistantMessage(content)
	msg.ToolCalls = calls
	return &llm.ChatResponse{
		ID:       "chatcmpl-fixture",
		Provider: "mock",
		Model:    "gpt-4o-mini",
		Choices:  []llm.ChatChoice{{FinishReason: finish, Message: msg}},
		Usage:    llm.ChatUsage{PromptTokens: 12, CompletionTokens: 8, TotalTokens: 20},
	}
}

// NoChoices 上游返回 200 但 choices 为空
func NoChoices() *llm.ChatResponse {
	resp := Reply("")
	resp.Choices = nil
	return resp
}
