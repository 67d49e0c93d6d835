package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/BaSui01/crmflow/types"
)

// =============================================================================
// ❌ 上游错误映射
// =============================================================================

// MapHTTPError 把上游的 4xx/5xx 映射为 types.Error。
// 429、408/504、502/503/529 以及其余 5xx 可重试；400 里的额度耗尽按限流处理但不重试。
func MapHTTPError(status int, msg string, provider string) *types.Error {
	code, retryable := classifyStatus(status, msg)
	return types.NewError(code, msg).
		WithHTTPStatus(status).
		WithRetryable(retryable).
		WithProvider(provider)
}

func classifyStatus(status int, msg string) (types.ErrorCode, bool) {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return types.ErrAuthentication, false
	case http.StatusTooManyRequests:
		return types.ErrRateLimit, true
	case http.StatusBadRequest:
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "quota") || strings.Contains(lower, "credit") {
			return types.ErrRateLimit, false
		}
		return types.ErrInvalidRequest, false
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return types.ErrUpstreamTimeout, true
	case http.StatusBadGateway, http.StatusServiceUnavailable, 529:
		return types.ErrServiceUnavailable, true
	}
	return types.ErrUpstreamError, status >= 500
}

// TransportError 请求没有拿到可用响应（连接失败、响应体无法解码），按 502 可重试处理。
// op 描述失败的步骤，err 作为 Cause 保留。
func TransportError(provider, op string, err error) *types.Error {
	return types.NewError(types.ErrUpstreamError, op).
		WithCause(err).
		WithHTTPStatus(http.StatusBadGateway).
		WithRetryable(true).
		WithProvider(provider)
}

// ReadErrorMessage 从错误响应体中取出可读消息。
// 依次尝试 OpenAI 的 {"error":{...}}、Gemini 原生端点的数组形式，最后退回原文。
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil {
		return "failed to read error response"
	}

	var single WireError
	if json.Unmarshal(data, &single) == nil && single.Error.Message != "" {
		if single.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", single.Error.Message, single.Error.Type)
		}
		return single.Error.Message
	}
	var list []WireError
	if json.Unmarshal(data, &list) == nil && len(list) > 0 && list[0].Error.Message != "" {
		return list[0].Error.Message
	}
	return strings.TrimSpace(string(data))
}
