// Copyright 2026 CRMFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 providers 是生成与嵌入后端共用的报文层，openaicompat 与 llm/embedding
都依赖它。

# 报文

  - Wire* 系列：OpenAI 兼容 chat/completions 的请求、响应与错误体
  - EncodeMessages / EncodeTools：工具调用参数编码为 JSON 字符串
  - DecodeResponse：转成 llm.ChatResponse，补齐缺省的 model 与时间

# 错误

  - MapHTTPError：HTTP 状态码到 types.Error 的映射，带 Retryable 标记
  - TransportError：连接失败或响应体无法解码，按 502 可重试处理
  - ReadErrorMessage：从 OpenAI 或 Gemini 错误体中提取消息
*/
package providers
