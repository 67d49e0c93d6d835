// 版权所有 2024 CRMFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供统一的生成后端接入层：Provider 抽象、生成调用客户端与 API Key 轮换。

# 概述

路由器与执行器只通过 [Client] 使用生成能力：Invoke(user, system, history)
返回文本，InvokeWithTools(messages, tools) 返回文本与工具调用，
EmbedQuery / EmbedDocuments 返回向量。后端变体是封闭集合
（[KindOpenAI]、[KindGoogle]），由 llm/factory 构造。

# 核心接口

  - [Provider]：生成后端接口，提供 Completion / Name
  - [Embedder]：嵌入后端的最小接口，由 llm/embedding 实现

# 核心类型

  - [Client]：拼装消息（system、最近 N 条历史、user），每次调用从
    [KeyRing] 取下一把 key，通过 [WithAPIKey] 传给 Provider，
    并记录 Prometheus 指标
  - [ChatRequest] / [ChatResponse] / [ChatChoice]：请求与响应模型
  - [KeyRing]：轮询分发 API Key，[KeysFromEnv] 读取 NAME、NAME_1 ... 变量

# 错误

传输与上游错误统一为 types.Error，错误码与可重试标记由
llm/providers.MapHTTPError 决定。
*/
package llm
