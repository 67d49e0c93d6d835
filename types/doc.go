// Copyright (c) CRMFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 crmflow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 openapi、tools、agent、
crm、llm 等上层模块提供统一的类型契约。

# 核心类型

  - Message / ToolCall — 对话消息与模型发起的工具调用
  - ToolDescriptor     — 由单个 API 操作编译出的自包含工具（名称、描述、参数、端点、领域、动作）
  - ParameterSchema    — 工具参数对象 Schema，required 必为 properties 的子集
  - ToolSchema         — 传给模型 function calling 接口的工具形态
  - Error / ErrorCode  — 结构化错误体系，覆盖 Schema 编译、路由分发与重试预算

# 错误码

  - SPEC_PARSE / REFERENCE_RESOLUTION / CYCLIC_REFERENCE — Schema 编译阶段
  - ROUTING_FALLBACK / MISSING_REQUIRED_PARAMETER / ACTION_EXECUTION — 路由与分发阶段
  - MAX_RETRIES_EXCEEDED — 离线校验工具的重试预算耗尽
*/
package types
