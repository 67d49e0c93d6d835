// Copyright 2025-2026 CRMFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package openapi 将 OpenAPI 3.x 规范（JSON 或 YAML）编译为可直接用于模型
function calling 的自包含工具描述。

每个 API Operation 对应一个 types.ToolDescriptor，包含名称、描述、
参数 Schema、HTTP 端点绑定以及推断出的 domain / action。

# 核心接口/类型

  - Document — 解析后的规范树，保留 paths 与 components.schemas 的文档顺序
  - Resolver — $ref 解析器，支持本地指针与远程文档（按 URL 缓存，失败也缓存）
  - Flattener — 递归内联所有引用，检测循环引用
  - Extractor — 合并 path 级与 operation 级参数以及 JSON 请求体
  - Builder — 生成单个工具描述（action / domain / name / description）
  - Compiler — 按文档顺序遍历所有 Operation，支持 Tag 过滤与名称前缀

# 主要能力

  - 远程引用：singleflight 合并并发拉取，可选 DocumentCache（Redis）跨进程共享
  - 循环保护：同一解析链重复访问或超过 MaxDepth 时返回 CyclicReferenceError
  - 请求体推断：无显式 $ref 时按 operation 名称的单词匹配 schema 名称，首个命中生效
  - 安全传输：HTTP 请求使用 tlsutil.SecureHTTPClient
*/
package openapi
