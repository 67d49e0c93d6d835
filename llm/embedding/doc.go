// 版权所有 2024 CRMFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 embedding 提供 openai 与 google 两个变体的文本嵌入后端，
供 internal/toolindex 对大领域的工具做语义预筛选。

# 概述

两个变体的请求格式与认证方式不同（Bearer 与 x-goog-api-key），
共享 key 选择、按 MaxBatch 分批、HTTP 错误映射等逻辑。

# 核心接口

  - Provider：EmbedQuery / EmbedDocuments / Name / Dimensions
  - Config / DefaultConfig：端点、模型、维度、批量上限、超时
  - New：按 llm.ProviderKind 创建后端

# 主要能力

  - openai：/v1/embeddings，默认 text-embedding-3-large，结果按 index 还原顺序
  - google：/models/{model}:batchEmbedContents，默认 gemini-embedding-001，
    查询与文档分别使用 RETRIEVAL_QUERY / RETRIEVAL_DOCUMENT
  - llm.WithAPIKey 写入的 key 优先于配置中的静态 key
  - 经 tlsutil.SecureHTTPClient 发起请求

# 使用方式

	emb, err := embedding.New(llm.KindGoogle, embedding.Config{APIKey: key})
	vec, err := emb.EmbedQuery(ctx, "tạo lead mới")
*/
package embedding
