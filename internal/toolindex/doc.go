/*
包 toolindex 在领域工具过多时按向量相似度为查询挑选候选工具。

# 概述

Index 为每个工具缓存一份嵌入向量（文本见 ToolText），查询时计算余弦
相似度并返回前 TopK 个工具，作为 agent.ToolSelector 接入执行器。
工具数不超过 TopK 时原样返回，不调用嵌入接口。

# 核心接口

  - Embedder：EmbedQuery / EmbedDocuments，*llm.Client 即满足
  - Index：Select 实现 agent.ToolSelector
*/
package toolindex
