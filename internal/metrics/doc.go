// 版权所有 2024 CRMFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 把查询链路上的事件记为 Prometheus 指标。配置 metrics.enabled
时，运行时在 metrics.addr 上通过 Handler 暴露 /metrics。

Collector 在默认 Registry 上按 namespace 注册全部向量指标；nil Collector
上的 Record 方法为空操作，各组件未启用指标时直接传 nil。

# 指标

  - http_requests_total / http_request_duration_seconds：mock CRM 服务，状态码按百位归类
  - llm_requests_total / llm_request_duration_seconds / llm_tokens_used_total
  - route_decisions_total：outcome 为 routed 或 fallback
  - crm_actions_total / crm_action_duration_seconds / pipeline_duration_seconds
  - tools_compiled_total：按 domain
  - cache_hits_total / cache_misses_total：远程 OpenAPI 文档缓存
  - db_connections_open / db_connections_idle / db_query_duration_seconds：会话历史
*/
package metrics
