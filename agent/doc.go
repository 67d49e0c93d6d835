// 版权所有 2024 CRMFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 agent 实现查询的两阶段处理：领域路由与领域动作执行。

# 概述

Pipeline 为每个查询创建不可变的 RouterState，先交给 Router 选择
一个领域（agent_<名称>），再交给 Executor 在该领域的工具集上
完成工具调用、必填参数校验、CRM 动作分发与结果摘要。两个阶段
之间不回环，也不做自动重试。

# 核心接口

  - Domains：领域名到工具列表的只读映射，始终包含 agent_General
  - Router：一次生成调用选择领域，返回值不在已知集合内时回退到 agent_General
  - Executor：工具调用、缺参澄清、失败解释、列表/单条摘要
  - Generator / ActionRunner：生成调用与 CRM 动作的最小依赖接口
  - ToolSelector：大领域的工具预筛选（可选）

# 主要能力

  - 缺少必填参数时不发起任何 HTTP 请求，改为生成澄清问题
  - 动作失败时停止后续调用，由模型生成友好的错误说明
  - 每个阶段一个 OpenTelemetry span，路由与查询耗时写入 Prometheus
*/
package agent
