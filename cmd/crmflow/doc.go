/*
Package main 提供 crmflow 命令行程序入口。

# 概述

cmd/crmflow 基于 cobra 组织子命令：chat 进入交互式对话，compile 把
OpenAPI 文档编译为工具 JSON，validate 用重试 harness 检查模型的工具
调用，mock-crm 启动内存版 CRM，version 打印构建信息。

# 主要能力

  - 配置：--config 指定 YAML，CRMFLOW_* / ESPOCRM_* 环境变量覆盖
  - 日志：按 log 配置构建 zap logger，对话内容只写 stdout
  - 可选基础设施：Prometheus /metrics、OTLP 遥测、Redis 远程引用缓存、
    会话历史数据库（--conversation 续接）
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
