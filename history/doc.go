/*
包 history 保存聊天会话，并把最近的若干轮作为显式历史交给查询流水线。

# 概述

Store 使用 GORM 维护 conversations 与 messages 两张表，驱动可选
sqlite（github.com/glebarez/sqlite，纯 Go）、postgres 与 mysql。
写入在事务中完成，遇到死锁等可重试错误时按退避重试。

# 核心接口

  - Store：Create / Ensure / Get / List / Delete 管理会话，
    Append 写入一轮对话，Recent 读取最近 N 条消息（时间正序）
  - Conversation / Message：表模型

# 主要能力

  - 仅保存 user 与 assistant 消息，assistant 消息记录回答的领域
  - 会话标题缺省时取首条用户消息
  - 每次操作的耗时写入 Prometheus
*/
package history
