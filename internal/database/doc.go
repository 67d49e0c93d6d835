// 版权所有 2024 CRMFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 为会话历史打开 GORM 连接并管理连接池。

# 概述

Open 按驱动名选择方言（sqlite 使用纯 Go 实现，无需 cgo）。
PoolManager 应用连接数与生命周期设置，可选地在后台定时探活，
并把打开与空闲连接数写入 metrics.Collector。

# 事务

WithTransaction 执行单个事务。WithTransactionRetry 通过 llm/retry
的退避策略重放整个事务，仅在 IsTransient 判定为瞬时故障时重试：

  - PostgreSQL SQLSTATE 40001 / 40P01 / 55P03
  - MySQL 1205 / 1213
  - driver.ErrBadConn，以及 SQLite 的 "database is locked"

其余错误原样返回；次数用尽时返回 MAX_RETRIES_EXCEEDED。
*/
package database
