// 版权所有 2024 CRMFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理进程内的 HTTP 服务（mock CRM 与 /metrics 端点）。

# 概述

Manager 封装 net/http.Server：Start 非阻塞监听，Run 阻塞到上下文
结束后优雅关闭。监听地址可以是 ":0"，Addr 返回系统分配的实际地址。

# 核心类型

  - Manager：具名服务的生命周期（Start / Run / Shutdown / Addr）
  - Config：监听地址、读写与空闲超时、优雅关闭超时
  - Middleware / Chain：中间件与串联

# 主要能力

  - Recovery：panic 转为 500 JSON 响应
  - RequestID：沿用或生成 X-Request-ID
  - RequestLogger：Debug 级请求日志
  - Metrics：按路由模式记录请求次数与耗时
*/
package server
