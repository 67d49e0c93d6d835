// 版权所有 2024 CRMFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 用 Redis 在多个进程之间共享远程 OpenAPI 文档。

Manager 在统一的键前缀下存取字节值，未指定 TTL 时使用 DefaultTTL，
命中与未命中写入 metrics.Collector。Close 之后的操作返回 ErrClosed，
不存在的键返回 ErrCacheMiss。

DocumentCache 以文档地址的 sha256 摘要为键，实现 openapi.DocumentCache；
Redis 不可用时编译器退回为每次运行重新拉取。
*/
package cache
