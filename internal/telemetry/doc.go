// Package telemetry 安装 OpenTelemetry 的全局 TracerProvider 与 MeterProvider，
// 经 OTLP gRPC 导出查询流水线的 span 与 crmflow.query.total 计数。
// 未启用时不创建导出器，全局 provider 保持 noop。
package telemetry
