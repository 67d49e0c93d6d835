// Package factory 提供生成与嵌入后端的集中式工厂，
// 按 llm.ProviderKind 创建 Provider 并装配带 KeyRing 的 llm.Client，
// 打破 llm 包与各 provider 子包之间的循环依赖。
package factory
