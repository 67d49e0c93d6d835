// Package retry 提供带指数退避的泛型重试循环，离线校验工具（harness）用它
// 反复发起生成调用直到回复通过校验。
package retry
