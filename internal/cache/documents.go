package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DocumentCache 将远程 OpenAPI 文档按地址缓存在 Redis 中，
// 满足 openapi.DocumentCache，使多个进程共享同一次拉取结果。
type DocumentCache struct {
	m   *Manager
	ttl time.Duration
}

// Documents 返回基于当前 Manager 的文档缓存。ttl 为 0 时使用 DefaultTTL。
func (m *Manager) Documents(ttl time.Duration) *DocumentCache {
	return &DocumentCache{m: m, ttl: ttl}
}

// Get 返回 location 对应的原始文档；未命中时返回 ErrCacheMiss。
func (c *DocumentCache) Get(ctx context.Context, location string) ([]byte, error) {
	return c.m.Get(ctx, documentKey(location))
}

// Set 写入 location 对应的原始文档
func (c *DocumentCache) Set(ctx context.Context, location string, data []byte) error {
	return c.m.Set(ctx, documentKey(location), data, c.ttl)
}

// documentKey URL 可能很长，统一取摘要作为键
func documentKey(location string) string {
	sum := sha256.Sum256([]byte(location))
	return "doc:" + hex.EncodeToString(sum[:])
}
