package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

var ErrNoAvailableAPIKey = errors.New("no available API key")

// KeyRing 以轮询方式分发 API Key，可并发使用。
type KeyRing struct {
	mu   sync.Mutex
	keys []string
	idx  int
}

// NewKeyRing 创建 KeyRing，忽略空白 key。
func NewKeyRing(keys ...string) *KeyRing {
	r := &KeyRing{}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			r.keys = append(r.keys, k)
		}
	}
	return r
}

// Next 返回下一把 key
func (r *KeyRing) Next() (string, error) {
	if r == nil {
		return "", ErrNoAvailableAPIKey
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.keys) == 0 {
		return "", ErrNoAvailableAPIKey
	}
	k := r.keys[r.idx]
	r.idx = (r.idx + 1) % len(r.keys)
	return k, nil
}

// Len 返回 key 数量
func (r *KeyRing) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}

// KeysFromEnv 读取 NAME、NAME_1、NAME_2 ... 直到第一个缺失或为空的变量。
// lookup 为 nil 时使用 os.LookupEnv。
func KeysFromEnv(name string, lookup func(string) (string, bool)) []string {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var keys []string
	for i := 0; ; i++ {
		key := name
		if i > 0 {
			key = fmt.Sprintf("%s_%d", name, i)
		}
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return keys
		}
		keys = append(keys, strings.TrimSpace(v))
	}
}

// Attach 取下一把 key 写入 ctx，供 Provider 与嵌入后端读取
func (r *KeyRing) Attach(ctx context.Context) (context.Context, error) {
	key, err := r.Next()
	if err != nil {
		return ctx, err
	}
	return WithAPIKey(ctx, key), nil
}

type apiKeyCtxKey struct{}

// WithAPIKey 写入本次调用使用的 key。空白 key 不改变 ctx。
func WithAPIKey(ctx context.Context, key string) context.Context {
	key = strings.TrimSpace(key)
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, apiKeyCtxKey{}, key)
}

// APIKeyFromContext 返回 WithAPIKey 写入的 key
func APIKeyFromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(apiKeyCtxKey{}).(string)
	return key, ok
}

// EnvKeyName 返回 provider 变体对应的 API Key 环境变量名
func EnvKeyName(kind ProviderKind) string {
	if kind == KindGoogle {
		return "GOOGLEAI_API_KEY"
	}
	return "OPENAI_API_KEY"
}
