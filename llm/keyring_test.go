package llm

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyRing_RoundRobin(t *testing.T) {
	r := NewKeyRing("a", "", " b ", "c")
	require.Equal(t, 3, r.Len())

	var got []string
	for i := 0; i < 7; i++ {
		k, err := r.Next()
		require.NoError(t, err)
		got = append(got, k)
	}
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c", "a"}, got)
}

func TestKeyRing_Empty(t *testing.T) {
	_, err := NewKeyRing().Next()
	assert.ErrorIs(t, err, ErrNoAvailableAPIKey)

	var nilRing *KeyRing
	_, err = nilRing.Next()
	assert.ErrorIs(t, err, ErrNoAvailableAPIKey)
	assert.Zero(t, nilRing.Len())
}

func TestKeyRing_Attach(t *testing.T) {
	r := NewKeyRing("k1", "k2")
	ctx, err := r.Attach(context.Background())
	require.NoError(t, err)
	key, ok := APIKeyFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "k1", key)

	base := context.Background()
	ctx, err = NewKeyRing().Attach(base)
	assert.ErrorIs(t, err, ErrNoAvailableAPIKey)
	assert.Equal(t, base, ctx)
}

func TestKeyRing_ConcurrentNextIsBalanced(t *testing.T) {
	r := NewKeyRing("a", "b")
	var mu sync.Mutex
	counts := map[string]int{}
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k, _ := r.Next()
			mu.Lock()
			counts[k]++
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counts["a"])
	assert.Equal(t, 50, counts["b"])
}

func TestKeysFromEnv(t *testing.T) {
	env := map[string]string{
		"GOOGLEAI_API_KEY":   "k0",
		"GOOGLEAI_API_KEY_1": " k1 ",
		"GOOGLEAI_API_KEY_2": "k2",
		"GOOGLEAI_API_KEY_4": "unreachable",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	assert.Equal(t, []string{"k0", "k1", "k2"}, KeysFromEnv("GOOGLEAI_API_KEY", lookup))
	assert.Empty(t, KeysFromEnv("OPENAI_API_KEY", lookup))
}

func TestKeysFromEnv_OSEnvironment(t *testing.T) {
	t.Setenv("CRMFLOW_TEST_KEY", "x")
	t.Setenv("CRMFLOW_TEST_KEY_1", "y")
	assert.Equal(t, []string{"x", "y"}, KeysFromEnv("CRMFLOW_TEST_KEY", nil))
}

func TestEnvKeyName(t *testing.T) {
	assert.Equal(t, "GOOGLEAI_API_KEY", EnvKeyName(KindGoogle))
	assert.Equal(t, "OPENAI_API_KEY", EnvKeyName(KindOpenAI))
}
