package openapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/crmflow/types"
)

const commonJSON = `{
  "components": {
    "schemas": {
      "Phone": {"$ref": "#/components/schemas/Digits"},
      "Digits": {"type": "string", "pattern": "^[0-9]+$"}
    }
  }
}`

func newCommonServer(t *testing.T, status int) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(commonJSON))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestResolver_Local(t *testing.T) {
	doc := mustParse(t, crmSpecJSON)
	r := newTestResolver()
	ctx := context.Background()

	tests := []struct {
		name string
		ref  string
		want any
	}{
		{"direct", "#/components/schemas/Id", map[string]any{"type": "string", "format": "uuid"}},
		{"transitive", "#/components/schemas/Alias", map[string]any{"type": "string", "format": "uuid"}},
		{"missing segment", "#/components/schemas/Nope", map[string]any{
			"type": "object", "description": "Unresolved path: /components/schemas/Nope",
		}},
		{"escaped space", "#/components/schemas/Create Lead/type", "object"},
		{"array index", "#/paths/~1leads/get/tags/0", "Leads"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, origin, err := r.Resolve(ctx, doc, tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Same(t, doc, origin)
		})
	}
}

func TestResolver_Idempotent(t *testing.T) {
	doc := mustParse(t, crmSpecJSON)
	r := newTestResolver()

	first, _, err := r.Resolve(context.Background(), doc, "#/components/schemas/Account")
	require.NoError(t, err)
	second, _, err := r.Resolve(context.Background(), doc, "#/components/schemas/Account")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolver_CyclicChain(t *testing.T) {
	doc := mustParse(t, crmSpecJSON)
	r := newTestResolver()

	_, _, err := r.Resolve(context.Background(), doc, "#/components/schemas/LoopA")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrCyclic))
}

func TestResolver_EmptyRef(t *testing.T) {
	doc := mustParse(t, crmSpecJSON)
	got, _, err := newTestResolver().Resolve(context.Background(), doc, "")
	require.NoError(t, err)
	assert.Equal(t, "Unresolved path: ", asMap(got)["description"])
}

func TestResolver_RemoteCachedPerURL(t *testing.T) {
	srv, hits := newCommonServer(t, http.StatusOK)
	doc := mustParse(t, crmSpecJSON)
	r := newTestResolver()
	ctx := context.Background()
	ref := srv.URL + "/common.json#/components/schemas/Phone"

	got, origin, err := r.Resolve(ctx, doc, ref)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"type": "string", "pattern": "^[0-9]+$"}, got)
	assert.Equal(t, srv.URL+"/common.json", origin.Source)

	again, _, err := r.Resolve(ctx, doc, ref)
	require.NoError(t, err)
	assert.Equal(t, got, again)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
	assert.Equal(t, 1, r.Fetches())
}

func TestResolver_RemoteConcurrentFetchOnce(t *testing.T) {
	srv, hits := newCommonServer(t, http.StatusOK)
	doc := mustParse(t, crmSpecJSON)
	r := newTestResolver()
	ref := srv.URL + "/common.json#/components/schemas/Digits"

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := r.Resolve(context.Background(), doc, ref)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestResolver_RemoteFailureSentinel(t *testing.T) {
	srv, hits := newCommonServer(t, http.StatusInternalServerError)
	doc := mustParse(t, crmSpecJSON)
	r := newTestResolver()
	location := srv.URL + "/common.json"

	for i := 0; i < 2; i++ {
		got, _, err := r.Resolve(context.Background(), doc, location+"#/components/schemas/Phone")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			"type":        "object",
			"description": "Unresolved remote reference: " + location,
		}, got)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

type memoryDocCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memoryDocCache) Get(_ context.Context, location string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.data[location]; ok {
		return d, nil
	}
	return nil, errors.New("miss")
}

func (m *memoryDocCache) Set(_ context.Context, location string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[location] = data
	return nil
}

func TestResolver_SharedDocumentCache(t *testing.T) {
	srv, hits := newCommonServer(t, http.StatusOK)
	doc := mustParse(t, crmSpecJSON)
	cache := &memoryDocCache{data: map[string][]byte{}}
	ref := srv.URL + "/common.json#/components/schemas/Phone"

	first := NewResolver(DefaultResolverConfig(), cache, zap.NewNop())
	_, _, err := first.Resolve(context.Background(), doc, ref)
	require.NoError(t, err)

	second := NewResolver(DefaultResolverConfig(), cache, zap.NewNop())
	got, _, err := second.Resolve(context.Background(), doc, ref)
	require.NoError(t, err)

	assert.Equal(t, "^[0-9]+$", asMap(got)["pattern"])
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
	assert.Equal(t, 0, second.Fetches())
}

func TestResolver_RelativeFileReference(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "common.yaml"), []byte(`
Email:
  type: string
  format: email
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.json"), []byte(`{
  "components": {"schemas": {"Contact": {"$ref": "common.yaml#/Email"}}}
}`), 0o600))

	doc, err := Load(filepath.Join(dir, "main.json"))
	require.NoError(t, err)

	got, _, err := newTestResolver().Resolve(context.Background(), doc, "#/components/schemas/Contact")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"type": "string", "format": "email"}, got)
}

func TestWalkPointer(t *testing.T) {
	root := map[string]any{"a/b": map[string]any{"c~d": []any{"x", "y"}}}

	got, ok := walkPointer(root, "/a~1b/c~0d/1")
	require.True(t, ok)
	assert.Equal(t, "y", got)

	_, ok = walkPointer(root, "/a~1b/c~0d/9")
	assert.False(t, ok)

	whole, ok := walkPointer(root, "")
	require.True(t, ok)
	assert.Equal(t, root, whole)
}
