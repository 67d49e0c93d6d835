package openapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/crmflow/internal/tlsutil"
	"github.com/BaSui01/crmflow/types"
)

// DocumentCache stores raw remote documents keyed by location so that
// separate processes share fetches. Get returns an error when the entry is
// absent.
type DocumentCache interface {
	Get(ctx context.Context, location string) ([]byte, error)
	Set(ctx context.Context, location string, data []byte) error
}

// ResolverConfig configures remote fetching and the indirection bound.
type ResolverConfig struct {
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
	MaxDepth int           `yaml:"max_depth" json:"max_depth"`
}

// DefaultResolverConfig returns the resolver defaults.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		Timeout:  30 * time.Second,
		MaxDepth: 64,
	}
}

// Resolver resolves "[location]#/json/pointer" references against a local
// document or a fetched remote one. Remote documents are fetched at most once
// per location for the lifetime of the Resolver, including failed fetches.
type Resolver struct {
	httpClient *http.Client
	cache      DocumentCache
	maxDepth   int
	logger     *zap.Logger

	mu     sync.RWMutex
	remote map[string]*Document // nil value records a failed fetch
	group  singleflight.Group

	fetches int
}

// NewResolver creates a Resolver. cache may be nil.
func NewResolver(cfg ResolverConfig, cache DocumentCache, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultResolverConfig().Timeout
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultResolverConfig().MaxDepth
	}
	return &Resolver{
		httpClient: tlsutil.SecureHTTPClient(cfg.Timeout),
		cache:      cache,
		maxDepth:   cfg.MaxDepth,
		logger:     logger.With(zap.String("component", "ref_resolver")),
		remote:     make(map[string]*Document),
	}
}

// unresolvedRemote is the placeholder returned when a remote document cannot
// be fetched.
func unresolvedRemote(location string) map[string]any {
	return map[string]any{"type": "object", "description": "Unresolved remote reference: " + location}
}

// unresolvedPath is the placeholder returned when a pointer segment is missing.
func unresolvedPath(pointer string) map[string]any {
	return map[string]any{"type": "object", "description": "Unresolved path: " + pointer}
}

// Resolve follows ref, and every reference it lands on, until a non-reference
// value is reached. It returns that value and the document it belongs to, so
// references nested inside a remote fragment resolve against that fragment's
// document. Fetch failures and missing pointer segments degrade to
// placeholder schemas; revisiting a reference in the same chain fails with a
// cyclic-reference error.
func (r *Resolver) Resolve(ctx context.Context, doc *Document, ref string) (any, *Document, error) {
	if strings.TrimSpace(ref) == "" {
		return unresolvedPath(ref), doc, nil
	}
	visited := make(map[string]struct{})
	current := doc
	for depth := 0; ; depth++ {
		key := r.Canonical(current, ref)
		if _, seen := visited[key]; seen || depth >= r.maxDepth {
			return nil, nil, types.NewCyclicReferenceError(ref)
		}
		visited[key] = struct{}{}

		value, origin, err := r.resolveOnce(ctx, current, ref)
		if err != nil {
			return nil, nil, err
		}
		next, ok := refOf(value)
		if !ok {
			return value, origin, nil
		}
		current, ref = origin, next
	}
}

// Canonical returns a location-qualified form of ref used as a cycle key.
func (r *Resolver) Canonical(doc *Document, ref string) string {
	location, pointer := splitRef(ref)
	if location == "" {
		return doc.Source + "#" + pointer
	}
	return absoluteLocation(doc.Source, location) + "#" + pointer
}

func (r *Resolver) resolveOnce(ctx context.Context, doc *Document, ref string) (any, *Document, error) {
	location, pointer := splitRef(ref)
	target := doc
	if location != "" {
		abs := absoluteLocation(doc.Source, location)
		remote, err := r.document(ctx, abs)
		if err != nil {
			return nil, nil, err
		}
		if remote == nil {
			return unresolvedRemote(location), doc, nil
		}
		target = remote
	}
	value, ok := walkPointer(target.Root, pointer)
	if !ok {
		return unresolvedPath(pointer), target, nil
	}
	return value, target, nil
}

// document returns the cached remote document for location, fetching it on
// first use. A nil document with nil error means the fetch failed earlier.
func (r *Resolver) document(ctx context.Context, location string) (*Document, error) {
	r.mu.RLock()
	doc, ok := r.remote[location]
	r.mu.RUnlock()
	if ok {
		return doc, nil
	}

	v, err, _ := r.group.Do(location, func() (any, error) {
		r.mu.RLock()
		doc, ok := r.remote[location]
		r.mu.RUnlock()
		if ok {
			return doc, nil
		}
		doc = r.load(ctx, location)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.mu.Lock()
		r.remote[location] = doc
		r.mu.Unlock()
		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Document), nil
}

func (r *Resolver) load(ctx context.Context, location string) *Document {
	if r.cache != nil {
		if data, err := r.cache.Get(ctx, location); err == nil {
			if doc, err := Parse(data, location); err == nil {
				r.logger.Debug("remote document served from cache", zap.String("location", location))
				return doc
			}
		}
	}

	r.logger.Info("fetching remote document", zap.String("location", location))
	data, err := r.fetch(ctx, location)
	if err != nil {
		r.logger.Warn("remote reference unresolved", zap.String("location", location), zap.Error(err))
		return nil
	}
	doc, err := Parse(data, location)
	if err != nil {
		r.logger.Warn("remote document unparseable", zap.String("location", location), zap.Error(err))
		return nil
	}
	if r.cache != nil {
		if err := r.cache.Set(ctx, location, data); err != nil {
			r.logger.Warn("remote document cache write failed", zap.String("location", location), zap.Error(err))
		}
	}
	return doc
}

func (r *Resolver) fetch(ctx context.Context, location string) ([]byte, error) {
	r.mu.Lock()
	r.fetches++
	r.mu.Unlock()

	if !isRemote(location) {
		return os.ReadFile(strings.TrimPrefix(location, "file://"))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Fetches reports how many network or disk fetches were attempted.
func (r *Resolver) Fetches() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fetches
}

// splitRef splits "location#pointer". A reference without '#' addresses the
// whole document at location.
func splitRef(ref string) (location, pointer string) {
	if i := strings.IndexByte(ref, '#'); i >= 0 {
		return ref[:i], ref[i+1:]
	}
	return ref, ""
}

// absoluteLocation resolves location relative to the source of the
// referencing document.
func absoluteLocation(base, location string) string {
	if isRemote(location) || filepath.IsAbs(location) {
		return location
	}
	if isRemote(base) {
		b, err := url.Parse(base)
		if err != nil {
			return location
		}
		rel, err := url.Parse(location)
		if err != nil {
			return location
		}
		return b.ResolveReference(rel).String()
	}
	if base == "" {
		return location
	}
	return filepath.Join(filepath.Dir(base), location)
}

// walkPointer descends root along an RFC 6901 pointer. Leading and trailing
// slashes are ignored, an empty pointer addresses root.
func walkPointer(root any, pointer string) (any, bool) {
	trimmed := strings.Trim(pointer, "/")
	if trimmed == "" {
		if pointer == "" {
			return root, true
		}
		return nil, false
	}
	current := root
	for _, raw := range strings.Split(trimmed, "/") {
		seg := strings.ReplaceAll(strings.ReplaceAll(raw, "~1", "/"), "~0", "~")
		if decoded, err := url.PathUnescape(seg); err == nil {
			seg = decoded
		}
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// refOf reports whether v is a reference object and returns its target.
func refOf(v any) (string, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	ref, ok := m["$ref"].(string)
	return ref, ok
}

// schemaPointer builds the local pointer to a component schema.
func schemaPointer(name string) string {
	escaped := strings.ReplaceAll(strings.ReplaceAll(name, "~", "~0"), "/", "~1")
	return "#/components/schemas/" + escaped
}
