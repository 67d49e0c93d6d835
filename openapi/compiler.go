package openapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/crmflow/internal/tlsutil"
	"github.com/BaSui01/crmflow/types"
)

// methodOrder is the fixed per-path compilation order.
var methodOrder = []string{"get", "post", "put", "patch", "delete"}

// CompileOptions configures tool generation.
type CompileOptions struct {
	IncludeTags []string
	ExcludeTags []string
	Prefix      string
}

// Compiler loads API descriptions and turns every operation into a tool.
type Compiler struct {
	resolver *Resolver
	builder  *Builder

	httpClient *http.Client
	logger     *zap.Logger
	docs       map[string]*Document
	mu         sync.RWMutex
}

// NewCompiler wires a Resolver, Flattener, Extractor and Builder together.
// cache may be nil.
func NewCompiler(cfg ResolverConfig, cache DocumentCache, logger *zap.Logger) *Compiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	resolver := NewResolver(cfg, cache, logger)
	extractor := NewExtractor(resolver, NewFlattener(resolver, logger), logger)
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultResolverConfig().Timeout
	}
	return &Compiler{
		resolver:   resolver,
		builder:    NewBuilder(extractor, logger),
		httpClient: tlsutil.SecureHTTPClient(timeout),
		logger:     logger.With(zap.String("component", "openapi_compiler")),
		docs:       make(map[string]*Document),
	}
}

// LoadSpec loads a description from a URL or file path. Loaded documents are
// cached by source.
func (c *Compiler) LoadSpec(ctx context.Context, source string) (*Document, error) {
	c.mu.RLock()
	if doc, ok := c.docs[source]; ok {
		c.mu.RUnlock()
		return doc, nil
	}
	c.mu.RUnlock()

	var (
		doc *Document
		err error
	)
	if isRemote(source) {
		var data []byte
		data, err = c.fetchFromURL(ctx, source)
		if err != nil {
			return nil, types.NewSpecParseError(source, err)
		}
		doc, err = Parse(data, source)
	} else {
		doc, err = Load(source)
	}
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.docs[source] = doc
	c.mu.Unlock()

	c.logger.Info("loaded OpenAPI spec",
		zap.String("title", doc.Title()),
		zap.Int("paths", len(doc.Paths())),
		zap.Int("schemas", len(doc.SchemaNames())),
	)
	return doc, nil
}

func (c *Compiler) fetchFromURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Compile turns every operation of doc into a tool. Paths are visited in
// document order and methods in the order GET, POST, PUT, PATCH, DELETE.
func (c *Compiler) Compile(ctx context.Context, doc *Document, opts CompileOptions) ([]types.ToolDescriptor, error) {
	var tools []types.ToolDescriptor
	for _, path := range doc.Paths() {
		item := doc.PathItem(path)
		if ref, ok := refOf(item); ok {
			resolved, _, err := c.resolver.Resolve(ctx, doc, ref)
			if err != nil {
				return nil, fmt.Errorf("path %s: %w", path, err)
			}
			item = asMap(resolved)
		}
		for _, method := range methodOrder {
			spec := asMap(item[method])
			if spec == nil {
				continue
			}
			op := Operation{Path: path, Method: method, Spec: spec, PathItem: item}
			tags := op.Tags()
			if len(opts.IncludeTags) > 0 && !hasAnyTag(tags, opts.IncludeTags) {
				continue
			}
			if len(opts.ExcludeTags) > 0 && hasAnyTag(tags, opts.ExcludeTags) {
				continue
			}

			tool, err := c.builder.Build(ctx, doc, op)
			if err != nil {
				return nil, fmt.Errorf("%s %s: %w", strings.ToUpper(method), path, err)
			}
			if opts.Prefix != "" {
				tool.Name = opts.Prefix + tool.Name
			}
			c.logger.Debug("tool compiled",
				zap.String("name", tool.Name),
				zap.String("domain", tool.Domain),
				zap.String("action", tool.Action),
			)
			tools = append(tools, *tool)
		}
	}

	c.logger.Info("generated tools", zap.Int("count", len(tools)))
	return tools, nil
}

// CompileSource loads source and compiles it.
func (c *Compiler) CompileSource(ctx context.Context, source string, opts CompileOptions) ([]types.ToolDescriptor, error) {
	doc, err := c.LoadSpec(ctx, source)
	if err != nil {
		return nil, err
	}
	return c.Compile(ctx, doc, opts)
}

func hasAnyTag(tags, targets []string) bool {
	tagSet := make(map[string]bool, len(tags))
	for _, t := range tags {
		tagSet[t] = true
	}
	for _, t := range targets {
		if tagSet[t] {
			return true
		}
	}
	return false
}
