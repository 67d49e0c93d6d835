package tools

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/crmflow/types"
)

// Registry stores compiled tools keyed by name. Registration order is kept;
// re-registering a name replaces the entry in place.
type Registry struct {
	tools  []types.ToolDescriptor
	index  map[string]int
	logger *zap.Logger
	mu     sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		index:  make(map[string]int),
		logger: logger.With(zap.String("component", "tool_registry")),
	}
}

// Register adds tool. An existing tool with the same name is overridden and a
// warning is logged.
func (r *Registry) Register(tool types.ToolDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i, ok := r.index[tool.Name]; ok {
		r.logger.Warn("tool already registered, overriding", zap.String("name", tool.Name))
		r.tools[i] = tool
		return
	}
	r.index[tool.Name] = len(r.tools)
	r.tools = append(r.tools, tool)
	r.logger.Debug("registered tool", zap.String("name", tool.Name), zap.String("domain", tool.Domain))
}

// RegisterAll registers every tool in order.
func (r *Registry) RegisterAll(tools []types.ToolDescriptor) {
	for _, t := range tools {
		r.Register(t)
	}
}

// All returns the registered tools in registration order.
func (r *Registry) All() []types.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]types.ToolDescriptor(nil), r.tools...)
}

// Get looks a tool up by name.
func (r *Registry) Get(name string) (types.ToolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[name]
	if !ok {
		return types.ToolDescriptor{}, false
	}
	return r.tools[i], true
}

// Count returns the number of distinct tool names.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// GroupByDomain partitions tools by their domain, keeping registration order
// within each group.
func (r *Registry) GroupByDomain() map[string][]types.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	groups := make(map[string][]types.ToolDescriptor)
	for _, t := range r.tools {
		groups[t.Domain] = append(groups[t.Domain], t)
	}
	return groups
}

// Domains returns the sorted domain names present in the registry.
func (r *Registry) Domains() []string {
	groups := r.GroupByDomain()
	names := make([]string, 0, len(groups))
	for d := range groups {
		names = append(names, d)
	}
	sort.Strings(names)
	return names
}
