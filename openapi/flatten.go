package openapi

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/BaSui01/crmflow/types"
)

// Flattener inlines every reference of a schema subtree, producing a
// self-contained tree. It never mutates its input and may be used
// concurrently.
type Flattener struct {
	resolver *Resolver
	logger   *zap.Logger
}

// NewFlattener creates a Flattener backed by resolver.
func NewFlattener(resolver *Resolver, logger *zap.Logger) *Flattener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flattener{resolver: resolver, logger: logger.With(zap.String("component", "schema_flattener"))}
}

// Flatten replaces every {"$ref": ...} node of schema with its flattened
// target. Sibling keys of a reference node are dropped. A reference that
// re-enters its own expansion fails with a cyclic-reference error.
func (f *Flattener) Flatten(ctx context.Context, doc *Document, schema any) (any, error) {
	return f.flatten(ctx, doc, schema, nil, nil)
}

// FlattenLenient behaves like Flatten, but a cyclic reference only replaces
// the offending node with a placeholder. The collected cycle errors are
// returned alongside the tree.
func (f *Flattener) FlattenLenient(ctx context.Context, doc *Document, schema any) (any, []error) {
	var cycles []error
	out, err := f.flatten(ctx, doc, schema, nil, &cycles)
	if err != nil {
		cycles = append(cycles, err)
		return cyclicPlaceholder(""), cycles
	}
	return out, cycles
}

func cyclicPlaceholder(ref string) map[string]any {
	return map[string]any{"type": "object", "description": "Cyclic reference: " + ref}
}

func (f *Flattener) flatten(ctx context.Context, doc *Document, node any, stack []string, cycles *[]error) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch n := node.(type) {
	case map[string]any:
		if ref, ok := n["$ref"].(string); ok {
			return f.expand(ctx, doc, ref, stack, cycles)
		}
		out := make(map[string]any, len(n))
		for k, v := range n {
			fv, err := f.flatten(ctx, doc, v, stack, cycles)
			if err != nil {
				return nil, err
			}
			out[k] = fv
		}
		return out, nil
	case []any:
		out := make([]any, len(n))
		for i, v := range n {
			fv, err := f.flatten(ctx, doc, v, stack, cycles)
			if err != nil {
				return nil, err
			}
			out[i] = fv
		}
		return out, nil
	default:
		return node, nil
	}
}

func (f *Flattener) expand(ctx context.Context, doc *Document, ref string, stack []string, cycles *[]error) (any, error) {
	key := f.resolver.Canonical(doc, ref)
	for _, open := range stack {
		if open == key {
			return f.cycle(ref, types.NewCyclicReferenceError(ref), cycles)
		}
	}
	resolved, origin, err := f.resolver.Resolve(ctx, doc, ref)
	if err != nil {
		if errors.Is(err, types.ErrCyclic) {
			return f.cycle(ref, err, cycles)
		}
		return nil, err
	}
	next := make([]string, len(stack), len(stack)+1)
	copy(next, stack)
	return f.flatten(ctx, origin, resolved, append(next, key), cycles)
}

func (f *Flattener) cycle(ref string, err error, cycles *[]error) (any, error) {
	if cycles == nil {
		return nil, err
	}
	f.logger.Warn("cyclic reference replaced by placeholder", zap.String("ref", ref))
	*cycles = append(*cycles, err)
	return cyclicPlaceholder(ref), nil
}
