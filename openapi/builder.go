package openapi

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/crmflow/types"
)

// Actions a tool can be classified under.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionGet    = "get"
	ActionList   = "list"
	ActionChat   = "chat"
)

// DefaultDomain is used when neither a tag nor a path segment names one.
const DefaultDomain = "general"

// Builder assembles one ToolDescriptor per API operation.
type Builder struct {
	extractor *Extractor
	logger    *zap.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(extractor *Extractor, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{extractor: extractor, logger: logger.With(zap.String("component", "tool_builder"))}
}

// Build compiles op into a tool descriptor.
func (b *Builder) Build(ctx context.Context, doc *Document, op Operation) (*types.ToolDescriptor, error) {
	action := ActionFor(op.Method, op.Path)
	domain := DomainFor(op.Path, op.Tags())

	name := op.ID()
	if name == "" {
		name = strings.ToLower(strings.ReplaceAll(action+"_"+domain, " ", "_"))
	}

	description := asString(op.Spec["summary"])
	if description == "" {
		description = asString(op.Spec["description"])
	}
	if description == "" {
		description = action + " " + domain
	}

	params, err := b.extractor.Extract(ctx, doc, op, name)
	if err != nil {
		return nil, err
	}

	return &types.ToolDescriptor{
		Name:        name,
		Description: description,
		Parameters:  params,
		Endpoint:    types.Endpoint{Method: strings.ToUpper(op.Method), Path: op.Path},
		Domain:      domain,
		Action:      action,
	}, nil
}

// ActionFor maps an HTTP method and path template to an action.
func ActionFor(method, path string) string {
	switch strings.ToUpper(method) {
	case "POST":
		return ActionCreate
	case "PUT", "PATCH":
		return ActionUpdate
	case "DELETE":
		return ActionDelete
	case "GET":
		if strings.Contains(path, "{") && strings.Contains(path, "}") {
			return ActionGet
		}
		return ActionList
	default:
		return ActionChat
	}
}

// DomainFor returns the first tag lower-cased, else the first path segment
// lower-cased, else DefaultDomain.
func DomainFor(path string, tags []string) string {
	if len(tags) > 0 && tags[0] != "" {
		return strings.ToLower(tags[0])
	}
	seg := strings.Trim(path, "/")
	if i := strings.IndexByte(seg, '/'); i >= 0 {
		seg = seg[:i]
	}
	if seg == "" {
		return DefaultDomain
	}
	return strings.ToLower(seg)
}
