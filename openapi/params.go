package openapi

import (
	"context"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/BaSui01/crmflow/types"
)

// Operation is one method of a path item.
type Operation struct {
	Path     string
	Method   string
	Spec     map[string]any
	PathItem map[string]any
}

// ID returns the operationId, if declared.
func (o Operation) ID() string {
	return asString(o.Spec["operationId"])
}

// Tags returns the declared tags.
func (o Operation) Tags() []string {
	var tags []string
	for _, t := range asSlice(o.Spec["tags"]) {
		if s, ok := t.(string); ok {
			tags = append(tags, s)
		}
	}
	return tags
}

// Extractor merges an operation's parameters and JSON request body into one
// ParameterSchema.
type Extractor struct {
	resolver  *Resolver
	flattener *Flattener
	logger    *zap.Logger
}

// NewExtractor creates an Extractor.
func NewExtractor(resolver *Resolver, flattener *Flattener, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		resolver:  resolver,
		flattener: flattener,
		logger:    logger.With(zap.String("component", "param_extractor")),
	}
}

type paramDef struct {
	name string
	in   string
	def  map[string]any
	doc  *Document
}

// Extract builds the parameter schema of op. name is the tool name used to
// infer a body schema when the body carries no reference. Cyclic references
// degrade the affected property only; the returned error is reserved for
// context cancellation.
func (e *Extractor) Extract(ctx context.Context, doc *Document, op Operation, name string) (types.ParameterSchema, error) {
	params := types.NewParameterSchema()

	defs, err := e.mergeParameters(ctx, doc, op)
	if err != nil {
		return params, err
	}
	for _, p := range defs {
		prop := e.parameterProperty(ctx, p)
		params.AddProperty(p.name, prop)
		if required, _ := p.def["required"].(bool); required {
			params.MarkRequired(p.name)
		}
	}

	if err := e.addBody(ctx, doc, op, name, &params); err != nil {
		return params, err
	}
	if err := ctx.Err(); err != nil {
		return params, err
	}
	return params, nil
}

// mergeParameters returns path-level parameters followed by operation-level
// ones; an operation-level entry with the same name and location replaces
// the path-level entry in place.
func (e *Extractor) mergeParameters(ctx context.Context, doc *Document, op Operation) ([]paramDef, error) {
	var merged []paramDef
	index := make(map[string]int)

	add := func(list []any) error {
		for _, raw := range list {
			def, origin, err := e.resolveParameter(ctx, doc, raw)
			if err != nil {
				return err
			}
			name := asString(def["name"])
			if name == "" {
				continue
			}
			p := paramDef{name: name, in: asString(def["in"]), def: def, doc: origin}
			key := p.in + ":" + p.name
			if i, ok := index[key]; ok {
				merged[i] = p
				continue
			}
			index[key] = len(merged)
			merged = append(merged, p)
		}
		return nil
	}

	if err := add(asSlice(op.PathItem["parameters"])); err != nil {
		return nil, err
	}
	if err := add(asSlice(op.Spec["parameters"])); err != nil {
		return nil, err
	}
	return merged, nil
}

func (e *Extractor) resolveParameter(ctx context.Context, doc *Document, raw any) (map[string]any, *Document, error) {
	ref, ok := refOf(raw)
	if !ok {
		return asMap(raw), doc, nil
	}
	resolved, origin, err := e.resolver.Resolve(ctx, doc, ref)
	if err != nil {
		if isCycle(err) {
			e.logger.Warn("cyclic parameter reference skipped", zap.String("ref", ref))
			return nil, doc, nil
		}
		return nil, nil, err
	}
	return asMap(resolved), origin, nil
}

// parameterProperty picks the parameter schema from `schema`, else the first
// content media type, else a plain string, and carries the description.
func (e *Extractor) parameterProperty(ctx context.Context, p paramDef) map[string]any {
	var schema any = map[string]any{"type": "string"}
	if s, ok := p.def["schema"]; ok && s != nil {
		schema = s
	} else if content := asMap(p.def["content"]); len(content) > 0 {
		if s := asMap(content[firstMediaType(content)])["schema"]; s != nil {
			schema = s
		}
	}

	fromRef, _ := refOf(schema)
	flat, cycles := e.flattener.FlattenLenient(ctx, p.doc, schema)
	for _, c := range cycles {
		e.logger.Warn("parameter schema truncated", zap.String("param", p.name), zap.Error(c))
	}

	prop := copyMap(asMap(flat))
	if prop == nil {
		prop = map[string]any{"type": "string"}
	}
	if desc := asString(p.def["description"]); desc != "" {
		prop["description"] = desc
	} else if _, ok := prop["description"]; !ok {
		prop["description"] = ""
	}
	if fromRef != "" {
		prop["x-fromRef"] = fromRef
	}
	return prop
}

func (e *Extractor) addBody(ctx context.Context, doc *Document, op Operation, name string, params *types.ParameterSchema) error {
	rawBody, ok := op.Spec["requestBody"]
	if !ok || rawBody == nil {
		return nil
	}
	body, bodyDoc, err := e.resolveParameter(ctx, doc, rawBody)
	if err != nil {
		return err
	}
	if body == nil {
		return nil
	}
	bodyRequired, _ := body["required"].(bool)

	content := asMap(body["content"])
	var schema any
	if len(content) > 0 {
		mt := jsonMediaType(content)
		if mt == "" {
			// Only non-JSON payloads are declared.
			return nil
		}
		schema = asMap(content[mt])["schema"]
	}

	explicitRef, hasRef := refOf(schema)
	schemaDoc := bodyDoc
	if !hasRef {
		if inferred, ok := e.inferBodySchema(doc, name); ok {
			e.logger.Info("inferred request body schema",
				zap.String("operation", name),
				zap.String("schema", inferred),
			)
			schema = map[string]any{"$ref": schemaPointer(inferred)}
			explicitRef = schemaPointer(inferred)
			schemaDoc = doc
		}
	}
	if schema == nil {
		return nil
	}

	flat, cycles := e.flattener.FlattenLenient(ctx, schemaDoc, schema)
	for _, c := range cycles {
		e.logger.Warn("request body schema truncated", zap.String("operation", name), zap.Error(c))
	}
	flatMap := asMap(flat)

	if isObjectSchema(flatMap) {
		props := asMap(flatMap["properties"])
		inlined := make(map[string]bool, len(props))
		for _, key := range sortedKeys(props) {
			if _, exists := params.Properties[key]; exists {
				e.logger.Debug("body property shadowed by parameter", zap.String("property", key))
				continue
			}
			inlined[key] = true
			prop := copyMap(asMap(props[key]))
			if prop == nil {
				prop = map[string]any{}
			}
			if _, ok := prop["description"]; !ok {
				prop["description"] = ""
			}
			params.AddProperty(key, prop)
		}
		// 被同名参数遮蔽的字段不改变该参数的必填性
		for _, r := range asSlice(flatMap["required"]) {
			if s, ok := r.(string); ok && inlined[s] {
				params.MarkRequired(s)
			}
		}
		return nil
	}

	prop := copyMap(flatMap)
	if prop == nil {
		prop = map[string]any{"type": "object"}
	}
	if explicitRef != "" {
		prop["x-fromRef"] = explicitRef
	}
	params.AddProperty("body", prop)
	if bodyRequired {
		params.MarkRequired("body")
	}
	return nil
}

// inferBodySchema matches every word of the operation name against component
// schema names normalized to lower case with spaces; the first schema in
// document order wins.
func (e *Extractor) inferBodySchema(doc *Document, name string) (string, bool) {
	words := splitWords(name)
	if len(words) == 0 {
		return "", false
	}
	for _, schemaName := range doc.SchemaNames() {
		normalized := strings.ToLower(strings.ReplaceAll(schemaName, "_", " "))
		matched := true
		for _, w := range words {
			if !strings.Contains(normalized, w) {
				matched = false
				break
			}
		}
		if matched {
			return schemaName, true
		}
	}
	return "", false
}

// splitWords splits an identifier on '_', '-', spaces and lower-to-upper case
// boundaries, returning lower-case words.
func splitWords(s string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || unicode.IsSpace(r) || r == '.':
			flush()
		case unicode.IsUpper(r) && i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return words
}

func firstMediaType(content map[string]any) string {
	if _, ok := content["application/json"]; ok {
		return "application/json"
	}
	keys := sortedKeys(content)
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}

func jsonMediaType(content map[string]any) string {
	if _, ok := content["application/json"]; ok {
		return "application/json"
	}
	for _, k := range sortedKeys(content) {
		if strings.HasSuffix(k, "+json") || strings.HasPrefix(k, "application/json") {
			return k
		}
	}
	return ""
}

func isObjectSchema(m map[string]any) bool {
	if m == nil {
		return false
	}
	if t := asString(m["type"]); t != "" {
		return t == "object"
	}
	_, hasProps := m["properties"]
	return hasProps
}

func isCycle(err error) bool {
	return types.GetErrorCode(err) == types.ErrCyclicReference
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
