package openapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/crmflow/types"
)

// Document is a parsed API description. The tree is kept generic so vendor
// extensions survive; key order of paths and component schemas is recorded
// because compilation and body-schema inference are order-stable.
// A Document is never mutated after parsing.
type Document struct {
	Source string
	Root   map[string]any

	pathOrder   []string
	schemaOrder []string
}

// NewDocument wraps an in-memory tree. Without source bytes the key order is
// lexical.
func NewDocument(source string, root map[string]any) *Document {
	if root == nil {
		root = map[string]any{}
	}
	return &Document{
		Source:      source,
		Root:        root,
		pathOrder:   sortedKeys(asMap(root["paths"])),
		schemaOrder: sortedKeys(asMap(asMap(root["components"])["schemas"])),
	}
}

// Load reads and parses a JSON or YAML document from disk.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewSpecParseError(path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return Parse(data, abs)
}

// Parse decodes JSON or YAML bytes. JSON is detected by a leading '{'.
func Parse(data []byte, source string) (*Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, types.NewSpecParseError(source, fmt.Errorf("empty document"))
	}
	if trimmed[0] == '{' {
		return parseJSON(trimmed, source)
	}
	return parseYAML(trimmed, source)
}

func parseJSON(data []byte, source string) (*Document, error) {
	var root map[string]any
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, types.NewSpecParseError(source, err)
	}
	doc := &Document{Source: source, Root: root}
	doc.pathOrder = jsonKeyOrder(data, "paths")
	doc.schemaOrder = jsonKeyOrder(data, "components", "schemas")
	doc.fillOrder()
	return doc, nil
}

func parseYAML(data []byte, source string) (*Document, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, types.NewSpecParseError(source, err)
	}
	var raw any
	if err := node.Decode(&raw); err != nil {
		return nil, types.NewSpecParseError(source, err)
	}
	root, ok := normalizeYAML(raw).(map[string]any)
	if !ok {
		return nil, types.NewSpecParseError(source, fmt.Errorf("top level is not a mapping"))
	}
	doc := &Document{Source: source, Root: root}
	doc.pathOrder = yamlKeyOrder(&node, "paths")
	doc.schemaOrder = yamlKeyOrder(&node, "components", "schemas")
	doc.fillOrder()
	return doc, nil
}

// fillOrder guards against order scans that missed keys.
func (d *Document) fillOrder() {
	paths := asMap(d.Root["paths"])
	if len(d.pathOrder) != len(paths) {
		d.pathOrder = sortedKeys(paths)
	}
	schemas := d.Schemas()
	if len(d.schemaOrder) != len(schemas) {
		d.schemaOrder = sortedKeys(schemas)
	}
}

// Title returns info.title, if any.
func (d *Document) Title() string {
	s, _ := asMap(d.Root["info"])["title"].(string)
	return s
}

// Paths returns path templates in document order.
func (d *Document) Paths() []string {
	return append([]string(nil), d.pathOrder...)
}

// PathItem returns the path item object for a template.
func (d *Document) PathItem(path string) map[string]any {
	return asMap(asMap(d.Root["paths"])[path])
}

// Schemas returns components.schemas.
func (d *Document) Schemas() map[string]any {
	return asMap(asMap(d.Root["components"])["schemas"])
}

// SchemaNames returns component schema names in document order.
func (d *Document) SchemaNames() []string {
	return append([]string(nil), d.schemaOrder...)
}

// normalizeYAML converts map[any]any produced for non-string keys (for
// example numeric response codes) into map[string]any.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeYAML(val)
		}
		return out
	default:
		return v
	}
}

func yamlKeyOrder(root *yaml.Node, path ...string) []string {
	n := root
	if n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		n = n.Content[0]
	}
	for _, key := range path {
		n = yamlChild(n, key)
		if n == nil {
			return nil
		}
	}
	if n.Kind != yaml.MappingNode {
		return nil
	}
	keys := make([]string, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		keys = append(keys, n.Content[i].Value)
	}
	return keys
}

func yamlChild(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

// jsonKeyOrder streams tokens to recover the key order of the object found
// at path.
func jsonKeyOrder(data []byte, path ...string) []string {
	dec := json.NewDecoder(bytes.NewReader(data))
	if !expectDelim(dec, '{') {
		return nil
	}
	for _, key := range path {
		if !seekKey(dec, key) || !expectDelim(dec, '{') {
			return nil
		}
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil
		}
		k, ok := tok.(string)
		if !ok {
			return nil
		}
		keys = append(keys, k)
		if err := skipValue(dec); err != nil {
			return nil
		}
	}
	return keys
}

func expectDelim(dec *json.Decoder, d json.Delim) bool {
	tok, err := dec.Token()
	if err != nil {
		return false
	}
	got, ok := tok.(json.Delim)
	return ok && got == d
}

// seekKey advances within the current object until key is consumed.
func seekKey(dec *json.Decoder, key string) bool {
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return false
		}
		if k, ok := tok.(string); ok && k == key {
			return true
		}
		if err := skipValue(dec); err != nil {
			return false
		}
	}
	return false
}

func skipValue(dec *json.Decoder) error {
	var discard json.RawMessage
	return dec.Decode(&discard)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func isRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}
