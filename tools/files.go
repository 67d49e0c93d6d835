package tools

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/BaSui01/crmflow/types"
)

// ReadFile decodes a JSON array of tool descriptors.
func ReadFile(path string) ([]types.ToolDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tools file: %w", err)
	}
	var tools []types.ToolDescriptor
	if err := json.Unmarshal(data, &tools); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return tools, nil
}

// WriteFile encodes tools as an indented JSON array.
func WriteFile(path string, tools []types.ToolDescriptor) error {
	if tools == nil {
		tools = []types.ToolDescriptor{}
	}
	data, err := json.MarshalIndent(tools, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// DomainFileName maps a domain to the file its tools are written to, e.g.
// "leads" -> "Leads.json".
func DomainFileName(domain string) string {
	name := strings.ReplaceAll(strings.TrimSpace(domain), " ", "_")
	name = strings.NewReplacer("/", "_", "{", "", "}", "").Replace(name)
	if name == "" {
		name = "General"
	}
	r, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToUpper(r)) + name[size:] + ".json"
}

// WriteDomainFiles writes one file per domain into dir and returns the written
// paths in sorted domain order.
func WriteDomainFiles(dir string, r *Registry) ([]string, error) {
	groups := r.GroupByDomain()
	var written []string
	for _, domain := range r.Domains() {
		path := filepath.Join(dir, DomainFileName(domain))
		if err := WriteFile(path, groups[domain]); err != nil {
			return written, fmt.Errorf("write domain %s: %w", domain, err)
		}
		written = append(written, path)
	}
	return written, nil
}
