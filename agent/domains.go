package agent

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/BaSui01/crmflow/tools"
	"github.com/BaSui01/crmflow/types"
)

// GeneralDomain is the fallback domain. It is always present.
const GeneralDomain = "agent_General"

// DomainPrefix prefixes a domain file's base name to form the domain name.
const DomainPrefix = "agent_"

// DefaultDomainGlob matches domain files below the domains directory.
const DefaultDomainGlob = "**/*.json"

// Domains maps domain names to their tools. It is read-only once built.
type Domains map[string][]types.ToolDescriptor

// NewDomains copies m and adds an empty general domain when missing.
func NewDomains(m map[string][]types.ToolDescriptor) Domains {
	d := make(Domains, len(m)+1)
	for name, list := range m {
		d[name] = append([]types.ToolDescriptor(nil), list...)
	}
	if _, ok := d[GeneralDomain]; !ok {
		d[GeneralDomain] = []types.ToolDescriptor{}
	}
	return d
}

// DomainName returns agent_<basename> for a domain file path.
func DomainName(file string) string {
	base := path.Base(filepath.ToSlash(file))
	return DomainPrefix + strings.TrimSuffix(base, path.Ext(base))
}

// LoadDomains reads every file under dir matching pattern (DefaultDomainGlob
// when empty). Files sharing a base name in different subdirectories are
// merged in path order.
func LoadDomains(dir, pattern string, logger *zap.Logger) (Domains, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pattern == "" {
		pattern = DefaultDomainGlob
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("domains dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("domains dir: %s is not a directory", dir)
	}

	matches, err := doublestar.Glob(os.DirFS(dir), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob domains %q: %w", pattern, err)
	}
	sort.Strings(matches)

	loaded := make(map[string][]types.ToolDescriptor, len(matches))
	for _, rel := range matches {
		list, err := tools.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("domain file %s: %w", rel, err)
		}
		name := DomainName(rel)
		loaded[name] = append(loaded[name], list...)
	}

	d := NewDomains(loaded)
	logger.Info("domains loaded",
		zap.String("dir", dir),
		zap.Int("files", len(matches)),
		zap.Int("domains", len(d)),
	)
	return d, nil
}

// Names returns the domain names sorted.
func (d Domains) Names() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is a known domain. The comparison is exact.
func (d Domains) Has(name string) bool {
	_, ok := d[name]
	return ok
}

// Tools returns the tools of a domain, or nil for an unknown one.
func (d Domains) Tools(name string) []types.ToolDescriptor {
	return d[name]
}

// Tool finds a tool by name within a domain.
func (d Domains) Tool(domain, name string) (types.ToolDescriptor, bool) {
	for _, t := range d[domain] {
		if t.Name == name {
			return t, true
		}
	}
	return types.ToolDescriptor{}, false
}
