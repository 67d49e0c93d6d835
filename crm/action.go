package crm

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Action binds an action identifier to a concrete HTTP method and path
// template.
type Action struct {
	ID          string         `json:"action_id"`
	Method      string         `json:"method"`
	Path        string         `json:"path"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ActionMap maps normalized action ids to actions. It is read-only after
// loading.
type ActionMap map[string]*Action

// NormalizeActionID replaces dots so ids line up with tool names.
func NormalizeActionID(id string) string {
	return strings.ReplaceAll(id, ".", "_")
}

// ParseActionMap decodes a JSON array of actions keyed by action_id. Later
// duplicates replace earlier ones.
func ParseActionMap(data []byte) (ActionMap, error) {
	var list []*Action
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode action map: %w", err)
	}
	m := make(ActionMap, len(list))
	for i, a := range list {
		if a == nil || strings.TrimSpace(a.ID) == "" {
			return nil, fmt.Errorf("decode action map: entry %d has no action_id", i)
		}
		a.Method = strings.ToUpper(strings.TrimSpace(a.Method))
		if a.Method == "" {
			a.Method = "GET"
		}
		if a.Path == "" {
			a.Path = "/"
		}
		m[NormalizeActionID(a.ID)] = a
	}
	return m, nil
}

// LoadActionMap reads and parses an action map file.
func LoadActionMap(path string) (ActionMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read action map: %w", err)
	}
	return ParseActionMap(data)
}

// Lookup returns the action bound to a tool name, or nil.
func (m ActionMap) Lookup(name string) *Action {
	if m == nil {
		return nil
	}
	return m[NormalizeActionID(name)]
}

// IDs returns the normalized ids in sorted order.
func (m ActionMap) IDs() []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
