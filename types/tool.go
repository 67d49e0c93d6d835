package types

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ParameterSchema is the object schema describing a tool's arguments.
// Every name in Required is a key of Properties.
type ParameterSchema struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Required   []string       `json:"required"`
}

// NewParameterSchema returns an empty object schema.
func NewParameterSchema() ParameterSchema {
	return ParameterSchema{Type: "object", Properties: map[string]any{}, Required: []string{}}
}

// AddProperty sets or replaces a property.
func (p *ParameterSchema) AddProperty(name string, schema any) {
	if p.Properties == nil {
		p.Properties = map[string]any{}
	}
	p.Properties[name] = schema
}

// MarkRequired appends name to Required once. Names not present in
// Properties are ignored.
func (p *ParameterSchema) MarkRequired(name string) {
	if _, ok := p.Properties[name]; !ok {
		return
	}
	for _, r := range p.Required {
		if r == name {
			return
		}
	}
	p.Required = append(p.Required, name)
}

// PropertyNames returns the property names in sorted order.
func (p ParameterSchema) PropertyNames() []string {
	names := make([]string, 0, len(p.Properties))
	for name := range p.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p ParameterSchema) normalized() ParameterSchema {
	if p.Type == "" {
		p.Type = "object"
	}
	if p.Properties == nil {
		p.Properties = map[string]any{}
	}
	if p.Required == nil {
		p.Required = []string{}
	}
	return p
}

// Endpoint is the HTTP operation a tool is bound to.
type Endpoint struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

// RouterHint carries the action and domain a tool was classified under.
type RouterHint struct {
	Action string `json:"action"`
	Domain string `json:"domain"`
}

// ToolDescriptor is a self-contained tool compiled from one API operation.
// It is immutable after creation.
type ToolDescriptor struct {
	Name        string
	Description string
	Parameters  ParameterSchema
	Endpoint    Endpoint
	Domain      string
	Action      string
}

type functionEnvelope struct {
	Type     string       `json:"type"`
	Function functionBody `json:"function"`
}

type functionBody struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  ParameterSchema `json:"parameters"`
	XEndpoint   *Endpoint       `json:"x-endpoint,omitempty"`
	XRouter     *RouterHint     `json:"x-router,omitempty"`
}

// MarshalJSON renders the function-calling envelope
// {"type":"function","function":{...}} with the side-channel x-endpoint and
// x-router keys.
func (t ToolDescriptor) MarshalJSON() ([]byte, error) {
	body := functionBody{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  t.Parameters.normalized(),
	}
	if t.Endpoint.Method != "" || t.Endpoint.Path != "" {
		ep := t.Endpoint
		body.XEndpoint = &ep
	}
	if t.Action != "" || t.Domain != "" {
		body.XRouter = &RouterHint{Action: t.Action, Domain: t.Domain}
	}
	return json.Marshal(functionEnvelope{Type: "function", Function: body})
}

// UnmarshalJSON accepts the envelope form as well as a bare function object.
func (t *ToolDescriptor) UnmarshalJSON(data []byte) error {
	var env struct {
		Type     string        `json:"type"`
		Function *functionBody `json:"function"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode tool: %w", err)
	}
	body := env.Function
	if body == nil {
		body = &functionBody{}
		if err := json.Unmarshal(data, body); err != nil {
			return fmt.Errorf("decode tool: %w", err)
		}
	}
	if body.Name == "" {
		return fmt.Errorf("decode tool: missing function name")
	}
	*t = ToolDescriptor{
		Name:        body.Name,
		Description: body.Description,
		Parameters:  body.Parameters.normalized(),
	}
	if body.XEndpoint != nil {
		t.Endpoint = *body.XEndpoint
	}
	if body.XRouter != nil {
		t.Action = body.XRouter.Action
		t.Domain = body.XRouter.Domain
	}
	return nil
}

// ToolSchema is the provider-facing shape of a tool.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Schema converts the descriptor into a provider-facing ToolSchema.
func (t ToolDescriptor) Schema() ToolSchema {
	params, err := json.Marshal(t.Parameters.normalized())
	if err != nil {
		params = json.RawMessage(`{"type":"object","properties":{},"required":[]}`)
	}
	return ToolSchema{Name: t.Name, Description: t.Description, Parameters: params}
}
