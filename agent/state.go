package agent

import (
	"github.com/BaSui01/crmflow/crm"
	"github.com/BaSui01/crmflow/types"
)

// RouterState is the per-query record passed from the router stage to the
// domain stage. It is a value: With* methods return modified copies and
// leave the receiver untouched.
type RouterState struct {
	query       string
	history     []types.Message
	domains     Domains
	actions     crm.ActionMap
	chosenAgent string
	fallback    bool
	answer      string
}

// NewRouterState starts a query.
func NewRouterState(query string, history []types.Message, domains Domains, actions crm.ActionMap) RouterState {
	if domains == nil {
		domains = NewDomains(nil)
	}
	return RouterState{
		query:   query,
		history: append([]types.Message(nil), history...),
		domains: domains,
		actions: actions,
	}
}

func (s RouterState) Query() string { return s.query }

// History returns a copy of the conversation history.
func (s RouterState) History() []types.Message {
	return append([]types.Message(nil), s.history...)
}

func (s RouterState) Domains() Domains { return s.domains }

func (s RouterState) Actions() crm.ActionMap { return s.actions }

// ChosenAgent is empty until the router stage has run.
func (s RouterState) ChosenAgent() string { return s.chosenAgent }

// Fallback reports whether the router fell back to GeneralDomain.
func (s RouterState) Fallback() bool { return s.fallback }

func (s RouterState) Answer() string { return s.answer }

// WithChosenAgent records the router decision.
func (s RouterState) WithChosenAgent(name string, fallback bool) RouterState {
	s.chosenAgent = name
	s.fallback = fallback
	return s
}

// WithAnswer records the final answer.
func (s RouterState) WithAnswer(answer string) RouterState {
	s.answer = answer
	return s
}
