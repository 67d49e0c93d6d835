package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/crmflow/crm"
	"github.com/BaSui01/crmflow/llm"
	"github.com/BaSui01/crmflow/types"
)

// ToolSelector narrows a large domain to the tools most relevant to a query.
type ToolSelector interface {
	Select(ctx context.Context, query string, tools []types.ToolDescriptor) ([]types.ToolDescriptor, error)
}

// ExecutorConfig tunes the domain stage.
type ExecutorConfig struct {
	// HistoryWindow is the number of past turns sent with tool calls.
	HistoryWindow int
}

// DefaultExecutorConfig returns the executor defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{HistoryWindow: llm.DefaultClientConfig().HistoryWindow}
}

// Executor runs the chosen domain: it lets the model pick tools, gates on
// required arguments, dispatches CRM actions and summarizes the outcome.
type Executor struct {
	gen      Generator
	actions  ActionRunner
	selector ToolSelector
	cfg      ExecutorConfig
	logger   *zap.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithToolSelector shortlists domain tools before the tool call.
func WithToolSelector(s ToolSelector) ExecutorOption {
	return func(e *Executor) { e.selector = s }
}

// WithExecutorConfig overrides the defaults.
func WithExecutorConfig(cfg ExecutorConfig) ExecutorOption {
	return func(e *Executor) { e.cfg = cfg }
}

// NewExecutor creates an Executor.
func NewExecutor(gen Generator, actions ActionRunner, logger *zap.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		gen:     gen,
		actions: actions,
		cfg:     DefaultExecutorConfig(),
		logger:  logger.With(zap.String("component", "domain_executor")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute produces the answer for the routed domain. Only generation
// failures are returned as errors; missing arguments and failed actions are
// turned into answers.
func (e *Executor) Execute(ctx context.Context, state RouterState) (RouterState, error) {
	domain := state.ChosenAgent()
	if domain == "" {
		domain = GeneralDomain
	}
	query := state.Query()
	domainTools := state.Domains().Tools(domain)

	if len(domainTools) == 0 {
		answer, err := e.gen.Invoke(ctx, query, "", state.History())
		if err != nil {
			return state, fmt.Errorf("domain %s: %w", domain, err)
		}
		return state.WithAnswer(answer), nil
	}

	offered := e.shortlist(ctx, query, domainTools)
	messages := llm.BuildMessages(query, toolSystemPrompt, state.History(), e.cfg.HistoryWindow)
	reply, err := e.gen.InvokeWithTools(ctx, messages, offered)
	if err != nil {
		return state, fmt.Errorf("domain %s: %w", domain, err)
	}

	if len(reply.ToolCalls) == 0 {
		if reply.Content == "" {
			return state.WithAnswer(FallbackAnswer), nil
		}
		return state.WithAnswer(reply.Content), nil
	}

	// 先校验全部调用的必填参数，任何缺失都不发起 HTTP 请求。
	// 不属于当前领域的调用一律按动作不存在处理。
	bound := make([]*crm.Action, len(reply.ToolCalls))
	for i, call := range reply.ToolCalls {
		tool, ok := state.Domains().Tool(domain, call.Name)
		if !ok {
			e.logger.Warn("tool call outside routed domain",
				zap.String("tool", call.Name),
				zap.String("domain", domain),
			)
			return e.explainFailure(ctx, state, call.Name, crm.Result{OK: false, Error: actionNotFound})
		}
		missing := MissingRequired(tool.Parameters.Required, call.Args())
		if len(missing) > 0 {
			e.logger.Info("tool call missing required arguments",
				zap.String("tool", call.Name),
				zap.Strings("missing", missing),
				zap.Error(types.NewMissingParameterError(call.Name, missing)),
			)
			answer, err := e.gen.Invoke(ctx, clarificationPrompt(call.Name, missing), clarificationSystemPrompt, nil)
			if err != nil {
				return state, fmt.Errorf("clarification: %w", err)
			}
			return state.WithAnswer(answer), nil
		}
		bound[i] = bindAction(state.Actions(), tool)
	}

	var last any = map[string]any{}
	for i, call := range reply.ToolCalls {
		res := e.actions.Execute(ctx, bound[i], call.Args())
		if !res.OK {
			return e.explainFailure(ctx, state, call.Name, res)
		}
		last = res.Result
	}

	prompt := singularSummaryPrompt(query, last)
	if lr, ok := AsListResult(last); ok {
		prompt = listSummaryPrompt(query, lr)
	}
	answer, err := e.gen.Invoke(ctx, prompt, summarySystemPrompt, nil)
	if err != nil {
		return state, fmt.Errorf("summary: %w", err)
	}
	return state.WithAnswer(answer), nil
}

// explainFailure turns a failed action into a friendly answer.
func (e *Executor) explainFailure(ctx context.Context, state RouterState, tool string, res crm.Result) (RouterState, error) {
	errMsg := res.Error
	if errMsg == "" {
		errMsg = "Lỗi không xác định."
	}
	e.logger.Warn("crm action failed",
		zap.String("tool", tool),
		zap.Error(types.NewError(types.ErrActionExecution, errMsg).WithHTTPStatus(res.StatusCode)),
	)
	answer, err := e.gen.Invoke(ctx, errorPrompt(errMsg), errorSystemPrompt, nil)
	if err != nil {
		return state, fmt.Errorf("error explanation: %w", err)
	}
	return state.WithAnswer(answer), nil
}

const actionNotFound = "Action not found"

// bindAction prefers the action map and falls back to the endpoint compiled
// into the tool. nil means the tool has no binding.
func bindAction(actions crm.ActionMap, tool types.ToolDescriptor) *crm.Action {
	if a := actions.Lookup(tool.Name); a != nil {
		return a
	}
	if tool.Endpoint.Path == "" {
		return nil
	}
	method := strings.ToUpper(strings.TrimSpace(tool.Endpoint.Method))
	if method == "" {
		method = "GET"
	}
	return &crm.Action{ID: tool.Name, Method: method, Path: tool.Endpoint.Path, Description: tool.Description}
}

// shortlist applies the selector, keeping the full list on failure.
func (e *Executor) shortlist(ctx context.Context, query string, all []types.ToolDescriptor) []types.ToolDescriptor {
	if e.selector == nil {
		return all
	}
	picked, err := e.selector.Select(ctx, query, all)
	if err != nil {
		e.logger.Warn("tool shortlist failed, offering all tools", zap.Error(err))
		return all
	}
	if len(picked) == 0 {
		return all
	}
	return picked
}
