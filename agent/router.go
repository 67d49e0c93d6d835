package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/crmflow/crm"
	"github.com/BaSui01/crmflow/internal/metrics"
	"github.com/BaSui01/crmflow/llm"
	"github.com/BaSui01/crmflow/types"
)

// Generator is the generation-call contract the router and executor use.
// *llm.Client satisfies it.
type Generator interface {
	Invoke(ctx context.Context, user, system string, history []types.Message) (string, error)
	InvokeWithTools(ctx context.Context, messages []types.Message, tools []types.ToolDescriptor) (*llm.Reply, error)
}

// ActionRunner dispatches a bound CRM action. *crm.Client satisfies it.
type ActionRunner interface {
	Execute(ctx context.Context, action *crm.Action, args map[string]any) crm.Result
}

const routerSystemPrompt = "Bạn là một agent định tuyến hiệu quả."

// routerPrompt asks for exactly one name from the closed set.
func routerPrompt(query string, names []string) string {
	return fmt.Sprintf("Bạn là một agent định tuyến thông minh. Dựa vào yêu cầu của người dùng, "+
		"hãy chọn một domain phù hợp nhất để xử lý. "+
		"Bạn BẮT BUỘC phải chọn một trong các domain sau: %s. "+
		"Chỉ trả về TÊN của domain được chọn.\n"+
		"Yêu cầu của người dùng: '%s'", strings.Join(names, ", "), query)
}

// Router picks one domain per query.
type Router struct {
	gen     Generator
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewRouter creates a Router. collector may be nil.
func NewRouter(gen Generator, collector *metrics.Collector, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		gen:     gen,
		metrics: collector,
		logger:  logger.With(zap.String("component", "router")),
	}
}

// Route asks the model for a domain name and records it on the returned
// state. A generation error or a name outside the known set falls back to
// GeneralDomain; Route never fails.
func (r *Router) Route(ctx context.Context, state RouterState) RouterState {
	domains := state.Domains()
	names := domains.Names()

	raw, err := r.gen.Invoke(ctx, routerPrompt(state.Query(), names), routerSystemPrompt, nil)
	if err != nil {
		r.logger.Warn("router generation failed, falling back",
			zap.String("fallback", GeneralDomain),
			zap.String("code", string(types.ErrRoutingFallback)),
			zap.Error(err),
		)
		return r.decide(state, GeneralDomain, true)
	}

	chosen := strings.TrimSpace(raw)
	if !domains.Has(chosen) {
		r.logger.Warn("router returned unknown domain, falling back",
			zap.String("returned", chosen),
			zap.String("fallback", GeneralDomain),
			zap.String("code", string(types.ErrRoutingFallback)),
		)
		return r.decide(state, GeneralDomain, true)
	}

	r.logger.Info("domain chosen", zap.String("agent", chosen))
	return r.decide(state, chosen, false)
}

func (r *Router) decide(state RouterState, name string, fallback bool) RouterState {
	r.metrics.RecordRoute(name, fallback)
	return state.WithChosenAgent(name, fallback)
}
