package agent

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/crmflow/crm"
	"github.com/BaSui01/crmflow/internal/ctxkeys"
	"github.com/BaSui01/crmflow/internal/metrics"
	"github.com/BaSui01/crmflow/types"
)

const instrumentationName = "github.com/BaSui01/crmflow/agent"

// Pipeline drives one query through the router stage and then exactly one
// domain stage.
type Pipeline struct {
	router   *Router
	executor *Executor
	domains  Domains
	actions  crm.ActionMap

	metrics *metrics.Collector
	tracer  trace.Tracer
	queries metric.Int64Counter
	logger  *zap.Logger
}

// NewPipeline wires the two stages over a fixed domain registry and action
// map. collector may be nil.
func NewPipeline(router *Router, executor *Executor, domains Domains, actions crm.ActionMap, collector *metrics.Collector, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if domains == nil {
		domains = NewDomains(nil)
	}
	p := &Pipeline{
		router:   router,
		executor: executor,
		domains:  domains,
		actions:  actions,
		metrics:  collector,
		tracer:   otel.Tracer(instrumentationName),
		logger:   logger.With(zap.String("component", "pipeline")),
	}
	counter, err := otel.Meter(instrumentationName).Int64Counter("crmflow.query.total",
		metric.WithDescription("Total number of processed queries"),
		metric.WithUnit("{query}"))
	if err != nil {
		p.logger.Warn("otel query counter unavailable", zap.Error(err))
	} else {
		p.queries = counter
	}
	return p
}

// Domains returns the registry the pipeline routes over.
func (p *Pipeline) Domains() Domains { return p.domains }

// Run answers one query. The returned state always carries the chosen agent
// once routing ran; the error is non-nil only when a generation call in the
// domain stage failed.
func (p *Pipeline) Run(ctx context.Context, query string, history []types.Message) (RouterState, error) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.Int("query.length", len(query)),
		attribute.Int("history.length", len(history)),
	))
	defer span.End()

	logger := p.logger
	if id, ok := ctxkeys.ConversationID(ctx); ok {
		logger = logger.With(zap.String("conversation_id", id))
		span.SetAttributes(attribute.String("conversation.id", id))
	}
	if id, ok := ctxkeys.QueryID(ctx); ok {
		logger = logger.With(zap.String("query_id", id))
		span.SetAttributes(attribute.String("query.id", id))
	}

	state := NewRouterState(query, history, p.domains, p.actions)

	routeCtx, routeSpan := p.tracer.Start(ctx, "pipeline.router")
	state = p.router.Route(routeCtx, state)
	routeSpan.SetAttributes(
		attribute.String("agent", state.ChosenAgent()),
		attribute.Bool("fallback", state.Fallback()),
	)
	routeSpan.End()

	domainCtx, domainSpan := p.tracer.Start(ctx, "pipeline.domain",
		trace.WithAttributes(attribute.String("agent", state.ChosenAgent())))
	out, err := p.executor.Execute(domainCtx, state)
	if err != nil {
		domainSpan.RecordError(err)
		domainSpan.SetStatus(codes.Error, err.Error())
	}
	domainSpan.End()

	status := "ok"
	if err != nil {
		status = "error"
		span.SetStatus(codes.Error, err.Error())
		logger.Error("query failed", zap.String("agent", out.ChosenAgent()), zap.Error(err))
	} else {
		logger.Debug("query answered",
			zap.String("agent", out.ChosenAgent()),
			zap.Bool("fallback", out.Fallback()),
			zap.Duration("duration", time.Since(start)))
	}
	p.metrics.RecordPipeline(out.ChosenAgent(), time.Since(start))
	if p.queries != nil {
		p.queries.Add(ctx, 1, metric.WithAttributes(
			attribute.String("agent", out.ChosenAgent()),
			attribute.String("status", status),
		))
	}
	return out, err
}
