// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。所有 Record 方法在 nil 接收者上是空操作，
// 组件可以在未启用指标时直接传 nil。
type Collector struct {
	// HTTP 指标（mock CRM 服务）
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// LLM 指标
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec

	// 路由与动作指标
	routeDecisions  *prometheus.CounterVec
	actionsTotal    *prometheus.CounterVec
	actionDuration  *prometheus.HistogramVec
	pipelineLatency *prometheus.HistogramVec

	// 工具编译指标
	toolsCompiled *prometheus.CounterVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
	dbQueryDuration   *prometheus.HistogramVec

	logger *zap.Logger
}

// 时延桶：生成调用与完整查询都是秒级
var (
	llmBuckets      = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60}
	pipelineBuckets = []float64{0.5, 1, 2, 5, 10, 30, 60, 120}
)

// NewCollector 在默认 Registry 上注册全部指标。同一 namespace 只能创建一次。
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := registrar{ns: namespace, f: promauto.With(prometheus.DefaultRegisterer)}

	c := &Collector{
		httpRequestsTotal:   r.counter("http_requests_total", "Total number of HTTP requests", "method", "path", "status"),
		httpRequestDuration: r.histogram("http_request_duration_seconds", "HTTP request duration in seconds", prometheus.DefBuckets, "method", "path"),

		llmRequestsTotal:   r.counter("llm_requests_total", "Total number of LLM requests", "provider", "model", "status"),
		llmRequestDuration: r.histogram("llm_request_duration_seconds", "LLM request duration in seconds", llmBuckets, "provider", "model"),
		// type: prompt / completion
		llmTokensUsed: r.counter("llm_tokens_used_total", "Total number of tokens used", "provider", "model", "type"),

		// outcome: routed / fallback
		routeDecisions:  r.counter("route_decisions_total", "Total number of router decisions", "agent", "outcome"),
		actionsTotal:    r.counter("crm_actions_total", "Total number of CRM action dispatches", "action", "status"),
		actionDuration:  r.histogram("crm_action_duration_seconds", "CRM action duration in seconds", prometheus.DefBuckets, "action"),
		pipelineLatency: r.histogram("pipeline_duration_seconds", "End-to-end query duration in seconds", pipelineBuckets, "agent"),
		toolsCompiled:   r.counter("tools_compiled_total", "Total number of tools compiled from API descriptions", "domain"),

		cacheHits:   r.counter("cache_hits_total", "Total number of cache hits", "cache_type"),
		cacheMisses: r.counter("cache_misses_total", "Total number of cache misses", "cache_type"),

		dbConnectionsOpen: r.gauge("db_connections_open", "Number of open database connections", "database"),
		dbConnectionsIdle: r.gauge("db_connections_idle", "Number of idle database connections", "database"),
		dbQueryDuration:   r.histogram("db_query_duration_seconds", "Database query duration in seconds", prometheus.DefBuckets, "database", "operation"),

		logger: logger.With(zap.String("component", "metrics")),
	}

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

type registrar struct {
	ns string
	f  promauto.Factory
}

func (r registrar) counter(name, help string, labels ...string) *prometheus.CounterVec {
	return r.f.NewCounterVec(prometheus.CounterOpts{Namespace: r.ns, Name: name, Help: help}, labels)
}

func (r registrar) gauge(name, help string, labels ...string) *prometheus.GaugeVec {
	return r.f.NewGaugeVec(prometheus.GaugeOpts{Namespace: r.ns, Name: name, Help: help}, labels)
}

func (r registrar) histogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return r.f.NewHistogramVec(prometheus.HistogramOpts{Namespace: r.ns, Name: name, Help: help, Buckets: buckets}, labels)
}

// Handler 返回默认 Registry 的 /metrics 处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🤖 LLM 指标记录
// =============================================================================

// RecordLLMRequest 记录 LLM 请求
func (c *Collector) RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int) {
	if c == nil {
		return
	}
	c.llmRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.llmTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.llmTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
}

// =============================================================================
// 🧭 路由与动作指标记录
// =============================================================================

// RecordRoute 记录路由决策，fallback 表示回退到默认 domain
func (c *Collector) RecordRoute(agent string, fallback bool) {
	if c == nil {
		return
	}
	outcome := "routed"
	if fallback {
		outcome = "fallback"
	}
	c.routeDecisions.WithLabelValues(agent, outcome).Inc()
}

// RecordAction 记录 CRM 动作执行
func (c *Collector) RecordAction(action, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.actionsTotal.WithLabelValues(action, status).Inc()
	c.actionDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordPipeline 记录一次完整查询耗时
func (c *Collector) RecordPipeline(agent string, duration time.Duration) {
	if c == nil {
		return
	}
	c.pipelineLatency.WithLabelValues(agent).Observe(duration.Seconds())
}

// RecordToolsCompiled 记录编译出的工具数量
func (c *Collector) RecordToolsCompiled(domain string, n int) {
	if c == nil {
		return
	}
	c.toolsCompiled.WithLabelValues(domain).Add(float64(n))
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	if c == nil {
		return
	}
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	if c == nil {
		return
	}
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	if c == nil {
		return
	}
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// RecordDBQuery 记录数据库查询
func (c *Collector) RecordDBQuery(database, operation string, duration time.Duration) {
	if c == nil {
		return
	}
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusClass 按百位归类，避免 status 标签基数膨胀
func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
