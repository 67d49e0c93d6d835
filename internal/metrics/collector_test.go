package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.llmRequestsTotal)
	assert.NotNil(t, collector.routeDecisions)
	assert.NotNil(t, collector.actionsTotal)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("GET", "/leads", 200, 100*time.Millisecond)
	collector.RecordHTTPRequest("GET", "/leads/{id}", 404, 5*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/leads", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/leads/{id}", "4xx")))
}

func TestStatusClass(t *testing.T) {
	for code, want := range map[int]string{200: "2xx", 201: "2xx", 302: "3xx", 422: "4xx", 503: "5xx", 0: "unknown", 700: "unknown"} {
		assert.Equal(t, want, statusClass(code), "code %d", code)
	}
}

func TestCollector_RecordLLMRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordLLMRequest("openai", "gpt-4o-mini", "success", 500*time.Millisecond, 100, 50)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.llmRequestsTotal.WithLabelValues("openai", "gpt-4o-mini", "success")))
	assert.Equal(t, 100.0, testutil.ToFloat64(collector.llmTokensUsed.WithLabelValues("openai", "gpt-4o-mini", "prompt")))
	assert.Equal(t, 50.0, testutil.ToFloat64(collector.llmTokensUsed.WithLabelValues("openai", "gpt-4o-mini", "completion")))
}

func TestCollector_RecordRoute(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordRoute("agent_Leads", false)
	collector.RecordRoute("agent_General", true)
	collector.RecordRoute("agent_General", true)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.routeDecisions.WithLabelValues("agent_Leads", "routed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.routeDecisions.WithLabelValues("agent_General", "fallback")))
}

func TestCollector_RecordActionAndPipeline(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordAction("create_lead", "ok", 20*time.Millisecond)
	collector.RecordAction("create_lead", "error", 20*time.Millisecond)
	collector.RecordPipeline("agent_Leads", time.Second)
	collector.RecordToolsCompiled("leads", 4)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.actionsTotal.WithLabelValues("create_lead", "ok")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.pipelineLatency))
	assert.Equal(t, 4.0, testutil.ToFloat64(collector.toolsCompiled.WithLabelValues("leads")))
}

func TestCollector_RecordCacheAndDatabase(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordCacheHit("openapi_remote")
	collector.RecordCacheMiss("openapi_remote")
	collector.RecordDBConnections("sqlite", 3, 1)
	collector.RecordDBQuery("sqlite", "append", 2*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.cacheHits.WithLabelValues("openapi_remote")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.cacheMisses.WithLabelValues("openapi_remote")))
	assert.Equal(t, 3.0, testutil.ToFloat64(collector.dbConnectionsOpen.WithLabelValues("sqlite")))
	assert.Greater(t, testutil.CollectAndCount(collector.dbQueryDuration), 0)
}

func TestCollector_NilIsNoop(t *testing.T) {
	var collector *Collector
	assert.NotPanics(t, func() {
		collector.RecordHTTPRequest("GET", "/", 200, time.Millisecond)
		collector.RecordLLMRequest("p", "m", "success", time.Millisecond, 1, 1)
		collector.RecordRoute("agent_General", true)
		collector.RecordAction("a", "ok", time.Millisecond)
		collector.RecordPipeline("agent_General", time.Millisecond)
		collector.RecordToolsCompiled("d", 1)
		collector.RecordCacheHit("c")
		collector.RecordCacheMiss("c")
		collector.RecordDBConnections("d", 1, 1)
		collector.RecordDBQuery("d", "q", time.Millisecond)
	})
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.RecordRoute("agent_Leads", false)
			collector.RecordLLMRequest("google", "gemini-1.5-flash", "success", time.Millisecond, 1, 1)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10.0, testutil.ToFloat64(collector.routeDecisions.WithLabelValues("agent_Leads", "routed")))
}

func TestHandler_ExposesCollectedMetrics(t *testing.T) {
	ns := nextTestNamespace()
	collector := NewCollector(ns, zap.NewNop())
	collector.RecordRoute("agent_Leads", false)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), ns+"_route_decisions_total"))
}
