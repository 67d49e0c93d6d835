package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/crmflow/internal/metrics"
)

var serverMetricsSeq uint64

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
}

func localConfig() Config {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

// =============================================================================
// 🧪 Manager 生命周期
// =============================================================================

func TestManager_ServesOnAssignedPort(t *testing.T) {
	m := NewManager("mock_crm", okHandler(), localConfig(), zap.NewNop())
	assert.Equal(t, "127.0.0.1:0", m.Addr())

	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	assert.NotEqual(t, "127.0.0.1:0", m.Addr())

	resp, err := http.Get("http://" + m.Addr() + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ok", string(body))
}

func TestManager_StartTwice(t *testing.T) {
	m := NewManager("metrics", okHandler(), localConfig(), nil)
	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	err := m.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics server already started")
}

func TestManager_StartAfterShutdown(t *testing.T) {
	m := NewManager("mock_crm", okHandler(), localConfig(), nil)
	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))
	assert.ErrorIs(t, m.Start(), ErrServerClosed)
}

func TestManager_ListenFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := localConfig()
	cfg.Addr = busy.Addr().String()
	err = NewManager("mock_crm", okHandler(), cfg, nil).Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen on")
}

func TestManager_RunStopsOnContextCancel(t *testing.T) {
	m := NewManager("mock_crm", okHandler(), localConfig(), zap.NewNop())
	require.NoError(t, m.Start())
	addr := m.Addr()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	_, err := http.Get("http://" + addr + "/")
	assert.Error(t, err)
}

func TestNewManager_DefaultsShutdownTimeout(t *testing.T) {
	m := NewManager("x", okHandler(), Config{Addr: "127.0.0.1:0"}, nil)
	assert.Equal(t, DefaultConfig().ShutdownTimeout, m.config.ShutdownTimeout)
}

// =============================================================================
// 🧪 中间件
// =============================================================================

func TestChain_RecoveryAndRequestID(t *testing.T) {
	var seenID string
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = RequestIDFromContext(r.Context())
		panic("boom")
	}), Recovery(zap.NewNop()), RequestID(), RequestLogger(nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/leads", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEmpty(t, seenID)
	assert.Equal(t, seenID, rec.Header().Get("X-Request-ID"))
}

func TestMetricsMiddleware_RecordsRequests(t *testing.T) {
	ns := fmt.Sprintf("server_test_%d", atomic.AddUint64(&serverMetricsSeq, 1))
	collector := metrics.NewCollector(ns, zap.NewNop())
	h := Chain(okHandler(), Metrics(collector))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/leads/abc", nil))

	count, err := promtestutil.GatherAndCount(prometheus.DefaultGatherer, ns+"_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
