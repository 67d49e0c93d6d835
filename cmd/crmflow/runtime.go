package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/crmflow/agent"
	"github.com/BaSui01/crmflow/config"
	"github.com/BaSui01/crmflow/crm"
	"github.com/BaSui01/crmflow/history"
	"github.com/BaSui01/crmflow/internal/cache"
	"github.com/BaSui01/crmflow/internal/metrics"
	"github.com/BaSui01/crmflow/internal/server"
	"github.com/BaSui01/crmflow/internal/telemetry"
	"github.com/BaSui01/crmflow/internal/toolindex"
	"github.com/BaSui01/crmflow/llm"
	"github.com/BaSui01/crmflow/llm/factory"
	"github.com/BaSui01/crmflow/openapi"
)

// =============================================================================
// 🧩 运行时依赖
// =============================================================================

// runtime 持有子命令共享的基础设施：指标、遥测、Redis 缓存
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger

	collector     *metrics.Collector
	metricsServer *server.Manager
	otel          *telemetry.Providers
	cache         *cache.Manager
}

// newRuntime 初始化可选基础设施。缓存与遥测不可用时仅告警。
func newRuntime(cfg *config.Config, logger *zap.Logger) (*runtime, error) {
	rt := &runtime{cfg: cfg, logger: logger}

	if cfg.Metrics.Enabled {
		rt.collector = metrics.NewCollector(cfg.Metrics.Namespace, logger)
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		serverCfg := server.DefaultConfig()
		serverCfg.Addr = cfg.Metrics.Addr
		rt.metricsServer = server.NewManager("metrics", mux, serverCfg, logger)
		if err := rt.metricsServer.Start(); err != nil {
			return nil, fmt.Errorf("failed to start metrics server: %w", err)
		}
		logger.Info("Metrics server started", zap.String("addr", rt.metricsServer.Addr()))
	}

	providers, err := telemetry.Init(cfg.Telemetry, Version, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	rt.otel = providers

	if cfg.Cache.Enabled {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.Addr = cfg.Cache.Addr
		cacheCfg.Password = cfg.Cache.Password
		cacheCfg.DB = cfg.Cache.DB
		cacheCfg.DefaultTTL = cfg.Cache.TTL
		if cfg.Cache.KeyPrefix != "" {
			cacheCfg.KeyPrefix = cfg.Cache.KeyPrefix
		}
		m, err := cache.NewManager(cacheCfg, rt.collector, logger)
		if err != nil {
			logger.Warn("redis cache unavailable, remote references are fetched every run", zap.Error(err))
		} else {
			rt.cache = m
		}
	}
	return rt, nil
}

// documentCache 返回远程引用文档缓存；未启用时返回 nil 接口
func (rt *runtime) documentCache() openapi.DocumentCache {
	if rt.cache == nil {
		return nil
	}
	return rt.cache.Documents(rt.cfg.Cache.TTL)
}

// compiler 按配置构建 OpenAPI 编译器
func (rt *runtime) compiler() *openapi.Compiler {
	return openapi.NewCompiler(rt.cfg.OpenAPI.ResolverConfig(), rt.documentCache(), rt.logger)
}

// llmClient 按配置构建生成客户端
func (rt *runtime) llmClient() (*llm.Client, error) {
	providerCfg, err := rt.cfg.LLM.ProviderConfig()
	if err != nil {
		return nil, err
	}
	return factory.NewClient(providerCfg, rt.cfg.LLM.ClientConfig(), rt.collector, rt.logger)
}

// pipeline 组装路由与领域执行两个阶段
func (rt *runtime) pipeline(client *llm.Client) (*agent.Pipeline, error) {
	paths := rt.cfg.Paths
	domains, err := agent.LoadDomains(paths.DomainsDir, paths.DomainsGlob, rt.logger)
	if err != nil {
		return nil, fmt.Errorf("load domains: %w", err)
	}
	actions, err := crm.LoadActionMap(paths.ActionMap)
	if err != nil {
		return nil, fmt.Errorf("load action map: %w", err)
	}
	crmClient, err := crm.NewClient(rt.cfg.CRM, rt.collector, rt.logger)
	if err != nil {
		return nil, err
	}

	execOpts := []agent.ExecutorOption{
		agent.WithExecutorConfig(agent.ExecutorConfig{HistoryWindow: rt.cfg.LLM.HistoryWindow}),
	}
	if rt.cfg.LLM.MaxTools > 0 {
		execOpts = append(execOpts, agent.WithToolSelector(toolindex.New(client, rt.cfg.LLM.MaxTools, rt.logger)))
	}

	router := agent.NewRouter(client, rt.collector, rt.logger)
	executor := agent.NewExecutor(client, crmClient, rt.logger, execOpts...)
	rt.logger.Info("pipeline ready",
		zap.Strings("domains", domains.Names()),
		zap.Int("actions", len(actions)),
		zap.Int("max_tools", rt.cfg.LLM.MaxTools),
	)
	return agent.NewPipeline(router, executor, domains, actions, rt.collector, rt.logger), nil
}

// historyStore 打开会话存储；未启用时返回 nil
func (rt *runtime) historyStore() (*history.Store, error) {
	h := rt.cfg.History
	if !h.Enabled {
		return nil, nil
	}
	return history.Open(h.Driver, h.DSN, h.Pool, rt.collector, rt.logger)
}

// Close 关闭所有已启动的基础设施
func (rt *runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.cache != nil {
		errs = append(errs, rt.cache.Close())
	}
	if rt.metricsServer != nil {
		errs = append(errs, rt.metricsServer.Shutdown(ctx))
	}
	errs = append(errs, rt.otel.Shutdown(ctx))
	return errors.Join(errs...)
}
