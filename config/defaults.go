// =============================================================================
// 📦 crmflow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/crmflow/crm"
	"github.com/BaSui01/crmflow/internal/database"
	"github.com/BaSui01/crmflow/llm"
	"github.com/BaSui01/crmflow/openapi"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		LLM:       DefaultLLMConfig(),
		CRM:       crm.DefaultConfig(),
		OpenAPI:   DefaultOpenAPIConfig(),
		Paths:     DefaultPathsConfig(),
		Cache:     DefaultCacheConfig(),
		History:   DefaultHistoryConfig(),
		Server:    DefaultServerConfig(),
		Metrics:   DefaultMetricsConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Log:       DefaultLogConfig(),
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	client := llm.DefaultClientConfig()
	return LLMConfig{
		Provider:      string(llm.KindGoogle),
		Model:         "gemini-2.0-flash",
		Timeout:       2 * time.Minute,
		Temperature:   float64(client.Temperature),
		TopP:          float64(client.TopP),
		HistoryWindow: client.HistoryWindow,
	}
}

// DefaultOpenAPIConfig 返回默认编译配置
func DefaultOpenAPIConfig() OpenAPIConfig {
	r := openapi.DefaultResolverConfig()
	return OpenAPIConfig{
		Timeout:  r.Timeout,
		MaxDepth: r.MaxDepth,
	}
}

// DefaultPathsConfig 返回默认文件位置
func DefaultPathsConfig() PathsConfig {
	return PathsConfig{
		DomainsDir:  "config/agent_domain",
		DomainsGlob: "**/*.json",
		ActionMap:   "config/actions.json",
	}
}

// DefaultCacheConfig 返回默认缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:   false,
		Addr:      "localhost:6379",
		TTL:       24 * time.Hour,
		KeyPrefix: "crmflow:openapi:",
	}
}

// DefaultHistoryConfig 返回默认历史存储配置
func DefaultHistoryConfig() HistoryConfig {
	pool := database.DefaultPoolConfig()
	pool.MaxOpenConns = 10
	pool.MaxIdleConns = 2
	return HistoryConfig{
		Enabled: false,
		Driver:  "sqlite",
		DSN:     "crmflow.db",
		Window:  llm.DefaultClientConfig().HistoryWindow,
		Pool:    pool,
	}
}

// DefaultServerConfig 返回默认 mock CRM 服务配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8000",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   false,
		Addr:      ":9091",
		Namespace: "crmflow",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "crmflow",
		SampleRate:   0.1,
	}
}
