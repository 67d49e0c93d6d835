// =============================================================================
// 📦 crmflow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("crmflow.yaml").
//	    WithEnvPrefix("CRMFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → ESPOCRM_* → CRMFLOW_* 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/crmflow/crm"
	"github.com/BaSui01/crmflow/internal/database"
	"github.com/BaSui01/crmflow/llm"
	"github.com/BaSui01/crmflow/llm/factory"
	"github.com/BaSui01/crmflow/openapi"
)

// DefaultEnvPrefix 环境变量前缀
const DefaultEnvPrefix = "CRMFLOW"

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 crmflow 的完整配置结构
type Config struct {
	// LLM 生成与嵌入后端
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// CRM 连接配置
	CRM crm.Config `yaml:"crm" env:"CRM"`

	// OpenAPI 编译配置
	OpenAPI OpenAPIConfig `yaml:"openapi" env:"OPENAPI"`

	// Paths 领域文件与动作表位置
	Paths PathsConfig `yaml:"paths" env:"PATHS"`

	// Cache 远程文档缓存
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// History 会话历史存储
	History HistoryConfig `yaml:"history" env:"HISTORY"`

	// Server mock CRM 服务
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Metrics Prometheus 指标
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	// Provider 变体: openai, google
	Provider string `yaml:"provider" env:"PROVIDER"`
	// 生成模型
	Model string `yaml:"model" env:"MODEL"`
	// 嵌入模型（可选）
	EmbedModel string `yaml:"embed_model" env:"EMBED_MODEL"`
	// API Key 列表，按调用轮换。为空时读取 OPENAI_API_KEY / GOOGLEAI_API_KEY[_n]
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// 基础 URL（可选）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 嵌入基础 URL（可选）
	EmbedBaseURL string `yaml:"embed_base_url" env:"EMBED_BASE_URL"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 温度参数
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// nucleus 采样
	TopP float64 `yaml:"top_p" env:"TOP_P"`
	// 最大 Token 数，0 表示由后端决定
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
	// 每次调用携带的历史条数
	HistoryWindow int `yaml:"history_window" env:"HISTORY_WINDOW"`
	// 领域工具数超过该值时按嵌入相似度预筛选，0 表示关闭
	MaxTools int `yaml:"max_tools" env:"MAX_TOOLS"`
}

// OpenAPIConfig OpenAPI 编译配置
type OpenAPIConfig struct {
	// 远程引用拉取超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 引用解析最大深度
	MaxDepth int `yaml:"max_depth" env:"MAX_DEPTH"`
	// 仅编译带这些 tag 的操作
	IncludeTags []string `yaml:"include_tags" env:"INCLUDE_TAGS"`
	// 跳过带这些 tag 的操作
	ExcludeTags []string `yaml:"exclude_tags" env:"EXCLUDE_TAGS"`
	// 工具名前缀
	Prefix string `yaml:"prefix" env:"PREFIX"`
}

// PathsConfig 文件位置
type PathsConfig struct {
	// 领域工具目录
	DomainsDir string `yaml:"domains_dir" env:"DOMAINS_DIR"`
	// 目录内的匹配模式（doublestar 语法）
	DomainsGlob string `yaml:"domains_glob" env:"DOMAINS_GLOB"`
	// 动作表文件
	ActionMap string `yaml:"action_map" env:"ACTION_MAP"`
}

// CacheConfig Redis 文档缓存配置
type CacheConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 缓存过期时间
	TTL time.Duration `yaml:"ttl" env:"TTL"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// HistoryConfig 会话历史存储配置
type HistoryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 驱动类型: sqlite, postgres, mysql
	Driver string `yaml:"driver" env:"DRIVER"`
	// 连接字符串
	DSN string `yaml:"dsn" env:"DSN"`
	// 每轮加载的历史条数
	Window int `yaml:"window" env:"WINDOW"`
	// 连接池
	Pool database.PoolConfig `yaml:"pool"`
}

// ServerConfig mock CRM 服务配置
type ServerConfig struct {
	// 监听地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// /metrics 监听地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 指标命名空间
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  DefaultEnvPrefix,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. ESPOCRM_* 兼容变量
	loadCRMEnv(&cfg.CRM)

	// 4. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 5. 未显式配置 key 时读取按序号编排的 provider 变量
	if len(cfg.LLM.APIKeys) == 0 {
		if kind, err := llm.ParseProviderKind(cfg.LLM.Provider); err == nil {
			cfg.LLM.APIKeys = llm.KeysFromEnv(llm.EnvKeyName(kind), nil)
		}
	}

	// 6. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadCRMEnv 读取 ESPOCRM_URL / ESPOCRM_USERNAME / ESPOCRM_PASSWORD
func loadCRMEnv(c *crm.Config) {
	if v := os.Getenv("ESPOCRM_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("ESPOCRM_USERNAME"); v != "" {
		c.Username = v
	}
	if v := os.Getenv("ESPOCRM_PASSWORD"); v != "" {
		c.Password = v
	}
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			var parts []string
			for _, p := range strings.Split(value, ",") {
				if p = strings.TrimSpace(p); p != "" {
					parts = append(parts, p)
				}
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if _, err := llm.ParseProviderKind(c.LLM.Provider); err != nil {
		errs = append(errs, fmt.Sprintf("unknown llm provider %q", c.LLM.Provider))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "temperature must be between 0 and 2")
	}
	if c.LLM.TopP <= 0 || c.LLM.TopP > 1 {
		errs = append(errs, "top_p must be in (0, 1]")
	}
	if c.LLM.HistoryWindow <= 0 {
		errs = append(errs, "history_window must be positive")
	}
	if c.LLM.MaxTools < 0 {
		errs = append(errs, "max_tools must not be negative")
	}
	if strings.TrimSpace(c.CRM.BaseURL) == "" {
		errs = append(errs, "crm base_url is required")
	}
	if c.OpenAPI.MaxDepth <= 0 {
		errs = append(errs, "openapi max_depth must be positive")
	}
	if c.Cache.Enabled && c.Cache.Addr == "" {
		errs = append(errs, "cache addr is required when cache is enabled")
	}
	if c.History.Enabled {
		switch c.History.Driver {
		case "sqlite", "postgres", "mysql":
		default:
			errs = append(errs, fmt.Sprintf("unsupported history driver %q", c.History.Driver))
		}
		if c.History.DSN == "" {
			errs = append(errs, "history dsn is required when history is enabled")
		}
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ProviderConfig 转换为 factory 使用的 provider 配置
func (c LLMConfig) ProviderConfig() (factory.ProviderConfig, error) {
	kind, err := llm.ParseProviderKind(c.Provider)
	if err != nil {
		return factory.ProviderConfig{}, err
	}
	return factory.ProviderConfig{
		Kind:         kind,
		APIKeys:      c.APIKeys,
		BaseURL:      c.BaseURL,
		Model:        c.Model,
		EmbedBaseURL: c.EmbedBaseURL,
		EmbedModel:   c.EmbedModel,
		Timeout:      c.Timeout,
	}, nil
}

// ClientConfig 转换为单次调用参数
func (c LLMConfig) ClientConfig() llm.ClientConfig {
	return llm.ClientConfig{
		Model:         c.Model,
		Temperature:   float32(c.Temperature),
		TopP:          float32(c.TopP),
		MaxTokens:     c.MaxTokens,
		HistoryWindow: c.HistoryWindow,
	}
}

// ResolverConfig 转换为引用解析配置
func (c OpenAPIConfig) ResolverConfig() openapi.ResolverConfig {
	return openapi.ResolverConfig{Timeout: c.Timeout, MaxDepth: c.MaxDepth}
}

// CompileOptions 转换为编译选项
func (c OpenAPIConfig) CompileOptions() openapi.CompileOptions {
	return openapi.CompileOptions{
		IncludeTags: c.IncludeTags,
		ExcludeTags: c.ExcludeTags,
		Prefix:      c.Prefix,
	}
}
