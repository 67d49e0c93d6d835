package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/crmflow/internal/metrics"
	"github.com/BaSui01/crmflow/internal/tlsutil"
	"github.com/BaSui01/crmflow/types"
)

// =============================================================================
// 🔌 CRM HTTP 客户端
// =============================================================================

// DefaultTimeout CRM 请求的固定超时
const DefaultTimeout = 25 * time.Second

// maxErrorBody 错误信息中保留的响应体长度上限
const maxErrorBody = 512

// Config CRM 连接配置
type Config struct {
	BaseURL            string        `yaml:"base_url" json:"base_url" env:"URL"`
	Username           string        `yaml:"username" json:"username" env:"USERNAME"`
	Password           string        `yaml:"password" json:"-" env:"PASSWORD"`
	Timeout            time.Duration `yaml:"timeout" json:"timeout" env:"TIMEOUT"`
	RateLimitRPS       float64       `yaml:"rate_limit_rps" json:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst     int           `yaml:"rate_limit_burst" json:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	CAFile             string        `yaml:"ca_file" json:"ca_file" env:"CA_FILE"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify" json:"insecure_skip_verify" env:"INSECURE_SKIP_VERIFY"`
}

// DefaultConfig 返回默认配置，指向本地 mock CRM
func DefaultConfig() Config {
	return Config{
		BaseURL:        "http://localhost:8000",
		Timeout:        DefaultTimeout,
		RateLimitRPS:   10,
		RateLimitBurst: 5,
	}
}

// Result 动作执行结果。OK 为 false 时 Error 给出原因。
type Result struct {
	OK         bool   `json:"ok"`
	Result     any    `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
	StatusCode int    `json:"-"`
}

// Client 执行绑定到 HTTP 端点的 CRM 动作，可并发使用
type Client struct {
	baseURL    *url.URL
	username   string
	password   string
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *metrics.Collector
	logger     *zap.Logger
}

// NewClient 创建 CRM 客户端。collector 可以为 nil。
func NewClient(cfg Config, collector *metrics.Collector, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "invalid crm base url "+cfg.BaseURL).WithCause(err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	httpClient, err := tlsutil.NewHTTPClient(tlsutil.ClientOptions{
		Timeout:            cfg.Timeout,
		CAFile:             cfg.CAFile,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("crm http client: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}

	return &Client{
		baseURL:    base,
		username:   cfg.Username,
		password:   cfg.Password,
		httpClient: httpClient,
		limiter:    limiter,
		metrics:    collector,
		logger:     logger.With(zap.String("component", "crm_client")),
	}, nil
}

// Execute 执行动作。路径中的 {name} 由同名参数替换，其余参数在 GET/DELETE
// 时作为查询参数，其他方法作为 JSON 请求体。所有失败都转换为 OK=false，
// 从不返回 error。
func (c *Client) Execute(ctx context.Context, action *Action, args map[string]any) Result {
	if action == nil {
		return Result{OK: false, Error: "Action not found"}
	}

	start := time.Now()
	res := c.execute(ctx, action, args)
	status := "ok"
	if !res.OK {
		status = "error"
		c.logger.Warn("crm action failed",
			zap.String("action", action.ID),
			zap.String("method", action.Method),
			zap.String("path", action.Path),
			zap.Int("status", res.StatusCode),
			zap.String("error", res.Error),
		)
	}
	c.metrics.RecordAction(NormalizeActionID(action.ID), status, time.Since(start))
	return res
}

func (c *Client) execute(ctx context.Context, action *Action, args map[string]any) Result {
	req, err := c.buildRequest(ctx, action, args)
	if err != nil {
		return failure(0, err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return failure(0, fmt.Errorf("rate limit wait: %w", err))
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return failure(0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return failure(resp.StatusCode, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return failure(resp.StatusCode, fmt.Errorf("%s %s: %s: %s",
			req.Method, req.URL.Path, resp.Status, truncate(strings.TrimSpace(string(body)), maxErrorBody)))
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return Result{OK: true, Result: map[string]any{}, StatusCode: resp.StatusCode}
	}
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return failure(resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	return Result{OK: true, Result: decoded, StatusCode: resp.StatusCode}
}

// buildRequest 绑定参数并构造请求
func (c *Client) buildRequest(ctx context.Context, action *Action, args map[string]any) (*http.Request, error) {
	method := strings.ToUpper(action.Method)
	if method == "" {
		method = http.MethodGet
	}
	path, rest := BindPath(action.Path, args)

	u := *c.baseURL
	u.Path = strings.TrimRight(c.baseURL.Path, "/") + "/" + strings.TrimLeft(path, "/")

	var body io.Reader
	if method == http.MethodGet || method == http.MethodDelete {
		u.RawQuery = EncodeQuery(rest).Encode()
	} else {
		payload, err := json.Marshal(rest)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	return req, nil
}

// BindPath 将参数代入路径模板，返回替换后的路径和未被路径消费的参数
func BindPath(template string, args map[string]any) (string, map[string]any) {
	path := template
	rest := make(map[string]any, len(args))
	for k, v := range args {
		placeholder := "{" + k + "}"
		if strings.Contains(template, placeholder) {
			path = strings.ReplaceAll(path, placeholder, url.PathEscape(scalarString(v)))
			continue
		}
		rest[k] = v
	}
	return path, rest
}

// EncodeQuery 将参数编码为查询串，数组展开为重复键
func EncodeQuery(args map[string]any) url.Values {
	q := url.Values{}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := args[k].(type) {
		case nil:
		case []any:
			for _, item := range v {
				q.Add(k, scalarString(item))
			}
		case []string:
			for _, item := range v {
				q.Add(k, item)
			}
		default:
			q.Set(k, scalarString(v))
		}
	}
	return q
}

// scalarString 格式化标量值；JSON 数字解码为 float64，整数值不带小数点
func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%g", x)
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}

func failure(status int, err error) Result {
	return Result{OK: false, Error: err.Error(), StatusCode: status}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
