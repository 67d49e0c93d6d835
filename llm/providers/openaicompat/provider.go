// =============================================================================
// crmflow OpenAI-Compatible Provider
// =============================================================================
// Shared implementation for both generation backends. The openai variant talks
// to api.openai.com; the google variant talks to Gemini's OpenAI-compatible
// endpoint. Variants differ only in Name, BaseURL, endpoint path and model.
// =============================================================================

package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/crmflow/internal/tlsutil"
	"github.com/BaSui01/crmflow/llm"
	"github.com/BaSui01/crmflow/llm/providers"
)

const (
	OpenAIBaseURL      = "https://api.openai.com"
	OpenAIDefaultModel = "gpt-4o-mini"

	GoogleBaseURL      = "https://generativelanguage.googleapis.com/v1beta/openai"
	GoogleDefaultModel = "gemini-1.5-flash"
)

// Config holds the configuration for an OpenAI-compatible provider.
type Config struct {
	// ProviderName is the unique identifier for this provider ("openai", "google").
	ProviderName string

	// APIKey is the authentication key. A key attached with llm.WithAPIKey wins.
	APIKey string

	// BaseURL is the base URL for the provider's API.
	BaseURL string

	// DefaultModel is the model to use when none is specified in the request.
	DefaultModel string

	// FallbackModel is used when both request and DefaultModel are empty.
	FallbackModel string

	// Timeout is the HTTP client timeout. Defaults to 30s if zero.
	Timeout time.Duration

	// EndpointPath is the chat completions endpoint path. Defaults to "/v1/chat/completions".
	EndpointPath string

	// BuildHeaders is an optional function to set custom headers on each request.
	// If nil, the default "Authorization: Bearer <apiKey>" header is used.
	BuildHeaders func(req *http.Request, apiKey string)
}

// Provider is the OpenAI-compatible generation backend.
type Provider struct {
	Cfg    Config
	Client *http.Client
	Logger *zap.Logger
}

// New creates a new OpenAI-compatible provider with the given config.
func New(cfg Config, logger *zap.Logger) *Provider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/v1/chat/completions"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		Cfg:    cfg,
		Client: tlsutil.SecureHTTPClient(timeout),
		Logger: logger.With(zap.String("provider", cfg.ProviderName)),
	}
}

// NewOpenAI creates the openai variant. Empty fields in cfg take the variant defaults.
func NewOpenAI(cfg Config, logger *zap.Logger) *Provider {
	cfg.ProviderName = string(llm.KindOpenAI)
	if cfg.BaseURL == "" {
		cfg.BaseURL = OpenAIBaseURL
	}
	cfg.FallbackModel = OpenAIDefaultModel
	return New(cfg, logger)
}

// NewGoogle creates the google variant backed by Gemini's OpenAI-compatible endpoint.
func NewGoogle(cfg Config, logger *zap.Logger) *Provider {
	cfg.ProviderName = string(llm.KindGoogle)
	if cfg.BaseURL == "" {
		cfg.BaseURL = GoogleBaseURL
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/chat/completions"
	}
	cfg.FallbackModel = GoogleDefaultModel
	return New(cfg, logger)
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.Cfg.ProviderName }

// buildHeaders applies headers to the HTTP request.
func (p *Provider) buildHeaders(req *http.Request, apiKey string) {
	if p.Cfg.BuildHeaders != nil {
		p.Cfg.BuildHeaders(req, apiKey)
		return
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
}

// model picks the request model, then DefaultModel, then the variant fallback.
func (p *Provider) model(req *llm.ChatRequest) string {
	switch {
	case req.Model != "":
		return req.Model
	case p.Cfg.DefaultModel != "":
		return p.Cfg.DefaultModel
	}
	return p.Cfg.FallbackModel
}

// resolveAPIKey returns the API key, checking for context override first.
func (p *Provider) resolveAPIKey(ctx context.Context) string {
	if key, ok := llm.APIKeyFromContext(ctx); ok {
		return key
	}
	return p.Cfg.APIKey
}

// endpoint builds the full URL for a given path.
func (p *Provider) endpoint(path string) string {
	return fmt.Sprintf("%s%s", strings.TrimRight(p.Cfg.BaseURL, "/"), path)
}

// Completion performs a non-streaming chat completion.
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	model := p.model(req)
	body := providers.WireRequest{
		Model:       model,
		Messages:    providers.EncodeMessages(req.Messages),
		Tools:       providers.EncodeTools(req.Tools),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
	// tool_choice without tools is rejected upstream
	if req.ToolChoice != "" && len(body.Tools) > 0 {
		body.ToolChoice = req.ToolChoice
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(p.Cfg.EndpointPath), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq, p.resolveAPIKey(ctx))

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return nil, providers.TransportError(p.Name(), "chat completion request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := providers.ReadErrorMessage(resp.Body)
		p.Logger.Warn("completion rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("model", model))
		return nil, providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}

	var wire providers.WireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, providers.TransportError(p.Name(), "decode chat completion", err)
	}
	return providers.DecodeResponse(wire, p.Name(), model), nil
}
