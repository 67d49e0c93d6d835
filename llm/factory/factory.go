// Package factory provides a centralized factory for creating generation and
// embedding backends by kind. It imports the provider sub-packages and maps
// llm.ProviderKind to their constructors, breaking the import cycle that would
// occur if this logic lived in the llm package directly.
package factory

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/crmflow/internal/metrics"
	"github.com/BaSui01/crmflow/llm"
	"github.com/BaSui01/crmflow/llm/embedding"
	"github.com/BaSui01/crmflow/llm/providers/openaicompat"
)

// ProviderConfig is the generic configuration accepted by the factory functions.
type ProviderConfig struct {
	Kind         llm.ProviderKind `json:"kind" yaml:"kind"`
	APIKeys      []string         `json:"api_keys,omitempty" yaml:"api_keys,omitempty"`
	BaseURL      string           `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model        string           `json:"model,omitempty" yaml:"model,omitempty"`
	EmbedBaseURL string           `json:"embed_base_url,omitempty" yaml:"embed_base_url,omitempty"`
	EmbedModel   string           `json:"embed_model,omitempty" yaml:"embed_model,omitempty"`
	Timeout      time.Duration    `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

func (c ProviderConfig) firstKey() string {
	if len(c.APIKeys) > 0 {
		return c.APIKeys[0]
	}
	return ""
}

// NewProvider creates the generation backend for cfg.Kind.
func NewProvider(cfg ProviderConfig, logger *zap.Logger) (llm.Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	oc := openaicompat.Config{
		APIKey:       cfg.firstKey(),
		BaseURL:      cfg.BaseURL,
		DefaultModel: cfg.Model,
		Timeout:      cfg.Timeout,
	}
	switch cfg.Kind {
	case llm.KindOpenAI:
		return openaicompat.NewOpenAI(oc, logger), nil
	case llm.KindGoogle:
		return openaicompat.NewGoogle(oc, logger), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Kind)
	}
}

// NewEmbedder creates the embedding backend for cfg.Kind. EmbedBaseURL and
// EmbedModel override the variant defaults.
func NewEmbedder(cfg ProviderConfig) (embedding.Provider, error) {
	return embedding.New(cfg.Kind, embedding.Config{
		APIKey:  cfg.firstKey(),
		BaseURL: cfg.EmbedBaseURL,
		Model:   cfg.EmbedModel,
		Timeout: cfg.Timeout,
	})
}

// NewClient wires provider, embedder and a key ring over cfg.APIKeys into an llm.Client.
func NewClient(cfg ProviderConfig, clientCfg llm.ClientConfig, collector *metrics.Collector, logger *zap.Logger) (*llm.Client, error) {
	provider, err := NewProvider(cfg, logger)
	if err != nil {
		return nil, err
	}
	embedder, err := NewEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	ring := llm.NewKeyRing(cfg.APIKeys...)
	if ring.Len() == 0 {
		return nil, fmt.Errorf("no api key configured for %s (set %s)", cfg.Kind, llm.EnvKeyName(cfg.Kind))
	}
	if clientCfg.Model == "" {
		clientCfg.Model = cfg.Model
	}
	return llm.NewClient(provider, clientCfg, logger,
		llm.WithKeyRing(ring),
		llm.WithEmbedder(embedder),
		llm.WithMetrics(collector),
	), nil
}
