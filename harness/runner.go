package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/crmflow/agent"
	"github.com/BaSui01/crmflow/llm"
	"github.com/BaSui01/crmflow/llm/retry"
	"github.com/BaSui01/crmflow/types"
)

// Validator inspects one generation reply. A non-nil error makes the
// attempt count as failed.
type Validator func(reply *llm.Reply) error

// Config bounds the retry loop.
type Config struct {
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
	System       string        `yaml:"system" json:"system"`
}

// DefaultConfig returns three attempts with a short backoff.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}
}

// Runner re-issues a generation call until its reply validates, and keeps a
// success rate across runs. It is safe for concurrent use.
type Runner struct {
	gen    agent.Generator
	cfg    Config
	policy retry.Policy
	logger *zap.Logger

	total     atomic.Int64
	successes atomic.Int64
}

// NewRunner creates a Runner.
func NewRunner(gen agent.Generator, cfg Config, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}
	logger = logger.With(zap.String("component", "harness"))
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = cfg.MaxAttempts
	policy.InitialDelay = cfg.InitialDelay
	policy.MaxDelay = cfg.MaxDelay
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Info("retrying generation",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}
	return &Runner{
		gen:    gen,
		cfg:    cfg,
		policy: policy,
		logger: logger,
	}
}

// RunWithRetry calls the model with prompt, offering tools when non-empty,
// until validate accepts the reply. Validation failures are retried;
// non-retryable provider errors stop the loop. When every attempt fails the
// error has code MAX_RETRIES_EXCEEDED.
func (r *Runner) RunWithRetry(ctx context.Context, prompt string, tools []types.ToolDescriptor, validate Validator) (*llm.Reply, error) {
	r.total.Add(1)
	attempts := 0

	reply, err := retry.Do(ctx, r.policy, r.logger, func(ctx context.Context, attempt int) (*llm.Reply, error) {
		attempts = attempt
		reply, err := r.generate(ctx, prompt, tools)
		if err != nil {
			r.logger.Warn("generation attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			return nil, err
		}
		if validate != nil {
			if verr := validate(reply); verr != nil {
				r.logger.Warn("reply rejected", zap.Int("attempt", attempt), zap.Error(verr))
				return nil, retry.Retryable(verr)
			}
		}
		return reply, nil
	})
	if err != nil {
		if types.GetErrorCode(err) == types.ErrMaxRetriesExceeded {
			r.logger.Error("all attempts failed", zap.Int("attempts", attempts))
		}
		return nil, err
	}

	r.successes.Add(1)
	r.logger.Info("reply validated", zap.Int("attempt", attempts))
	return reply, nil
}

func (r *Runner) generate(ctx context.Context, prompt string, tools []types.ToolDescriptor) (*llm.Reply, error) {
	if len(tools) == 0 {
		content, err := r.gen.Invoke(ctx, prompt, r.cfg.System, nil)
		if err != nil {
			return nil, err
		}
		return &llm.Reply{Content: content}, nil
	}
	return r.gen.InvokeWithTools(ctx, llm.BuildMessages(prompt, r.cfg.System, nil, 0), tools)
}

// SuccessRate is successes over runs, or 0 before the first run.
func (r *Runner) SuccessRate() float64 {
	total := r.total.Load()
	if total == 0 {
		return 0
	}
	return float64(r.successes.Load()) / float64(total)
}

// Stats returns the run and success counters.
func (r *Runner) Stats() (total, successes int64) {
	return r.total.Load(), r.successes.Load()
}

// =============================================================================
// ✅ Validators
// =============================================================================

// ExpectToolCall accepts a reply whose first tool call is name and carries
// every required argument.
func ExpectToolCall(name string, required []string) Validator {
	return func(reply *llm.Reply) error {
		if reply == nil || len(reply.ToolCalls) == 0 {
			return fmt.Errorf("expected tool call %s, got none", name)
		}
		call := reply.ToolCalls[0]
		if call.Name != name {
			return fmt.Errorf("expected tool call %s, got %s", name, call.Name)
		}
		if missing := agent.MissingRequired(required, call.Args()); len(missing) > 0 {
			return types.NewMissingParameterError(name, missing)
		}
		return nil
	}
}

// ExpectJSON accepts a text reply that decodes into a JSON object holding
// every listed key.
func ExpectJSON(keys ...string) Validator {
	return func(reply *llm.Reply) error {
		if reply == nil {
			return fmt.Errorf("empty reply")
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(reply.Content), &obj); err != nil {
			return fmt.Errorf("invalid response format: %w", err)
		}
		for _, k := range keys {
			if _, ok := obj[k]; !ok {
				return fmt.Errorf("invalid response format: missing %q", k)
			}
		}
		return nil
	}
}
