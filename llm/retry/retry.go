package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/crmflow/types"
)

// =============================================================================
// 🔁 指数退避重试
// =============================================================================

// Policy 重试策略
type Policy struct {
	// MaxAttempts 总尝试次数（含首次），小于 1 按 1 处理
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Jitter 延迟的随机浮动比例，0 表示不浮动
	Jitter float64
	// OnRetry 在每次等待前调用，attempt 为即将进行的尝试序号（从 2 开始）
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy 三次尝试，500ms 起步翻倍，上限 5s
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
		Jitter:       0.2,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.InitialDelay < 0 {
		p.InitialDelay = 0
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Jitter > 1 {
		p.Jitter = 1
	}
	return p
}

// Delay 返回第 failed 次失败之后的等待时间，不含抖动
func (p Policy) Delay(failed int) time.Duration {
	p = p.normalized()
	if failed < 1 {
		return 0
	}
	d := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(failed-1))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

func (p Policy) jittered(d time.Duration) time.Duration {
	if p.Jitter == 0 || d <= 0 {
		return d
	}
	spread := float64(d) * p.Jitter
	return time.Duration(float64(d) + (rand.Float64()*2-1)*spread)
}

// =============================================================================
// 🏷️ 可重试标记
// =============================================================================

type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Retryable 把 err 标记为可重试，即使它是不可重试的 types.Error
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable 判断失败后是否应当再试：显式标记的错误可重试；
// types.Error 按其 Retryable 字段；其余错误（网络抖动等）可重试。
// context 取消与超时不重试。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var marked *retryableError
	if errors.As(err, &marked) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if e, ok := types.AsError(err); ok {
		return e.Retryable
	}
	return true
}

// =============================================================================
// 🎯 Do
// =============================================================================

// Do 调用 fn 直到成功、遇到不可重试的错误或次数用尽。attempt 从 1 开始。
// 次数用尽时返回 MAX_RETRIES_EXCEEDED，原因为最后一次的错误。
func Do[T any](ctx context.Context, p Policy, logger *zap.Logger, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	if logger == nil {
		logger = zap.NewNop()
	}
	p = p.normalized()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := p.jittered(p.Delay(attempt - 1))
			if p.OnRetry != nil {
				p.OnRetry(attempt, lastErr, delay)
			}
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, fmt.Errorf("retry cancelled after %d attempts: %w", attempt-1, ctx.Err())
			case <-timer.C:
			}
		}

		result, err := fn(ctx, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			logger.Debug("error not retryable", zap.Int("attempt", attempt), zap.Error(err))
			return zero, err
		}
	}

	logger.Warn("retries exhausted", zap.Int("attempts", p.MaxAttempts), zap.Error(lastErr))
	return zero, types.NewMaxRetriesExceededError(p.MaxAttempts, lastErr)
}
