package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/crmflow/types"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, Multiplier: 2}
}

func TestDo_FirstAttemptSucceeds(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fastPolicy(3), zap.NewNop(), func(ctx context.Context, attempt int) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	var seen []int
	var retried []int
	p := fastPolicy(3)
	p.OnRetry = func(attempt int, err error, delay time.Duration) {
		retried = append(retried, attempt)
		assert.EqualError(t, err, "connection reset")
	}

	got, err := Do(context.Background(), p, nil, func(ctx context.Context, attempt int) (int, error) {
		seen = append(seen, attempt)
		if attempt < 3 {
			return 0, errors.New("connection reset")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, []int{1, 2, 3}, seen)
	assert.Equal(t, []int{2, 3}, retried)
}

func TestDo_Exhausted(t *testing.T) {
	cause := errors.New("still broken")
	calls := 0
	_, err := Do(context.Background(), fastPolicy(2), nil, func(ctx context.Context, attempt int) (struct{}, error) {
		calls++
		return struct{}{}, cause
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.ErrorIs(t, err, types.ErrMaxRetries)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "gave up after 2 attempts")
}

func TestDo_NonRetryableStops(t *testing.T) {
	authErr := types.NewError(types.ErrAuthentication, "invalid api key")
	calls := 0
	_, err := Do(context.Background(), fastPolicy(5), nil, func(ctx context.Context, attempt int) (string, error) {
		calls++
		return "", authErr
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, types.ErrAuthentication, types.GetErrorCode(err))
}

func TestDo_MarkedRetryableOverridesCode(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(3), nil, func(ctx context.Context, attempt int) (string, error) {
		calls++
		return "", Retryable(types.NewMissingParameterError("create_lead", []string{"email"}))
	})
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, types.ErrMaxRetries)
	assert.ErrorIs(t, err, types.ErrMissingParam)
}

func TestDo_ContextCancelledBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 3, InitialDelay: time.Minute, MaxDelay: time.Minute}

	_, err := Do(ctx, p, nil, func(ctx context.Context, attempt int) (string, error) {
		cancel()
		return "", errors.New("transient")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "after 1 attempts")
}

func TestPolicy_Delay(t *testing.T) {
	p := Policy{MaxAttempts: 5, InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Multiplier: 2}
	tests := []struct {
		failed int
		want   time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 300 * time.Millisecond},
		{4, 300 * time.Millisecond},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Delay(tt.failed), "failed=%d", tt.failed)
	}
}

func TestPolicy_JitterStaysInBand(t *testing.T) {
	p := Policy{Jitter: 0.2}.normalized()
	for i := 0; i < 100; i++ {
		d := p.jittered(time.Second)
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}
	assert.Equal(t, time.Second, Policy{}.jittered(time.Second))
}

func TestPolicy_Normalized(t *testing.T) {
	p := Policy{MaxAttempts: 0, InitialDelay: time.Second, MaxDelay: 0, Multiplier: 0.5, Jitter: 3}.normalized()
	assert.Equal(t, 1, p.MaxAttempts)
	assert.Equal(t, time.Second, p.MaxDelay)
	assert.Equal(t, 1.0, p.Multiplier)
	assert.Equal(t, 1.0, p.Jitter)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("connection reset"), true},
		{"cancelled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"retryable code", types.NewError(types.ErrRateLimit, "slow down").WithRetryable(true), true},
		{"fatal code", types.NewError(types.ErrAuthentication, "bad key"), false},
		{"marked", Retryable(types.NewError(types.ErrAuthentication, "bad key")), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
	assert.Nil(t, Retryable(nil))
}
