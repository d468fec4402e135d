package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowConsumesTokens(t *testing.T) {
	tb := NewTokenBucket(60, 2)

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	// 桶已空，1秒补充1个令牌，立即再取应失败
	assert.False(t, tb.Allow())
}

func TestWaitBlocksUntilRefill(t *testing.T) {
	// 600 QPM = 每秒10个令牌，桶耗尽后Wait应在约100ms内返回
	tb := NewTokenBucket(600, 1)
	require.True(t, tb.Allow())

	start := time.Now()
	require.NoError(t, tb.Wait(context.Background()))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestWaitRespectsContext(t *testing.T) {
	tb := NewTokenBucket(1, 1) // 每分钟1个，耗尽后需要等1分钟
	require.True(t, tb.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := tb.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetryWithBackoff(t *testing.T) {
	tb := NewTokenBucket(6000, 10).WithRetryPolicy(time.Millisecond, 3)

	calls := 0
	err := tb.RetryWithBackoff(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("connection timeout")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoffNonRetryable(t *testing.T) {
	tb := NewTokenBucket(6000, 10).WithRetryPolicy(time.Millisecond, 3)

	calls := 0
	err := tb.RetryWithBackoff(context.Background(), func() error {
		calls++
		return errors.New("invalid api key")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls, "不可重试错误只执行一次")
}
