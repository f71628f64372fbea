package retry

import (
	"context"
	"errors"
	"time"
)

// Policy 描述一次重试调用的尝试次数与各次之间的等待策略。
type Policy struct {
	MaxAttempts int
	// Delay 返回第 attempt 次失败后的等待时长，attempt 从 1 开始。
	Delay func(attempt int) time.Duration
}

// Fixed 返回固定间隔的重试策略（交易所签名接口使用）。
func Fixed(maxAttempts int, delay time.Duration) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		Delay: func(int) time.Duration {
			return delay
		},
	}
}

// Exponential 返回指数退避策略，每次失败后等待时长翻倍（建议源接口使用）。
func Exponential(maxAttempts int, initial time.Duration) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		Delay: func(attempt int) time.Duration {
			delay := initial
			for i := 1; i < attempt; i++ {
				delay *= 2
			}
			return delay
		},
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent 标记错误为不可重试，Do 遇到后立即返回原始错误。
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do 按策略执行 fn，直到成功、不可重试或尝试次数耗尽。
// 返回的是最后一次尝试的原始错误。
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		var permanent *permanentError
		if errors.As(err, &permanent) {
			return permanent.err
		}

		lastErr = err
		if attempt == policy.MaxAttempts {
			break
		}

		var wait time.Duration
		if policy.Delay != nil {
			wait = policy.Delay(attempt)
		}

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	return lastErr
}
