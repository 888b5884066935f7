package services

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retryPolicy 可复用的重试策略：最大尝试次数、固定间隔、不可重试的错误类别
type retryPolicy struct {
	maxAttempts uint64
	delay       time.Duration
	permanent   []error
}

// run 执行 op 并按策略重试；命中 permanent 列表的错误立即放弃
func (p retryPolicy) run(ctx context.Context, op func() error) error {
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.delay), p.maxAttempts-1),
		ctx,
	)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		for _, perm := range p.permanent {
			if errors.Is(err, perm) {
				return backoff.Permanent(err)
			}
		}
		return err
	}, b)
}
