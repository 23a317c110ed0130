package llm

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/Harshitk-cp/tenet/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultTimeout    = 20 * time.Second
	DefaultMaxRetries = 2
	defaultRetryDelay = 250 * time.Millisecond
)

// TimeoutAppraiser bounds every call with a timeout and retries calls that
// timed out or were throttled by the provider. Other errors and cancellation
// of the caller's context are returned immediately.
type TimeoutAppraiser struct {
	inner      domain.Appraiser
	timeout    time.Duration
	maxRetries int
	baseDelay  time.Duration
	logger     *zap.Logger
}

func NewTimeoutAppraiser(inner domain.Appraiser, timeout time.Duration, maxRetries int, logger *zap.Logger) *TimeoutAppraiser {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &TimeoutAppraiser{
		inner:      inner,
		timeout:    timeout,
		maxRetries: maxRetries,
		baseDelay:  defaultRetryDelay,
		logger:     logger,
	}
}

func (a *TimeoutAppraiser) Appraise(ctx context.Context, req domain.AppraisalRequest) (*domain.Appraisal, error) {
	delay := a.baseDelay
	var err error
	for attempt := range a.maxRetries + 1 {
		var res *domain.Appraisal
		res, err = a.once(ctx, req)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil || !(errors.Is(err, context.DeadlineExceeded) || isThrottled(err)) {
			return nil, err
		}
		if attempt == a.maxRetries {
			break
		}

		a.logger.Warn("appraisal failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("timeout", a.timeout),
			zap.Error(err),
		)
		jitter := time.Duration(rand.Int64N(int64(delay))) //nolint:gosec // jitter doesn't need crypto-strength randomness
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay + jitter):
		}
		delay *= 2
	}
	return nil, err
}

func (a *TimeoutAppraiser) once(ctx context.Context, req domain.AppraisalRequest) (*domain.Appraisal, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.inner.Appraise(callCtx, req)
}
