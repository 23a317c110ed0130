package llm

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Harshitk-cp/tenet/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTimeoutAppraiser_RetriesOnTimeout(t *testing.T) {
	mock := NewMockClient()
	mock.Errors = []error{context.DeadlineExceeded, context.DeadlineExceeded, nil}

	a := NewTimeoutAppraiser(mock, time.Second, 2, zap.NewNop())
	a.baseDelay = time.Millisecond

	res, err := a.Appraise(context.Background(), domain.AppraisalRequest{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "mock_intent", res.Intent)
	assert.Equal(t, 3, mock.Calls())
}

func TestTimeoutAppraiser_GivesUpAfterMaxRetries(t *testing.T) {
	mock := NewMockClient()
	mock.AppraiseError = context.DeadlineExceeded

	a := NewTimeoutAppraiser(mock, time.Second, 1, zap.NewNop())
	a.baseDelay = time.Millisecond

	_, err := a.Appraise(context.Background(), domain.AppraisalRequest{Prompt: "x"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, mock.Calls())
}

func TestTimeoutAppraiser_DoesNotRetryOtherErrors(t *testing.T) {
	mock := NewMockClient()
	mock.AppraiseError = errors.New("bad request")

	a := NewTimeoutAppraiser(mock, time.Second, 3, zap.NewNop())
	_, err := a.Appraise(context.Background(), domain.AppraisalRequest{Prompt: "x"})
	assert.EqualError(t, err, "bad request")
	assert.Equal(t, 1, mock.Calls())
}

func TestTimeoutAppraiser_EnforcesTimeout(t *testing.T) {
	mock := NewMockClient()
	mock.Delay = time.Second

	a := NewTimeoutAppraiser(mock, 10*time.Millisecond, 0, zap.NewNop())
	start := time.Now()
	_, err := a.Appraise(context.Background(), domain.AppraisalRequest{Prompt: "x"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestTimeoutAppraiser_StopsOnCallerCancel(t *testing.T) {
	mock := NewMockClient()
	mock.Delay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := NewTimeoutAppraiser(mock, time.Second, 3, zap.NewNop())
	_, err := a.Appraise(ctx, domain.AppraisalRequest{Prompt: "x"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, mock.Calls())
}

func TestTimeoutAppraiser_RetriesThrottledCalls(t *testing.T) {
	mock := NewMockClient()
	mock.Errors = []error{&APIError{Provider: "openai", Status: http.StatusTooManyRequests}, nil}

	a := NewTimeoutAppraiser(mock, time.Second, 2, zap.NewNop())
	a.baseDelay = time.Millisecond

	_, err := a.Appraise(context.Background(), domain.AppraisalRequest{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, 2, mock.Calls())
}

func TestTimeoutAppraiser_DoesNotRetryClientErrors(t *testing.T) {
	mock := NewMockClient()
	mock.AppraiseError = &APIError{Provider: "anthropic", Status: http.StatusUnauthorized}

	a := NewTimeoutAppraiser(mock, time.Second, 3, zap.NewNop())
	_, err := a.Appraise(context.Background(), domain.AppraisalRequest{Prompt: "x"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.False(t, apiErr.Throttled())
	assert.Equal(t, 1, mock.Calls())
}
