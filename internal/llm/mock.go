package llm

import (
	"context"
	"sync"
	"time"

	"github.com/Harshitk-cp/tenet/internal/domain"
)

// MockClient is a configurable Appraiser for testing.
// Set the response fields to control what Appraise returns.
type MockClient struct {
	mu sync.Mutex

	AppraiseResponse *domain.Appraisal
	AppraiseError    error
	// Delay blocks each call until it elapses or the context ends.
	Delay time.Duration
	// Errors, when non-empty, is consumed one entry per call before
	// AppraiseError applies. A nil entry means success.
	Errors []error

	// Call tracking for assertions
	AppraiseCalls []domain.AppraisalRequest
}

func NewMockClient() *MockClient {
	return &MockClient{
		AppraiseResponse: &domain.Appraisal{
			Intent:              "mock_intent",
			RecommendedApproach: "Mock approach",
		},
	}
}

func (m *MockClient) Appraise(ctx context.Context, req domain.AppraisalRequest) (*domain.Appraisal, error) {
	m.mu.Lock()
	m.AppraiseCalls = append(m.AppraiseCalls, req)
	var next error
	popped := false
	if len(m.Errors) > 0 {
		next, m.Errors = m.Errors[0], m.Errors[1:]
		popped = true
	}
	m.mu.Unlock()

	if m.Delay > 0 {
		t := time.NewTimer(m.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	if popped && next != nil {
		return nil, next
	}
	if !popped && m.AppraiseError != nil {
		return nil, m.AppraiseError
	}
	resp := *m.AppraiseResponse
	return &resp, nil
}

func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.AppraiseCalls)
}
