package capability

import (
	"context"
	"sync"

	"github.com/Harshitk-cp/tenet/internal/domain"
)

// MockExecutor replays scripted responses, one per call. The last entry
// repeats once the script is exhausted.
type MockExecutor struct {
	mu        sync.Mutex
	responses []*domain.CapabilityResponse
	errs      []error
	Calls     []domain.CapabilityRequest
}

func NewMockExecutor(responses ...*domain.CapabilityResponse) *MockExecutor {
	if len(responses) == 0 {
		responses = []*domain.CapabilityResponse{{Status: domain.CapabilitySuccess, Outputs: map[string]any{}}}
	}
	return &MockExecutor{responses: responses}
}

// FailWith makes the next calls return errs in order before responses resume.
func (m *MockExecutor) FailWith(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, errs...)
}

func (m *MockExecutor) Execute(ctx context.Context, req domain.CapabilityRequest) (*domain.CapabilityResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return nil, err
	}
	resp := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	out := *resp
	return &out, nil
}

func (m *MockExecutor) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
