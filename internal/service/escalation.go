package service

import (
	"context"
	"errors"
	"sync"

	"github.com/Harshitk-cp/tenet/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrEscalationNotFound = errors.New("escalation not found")

// EscalationSink is the human-in-the-loop channel.
type EscalationSink interface {
	Escalate(ctx context.Context, esc *domain.Escalation) error
}

// LogEscalationSink writes escalations to the log at Warn.
type LogEscalationSink struct {
	logger *zap.Logger
}

func NewLogEscalationSink(logger *zap.Logger) *LogEscalationSink {
	return &LogEscalationSink{logger: logger}
}

func (s *LogEscalationSink) Escalate(_ context.Context, esc *domain.Escalation) error {
	s.logger.Warn("escalation raised",
		zap.String("escalation_id", esc.ID.String()),
		zap.String("work_unit_id", esc.WorkUnitID.String()),
		zap.String("capability", esc.Capability),
		zap.String("validator", esc.Validator),
		zap.String("message", esc.Message),
		zap.String("fix_hint", esc.FixHint),
		zap.Float64("severity", esc.Severity),
		zap.String("reason", string(esc.Reason)),
		zap.Int("attempt_count", esc.AttemptCount),
	)
	return nil
}

const defaultEscalationCapacity = 1000

// EscalationQueue is a bounded in-memory inbox of open escalations.
// When full, the oldest escalation is dropped.
type EscalationQueue struct {
	mu       sync.Mutex
	items    []domain.Escalation
	capacity int
	logger   *zap.Logger
}

func NewEscalationQueue(capacity int, logger *zap.Logger) *EscalationQueue {
	if capacity <= 0 {
		capacity = defaultEscalationCapacity
	}
	return &EscalationQueue{capacity: capacity, logger: logger}
}

func (q *EscalationQueue) Escalate(_ context.Context, esc *domain.Escalation) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == q.capacity {
		dropped := q.items[0]
		q.items = q.items[1:]
		q.logger.Error("escalation queue full, dropping oldest",
			zap.String("escalation_id", dropped.ID.String()),
		)
	}
	q.items = append(q.items, *esc)
	return nil
}

// List returns open escalations for a tenant, oldest first.
func (q *EscalationQueue) List(tenantID uuid.UUID) []domain.Escalation {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := []domain.Escalation{}
	for _, e := range q.items {
		if e.Tenant.TenantID == tenantID {
			out = append(out, e)
		}
	}
	return out
}

// Ack removes a handled escalation.
func (q *EscalationQueue) Ack(tenantID, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.items {
		if e.ID == id && e.Tenant.TenantID == tenantID {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return nil
		}
	}
	return ErrEscalationNotFound
}

// MultiSink fans an escalation out to every sink and returns the first error.
type MultiSink []EscalationSink

func (m MultiSink) Escalate(ctx context.Context, esc *domain.Escalation) error {
	var first error
	for _, s := range m {
		if err := s.Escalate(ctx, esc); err != nil && first == nil {
			first = err
		}
	}
	return first
}
