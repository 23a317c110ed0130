package service

import (
	"context"
	"sync"
	"testing"

	"github.com/Harshitk-cp/tenet/internal/domain"
	"github.com/Harshitk-cp/tenet/internal/store/memstore"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type engineFixture struct {
	tenant   domain.TenantKey
	beliefs  *memstore.BeliefStore
	facts    *memstore.FactStore
	records  *memstore.MemoryRecordStore
	metrics  *countingCollector
	engine   *UpdateEngine
	queue    *UpdateQueue
	resolver *ScopeResolver
	recorder *FeedbackRecorder
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	logger := zap.NewNop()
	f := &engineFixture{
		tenant:  domain.TenantKey{TenantID: uuid.New(), OrgID: "acme", PersonID: "p1"},
		beliefs: memstore.NewBeliefStore(),
		facts:   memstore.NewFactStore(),
		records: memstore.NewMemoryRecordStore(),
		metrics: &countingCollector{},
	}
	f.engine = NewUpdateEngine(f.beliefs, DefaultUpdateConfig(), f.metrics, logger)
	f.queue = NewUpdateQueue(f.engine, 4, 64, logger)
	f.queue.Start()
	t.Cleanup(f.queue.Stop)
	f.resolver = NewScopeResolver(f.beliefs, f.facts, logger)
	f.recorder = NewFeedbackRecorder(f.records, f.queue, nil, DefaultPeakEndConfig(), logger)
	return f
}

func (f *engineFixture) rc() domain.RequestContext {
	return domain.RequestContext{PersonID: f.tenant.PersonID, OrgID: f.tenant.OrgID, Industries: []string{"accounting"}}
}

func (f *engineFixture) addBelief(t *testing.T, key string, scope domain.Scope, category domain.Category, strength float64) *domain.Belief {
	t.Helper()
	b := &domain.Belief{
		TenantID:  f.tenant.TenantID,
		Key:       key,
		Statement: key + " statement",
		ScopeType: scope.Type,
		ScopeID:   scope.ID,
		Category:  category,
		Strength:  strength,
	}
	if err := f.beliefs.Create(context.Background(), b); err != nil {
		t.Fatalf("create belief %s: %v", key, err)
	}
	return b
}

func (f *engineFixture) addFact(t *testing.T, key, statement string, scope domain.Scope) *domain.Fact {
	t.Helper()
	fact := &domain.Fact{
		TenantID:   f.tenant.TenantID,
		FactKey:    key,
		ScopeType:  scope.Type,
		ScopeID:    scope.ID,
		Statement:  statement,
		Confidence: 1.0,
	}
	if err := f.facts.Create(context.Background(), fact); err != nil {
		t.Fatalf("create fact %s: %v", key, err)
	}
	return fact
}

func (f *engineFixture) strength(t *testing.T, id uuid.UUID) float64 {
	t.Helper()
	b, err := f.beliefs.GetByID(context.Background(), id, f.tenant.TenantID)
	if err != nil {
		t.Fatalf("get belief: %v", err)
	}
	return b.Strength
}

func (f *engineFixture) event(beliefID uuid.UUID, signal domain.Signal, weight float64) domain.BeliefUpdateEvent {
	return domain.BeliefUpdateEvent{ID: uuid.New(), Tenant: f.tenant, BeliefID: beliefID, Signal: signal, DifficultyWeight: weight}
}

func orgScope(id string) domain.Scope { return domain.Scope{Type: domain.ScopeOrg, ID: id} }

func personScope(id string) domain.Scope { return domain.Scope{Type: domain.ScopePerson, ID: id} }

// countingCollector records metric calls for assertions.
type countingCollector struct {
	mu          sync.Mutex
	updates     map[string]int
	cascades    int
	outcomes    map[string]int
	retries     int
	escalations map[string]int
	modes       map[string]int
}

func (c *countingCollector) BeliefUpdate(result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.updates == nil {
		c.updates = map[string]int{}
	}
	c.updates[result]++
}

func (c *countingCollector) CascadeUpdate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cascades++
}

func (c *countingCollector) VerificationOutcome(state string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcomes == nil {
		c.outcomes = map[string]int{}
	}
	c.outcomes[state]++
}

func (c *countingCollector) VerificationRetry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retries++
}

func (c *countingCollector) Escalation(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.escalations == nil {
		c.escalations = map[string]int{}
	}
	c.escalations[reason]++
}

func (c *countingCollector) AutonomyDecision(mode string, _ float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.modes == nil {
		c.modes = map[string]int{}
	}
	c.modes[mode]++
}

// recordingSink keeps every escalation it receives.
type recordingSink struct {
	mu    sync.Mutex
	items []*domain.Escalation
}

func (s *recordingSink) Escalate(_ context.Context, esc *domain.Escalation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, esc)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func testNopLogger() *zap.Logger { return zap.NewNop() }
