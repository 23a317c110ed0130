package memstore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Harshitk-cp/tenet/internal/domain"
	"github.com/Harshitk-cp/tenet/internal/store"
	"github.com/google/uuid"
)

// factSnapshot keeps facts in insertion order; a higher index is always newer.
type factSnapshot struct {
	facts       []domain.Fact
	index       map[uuid.UUID]int
	active      map[beliefKey]int
	corrections []domain.FactCorrection
}

func (s *factSnapshot) clone() *factSnapshot {
	next := &factSnapshot{
		facts:       make([]domain.Fact, len(s.facts), len(s.facts)+1),
		index:       make(map[uuid.UUID]int, len(s.index)+1),
		active:      make(map[beliefKey]int, len(s.active)+1),
		corrections: make([]domain.FactCorrection, len(s.corrections), len(s.corrections)+1),
	}
	copy(next.facts, s.facts)
	copy(next.corrections, s.corrections)
	for k, v := range s.index {
		next.index[k] = v
	}
	for k, v := range s.active {
		next.active[k] = v
	}
	return next
}

func factKeyOf(f *domain.Fact) beliefKey {
	return beliefKey{tenant: f.TenantID, scope: f.Scope(), key: f.FactKey}
}

type FactStore struct {
	mu   sync.Mutex
	snap atomic.Pointer[factSnapshot]
	now  func() time.Time
}

func NewFactStore() *FactStore {
	s := &FactStore{now: time.Now}
	s.snap.Store(&factSnapshot{
		index:  make(map[uuid.UUID]int),
		active: make(map[beliefKey]int),
	})
	return s
}

func (s *FactStore) Create(ctx context.Context, f *domain.Fact) error {
	if f.FactKey == "" || !f.Scope().Valid() {
		return fmt.Errorf("%w: fact needs a key and a valid scope", store.ErrInvalid)
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", store.ErrInvalid, f.Confidence)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()
	if _, exists := cur.active[factKeyOf(f)]; exists {
		return store.ErrConflict
	}

	next := cur.clone()
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	f.Status = domain.FactActive
	now := s.now()
	f.CreatedAt = now
	f.UpdatedAt = now

	idx := len(next.facts)
	next.facts = append(next.facts, *f)
	next.index[f.ID] = idx
	next.active[factKeyOf(f)] = idx
	s.snap.Store(next)
	return nil
}

func (s *FactStore) GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*domain.Fact, error) {
	snap := s.snap.Load()
	i, ok := snap.index[id]
	if !ok || snap.facts[i].TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	f := snap.facts[i]
	return &f, nil
}

func (s *FactStore) ListActiveByScopes(ctx context.Context, tenantID uuid.UUID, scopes []domain.Scope, keys []string) ([]domain.Fact, error) {
	snap := s.snap.Load()
	var out []domain.Fact
	if len(keys) > 0 {
		for _, sc := range scopes {
			for _, k := range keys {
				if i, ok := snap.active[beliefKey{tenant: tenantID, scope: sc, key: k}]; ok {
					out = append(out, snap.facts[i])
				}
			}
		}
		return out, nil
	}

	wanted := make(map[domain.Scope]bool, len(scopes))
	for _, sc := range scopes {
		wanted[sc] = true
	}
	for k, i := range snap.active {
		if k.tenant == tenantID && wanted[k.scope] {
			out = append(out, snap.facts[i])
		}
	}
	return out, nil
}

func (s *FactStore) Replace(ctx context.Context, tenantID uuid.UUID, r domain.Replacement) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()
	oi, ok := cur.index[r.OldID]
	if !ok || cur.facts[oi].TenantID != tenantID {
		return uuid.Nil, store.ErrNotFound
	}
	if cur.facts[oi].Status != domain.FactActive {
		return uuid.Nil, fmt.Errorf("fact %s is %s: %w", r.OldID, cur.facts[oi].Status, store.ErrNotActive)
	}

	next := cur.clone()
	now := s.now()
	old := &next.facts[oi]

	oldID := old.ID
	replacement := *old
	replacement.ID = uuid.New()
	replacement.Statement = r.NewStatement
	replacement.Status = domain.FactActive
	replacement.Supersedes = &oldID
	replacement.SupersededBy = nil
	replacement.CreatedAt = now
	replacement.UpdatedAt = now

	newID := replacement.ID
	old.Status = domain.FactSuperseded
	old.SupersededBy = &newID
	old.UpdatedAt = now

	ni := len(next.facts)
	next.facts = append(next.facts, replacement)
	next.index[newID] = ni
	next.active[factKeyOf(&replacement)] = ni
	next.corrections = append(next.corrections, domain.FactCorrection{
		ID:             uuid.New(),
		FactID:         r.OldID,
		NewFactID:      &newID,
		CorrectionType: r.CorrectionType,
		Reason:         r.Reason,
		Actor:          r.Actor,
		CreatedAt:      now,
	})

	s.snap.Store(next)
	return newID, nil
}

func (s *FactStore) Delete(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, reason, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()
	i, ok := cur.index[id]
	if !ok || cur.facts[i].TenantID != tenantID {
		return store.ErrNotFound
	}
	if cur.facts[i].Status != domain.FactActive {
		return fmt.Errorf("fact %s is %s: %w", id, cur.facts[i].Status, store.ErrNotActive)
	}

	next := cur.clone()
	now := s.now()
	f := &next.facts[i]
	f.Status = domain.FactDeleted
	f.UpdatedAt = now
	delete(next.active, factKeyOf(f))
	next.corrections = append(next.corrections, domain.FactCorrection{
		ID:             uuid.New(),
		FactID:         id,
		CorrectionType: domain.CorrectionRetraction,
		Reason:         reason,
		Actor:          actor,
		CreatedAt:      now,
	})

	s.snap.Store(next)
	return nil
}

func (s *FactStore) History(ctx context.Context, tenantID uuid.UUID, scope domain.Scope, key string) ([]domain.Fact, error) {
	snap := s.snap.Load()
	var out []domain.Fact
	for i := len(snap.facts) - 1; i >= 0; i-- {
		f := &snap.facts[i]
		if f.TenantID == tenantID && f.FactKey == key && f.Scope() == scope {
			out = append(out, *f)
		}
	}
	if len(out) == 0 {
		return nil, store.ErrNotFound
	}
	return out, nil
}

func (s *FactStore) Corrections(ctx context.Context, tenantID uuid.UUID, factID uuid.UUID) ([]domain.FactCorrection, error) {
	snap := s.snap.Load()
	i, ok := snap.index[factID]
	if !ok || snap.facts[i].TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	var out []domain.FactCorrection
	for _, c := range snap.corrections {
		if c.FactID == factID || (c.NewFactID != nil && *c.NewFactID == factID) {
			out = append(out, c)
		}
	}
	return out, nil
}
