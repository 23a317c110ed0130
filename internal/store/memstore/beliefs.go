// Package memstore is the in-process backend for beliefs, facts and memory
// records. Readers load an immutable snapshot through an atomic pointer and
// never take a lock; writers serialize on a mutex, build the next snapshot
// and publish it in one swap, so a write is either fully visible or not at all.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Harshitk-cp/tenet/internal/domain"
	"github.com/Harshitk-cp/tenet/internal/store"
	"github.com/google/uuid"
)

type beliefKey struct {
	tenant uuid.UUID
	scope  domain.Scope
	key    string
}

// beliefSnapshot is one tenant's arena of beliefs plus adjacency lists of
// arena indices. Snapshots are never mutated after publication.
type beliefSnapshot struct {
	beliefs  []domain.Belief
	supports [][]int
	index    map[uuid.UUID]int
	byKey    map[beliefKey]int
}

func emptyBeliefSnapshot() *beliefSnapshot {
	return &beliefSnapshot{
		index: make(map[uuid.UUID]int),
		byKey: make(map[beliefKey]int),
	}
}

// withRows copies the rows and shares the lookup maps. Only writers that
// leave the set of beliefs unchanged may use it.
func (s *beliefSnapshot) withRows() *beliefSnapshot {
	next := &beliefSnapshot{
		beliefs:  make([]domain.Belief, len(s.beliefs)),
		supports: make([][]int, len(s.supports)),
		index:    s.index,
		byKey:    s.byKey,
	}
	copy(next.beliefs, s.beliefs)
	// Adjacency rows are shared until a writer replaces one.
	copy(next.supports, s.supports)
	return next
}

// grow copies rows and lookup maps with room for one more belief.
func (s *beliefSnapshot) grow() *beliefSnapshot {
	next := &beliefSnapshot{
		beliefs:  make([]domain.Belief, len(s.beliefs), len(s.beliefs)+1),
		supports: make([][]int, len(s.supports), len(s.supports)+1),
		index:    make(map[uuid.UUID]int, len(s.index)+1),
		byKey:    make(map[beliefKey]int, len(s.byKey)+1),
	}
	copy(next.beliefs, s.beliefs)
	copy(next.supports, s.supports)
	for k, v := range s.index {
		next.index[k] = v
	}
	for k, v := range s.byKey {
		next.byKey[k] = v
	}
	return next
}

// materialize returns a caller-owned copy with Supports filled from the adjacency list.
func (s *beliefSnapshot) materialize(i int) domain.Belief {
	b := s.beliefs[i]
	if len(s.supports[i]) > 0 {
		b.Supports = make([]uuid.UUID, len(s.supports[i]))
		for j, target := range s.supports[i] {
			b.Supports[j] = s.beliefs[target].ID
		}
	}
	return b
}

// reaches reports whether dst is reachable from src along support edges.
func (s *beliefSnapshot) reaches(src, dst int) bool {
	visited := make([]bool, len(s.beliefs))
	stack := []int{src}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == dst {
			return true
		}
		if visited[n] {
			continue
		}
		visited[n] = true
		stack = append(stack, s.supports[n]...)
	}
	return false
}

// BeliefStore keeps one snapshot per tenant, so a write copies only the
// writing tenant's beliefs.
type BeliefStore struct {
	mu      sync.Mutex
	tenants sync.Map // uuid.UUID -> *atomic.Pointer[beliefSnapshot]
	now     func() time.Time
}

func NewBeliefStore() *BeliefStore {
	return &BeliefStore{now: time.Now}
}

var noBeliefs = emptyBeliefSnapshot()

// load returns the tenant's current snapshot; unknown tenants see an empty one.
func (s *BeliefStore) load(tenantID uuid.UUID) *beliefSnapshot {
	p, ok := s.tenants.Load(tenantID)
	if !ok {
		return noBeliefs
	}
	return p.(*atomic.Pointer[beliefSnapshot]).Load()
}

// publish must be called with mu held.
func (s *BeliefStore) publish(tenantID uuid.UUID, next *beliefSnapshot) {
	p, ok := s.tenants.Load(tenantID)
	if !ok {
		p, _ = s.tenants.LoadOrStore(tenantID, new(atomic.Pointer[beliefSnapshot]))
	}
	p.(*atomic.Pointer[beliefSnapshot]).Store(next)
}

func (s *BeliefStore) Create(ctx context.Context, b *domain.Belief) error {
	if b.Key == "" || !b.Scope().Valid() {
		return fmt.Errorf("%w: belief needs a key and a valid scope", store.ErrInvalid)
	}
	if b.Strength < 0 || b.Strength > 1 {
		return fmt.Errorf("%w: strength %v outside [0,1]", store.ErrInvalid, b.Strength)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.load(b.TenantID)
	bk := beliefKey{tenant: b.TenantID, scope: b.Scope(), key: b.Key}
	if _, exists := cur.byKey[bk]; exists {
		return store.ErrConflict
	}

	next := cur.grow()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	now := s.now()
	b.CreatedAt = now
	b.UpdatedAt = now

	idx := len(next.beliefs)
	rec := *b
	rec.Supports = nil
	next.beliefs = append(next.beliefs, rec)
	next.supports = append(next.supports, nil)
	next.index[b.ID] = idx
	next.byKey[bk] = idx

	for _, target := range b.Supports {
		ti, ok := next.index[target]
		if !ok {
			return fmt.Errorf("support target %s: %w", target, store.ErrNotFound)
		}
		if ti == idx {
			return store.ErrCycle
		}
		if slices.Contains(next.supports[idx], ti) {
			continue
		}
		next.supports[idx] = append(next.supports[idx], ti)
	}

	s.publish(b.TenantID, next)
	return nil
}

func (s *BeliefStore) GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*domain.Belief, error) {
	snap := s.load(tenantID)
	i, ok := snap.index[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	b := snap.materialize(i)
	return &b, nil
}

func (s *BeliefStore) GetMany(ctx context.Context, ids []uuid.UUID, tenantID uuid.UUID) ([]domain.Belief, error) {
	snap := s.load(tenantID)
	out := make([]domain.Belief, 0, len(ids))
	for _, id := range ids {
		i, ok := snap.index[id]
		if !ok {
			return nil, fmt.Errorf("belief %s: %w", id, store.ErrNotFound)
		}
		out = append(out, snap.materialize(i))
	}
	return out, nil
}

func (s *BeliefStore) ListByScopes(ctx context.Context, tenantID uuid.UUID, scopes []domain.Scope, keys []string) ([]domain.Belief, error) {
	snap := s.load(tenantID)
	var out []domain.Belief
	if len(keys) > 0 {
		for _, sc := range scopes {
			for _, k := range keys {
				if i, ok := snap.byKey[beliefKey{tenant: tenantID, scope: sc, key: k}]; ok {
					out = append(out, snap.materialize(i))
				}
			}
		}
		return out, nil
	}

	wanted := make(map[domain.Scope]bool, len(scopes))
	for _, sc := range scopes {
		wanted[sc] = true
	}
	for i := range snap.beliefs {
		if wanted[snap.beliefs[i].Scope()] {
			out = append(out, snap.materialize(i))
		}
	}
	return out, nil
}

func (s *BeliefStore) AddSupport(ctx context.Context, tenantID uuid.UUID, from, to uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.load(tenantID)
	fi, ok := cur.index[from]
	if !ok {
		return fmt.Errorf("belief %s: %w", from, store.ErrNotFound)
	}
	ti, ok := cur.index[to]
	if !ok {
		return fmt.Errorf("belief %s: %w", to, store.ErrNotFound)
	}
	if slices.Contains(cur.supports[fi], ti) {
		return nil
	}
	if fi == ti || cur.reaches(ti, fi) {
		return store.ErrCycle
	}

	next := cur.withRows()
	row := make([]int, len(cur.supports[fi]), len(cur.supports[fi])+1)
	copy(row, cur.supports[fi])
	next.supports[fi] = append(row, ti)
	next.beliefs[fi].UpdatedAt = s.now()
	s.publish(tenantID, next)
	return nil
}

func (s *BeliefStore) ApplyStrengths(ctx context.Context, tenantID uuid.UUID, updates []domain.StrengthUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.load(tenantID)
	for _, u := range updates {
		i, ok := cur.index[u.BeliefID]
		if !ok {
			return fmt.Errorf("belief %s: %w", u.BeliefID, store.ErrNotFound)
		}
		if u.Strength < 0 || u.Strength > 1 {
			return fmt.Errorf("%w: strength %v outside [0,1]", store.ErrInvalid, u.Strength)
		}
		if cur.beliefs[i].Inert() && cur.beliefs[i].Strength != u.Strength {
			return fmt.Errorf("belief %s: %w", u.BeliefID, store.ErrImmutable)
		}
	}

	next := cur.withRows()
	now := s.now()
	for _, u := range updates {
		i := next.index[u.BeliefID]
		next.beliefs[i].Strength = u.Strength
		next.beliefs[i].UpdatedAt = now
	}
	s.publish(tenantID, next)
	return nil
}
