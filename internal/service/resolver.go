package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Harshitk-cp/tenet/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrKeyNotFound   = errors.New("key not found in any applicable scope")
	ErrScopeConflict = errors.New("multiple values for one key in the same scope")
	ErrMountFailed   = errors.New("mount failed: required keys are missing")
	ErrEmptyContext  = errors.New("request context needs an org_id or person_id")
)

// NotFoundError reports a key absent from every scope of a request context.
type NotFoundError struct {
	Key     string
	Context domain.RequestContext
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("key %q not found for org %q person %q", e.Key, e.Context.OrgID, e.Context.PersonID)
}

func (e *NotFoundError) Unwrap() error { return ErrKeyNotFound }

// ScopeConflictError means two active records claim the same key in the
// same scope. It indicates corrupted data and is never resolved silently.
type ScopeConflictError struct {
	Key   string
	Scope domain.Scope
}

func (e *ScopeConflictError) Error() string {
	return fmt.Sprintf("scope conflict for key %q in %s", e.Key, e.Scope)
}

func (e *ScopeConflictError) Unwrap() error { return ErrScopeConflict }

// ScopeResolver builds the narrowest-scope-wins view of beliefs and facts
// for a request. It only reads from the stores.
type ScopeResolver struct {
	beliefs domain.BeliefStore
	facts   domain.FactStore
	logger  *zap.Logger
	now     func() time.Time
}

func NewScopeResolver(beliefs domain.BeliefStore, facts domain.FactStore, logger *zap.Logger) *ScopeResolver {
	return &ScopeResolver{beliefs: beliefs, facts: facts, logger: logger, now: time.Now}
}

type candidate struct {
	rank  int
	value domain.ResolvedValue
}

// Resolve returns the winning value for key. The first scope in
// person, org, industries, global order that holds the key wins outright.
func (r *ScopeResolver) Resolve(ctx context.Context, tenantID uuid.UUID, key string, rc domain.RequestContext) (*domain.ResolvedValue, error) {
	entries, err := r.resolve(ctx, tenantID, rc, []string{key})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, &NotFoundError{Key: key, Context: rc}
	}
	return &entries[0], nil
}

// Mount resolves every key visible to rc and runs the validation ladder:
// a missing must_have key is an error, a missing should_have key a warning,
// and a missing nice_to_have key is ignored. The context and report are
// returned even when the mount fails.
func (r *ScopeResolver) Mount(ctx context.Context, tenantID uuid.UUID, rc domain.RequestContext, req domain.Requirements) (*domain.ResolvedContext, *domain.MountReport, error) {
	if rc.OrgID == "" && rc.PersonID == "" {
		return nil, nil, ErrEmptyContext
	}

	entries, err := r.resolve(ctx, tenantID, rc, nil)
	if err != nil {
		return nil, nil, err
	}
	resolved := domain.NewResolvedContext(rc, entries)

	report := &domain.MountReport{Errors: []string{}, Warnings: []string{}}
	for _, key := range req.MustHave {
		if _, ok := resolved.Get(key); !ok {
			report.Errors = append(report.Errors, fmt.Sprintf("missing required key %q", key))
		}
	}
	for _, key := range req.ShouldHave {
		if _, ok := resolved.Get(key); !ok {
			report.Warnings = append(report.Warnings, fmt.Sprintf("missing recommended key %q", key))
		}
	}

	if !report.OK() {
		r.logger.Warn("mount failed",
			zap.String("org_id", rc.OrgID),
			zap.String("person_id", rc.PersonID),
			zap.Strings("errors", report.Errors),
		)
		return resolved, report, ErrMountFailed
	}
	if len(report.Warnings) > 0 {
		r.logger.Info("mount completed with warnings", zap.Strings("warnings", report.Warnings))
	}
	return resolved, report, nil
}

// FactsForContext returns the winning facts for rc, narrowest scope first,
// truncated to maxFacts when maxFacts > 0.
func (r *ScopeResolver) FactsForContext(ctx context.Context, tenantID uuid.UUID, rc domain.RequestContext, maxFacts int) ([]domain.Fact, error) {
	entries, err := r.resolve(ctx, tenantID, rc, nil)
	if err != nil {
		return nil, err
	}
	var facts []domain.Fact
	for _, e := range entries {
		if e.Fact == nil {
			continue
		}
		facts = append(facts, *e.Fact)
		if maxFacts > 0 && len(facts) == maxFacts {
			break
		}
	}
	return facts, nil
}

func (r *ScopeResolver) resolve(ctx context.Context, tenantID uuid.UUID, rc domain.RequestContext, keys []string) ([]domain.ResolvedValue, error) {
	scopes := rc.Scopes()
	rank := make(map[domain.Scope]int, len(scopes))
	for i, s := range scopes {
		if _, dup := rank[s]; !dup {
			rank[s] = i
		}
	}

	beliefs, err := r.beliefs.ListByScopes(ctx, tenantID, scopes, keys)
	if err != nil {
		return nil, fmt.Errorf("list beliefs: %w", err)
	}
	facts, err := r.facts.ListActiveByScopes(ctx, tenantID, scopes, keys)
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}

	byKey := make(map[string][]candidate)
	for i := range beliefs {
		b := &beliefs[i]
		rk, ok := rank[b.Scope()]
		if !ok {
			continue
		}
		byKey[b.Key] = append(byKey[b.Key], candidate{rank: rk, value: domain.ResolvedValue{
			Key: b.Key, Kind: domain.ValueBelief, Scope: b.Scope(), Belief: b,
		}})
	}
	now := r.now()
	for i := range facts {
		f := &facts[i]
		rk, ok := rank[f.Scope()]
		if !ok || !f.ValidAt(now) {
			continue
		}
		byKey[f.FactKey] = append(byKey[f.FactKey], candidate{rank: rk, value: domain.ResolvedValue{
			Key: f.FactKey, Kind: domain.ValueFact, Scope: f.Scope(), Fact: f,
		}})
	}

	// Only the winning scope is checked for duplicates; a conflict in a
	// shadowed scope cannot change the answer.
	best := make(map[string]candidate, len(byKey))
	for key, cands := range byKey {
		win := cands[0]
		tied := false
		for _, c := range cands[1:] {
			switch {
			case c.rank < win.rank:
				win, tied = c, false
			case c.rank == win.rank:
				tied = true
			}
		}
		if tied {
			r.logger.Error("scope conflict",
				zap.String("key", key),
				zap.String("scope", win.value.Scope.String()),
			)
			return nil, &ScopeConflictError{Key: key, Scope: win.value.Scope}
		}
		best[key] = win
	}

	ordered := make([]candidate, 0, len(best))
	for _, c := range best {
		ordered = append(ordered, c)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].rank != ordered[j].rank {
			return ordered[i].rank < ordered[j].rank
		}
		return ordered[i].value.Key < ordered[j].value.Key
	})

	entries := make([]domain.ResolvedValue, len(ordered))
	for i, c := range ordered {
		entries[i] = c.value
	}
	return entries, nil
}
