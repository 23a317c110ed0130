package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Harshitk-cp/tenet/internal/domain"
	"github.com/Harshitk-cp/tenet/internal/metrics"
	"github.com/Harshitk-cp/tenet/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultLearningRate    = 0.15
	DefaultCascadeDepth    = 1
	DefaultCascadeFraction = 0.3
	MinStrength            = 0.0
	MaxStrength            = 1.0
)

var (
	ErrBeliefNotFound     = errors.New("belief not found")
	ErrInvalidSignal      = errors.New("signal must be -1, 0 or 1")
	ErrInvalidDifficulty  = errors.New("difficulty weight must be within [0.5, 2.0]")
	ErrInvalidUpdateState = errors.New("belief changed to an update-inert state during the update")
)

// Skip reasons reported for beliefs an update did not change.
const (
	SkipImmutable = "immutable"
	SkipIdentity  = "identity"
	SkipNeutral   = "neutral_signal"
)

// CategoryMultiplier scales an update by outcome direction.
type CategoryMultiplier struct {
	Success float64 `json:"success" yaml:"success"`
	Failure float64 `json:"failure" yaml:"failure"`
}

// For returns the multiplier that applies to signal.
func (m CategoryMultiplier) For(signal domain.Signal) float64 {
	if signal < 0 {
		return m.Failure
	}
	return m.Success
}

// DefaultCategoryMultipliers: moral failures cost far more than moral
// successes earn, and identity beliefs never move.
func DefaultCategoryMultipliers() map[domain.Category]CategoryMultiplier {
	return map[domain.Category]CategoryMultiplier{
		domain.CategoryCompetence: {Success: 1.0, Failure: 1.0},
		domain.CategoryMoral:      {Success: 3.0, Failure: 10.0},
		domain.CategoryIdentity:   {Success: 0, Failure: 0},
		domain.CategoryPreference: {Success: 1.0, Failure: 1.0},
		domain.CategoryProcedural: {Success: 1.0, Failure: 1.0},
		domain.CategoryRelational: {Success: 1.0, Failure: 1.0},
	}
}

type UpdateConfig struct {
	LearningRate    float64
	CascadeDepth    int
	CascadeFraction float64
	Multipliers     map[domain.Category]CategoryMultiplier
}

func DefaultUpdateConfig() UpdateConfig {
	return UpdateConfig{
		LearningRate:    DefaultLearningRate,
		CascadeDepth:    DefaultCascadeDepth,
		CascadeFraction: DefaultCascadeFraction,
		Multipliers:     DefaultCategoryMultipliers(),
	}
}

// Multiplier returns the category multiplier for signal. Unknown
// categories update at 1.0 and identity is always 0.
func (c UpdateConfig) Multiplier(category domain.Category, signal domain.Signal) float64 {
	if category == domain.CategoryIdentity {
		return 0
	}
	m, ok := c.Multipliers[category]
	if !ok {
		return 1.0
	}
	return m.For(signal)
}

// ComputeStrength is the bounded update rule:
// clamp(old + alpha*signal*difficulty*multiplier, 0, 1).
func ComputeStrength(old float64, signal domain.Signal, difficultyWeight, multiplier, alpha float64) float64 {
	return clampStrength(old + alpha*float64(signal)*difficultyWeight*multiplier)
}

func clampStrength(s float64) float64 {
	if s < MinStrength {
		return MinStrength
	}
	if s > MaxStrength {
		return MaxStrength
	}
	return s
}

// StrengthChange describes what an update did to one belief. Hop is 0 for
// the target belief and n for beliefs reached through n support edges.
type StrengthChange struct {
	BeliefID uuid.UUID       `json:"belief_id"`
	Key      string          `json:"key"`
	Category domain.Category `json:"category"`
	Hop      int             `json:"hop"`
	Old      float64         `json:"old_strength"`
	New      float64         `json:"new_strength"`
	Skipped  string          `json:"skipped,omitempty"`
}

type UpdateResult struct {
	EventID  uuid.UUID        `json:"event_id"`
	BeliefID uuid.UUID        `json:"belief_id"`
	Changes  []StrengthChange `json:"changes"`
}

// Target returns the change for the belief the event addressed.
func (r *UpdateResult) Target() StrengthChange {
	for _, c := range r.Changes {
		if c.Hop == 0 {
			return c
		}
	}
	return StrengthChange{}
}

// UpdateEngine applies outcome signals to beliefs and cascades a fraction
// of each update along support edges. Every event is written in a single
// ApplyStrengths call, so an event is either fully applied or not at all.
type UpdateEngine struct {
	beliefs domain.BeliefStore
	locks   *keyLocks
	cfg     UpdateConfig
	metrics metrics.Collector
	logger  *zap.Logger
}

func NewUpdateEngine(beliefs domain.BeliefStore, cfg UpdateConfig, m metrics.Collector, logger *zap.Logger) *UpdateEngine {
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = DefaultLearningRate
	}
	if cfg.CascadeDepth < 0 {
		cfg.CascadeDepth = 0
	}
	if cfg.CascadeFraction < 0 || cfg.CascadeFraction > 1 {
		cfg.CascadeFraction = DefaultCascadeFraction
	}
	if cfg.Multipliers == nil {
		cfg.Multipliers = DefaultCategoryMultipliers()
	}
	if m == nil {
		m = metrics.NewNoopCollector()
	}
	return &UpdateEngine{
		beliefs: beliefs,
		locks:   newKeyLocks(),
		cfg:     cfg,
		metrics: m,
		logger:  logger,
	}
}

func (e *UpdateEngine) Config() UpdateConfig {
	return e.cfg
}

type cascadeNode struct {
	id       uuid.UUID
	hop      int
	fraction float64
}

// Apply runs one belief-update event. Updating an immutable or identity
// belief is a no-op reported through StrengthChange.Skipped, not an error.
func (e *UpdateEngine) Apply(ctx context.Context, ev domain.BeliefUpdateEvent) (*UpdateResult, error) {
	if !domain.ValidSignal(int(ev.Signal)) {
		return nil, ErrInvalidSignal
	}
	weight := ev.DifficultyWeight
	if weight == 0 {
		weight = 1.0
	}
	if weight < 0.5 || weight > 2.0 {
		return nil, ErrInvalidDifficulty
	}
	tenantID := ev.Tenant.TenantID

	nodes, err := e.plan(ctx, tenantID, ev.BeliefID)
	if err != nil {
		e.metrics.BeliefUpdate(metrics.ResultError)
		return nil, err
	}

	ids := make([]uuid.UUID, len(nodes))
	for i, n := range nodes {
		ids[i] = n.id
	}
	unlock := e.locks.Lock(ids)
	defer unlock()

	// Re-read under the locks so the update starts from the latest
	// committed strengths.
	current, err := e.beliefs.GetMany(ctx, ids, tenantID)
	if err != nil {
		e.metrics.BeliefUpdate(metrics.ResultError)
		return nil, fmt.Errorf("load beliefs: %w", err)
	}
	byID := make(map[uuid.UUID]domain.Belief, len(current))
	for _, b := range current {
		byID[b.ID] = b
	}
	if _, ok := byID[ev.BeliefID]; !ok {
		e.metrics.BeliefUpdate(metrics.ResultError)
		return nil, ErrBeliefNotFound
	}

	result := &UpdateResult{EventID: ev.ID, BeliefID: ev.BeliefID}
	var writes []domain.StrengthUpdate
	for _, n := range nodes {
		b, ok := byID[n.id]
		if !ok {
			// Removed between planning and locking.
			continue
		}
		change := StrengthChange{
			BeliefID: b.ID,
			Key:      b.Key,
			Category: b.Category,
			Hop:      n.hop,
			Old:      b.Strength,
			New:      b.Strength,
		}
		switch {
		case b.Immutable:
			change.Skipped = SkipImmutable
		case b.Category == domain.CategoryIdentity:
			change.Skipped = SkipIdentity
		case ev.Signal == domain.SignalNeutral:
			change.Skipped = SkipNeutral
		default:
			mult := e.cfg.Multiplier(b.Category, ev.Signal)
			change.New = ComputeStrength(b.Strength, ev.Signal, weight*n.fraction, mult, e.cfg.LearningRate)
			writes = append(writes, domain.StrengthUpdate{BeliefID: b.ID, Strength: change.New})
		}
		result.Changes = append(result.Changes, change)
	}

	if len(writes) > 0 {
		if err := e.beliefs.ApplyStrengths(ctx, tenantID, writes); err != nil {
			e.metrics.BeliefUpdate(metrics.ResultError)
			if errors.Is(err, store.ErrImmutable) {
				return nil, ErrInvalidUpdateState
			}
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrBeliefNotFound
			}
			return nil, fmt.Errorf("apply strengths: %w", err)
		}
	}

	e.report(ev, result)
	return result, nil
}

// plan walks support edges breadth-first from the target up to the
// configured depth. A belief is visited at most once per event, and inert
// beliefs are reported but do not propagate.
func (e *UpdateEngine) plan(ctx context.Context, tenantID, beliefID uuid.UUID) ([]cascadeNode, error) {
	root, err := e.beliefs.GetByID(ctx, beliefID, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrBeliefNotFound
		}
		return nil, fmt.Errorf("load belief: %w", err)
	}

	nodes := []cascadeNode{{id: root.ID, hop: 0, fraction: 1.0}}
	visited := map[uuid.UUID]bool{root.ID: true}
	if root.Inert() {
		return nodes, nil
	}

	frontier := []domain.Belief{*root}
	fraction := 1.0
	for hop := 1; hop <= e.cfg.CascadeDepth && len(frontier) > 0; hop++ {
		fraction *= e.cfg.CascadeFraction
		var next []uuid.UUID
		for _, b := range frontier {
			for _, to := range b.Supports {
				if visited[to] {
					continue
				}
				visited[to] = true
				next = append(next, to)
			}
		}
		if len(next) == 0 {
			break
		}

		supported, err := e.beliefs.GetMany(ctx, next, tenantID)
		if err != nil {
			return nil, fmt.Errorf("load supported beliefs: %w", err)
		}
		frontier = frontier[:0]
		for _, b := range supported {
			nodes = append(nodes, cascadeNode{id: b.ID, hop: hop, fraction: fraction})
			if !b.Inert() {
				frontier = append(frontier, b)
			}
		}
	}
	return nodes, nil
}

func (e *UpdateEngine) report(ev domain.BeliefUpdateEvent, result *UpdateResult) {
	for _, c := range result.Changes {
		fields := []zap.Field{
			zap.String("belief_id", c.BeliefID.String()),
			zap.String("key", c.Key),
			zap.String("category", string(c.Category)),
			zap.Int("hop", c.Hop),
			zap.Int("signal", int(ev.Signal)),
			zap.Float64("old_strength", c.Old),
			zap.Float64("new_strength", c.New),
		}
		if c.Skipped != "" {
			e.metrics.BeliefUpdate(metrics.ResultSkipped)
			e.logger.Info("update_skipped", append(fields, zap.String("reason", c.Skipped))...)
			continue
		}
		e.metrics.BeliefUpdate(metrics.ResultApplied)
		if c.Hop > 0 {
			e.metrics.CascadeUpdate()
		}
		e.logger.Debug("belief updated", fields...)
	}
}

// NewManualUpdateEvent builds an event for an outcome graded outside the
// verification machine, e.g. by an operator through the API.
func NewManualUpdateEvent(tenant domain.TenantKey, beliefID uuid.UUID, signal domain.Signal, difficulty domain.Difficulty) domain.BeliefUpdateEvent {
	return domain.BeliefUpdateEvent{
		ID:               uuid.New(),
		Tenant:           tenant,
		BeliefID:         beliefID,
		Signal:           signal,
		DifficultyWeight: DifficultyWeight(difficulty, signal),
		CompletedAt:      time.Now(),
	}
}
