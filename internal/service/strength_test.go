package service

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/Harshitk-cp/tenet/internal/domain"
	"github.com/Harshitk-cp/tenet/internal/metrics"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeStrength(t *testing.T) {
	tests := []struct {
		name   string
		old    float64
		signal domain.Signal
		weight float64
		mult   float64
		want   float64
	}{
		{"success competence", 0.76, domain.SignalPositive, 1.0, 1.0, 0.91},
		{"moral failure clamps to zero", 0.85, domain.SignalNegative, 1.0, 10.0, 0.0},
		{"success clamps to one", 0.95, domain.SignalPositive, 2.0, 3.0, 1.0},
		{"neutral keeps strength", 0.5, domain.SignalNeutral, 2.0, 1.0, 0.5},
		{"identity multiplier keeps strength", 0.3, domain.SignalNegative, 1.0, 0, 0.3},
		{"hard failure", 0.5, domain.SignalNegative, 2.0, 1.0, 0.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeStrength(tt.old, tt.signal, tt.weight, tt.mult, DefaultLearningRate)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestUpdateConfig_Multiplier(t *testing.T) {
	cfg := DefaultUpdateConfig()
	assert.Equal(t, 3.0, cfg.Multiplier(domain.CategoryMoral, domain.SignalPositive))
	assert.Equal(t, 10.0, cfg.Multiplier(domain.CategoryMoral, domain.SignalNegative))
	assert.Equal(t, 0.0, cfg.Multiplier(domain.CategoryIdentity, domain.SignalPositive))
	assert.Equal(t, 1.0, cfg.Multiplier("unknown", domain.SignalNegative))

	cfg.Multipliers[domain.CategoryIdentity] = CategoryMultiplier{Success: 5, Failure: 5}
	assert.Equal(t, 0.0, cfg.Multiplier(domain.CategoryIdentity, domain.SignalNegative))
}

func TestUpdateEngine_CompetenceSuccessAddsLearningRate(t *testing.T) {
	f := newEngineFixture(t)
	b := f.addBelief(t, "invoice.approval", orgScope("acme"), domain.CategoryCompetence, 0.76)

	res, err := f.engine.Apply(context.Background(), f.event(b.ID, domain.SignalPositive, 1.0))
	require.NoError(t, err)

	assert.InDelta(t, 0.91, res.Target().New, 1e-9)
	assert.InDelta(t, 0.91, f.strength(t, b.ID), 1e-9)
	assert.Equal(t, 1, f.metrics.updates[metrics.ResultApplied])
}

func TestUpdateEngine_MoralFailureClampsToZero(t *testing.T) {
	f := newEngineFixture(t)
	b := f.addBelief(t, "no.backdating", domain.GlobalScope(), domain.CategoryMoral, 0.85)

	res, err := f.engine.Apply(context.Background(), f.event(b.ID, domain.SignalNegative, 1.0))
	require.NoError(t, err)

	assert.Equal(t, 0.0, res.Target().New)
	assert.Equal(t, 0.0, f.strength(t, b.ID))
}

func TestUpdateEngine_StrengthStaysBounded(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	categories := []domain.Category{
		domain.CategoryCompetence, domain.CategoryMoral, domain.CategoryPreference,
		domain.CategoryProcedural, domain.CategoryRelational,
	}
	var ids []uuid.UUID
	for i, cat := range categories {
		b := f.addBelief(t, string(cat), orgScope("acme"), cat, rng.Float64())
		ids = append(ids, b.ID)
		if i > 0 {
			require.NoError(t, f.beliefs.AddSupport(ctx, f.tenant.TenantID, ids[i-1], b.ID))
		}
	}

	signals := []domain.Signal{domain.SignalNegative, domain.SignalNeutral, domain.SignalPositive}
	for i := 0; i < 500; i++ {
		id := ids[rng.Intn(len(ids))]
		weight := 0.5 + rng.Float64()*1.5
		_, err := f.engine.Apply(ctx, f.event(id, signals[rng.Intn(3)], weight))
		require.NoError(t, err)

		for _, id := range ids {
			s := f.strength(t, id)
			if s < 0 || s > 1 {
				t.Fatalf("strength %v out of bounds after %d updates", s, i+1)
			}
		}
	}
}

func TestUpdateEngine_InertBeliefsNeverMove(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	identity := f.addBelief(t, "we.are.careful", orgScope("acme"), domain.CategoryIdentity, 0.6)
	immutable := &domain.Belief{
		TenantID:  f.tenant.TenantID,
		Key:       "never.pay.unapproved",
		ScopeType: domain.ScopeGlobal,
		ScopeID:   domain.GlobalScopeID,
		Category:  domain.CategoryCompetence,
		Strength:  0.9,
		Immutable: true,
	}
	require.NoError(t, f.beliefs.Create(ctx, immutable))

	for i := 0; i < 20; i++ {
		signal := domain.SignalPositive
		if i%2 == 0 {
			signal = domain.SignalNegative
		}
		res, err := f.engine.Apply(ctx, f.event(identity.ID, signal, 2.0))
		require.NoError(t, err)
		assert.Equal(t, SkipIdentity, res.Target().Skipped)

		res, err = f.engine.Apply(ctx, f.event(immutable.ID, signal, 2.0))
		require.NoError(t, err)
		assert.Equal(t, SkipImmutable, res.Target().Skipped)
	}

	assert.Equal(t, 0.6, f.strength(t, identity.ID))
	assert.Equal(t, 0.9, f.strength(t, immutable.ID))
	assert.Equal(t, 40, f.metrics.updates[metrics.ResultSkipped])
	assert.Zero(t, f.metrics.updates[metrics.ResultApplied])
}

func TestUpdateEngine_Cascade(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	a := f.addBelief(t, "a", orgScope("acme"), domain.CategoryCompetence, 0.5)
	b := f.addBelief(t, "b", orgScope("acme"), domain.CategoryCompetence, 0.5)
	c := f.addBelief(t, "c", orgScope("acme"), domain.CategoryCompetence, 0.5)
	require.NoError(t, f.beliefs.AddSupport(ctx, f.tenant.TenantID, a.ID, b.ID))
	require.NoError(t, f.beliefs.AddSupport(ctx, f.tenant.TenantID, b.ID, c.ID))

	res, err := f.engine.Apply(ctx, f.event(a.ID, domain.SignalPositive, 1.0))
	require.NoError(t, err)
	require.Len(t, res.Changes, 2)

	assert.InDelta(t, 0.65, f.strength(t, a.ID), 1e-9)
	assert.InDelta(t, 0.5+0.15*0.3, f.strength(t, b.ID), 1e-9)
	assert.Equal(t, 0.5, f.strength(t, c.ID), "default cascade stops after one hop")
	assert.Equal(t, 1, f.metrics.cascades)
}

func TestUpdateEngine_CascadeDepthConfigurable(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	cfg := DefaultUpdateConfig()
	cfg.CascadeDepth = 2
	engine := NewUpdateEngine(f.beliefs, cfg, nil, testNopLogger())

	a := f.addBelief(t, "a", orgScope("acme"), domain.CategoryCompetence, 0.5)
	b := f.addBelief(t, "b", orgScope("acme"), domain.CategoryCompetence, 0.5)
	c := f.addBelief(t, "c", orgScope("acme"), domain.CategoryCompetence, 0.5)
	require.NoError(t, f.beliefs.AddSupport(ctx, f.tenant.TenantID, a.ID, b.ID))
	require.NoError(t, f.beliefs.AddSupport(ctx, f.tenant.TenantID, b.ID, c.ID))
	require.NoError(t, f.beliefs.AddSupport(ctx, f.tenant.TenantID, a.ID, c.ID))

	res, err := engine.Apply(ctx, f.event(a.ID, domain.SignalNegative, 1.0))
	require.NoError(t, err)
	require.Len(t, res.Changes, 3)

	// c is reached at hop 1 through the direct edge and is not revisited.
	assert.InDelta(t, 0.5-0.15*0.3, f.strength(t, c.ID), 1e-9)
	assert.InDelta(t, 0.5-0.15*0.3, f.strength(t, b.ID), 1e-9)
}

func TestUpdateEngine_InertRootDoesNotCascade(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	root := f.addBelief(t, "identity", orgScope("acme"), domain.CategoryIdentity, 0.5)
	child := f.addBelief(t, "child", orgScope("acme"), domain.CategoryCompetence, 0.5)
	require.NoError(t, f.beliefs.AddSupport(ctx, f.tenant.TenantID, root.ID, child.ID))

	res, err := f.engine.Apply(ctx, f.event(root.ID, domain.SignalPositive, 1.0))
	require.NoError(t, err)
	assert.Len(t, res.Changes, 1)
	assert.Equal(t, 0.5, f.strength(t, child.ID))
}

func TestUpdateEngine_InertCascadeTargetIsSkipped(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	root := f.addBelief(t, "root", orgScope("acme"), domain.CategoryCompetence, 0.5)
	identity := f.addBelief(t, "identity", orgScope("acme"), domain.CategoryIdentity, 0.5)
	require.NoError(t, f.beliefs.AddSupport(ctx, f.tenant.TenantID, root.ID, identity.ID))

	res, err := f.engine.Apply(ctx, f.event(root.ID, domain.SignalPositive, 1.0))
	require.NoError(t, err)
	require.Len(t, res.Changes, 2)
	assert.Equal(t, SkipIdentity, res.Changes[1].Skipped)
	assert.Equal(t, 0.5, f.strength(t, identity.ID))
}

func TestUpdateEngine_Errors(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	b := f.addBelief(t, "k", orgScope("acme"), domain.CategoryCompetence, 0.5)

	_, err := f.engine.Apply(ctx, f.event(uuid.New(), domain.SignalPositive, 1.0))
	if !errors.Is(err, ErrBeliefNotFound) {
		t.Fatalf("expected ErrBeliefNotFound, got %v", err)
	}

	_, err = f.engine.Apply(ctx, f.event(b.ID, domain.Signal(2), 1.0))
	if !errors.Is(err, ErrInvalidSignal) {
		t.Fatalf("expected ErrInvalidSignal, got %v", err)
	}

	_, err = f.engine.Apply(ctx, f.event(b.ID, domain.SignalPositive, 3.0))
	if !errors.Is(err, ErrInvalidDifficulty) {
		t.Fatalf("expected ErrInvalidDifficulty, got %v", err)
	}

	// Another tenant cannot reach the belief.
	ev := f.event(b.ID, domain.SignalPositive, 1.0)
	ev.Tenant.TenantID = uuid.New()
	_, err = f.engine.Apply(ctx, ev)
	if !errors.Is(err, ErrBeliefNotFound) {
		t.Fatalf("expected ErrBeliefNotFound for foreign tenant, got %v", err)
	}
	assert.Equal(t, 0.5, f.strength(t, b.ID))
}

func TestUpdateEngine_NeutralSignalSkips(t *testing.T) {
	f := newEngineFixture(t)
	b := f.addBelief(t, "k", orgScope("acme"), domain.CategoryCompetence, 0.5)

	res, err := f.engine.Apply(context.Background(), f.event(b.ID, domain.SignalNeutral, 0))
	require.NoError(t, err)
	assert.Equal(t, SkipNeutral, res.Target().Skipped)
	assert.Equal(t, 0.5, f.strength(t, b.ID))
}

func TestNewManualUpdateEvent(t *testing.T) {
	tenant := domain.TenantKey{TenantID: uuid.New(), OrgID: "acme"}
	id := uuid.New()

	ev := NewManualUpdateEvent(tenant, id, domain.SignalPositive, domain.DifficultyExpert)
	assert.Equal(t, 2.0, ev.DifficultyWeight)
	assert.NotEqual(t, uuid.Nil, ev.ID)

	ev = NewManualUpdateEvent(tenant, id, domain.SignalNegative, domain.DifficultyExpert)
	assert.Equal(t, 0.5, ev.DifficultyWeight)
}
