package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TenantStore interface {
	Create(ctx context.Context, t *Tenant) error
	GetByAPIKeyHash(ctx context.Context, apiKeyHash string) (*Tenant, error)
}

// BeliefStore owns belief records and support edges.
type BeliefStore interface {
	Create(ctx context.Context, b *Belief) error
	GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*Belief, error)
	GetMany(ctx context.Context, ids []uuid.UUID, tenantID uuid.UUID) ([]Belief, error)
	// ListByScopes returns beliefs in any of scopes; keys filters when non-empty.
	ListByScopes(ctx context.Context, tenantID uuid.UUID, scopes []Scope, keys []string) ([]Belief, error)
	// AddSupport adds the edge from -> to. Edges that would close a cycle are rejected.
	AddSupport(ctx context.Context, tenantID uuid.UUID, from, to uuid.UUID) error
	// ApplyStrengths writes every update or none of them.
	ApplyStrengths(ctx context.Context, tenantID uuid.UUID, updates []StrengthUpdate) error
}

// FactStore owns fact records and their supersession chains.
type FactStore interface {
	Create(ctx context.Context, f *Fact) error
	GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*Fact, error)
	ListActiveByScopes(ctx context.Context, tenantID uuid.UUID, scopes []Scope, keys []string) ([]Fact, error)
	// Replace atomically creates the new fact, supersedes the old one and logs the correction.
	Replace(ctx context.Context, tenantID uuid.UUID, r Replacement) (uuid.UUID, error)
	Delete(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, reason, actor string) error
	// History returns the chain for (scope, key) from newest to oldest.
	History(ctx context.Context, tenantID uuid.UUID, scope Scope, key string) ([]Fact, error)
	Corrections(ctx context.Context, tenantID uuid.UUID, factID uuid.UUID) ([]FactCorrection, error)
}

type MemoryRecordStore interface {
	Create(ctx context.Context, m *MemoryRecord) error
	ListRecentByBelief(ctx context.Context, tenantID uuid.UUID, beliefID uuid.UUID, limit int) ([]MemoryRecord, error)
	UpdateRetention(ctx context.Context, weights map[uuid.UUID]float64) error
	Recall(ctx context.Context, tenantID uuid.UUID, embedding []float32, topK int) ([]MemoryRecordWithScore, error)
	// Prune deletes records created before cutoff whose retention weight
	// is below minWeight, and returns how many were removed.
	Prune(ctx context.Context, cutoff time.Time, minWeight float64) (int64, error)
}

type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Appraiser is the external reasoning endpoint.
type Appraiser interface {
	Appraise(ctx context.Context, req AppraisalRequest) (*Appraisal, error)
}

// CapabilityExecutor is the external capability-execution service.
type CapabilityExecutor interface {
	Execute(ctx context.Context, req CapabilityRequest) (*CapabilityResponse, error)
}
