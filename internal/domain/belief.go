package domain

import (
	"time"

	"github.com/google/uuid"
)

// Category groups beliefs for update weighting.
type Category string

const (
	CategoryCompetence Category = "competence"
	CategoryMoral      Category = "moral"
	CategoryIdentity   Category = "identity"
	CategoryPreference Category = "preference"
	CategoryProcedural Category = "procedural"
	CategoryRelational Category = "relational"
)

func ValidCategory(c string) bool {
	switch Category(c) {
	case CategoryCompetence, CategoryMoral, CategoryIdentity, CategoryPreference,
		CategoryProcedural, CategoryRelational:
		return true
	}
	return false
}

// Belief is a scoped, weighted claim about how to act.
// Strength is always within [0,1]. Supports lists the beliefs that
// receive a cascaded fraction of every update applied to this one.
type Belief struct {
	ID        uuid.UUID   `json:"id"`
	TenantID  uuid.UUID   `json:"tenant_id,omitempty"`
	Key       string      `json:"key"`
	Statement string      `json:"statement"`
	ScopeType ScopeType   `json:"scope_type"`
	ScopeID   string      `json:"scope_id"`
	Category  Category    `json:"category"`
	Strength  float64     `json:"strength"`
	Immutable bool        `json:"immutable"`
	Supports  []uuid.UUID `json:"supports,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (b *Belief) Scope() Scope {
	return Scope{Type: b.ScopeType, ID: b.ScopeID}
}

func (b *Belief) ScopeKey() ScopeKey {
	return ScopeKey{Scope: b.Scope(), Key: b.Key}
}

// Inert reports whether updates can never change this belief's strength.
func (b *Belief) Inert() bool {
	return b.Immutable || b.Category == CategoryIdentity
}

// StrengthUpdate is one element of an all-or-nothing strength write.
type StrengthUpdate struct {
	BeliefID uuid.UUID
	Strength float64
}
