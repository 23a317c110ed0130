package domain

import (
	"time"

	"github.com/google/uuid"
)

type FactStatus string

const (
	FactActive     FactStatus = "active"
	FactSuperseded FactStatus = "superseded"
	FactDeleted    FactStatus = "deleted"
)

// Fact is certain, non-learning knowledge. Facts are never edited in place:
// a correction creates a new fact and supersedes the old one.
type Fact struct {
	ID           uuid.UUID  `json:"id"`
	TenantID     uuid.UUID  `json:"tenant_id,omitempty"`
	FactKey      string     `json:"fact_key"`
	ScopeType    ScopeType  `json:"scope_type"`
	ScopeID      string     `json:"scope_id"`
	Statement    string     `json:"statement"`
	Category     string     `json:"category,omitempty"`
	Status       FactStatus `json:"status"`
	Supersedes   *uuid.UUID `json:"supersedes,omitempty"`
	SupersededBy *uuid.UUID `json:"superseded_by,omitempty"`
	Confidence   float64    `json:"confidence"`
	ValidFrom    *time.Time `json:"valid_from,omitempty"`
	ValidUntil   *time.Time `json:"valid_until,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (f *Fact) Scope() Scope {
	return Scope{Type: f.ScopeType, ID: f.ScopeID}
}

func (f *Fact) ScopeKey() ScopeKey {
	return ScopeKey{Scope: f.Scope(), Key: f.FactKey}
}

// ValidAt reports whether the fact's validity window contains t.
func (f *Fact) ValidAt(t time.Time) bool {
	if f.ValidFrom != nil && t.Before(*f.ValidFrom) {
		return false
	}
	if f.ValidUntil != nil && !t.Before(*f.ValidUntil) {
		return false
	}
	return true
}

type CorrectionType string

const (
	CorrectionFix        CorrectionType = "correction"
	CorrectionUpdate     CorrectionType = "update"
	CorrectionRetraction CorrectionType = "retraction"
)

func ValidCorrectionType(c string) bool {
	switch CorrectionType(c) {
	case CorrectionFix, CorrectionUpdate, CorrectionRetraction:
		return true
	}
	return false
}

// FactCorrection is the audit entry written by every replace or delete.
type FactCorrection struct {
	ID             uuid.UUID      `json:"id"`
	FactID         uuid.UUID      `json:"fact_id"`
	NewFactID      *uuid.UUID     `json:"new_fact_id,omitempty"`
	CorrectionType CorrectionType `json:"correction_type"`
	Reason         string         `json:"reason"`
	Actor          string         `json:"actor"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Replacement describes a replace_fact call.
type Replacement struct {
	OldID          uuid.UUID
	NewStatement   string
	Reason         string
	CorrectionType CorrectionType
	Actor          string
}
