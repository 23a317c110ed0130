package domain

import (
	"time"

	"github.com/google/uuid"
)

// Signal is the direction of an outcome: -1, 0 or +1.
type Signal int

const (
	SignalNegative Signal = -1
	SignalNeutral  Signal = 0
	SignalPositive Signal = 1
)

func ValidSignal(s int) bool {
	return s >= -1 && s <= 1
}

// SignalForState maps a terminal verification state to an outcome signal.
func SignalForState(s VerificationState) Signal {
	switch s {
	case StateSucceeded:
		return SignalPositive
	case StateFailed, StateEscalated:
		return SignalNegative
	default:
		return SignalNeutral
	}
}

// BeliefUpdateEvent asks the update engine to apply one outcome signal to
// one belief. The feedback recorder is the only producer.
type BeliefUpdateEvent struct {
	ID               uuid.UUID `json:"id"`
	Tenant           TenantKey `json:"tenant"`
	BeliefID         uuid.UUID `json:"belief_id"`
	Signal           Signal    `json:"signal"`
	DifficultyWeight float64   `json:"difficulty_weight"`
	WorkUnitID       uuid.UUID `json:"work_unit_id,omitempty"`
	CompletedAt      time.Time `json:"completed_at"`
}

// MemoryRecord is the weighted audit trail of an outcome. RetentionWeight is
// biased toward the most intense and the most recent outcome of a sequence.
type MemoryRecord struct {
	ID              uuid.UUID         `json:"id"`
	TenantID        uuid.UUID         `json:"tenant_id,omitempty"`
	WorkUnitID      uuid.UUID         `json:"work_unit_id"`
	BeliefIDs       []uuid.UUID       `json:"belief_ids"`
	State           VerificationState `json:"state"`
	Signal          Signal            `json:"signal"`
	Intensity       float64           `json:"intensity"`
	RetentionWeight float64           `json:"retention_weight"`
	Summary         string            `json:"summary"`
	Embedding       []float32         `json:"-"`
	CreatedAt       time.Time         `json:"created_at"`
}

type MemoryRecordWithScore struct {
	MemoryRecord
	Score float32 `json:"score"`
}
