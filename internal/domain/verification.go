package domain

import (
	"time"

	"github.com/google/uuid"
)

// VerificationState is a node in the verification/retry/escalation machine.
type VerificationState string

const (
	StatePending    VerificationState = "pending"
	StateValidating VerificationState = "validating"
	StateRetry      VerificationState = "retry"
	StateSucceeded  VerificationState = "succeeded"
	StateEscalated  VerificationState = "escalated"
	StateFailed     VerificationState = "failed"
)

// IsTerminal returns true for absorbing states.
func (s VerificationState) IsTerminal() bool {
	return s == StateSucceeded || s == StateEscalated || s == StateFailed
}

type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailure OutcomeStatus = "failure"
	OutcomePartial OutcomeStatus = "partial"
)

// OutcomeReason explains why a terminal state was reached.
type OutcomeReason string

const (
	ReasonAllPassed          OutcomeReason = "all_passed"
	ReasonNonRetryable       OutcomeReason = "non_retryable"
	ReasonEscalationRequired OutcomeReason = "escalation_required"
	ReasonBudgetExhausted    OutcomeReason = "budget_exhausted"
	ReasonCancelled          OutcomeReason = "cancelled"
)

// RetryClass decides how the machine treats a failed validation.
type RetryClass string

const (
	RetryClassRetryable RetryClass = "retryable"
	RetryClassEscalate  RetryClass = "escalate"
	RetryClassFail      RetryClass = "fail"
)

// FailureKind names the cause of a validation failure.
type FailureKind string

const (
	FailureAuthorization FailureKind = "authorization"
	FailureBusinessRule  FailureKind = "business_rule"
	FailureMissingSource FailureKind = "missing_source"
	FailureTransient     FailureKind = "transient"
	FailureFetchableData FailureKind = "fetchable_data"
	FailureTiming        FailureKind = "timing"
	FailureFormatting    FailureKind = "formatting"
	FailureInconsistent  FailureKind = "inconsistent"
	FailureExecution     FailureKind = "execution"
)

// DefaultRetryClass maps a failure kind to its retry class.
// Authorization, business-rule and missing-source failures are never retried;
// whether they escalate depends on their severity. Only an explicit request
// for human intervention escalates regardless of severity.
func (k FailureKind) DefaultRetryClass() RetryClass {
	switch k {
	case FailureTransient, FailureFetchableData, FailureTiming, FailureFormatting:
		return RetryClassRetryable
	default:
		return RetryClassFail
	}
}

// ValidationResult is what one validator reports for one attempt.
type ValidationResult struct {
	ValidatorName string      `json:"validator_name"`
	Passed        bool        `json:"passed"`
	Severity      float64     `json:"severity"`
	Message       string      `json:"message,omitempty"`
	FixHint       *string     `json:"fix_hint,omitempty"`
	Kind          FailureKind `json:"kind,omitempty"`
	Retry         RetryClass  `json:"retry,omitempty"`
}

// Difficulty is task metadata that scales belief updates.
type Difficulty string

const (
	DifficultyTrivial Difficulty = "trivial"
	DifficultyEasy    Difficulty = "easy"
	DifficultyNormal  Difficulty = "normal"
	DifficultyHard    Difficulty = "hard"
	DifficultyExpert  Difficulty = "expert"
)

func ValidDifficulty(d string) bool {
	switch Difficulty(d) {
	case DifficultyTrivial, DifficultyEasy, DifficultyNormal, DifficultyHard, DifficultyExpert:
		return true
	}
	return false
}

// Weight maps difficulty into [0.5, 2.0]. Unknown values count as normal.
func (d Difficulty) Weight() float64 {
	switch d {
	case DifficultyTrivial:
		return 0.5
	case DifficultyEasy:
		return 0.75
	case DifficultyHard:
		return 1.5
	case DifficultyExpert:
		return 2.0
	default:
		return 1.0
	}
}

// WorkUnit is one semantic unit of requested execution.
type WorkUnit struct {
	ID            uuid.UUID      `json:"id"`
	Tenant        TenantKey      `json:"tenant"`
	CapabilityKey string         `json:"capability_key"`
	UserID        string         `json:"user_id,omitempty"`
	Args          map[string]any `json:"args,omitempty"`
	Difficulty    Difficulty     `json:"difficulty,omitempty"`
	BeliefIDs     []uuid.UUID    `json:"belief_ids,omitempty"`
}

// Transition records one state change for audit.
type Transition struct {
	From    VerificationState `json:"from"`
	To      VerificationState `json:"to"`
	Attempt int               `json:"attempt"`
	At      time.Time         `json:"at"`
}

// ExecutionOutcome is owned by the verification machine for one task and
// handed to the feedback recorder exactly once.
type ExecutionOutcome struct {
	WorkUnitID       uuid.UUID          `json:"work_unit_id"`
	Status           OutcomeStatus      `json:"status"`
	State            VerificationState  `json:"state"`
	Reason           OutcomeReason      `json:"reason"`
	ValidatorResults []ValidationResult `json:"validator_results"`
	AttemptCount     int                `json:"attempt_count"`
	Final            bool               `json:"final"`
	Cancelled        bool               `json:"cancelled,omitempty"`
	Difficulty       Difficulty         `json:"difficulty,omitempty"`
	Outputs          map[string]any     `json:"outputs,omitempty"`
	Transitions      []Transition       `json:"transitions,omitempty"`
	Escalation       *Escalation        `json:"escalation,omitempty"`
	CompletedAt      time.Time          `json:"completed_at"`
}

// Failures returns the failed validation results of the last attempt.
func (o *ExecutionOutcome) Failures() []ValidationResult {
	var out []ValidationResult
	for _, r := range o.ValidatorResults {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// MaxSeverity is the highest severity among failed results.
func (o *ExecutionOutcome) MaxSeverity() float64 {
	var max float64
	for _, r := range o.ValidatorResults {
		if !r.Passed && r.Severity > max {
			max = r.Severity
		}
	}
	return max
}

// Escalation is the payload routed to a human reviewer. It carries enough
// detail to act without re-deriving context.
type Escalation struct {
	ID           uuid.UUID          `json:"id"`
	WorkUnitID   uuid.UUID          `json:"work_unit_id"`
	Tenant       TenantKey          `json:"tenant"`
	Capability   string             `json:"capability_key"`
	Validator    string             `json:"validator"`
	Message      string             `json:"message"`
	FixHint      string             `json:"fix_hint,omitempty"`
	Severity     float64            `json:"severity"`
	Reason       OutcomeReason      `json:"reason"`
	AttemptCount int                `json:"attempt_count"`
	Results      []ValidationResult `json:"results"`
	CreatedAt    time.Time          `json:"created_at"`
}

// RetryStrategy is reported by the capability-execution service on error.
type RetryStrategy string

const (
	RetryNone              RetryStrategy = "none"
	RetryBackoff           RetryStrategy = "backoff"
	RetryHumanIntervention RetryStrategy = "human_intervention"
)

// RetryClass maps the service's retry strategy onto the machine's classes.
func (s RetryStrategy) RetryClass() RetryClass {
	switch s {
	case RetryBackoff:
		return RetryClassRetryable
	case RetryHumanIntervention:
		return RetryClassEscalate
	default:
		return RetryClassFail
	}
}

type CapabilityRequest struct {
	CapabilityKey string         `json:"capability_key"`
	OrgID         string         `json:"org_id"`
	UserID        string         `json:"user_id"`
	Args          map[string]any `json:"args,omitempty"`
}

type CapabilityStatus string

const (
	CapabilitySuccess CapabilityStatus = "success"
	CapabilityError   CapabilityStatus = "error"
)

type CapabilityResponse struct {
	Status        CapabilityStatus `json:"status"`
	Outputs       map[string]any   `json:"outputs,omitempty"`
	ErrorCode     string           `json:"error_code,omitempty"`
	ErrorMessage  string           `json:"error_message,omitempty"`
	RetryStrategy RetryStrategy    `json:"retry_strategy,omitempty"`
}
