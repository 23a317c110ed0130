package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Harshitk-cp/tenet/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type machineFixture struct {
	machine *VerificationMachine
	sink    *recordingSink
	metrics *countingCollector
	delays  []time.Duration
}

func newMachineFixture(cfg VerificationConfig) *machineFixture {
	f := &machineFixture{sink: &recordingSink{}, metrics: &countingCollector{}}
	f.machine = NewVerificationMachine(cfg, f.sink, f.metrics, testNopLogger())
	f.machine.sleep = func(ctx context.Context, d time.Duration) error {
		f.delays = append(f.delays, d)
		return ctx.Err()
	}
	return f
}

func testUnit() domain.WorkUnit {
	return domain.WorkUnit{
		ID:            uuid.New(),
		Tenant:        domain.TenantKey{TenantID: uuid.New(), OrgID: "acme"},
		CapabilityKey: "ledger.post",
		UserID:        "u1",
		Args:          map[string]any{"amount": 120.0, "vendor": "globex"},
		Difficulty:    domain.DifficultyNormal,
	}
}

func errorResponse(strategy domain.RetryStrategy) *domain.CapabilityResponse {
	return &domain.CapabilityResponse{
		Status:        domain.CapabilityError,
		ErrorCode:     "upstream",
		ErrorMessage:  "request rejected",
		RetryStrategy: strategy,
	}
}

func countTransitions(o *domain.ExecutionOutcome, to domain.VerificationState) int {
	n := 0
	for _, tr := range o.Transitions {
		if tr.To == to {
			n++
		}
	}
	return n
}

func TestVerificationMachine_HumanInterventionEscalatesWithoutRetry(t *testing.T) {
	f := newMachineFixture(DefaultVerificationConfig())
	task := VerificationTask{
		Unit:         testUnit(),
		AttemptCount: 1,
		Response:     errorResponse(domain.RetryHumanIntervention),
	}

	o := f.machine.Run(context.Background(), task)

	assert.Equal(t, domain.StateEscalated, o.State)
	assert.Equal(t, domain.ReasonEscalationRequired, o.Reason)
	assert.Equal(t, 1, o.AttemptCount)
	assert.Zero(t, countTransitions(o, domain.StateRetry))
	assert.True(t, o.Final)

	require.Equal(t, 1, f.sink.count())
	esc := f.sink.items[0]
	assert.Equal(t, "execution_status", esc.Validator)
	assert.Equal(t, 0.8, esc.Severity)
	assert.NotEmpty(t, esc.FixHint)
	assert.Equal(t, "ledger.post", esc.Capability)
	assert.Equal(t, 1, esc.AttemptCount)
	assert.Same(t, esc, o.Escalation)
}

func TestVerificationMachine_ValidatorRequestsEscalation(t *testing.T) {
	f := newMachineFixture(DefaultVerificationConfig())
	hint := "ask the controller to approve"
	task := VerificationTask{
		Unit:     testUnit(),
		Response: &domain.CapabilityResponse{Status: domain.CapabilitySuccess},
		Validators: []Validator{ValidatorFunc{
			ValidatorName: "approval",
			Fn: func(context.Context, *Attempt) domain.ValidationResult {
				return domain.ValidationResult{Severity: 0.8, Message: "needs approval", FixHint: &hint, Retry: domain.RetryClassEscalate}
			},
		}},
	}

	o := f.machine.Run(context.Background(), task)
	assert.Equal(t, domain.StateEscalated, o.State)
	assert.Equal(t, 0, o.AttemptCount)
	assert.Equal(t, domain.OutcomePartial, o.Status)
	assert.Equal(t, hint, o.Escalation.FixHint)
	assert.Equal(t, "approval", o.Escalation.Validator)
}

func TestVerificationMachine_MildFailureAtBudgetFails(t *testing.T) {
	f := newMachineFixture(DefaultVerificationConfig())
	task := VerificationTask{
		Unit:         testUnit(),
		AttemptCount: 3,
		Response:     errorResponse(domain.RetryBackoff),
	}

	o := f.machine.Run(context.Background(), task)

	assert.Equal(t, domain.StateFailed, o.State)
	assert.Equal(t, domain.ReasonBudgetExhausted, o.Reason)
	assert.Equal(t, 3, o.AttemptCount)
	assert.Zero(t, countTransitions(o, domain.StateRetry))
	assert.Zero(t, f.sink.count())
	assert.Nil(t, o.Escalation)
}

func TestVerificationMachine_RetryBound(t *testing.T) {
	f := newMachineFixture(DefaultVerificationConfig())
	calls := 0
	task := VerificationTask{
		Unit: testUnit(),
		Execute: func(context.Context, int) (*domain.CapabilityResponse, error) {
			calls++
			return errorResponse(domain.RetryBackoff), nil
		},
	}

	o := f.machine.Run(context.Background(), task)

	assert.Equal(t, domain.StateFailed, o.State)
	assert.Equal(t, domain.ReasonBudgetExhausted, o.Reason)
	assert.Equal(t, DefaultMaxRetries, o.AttemptCount)
	assert.Equal(t, DefaultMaxRetries, countTransitions(o, domain.StateRetry))
	assert.Equal(t, DefaultMaxRetries+1, calls)
	assert.Equal(t, DefaultMaxRetries, f.metrics.retries)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}, f.delays)
}

func TestVerificationMachine_ExhaustedSevereFailureEscalates(t *testing.T) {
	cfg := DefaultVerificationConfig()
	cfg.SeverityOverrides = map[string]float64{"execution_status": 0.9}
	f := newMachineFixture(cfg)
	task := VerificationTask{Unit: testUnit(), Response: errorResponse(domain.RetryBackoff)}

	o := f.machine.Run(context.Background(), task)

	assert.Equal(t, domain.StateEscalated, o.State)
	assert.Equal(t, domain.ReasonBudgetExhausted, o.Reason)
	assert.Equal(t, 3, o.AttemptCount)
	assert.Equal(t, 1, f.sink.count())
	assert.Equal(t, 1, f.metrics.escalations[string(domain.ReasonBudgetExhausted)])
}

func TestVerificationMachine_NonRetryableBelowFloorFails(t *testing.T) {
	f := newMachineFixture(DefaultVerificationConfig())
	task := VerificationTask{Unit: testUnit(), Response: errorResponse(domain.RetryNone)}

	o := f.machine.Run(context.Background(), task)

	assert.Equal(t, domain.StateFailed, o.State)
	assert.Equal(t, domain.ReasonNonRetryable, o.Reason)
	assert.Zero(t, o.AttemptCount)
}

func TestVerificationMachine_NonRetryableAboveFloorEscalates(t *testing.T) {
	f := newMachineFixture(DefaultVerificationConfig())
	task := VerificationTask{
		Unit: testUnit(),
		Response: &domain.CapabilityResponse{
			Status:  domain.CapabilitySuccess,
			Outputs: map[string]any{"debit": 100.0, "credit": 90.0},
		},
		Validators: []Validator{Balance{DebitField: "debit", CreditField: "credit", Tolerance: 0.01}},
	}

	o := f.machine.Run(context.Background(), task)

	assert.Equal(t, domain.StateEscalated, o.State)
	assert.Equal(t, domain.ReasonNonRetryable, o.Reason)
	assert.Equal(t, domain.OutcomePartial, o.Status)
	assert.Equal(t, "balance", o.Escalation.Validator)
}

func TestVerificationMachine_RecoversAfterTransientError(t *testing.T) {
	f := newMachineFixture(DefaultVerificationConfig())
	calls := 0
	task := VerificationTask{
		Unit: testUnit(),
		Execute: func(_ context.Context, attempt int) (*domain.CapabilityResponse, error) {
			calls++
			if attempt == 0 {
				return nil, errors.New("connection reset")
			}
			return &domain.CapabilityResponse{Status: domain.CapabilitySuccess, Outputs: map[string]any{"id": "je-1"}}, nil
		},
	}

	o := f.machine.Run(context.Background(), task)

	assert.Equal(t, domain.StateSucceeded, o.State)
	assert.Equal(t, domain.OutcomeSuccess, o.Status)
	assert.Equal(t, domain.ReasonAllPassed, o.Reason)
	assert.Equal(t, 1, o.AttemptCount)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "je-1", o.Outputs["id"])

	want := []domain.VerificationState{
		domain.StateValidating, domain.StateRetry, domain.StateValidating, domain.StateSucceeded,
	}
	require.Len(t, o.Transitions, len(want))
	for i, tr := range o.Transitions {
		assert.Equal(t, want[i], tr.To)
	}
	assert.Equal(t, domain.StatePending, o.Transitions[0].From)
}

func TestVerificationMachine_NonRetryableBeatsRetryable(t *testing.T) {
	f := newMachineFixture(DefaultVerificationConfig())
	task := VerificationTask{
		Unit:     testUnit(),
		Response: &domain.CapabilityResponse{Status: domain.CapabilitySuccess, Outputs: map[string]any{}},
		Validators: []Validator{
			RequiredFields{Fields: []string{"entry_id"}, InOutputs: true},
			Authorization{Allowed: func(string, string) bool { return false }},
		},
	}

	o := f.machine.Run(context.Background(), task)

	assert.Equal(t, domain.StateEscalated, o.State)
	assert.Equal(t, domain.ReasonNonRetryable, o.Reason)
	assert.Zero(t, countTransitions(o, domain.StateRetry))
	assert.Equal(t, "authorization", o.Escalation.Validator)
	assert.Len(t, o.Escalation.Results, 2)
}

func TestVerificationMachine_MildNonRetryableFailuresFail(t *testing.T) {
	rule := BusinessRule{
		Rule:     "memo_style",
		Severity: 0.3,
		Check: func(domain.WorkUnit, *domain.CapabilityResponse) (bool, string) {
			return false, "memo should name the period"
		},
	}
	deny := Authorization{Allowed: func(string, string) bool { return false }}

	tests := []struct {
		name      string
		overrides map[string]float64
		validator Validator
	}{
		{"low severity business rule", nil, rule},
		{"authorization overridden below floor", map[string]float64{"authorization": 0.2}, deny},
		{"missing source overridden below floor", map[string]float64{"required_fields": 0.5}, RequiredFields{Fields: []string{"po_number"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultVerificationConfig()
			cfg.SeverityOverrides = tt.overrides
			f := newMachineFixture(cfg)
			task := VerificationTask{
				Unit:       testUnit(),
				Response:   &domain.CapabilityResponse{Status: domain.CapabilitySuccess},
				Validators: []Validator{tt.validator},
			}

			o := f.machine.Run(context.Background(), task)

			assert.Equal(t, domain.StateFailed, o.State)
			assert.Equal(t, domain.ReasonNonRetryable, o.Reason)
			assert.Zero(t, o.AttemptCount)
			assert.Zero(t, countTransitions(o, domain.StateRetry))
			assert.Zero(t, f.sink.count())
			assert.Nil(t, o.Escalation)
		})
	}
}

func TestVerificationMachine_SevereNonRetryableEscalates(t *testing.T) {
	f := newMachineFixture(DefaultVerificationConfig())
	task := VerificationTask{
		Unit:       testUnit(),
		Response:   &domain.CapabilityResponse{Status: domain.CapabilitySuccess},
		Validators: []Validator{Authorization{Allowed: func(string, string) bool { return false }}},
	}

	o := f.machine.Run(context.Background(), task)

	assert.Equal(t, domain.StateEscalated, o.State)
	assert.Equal(t, domain.ReasonNonRetryable, o.Reason)
	assert.Zero(t, o.AttemptCount)
	assert.Equal(t, 0.9, o.Escalation.Severity)
	assert.Equal(t, 1, f.sink.count())
}

func TestVerificationMachine_CancelledDuringBackoff(t *testing.T) {
	f := newMachineFixture(DefaultVerificationConfig())
	ctx, cancel := context.WithCancel(context.Background())
	f.machine.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	task := VerificationTask{Unit: testUnit(), Response: errorResponse(domain.RetryBackoff)}

	o := f.machine.Run(ctx, task)

	assert.Equal(t, domain.StateFailed, o.State)
	assert.Equal(t, domain.ReasonCancelled, o.Reason)
	assert.True(t, o.Cancelled)
	assert.True(t, o.Final)
	assert.Zero(t, f.sink.count())
}

func TestVerificationMachine_CancelledBeforeStart(t *testing.T) {
	f := newMachineFixture(DefaultVerificationConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := f.machine.Run(ctx, VerificationTask{Unit: testUnit()})
	assert.True(t, o.Cancelled)
	assert.Equal(t, domain.StateFailed, o.State)
}

func TestVerificationConfig_Backoff(t *testing.T) {
	cfg := VerificationConfig{BaseDelay: 100 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, cfg.Backoff(0))
	assert.Equal(t, 100*time.Millisecond, cfg.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, cfg.Backoff(2))
	assert.Equal(t, 800*time.Millisecond, cfg.Backoff(4))

	cfg.MaxDelay = 300 * time.Millisecond
	assert.Equal(t, 300*time.Millisecond, cfg.Backoff(4))
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}

func TestVerificationMachine_PanickingValidatorEscalates(t *testing.T) {
	f := newMachineFixture(DefaultVerificationConfig())
	task := VerificationTask{
		Unit:     testUnit(),
		Response: &domain.CapabilityResponse{Status: domain.CapabilitySuccess},
		Validators: []Validator{ValidatorFunc{
			ValidatorName: "lookup",
			Fn: func(context.Context, *Attempt) domain.ValidationResult {
				panic("rate table not loaded")
			},
		}},
	}

	var o *domain.ExecutionOutcome
	require.NotPanics(t, func() { o = f.machine.Run(context.Background(), task) })

	assert.Equal(t, domain.StateEscalated, o.State)
	assert.Equal(t, domain.ReasonNonRetryable, o.Reason)
	assert.Equal(t, "lookup", o.Escalation.Validator)
	assert.Contains(t, o.Escalation.Message, "validator panicked")
}
