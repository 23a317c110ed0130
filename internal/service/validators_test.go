package service

import (
	"context"
	"testing"

	"github.com/Harshitk-cp/tenet/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestExecutionStatus(t *testing.T) {
	v := ExecutionStatus{}
	ctx := context.Background()

	tests := []struct {
		name     string
		attempt  *Attempt
		passed   bool
		retry    domain.RetryClass
		severity float64
	}{
		{"success", &Attempt{Response: &domain.CapabilityResponse{Status: domain.CapabilitySuccess}}, true, "", 0},
		{"backoff", &Attempt{Response: errorResponse(domain.RetryBackoff)}, false, domain.RetryClassRetryable, 0.5},
		{"human", &Attempt{Response: errorResponse(domain.RetryHumanIntervention)}, false, domain.RetryClassEscalate, 0.8},
		{"none", &Attempt{Response: errorResponse(domain.RetryNone)}, false, domain.RetryClassFail, 0.6},
		{"missing strategy", &Attempt{Response: errorResponse("")}, false, domain.RetryClassFail, 0.6},
		{"transport", &Attempt{Err: assert.AnError}, false, domain.RetryClassRetryable, 0.5},
		{"deadline", &Attempt{Err: context.DeadlineExceeded}, false, domain.RetryClassRetryable, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := v.Validate(ctx, tt.attempt)
			assert.Equal(t, tt.passed, r.Passed)
			assert.Equal(t, tt.retry, r.Retry)
			assert.Equal(t, tt.severity, r.Severity)
		})
	}

	r := v.Validate(ctx, &Attempt{Err: context.DeadlineExceeded})
	assert.Equal(t, domain.FailureTiming, r.Kind)
}

func TestRequiredFields(t *testing.T) {
	ctx := context.Background()
	unit := domain.WorkUnit{Args: map[string]any{"vendor": "globex", "memo": ""}}

	r := RequiredFields{Fields: []string{"vendor"}}.Validate(ctx, &Attempt{Unit: unit})
	assert.True(t, r.Passed)

	r = RequiredFields{Fields: []string{"vendor", "memo", "amount"}}.Validate(ctx, &Attempt{Unit: unit})
	assert.False(t, r.Passed)
	assert.Equal(t, domain.FailureMissingSource, r.Kind)
	assert.Equal(t, domain.RetryClassFail, r.Retry)
	assert.Contains(t, r.Message, "memo")
	assert.Contains(t, r.Message, "amount")

	out := RequiredFields{Fields: []string{"entry_id"}, InOutputs: true}
	r = out.Validate(ctx, &Attempt{Response: &domain.CapabilityResponse{Status: domain.CapabilitySuccess}})
	assert.Equal(t, domain.RetryClassRetryable, r.Retry)
	assert.Equal(t, "required_outputs", out.Name())

	r = out.Validate(ctx, &Attempt{Response: errorResponse(domain.RetryNone)})
	assert.True(t, r.Passed, "output checks are skipped when execution failed")
}

func TestAmountBounds(t *testing.T) {
	v := AmountBounds{Field: "amount", Min: 0, Max: 10000}
	ctx := context.Background()
	attempt := func(amount any) *Attempt {
		return &Attempt{Unit: domain.WorkUnit{Args: map[string]any{"amount": amount}}}
	}

	assert.True(t, v.Validate(ctx, attempt(500.0)).Passed)
	assert.True(t, v.Validate(ctx, attempt("750.25")).Passed)
	assert.True(t, v.Validate(ctx, &Attempt{}).Passed)

	r := v.Validate(ctx, attempt(25000))
	assert.Equal(t, domain.FailureBusinessRule, r.Kind)
	assert.Equal(t, 0.8, r.Severity)
	assert.NotNil(t, r.FixHint)

	r = v.Validate(ctx, attempt("lots"))
	assert.Equal(t, domain.FailureFormatting, r.Kind)
	assert.Equal(t, domain.RetryClassRetryable, r.Retry)
}

func TestAuthorizationAndBusinessRule(t *testing.T) {
	ctx := context.Background()
	a := &Attempt{Unit: domain.WorkUnit{UserID: "intern", CapabilityKey: "payments.send"}}

	auth := Authorization{Allowed: func(user, _ string) bool { return user != "intern" }}
	r := auth.Validate(ctx, a)
	assert.Equal(t, domain.FailureAuthorization, r.Kind)
	assert.Equal(t, 0.9, r.Severity)

	rule := BusinessRule{
		Rule: "weekday_only",
		Check: func(domain.WorkUnit, *domain.CapabilityResponse) (bool, string) {
			return false, "payments are not sent on weekends"
		},
	}
	r = rule.Validate(ctx, a)
	assert.Equal(t, "business_rule:weekday_only", rule.Name())
	assert.Equal(t, 0.8, r.Severity)
	assert.Equal(t, domain.RetryClassFail, r.Retry)
	assert.Equal(t, "payments are not sent on weekends", r.Message)
}

func TestBusinessRule_WithoutCheckPasses(t *testing.T) {
	r := BusinessRule{Rule: "unset"}.Validate(context.Background(), &Attempt{Unit: testUnit()})
	assert.True(t, r.Passed)
	assert.Equal(t, "business_rule:unset", r.ValidatorName)
}

func TestBalance(t *testing.T) {
	v := Balance{DebitField: "debit", CreditField: "credit", Tolerance: 0.005}
	ctx := context.Background()
	withOutputs := func(out map[string]any) *Attempt {
		return &Attempt{Response: &domain.CapabilityResponse{Status: domain.CapabilitySuccess, Outputs: out}}
	}

	assert.True(t, v.Validate(ctx, withOutputs(map[string]any{"debit": 10.0, "credit": 10.0})).Passed)
	r := v.Validate(ctx, withOutputs(map[string]any{"debit": 10.0, "credit": 9.0}))
	assert.Equal(t, domain.FailureInconsistent, r.Kind)
	assert.Equal(t, domain.RetryClassFail, r.Retry)

	r = v.Validate(ctx, withOutputs(map[string]any{"debit": 10.0}))
	assert.Equal(t, domain.FailureFetchableData, r.Kind)
}
