package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/Harshitk-cp/tenet/internal/domain"
)

// Attempt is what validators see for one pass through VALIDATING.
type Attempt struct {
	Unit     domain.WorkUnit
	Number   int
	Response *domain.CapabilityResponse
	Err      error
}

// Outputs returns the capability outputs, or nil when there are none.
func (a *Attempt) Outputs() map[string]any {
	if a.Response == nil {
		return nil
	}
	return a.Response.Outputs
}

type Validator interface {
	Name() string
	Validate(ctx context.Context, a *Attempt) domain.ValidationResult
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc struct {
	ValidatorName string
	Fn            func(ctx context.Context, a *Attempt) domain.ValidationResult
}

func (v ValidatorFunc) Name() string { return v.ValidatorName }

func (v ValidatorFunc) Validate(ctx context.Context, a *Attempt) domain.ValidationResult {
	r := v.Fn(ctx, a)
	r.ValidatorName = v.ValidatorName
	return r
}

func pass(name string) domain.ValidationResult {
	return domain.ValidationResult{ValidatorName: name, Passed: true}
}

func fail(name string, kind domain.FailureKind, severity float64, msg, hint string) domain.ValidationResult {
	r := domain.ValidationResult{
		ValidatorName: name,
		Severity:      severity,
		Message:       msg,
		Kind:          kind,
		Retry:         kind.DefaultRetryClass(),
	}
	if hint != "" {
		r.FixHint = &hint
	}
	return r
}

// Severities reported by ExecutionStatus per retry strategy.
var executionSeverity = map[domain.RetryStrategy]float64{
	domain.RetryBackoff:           0.5,
	domain.RetryHumanIntervention: 0.8,
	domain.RetryNone:              0.6,
}

// ExecutionStatus turns the capability call itself into a validation result.
// An error response is classified by its retry_strategy; a transport error
// is transient unless it was a deadline, which counts as a timing issue.
type ExecutionStatus struct{}

func (ExecutionStatus) Name() string { return "execution_status" }

func (v ExecutionStatus) Validate(_ context.Context, a *Attempt) domain.ValidationResult {
	if a.Err != nil {
		kind := domain.FailureTransient
		if errors.Is(a.Err, context.DeadlineExceeded) {
			kind = domain.FailureTiming
		}
		return fail(v.Name(), kind, 0.5, a.Err.Error(), "retry once the capability service is reachable")
	}
	if a.Response == nil {
		return pass(v.Name())
	}
	if a.Response.Status == domain.CapabilitySuccess {
		return pass(v.Name())
	}

	strategy := a.Response.RetryStrategy
	if strategy == "" {
		strategy = domain.RetryNone
	}
	msg := a.Response.ErrorMessage
	if a.Response.ErrorCode != "" {
		msg = fmt.Sprintf("%s: %s", a.Response.ErrorCode, msg)
	}
	r := fail(v.Name(), domain.FailureExecution, executionSeverity[strategy], msg, "")
	r.Retry = strategy.RetryClass()
	if strategy == domain.RetryHumanIntervention {
		hint := "capability requires manual action before it can be retried"
		r.FixHint = &hint
	}
	return r
}

// RequiredFields fails when any field is absent or empty. Missing args mean
// the source data is missing and cannot be fetched by retrying; missing
// outputs are treated as data that a later attempt may return.
type RequiredFields struct {
	Fields    []string
	InOutputs bool
}

func (v RequiredFields) Name() string {
	if v.InOutputs {
		return "required_outputs"
	}
	return "required_fields"
}

func (v RequiredFields) Validate(_ context.Context, a *Attempt) domain.ValidationResult {
	source := a.Unit.Args
	if v.InOutputs {
		if a.Response == nil || a.Response.Status != domain.CapabilitySuccess {
			return pass(v.Name())
		}
		source = a.Outputs()
	}

	var missing []string
	for _, f := range v.Fields {
		val, ok := source[f]
		if !ok || val == nil || val == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) == 0 {
		return pass(v.Name())
	}

	msg := fmt.Sprintf("missing fields: %v", missing)
	if v.InOutputs {
		return fail(v.Name(), domain.FailureFetchableData, 0.5, msg, "re-fetch the record once it is populated")
	}
	return fail(v.Name(), domain.FailureMissingSource, 0.8, msg, "supply the missing fields in the request")
}

// AmountBounds checks a numeric argument against [Min, Max].
type AmountBounds struct {
	Field string
	Min   float64
	Max   float64
}

func (v AmountBounds) Name() string { return "amount_bounds" }

func (v AmountBounds) Validate(_ context.Context, a *Attempt) domain.ValidationResult {
	raw, ok := a.Unit.Args[v.Field]
	if !ok {
		return pass(v.Name())
	}
	amount, err := toFloat(raw)
	if err != nil {
		return fail(v.Name(), domain.FailureFormatting, 0.4,
			fmt.Sprintf("%s is not a number: %v", v.Field, raw), "send the amount as a number")
	}
	if amount < v.Min || amount > v.Max {
		return fail(v.Name(), domain.FailureBusinessRule, 0.8,
			fmt.Sprintf("%s %.2f outside [%.2f, %.2f]", v.Field, amount, v.Min, v.Max),
			"obtain approval for an out-of-bounds amount")
	}
	return pass(v.Name())
}

// Authorization checks the requesting user against Allowed.
type Authorization struct {
	Allowed func(userID, capabilityKey string) bool
}

func (v Authorization) Name() string { return "authorization" }

func (v Authorization) Validate(_ context.Context, a *Attempt) domain.ValidationResult {
	if v.Allowed == nil || v.Allowed(a.Unit.UserID, a.Unit.CapabilityKey) {
		return pass(v.Name())
	}
	return fail(v.Name(), domain.FailureAuthorization, 0.9,
		fmt.Sprintf("user %q is not authorized for %s", a.Unit.UserID, a.Unit.CapabilityKey),
		"grant the user access or reassign the task")
}

// Balance checks that two output amounts agree within Tolerance.
type Balance struct {
	DebitField  string
	CreditField string
	Tolerance   float64
}

func (v Balance) Name() string { return "balance" }

func (v Balance) Validate(_ context.Context, a *Attempt) domain.ValidationResult {
	out := a.Outputs()
	if out == nil {
		return pass(v.Name())
	}
	debit, err1 := toFloat(out[v.DebitField])
	credit, err2 := toFloat(out[v.CreditField])
	if err1 != nil || err2 != nil {
		return fail(v.Name(), domain.FailureFetchableData, 0.5,
			fmt.Sprintf("%s or %s missing from outputs", v.DebitField, v.CreditField), "")
	}
	if math.Abs(debit-credit) > v.Tolerance {
		return fail(v.Name(), domain.FailureInconsistent, 0.7,
			fmt.Sprintf("%s %.2f does not balance %s %.2f", v.DebitField, debit, v.CreditField, credit),
			"review the posted entries for a missing line")
	}
	return pass(v.Name())
}

// BusinessRule wraps a named predicate. Check returns ok and, when not ok,
// the reason shown to the reviewer. A rule without Check passes.
type BusinessRule struct {
	Rule     string
	Severity float64
	Hint     string
	Check    func(unit domain.WorkUnit, resp *domain.CapabilityResponse) (bool, string)
}

func (v BusinessRule) Name() string { return "business_rule:" + v.Rule }

func (v BusinessRule) Validate(_ context.Context, a *Attempt) domain.ValidationResult {
	if v.Check == nil {
		return pass(v.Name())
	}
	ok, reason := v.Check(a.Unit, a.Response)
	if ok {
		return pass(v.Name())
	}
	severity := v.Severity
	if severity == 0 {
		severity = 0.8
	}
	return fail(v.Name(), domain.FailureBusinessRule, severity, reason, v.Hint)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
}
