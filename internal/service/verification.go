package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Harshitk-cp/tenet/internal/domain"
	"github.com/Harshitk-cp/tenet/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultMaxRetries         = 3
	DefaultRetryBaseDelay     = 500 * time.Millisecond
	DefaultEscalationSeverity = 0.7
)

type VerificationConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	// MaxDelay caps a single backoff; zero means uncapped.
	MaxDelay           time.Duration
	EscalationSeverity float64
	// SeverityOverrides replaces the severity of a failed result by
	// validator name.
	SeverityOverrides map[string]float64
}

func DefaultVerificationConfig() VerificationConfig {
	return VerificationConfig{
		MaxRetries:         DefaultMaxRetries,
		BaseDelay:          DefaultRetryBaseDelay,
		EscalationSeverity: DefaultEscalationSeverity,
	}
}

// Backoff returns the delay before the VALIDATING entry that follows retry
// number attempt: base * 2^(attempt-1).
func (c VerificationConfig) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := c.BaseDelay << (attempt - 1)
	if c.MaxDelay > 0 && (d > c.MaxDelay || d <= 0) {
		return c.MaxDelay
	}
	return d
}

// ExecuteFunc performs (or re-performs) the work for one attempt.
type ExecuteFunc func(ctx context.Context, attempt int) (*domain.CapabilityResponse, error)

// VerificationTask is one work unit handed to the machine. AttemptCount is
// the number of retries already spent on the unit, normally zero.
type VerificationTask struct {
	Unit         domain.WorkUnit
	Execute      ExecuteFunc
	Validators   []Validator
	AttemptCount int
	// Response, when set, is validated on the first attempt instead of
	// calling Execute. Without Execute it is re-validated on every retry.
	Response *domain.CapabilityResponse
}

// VerificationMachine drives a task through
// PENDING -> VALIDATING -> {SUCCEEDED | RETRY | ESCALATED | FAILED}.
// Run never returns an error: every failure ends in a terminal state.
type VerificationMachine struct {
	cfg     VerificationConfig
	sink    EscalationSink
	metrics metrics.Collector
	logger  *zap.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewVerificationMachine(cfg VerificationConfig, sink EscalationSink, m metrics.Collector, logger *zap.Logger) *VerificationMachine {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay < 0 {
		cfg.BaseDelay = 0
	}
	if cfg.EscalationSeverity <= 0 || cfg.EscalationSeverity > 1 {
		cfg.EscalationSeverity = DefaultEscalationSeverity
	}
	if m == nil {
		m = metrics.NewNoopCollector()
	}
	return &VerificationMachine{
		cfg:     cfg,
		sink:    sink,
		metrics: m,
		logger:  logger,
		now:     time.Now,
		sleep:   sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type run struct {
	task    *VerificationTask
	outcome *domain.ExecutionOutcome
	state   domain.VerificationState
}

func (r *run) transition(to domain.VerificationState, at time.Time) {
	r.outcome.Transitions = append(r.outcome.Transitions, domain.Transition{
		From:    r.state,
		To:      to,
		Attempt: r.outcome.AttemptCount,
		At:      at,
	})
	r.state = to
}

// verdict is the decision taken after one VALIDATING pass.
type verdict struct {
	next     domain.VerificationState
	reason   domain.OutcomeReason
	deciding *domain.ValidationResult
}

// Run executes the machine to a terminal state and returns the single
// outcome for the task. At most MaxRetries retries are taken in total,
// counting any the task had already spent.
func (m *VerificationMachine) Run(ctx context.Context, task VerificationTask) *domain.ExecutionOutcome {
	r := &run{
		task:  &task,
		state: domain.StatePending,
		outcome: &domain.ExecutionOutcome{
			WorkUnitID:   task.Unit.ID,
			AttemptCount: task.AttemptCount,
			Difficulty:   task.Unit.Difficulty,
		},
	}

	response := task.Response
	for {
		if err := ctx.Err(); err != nil {
			return m.cancel(r)
		}
		r.transition(domain.StateValidating, m.now())

		attempt := &Attempt{Unit: task.Unit, Number: r.outcome.AttemptCount, Response: response}
		if task.Execute != nil && response == nil {
			attempt.Response, attempt.Err = task.Execute(ctx, r.outcome.AttemptCount)
			if attempt.Err != nil && ctx.Err() != nil {
				return m.cancel(r)
			}
		}
		r.outcome.ValidatorResults = m.validate(ctx, task.Validators, attempt)
		if attempt.Response != nil {
			r.outcome.Outputs = attempt.Response.Outputs
		}

		v := m.decide(r.outcome)
		if v.next != domain.StateRetry {
			return m.finish(ctx, r, v, attempt)
		}

		r.transition(domain.StateRetry, m.now())
		r.outcome.AttemptCount++
		m.metrics.VerificationRetry()
		delay := m.cfg.Backoff(r.outcome.AttemptCount)
		m.logger.Info("retrying work unit",
			zap.String("work_unit_id", task.Unit.ID.String()),
			zap.Int("attempt", r.outcome.AttemptCount),
			zap.Duration("backoff", delay),
		)
		if err := m.sleep(ctx, delay); err != nil {
			return m.cancel(r)
		}
		if task.Execute != nil {
			response = nil
		}
	}
}

func (m *VerificationMachine) validate(ctx context.Context, validators []Validator, a *Attempt) []domain.ValidationResult {
	if len(validators) == 0 {
		validators = []Validator{ExecutionStatus{}}
	}
	results := make([]domain.ValidationResult, 0, len(validators))
	for _, v := range validators {
		res := m.runValidator(ctx, v, a)
		if res.ValidatorName == "" {
			res.ValidatorName = v.Name()
		}
		if !res.Passed {
			if sev, ok := m.cfg.SeverityOverrides[res.ValidatorName]; ok {
				res.Severity = sev
			}
			res.Severity = clampStrength(res.Severity)
			if res.Retry == "" {
				res.Retry = res.Kind.DefaultRetryClass()
			}
		}
		results = append(results, res)
	}
	return results
}

// runValidator turns a panicking validator into a severe non-retryable
// failure so a broken rule surfaces to a reviewer instead of crashing Run.
func (m *VerificationMachine) runValidator(ctx context.Context, v Validator, a *Attempt) (res domain.ValidationResult) {
	defer func() {
		if p := recover(); p != nil {
			m.logger.Error("validator panicked",
				zap.String("validator", v.Name()),
				zap.String("work_unit_id", a.Unit.ID.String()),
				zap.Any("panic", p),
			)
			res = fail(v.Name(), domain.FailureExecution, 1.0,
				fmt.Sprintf("validator panicked: %v", p), "fix the validator configuration")
		}
	}()
	return v.Validate(ctx, a)
}

// decide applies the transition rules to the results of one pass.
// A failure that may not be retried decides the outcome before any
// retryable failure is considered. Only an explicit request for human
// intervention escalates at any severity; other non-retryable failures
// escalate at or above EscalationSeverity and fail below it.
func (m *VerificationMachine) decide(o *domain.ExecutionOutcome) verdict {
	failures := o.Failures()
	if len(failures) == 0 {
		return verdict{next: domain.StateSucceeded, reason: domain.ReasonAllPassed}
	}

	escalate := highest(failures, domain.RetryClassEscalate)
	if escalate != nil {
		return verdict{next: domain.StateEscalated, reason: domain.ReasonEscalationRequired, deciding: escalate}
	}
	if hard := highest(failures, domain.RetryClassFail); hard != nil {
		if hard.Severity >= m.cfg.EscalationSeverity {
			return verdict{next: domain.StateEscalated, reason: domain.ReasonNonRetryable, deciding: hard}
		}
		return verdict{next: domain.StateFailed, reason: domain.ReasonNonRetryable, deciding: hard}
	}

	if o.AttemptCount < m.cfg.MaxRetries {
		return verdict{next: domain.StateRetry}
	}
	worst := highest(failures, "")
	if worst.Severity >= m.cfg.EscalationSeverity {
		return verdict{next: domain.StateEscalated, reason: domain.ReasonBudgetExhausted, deciding: worst}
	}
	return verdict{next: domain.StateFailed, reason: domain.ReasonBudgetExhausted, deciding: worst}
}

// highest returns the most severe failure of the given class, or of any
// class when class is empty.
func highest(failures []domain.ValidationResult, class domain.RetryClass) *domain.ValidationResult {
	var best *domain.ValidationResult
	for i := range failures {
		f := &failures[i]
		if class != "" && f.Retry != class {
			continue
		}
		if best == nil || f.Severity > best.Severity {
			best = f
		}
	}
	return best
}

func (m *VerificationMachine) finish(ctx context.Context, r *run, v verdict, a *Attempt) *domain.ExecutionOutcome {
	now := m.now()
	r.transition(v.next, now)
	o := r.outcome
	o.State = v.next
	o.Reason = v.reason
	o.Final = true
	o.CompletedAt = now

	switch {
	case v.next == domain.StateSucceeded:
		o.Status = domain.OutcomeSuccess
	case a.Err == nil && a.Response != nil && a.Response.Status == domain.CapabilitySuccess:
		o.Status = domain.OutcomePartial
	default:
		o.Status = domain.OutcomeFailure
	}

	m.metrics.VerificationOutcome(string(o.State))
	switch o.State {
	case domain.StateEscalated:
		o.Escalation = m.escalation(r.task, o, v)
		m.metrics.Escalation(string(v.reason))
		if m.sink != nil {
			if err := m.sink.Escalate(ctx, o.Escalation); err != nil {
				m.logger.Error("failed to route escalation",
					zap.String("work_unit_id", o.WorkUnitID.String()),
					zap.Error(err),
				)
			}
		}
	case domain.StateFailed:
		m.logger.Info("work unit failed",
			zap.String("work_unit_id", o.WorkUnitID.String()),
			zap.String("reason", string(o.Reason)),
			zap.String("validator", v.deciding.ValidatorName),
			zap.Float64("severity", v.deciding.Severity),
		)
	}
	return o
}

func (m *VerificationMachine) escalation(task *VerificationTask, o *domain.ExecutionOutcome, v verdict) *domain.Escalation {
	esc := &domain.Escalation{
		ID:           uuid.New(),
		WorkUnitID:   o.WorkUnitID,
		Tenant:       task.Unit.Tenant,
		Capability:   task.Unit.CapabilityKey,
		Validator:    v.deciding.ValidatorName,
		Message:      v.deciding.Message,
		Severity:     v.deciding.Severity,
		Reason:       v.reason,
		AttemptCount: o.AttemptCount,
		Results:      o.ValidatorResults,
		CreatedAt:    o.CompletedAt,
	}
	if v.deciding.FixHint != nil {
		esc.FixHint = *v.deciding.FixHint
	}
	return esc
}

// cancel ends the run as FAILED without emitting a belief signal.
func (m *VerificationMachine) cancel(r *run) *domain.ExecutionOutcome {
	now := m.now()
	r.transition(domain.StateFailed, now)
	o := r.outcome
	o.State = domain.StateFailed
	o.Status = domain.OutcomeFailure
	o.Reason = domain.ReasonCancelled
	o.Cancelled = true
	o.Final = true
	o.CompletedAt = now
	m.metrics.VerificationOutcome(string(o.State))
	m.logger.Info("work unit cancelled",
		zap.String("work_unit_id", o.WorkUnitID.String()),
		zap.Int("attempt_count", o.AttemptCount),
	)
	return o
}
