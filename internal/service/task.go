package service

import (
	"context"
	"errors"
	"sync"

	"github.com/Harshitk-cp/tenet/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultBatchParallelism = 4

var ErrInvalidTask = errors.New("task needs a capability_key and an org_id")

type TaskResult struct {
	Outcome  *domain.ExecutionOutcome `json:"outcome"`
	Feedback *FeedbackResult          `json:"feedback,omitempty"`
	Error    string                   `json:"error,omitempty"`
}

// TaskService runs work units end to end: capability execution,
// verification, then feedback into the beliefs the unit relied on.
type TaskService struct {
	executor domain.CapabilityExecutor
	machine  *VerificationMachine
	recorder *FeedbackRecorder
	logger   *zap.Logger

	mu         sync.RWMutex
	validators map[string][]Validator
}

func NewTaskService(executor domain.CapabilityExecutor, machine *VerificationMachine, recorder *FeedbackRecorder, logger *zap.Logger) *TaskService {
	return &TaskService{
		executor:   executor,
		machine:    machine,
		recorder:   recorder,
		logger:     logger,
		validators: make(map[string][]Validator),
	}
}

// RegisterValidators adds validators for one capability. They run after
// the execution status check.
func (s *TaskService) RegisterValidators(capabilityKey string, vs ...Validator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validators[capabilityKey] = append(s.validators[capabilityKey], vs...)
}

func (s *TaskService) validatorsFor(capabilityKey string) []Validator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Validator{ExecutionStatus{}}
	return append(out, s.validators[capabilityKey]...)
}

// Run executes one unit. The outcome is always recorded, even when ctx is
// cancelled mid-run; a cancelled outcome carries no belief signal.
func (s *TaskService) Run(ctx context.Context, unit domain.WorkUnit) (*TaskResult, error) {
	if unit.CapabilityKey == "" || unit.Tenant.OrgID == "" {
		return nil, ErrInvalidTask
	}
	if unit.ID == uuid.Nil {
		unit.ID = uuid.New()
	}
	if unit.Difficulty == "" {
		unit.Difficulty = domain.DifficultyNormal
	}

	task := VerificationTask{
		Unit:       unit,
		Validators: s.validatorsFor(unit.CapabilityKey),
		Execute: func(ctx context.Context, attempt int) (*domain.CapabilityResponse, error) {
			return s.executor.Execute(ctx, domain.CapabilityRequest{
				CapabilityKey: unit.CapabilityKey,
				OrgID:         unit.Tenant.OrgID,
				UserID:        unit.UserID,
				Args:          unit.Args,
			})
		},
	}
	outcome := s.machine.Run(ctx, task)

	result := &TaskResult{Outcome: outcome}
	fb, err := s.recorder.Record(context.WithoutCancel(ctx), unit.Tenant, outcome, unit.BeliefIDs)
	result.Feedback = fb
	if err != nil {
		s.logger.Error("failed to record task feedback",
			zap.String("work_unit_id", unit.ID.String()),
			zap.Error(err),
		)
		return result, err
	}
	return result, nil
}

// RunBatch runs units concurrently, at most parallel at a time. Results
// are returned in input order; a failing unit does not stop the others.
func (s *TaskService) RunBatch(ctx context.Context, units []domain.WorkUnit, parallel int) []TaskResult {
	if parallel <= 0 {
		parallel = DefaultBatchParallelism
	}
	results := make([]TaskResult, len(units))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, unit := range units {
		g.Go(func() error {
			res, err := s.Run(gctx, unit)
			if res != nil {
				results[i] = *res
			}
			if err != nil {
				results[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
