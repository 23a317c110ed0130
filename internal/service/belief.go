package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Harshitk-cp/tenet/internal/domain"
	"github.com/Harshitk-cp/tenet/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrBeliefConflict  = errors.New("belief with this key already exists in scope")
	ErrInvalidBelief   = errors.New("invalid belief")
	ErrSupportCycle    = errors.New("support edge would create a cycle")
	ErrInvalidCategory = errors.New("invalid belief category")
)

// BeliefService manages belief records and support edges. Strengths only
// change through the update engine.
type BeliefService struct {
	store  domain.BeliefStore
	logger *zap.Logger
}

func NewBeliefService(s domain.BeliefStore, logger *zap.Logger) *BeliefService {
	return &BeliefService{store: s, logger: logger}
}

func (s *BeliefService) Create(ctx context.Context, b *domain.Belief) error {
	b.Key = strings.TrimSpace(b.Key)
	if b.Key == "" {
		return fmt.Errorf("%w: key is required", ErrInvalidBelief)
	}
	if b.ScopeType == domain.ScopeGlobal && b.ScopeID == "" {
		b.ScopeID = domain.GlobalScopeID
	}
	if !b.Scope().Valid() {
		return fmt.Errorf("%w: scope %s", ErrInvalidBelief, b.Scope())
	}
	if b.Category == "" {
		b.Category = domain.CategoryCompetence
	}
	if !domain.ValidCategory(string(b.Category)) {
		return ErrInvalidCategory
	}
	if b.Strength < MinStrength || b.Strength > MaxStrength {
		return fmt.Errorf("%w: strength %v outside [0,1]", ErrInvalidBelief, b.Strength)
	}
	b.Supports = dedupeIDs(b.Supports)

	if err := s.store.Create(ctx, b); err != nil {
		return translateBeliefErr(err)
	}
	s.logger.Info("belief created",
		zap.String("belief_id", b.ID.String()),
		zap.String("key", b.Key),
		zap.String("scope", b.Scope().String()),
		zap.Float64("strength", b.Strength),
	)
	return nil
}

func (s *BeliefService) GetByID(ctx context.Context, id, tenantID uuid.UUID) (*domain.Belief, error) {
	b, err := s.store.GetByID(ctx, id, tenantID)
	if err != nil {
		return nil, translateBeliefErr(err)
	}
	return b, nil
}

// AddSupport makes updates to from cascade into to.
func (s *BeliefService) AddSupport(ctx context.Context, tenantID, from, to uuid.UUID) error {
	if from == to {
		return ErrSupportCycle
	}
	if err := s.store.AddSupport(ctx, tenantID, from, to); err != nil {
		return translateBeliefErr(err)
	}
	return nil
}

func translateBeliefErr(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrBeliefNotFound
	case errors.Is(err, store.ErrConflict):
		return ErrBeliefConflict
	case errors.Is(err, store.ErrCycle):
		return ErrSupportCycle
	case errors.Is(err, store.ErrInvalid):
		return fmt.Errorf("%w: %v", ErrInvalidBelief, err)
	}
	return err
}
