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
	ErrFactNotFound       = errors.New("fact not found")
	ErrFactConflict       = errors.New("an active fact with this key already exists in scope")
	ErrFactNotActive      = errors.New("fact is not active")
	ErrInvalidFact        = errors.New("invalid fact")
	ErrInvalidCorrection  = errors.New("invalid correction type")
	ErrCorrectionRequired = errors.New("reason and actor are required")
)

// FactService manages certain knowledge. Facts are never edited: a change
// supersedes the active fact and leaves an audit entry.
type FactService struct {
	store  domain.FactStore
	logger *zap.Logger
}

func NewFactService(s domain.FactStore, logger *zap.Logger) *FactService {
	return &FactService{store: s, logger: logger}
}

func (s *FactService) Create(ctx context.Context, f *domain.Fact) error {
	f.FactKey = strings.TrimSpace(f.FactKey)
	if f.FactKey == "" || strings.TrimSpace(f.Statement) == "" {
		return fmt.Errorf("%w: fact_key and statement are required", ErrInvalidFact)
	}
	if f.ScopeType == domain.ScopeGlobal && f.ScopeID == "" {
		f.ScopeID = domain.GlobalScopeID
	}
	if !f.Scope().Valid() {
		return fmt.Errorf("%w: scope %s", ErrInvalidFact, f.Scope())
	}
	if f.Confidence == 0 {
		f.Confidence = 1.0
	}
	if f.ValidFrom != nil && f.ValidUntil != nil && !f.ValidUntil.After(*f.ValidFrom) {
		return fmt.Errorf("%w: valid_until must be after valid_from", ErrInvalidFact)
	}

	if err := s.store.Create(ctx, f); err != nil {
		return translateFactErr(err)
	}
	return nil
}

func (s *FactService) GetByID(ctx context.Context, id, tenantID uuid.UUID) (*domain.Fact, error) {
	f, err := s.store.GetByID(ctx, id, tenantID)
	if err != nil {
		return nil, translateFactErr(err)
	}
	return f, nil
}

// Replace supersedes an active fact and returns the new fact's ID.
func (s *FactService) Replace(ctx context.Context, tenantID uuid.UUID, r domain.Replacement) (uuid.UUID, error) {
	if strings.TrimSpace(r.NewStatement) == "" {
		return uuid.Nil, fmt.Errorf("%w: new statement is required", ErrInvalidFact)
	}
	if r.Reason == "" || r.Actor == "" {
		return uuid.Nil, ErrCorrectionRequired
	}
	if r.CorrectionType == "" {
		r.CorrectionType = domain.CorrectionFix
	}
	if !domain.ValidCorrectionType(string(r.CorrectionType)) || r.CorrectionType == domain.CorrectionRetraction {
		return uuid.Nil, ErrInvalidCorrection
	}

	id, err := s.store.Replace(ctx, tenantID, r)
	if err != nil {
		return uuid.Nil, translateFactErr(err)
	}
	s.logger.Info("fact replaced",
		zap.String("old_fact_id", r.OldID.String()),
		zap.String("new_fact_id", id.String()),
		zap.String("correction_type", string(r.CorrectionType)),
		zap.String("actor", r.Actor),
	)
	return id, nil
}

// Delete retracts an active fact.
func (s *FactService) Delete(ctx context.Context, tenantID, id uuid.UUID, reason, actor string) error {
	if reason == "" || actor == "" {
		return ErrCorrectionRequired
	}
	if err := s.store.Delete(ctx, tenantID, id, reason, actor); err != nil {
		return translateFactErr(err)
	}
	s.logger.Info("fact deleted", zap.String("fact_id", id.String()), zap.String("actor", actor))
	return nil
}

func (s *FactService) History(ctx context.Context, tenantID uuid.UUID, scope domain.Scope, key string) ([]domain.Fact, error) {
	if scope.Type == domain.ScopeGlobal && scope.ID == "" {
		scope.ID = domain.GlobalScopeID
	}
	facts, err := s.store.History(ctx, tenantID, scope, key)
	if err != nil {
		return nil, translateFactErr(err)
	}
	return facts, nil
}

func (s *FactService) Corrections(ctx context.Context, tenantID, factID uuid.UUID) ([]domain.FactCorrection, error) {
	out, err := s.store.Corrections(ctx, tenantID, factID)
	if err != nil {
		return nil, translateFactErr(err)
	}
	return out, nil
}

func translateFactErr(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrFactNotFound
	case errors.Is(err, store.ErrNotActive):
		return fmt.Errorf("%w: %v", ErrFactNotActive, err)
	case errors.Is(err, store.ErrConflict):
		return ErrFactConflict
	case errors.Is(err, store.ErrInvalid):
		return fmt.Errorf("%w: %v", ErrInvalidFact, err)
	}
	return err
}
