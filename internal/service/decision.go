package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Harshitk-cp/tenet/internal/domain"
	"github.com/Harshitk-cp/tenet/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrEmptyPrompt = errors.New("prompt is required")

type DecisionRequest struct {
	Context      domain.RequestContext `json:"context"`
	Prompt       string                `json:"prompt"`
	BeliefKeys   []string              `json:"belief_keys,omitempty"`
	Requirements domain.Requirements   `json:"requirements"`
}

// Decision is the answer to one request: the governing mode plus the
// per-belief classifications it was derived from.
type Decision struct {
	Mode        domain.Mode               `json:"mode"`
	PrimaryKey  string                    `json:"primary_key,omitempty"`
	Beliefs     []domain.AutonomyDecision `json:"beliefs"`
	Appraisal   *domain.Appraisal         `json:"appraisal,omitempty"`
	Fallback    bool                      `json:"fallback"`
	MountReport *domain.MountReport       `json:"mount_report"`
	Context     *domain.ResolvedContext   `json:"context"`
}

// AutonomyService mounts the request context, asks the reasoning endpoint
// which beliefs govern the request and classifies them. The reasoning
// endpoint only selects beliefs; it never changes strengths.
type AutonomyService struct {
	resolver   *ScopeResolver
	classifier *AutonomyClassifier
	appraiser  domain.Appraiser
	metrics    metrics.Collector
	logger     *zap.Logger
}

func NewAutonomyService(resolver *ScopeResolver, classifier *AutonomyClassifier, appraiser domain.Appraiser, m metrics.Collector, logger *zap.Logger) *AutonomyService {
	if m == nil {
		m = metrics.NewNoopCollector()
	}
	return &AutonomyService{
		resolver:   resolver,
		classifier: classifier,
		appraiser:  appraiser,
		metrics:    m,
		logger:     logger,
	}
}

// Decide returns the supervision mode for a request. A failed appraisal
// falls back to the caller's belief keys; with no selected belief the mode
// is guidance_seeking.
func (s *AutonomyService) Decide(ctx context.Context, tenantID uuid.UUID, req DecisionRequest) (*Decision, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}
	resolved, report, err := s.resolver.Mount(ctx, tenantID, req.Context, req.Requirements)
	if err != nil {
		return nil, err
	}

	d := &Decision{MountReport: report, Context: resolved, Beliefs: []domain.AutonomyDecision{}}
	keys := req.BeliefKeys
	if s.appraiser != nil {
		appraisal, err := s.appraiser.Appraise(ctx, domain.AppraisalRequest{Prompt: req.Prompt, Context: resolved})
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("appraisal failed, using caller belief keys",
				zap.String("org_id", req.Context.OrgID),
				zap.Error(err),
			)
			d.Fallback = true
		case len(appraisal.BeliefKeys) == 0:
			d.Appraisal = appraisal
			d.Fallback = true
		default:
			d.Appraisal = appraisal
			d.PrimaryKey = appraisal.PrimaryKey
			keys = appraisal.BeliefKeys
		}
	} else {
		d.Fallback = true
	}

	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if seen[key] {
			continue
		}
		seen[key] = true
		v, ok := resolved.Get(key)
		if !ok || v.Belief == nil {
			continue
		}
		d.Beliefs = append(d.Beliefs, s.classify(v.Belief))
	}

	d.Mode = governingMode(d.Beliefs, d.PrimaryKey)
	s.logger.Info("autonomy decision",
		zap.String("org_id", req.Context.OrgID),
		zap.String("mode", string(d.Mode)),
		zap.String("primary_key", d.PrimaryKey),
		zap.Int("beliefs", len(d.Beliefs)),
		zap.Bool("fallback", d.Fallback),
	)
	return d, nil
}

// Classify resolves key for rc and classifies the winning belief.
func (s *AutonomyService) Classify(ctx context.Context, tenantID uuid.UUID, key string, rc domain.RequestContext) (*domain.AutonomyDecision, error) {
	v, err := s.resolver.Resolve(ctx, tenantID, key, rc)
	if err != nil {
		return nil, err
	}
	if v.Belief == nil {
		return nil, fmt.Errorf("key %q resolves to a fact: %w", key, ErrKeyNotFound)
	}
	dec := s.classify(v.Belief)
	return &dec, nil
}

func (s *AutonomyService) classify(b *domain.Belief) domain.AutonomyDecision {
	dec := s.classifier.ClassifyBelief(b)
	s.metrics.AutonomyDecision(string(dec.Mode), dec.Strength)
	return dec
}

// governingMode is the primary belief's mode when it was selected,
// otherwise the most conservative selected mode.
func governingMode(decisions []domain.AutonomyDecision, primary string) domain.Mode {
	if len(decisions) == 0 {
		return domain.ModeGuidanceSeeking
	}
	for _, dec := range decisions {
		if primary != "" && dec.Key == primary {
			return dec.Mode
		}
	}
	mode := decisions[0].Mode
	for _, dec := range decisions[1:] {
		if dec.Mode.Rank() < mode.Rank() {
			mode = dec.Mode
		}
	}
	return mode
}
