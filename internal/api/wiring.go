package api

import (
	"fmt"

	"github.com/Harshitk-cp/tenet/internal/config"
	"github.com/Harshitk-cp/tenet/internal/domain"
	"github.com/Harshitk-cp/tenet/internal/service"
)

// engineSettings merges environment tuning with the policy file. Policy
// values win over built-in defaults for the categories they name.
type engineSettings struct {
	update       service.UpdateConfig
	thresholds   service.Thresholds
	perCategory  map[domain.Category]service.Thresholds
	verification service.VerificationConfig
}

func loadEngineSettings(p *config.Policy) (engineSettings, error) {
	if p == nil {
		p = &config.Policy{}
	}
	if err := p.Validate(); err != nil {
		return engineSettings{}, err
	}

	s := engineSettings{
		update: service.UpdateConfig{
			LearningRate:    config.LearningRate(),
			CascadeDepth:    config.CascadeDepth(),
			CascadeFraction: config.CascadeFraction(),
			Multipliers:     service.DefaultCategoryMultipliers(),
		},
		thresholds: service.Thresholds{
			Guidance:   config.GuidanceThreshold(),
			Autonomous: config.AutonomousThreshold(),
		},
		perCategory: make(map[domain.Category]service.Thresholds),
		verification: service.VerificationConfig{
			MaxRetries:         config.MaxRetries(),
			BaseDelay:          config.RetryBaseDelay(),
			MaxDelay:           config.RetryMaxDelay(),
			EscalationSeverity: config.EscalationSeverity(),
			SeverityOverrides:  p.SeverityOverrides,
		},
	}
	if !s.thresholds.Valid() {
		return engineSettings{}, fmt.Errorf("%w: guidance %.2f, autonomous %.2f",
			service.ErrInvalidThresholds, s.thresholds.Guidance, s.thresholds.Autonomous)
	}

	for name, cp := range p.Categories {
		if !domain.ValidCategory(name) {
			return engineSettings{}, fmt.Errorf("%w: unknown category %q", config.ErrInvalidPolicy, name)
		}
		cat := domain.Category(name)
		m := s.update.Multipliers[cat]
		if cp.Success != nil {
			m.Success = *cp.Success
		}
		if cp.Failure != nil {
			m.Failure = *cp.Failure
		}
		s.update.Multipliers[cat] = m

		if cp.Guidance == nil && cp.Autonomous == nil {
			continue
		}
		t := s.thresholds
		if cp.Guidance != nil {
			t.Guidance = *cp.Guidance
		}
		if cp.Autonomous != nil {
			t.Autonomous = *cp.Autonomous
		}
		s.perCategory[cat] = t
	}
	return s, nil
}
