package service

import (
	"errors"

	"github.com/Harshitk-cp/tenet/internal/domain"
)

const (
	DefaultGuidanceThreshold   = 0.4
	DefaultAutonomousThreshold = 0.7
)

var ErrInvalidThresholds = errors.New("thresholds must satisfy 0 <= guidance <= autonomous <= 1")

// Thresholds are the strength cut-offs between modes. Strength below
// Guidance seeks guidance and strength at or above Autonomous acts alone.
type Thresholds struct {
	Guidance   float64 `json:"guidance" yaml:"guidance"`
	Autonomous float64 `json:"autonomous" yaml:"autonomous"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{Guidance: DefaultGuidanceThreshold, Autonomous: DefaultAutonomousThreshold}
}

func (t Thresholds) Valid() bool {
	return t.Guidance >= 0 && t.Guidance <= t.Autonomous && t.Autonomous <= 1
}

// Mode maps strength to a supervision mode.
func (t Thresholds) Mode(strength float64) domain.Mode {
	switch {
	case strength >= t.Autonomous:
		return domain.ModeAutonomous
	case strength >= t.Guidance:
		return domain.ModeActionProposal
	default:
		return domain.ModeGuidanceSeeking
	}
}

// AutonomyClassifier is stateless: its output depends only on the strength,
// the category and the configured thresholds.
type AutonomyClassifier struct {
	defaults    Thresholds
	perCategory map[domain.Category]Thresholds
}

func NewAutonomyClassifier(defaults Thresholds, perCategory map[domain.Category]Thresholds) (*AutonomyClassifier, error) {
	if !defaults.Valid() {
		return nil, ErrInvalidThresholds
	}
	overrides := make(map[domain.Category]Thresholds, len(perCategory))
	for cat, t := range perCategory {
		if !t.Valid() {
			return nil, ErrInvalidThresholds
		}
		overrides[cat] = t
	}
	return &AutonomyClassifier{defaults: defaults, perCategory: overrides}, nil
}

func (c *AutonomyClassifier) Classify(strength float64) domain.Mode {
	return c.defaults.Mode(strength)
}

// ClassifyCategory uses the category's thresholds when one is configured.
func (c *AutonomyClassifier) ClassifyCategory(category domain.Category, strength float64) domain.Mode {
	return c.ThresholdsFor(category).Mode(strength)
}

func (c *AutonomyClassifier) ThresholdsFor(category domain.Category) Thresholds {
	if t, ok := c.perCategory[category]; ok {
		return t
	}
	return c.defaults
}

func (c *AutonomyClassifier) ClassifyBelief(b *domain.Belief) domain.AutonomyDecision {
	return domain.AutonomyDecision{
		BeliefID: b.ID,
		Key:      b.Key,
		Category: b.Category,
		Strength: b.Strength,
		Mode:     c.ClassifyCategory(b.Category, b.Strength),
	}
}
