package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrInvalidPolicy = errors.New("invalid engine policy")

// Policy tunes the engine per belief category and per validator.
//
//	categories:
//	  moral:
//	    success: 3
//	    failure: 10
//	    guidance: 0.5
//	    autonomous: 0.9
//	severity_overrides:
//	  balance: 0.9
type Policy struct {
	Categories        map[string]CategoryPolicy `yaml:"categories"`
	SeverityOverrides map[string]float64        `yaml:"severity_overrides"`
}

// CategoryPolicy fields are optional; nil keeps the built-in value.
type CategoryPolicy struct {
	Success    *float64 `yaml:"success"`
	Failure    *float64 `yaml:"failure"`
	Guidance   *float64 `yaml:"guidance"`
	Autonomous *float64 `yaml:"autonomous"`
}

// LoadPolicy reads the policy at path. An empty path yields an empty policy.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return &Policy{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return ParsePolicy(data)
}

func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Policy) Validate() error {
	for name, c := range p.Categories {
		for field, v := range map[string]*float64{"success": c.Success, "failure": c.Failure} {
			if v != nil && *v < 0 {
				return fmt.Errorf("%w: %s.%s must not be negative", ErrInvalidPolicy, name, field)
			}
		}
		for field, v := range map[string]*float64{"guidance": c.Guidance, "autonomous": c.Autonomous} {
			if v != nil && (*v < 0 || *v > 1) {
				return fmt.Errorf("%w: %s.%s must be within [0,1]", ErrInvalidPolicy, name, field)
			}
		}
	}
	for name, sev := range p.SeverityOverrides {
		if sev < 0 || sev > 1 {
			return fmt.Errorf("%w: severity override for %s must be within [0,1]", ErrInvalidPolicy, name)
		}
	}
	return nil
}
