package domain

import "github.com/google/uuid"

// Mode is the supervision level required before acting on a belief.
type Mode string

const (
	ModeGuidanceSeeking Mode = "guidance_seeking"
	ModeActionProposal  Mode = "action_proposal"
	ModeAutonomous      Mode = "autonomous"
)

// Rank orders modes: guidance_seeking < action_proposal < autonomous.
func (m Mode) Rank() int {
	switch m {
	case ModeAutonomous:
		return 2
	case ModeActionProposal:
		return 1
	default:
		return 0
	}
}

func ValidMode(m string) bool {
	switch Mode(m) {
	case ModeGuidanceSeeking, ModeActionProposal, ModeAutonomous:
		return true
	}
	return false
}

// AutonomyDecision is the classifier output for one belief.
type AutonomyDecision struct {
	BeliefID uuid.UUID `json:"belief_id"`
	Key      string    `json:"key"`
	Category Category  `json:"category"`
	Strength float64   `json:"strength"`
	Mode     Mode      `json:"mode"`
}

// Appraisal is the structured output of the external reasoning endpoint.
// It only selects which beliefs govern an action; it never changes strengths.
type Appraisal struct {
	Intent              string   `json:"intent"`
	UncertaintyAreas    []string `json:"uncertainty_areas,omitempty"`
	RecommendedApproach string   `json:"recommended_approach,omitempty"`
	BeliefKeys          []string `json:"belief_keys,omitempty"`
	PrimaryKey          string   `json:"primary_key,omitempty"`
	ResponseText        string   `json:"response_text,omitempty"`
}

type AppraisalRequest struct {
	Prompt  string
	Context *ResolvedContext
}
