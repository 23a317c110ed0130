package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Harshitk-cp/tenet/internal/domain"
)

const appraisalPrompt = `You are the appraisal step of an autonomous agent. Read the request and the
agent's active context, then decide which beliefs govern the action.

Each context line is tagged:
- [BELIEF key strength=S] a learned belief with confidence S in [0,1]
- [FACT key] certain organizational knowledge

Respond ONLY with a JSON object. No markdown, no explanation. Fields:
- intent: short label for what the request asks for
- uncertainty_areas: list of things that are unclear or risky
- recommended_approach: one sentence
- belief_keys: keys of the beliefs that govern this action (only keys from the context)
- primary_key: the single most relevant belief key, or "" if none applies
- response_text: optional draft reply to the requester

Example:
{"intent":"approve_invoice","uncertainty_areas":["vendor is new"],"recommended_approach":"propose approval to the controller","belief_keys":["invoice.approve"],"primary_key":"invoice.approve","response_text":""}

Active context:
%s
Request:
%s`

func renderContext(rc *domain.ResolvedContext) string {
	if rc == nil || len(rc.Entries) == 0 {
		return "(empty)\n"
	}
	var sb strings.Builder
	for _, e := range rc.Entries {
		switch {
		case e.Belief != nil:
			sb.WriteString(fmt.Sprintf("[BELIEF %s strength=%.2f] %s\n", e.Key, e.Belief.Strength, e.Belief.Statement))
		case e.Fact != nil:
			sb.WriteString(fmt.Sprintf("[FACT %s] %s\n", e.Key, e.Fact.Statement))
		}
	}
	return sb.String()
}

func buildAppraisalPrompt(req domain.AppraisalRequest) string {
	return fmt.Sprintf(appraisalPrompt, renderContext(req.Context), req.Prompt)
}

func parseAppraisal(raw string) (*domain.Appraisal, error) {
	// Strip markdown fences if present
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var a domain.Appraisal
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, fmt.Errorf("parse appraisal: %w (raw: %s)", err, raw)
	}
	if a.PrimaryKey != "" && !containsKey(a.BeliefKeys, a.PrimaryKey) {
		a.BeliefKeys = append([]string{a.PrimaryKey}, a.BeliefKeys...)
	}
	return &a, nil
}

func containsKey(keys []string, k string) bool {
	for _, x := range keys {
		if x == k {
			return true
		}
	}
	return false
}
