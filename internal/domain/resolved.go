package domain

import "github.com/google/uuid"

type ValueKind string

const (
	ValueBelief ValueKind = "belief"
	ValueFact   ValueKind = "fact"
)

// ResolvedValue is the winning belief or fact for one semantic key.
type ResolvedValue struct {
	Key    string    `json:"key"`
	Kind   ValueKind `json:"kind"`
	Scope  Scope     `json:"scope"`
	Belief *Belief   `json:"belief,omitempty"`
	Fact   *Fact     `json:"fact,omitempty"`
}

// Statement returns the human-readable value regardless of kind.
func (v *ResolvedValue) Statement() string {
	if v.Fact != nil {
		return v.Fact.Statement
	}
	if v.Belief != nil {
		return v.Belief.Statement
	}
	return ""
}

// ResolvedContext is the per-request active view. It is rebuilt for every
// request and never persisted. Entries are ordered by scope specificity,
// narrowest first, then by key.
type ResolvedContext struct {
	Request RequestContext  `json:"request"`
	Entries []ResolvedValue `json:"entries"`
	index   map[string]int
}

func NewResolvedContext(rc RequestContext, entries []ResolvedValue) *ResolvedContext {
	idx := make(map[string]int, len(entries))
	for i, e := range entries {
		idx[e.Key] = i
	}
	return &ResolvedContext{Request: rc, Entries: entries, index: idx}
}

func (c *ResolvedContext) Get(key string) (*ResolvedValue, bool) {
	i, ok := c.index[key]
	if !ok {
		return nil, false
	}
	return &c.Entries[i], true
}

// Beliefs returns the resolved beliefs in entry order.
func (c *ResolvedContext) Beliefs() []Belief {
	var out []Belief
	for _, e := range c.Entries {
		if e.Belief != nil {
			out = append(out, *e.Belief)
		}
	}
	return out
}

// BeliefIDs returns the IDs of every resolved belief.
func (c *ResolvedContext) BeliefIDs() []uuid.UUID {
	var ids []uuid.UUID
	for _, e := range c.Entries {
		if e.Belief != nil {
			ids = append(ids, e.Belief.ID)
		}
	}
	return ids
}

// Requirements classifies the keys a mount needs.
type Requirements struct {
	MustHave   []string `json:"must_have,omitempty"`
	ShouldHave []string `json:"should_have,omitempty"`
	NiceToHave []string `json:"nice_to_have,omitempty"`
}

// MountReport is the outcome of the validation ladder.
type MountReport struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (r *MountReport) OK() bool {
	return len(r.Errors) == 0
}
