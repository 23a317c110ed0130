package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// ScopeType is the context a belief or fact applies to.
// Narrower scopes override broader ones during resolution.
type ScopeType string

const (
	ScopeGlobal   ScopeType = "global"
	ScopeIndustry ScopeType = "industry"
	ScopeOrg      ScopeType = "org"
	ScopePerson   ScopeType = "person"
)

func ValidScopeType(s string) bool {
	switch ScopeType(s) {
	case ScopeGlobal, ScopeIndustry, ScopeOrg, ScopePerson:
		return true
	}
	return false
}

// Specificity orders scopes: person > org > industry > global.
func (s ScopeType) Specificity() int {
	switch s {
	case ScopePerson:
		return 3
	case ScopeOrg:
		return 2
	case ScopeIndustry:
		return 1
	default:
		return 0
	}
}

// GlobalScopeID is the scope_id used by every global-scope record.
const GlobalScopeID = "*"

// Scope identifies one concrete scope instance, e.g. org "acme".
type Scope struct {
	Type ScopeType `json:"scope_type"`
	ID   string    `json:"scope_id"`
}

func GlobalScope() Scope {
	return Scope{Type: ScopeGlobal, ID: GlobalScopeID}
}

func (s Scope) String() string {
	return fmt.Sprintf("%s:%s", s.Type, s.ID)
}

func (s Scope) Valid() bool {
	if !ValidScopeType(string(s.Type)) {
		return false
	}
	return s.ID != ""
}

// ScopeKey is the serialization key for writes: (scope_type, scope_id, key).
type ScopeKey struct {
	Scope Scope
	Key   string
}

func (k ScopeKey) String() string {
	return k.Scope.String() + "/" + k.Key
}

// RequestContext is the tenant context a request is resolved against.
type RequestContext struct {
	PersonID   string   `json:"person_id,omitempty"`
	OrgID      string   `json:"org_id"`
	Industries []string `json:"industries,omitempty"`
}

// Scopes returns the candidate scopes in resolution priority order:
// person, org, each industry in the order given, global.
func (rc RequestContext) Scopes() []Scope {
	scopes := make([]Scope, 0, 3+len(rc.Industries))
	if rc.PersonID != "" {
		scopes = append(scopes, Scope{Type: ScopePerson, ID: rc.PersonID})
	}
	if rc.OrgID != "" {
		scopes = append(scopes, Scope{Type: ScopeOrg, ID: rc.OrgID})
	}
	for _, ind := range rc.Industries {
		if ind == "" {
			continue
		}
		scopes = append(scopes, Scope{Type: ScopeIndustry, ID: ind})
	}
	return append(scopes, GlobalScope())
}

// TenantKey pins a belief set to one update worker.
type TenantKey struct {
	TenantID uuid.UUID `json:"tenant_id"`
	OrgID    string    `json:"org_id"`
	PersonID string    `json:"person_id,omitempty"`
}

func (t TenantKey) String() string {
	return t.TenantID.String() + "/" + t.OrgID + "/" + t.PersonID
}
