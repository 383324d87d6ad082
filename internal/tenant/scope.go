// Package tenant defines the access scope used to partition documents
// and retrieval results between organizations.
package tenant

import "fmt"

type scopeKind int

const (
	kindInvalid scopeKind = iota
	kindGlobal
	kindOrg
)

// Scope selects which slice of the corpus an operation may see.
// The zero value is invalid and rejected by Validate; callers must
// construct scopes through GlobalScope or OrgScope.
type Scope struct {
	kind  scopeKind
	orgID string
}

func GlobalScope() Scope {
	return Scope{kind: kindGlobal}
}

func OrgScope(orgID string) Scope {
	return Scope{kind: kindOrg, orgID: orgID}
}

func (s Scope) IsGlobal() bool {
	return s.kind == kindGlobal
}

// OrgID returns the organization identifier and whether the scope is
// org-bound. A global scope returns ("", false).
func (s Scope) OrgID() (string, bool) {
	if s.kind != kindOrg {
		return "", false
	}
	return s.orgID, true
}

func (s Scope) Validate() error {
	switch s.kind {
	case kindGlobal:
		return nil
	case kindOrg:
		if s.orgID == "" {
			return fmt.Errorf("org scope requires a non-empty organization id")
		}
		return nil
	default:
		return fmt.Errorf("scope is unset")
	}
}

// Allows reports whether a chunk tagged with chunkOrgID is visible
// under this scope. Global documents carry an empty org tag and are
// visible to every scope; org documents are visible only to their org.
func (s Scope) Allows(chunkOrgID string) bool {
	if chunkOrgID == "" {
		return true
	}
	return s.kind == kindOrg && s.orgID == chunkOrgID
}

func (s Scope) String() string {
	switch s.kind {
	case kindGlobal:
		return "global"
	case kindOrg:
		return "org:" + s.orgID
	default:
		return "invalid"
	}
}
