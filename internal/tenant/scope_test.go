package tenant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScopeValidate(t *testing.T) {
	assert.NoError(t, GlobalScope().Validate())
	assert.NoError(t, OrgScope("org-1").Validate())
	assert.Error(t, OrgScope("").Validate())

	var zero Scope
	assert.Error(t, zero.Validate())
}

func TestScopeAllows(t *testing.T) {
	global := GlobalScope()
	org := OrgScope("org-1")

	// Global documents are visible to everyone.
	assert.True(t, global.Allows(""))
	assert.True(t, org.Allows(""))

	// Org documents are visible only to their own org.
	assert.False(t, global.Allows("org-1"))
	assert.True(t, org.Allows("org-1"))
	assert.False(t, org.Allows("org-2"))
}

func TestScopeOrgID(t *testing.T) {
	id, ok := OrgScope("org-1").OrgID()
	assert.True(t, ok)
	assert.Equal(t, "org-1", id)

	_, ok = GlobalScope().OrgID()
	assert.False(t, ok)
}

func TestScopeString(t *testing.T) {
	assert.Equal(t, "global", GlobalScope().String())
	assert.Equal(t, "org:org-1", OrgScope("org-1").String())

	var zero Scope
	assert.Equal(t, "invalid", zero.String())
}
