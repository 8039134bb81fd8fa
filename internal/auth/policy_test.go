package auth

import (
	"testing"

	"github.com/matchguard/matchguard/model"
	"github.com/stretchr/testify/assert"
)

func TestPolicyGrants(t *testing.T) {
	policy := NewPolicy()

	assert.True(t, policy.Allow(model.RoleUser, CapSelfWrite))
	assert.False(t, policy.Allow(model.RoleUser, CapAdminRead))
	assert.False(t, policy.Allow(model.RoleUser, CapEventResolve))

	assert.True(t, policy.Allow(model.RoleModerator, CapAdminRead))
	assert.True(t, policy.Allow(model.RoleModerator, CapEventResolve))
	assert.False(t, policy.Allow(model.RoleModerator, CapAdminWrite))

	assert.True(t, policy.Allow(model.RoleAdmin, CapAdminWrite))
}

func TestPolicyUnknownRole(t *testing.T) {
	policy := NewPolicy()
	assert.False(t, policy.Allow("ghost", CapSelfRead))
	assert.ErrorIs(t, policy.Require("ghost", CapSelfRead), ErrPermissionDenied)
}
