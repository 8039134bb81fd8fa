package auth

import (
	"errors"

	"github.com/matchguard/matchguard/model"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
)

// Capability names an action a request needs. Handlers declare the
// capability they require; the policy alone decides allow or deny.
type Capability string

const (
	CapSelfRead     Capability = "self:read"
	CapSelfWrite    Capability = "self:write"
	CapAdminRead    Capability = "admin:read"
	CapAdminWrite   Capability = "admin:write"
	CapEventResolve Capability = "events:resolve"
)

var roleCapabilities = map[string][]Capability{
	model.RoleUser:      {CapSelfRead, CapSelfWrite},
	model.RoleModerator: {CapSelfRead, CapSelfWrite, CapAdminRead, CapEventResolve},
	model.RoleAdmin:     {CapSelfRead, CapSelfWrite, CapAdminRead, CapAdminWrite, CapEventResolve},
}

// Policy evaluates role capabilities. A single evaluator keeps
// authorization decisions out of route handlers.
type Policy struct {
	grants map[string]map[Capability]bool
}

func (p *Policy) Allow(role string, cap Capability) bool {
	return p.grants[role][cap]
}

// Require returns ErrPermissionDenied unless the role grants the capability.
func (p *Policy) Require(role string, cap Capability) error {
	if !p.Allow(role, cap) {
		return ErrPermissionDenied
	}
	return nil
}

func NewPolicy() *Policy {
	grants := make(map[string]map[Capability]bool, len(roleCapabilities))
	for role, caps := range roleCapabilities {
		grants[role] = make(map[Capability]bool, len(caps))
		for _, c := range caps {
			grants[role][c] = true
		}
	}
	return &Policy{grants: grants}
}
