package domain

import (
	"fmt"
	"strings"
)

// ApplicationRole is the organisational role of a user.
type ApplicationRole string

const (
	RoleEmployee ApplicationRole = "Employee"
	RoleTeamLead ApplicationRole = "TeamLead"
	RoleHR       ApplicationRole = "HR"
	RoleHRLead   ApplicationRole = "HRLead"
	RoleAdmin    ApplicationRole = "Admin"
)

var roleTier = map[ApplicationRole]int{
	RoleEmployee: 0,
	RoleTeamLead: 1,
	RoleHR:       2,
	RoleHRLead:   3,
	RoleAdmin:    4,
}

// Capability classifies a role for assignment access.
type Capability int

const (
	CapabilityStandard Capability = iota
	// CapabilityElevated bypasses the direct-report restriction.
	CapabilityElevated
)

// ParseApplicationRole accepts the canonical role names case-insensitively.
func ParseApplicationRole(v string) (ApplicationRole, error) {
	for role := range roleTier {
		if strings.EqualFold(string(role), strings.TrimSpace(v)) {
			return role, nil
		}
	}
	return "", fmt.Errorf("%w: unknown application role %q", ErrValidation, v)
}

func (r ApplicationRole) IsValid() bool {
	_, ok := roleTier[r]
	return ok
}

// AtLeast reports whether r is at or above the given tier. Unknown roles are
// below every tier.
func (r ApplicationRole) AtLeast(min ApplicationRole) bool {
	t, ok := roleTier[r]
	if !ok {
		return false
	}
	return t >= roleTier[min]
}

// IsManagerTier reports whether the role may reach manager-style operations.
func (r ApplicationRole) IsManagerTier() bool {
	return r.AtLeast(RoleTeamLead)
}

// Classify is the single place that decides whether a role is elevated.
func Classify(r ApplicationRole) Capability {
	if r.AtLeast(RoleHR) {
		return CapabilityElevated
	}
	return CapabilityStandard
}

// CompletionRole declares which party answers a section. Employee and Manager
// double as the key under which a party's answer is stored.
type CompletionRole string

const (
	CompletionEmployee CompletionRole = "Employee"
	CompletionManager  CompletionRole = "Manager"
	CompletionBoth     CompletionRole = "Both"
)

func ParseCompletionRole(v string) (CompletionRole, error) {
	for _, c := range []CompletionRole{CompletionEmployee, CompletionManager, CompletionBoth} {
		if strings.EqualFold(string(c), strings.TrimSpace(v)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: unknown completion role %q", ErrValidation, v)
}

// IsResponder reports whether the value names a single answering party.
func (c CompletionRole) IsResponder() bool {
	return c == CompletionEmployee || c == CompletionManager
}

// Accepts reports whether a section with this completion role takes answers
// from the given responder.
func (c CompletionRole) Accepts(responder CompletionRole) bool {
	if !responder.IsResponder() {
		return false
	}
	return c == CompletionBoth || c == responder
}
