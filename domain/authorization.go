package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Directory answers the read-only org lookups the gate needs.
type Directory interface {
	RoleOf(ctx context.Context, userID string) (ApplicationRole, error)
	IsDirectManager(ctx context.Context, managerID, employeeID string) (bool, error)
	DirectReports(ctx context.Context, managerID string) ([]string, error)
}

// Principal is an authenticated user with a resolved role.
type Principal struct {
	UserID string
	Role   ApplicationRole
}

func (p Principal) IsElevated() bool {
	return Classify(p.Role) == CapabilityElevated
}

// Relation is how a principal relates to the employee owning an assignment.
type Relation string

const (
	RelationSelf          Relation = "self"
	RelationDirectManager Relation = "direct_manager"
	RelationElevated      Relation = "elevated"
)

// Grant is the outcome of a successful access check.
type Grant struct {
	Principal Principal
	Relation  Relation
}

// Responder is the party the principal answers as.
func (g Grant) Responder() CompletionRole {
	if g.Relation == RelationSelf {
		return CompletionEmployee
	}
	return CompletionManager
}

// IsManagerSide reports whether the grant allows manager-style operations.
func (g Grant) IsManagerSide() bool {
	return g.Relation != RelationSelf && g.Principal.Role.IsManagerTier()
}

// AuthorizationGate decides whether a principal may act on an employee's
// assignments. Every lookup failure denies access.
type AuthorizationGate struct {
	dir Directory
}

func NewAuthorizationGate(dir Directory) *AuthorizationGate {
	return &AuthorizationGate{dir: dir}
}

// Authenticate resolves the role of userID once per request.
func (g *AuthorizationGate) Authenticate(ctx context.Context, userID string) (Principal, error) {
	if strings.TrimSpace(userID) == "" {
		return Principal{}, ErrUnauthenticated
	}
	role, err := g.dir.RoleOf(ctx, userID)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: role lookup failed", ErrAccessDenied)
	}
	if !role.IsValid() {
		return Principal{}, fmt.Errorf("%w: unknown role %q", ErrAccessDenied, role)
	}
	return Principal{UserID: userID, Role: role}, nil
}

// Authorize checks access to assignments owned by employeeID.
func (g *AuthorizationGate) Authorize(ctx context.Context, p Principal, employeeID string) (Grant, error) {
	if p.UserID == "" {
		return Grant{}, ErrUnauthenticated
	}
	if p.UserID == employeeID {
		return Grant{Principal: p, Relation: RelationSelf}, nil
	}
	if p.IsElevated() {
		return Grant{Principal: p, Relation: RelationElevated}, nil
	}
	if !p.Role.IsManagerTier() {
		return Grant{}, ErrAccessDenied
	}
	ok, err := g.dir.IsDirectManager(ctx, p.UserID, employeeID)
	if err != nil || !ok {
		return Grant{}, ErrAccessDenied
	}
	return Grant{Principal: p, Relation: RelationDirectManager}, nil
}

// AuthorizeManager is Authorize restricted to the manager side: the direct
// manager or an elevated role, never the employee themselves.
func (g *AuthorizationGate) AuthorizeManager(ctx context.Context, p Principal, employeeID string) (Grant, error) {
	grant, err := g.Authorize(ctx, p, employeeID)
	if err != nil {
		return Grant{}, err
	}
	if !grant.IsManagerSide() {
		return Grant{}, ErrAccessDenied
	}
	return grant, nil
}

// RequireEmployee confirms employeeID is a known user of the directory.
func (g *AuthorizationGate) RequireEmployee(ctx context.Context, employeeID string) error {
	_, err := g.dir.RoleOf(ctx, employeeID)
	switch {
	case errors.Is(err, ErrNotFound):
		return fmt.Errorf("%w: employee %s does not exist", ErrValidation, employeeID)
	case err != nil:
		return fmt.Errorf("%w: employee lookup failed", ErrAccessDenied)
	}
	return nil
}

// DirectReports lists the employees p manages directly.
func (g *AuthorizationGate) DirectReports(ctx context.Context, p Principal) ([]string, error) {
	if !p.Role.IsManagerTier() {
		return nil, nil
	}
	reports, err := g.dir.DirectReports(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: org lookup failed", ErrAccessDenied)
	}
	return reports, nil
}

// RequireElevated admits only elevated roles.
func RequireElevated(p Principal) error {
	if !p.IsElevated() {
		return ErrAccessDenied
	}
	return nil
}
