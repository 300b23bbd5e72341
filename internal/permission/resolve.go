package permission

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"lawdesk/internal/store"
)

// RoleResolver looks up a member's role in a team. It returns an error
// wrapping ErrNotMember when the user does not belong to the team.
type RoleResolver interface {
	RoleFor(ctx context.Context, userID int, teamID uuid.UUID) (Role, error)
}

// ForScope builds the gate for scope. The solo actor is the owner of its own
// namespace.
func ForScope(ctx context.Context, resolver RoleResolver, table Table, scope store.Scope) (*Gate, error) {
	if !scope.Authenticated() {
		return nil, store.ErrUnauthenticated
	}
	if !scope.IsTeam() {
		return NewGate(RoleOwner, table), nil
	}
	role, err := resolver.RoleFor(ctx, scope.UserID, scope.TeamID)
	if err != nil {
		return nil, fmt.Errorf("resolve role in %s: %w", scope, err)
	}
	if !role.Valid() {
		return nil, fmt.Errorf("resolve role in %s: unknown role %q", scope, role)
	}
	return NewGate(role, table), nil
}
