package identity

import (
	"context"

	"github.com/google/uuid"
	"github.com/osuops/tourney/internal/bracket"
)

type contextKey string

const principalKey contextKey = "principal"

// Principal is the already-authenticated acting identity: a player,
// referee, or staff member plus their role set. Authentication itself
// happens outside this engine; the transport layer is expected to
// attach a verified principal before invoking any operation.
type Principal struct {
	ID    uuid.UUID
	Roles bracket.RoleList
}

func (p Principal) HasRole(role bracket.StaffRole) bool {
	return p.Roles.Has(role)
}

// IsOperator reports whether the principal may act on any match
// regardless of roster or referee assignment.
func (p Principal) IsOperator() bool {
	return p.HasRole(bracket.RoleAdmin) || p.HasRole(bracket.RoleHost)
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
