package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/devfurlan/cuidly-sub007/pkg/enums"
)

type contextKey string

const ctxPrincipal contextKey = "principal"

// Principal is the authenticated caller seeded by Auth.
type Principal struct {
	UserID  uuid.UUID
	Role    enums.UserRole
	OwnerID *uuid.UUID
	Email   string
	Name    string
}

// OwnerType reports the owner kind the principal bills as, if any.
func (p Principal) OwnerType() (enums.OwnerType, bool) {
	return p.Role.OwnerType()
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(ctxPrincipal).(Principal)
	return p, ok
}

func UserIDFromContext(ctx context.Context) string {
	if p, ok := PrincipalFromContext(ctx); ok {
		return p.UserID.String()
	}
	return ""
}

func RoleFromContext(ctx context.Context) enums.UserRole {
	if p, ok := PrincipalFromContext(ctx); ok {
		return p.Role
	}
	return ""
}

// WithPrincipal injects the caller into the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxPrincipal, p)
}
