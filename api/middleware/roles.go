package middleware

import (
	"net/http"

	"github.com/devfurlan/cuidly-sub007/api/responses"
	"github.com/devfurlan/cuidly-sub007/pkg/enums"
	pkgerrors "github.com/devfurlan/cuidly-sub007/pkg/errors"
	"github.com/devfurlan/cuidly-sub007/pkg/logger"
)

// gate admits the request when allow accepts the principal.
func gate(logg *logger.Logger, denial string, allow func(Principal) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
				return
			}
			if !allow(p) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, denial))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func RequireRole(role enums.UserRole, logg *logger.Logger) func(http.Handler) http.Handler {
	return gate(logg, string(role)+" role required", func(p Principal) bool {
		return p.Role == role
	})
}

// RequireOwner admits family and nanny accounts that carry a profile id.
func RequireOwner(logg *logger.Logger) func(http.Handler) http.Handler {
	return gate(logg, "family or nanny account required", func(p Principal) bool {
		_, billable := p.OwnerType()
		return billable && p.OwnerID != nil
	})
}
