package subscriptions

import (
	"net/http"

	"github.com/devfurlan/cuidly-sub007/api/middleware"
	"github.com/devfurlan/cuidly-sub007/internal/billing"
	subsvc "github.com/devfurlan/cuidly-sub007/internal/subscriptions"
	pkgerrors "github.com/devfurlan/cuidly-sub007/pkg/errors"
)

// requesterFromRequest resolves the owner the caller acts for.
func requesterFromRequest(r *http.Request) (subsvc.Requester, error) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		return subsvc.Requester{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	ownerType, isOwner := p.OwnerType()
	if !isOwner || p.OwnerID == nil {
		return subsvc.Requester{}, pkgerrors.New(pkgerrors.CodeForbidden, "family or nanny account required")
	}
	return subsvc.Requester{
		Owner:  billing.Owner{Type: ownerType, ID: *p.OwnerID},
		UserID: p.UserID,
		Email:  p.Email,
		Name:   p.Name,
	}, nil
}
