package billing

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/devfurlan/cuidly-sub007/pkg/db/models"
	"github.com/devfurlan/cuidly-sub007/pkg/enums"
	pkgerrors "github.com/devfurlan/cuidly-sub007/pkg/errors"
)

// Owner identifies the family or nanny that holds a subscription.
type Owner struct {
	Type enums.OwnerType
	ID   uuid.UUID
}

// Validate ensures the owner reference is complete.
func (o Owner) Validate() error {
	if !o.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "owner type is required")
	}
	if o.ID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "owner id is required")
	}
	return nil
}

func (o Owner) String() string {
	return fmt.Sprintf("%s:%s", o.Type, o.ID)
}

// Column returns the subscriptions column holding this owner's id.
func (o Owner) Column() string {
	if o.Type == enums.OwnerTypeNanny {
		return "nanny_id"
	}
	return "family_id"
}

// Apply stamps the owner reference on the row, clearing the other side.
func (o Owner) Apply(sub *models.Subscription) {
	id := o.ID
	if o.Type == enums.OwnerTypeNanny {
		sub.NannyID = &id
		sub.FamilyID = nil
		return
	}
	sub.FamilyID = &id
	sub.NannyID = nil
}

// OwnerOf extracts the owner reference from a subscription row.
func OwnerOf(sub *models.Subscription) Owner {
	if sub == nil {
		return Owner{}
	}
	if sub.NannyID != nil {
		return Owner{Type: enums.OwnerTypeNanny, ID: *sub.NannyID}
	}
	if sub.FamilyID != nil {
		return Owner{Type: enums.OwnerTypeFamily, ID: *sub.FamilyID}
	}
	return Owner{}
}
