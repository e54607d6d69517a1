package billing

import (
	"testing"

	"github.com/google/uuid"

	"github.com/devfurlan/cuidly-sub007/pkg/db/models"
	"github.com/devfurlan/cuidly-sub007/pkg/enums"
	pkgerrors "github.com/devfurlan/cuidly-sub007/pkg/errors"
)

func TestOwnerApplyAndRoundTrip(t *testing.T) {
	id := uuid.New()
	sub := &models.Subscription{}
	family := uuid.New()
	sub.FamilyID = &family

	owner := Owner{Type: enums.OwnerTypeNanny, ID: id}
	owner.Apply(sub)

	if sub.FamilyID != nil {
		t.Fatalf("family id should be cleared")
	}
	if got := OwnerOf(sub); got != owner {
		t.Fatalf("expected %v, got %v", owner, got)
	}
	if owner.Column() != "nanny_id" {
		t.Fatalf("unexpected column %s", owner.Column())
	}
}

func TestOwnerValidate(t *testing.T) {
	if err := (Owner{Type: enums.OwnerTypeFamily}).Validate(); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for nil id, got %v", err)
	}
	if err := (Owner{ID: uuid.New()}).Validate(); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for missing type, got %v", err)
	}
	if err := (Owner{Type: enums.OwnerTypeFamily, ID: uuid.New()}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
