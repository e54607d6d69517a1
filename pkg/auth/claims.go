package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/devfurlan/cuidly-sub007/pkg/enums"
)

// Claims is the access token issued by the identity service. OwnerID is the
// family or nanny profile the user bills as; admins carry none.
type Claims struct {
	UserID  uuid.UUID      `json:"user_id"`
	Role    enums.UserRole `json:"role"`
	OwnerID *uuid.UUID     `json:"owner_id,omitempty"`
	Email   string         `json:"email,omitempty"`
	Name    string         `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Validate runs after the registered claims pass; jwt.Parser calls it
// through jwt.ClaimsValidator.
func (c Claims) Validate() error {
	if c.UserID == uuid.Nil {
		return errors.New("user_id is required")
	}
	if !c.Role.IsValid() {
		return fmt.Errorf("invalid role %q", c.Role)
	}
	_, billable := c.Role.OwnerType()
	switch {
	case billable && (c.OwnerID == nil || *c.OwnerID == uuid.Nil):
		return fmt.Errorf("role %s requires owner_id", c.Role)
	case !billable && c.OwnerID != nil:
		return fmt.Errorf("role %s cannot carry owner_id", c.Role)
	}
	return nil
}
