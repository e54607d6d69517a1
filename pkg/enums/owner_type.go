package enums

// OwnerType is the kind of billable entity holding a subscription.
type OwnerType string

const (
	OwnerTypeFamily OwnerType = "FAMILY"
	OwnerTypeNanny  OwnerType = "NANNY"
)

func (o OwnerType) String() string {
	return string(o)
}

func (o OwnerType) IsValid() bool {
	return o == OwnerTypeFamily || o == OwnerTypeNanny
}

func ParseOwnerType(raw string) (OwnerType, error) {
	return parse("owner type", raw, OwnerType.IsValid)
}

// UserRole is the role carried by access tokens.
type UserRole string

const (
	UserRoleFamily UserRole = "FAMILY"
	UserRoleNanny  UserRole = "NANNY"
	UserRoleAdmin  UserRole = "ADMIN"
)

// OwnerType maps a token role onto the owner kind it bills as.
func (r UserRole) OwnerType() (OwnerType, bool) {
	switch r {
	case UserRoleFamily:
		return OwnerTypeFamily, true
	case UserRoleNanny:
		return OwnerTypeNanny, true
	default:
		return "", false
	}
}

func (r UserRole) IsValid() bool {
	switch r {
	case UserRoleFamily, UserRoleNanny, UserRoleAdmin:
		return true
	default:
		return false
	}
}
