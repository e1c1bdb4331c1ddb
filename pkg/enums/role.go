package enums

// Role is the actor role carried in access tokens.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

var roles = set[Role]{RoleCustomer, RoleAdmin}

func (r Role) String() string { return string(r) }

func (r Role) IsValid() bool { return roles.has(r) }

func ParseRole(value string) (Role, error) {
	return roles.parse("role", value)
}
