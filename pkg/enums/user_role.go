package enums

// UserRole gates access to the admin panel and vendor dashboard.
type UserRole string

const (
	UserRoleAdmin    UserRole = "admin"
	UserRoleVendor   UserRole = "vendor"
	UserRoleCustomer UserRole = "customer"
)

var userRoles = newValueSet("user role", UserRoleAdmin, UserRoleVendor, UserRoleCustomer)

func (r UserRole) String() string { return string(r) }

// IsValid reports whether the value is a known UserRole. The empty role is
// not valid; token parsing relies on that.
func (r UserRole) IsValid() bool { return userRoles.has(r) }

func ParseUserRole(value string) (UserRole, error) { return userRoles.parse(value) }
