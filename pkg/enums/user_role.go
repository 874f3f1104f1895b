package enums

import "fmt"

// UserRole drives route-level authorization.
type UserRole string

const (
	UserRoleDriver  UserRole = "driver"
	UserRoleManager UserRole = "manager"
	UserRoleAdmin   UserRole = "admin"
	// UserRoleOps is granted to external schedulers invoking batch triggers.
	UserRoleOps UserRole = "ops"
)

var validUserRoles = []UserRole{
	UserRoleDriver,
	UserRoleManager,
	UserRoleAdmin,
	UserRoleOps,
}

func (r UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseUserRole converts raw strings into UserRole.
func ParseUserRole(value string) (UserRole, error) {
	for _, candidate := range validUserRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user role %q", value)
}
