package enums

import "fmt"

// ActorRole identifies who is driving a workflow step.
type ActorRole string

const (
	ActorRoleBuyer    ActorRole = "BUYER"
	ActorRoleProducer ActorRole = "PRODUCER"
	ActorRoleAdmin    ActorRole = "ADMIN"
	// ActorRoleSystem is reserved for gateway callbacks and workers; tokens never carry it.
	ActorRoleSystem ActorRole = "SYSTEM"
)

var validActorRoles = []ActorRole{
	ActorRoleBuyer,
	ActorRoleProducer,
	ActorRoleAdmin,
	ActorRoleSystem,
}

// String implements fmt.Stringer.
func (r ActorRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ActorRole.
func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsUserRole reports whether the role can appear on an access token.
func (r ActorRole) IsUserRole() bool {
	return r == ActorRoleBuyer || r == ActorRoleProducer || r == ActorRoleAdmin
}

// ParseActorRole converts raw input into an ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
