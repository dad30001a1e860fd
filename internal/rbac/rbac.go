// Package rbac decides what each account role may do. Parents act on rows
// they own; admins additionally run maintenance operations.
package rbac

type Role string
type Action string

const (
	RoleParent Role = "parent"
	RoleAdmin  Role = "admin"
)

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionSubmit Action = "submit"
	ActionAdmin  Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleParent:
		return action == ActionRead || action == ActionWrite || action == ActionSubmit
	default:
		return false
	}
}

// Normalize maps unknown or empty roles to parent.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleParent, RoleAdmin:
		return Role(role)
	default:
		return RoleParent
	}
}
