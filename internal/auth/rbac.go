package auth

import "github.com/upb/action-gate/models"

// Permission is an operation guarded by role
type Permission string

const (
	PermissionInvokeActions    Permission = "actions:invoke"
	PermissionManageRules      Permission = "rules:manage"
	PermissionEvaluateGate     Permission = "gate:evaluate"
	PermissionManageEscalation Permission = "escalations:manage"
	PermissionReadAudit        Permission = "audit:read"
)

var rolePermissions = map[models.UserRole][]Permission{
	models.RoleUser: {
		PermissionInvokeActions,
	},
	models.RoleManager: {
		PermissionInvokeActions,
		PermissionManageRules,
		PermissionEvaluateGate,
		PermissionManageEscalation,
	},
	models.RoleAdmin: {
		PermissionInvokeActions,
		PermissionManageRules,
		PermissionEvaluateGate,
		PermissionManageEscalation,
		PermissionReadAudit,
	},
}

// ValidRole reports whether role is known
func ValidRole(role models.UserRole) bool {
	_, ok := rolePermissions[role]
	return ok
}

// HasPermission reports whether the principal's role grants permission
func HasPermission(principal *Principal, permission Permission) bool {
	if principal == nil {
		return false
	}
	for _, p := range rolePermissions[principal.Role] {
		if p == permission {
			return true
		}
	}
	return false
}
