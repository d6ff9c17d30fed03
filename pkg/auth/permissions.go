// Package auth provides API-key and signed-token authentication with
// permission enforcement, plus the outbound credential store used when
// calling remote agents.
package auth

// Permission scopes what an authenticated caller may do. Admin grants
// everything.
type Permission string

const (
	PermissionRead      Permission = "read"
	PermissionWrite     Permission = "write"
	PermissionAdmin     Permission = "admin"
	PermissionScrape    Permission = "scrape"
	PermissionPost      Permission = "post"
	PermissionFollow    Permission = "follow"
	PermissionAnalytics Permission = "analytics"
	PermissionWorkflow  Permission = "workflow"
)

// AllPermissions lists every known permission.
var AllPermissions = []Permission{
	PermissionRead,
	PermissionWrite,
	PermissionAdmin,
	PermissionScrape,
	PermissionPost,
	PermissionFollow,
	PermissionAnalytics,
	PermissionWorkflow,
}

// IsValidPermission reports whether p is one of the known permissions.
func IsValidPermission(p Permission) bool {
	for _, known := range AllPermissions {
		if p == known {
			return true
		}
	}
	return false
}

// Identity is the authenticated caller attached to a request.
type Identity struct {
	Subject     string       `json:"subject"`
	Method      string       `json:"method"` // "api_key" or "token"
	Permissions []Permission `json:"permissions"`
}

// HasPermission reports whether the identity holds the required
// permission, directly or via admin.
func (id *Identity) HasPermission(required Permission) bool {
	if id == nil {
		return false
	}
	for _, p := range id.Permissions {
		if p == PermissionAdmin || p == required {
			return true
		}
	}
	return false
}
