package authz

import (
	"time"

	"github.com/samber/lo"

	"github.com/orgctl/orgctl/internal/auth/authn"
)

// Role names recognized by the coarse-grained hierarchy.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleGuest  = "guest"
)

// DefaultExpiryBuffer is the window before expiry in which a token is
// reported as near expiry.
const DefaultExpiryBuffer = 300 * time.Second

// roleHierarchy maps each role to the set of roles whose access it inherits.
// Higher roles subsume lower ones: an admin satisfies any member or guest
// requirement.
var roleHierarchy = map[string][]string{
	RoleAdmin:  {RoleAdmin, RoleMember, RoleGuest},
	RoleMember: {RoleMember, RoleGuest},
	RoleGuest:  {RoleGuest},
}

// PermissionResult reports a permission check. On denial,
// MissingPermissions holds exactly the required permissions the context does
// not hold, in required order.
type PermissionResult struct {
	Granted            bool     `json:"granted"`
	MissingPermissions []string `json:"missingPermissions,omitempty"`
}

// RoleResult reports a role check. IsAdmin/IsMember/IsGuest are raw
// membership flags over the held roles, not hierarchy-expanded, and are
// always populated regardless of Valid.
type RoleResult struct {
	Valid    bool `json:"valid"`
	IsAdmin  bool `json:"isAdmin"`
	IsMember bool `json:"isMember"`
	IsGuest  bool `json:"isGuest"`
}

// AccessResult combines independent permission and role checks. Granted is
// the conjunction of both; the sub-results are carried in full so a caller
// can report which dimension failed.
type AccessResult struct {
	Granted     bool             `json:"granted"`
	Permissions PermissionResult `json:"permissions"`
	Roles       RoleResult       `json:"roles"`
}

// CheckPermissions grants when every required permission is held. An empty
// requirement always grants. Denials report the exact missing subset rather
// than the full requirement.
func CheckPermissions(orgCtx *authn.OrganizationContext, required []string) PermissionResult {
	if len(required) == 0 {
		return PermissionResult{Granted: true}
	}

	held := make(map[string]bool, len(orgCtx.Permissions))
	for _, p := range orgCtx.Permissions {
		held[p] = true
	}

	var missing []string
	for _, p := range required {
		if !held[p] {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return PermissionResult{Granted: false, MissingPermissions: missing}
	}
	return PermissionResult{Granted: true}
}

// ValidateRoles validates held roles against required ones using the role
// hierarchy. An empty requirement always validates; otherwise any one held
// role whose inherited set intersects the requirement suffices.
func ValidateRoles(orgCtx *authn.OrganizationContext, required []string) RoleResult {
	result := RoleResult{
		IsAdmin:  lo.Contains(orgCtx.Roles, RoleAdmin),
		IsMember: lo.Contains(orgCtx.Roles, RoleMember),
		IsGuest:  lo.Contains(orgCtx.Roles, RoleGuest),
	}

	if len(required) == 0 {
		result.Valid = true
		return result
	}

	for _, held := range orgCtx.Roles {
		inherited, known := roleHierarchy[held]
		if !known {
			// Unknown roles satisfy only an exact match.
			inherited = []string{held}
		}
		if len(lo.Intersect(inherited, required)) > 0 {
			result.Valid = true
			return result
		}
	}
	return result
}

// ValidateAccess runs the permission and role checks independently and
// grants only when both pass.
func ValidateAccess(orgCtx *authn.OrganizationContext, requiredPermissions, requiredRoles []string) AccessResult {
	perms := CheckPermissions(orgCtx, requiredPermissions)
	roles := ValidateRoles(orgCtx, requiredRoles)
	return AccessResult{
		Granted:     perms.Granted && roles.Valid,
		Permissions: perms,
		Roles:       roles,
	}
}

// TokenTimeRemaining returns the duration until the context's token expires.
// Expired tokens yield a non-positive duration.
func TokenTimeRemaining(orgCtx *authn.OrganizationContext) time.Duration {
	return time.Until(time.Unix(orgCtx.TokenExpiry, 0))
}

// IsTokenNearExpiry reports whether the token expires within buffer. A zero
// buffer uses DefaultExpiryBuffer.
func IsTokenNearExpiry(orgCtx *authn.OrganizationContext, buffer time.Duration) bool {
	if buffer <= 0 {
		buffer = DefaultExpiryBuffer
	}
	return TokenTimeRemaining(orgCtx) <= buffer
}

// IsAdmin reports raw admin role membership.
func IsAdmin(orgCtx *authn.OrganizationContext) bool {
	return lo.Contains(orgCtx.Roles, RoleAdmin)
}

// IsMemberOrHigher reports whether the context holds the member role or one
// that inherits it.
func IsMemberOrHigher(orgCtx *authn.OrganizationContext) bool {
	for _, held := range orgCtx.Roles {
		if lo.Contains(roleHierarchy[held], RoleMember) {
			return true
		}
	}
	return false
}
