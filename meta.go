package tokenflow

import "github.com/MrEthical07/tokenflow/internal/match"

// Meta is the tag bag carried by a [Method]. The same type describes a role
// pattern: a method matches a pattern when every pattern key is present on the
// method with an equal value.
type Meta map[string]any

// Matches reports whether m satisfies pattern. An empty pattern matches nothing.
func (m Meta) Matches(pattern Meta) bool {
	return match.Matches(m, pattern)
}

// Role is the authentication role of a method.
type Role = match.Role

const (
	RoleProtected = match.RoleProtected
	RoleVisitor   = match.RoleVisitor
	RoleLogin     = match.RoleLogin
	RoleLogout    = match.RoleLogout
	RoleRefresh   = match.RoleRefresh
)

// Default role patterns. Login, logout and refresh descriptors configured
// without MetaMatches fall back to these. DefaultVisitorMeta is only applied
// when assigned to Config.VisitorMeta.
var (
	DefaultVisitorMeta = Meta{"authRole": nil}
	DefaultLoginMeta   = Meta{"authRole": "login"}
	DefaultLogoutMeta  = Meta{"authRole": "logout"}
	DefaultRefreshMeta = Meta{"authRole": "refreshToken"}
)
