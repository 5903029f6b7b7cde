package match

import "reflect"

// Role is the authentication role a request falls into.
type Role uint8

const (
	RoleProtected Role = iota
	RoleVisitor
	RoleLogin
	RoleLogout
	RoleRefresh
)

// Patterns carries one optional pattern per configurable role. A nil or
// empty pattern disables the role.
type Patterns struct {
	Visitor map[string]any
	Login   map[string]any
	Logout  map[string]any
	Refresh []map[string]any
}

// Matches reports whether every key of pattern is present in meta with an
// equal value. An empty pattern matches nothing.
func Matches(meta, pattern map[string]any) bool {
	if len(pattern) == 0 || len(meta) < len(pattern) {
		return false
	}
	for key, want := range pattern {
		got, ok := meta[key]
		if !ok || !equal(got, want) {
			return false
		}
	}
	return true
}

// Classify resolves the role of meta. Visitor wins over login and logout,
// which win over refresh; anything else is protected.
func Classify(meta map[string]any, p Patterns) Role {
	switch {
	case Matches(meta, p.Visitor):
		return RoleVisitor
	case Matches(meta, p.Login):
		return RoleLogin
	case Matches(meta, p.Logout):
		return RoleLogout
	}
	for _, pattern := range p.Refresh {
		if Matches(meta, pattern) {
			return RoleRefresh
		}
	}
	return RoleProtected
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	// DeepEqual instead of == so slice and map values cannot panic.
	return reflect.DeepEqual(a, b)
}

func (r Role) String() string {
	switch r {
	case RoleProtected:
		return "protected"
	case RoleVisitor:
		return "visitor"
	case RoleLogin:
		return "login"
	case RoleLogout:
		return "logout"
	case RoleRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}
