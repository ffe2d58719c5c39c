// Package rbac derives permitted actions and routes from a session
// principal's role. It is a pure lookup layer: it performs no I/O and never
// mutates session state, so the navigation and action-gating code can query
// it synchronously on every render.
package rbac

import "github.com/athishulleri01/erp-session-core/users"

// Action identifies a UI capability that must be role-checked before it is
// offered or executed.
type Action string

const (
	ActionViewDirectory Action = "directory.view"        // browse the user directory
	ActionCreateUser    Action = "directory.create"      // create another user's record
	ActionEditUser      Action = "directory.edit"        // edit another user's record
	ActionDeleteUser    Action = "directory.delete"      // delete another user's record
	ActionAssignRole    Action = "directory.assign_role" // change another user's role
	ActionEditProfile   Action = "profile.edit"          // edit own profile
)

// Route identifies a navigable application route.
type Route string

const (
	RouteDashboard Route = "/dashboard"
	RouteProfile   Route = "/profile"
	RouteDirectory Route = "/users"
)

// Can reports whether the role is permitted to perform the action.
func Can(role users.RoleType, action Action) bool {
	switch action {
	case ActionViewDirectory:
		return role.AtLeast(users.RoleManager)
	case ActionCreateUser, ActionEditUser, ActionDeleteUser, ActionAssignRole:
		return role == users.RoleAdmin
	case ActionEditProfile:
		return role.IsValid()
	default:
		return false
	}
}

// CanNavigate reports whether the role may visit the route.
func CanNavigate(role users.RoleType, route Route) bool {
	switch route {
	case RouteDashboard, RouteProfile:
		return role.IsValid()
	case RouteDirectory:
		return role.AtLeast(users.RoleManager)
	default:
		return false
	}
}

// AllowedActions returns every action the role may perform, for building
// action menus.
func AllowedActions(role users.RoleType) []Action {
	all := []Action{
		ActionViewDirectory,
		ActionCreateUser,
		ActionEditUser,
		ActionDeleteUser,
		ActionAssignRole,
		ActionEditProfile,
	}
	var allowed []Action
	for _, a := range all {
		if Can(role, a) {
			allowed = append(allowed, a)
		}
	}
	return allowed
}

// AllowedRoutes returns every route the role may navigate to, for building
// navigation entries.
func AllowedRoutes(role users.RoleType) []Route {
	all := []Route{RouteDashboard, RouteProfile, RouteDirectory}
	var allowed []Route
	for _, r := range all {
		if CanNavigate(role, r) {
			allowed = append(allowed, r)
		}
	}
	return allowed
}

// identityFields are the profile fields that are never client-editable
// through self-edit, regardless of role. Role reassignment and login
// identifier changes go through the admin directory operations only.
var identityFields = map[string]struct{}{
	"role":     {},
	"username": {},
}

// SelfEditable reports whether the named profile field may be changed by the
// user through profile self-edit. The role and login identifier are excluded
// for every role, admins included.
func SelfEditable(role users.RoleType, field string) bool {
	if !role.IsValid() {
		return false
	}
	_, identity := identityFields[field]
	return !identity
}
