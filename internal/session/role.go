package session

import "strings"

// Role is a normalized account role.
type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleInstructor Role = "INSTRUCTOR"
	RoleUser       Role = "USER"
)

// Routes a user can be sent to after login or check-in.
const (
	RouteOrganizations  = "/organizations"
	RouteAdminDashboard = "/dashboard/admin"
	RouteCourses        = "/courses"
	RouteAttendance     = "/attendance"
	RouteStudent        = "/dashboard/student"
	RouteLogin          = "/login"
)

// NormalizeRole turns a backend type such as "ROLE_user" into a Role.
func NormalizeRole(authType string) Role {
	r := strings.TrimSpace(authType)
	r = strings.TrimPrefix(r, "ROLE_")
	r = strings.TrimPrefix(r, "role_")
	return Role(strings.ToUpper(r))
}

// Known reports whether r is one of the supported roles.
func (r Role) Known() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleInstructor, RoleUser:
		return true
	}
	return false
}

// Destination returns the landing route for role. Admins of PRO
// organizations get the dashboard; other admins get the course list.
// ok is false for unknown roles.
func Destination(role Role, proPlan bool) (route string, ok bool) {
	switch role {
	case RoleSuperAdmin:
		return RouteOrganizations, true
	case RoleAdmin:
		if proPlan {
			return RouteAdminDashboard, true
		}
		return RouteCourses, true
	case RoleInstructor:
		return RouteAttendance, true
	case RoleUser:
		return RouteStudent, true
	}
	return RouteLogin, false
}
